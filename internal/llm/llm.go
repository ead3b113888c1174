// Package llm holds the chat-completion providers reviewers call.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/config"
)

// Provider sends one system+user exchange to model and returns the reply text.
type Provider interface {
	Chat(ctx context.Context, system, user, model string) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, system, user, model string) (string, error)

func (f ProviderFunc) Chat(ctx context.Context, system, user, model string) (string, error) {
	return f(ctx, system, user, model)
}

// StatusError is returned when a provider answers with a non-2xx status.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: http %d: %s", e.Provider, e.StatusCode, e.Body)
}

type Registry struct {
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: map[string]Provider{}}
}

func (r *Registry) Register(name string, p Provider) {
	r.providers[name] = p
}

func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// FromConfig registers ollama always, and openrouter / groq when their keys are set.
func FromConfig(cfg config.ProvidersConfig) *Registry {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	reg := NewRegistry()
	reg.Register("ollama", &Ollama{Host: cfg.OllamaHost, Client: client})
	if cfg.OpenRouterAPIKey != "" {
		reg.Register("openrouter", &OpenAICompatible{Name: "openrouter", BaseURL: cfg.OpenRouterBaseURL, APIKey: cfg.OpenRouterAPIKey, Client: client})
	}
	if cfg.GroqAPIKey != "" {
		temp := 0.2
		reg.Register("groq", &OpenAICompatible{Name: "groq", BaseURL: cfg.GroqBaseURL, APIKey: cfg.GroqAPIKey, Temperature: &temp, Client: client})
	}
	return reg
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func messages(system, user string) []message {
	return []message{{Role: "system", Content: system}, {Role: "user", Content: user}}
}

func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", provider, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%s: read body: %w", provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Provider: provider, StatusCode: resp.StatusCode, Body: truncate(string(payload), 300)}
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", provider, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
