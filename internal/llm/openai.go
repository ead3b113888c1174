package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// OpenAICompatible calls a /chat/completions endpoint (OpenRouter, Groq).
type OpenAICompatible struct {
	Name        string
	BaseURL     string
	APIKey      string
	Temperature *float64
	Client      *http.Client
}

func (p *OpenAICompatible) Chat(ctx context.Context, system, user, model string) (string, error) {
	body := map[string]any{
		"model":    model,
		"messages": messages(system, user),
	}
	if p.Temperature != nil {
		body["temperature"] = *p.Temperature
	}
	var out struct {
		Choices []struct {
			Message message `json:"message"`
		} `json:"choices"`
	}
	url := strings.TrimRight(p.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + p.APIKey}
	if err := postJSON(ctx, p.Client, p.Name, url, headers, body, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%s: no choices in reply", p.Name)
	}
	return out.Choices[0].Message.Content, nil
}
