package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Ollama talks to a local ollama server's /api/chat endpoint without streaming.
type Ollama struct {
	Host   string
	Client *http.Client
}

func (o *Ollama) Chat(ctx context.Context, system, user, model string) (string, error) {
	body := map[string]any{
		"model":    model,
		"messages": messages(system, user),
		"stream":   false,
	}
	var out struct {
		Message message `json:"message"`
	}
	url := strings.TrimRight(o.Host, "/") + "/api/chat"
	if err := postJSON(ctx, o.Client, "ollama", url, nil, body, &out); err != nil {
		return "", err
	}
	if out.Message.Content == "" {
		return "", fmt.Errorf("ollama: empty reply")
	}
	return out.Message.Content, nil
}
