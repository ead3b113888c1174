// Package notify delivers human-readable updates over chat, SMS and websocket channels.
// Delivery is best-effort: failures are logged and queued for retry, never returned to callers.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type Channel interface {
	Name() string
	// Configured reports whether Send can deliver anything. Unconfigured channels are skipped.
	Configured() bool
	Send(ctx context.Context, text string) error
}

// SendError is a non-2xx reply from a channel's API.
type SendError struct {
	Channel    string
	StatusCode int
	Body       string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s: http %d: %s", e.Channel, e.StatusCode, e.Body)
}

func checkResponse(channel string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &SendError{Channel: channel, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
