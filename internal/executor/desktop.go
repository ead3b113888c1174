package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/pkg/types"
)

// Desktop performs pointer, keyboard and screen actions on the user's machine.
type Desktop interface {
	Do(ctx context.Context, action types.Action) (string, error)
}

var ErrDesktopUnavailable = errors.New("desktop agent not configured")

// DesktopAgent forwards desktop actions to a local agent process over HTTP. The agent receives
// the tagged action JSON on POST /v1/actions and answers {"ok":bool,"message":string}.
type DesktopAgent struct {
	BaseURL string
	Client  *http.Client
}

func (d *DesktopAgent) Do(ctx context.Context, action types.Action) (string, error) {
	if d == nil || d.BaseURL == "" {
		return "", ErrDesktopUnavailable
	}
	body, err := types.EncodeAction(action)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(d.BaseURL, "/")+"/v1/actions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	c := d.Client
	if c == nil {
		c = &http.Client{Timeout: 60 * time.Second}
	}
	resp, err := c.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var reply struct {
		OK      bool   `json:"ok"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", fmt.Errorf("desktop agent: http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if resp.StatusCode >= 400 || !reply.OK {
		return "", fmt.Errorf("desktop agent: %s", reply.Message)
	}
	return reply.Message, nil
}
