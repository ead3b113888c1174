package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

const defaultTelegramAPI = "https://api.telegram.org"

type Telegram struct {
	BotToken string
	ChatID   string
	APIBase  string
	Client   *http.Client
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Configured() bool {
	return t != nil && t.BotToken != "" && t.ChatID != ""
}

func (t *Telegram) Send(ctx context.Context, text string) error {
	if !t.Configured() {
		return nil
	}
	base := strings.TrimRight(t.APIBase, "/")
	if base == "" {
		base = defaultTelegramAPI
	}
	body, err := json.Marshal(map[string]string{"chat_id": t.ChatID, "text": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/bot"+t.BotToken+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client(t.Client).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkResponse(t.Name(), resp)
}
