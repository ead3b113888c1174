package notify

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTwilioAPI = "https://api.twilio.com"

// Twilio sends SMS to the approver phone, or to an explicit recipient with SendTo.
type Twilio struct {
	AccountSID string
	AuthToken  string
	From       string
	To         string
	APIBase    string
	Client     *http.Client
}

func (t *Twilio) Name() string { return "twilio" }

func (t *Twilio) Configured() bool {
	return t != nil && t.AccountSID != "" && t.AuthToken != "" && t.From != ""
}

func (t *Twilio) Send(ctx context.Context, text string) error {
	if t.To == "" {
		return nil
	}
	return t.SendTo(ctx, t.To, text)
}

func (t *Twilio) SendTo(ctx context.Context, to, text string) error {
	if !t.Configured() || to == "" {
		return nil
	}
	base := strings.TrimRight(t.APIBase, "/")
	if base == "" {
		base = defaultTwilioAPI
	}
	form := url.Values{"From": {t.From}, "To": {to}, "Body": {text}}
	endpoint := base + "/2010-04-01/Accounts/" + url.PathEscape(t.AccountSID) + "/Messages.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(t.AccountSID, t.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client(t.Client).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkResponse(t.Name(), resp)
}

func client(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: 30 * time.Second}
}
