package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/quant"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/signals"
)

const barsSource = "alpaca_bars"

// Bars fetches daily bars from the market-data API. It satisfies signals.PriceSource.
func (c *Client) Bars(ctx context.Context, symbol string, lookbackDays int) signals.Result[[]quant.Bar] {
	if c.APIKey == "" || c.APISecret == "" {
		return signals.Fail[[]quant.Bar](barsSource, signals.NotConfigured, nil)
	}
	if lookbackDays <= 0 {
		lookbackDays = 365
	}
	base := strings.TrimRight(c.DataURL, "/")
	if base == "" {
		base = defaultDataURL
	}
	q := url.Values{
		"timeframe":  {"1Day"},
		"start":      {time.Now().UTC().AddDate(0, 0, -lookbackDays).Format("2006-01-02")},
		"limit":      {"10000"},
		"adjustment": {"split"},
	}
	endpoint := fmt.Sprintf("%s/v2/stocks/%s/bars?%s", base, url.PathEscape(strings.ToUpper(symbol)), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return signals.Fail[[]quant.Bar](barsSource, signals.Unavailable, err)
	}
	req.Header.Set("APCA-API-KEY-ID", c.APIKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.APISecret)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return signals.Fail[[]quant.Bar](barsSource, signals.Unavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return signals.Fail[[]quant.Bar](barsSource, signals.RateLimited, nil)
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return signals.Fail[[]quant.Bar](barsSource, signals.Unavailable,
			fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var payload struct {
		Bars []quant.Bar `json:"bars"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return signals.Fail[[]quant.Bar](barsSource, signals.ParseError, err)
	}
	if len(payload.Bars) == 0 {
		return signals.Fail[[]quant.Bar](barsSource, signals.Unavailable, fmt.Errorf("no bars for %s", symbol))
	}
	return signals.OK(payload.Bars)
}

var _ signals.PriceSource = (*Client)(nil)
