// Package broker places orders and reads account and market data from an Alpaca-style REST API.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/apperr"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/config"
)

const (
	paperTradingURL = "https://paper-api.alpaca.markets"
	liveTradingURL  = "https://api.alpaca.markets"
	defaultDataURL  = "https://data.alpaca.markets"
)

// OrderError is any rejected or failed order request.
type OrderError struct {
	StatusCode int
	Msg        string
}

func (e *OrderError) Error() string {
	if e.StatusCode == 0 {
		return "alpaca order error: " + e.Msg
	}
	return fmt.Sprintf("alpaca order error (%d): %s", e.StatusCode, e.Msg)
}

func (e *OrderError) AppErrorKind() apperr.Kind { return apperr.KindProvider }

type Client struct {
	APIKey    string
	APISecret string
	BaseURL   string
	DataURL   string
	HTTP      *http.Client
	// NewClientOrderID defaults to uuid.NewString.
	NewClientOrderID func() string
}

func NewFromConfig(cfg config.TradingConfig) *Client {
	base := cfg.AlpacaBaseURL
	if base == "" {
		base = liveTradingURL
		if cfg.AlpacaPaper {
			base = paperTradingURL
		}
	}
	return &Client{
		APIKey:    cfg.AlpacaAPIKey,
		APISecret: cfg.AlpacaAPISecret,
		BaseURL:   base,
		DataURL:   defaultDataURL,
		HTTP:      &http.Client{Timeout: 20 * time.Second},
	}
}

type OrderRequest struct {
	Symbol        string
	Side          string
	Qty           *float64
	Notional      *float64
	Type          string
	TimeInForce   string
	LimitPrice    *float64
	StopPrice     *float64
	ExtendedHours bool
	// OrderClass "bracket" attaches TakeProfit and StopLoss legs.
	OrderClass    string
	TakeProfit    *float64
	StopLoss      *float64
	ClientOrderID string
}

type Order struct {
	ID            string `json:"id"`
	ClientOrderID string `json:"client_order_id"`
	Status        string `json:"status"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Qty           string `json:"qty,omitempty"`
	Notional      string `json:"notional,omitempty"`
	OrderClass    string `json:"order_class,omitempty"`
}

func price(v float64) string {
	return decimal.NewFromFloat(v).String()
}

func (r OrderRequest) payload() (map[string]any, error) {
	symbol := strings.ToUpper(strings.TrimSpace(r.Symbol))
	if symbol == "" {
		return nil, &OrderError{Msg: "missing symbol"}
	}
	if (r.Qty == nil) == (r.Notional == nil) {
		return nil, &OrderError{Msg: "provide exactly one of qty or notional"}
	}
	side := strings.ToLower(r.Side)
	if side != "buy" && side != "sell" {
		return nil, &OrderError{Msg: "side must be buy or sell"}
	}
	typ := strings.ToLower(r.Type)
	if typ == "" {
		typ = "market"
	}
	tif := strings.ToLower(r.TimeInForce)
	if tif == "" {
		tif = "day"
	}

	p := map[string]any{
		"symbol":         symbol,
		"side":           side,
		"type":           typ,
		"time_in_force":  tif,
		"extended_hours": r.ExtendedHours,
	}
	if r.ClientOrderID != "" {
		p["client_order_id"] = r.ClientOrderID
	}
	if r.Qty != nil {
		p["qty"] = price(*r.Qty)
	}
	if r.Notional != nil {
		p["notional"] = price(*r.Notional)
	}

	switch typ {
	case "market":
	case "limit", "stop", "stop_limit":
		if (typ == "limit" || typ == "stop_limit") && r.LimitPrice == nil {
			return nil, &OrderError{Msg: "limit_price required for limit/stop_limit"}
		}
		if (typ == "stop" || typ == "stop_limit") && r.StopPrice == nil {
			return nil, &OrderError{Msg: "stop_price required for stop/stop_limit"}
		}
		if r.LimitPrice != nil {
			p["limit_price"] = price(*r.LimitPrice)
		}
		if r.StopPrice != nil {
			p["stop_price"] = price(*r.StopPrice)
		}
	default:
		return nil, &OrderError{Msg: "unsupported order type " + typ}
	}

	if r.OrderClass != "" {
		p["order_class"] = r.OrderClass
	}
	if r.OrderClass == "bracket" {
		if r.TakeProfit == nil || r.StopLoss == nil {
			return nil, &OrderError{Msg: "bracket requires take_profit and stop_loss"}
		}
		p["take_profit"] = map[string]string{"limit_price": price(*r.TakeProfit)}
		p["stop_loss"] = map[string]string{"stop_price": price(*r.StopLoss)}
	}
	return p, nil
}

// PlaceOrder submits an order. Every failure, local or remote, is an *OrderError.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (Order, error) {
	if c.APIKey == "" || c.APISecret == "" {
		return Order{}, &OrderError{Msg: "missing Alpaca API credentials"}
	}
	if req.ClientOrderID == "" {
		newID := c.NewClientOrderID
		if newID == nil {
			newID = uuid.NewString
		}
		req.ClientOrderID = newID()
	}
	payload, err := req.payload()
	if err != nil {
		return Order{}, err
	}

	var order Order
	if err := c.do(ctx, http.MethodPost, c.tradingURL()+"/v2/orders", payload, &order); err != nil {
		return Order{}, err
	}
	return order, nil
}

type Account struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Cash        decimal.Decimal `json:"cash"`
	Equity      decimal.Decimal `json:"equity"`
	BuyingPower decimal.Decimal `json:"buying_power"`
}

func (c *Client) Account(ctx context.Context) (Account, error) {
	var acct Account
	err := c.do(ctx, http.MethodGet, c.tradingURL()+"/v2/account", nil, &acct)
	return acct, err
}

func (c *Client) tradingURL() string {
	return strings.TrimRight(c.BaseURL, "/")
}

func (c *Client) do(ctx context.Context, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &OrderError{Msg: err.Error()}
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return &OrderError{Msg: err.Error()}
	}
	req.Header.Set("APCA-API-KEY-ID", c.APIKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.APISecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return &OrderError{Msg: err.Error()}
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(data))
		if len(msg) > 500 {
			msg = msg[:500]
		}
		return &OrderError{StatusCode: resp.StatusCode, Msg: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &OrderError{StatusCode: resp.StatusCode, Msg: "decode response: " + err.Error()}
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}
