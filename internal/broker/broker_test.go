package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/apperr"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/config"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/signals"
)

func ptr(v float64) *float64 { return &v }

func testClient(url string) *Client {
	return &Client{
		APIKey: "key", APISecret: "secret", BaseURL: url, DataURL: url,
		NewClientOrderID: func() string { return "coid-1" },
	}
}

func TestPlaceBracketOrder(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/orders", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("APCA-API-KEY-ID"))
		assert.Equal(t, "secret", r.Header.Get("APCA-API-SECRET-KEY"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"ord-1","client_order_id":"coid-1","status":"accepted","symbol":"AAPL","side":"buy"}`))
	}))
	defer srv.Close()

	order, err := testClient(srv.URL).PlaceOrder(context.Background(), OrderRequest{
		Symbol: "aapl", Side: "BUY", Notional: ptr(500.25),
		OrderClass: "bracket", TakeProfit: ptr(110), StopLoss: ptr(95.5),
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", order.ID)
	assert.Equal(t, "accepted", order.Status)

	assert.Equal(t, "AAPL", got["symbol"])
	assert.Equal(t, "buy", got["side"])
	assert.Equal(t, "market", got["type"])
	assert.Equal(t, "day", got["time_in_force"])
	assert.Equal(t, "500.25", got["notional"])
	assert.Equal(t, "coid-1", got["client_order_id"])
	assert.Equal(t, map[string]any{"limit_price": "110"}, got["take_profit"])
	assert.Equal(t, map[string]any{"stop_price": "95.5"}, got["stop_loss"])
	assert.NotContains(t, got, "qty")
}

func TestPlaceOrderRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"insufficient buying power"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).PlaceOrder(context.Background(), OrderRequest{Symbol: "AAPL", Side: "buy", Qty: ptr(1)})
	var oe *OrderError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, http.StatusForbidden, oe.StatusCode)
	assert.Contains(t, oe.Msg, "insufficient buying power")
	assert.Equal(t, apperr.KindProvider, apperr.KindOf(err))
}

func TestPlaceOrderLocalValidation(t *testing.T) {
	c := testClient("http://127.0.0.1:0")
	cases := []OrderRequest{
		{Side: "buy", Qty: ptr(1)},
		{Symbol: "A", Side: "buy"},
		{Symbol: "A", Side: "buy", Qty: ptr(1), Notional: ptr(1)},
		{Symbol: "A", Side: "hold", Qty: ptr(1)},
		{Symbol: "A", Side: "buy", Qty: ptr(1), Type: "limit"},
		{Symbol: "A", Side: "buy", Qty: ptr(1), Type: "trailing"},
		{Symbol: "A", Side: "buy", Qty: ptr(1), OrderClass: "bracket"},
	}
	for _, req := range cases {
		_, err := c.PlaceOrder(context.Background(), req)
		var oe *OrderError
		assert.ErrorAs(t, err, &oe, "%+v", req)
	}

	_, err := (&Client{}).PlaceOrder(context.Background(), OrderRequest{Symbol: "A", Side: "buy", Qty: ptr(1)})
	assert.ErrorContains(t, err, "credentials")
}

func TestAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/account", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"a1","status":"ACTIVE","cash":"1000.50","equity":"2500","buying_power":"2000"}`))
	}))
	defer srv.Close()

	acct, err := testClient(srv.URL).Account(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2500", acct.Equity.String())
	assert.Equal(t, "1000.5", acct.Cash.String())
}

func TestBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/stocks/AAPL/bars":
			assert.Equal(t, "1Day", r.URL.Query().Get("timeframe"))
			_, _ = w.Write([]byte(`{"bars":[{"t":"2026-01-02T05:00:00Z","o":1,"h":2,"l":0.5,"c":1.5,"v":100}]}`))
		case "/v2/stocks/SLOW/bars":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			_, _ = w.Write([]byte(`not json`))
		}
	}))
	defer srv.Close()
	c := testClient(srv.URL)

	res := c.Bars(context.Background(), "aapl", 30)
	bars, err := res.Get()
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 1.5, bars[0].Close)

	var se *signals.SignalError
	require.ErrorAs(t, c.Bars(context.Background(), "SLOW", 30).Err, &se)
	assert.Equal(t, signals.RateLimited, se.Kind)

	require.ErrorAs(t, c.Bars(context.Background(), "JUNK", 30).Err, &se)
	assert.Equal(t, signals.ParseError, se.Kind)

	require.ErrorAs(t, (&Client{}).Bars(context.Background(), "AAPL", 30).Err, &se)
	assert.Equal(t, signals.NotConfigured, se.Kind)
}

func TestNewFromConfig(t *testing.T) {
	assert.Equal(t, paperTradingURL, NewFromConfig(config.TradingConfig{AlpacaPaper: true}).BaseURL)
	assert.Equal(t, liveTradingURL, NewFromConfig(config.TradingConfig{}).BaseURL)
	assert.Equal(t, "http://x", NewFromConfig(config.TradingConfig{AlpacaBaseURL: "http://x"}).BaseURL)
}
