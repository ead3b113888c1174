// Package paper is a simulated brokerage account kept in the shared kv store:
// market fills only, no fees or slippage.
package paper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/apperr"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/kv"
)

const (
	PortfolioKey = "paper:portfolio:v1"
	TradesKey    = "paper:trades:v1"
)

type Position struct {
	Qty      decimal.Decimal `json:"qty"`
	AvgPrice decimal.Decimal `json:"avg_price"`
}

type Portfolio struct {
	Cash      decimal.Decimal     `json:"cash"`
	Positions map[string]Position `json:"positions"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Equity values positions at their average price.
func (p Portfolio) Equity() decimal.Decimal {
	total := p.Cash
	for _, pos := range p.Positions {
		total = total.Add(pos.Qty.Mul(pos.AvgPrice))
	}
	return total
}

type Trade struct {
	At     time.Time       `json:"ts"`
	Ticker string          `json:"ticker"`
	Side   string          `json:"side"`
	Qty    decimal.Decimal `json:"qty"`
	Price  decimal.Decimal `json:"price"`
}

type Ledger struct {
	mu        sync.Mutex
	kv        kv.Store
	startCash decimal.Decimal
	now       func() time.Time
}

func NewLedger(store kv.Store, startCash float64) *Ledger {
	return &Ledger{kv: store, startCash: decimal.NewFromFloat(startCash), now: time.Now}
}

// WithClock replaces the ledger's time source.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Portfolio returns the current portfolio, seeding it with the starting cash on first use.
func (l *Ledger) Portfolio(ctx context.Context) (Portfolio, error) {
	var p Portfolio
	err := kv.GetJSON(ctx, l.kv, PortfolioKey, &p)
	if errors.Is(err, kv.ErrNotFound) {
		p = Portfolio{Cash: l.startCash, Positions: map[string]Position{}, UpdatedAt: l.now().UTC()}
		return p, kv.SetJSON(ctx, l.kv, PortfolioKey, p)
	}
	if err != nil {
		return Portfolio{}, err
	}
	if p.Positions == nil {
		p.Positions = map[string]Position{}
	}
	return p, nil
}

func (l *Ledger) Trades(ctx context.Context) ([]Trade, error) {
	var trades []Trade
	err := kv.GetJSON(ctx, l.kv, TradesKey, &trades)
	if errors.Is(err, kv.ErrNotFound) {
		return []Trade{}, nil
	}
	return trades, err
}

// Apply fills a trade at price. BUY needs enough cash; SELL needs enough shares.
func (l *Ledger) Apply(ctx context.Context, ticker, side string, qty, price float64) (Portfolio, Trade, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	side = strings.ToUpper(strings.TrimSpace(side))
	if ticker == "" || (side != "BUY" && side != "SELL") || qty <= 0 || price <= 0 {
		return Portfolio{}, Trade{}, apperr.Validation("paper.apply", "invalid trade parameters")
	}
	q, px := decimal.NewFromFloat(qty), decimal.NewFromFloat(price)

	l.mu.Lock()
	defer l.mu.Unlock()

	p, err := l.Portfolio(ctx)
	if err != nil {
		return Portfolio{}, Trade{}, err
	}
	trades, err := l.Trades(ctx)
	if err != nil {
		return Portfolio{}, Trade{}, err
	}

	pos := p.Positions[ticker]
	switch side {
	case "BUY":
		cost := q.Mul(px)
		if p.Cash.LessThan(cost) {
			return Portfolio{}, Trade{}, apperr.Policy("paper.apply",
				"insufficient cash for BUY: need %s, have %s", cost.StringFixed(2), p.Cash.StringFixed(2))
		}
		newQty := pos.Qty.Add(q)
		pos.AvgPrice = pos.Qty.Mul(pos.AvgPrice).Add(cost).Div(newQty)
		pos.Qty = newQty
		p.Cash = p.Cash.Sub(cost)
	case "SELL":
		if pos.Qty.LessThan(q) {
			return Portfolio{}, Trade{}, apperr.Policy("paper.apply",
				"insufficient shares for SELL: have %s, tried to sell %s", pos.Qty.String(), q.String())
		}
		pos.Qty = pos.Qty.Sub(q)
		p.Cash = p.Cash.Add(q.Mul(px))
	}

	if pos.Qty.IsPositive() {
		p.Positions[ticker] = pos
	} else {
		delete(p.Positions, ticker)
	}

	now := l.now().UTC()
	p.UpdatedAt = now
	trade := Trade{At: now, Ticker: ticker, Side: side, Qty: q, Price: px}
	trades = append(trades, trade)

	if err := kv.SetJSON(ctx, l.kv, PortfolioKey, p); err != nil {
		return Portfolio{}, Trade{}, err
	}
	if err := kv.SetJSON(ctx, l.kv, TradesKey, trades); err != nil {
		return Portfolio{}, Trade{}, err
	}
	return p, trade, nil
}

func (t Trade) String() string {
	return fmt.Sprintf("%s %s %s @ %s", t.Side, t.Qty.String(), t.Ticker, t.Price.StringFixed(2))
}
