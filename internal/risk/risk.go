// Package risk sizes long entries and derives ATR brackets. Everything here is pure.
package risk

import (
	"fmt"
	"math"
	"strings"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/config"
)

// DefaultDesiredPct is the share of equity proposed when the caller gives no notional.
const DefaultDesiredPct = 0.05

type Limits struct {
	MaxPositionPct      float64
	MaxSectorPct        float64
	DefaultStopATR      float64
	DefaultTakeProfitRR float64
}

func LimitsFromConfig(c config.RiskConfig) Limits {
	return Limits{
		MaxPositionPct:      c.MaxPositionPct,
		MaxSectorPct:        c.MaxSectorPct,
		DefaultStopATR:      c.DefaultStopATR,
		DefaultTakeProfitRR: c.DefaultTakeProfitRR,
	}
}

type Decision struct {
	OK              bool           `json:"ok"`
	Reason          string         `json:"reason"`
	Symbol          string         `json:"symbol"`
	Notional        float64        `json:"notional"`
	StopLossPrice   *float64       `json:"stop_loss_price,omitempty"`
	TakeProfitPrice *float64       `json:"take_profit_price,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// HasBracket reports whether both bracket legs are available.
func (d Decision) HasBracket() bool {
	return d.StopLossPrice != nil && d.TakeProfitPrice != nil
}

type Engine struct {
	limits Limits
}

func New(limits Limits) *Engine {
	return &Engine{limits: limits}
}

func (e *Engine) Limits() Limits { return e.limits }

// CapNotional clamps a proposed notional into [0, equity*MaxPositionPct].
// A NaN proposal or a non-finite limit caps to 0.
func (e *Engine) CapNotional(equity, proposed float64) float64 {
	limit := equity * e.limits.MaxPositionPct
	if !finite(limit) || math.IsNaN(proposed) {
		return 0
	}
	n := min(proposed, limit)
	if !(n > 0) {
		return 0
	}
	return n
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// positive is false for NaN and infinities.
func positive(v float64) bool {
	return v > 0 && finite(v)
}

// ComputeBracket returns stop = last - atr*stopMult and tp = last + (last-stop)*rrMult.
// Zero multipliers use the configured defaults. Either leg is nil when not strictly positive.
func (e *Engine) ComputeBracket(lastPrice float64, atr *float64, stopMult, rrMult float64) (stop, takeProfit *float64) {
	if !positive(lastPrice) || atr == nil || !positive(*atr) {
		return nil, nil
	}
	if stopMult == 0 {
		stopMult = e.limits.DefaultStopATR
	}
	if rrMult == 0 {
		rrMult = e.limits.DefaultTakeProfitRR
	}
	s := lastPrice - *atr*stopMult
	tp := lastPrice + (lastPrice-s)*rrMult
	if positive(s) {
		stop = &s
	}
	if positive(tp) {
		takeProfit = &tp
	}
	return stop, takeProfit
}

// AssessLongTrade sizes a long entry. desiredNotional nil means DefaultDesiredPct of equity.
func (e *Engine) AssessLongTrade(symbol string, lastPrice, equity, sectorExposurePct float64, atr, desiredNotional *float64) Decision {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return Decision{Reason: "Missing symbol"}
	}
	if !positive(lastPrice) {
		return Decision{Reason: "Invalid last_price", Symbol: symbol}
	}
	if !(sectorExposurePct <= e.limits.MaxSectorPct) {
		return Decision{
			Reason: fmt.Sprintf("Sector exposure cap exceeded (%.2f > %.2f)", sectorExposurePct, e.limits.MaxSectorPct),
			Symbol: symbol,
		}
	}

	desired := equity * DefaultDesiredPct
	if desiredNotional != nil {
		desired = *desiredNotional
	}
	notional := e.CapNotional(equity, desired)
	if !(notional > 0) {
		return Decision{Reason: "Notional capped to 0", Symbol: symbol}
	}

	stop, tp := e.ComputeBracket(lastPrice, atr, 0, 0)
	var atrValue any
	if atr != nil {
		atrValue = *atr
	}
	return Decision{
		OK:              true,
		Reason:          "OK",
		Symbol:          symbol,
		Notional:        notional,
		StopLossPrice:   stop,
		TakeProfitPrice: tp,
		Metadata: map[string]any{
			"equity":              equity,
			"sector_exposure_pct": sectorExposurePct,
			"atr_14":              atrValue,
			"max_position_pct":    e.limits.MaxPositionPct,
		},
	}
}
