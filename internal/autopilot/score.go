// Package autopilot scores candidate symbols from market signals and turns strong, risk-approved
// candidates into trading proposals.
package autopilot

import (
	"math"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/quant"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/signals"
)

type Decision string

const (
	Buy  Decision = "BUY"
	Skip Decision = "SKIP"
)

type Weights struct {
	Momentum float64 `json:"momentum"`
	Buzz     float64 `json:"buzz"`
	Insider  float64 `json:"insider"`
	RSI      float64 `json:"rsi"`
	SMATrend float64 `json:"sma_trend"`
	Backtest float64 `json:"backtest"`
	Leverage float64 `json:"leverage"`
}

func DefaultWeights() Weights {
	return Weights{
		Momentum: 0.10,
		Buzz:     0.10,
		Insider:  0.05,
		RSI:      0.15,
		SMATrend: 0.15,
		Backtest: 0.25,
		Leverage: 0.10,
	}
}

// Inputs are the per-symbol signals. A nil field is an absent source.
type Inputs struct {
	Momentum   *float64
	Buzz       *float64
	Insider    *signals.InsiderActivity
	Snapshot   quant.Snapshot
	Backtest   *quant.Metrics
	DebtEquity *float64
}

// Breakdown is a score plus the normalized subscore of every source that contributed.
type Breakdown struct {
	Score float64            `json:"score"`
	Parts map[string]float64 `json:"parts"`
}

// Score is the weighted average of the present subscores, each in [0,1]. Absent sources drop
// out of both sums; with none present the score is 0.
func Score(in Inputs, w Weights) Breakdown {
	var sum, weight float64
	parts := map[string]float64{}
	add := func(name string, wt, sub float64) {
		parts[name] = sub
		sum += wt * sub
		weight += wt
	}

	if in.Momentum != nil {
		add("momentum", w.Momentum, clamp01((*in.Momentum+50)/100))
	}
	if in.Buzz != nil {
		add("buzz", w.Buzz, clamp01(*in.Buzz/1.5))
	}
	if in.Insider != nil {
		s := 0.5
		if total := in.Insider.Buys + in.Insider.Sells; total > 0 {
			s = float64(in.Insider.Buys) / float64(total)
		}
		add("insider", w.Insider, s)
	}
	if rsi := in.Snapshot.RSI14; rsi != nil {
		add("rsi", w.RSI, 1-math.Min(1, math.Abs(*rsi-55)/45))
	}
	if in.Snapshot.SMA20 != nil && in.Snapshot.SMA50 != nil {
		s := 0.0
		if *in.Snapshot.SMA20 > *in.Snapshot.SMA50 {
			s = 1
		}
		add("sma_trend", w.SMATrend, s)
	}
	if bt := in.Backtest; bt != nil {
		add("backtest", w.Backtest, 0.6*clamp01((bt.Sharpe+0.5)/2)+0.4*clamp01(1+bt.MDD))
	}
	if de := in.DebtEquity; de != nil {
		s := 0.0
		switch {
		case *de <= 1.5:
			s = 1
		case *de <= 3:
			s = 0.5
		}
		add("leverage", w.Leverage, s)
	}

	if weight <= 0 {
		return Breakdown{Score: 0, Parts: parts}
	}
	return Breakdown{Score: sum / weight, Parts: parts}
}

// Decide returns BUY only when risk sizing passed and the score reaches the threshold.
func Decide(riskOK bool, score, threshold float64) Decision {
	if riskOK && score >= threshold {
		return Buy
	}
	return Skip
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
