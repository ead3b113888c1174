package quant

import (
	"fmt"
	"math"
)

type Metrics struct {
	CAGR   float64 `json:"cagr"`
	MDD    float64 `json:"mdd"`
	Sharpe float64 `json:"sharpe"`
	Trades float64 `json:"trades"`
}

type BacktestResult struct {
	Symbol   string    `json:"symbol"`
	Strategy string    `json:"strategy"`
	Metrics  Metrics   `json:"metrics"`
	Equity   []float64 `json:"-"`
}

// SMACrossover backtests a long-only strategy: hold while SMA(fast) > SMA(slow), trading on
// the next bar. With rsiFilter, entries are skipped above RSI 70 and exits deferred below 30.
func SMACrossover(bars []Bar, symbol string, fast, slow int, rsiFilter bool) BacktestResult {
	strategy := fmt.Sprintf("sma%d_%d", fast, slow)
	if rsiFilter {
		strategy += "_rsi"
	}
	res := BacktestResult{Symbol: symbol, Strategy: strategy}
	if len(bars) < max(fast, slow)+5 {
		res.Equity = make([]float64, len(bars))
		for i := range res.Equity {
			res.Equity[i] = 1
		}
		return res
	}

	closes := Closes(bars)
	fastMA := SMA(closes, fast)
	slowMA := SMA(closes, slow)
	rsi := RSI(closes, 14)

	n := len(bars)
	position := make([]float64, n)
	returns := make([]float64, n)
	equity := make([]float64, n)
	changes := 0
	for i := 0; i < n; i++ {
		if i > 0 {
			want := 0.0
			if fastMA[i-1] > slowMA[i-1] {
				want = 1
			}
			held := position[i-1]
			if rsiFilter && !math.IsNaN(rsi[i-1]) {
				if held == 0 && want == 1 && rsi[i-1] > 70 {
					want = 0
				}
				if held == 1 && want == 0 && rsi[i-1] < 30 {
					want = 1
				}
			}
			position[i] = want
			if want != held {
				changes++
			}
			if closes[i-1] != 0 {
				returns[i] = position[i] * (closes[i]/closes[i-1] - 1)
			}
		}
		prev := 1.0
		if i > 0 {
			prev = equity[i-1]
		}
		equity[i] = prev * (1 + returns[i])
	}

	days := bars[n-1].Time.Sub(bars[0].Time).Hours() / 24
	if days < 1 {
		days = 1
	}
	res.Equity = equity
	res.Metrics = Metrics{
		CAGR:   math.Pow(equity[n-1], 365/days) - 1,
		MDD:    maxDrawdown(equity),
		Sharpe: sharpe(returns),
		Trades: float64(changes) / 2,
	}
	return res
}

func maxDrawdown(equity []float64) float64 {
	peak := math.Inf(-1)
	mdd := 0.0
	for _, v := range equity {
		peak = math.Max(peak, v)
		if peak > 0 {
			mdd = math.Min(mdd, v/peak-1)
		}
	}
	return mdd
}

// sharpe annualizes mean/stddev of daily returns over 252 sessions, sample stddev.
func sharpe(returns []float64) float64 {
	n := len(returns)
	if n < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(n)
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / float64(n-1))
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(252)
}
