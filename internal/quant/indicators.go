// Package quant computes indicator snapshots and a long-only SMA crossover backtest
// over daily bars.
package quant

import (
	"math"
	"time"
)

type Bar struct {
	Time   time.Time `json:"t"`
	Open   float64   `json:"o"`
	High   float64   `json:"h"`
	Low    float64   `json:"l"`
	Close  float64   `json:"c"`
	Volume float64   `json:"v"`
}

// Snapshot holds the latest value of each indicator; nil when history is too short.
type Snapshot struct {
	SMA20    *float64 `json:"sma_20"`
	SMA50    *float64 `json:"sma_50"`
	EMA20    *float64 `json:"ema_20"`
	RSI14    *float64 `json:"rsi_14"`
	MACDHist *float64 `json:"macd_hist"`
	ATR14    *float64 `json:"atr_14"`
}

func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// ComputeSnapshot evaluates every indicator at the last bar.
func ComputeSnapshot(bars []Bar) Snapshot {
	closes := Closes(bars)
	return Snapshot{
		SMA20:    last(SMA(closes, 20)),
		SMA50:    last(SMA(closes, 50)),
		EMA20:    lastIfLen(EMA(closes, 20), len(closes) >= 20),
		RSI14:    last(RSI(closes, 14)),
		MACDHist: lastIfLen(MACDHist(closes, 12, 26, 9), len(closes) >= 26),
		ATR14:    last(ATR(bars, 14)),
	}
}

func last(series []float64) *float64 {
	if len(series) == 0 {
		return nil
	}
	v := series[len(series)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func lastIfLen(series []float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return last(series)
}

// SMA is the rolling mean; entries before the window fills are NaN.
func SMA(xs []float64, window int) []float64 {
	out := make([]float64, len(xs))
	sum := 0.0
	for i, x := range xs {
		sum += x
		if i >= window {
			sum -= xs[i-window]
		}
		if i+1 < window || window <= 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(window)
	}
	return out
}

// EMA uses alpha = 2/(span+1), seeded with the first value.
func EMA(xs []float64, span int) []float64 {
	return ewm(xs, 2/(float64(span)+1))
}

func ewm(xs []float64, alpha float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		if i == 0 {
			out[i] = x
			continue
		}
		out[i] = out[i-1]*(1-alpha) + x*alpha
	}
	return out
}

// RSI uses Wilder smoothing (alpha = 1/window). NaN until window+1 closes are available,
// and NaN when there were no losses at all.
func RSI(closes []float64, window int) []float64 {
	n := len(closes)
	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}
	alpha := 1 / float64(window)
	avgGain := ewm(gains, alpha)
	avgLoss := ewm(losses, alpha)

	out := make([]float64, n)
	for i := range out {
		if i < window || avgLoss[i] == 0 {
			out[i] = math.NaN()
			continue
		}
		rs := avgGain[i] / avgLoss[i]
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// MACDHist returns macd - signal where macd = EMA(fast) - EMA(slow).
func MACDHist(closes []float64, fast, slow, signal int) []float64 {
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)
	line := make([]float64, len(closes))
	for i := range line {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	sig := EMA(line, signal)
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = line[i] - sig[i]
	}
	return out
}

// ATR smooths the true range with alpha = 1/window. NaN until window+1 bars exist.
func ATR(bars []Bar, window int) []float64 {
	tr := make([]float64, len(bars))
	for i, b := range bars {
		r := b.High - b.Low
		if i > 0 {
			prev := bars[i-1].Close
			r = math.Max(r, math.Max(math.Abs(b.High-prev), math.Abs(b.Low-prev)))
		}
		tr[i] = r
	}
	out := ewm(tr, 1/float64(window))
	for i := 0; i < len(out) && i < window; i++ {
		out[i] = math.NaN()
	}
	return out
}
