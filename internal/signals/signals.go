// Package signals defines the market-signal sources consumed by autopilot scoring. Every fetch
// returns a Result: a value, or a SignalError saying why the source is absent.
package signals

import (
	"context"
	"fmt"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/apperr"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/quant"
)

type ErrorKind string

const (
	NotConfigured ErrorKind = "not_configured"
	RateLimited   ErrorKind = "rate_limited"
	Unavailable   ErrorKind = "unavailable"
	ParseError    ErrorKind = "parse_error"
)

type SignalError struct {
	Source string
	Kind   ErrorKind
	Err    error
}

func (e *SignalError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Source, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *SignalError) Unwrap() error { return e.Err }

func (e *SignalError) AppErrorKind() apperr.Kind { return apperr.KindSignalSource }

// Result is either a value or the reason the source could not supply one.
type Result[T any] struct {
	Value T
	Err   *SignalError
}

func OK[T any](v T) Result[T] { return Result[T]{Value: v} }

func Fail[T any](source string, kind ErrorKind, err error) Result[T] {
	return Result[T]{Err: &SignalError{Source: source, Kind: kind, Err: err}}
}

// Present reports whether the source produced a value.
func (r Result[T]) Present() bool { return r.Err == nil }

// Get returns the value and a nil error, or the zero value and the SignalError.
func (r Result[T]) Get() (T, error) {
	if r.Err != nil {
		var zero T
		return zero, r.Err
	}
	return r.Value, nil
}

type InsiderActivity struct {
	Buys  int `json:"buys"`
	Sells int `json:"sells"`
}

type Fundamentals struct {
	DebtEquity        *float64 `json:"debt_equity,omitempty"`
	Sector            string   `json:"sector,omitempty"`
	SectorExposurePct float64  `json:"sector_exposure_pct"`
}

type PriceSource interface {
	Bars(ctx context.Context, symbol string, lookbackDays int) Result[[]quant.Bar]
}

// TrendSource reports search-interest momentum, roughly in [-50, 50].
type TrendSource interface {
	Momentum(ctx context.Context, symbol string) Result[float64]
}

// BuzzSource reports social-media mention intensity; 1.5 and above is saturated.
type BuzzSource interface {
	Buzz(ctx context.Context, symbol string) Result[float64]
}

type InsiderSource interface {
	InsiderTrades(ctx context.Context, symbol string) Result[InsiderActivity]
}

type FundamentalsSource interface {
	Fundamentals(ctx context.Context, symbol string) Result[Fundamentals]
}

type DiscoverySource interface {
	Candidates(ctx context.Context) Result[[]string]
}

// Sources groups the optional providers. A nil member reads as NotConfigured.
type Sources struct {
	Prices       PriceSource
	Trends       TrendSource
	Buzz         BuzzSource
	Insider      InsiderSource
	Fundamentals FundamentalsSource
	Discovery    DiscoverySource
}

func (s Sources) FetchBars(ctx context.Context, symbol string, lookbackDays int) Result[[]quant.Bar] {
	if s.Prices == nil {
		return Fail[[]quant.Bar]("prices", NotConfigured, nil)
	}
	return s.Prices.Bars(ctx, symbol, lookbackDays)
}

func (s Sources) FetchMomentum(ctx context.Context, symbol string) Result[float64] {
	if s.Trends == nil {
		return Fail[float64]("trends", NotConfigured, nil)
	}
	return s.Trends.Momentum(ctx, symbol)
}

func (s Sources) FetchBuzz(ctx context.Context, symbol string) Result[float64] {
	if s.Buzz == nil {
		return Fail[float64]("buzz", NotConfigured, nil)
	}
	return s.Buzz.Buzz(ctx, symbol)
}

func (s Sources) FetchInsider(ctx context.Context, symbol string) Result[InsiderActivity] {
	if s.Insider == nil {
		return Fail[InsiderActivity]("insider", NotConfigured, nil)
	}
	return s.Insider.InsiderTrades(ctx, symbol)
}

func (s Sources) FetchFundamentals(ctx context.Context, symbol string) Result[Fundamentals] {
	if s.Fundamentals == nil {
		return Fail[Fundamentals]("fundamentals", NotConfigured, nil)
	}
	return s.Fundamentals.Fundamentals(ctx, symbol)
}

func (s Sources) FetchCandidates(ctx context.Context) Result[[]string] {
	if s.Discovery == nil {
		return Fail[[]string]("discovery", NotConfigured, nil)
	}
	return s.Discovery.Candidates(ctx)
}
