package signals

import (
	"context"
	"strings"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/quant"
)

// Watchlist is a fixed discovery source, normalized to upper-case and de-duplicated.
type Watchlist []string

func (w Watchlist) Candidates(context.Context) Result[[]string] {
	seen := map[string]bool{}
	out := []string{}
	for _, sym := range w {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	if len(out) == 0 {
		return Fail[[]string]("watchlist", NotConfigured, nil)
	}
	return OK(out)
}

// Static serves canned values per symbol. Missing symbols report Unavailable.
type Static struct {
	BarsBySymbol  map[string][]quant.Bar
	MomentumBy    map[string]float64
	BuzzBy        map[string]float64
	InsiderBy     map[string]InsiderActivity
	FundamentalBy map[string]Fundamentals
}

func (s *Static) Bars(_ context.Context, symbol string, _ int) Result[[]quant.Bar] {
	if bars, ok := s.BarsBySymbol[symbol]; ok {
		return OK(bars)
	}
	return Fail[[]quant.Bar]("static.bars", Unavailable, nil)
}

func (s *Static) Momentum(_ context.Context, symbol string) Result[float64] {
	if v, ok := s.MomentumBy[symbol]; ok {
		return OK(v)
	}
	return Fail[float64]("static.trends", Unavailable, nil)
}

func (s *Static) Buzz(_ context.Context, symbol string) Result[float64] {
	if v, ok := s.BuzzBy[symbol]; ok {
		return OK(v)
	}
	return Fail[float64]("static.buzz", Unavailable, nil)
}

func (s *Static) InsiderTrades(_ context.Context, symbol string) Result[InsiderActivity] {
	if v, ok := s.InsiderBy[symbol]; ok {
		return OK(v)
	}
	return Fail[InsiderActivity]("static.insider", Unavailable, nil)
}

func (s *Static) Fundamentals(_ context.Context, symbol string) Result[Fundamentals] {
	if v, ok := s.FundamentalBy[symbol]; ok {
		return OK(v)
	}
	return Fail[Fundamentals]("static.fundamentals", Unavailable, nil)
}
