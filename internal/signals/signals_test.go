package signals

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/apperr"
)

func TestResult(t *testing.T) {
	ok := OK(1.5)
	assert.True(t, ok.Present())
	v, err := ok.Get()
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)

	failed := Fail[float64]("trends", RateLimited, errors.New("429"))
	assert.False(t, failed.Present())
	_, err = failed.Get()
	require.Error(t, err)
	assert.Equal(t, "trends: rate_limited: 429", err.Error())
	assert.Equal(t, apperr.KindSignalSource, apperr.KindOf(fmt.Errorf("wrap: %w", err)))
}

func TestSourcesNotConfigured(t *testing.T) {
	var s Sources
	ctx := context.Background()
	assert.Equal(t, NotConfigured, s.FetchBars(ctx, "A", 10).Err.Kind)
	assert.Equal(t, NotConfigured, s.FetchMomentum(ctx, "A").Err.Kind)
	assert.Equal(t, NotConfigured, s.FetchBuzz(ctx, "A").Err.Kind)
	assert.Equal(t, NotConfigured, s.FetchInsider(ctx, "A").Err.Kind)
	assert.Equal(t, NotConfigured, s.FetchFundamentals(ctx, "A").Err.Kind)
	assert.Equal(t, NotConfigured, s.FetchCandidates(ctx).Err.Kind)
}

func TestWatchlist(t *testing.T) {
	res := Watchlist{" aapl", "MSFT", "AAPL", ""}.Candidates(context.Background())
	require.True(t, res.Present())
	assert.Equal(t, []string{"AAPL", "MSFT"}, res.Value)

	assert.False(t, Watchlist{}.Candidates(context.Background()).Present())
}

func TestStatic(t *testing.T) {
	s := &Static{BuzzBy: map[string]float64{"AAPL": 0.75}}
	src := Sources{Buzz: s, Trends: s}
	assert.Equal(t, 0.75, src.FetchBuzz(context.Background(), "AAPL").Value)
	assert.Equal(t, Unavailable, src.FetchMomentum(context.Background(), "AAPL").Err.Kind)
}
