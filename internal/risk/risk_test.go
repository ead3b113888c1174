package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func testEngine() *Engine {
	return New(Limits{MaxPositionPct: 0.10, MaxSectorPct: 0.30, DefaultStopATR: 2.0, DefaultTakeProfitRR: 2.0})
}

func TestComputeBracket(t *testing.T) {
	e := testEngine()
	stop, tp := e.ComputeBracket(100, f(2), 2.0, 2.0)
	require.NotNil(t, stop)
	require.NotNil(t, tp)
	assert.InDelta(t, 96.0, *stop, 1e-9)
	assert.InDelta(t, 108.0, *tp, 1e-9)

	stop, tp = e.ComputeBracket(100, f(2), 0, 0)
	assert.InDelta(t, 96.0, *stop, 1e-9)
	assert.InDelta(t, 108.0, *tp, 1e-9)
}

func TestComputeBracketMissingInputs(t *testing.T) {
	e := testEngine()
	for name, tc := range map[string]struct {
		last float64
		atr  *float64
	}{
		"zero price": {0, f(2)},
		"nil atr":    {100, nil},
		"zero atr":   {100, f(0)},
	} {
		stop, tp := e.ComputeBracket(tc.last, tc.atr, 2, 2)
		assert.Nil(t, stop, name)
		assert.Nil(t, tp, name)
	}

	stop, tp := e.ComputeBracket(10, f(6), 2, 2)
	assert.Nil(t, stop)
	require.NotNil(t, tp)
	assert.InDelta(t, 34.0, *tp, 1e-9)
}

func TestAssessLongTradeDefaultNotional(t *testing.T) {
	d := testEngine().AssessLongTrade("aapl", 100, 100_000, 0, nil, nil)
	require.True(t, d.OK)
	assert.Equal(t, "AAPL", d.Symbol)
	assert.InDelta(t, 5000.0, d.Notional, 1e-9)
	assert.False(t, d.HasBracket())
	assert.Equal(t, 0.10, d.Metadata["max_position_pct"])
}

func TestAssessLongTradeNotionalBounds(t *testing.T) {
	e := testEngine()
	for _, desired := range []float64{-50, 0.5, 5_000, 9_999, 10_000, 50_000, 1e9} {
		d := e.AssessLongTrade("MSFT", 50, 100_000, 0, f(1.5), f(desired))
		assert.GreaterOrEqual(t, d.Notional, 0.0)
		assert.LessOrEqual(t, d.Notional, 100_000*0.10)
	}

	d := e.AssessLongTrade("MSFT", 50, 100_000, 0, f(1.5), f(50_000))
	assert.InDelta(t, 10_000.0, d.Notional, 1e-9)
	assert.True(t, d.HasBracket())

	d = e.AssessLongTrade("MSFT", 50, 100_000, 0, f(1.5), f(math.Inf(1)))
	assert.True(t, d.OK)
	assert.InDelta(t, 10_000.0, d.Notional, 1e-9)

	nan := math.NaN()
	for _, tc := range []struct {
		name                      string
		lastPrice, equity, sector float64
		desired                   *float64
		reason                    string
	}{
		{"desired NaN", 50, 100_000, 0, f(nan), "Notional capped to 0"},
		{"equity NaN", 50, nan, 0, nil, "Notional capped to 0"},
		{"equity Inf", 50, math.Inf(1), 0, nil, "Notional capped to 0"},
		{"desired -Inf", 50, 100_000, 0, f(math.Inf(-1)), "Notional capped to 0"},
		{"last price NaN", nan, 100_000, 0, nil, "Invalid last_price"},
		{"last price Inf", math.Inf(1), 100_000, 0, nil, "Invalid last_price"},
		{"sector NaN", 50, 100_000, nan, nil, "Sector exposure cap exceeded (NaN > 0.30)"},
	} {
		d := e.AssessLongTrade("MSFT", tc.lastPrice, tc.equity, tc.sector, f(1.5), tc.desired)
		assert.False(t, d.OK, tc.name)
		assert.Equal(t, tc.reason, d.Reason, tc.name)
		assert.Zero(t, d.Notional, tc.name)
	}
}

func TestCapNotionalNeverNaN(t *testing.T) {
	e := testEngine()
	assert.Zero(t, e.CapNotional(100_000, math.NaN()))
	assert.Zero(t, e.CapNotional(math.NaN(), 10))
	assert.Zero(t, e.CapNotional(-100, 10))
	assert.InDelta(t, 10.0, e.CapNotional(100_000, 10), 1e-9)
}

func TestComputeBracketRejectsNonFiniteATR(t *testing.T) {
	e := testEngine()
	stop, tp := e.ComputeBracket(50, f(math.Inf(1)), 0, 0)
	assert.Nil(t, stop)
	assert.Nil(t, tp)
	stop, tp = e.ComputeBracket(50, f(math.NaN()), 0, 0)
	assert.Nil(t, stop)
	assert.Nil(t, tp)
}

func TestAssessLongTradeRejections(t *testing.T) {
	e := testEngine()

	d := e.AssessLongTrade("  ", 10, 1000, 0, nil, nil)
	assert.False(t, d.OK)
	assert.Equal(t, "Missing symbol", d.Reason)

	d = e.AssessLongTrade("X", 0, 1000, 0, nil, nil)
	assert.Equal(t, "Invalid last_price", d.Reason)

	d = e.AssessLongTrade("X", 10, 1000, 0.45, nil, nil)
	assert.Equal(t, "Sector exposure cap exceeded (0.45 > 0.30)", d.Reason)

	d = e.AssessLongTrade("X", 10, 1000, 0, nil, f(-1))
	assert.False(t, d.OK)
	assert.Equal(t, "Notional capped to 0", d.Reason)
	assert.Zero(t, d.Notional)
}

func TestAssessLongTradeDeterministic(t *testing.T) {
	e := testEngine()
	a := e.AssessLongTrade("NVDA", 120, 50_000, 0.1, f(3), nil)
	b := e.AssessLongTrade("NVDA", 120, 50_000, 0.1, f(3), nil)
	assert.Equal(t, a, b)
}
