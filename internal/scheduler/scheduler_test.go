package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped.Store(true) }

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers map[time.Duration]*fakeTicker
	created chan time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:     time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC),
		tickers: map[time.Duration]*fakeTicker{},
		created: make(chan time.Duration, 8),
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	t := &fakeTicker{ch: make(chan time.Time)}
	c.tickers[d] = t
	c.mu.Unlock()
	c.created <- d
	return t
}

// fire delivers one tick; the send blocks until the loop receives it.
func (c *fakeClock) fire(t *testing.T, d time.Duration) {
	t.Helper()
	c.mu.Lock()
	tk := c.tickers[d]
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()
	require.NotNil(t, tk)
	select {
	case tk.ch <- now:
	case <-time.After(2 * time.Second):
		t.Fatalf("loop with interval %s did not receive tick", d)
	}
}

func (c *fakeClock) waitTickers(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.created:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d tickers created", i, n)
		}
	}
}

func TestEveryValidates(t *testing.T) {
	s := New(Options{})
	job := func(context.Context) error { return nil }
	assert.Error(t, s.Every("zero", 0, false, job))
	require.NoError(t, s.Every("a", time.Second, false, job))
	assert.Error(t, s.Every("a", time.Second, false, job))
}

func TestLoopsSurviveErrorsAndPanics(t *testing.T) {
	clock := newFakeClock()
	logger, hook := test.NewNullLogger()
	s := New(Options{Clock: clock, Log: logger})

	var flaky, steady atomic.Int32
	done := make(chan struct{}, 16)
	require.NoError(t, s.Every("flaky", time.Minute, false, func(context.Context) error {
		n := flaky.Add(1)
		defer func() { done <- struct{}{} }()
		switch n {
		case 1:
			panic("boom")
		case 2:
			return errors.New("upstream down")
		}
		return nil
	}))
	require.NoError(t, s.Every("steady", time.Hour, true, func(context.Context) error {
		steady.Add(1)
		done <- struct{}{}
		return nil
	}))

	s.Start(context.Background())
	clock.waitTickers(t, 2)
	<-done // immediate run of steady

	for i := 0; i < 3; i++ {
		clock.fire(t, time.Minute)
		<-done
	}
	clock.fire(t, time.Hour)
	<-done
	s.Stop()

	assert.Equal(t, int32(3), flaky.Load())
	assert.Equal(t, int32(2), steady.Load())

	status := s.Status()
	require.Len(t, status, 2)
	assert.Equal(t, "flaky", status[0].Name)
	assert.Equal(t, 3, status[0].Runs)
	assert.Equal(t, 2, status[0].Failures)
	assert.Empty(t, status[0].LastError)
	assert.Equal(t, 2, status[1].Runs)

	var panicked bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Message == "scheduler: tick panicked" {
			panicked = true
		}
	}
	assert.True(t, panicked)

	clock.mu.Lock()
	defer clock.mu.Unlock()
	for _, tk := range clock.tickers {
		assert.True(t, tk.stopped.Load())
	}
}

func TestStopCancelsContext(t *testing.T) {
	clock := newFakeClock()
	s := New(Options{Clock: clock})
	started := make(chan struct{})
	var cancelled atomic.Bool
	require.NoError(t, s.Every("long", time.Minute, true, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}))
	s.Start(context.Background())
	<-started
	s.Stop()
	assert.True(t, cancelled.Load())
	assert.Error(t, s.Every("late", time.Minute, false, func(context.Context) error { return nil }))
}
