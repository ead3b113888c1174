package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "pending:b", []byte("2")))
	require.NoError(t, s.Set(ctx, "pending:a", []byte("1")))
	require.NoError(t, s.Set(ctx, "other", []byte("x")))

	got, err := s.Get(ctx, "pending:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)

	entries, err := s.ScanPrefix(ctx, "pending:")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "pending:a", entries[0].Key)
	assert.Equal(t, "pending:b", entries[1].Key)

	require.NoError(t, s.Delete(ctx, "pending:a"))
	ok, err := Exists(ctx, s, "pending:a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore().WithClock(func() time.Time { return now })

	require.NoError(t, s.SetWithTTL(ctx, "notify:mute", []byte("1"), 10*time.Minute))
	ok, err := Exists(ctx, s, "notify:mute")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(10 * time.Minute)
	ok, err = Exists(ctx, s, "notify:mute")
	require.NoError(t, err)
	assert.False(t, ok)

	entries, err := s.ScanPrefix(ctx, "notify:")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	type report struct {
		Candidates []string `json:"candidates"`
	}
	require.NoError(t, SetJSON(ctx, s, "autopilot:last_run", report{Candidates: []string{"AAPL"}}))

	var got report
	require.NoError(t, GetJSON(ctx, s, "autopilot:last_run", &got))
	assert.Equal(t, []string{"AAPL"}, got.Candidates)
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, "pending;", PrefixEnd("pending:"))
	assert.Equal(t, "b", PrefixEnd("a\xff"))
	assert.Equal(t, "", PrefixEnd("\xff"))
	assert.Equal(t, "", PrefixEnd(""))
}
