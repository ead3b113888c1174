package kv

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store. Expired keys are dropped lazily on access.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]memEntry
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]memEntry), now: time.Now}
}

// WithClock replaces the clock used for TTL checks.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *MemoryStore) live(key string) ([]byte, bool) {
	e, ok := s.data[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.data, key)
		return nil, false
	}
	return e.value, true
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.live(key)
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = memEntry{value: append([]byte(nil), value...)}
	return nil
}

func (s *MemoryStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = memEntry{value: append([]byte(nil), value...), expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) ScanPrefix(_ context.Context, prefix string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Entry{}
	for key := range s.data {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if v, ok := s.live(key); ok {
			out = append(out, Entry{Key: key, Value: append([]byte(nil), v...)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
