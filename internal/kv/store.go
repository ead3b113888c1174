// Package kv is the shared key-value store behind pending records, notification state,
// the paper ledger and autopilot reports. Writes are last-write-wins; there are no transactions.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("kv: key not found")

type Entry struct {
	Key   string
	Value []byte
}

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetWithTTL stores a value that reads as missing once ttl has elapsed.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// ScanPrefix returns live entries whose key starts with prefix, ordered by key.
	ScanPrefix(ctx context.Context, prefix string) ([]Entry, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// GetJSON decodes the value at key into v.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, raw)
}

// Exists reports whether key holds a live value.
func Exists(ctx context.Context, s Store, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// PrefixEnd returns the smallest string greater than every string with the given prefix,
// for range scans. An empty result means the scan is unbounded above.
func PrefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}
