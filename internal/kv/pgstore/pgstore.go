// Package pgstore is a kv.Store on PostgreSQL via lib/pq.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/lib/pq"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/kv"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func OpenPostgres(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := kv.Migrate(ctx, db, kv.DriverPostgres); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	row := s.db.QueryRowContext(ctx, `SELECT value FROM guardian_kv_entries
WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`, key, s.now().UnixMilli())
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, kv.ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.upsert(ctx, key, value, sql.NullInt64{})
}

func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.upsert(ctx, key, value, sql.NullInt64{Int64: s.now().Add(ttl).UnixMilli(), Valid: true})
}

func (s *Store) upsert(ctx context.Context, key string, value []byte, expiresAt sql.NullInt64) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO guardian_kv_entries(key, value, expires_at) VALUES($1, $2, $3)
ON CONFLICT(key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`, key, value, expiresAt)
	return err
}

// ScanPrefix compares raw prefixes and orders with the C collation so results match the
// byte ordering of the other stores.
func (s *Store) ScanPrefix(ctx context.Context, prefix string) ([]kv.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM guardian_kv_entries
WHERE left(key, length($1)) = $1 AND (expires_at IS NULL OR expires_at > $2)
ORDER BY key COLLATE "C" ASC`, prefix, s.now().UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []kv.Entry
	for rows.Next() {
		var e kv.Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if out == nil {
		out = []kv.Entry{}
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM guardian_kv_entries WHERE key = $1`, key)
	return err
}

var _ kv.Store = (*Store)(nil)
