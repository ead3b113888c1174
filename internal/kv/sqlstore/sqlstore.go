// Package sqlstore is a kv.Store on SQLite (modernc.org/sqlite, no cgo).
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/kv"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens dsn and applies the kv schema.
func OpenSQLite(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := kv.Migrate(ctx, db, kv.DriverSQLite); err != nil {
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

func (s *Store) nowMillis() int64 { return s.now().UnixMilli() }

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_entries
WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`, key, s.nowMillis()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kv.ErrNotFound
	}
	return value, err
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.put(ctx, key, value, nil)
}

func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	expires := s.now().Add(ttl).UnixMilli()
	return s.put(ctx, key, value, &expires)
}

func (s *Store) put(ctx context.Context, key string, value []byte, expiresAt *int64) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO kv_entries(key, value, expires_at) VALUES(?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`, key, value, expiresAt)
	return err
}

func (s *Store) ScanPrefix(ctx context.Context, prefix string) ([]kv.Entry, error) {
	query := `SELECT key, value FROM kv_entries
WHERE key >= ? AND (expires_at IS NULL OR expires_at > ?)`
	args := []any{prefix, s.nowMillis()}
	if end := kv.PrefixEnd(prefix); end != "" {
		query += ` AND key < ?`
		args = append(args, end)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY key ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []kv.Entry{}
	for rows.Next() {
		var e kv.Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key)
	return err
}

// PurgeExpired removes rows whose TTL has passed. Reads already ignore them.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= ?`, s.nowMillis())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ kv.Store = (*Store)(nil)
