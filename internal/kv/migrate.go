package kv

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"
)

//go:embed migrations/*/*.sql
var migrationsFS embed.FS

type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Migrate applies the embedded schema files for driver in name order, once each.
func Migrate(ctx context.Context, db *sql.DB, driver Driver) error {
	if db == nil {
		return fmt.Errorf("missing db")
	}
	dir, table, err := migrationLayout(driver)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  version TEXT PRIMARY KEY,
  applied_at TEXT NOT NULL
)`, table)); err != nil {
		return err
	}

	entries, err := migrationsFS.ReadDir(dir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	appliedAt := time.Now().UTC().Format(time.RFC3339)
	for _, name := range names {
		version := strings.TrimSuffix(name, ".sql")
		body, err := migrationsFS.ReadFile(path.Join(dir, name))
		if err != nil {
			return err
		}
		if err := applyMigration(ctx, db, driver, table, version, appliedAt, string(body)); err != nil {
			return fmt.Errorf("apply migration %s: %w", version, err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, driver Driver, table, version, appliedAt, body string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	insert := fmt.Sprintf(`INSERT INTO %s(version, applied_at) VALUES(?, ?) ON CONFLICT(version) DO NOTHING`, table)
	if driver == DriverPostgres {
		insert = fmt.Sprintf(`INSERT INTO %s(version, applied_at) VALUES($1, $2) ON CONFLICT(version) DO NOTHING`, table)
	}
	res, err := tx.ExecContext(ctx, insert, version, appliedAt)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, body); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func migrationLayout(driver Driver) (dir, table string, err error) {
	switch driver {
	case DriverSQLite:
		return "migrations/sqlite", "kv_schema_migrations", nil
	case DriverPostgres:
		return "migrations/postgres", "guardian_schema_migrations", nil
	default:
		return "", "", fmt.Errorf("unsupported kv driver: %s", driver)
	}
}
