// Package db opens the local store's database handle and maintains its schema.
package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/atinyakov/TimeKeeper/internal/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS time_entries (
    id TEXT PRIMARY KEY,
    date TEXT NOT NULL,
    project TEXT NOT NULL,
    hours TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    remote_id TEXT NOT NULL DEFAULT '',
    last_error TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_time_entries_status ON time_entries (status, created_at, id);
CREATE INDEX IF NOT EXISTS idx_time_entries_date ON time_entries (date);

CREATE TABLE IF NOT EXISTS settings (
    id TEXT PRIMARY KEY,
    data TEXT NOT NULL
);
`

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know by default.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Open connects to the configured driver, verifies the connection and applies the schema.
// Every failure wraps repository.ErrStorageUnavailable so callers can refuse to proceed.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case "sqlite":
		return InitSQLite(ctx, dsn)
	case "postgres":
		return InitPostgres(ctx, dsn)
	}
	return nil, fmt.Errorf("%w: unsupported driver %q", repository.ErrStorageUnavailable, driver)
}

// connMaxLifetime is zero (never recycle) for an in-memory database, which lives
// only as long as its one connection.
func connMaxLifetime(path string) time.Duration {
	if path == ":memory:" {
		return 0
	}
	return time.Hour
}

// InitSQLite opens a sqlite file in WAL mode with a single connection.
func InitSQLite(ctx context.Context, path string) (*sqlx.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("%w: create data dir: %v", repository.ErrStorageUnavailable, err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", repository.ErrStorageUnavailable, err)
	}
	// sqlite supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(connMaxLifetime(path))

	if err := prepare(ctx, db, "sqlite"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// InitPostgres opens a PostgreSQL connection.
func InitPostgres(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open postgres: %v", repository.ErrStorageUnavailable, err)
	}
	if err := prepare(ctx, db, "postgres"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func prepare(ctx context.Context, db *sqlx.DB, name string) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping %s: %v", repository.ErrStorageUnavailable, name, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: create schema: %v", repository.ErrStorageUnavailable, err)
	}
	return nil
}
