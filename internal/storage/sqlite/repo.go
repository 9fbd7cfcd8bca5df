// Package sqlite implements a SQLite-backed storage.Repository using
// database/sql and the pure-Go modernc driver.
//
// SQLite allows a single writer at a time, so the pool is pinned to one
// connection: concurrent BeginTx calls queue on the pool instead of failing
// with SQLITE_BUSY, and ":memory:" databases are shared by every caller.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"docfill/internal/storage"

	_ "modernc.org/sqlite" // registers driver "sqlite"
)

// Dialect is the SQLite dialect. SQLite also accepts MySQL-style backtick
// identifiers, which is what dump files use.
var Dialect = storage.QuestionDialect{Kind: "sqlite", Quote: `"`}

// Repository is a SQLite-backed implementation of storage.Repository.
type Repository struct {
	*storage.DB
	cfg Config
}

var _ storage.Repository = (*Repository)(nil)

// Close releases the connection pool.
func (r *Repository) Close() { _ = r.SQL().Close() }

// NewRepository opens a SQLite connection using the provided DSN and returns
// a Repository plus a Close function for cleanup.
//
// DSN is passed directly to database/sql; for example:
//
//	"file:docfill.db?_pragma=busy_timeout(5000)"
//	":memory:"
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}

	db, err := Open(cfg.DSN)
	if err != nil {
		return nil, nil, err
	}

	// Apply a basic ping with context to fail fast on invalid DSNs.
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	closeFn := func() { db.Close() }
	return &Repository{DB: storage.NewDB(db, Dialect), cfg: cfg}, closeFn, nil
}

// Open opens dsn with a single-connection pool.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return db, nil
}

// EnsureTable creates the metadata table if missing.
func EnsureTable(ctx context.Context, repo storage.Repository, s storage.Schema) error {
	q := storage.CreateTableSQL(repo.Dialect(), s, true, "INTEGER PRIMARY KEY", "TEXT")
	if _, err := repo.Exec(ctx, q); err != nil {
		return fmt.Errorf("sqlite: create table %s: %w", s.Table, err)
	}
	return nil
}
