// Package postgres implements a Postgres repository using pgx v5 through its
// database/sql adapter, so workers get the same *sql.Tx surface as every other
// backend.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"docfill/internal/storage"
)

// Config holds Postgres repository configuration.
type Config struct {
	DSN          string // connection string understood by pgx.ParseConfig
	MaxOpenConns int
}

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	*storage.DB
	cfg Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	pc, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgx config: %w", err)
	}
	db := stdlib.OpenDB(*pc)
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	closeFn := func() { _ = db.Close() }
	return &Repository{DB: storage.NewDB(db, storage.PostgresDialect{}), cfg: cfg}, closeFn, nil
}

// EnsureTable creates the metadata table if missing.
func EnsureTable(ctx context.Context, repo storage.Repository, s storage.Schema) error {
	q := storage.CreateTableSQL(repo.Dialect(), s, true, "BIGSERIAL PRIMARY KEY", "TEXT")
	if _, err := repo.Exec(ctx, q); err != nil {
		return fmt.Errorf("postgres: create table %s: %w", s.Table, err)
	}
	return nil
}
