// Package storage contains storage-agnostic contracts shared by the patch and
// rewrite paths, plus the registry that maps a storage kind ("sqlite",
// "mysql", "postgres", "mssql") to a backend constructor.
//
// Backends live in subpackages and register themselves at init time; import
// docfill/internal/storage/all to enable every built-in backend.
package storage

import (
	"context"
	"database/sql"
)

// Repository is the minimal storage surface the application depends on.
type Repository interface {
	// BeginTx starts a transaction on one dedicated connection. Statements
	// run through the returned Tx are not auto-committed.
	BeginTx(ctx context.Context) (Tx, error)

	// Exec runs a single statement outside any explicit transaction and
	// returns the affected row count where the driver reports one.
	Exec(ctx context.Context, query string, args ...any) (int64, error)

	// Dialect describes placeholder and quoting rules for the backend.
	Dialect() Dialect

	// Close releases the underlying pool.
	Close()
}

// Tx is the transaction surface used by workers. *sql.Tx satisfies it.
type Tx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Commit() error
	Rollback() error
}

var _ Tx = (*sql.Tx)(nil)

// Config is the backend-neutral connection configuration handed to factories.
type Config struct {
	// Kind selects the backend, e.g. "sqlite" or "mysql".
	Kind string

	// DSN is passed to the backend driver unchanged.
	DSN string

	// MaxOpenConns caps the pool. Zero leaves the backend default; the
	// rewrite path sets it to the worker count.
	MaxOpenConns int
}
