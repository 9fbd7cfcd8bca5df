package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// DB adapts a *sql.DB to the transactional part of Repository. Backends embed
// it after opening their driver and add their own Close.
type DB struct {
	db      *sql.DB
	dialect Dialect
}

// NewDB wraps db with dialect d.
func NewDB(db *sql.DB, d Dialect) *DB {
	return &DB{db: db, dialect: d}
}

// BeginTx starts a transaction with the driver's default isolation level.
func (d *DB) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: begin tx: %w", d.dialect.Name(), err)
	}
	return tx, nil
}

// Exec runs query outside an explicit transaction. Blank queries are no-ops.
func (d *DB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if strings.TrimSpace(query) == "" {
		return 0, nil
	}
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: exec: %w", d.dialect.Name(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		// Some drivers do not report counts for DDL; that is not a failure.
		return 0, nil
	}
	return n, nil
}

// Dialect returns the backend dialect.
func (d *DB) Dialect() Dialect { return d.dialect }

// SQL exposes the wrapped pool, mainly for tests.
func (d *DB) SQL() *sql.DB { return d.db }
