// Package mssql implements a Microsoft SQL Server repository using
// go-mssqldb through database/sql.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"docfill/internal/storage"
)

// Config holds MSSQL repository configuration.
type Config struct {
	DSN          string
	MaxOpenConns int
}

// Repository is an MSSQL-backed implementation of storage.Repository.
type Repository struct {
	*storage.DB
	cfg Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	conn, err := mssql.NewConnector(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("mssql connector: %w", err)
	}
	db := sql.OpenDB(conn)
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
	return &Repository{DB: storage.NewDB(db, storage.MSSQLDialect{}), cfg: cfg}, closeFn, nil
}

// EnsureTable creates the metadata table if missing. SQL Server has no
// CREATE TABLE IF NOT EXISTS, so the statement is guarded by OBJECT_ID.
func EnsureTable(ctx context.Context, repo storage.Repository, s storage.Schema) error {
	create := storage.CreateTableSQL(repo.Dialect(), s, false,
		"BIGINT IDENTITY(1,1) PRIMARY KEY", "NVARCHAR(255)")
	q := fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL %s", s.Table, create)
	if _, err := repo.Exec(ctx, q); err != nil {
		return fmt.Errorf("mssql: create table %s: %w", s.Table, err)
	}
	return nil
}
