// Package mysql implements a MySQL-backed storage.Repository using
// database/sql and go-sql-driver/mysql. Dump files are MySQL dialect, so
// rewritten statements run here verbatim.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"docfill/internal/storage"
)

// Dialect uses backtick identifiers and "?" placeholders.
var Dialect = storage.QuestionDialect{Kind: "mysql", Quote: "`"}

// Config holds MySQL repository configuration.
type Config struct {
	DSN          string // e.g. "user:pass@tcp(localhost:3306)/journals?charset=utf8mb4"
	MaxOpenConns int
}

// Repository is a MySQL-backed implementation of storage.Repository.
type Repository struct {
	*storage.DB
	cfg Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	mc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql dsn: %w", err)
	}
	// Journal names are CJK; anything narrower than utf8mb4 mangles them.
	if mc.Params == nil {
		mc.Params = map[string]string{}
	}
	if _, ok := mc.Params["charset"]; !ok {
		mc.Params["charset"] = "utf8mb4"
	}

	conn, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(conn)
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxLifetime(3 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	closeFn := func() { _ = db.Close() }
	return &Repository{DB: storage.NewDB(db, Dialect), cfg: cfg}, closeFn, nil
}

// EnsureTable creates the metadata table if missing.
func EnsureTable(ctx context.Context, repo storage.Repository, s storage.Schema) error {
	q := storage.CreateTableSQL(repo.Dialect(), s, true,
		"BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY", "VARCHAR(255)")
	q += " DEFAULT CHARSET=utf8mb4"
	if _, err := repo.Exec(ctx, q); err != nil {
		return fmt.Errorf("mysql: create table %s: %w", s.Table, err)
	}
	return nil
}
