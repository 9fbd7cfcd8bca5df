package mysql

import (
	"context"
	"errors"
	"strings"
	"testing"

	"docfill/internal/storage"
)

// Test that init() registration works and that storage.New constructs the repo
// via our adapter. We stub newRepository to avoid a real DB connection.
func TestAdapterRegistrationAndClose(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	var gotCfg Config
	closed := 0
	newRepository = func(ctx context.Context, cfg Config) (*Repository, func(), error) {
		gotCfg = cfg
		return &Repository{}, func() { closed++ }, nil
	}

	want := storage.Config{
		Kind:         "mysql",
		DSN:          "root:secret@tcp(localhost:3306)/journals",
		MaxOpenConns: 5,
	}
	repo, err := storage.New(context.Background(), want)
	if err != nil {
		t.Fatalf("storage.New error: %v", err)
	}
	if gotCfg.DSN != want.DSN || gotCfg.MaxOpenConns != 5 {
		t.Errorf("cfg = %+v, want DSN %q and MaxOpenConns 5", gotCfg, want.DSN)
	}

	repo.Close()
	if closed != 1 {
		t.Fatalf("close calls = %d, want 1", closed)
	}
}

func TestAdapterPropagatesErrors(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	boom := errors.New("dial refused")
	newRepository = func(ctx context.Context, cfg Config) (*Repository, func(), error) {
		return nil, nil, boom
	}
	_, err := storage.New(context.Background(), storage.Config{Kind: "mysql", DSN: "x"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
}

func TestNewRepository_BadDSN(t *testing.T) {
	t.Parallel()

	_, _, err := NewRepository(context.Background(), Config{DSN: "not a dsn"})
	if err == nil || !strings.Contains(err.Error(), "mysql dsn") {
		t.Fatalf("err = %v, want dsn parse error", err)
	}
}

type execRecorder struct {
	storage.Repository
	got string
}

func (e *execRecorder) Exec(ctx context.Context, q string, args ...any) (int64, error) {
	e.got = q
	return 0, nil
}

func (e *execRecorder) Dialect() storage.Dialect { return Dialect }

func TestEnsureTable_DDL(t *testing.T) {
	t.Parallel()

	rec := &execRecorder{}
	if err := EnsureTable(context.Background(), rec, storage.Schema{Table: "meta"}.WithDefaults()); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	want := "CREATE TABLE IF NOT EXISTS `meta` (`id` BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY, " +
		"`journal_name` VARCHAR(255), `year` VARCHAR(255), `phase` VARCHAR(255), `doc_id` VARCHAR(255)) DEFAULT CHARSET=utf8mb4"
	if rec.got != want {
		t.Fatalf("DDL =\n%s\nwant\n%s", rec.got, want)
	}
}
