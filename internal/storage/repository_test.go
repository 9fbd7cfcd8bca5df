package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

// fakeRepo is a minimal Repository implementation for tests.
type fakeRepo struct {
	closed bool
}

func (f *fakeRepo) BeginTx(ctx context.Context) (Tx, error) { return nil, errors.New("no tx") }
func (f *fakeRepo) Exec(ctx context.Context, q string, args ...any) (int64, error) {
	return 0, nil
}
func (f *fakeRepo) Dialect() Dialect { return QuestionDialect{Kind: "fake", Quote: `"`} }
func (f *fakeRepo) Close()           { f.closed = true }

// TestRegisterAndNew_Success verifies that registering a backend enables New()
// to return the corresponding repository.
func TestRegisterAndNew_Success(t *testing.T) {
	t.Parallel()

	kind := "fake"
	Register(kind, func(ctx context.Context, cfg Config) (Repository, error) {
		return &fakeRepo{}, nil
	})

	repo, err := New(context.Background(), Config{Kind: kind})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if repo == nil {
		t.Fatalf("New returned nil repo")
	}

	// Ensure ListKinds contains the registered kind.
	kinds := ListKinds()
	found := false
	for _, k := range kinds {
		if k == kind {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("registered kind %q not present in ListKinds: %v", kind, kinds)
	}
}

// TestNew_KindIsCaseInsensitive checks "SQLite" and "sqlite" resolve alike.
func TestNew_KindIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	Register("mixedcase", func(ctx context.Context, cfg Config) (Repository, error) {
		return &fakeRepo{}, nil
	})
	if _, err := New(context.Background(), Config{Kind: "MixedCase"}); err != nil {
		t.Fatalf("New error: %v", err)
	}
}

// TestNew_Unsupported verifies that unsupported kinds return a helpful error.
func TestNew_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Kind: "does-not-exist"})
	if err == nil {
		t.Fatalf("expected error for unsupported kind")
	}
	if got, want := err.Error(), "unsupported storage.kind=does-not-exist"; got != want {
		t.Fatalf("error = %q, want %q", got, want)
	}
}

// TestRegister_Override verifies that re-registering a kind overrides the
// previous factory (useful for tests and dynamic wiring).
func TestRegister_Override(t *testing.T) {
	t.Parallel()

	kind := "override"
	calls := 0

	Register(kind, func(ctx context.Context, cfg Config) (Repository, error) {
		calls++
		return &fakeRepo{}, nil
	})
	Register(kind, func(ctx context.Context, cfg Config) (Repository, error) {
		calls += 10
		return &fakeRepo{}, nil
	})

	_, err := New(context.Background(), Config{Kind: kind})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if calls != 10 { // only the second factory should have been used
		t.Fatalf("factory call count = %d, want 10", calls)
	}
}

// TestListKinds_Snapshot performs a shallow sanity check that ListKinds returns
// a copy (mutations by caller do not affect internal registry).
func TestListKinds_Snapshot(t *testing.T) {
	t.Parallel()

	k := "snap"
	Register(k, func(ctx context.Context, cfg Config) (Repository, error) { return &fakeRepo{}, nil })

	a := ListKinds()
	if len(a) == 0 {
		t.Fatalf("ListKinds empty after registration")
	}
	// Mutate the returned slice; registry should be unaffected.
	a[0] = "mutated"

	b := ListKinds()
	if reflect.DeepEqual(a, b) {
		t.Fatalf("ListKinds returned same slice; want snapshot copy")
	}
}

// TestRegister_AllowsErrors shows factories can return errors that bubble up.
func TestRegister_AllowsErrors(t *testing.T) {
	t.Parallel()

	kind := "errkind"
	want := errors.New("boom")

	Register(kind, func(ctx context.Context, cfg Config) (Repository, error) {
		return nil, want
	})

	_, err := New(context.Background(), Config{Kind: kind})
	if !errors.Is(err, want) {
		t.Fatalf("want %v, got %v", want, err)
	}
}

func TestDialects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		d           Dialect
		ph          string
		ident       string
		top, limit  string
	}{
		{d: QuestionDialect{Kind: "mysql", Quote: "`"}, ph: "?", ident: "`db`.`t`", limit: " LIMIT 5"},
		{d: QuestionDialect{Kind: "sqlite", Quote: `"`}, ph: "?", ident: `"db"."t"`, limit: " LIMIT 5"},
		{d: PostgresDialect{}, ph: "$2", ident: `"db"."t"`, limit: " LIMIT 5"},
		{d: MSSQLDialect{}, ph: "@p2", ident: "[db].[t]", top: "TOP (5) "},
	}
	for _, tc := range tests {
		if got := tc.d.Placeholder(2); got != tc.ph {
			t.Errorf("%s Placeholder(2) = %q, want %q", tc.d.Name(), got, tc.ph)
		}
		if got := tc.d.QuoteIdent("db.t"); got != tc.ident {
			t.Errorf("%s QuoteIdent = %q, want %q", tc.d.Name(), got, tc.ident)
		}
		top, limit := tc.d.Page(5)
		if top != tc.top || limit != tc.limit {
			t.Errorf("%s Page(5) = (%q, %q), want (%q, %q)", tc.d.Name(), top, limit, tc.top, tc.limit)
		}
	}
}

func TestCreateTableSQL(t *testing.T) {
	t.Parallel()

	got := CreateTableSQL(PostgresDialect{}, Schema{Table: "public.meta"}, true, "BIGSERIAL PRIMARY KEY", "TEXT")
	want := `CREATE TABLE IF NOT EXISTS "public"."meta" ("id" BIGSERIAL PRIMARY KEY, "journal_name" TEXT, "year" TEXT, "phase" TEXT, "doc_id" TEXT)`
	if got != want {
		t.Fatalf("CreateTableSQL =\n%s\nwant\n%s", got, want)
	}
}

func TestEnsureTable_UnknownKind(t *testing.T) {
	t.Parallel()

	err := EnsureTable(context.Background(), "nope", &fakeRepo{}, Schema{Table: "t"})
	if err == nil {
		t.Fatal("expected error for unregistered DDL kind")
	}
}
