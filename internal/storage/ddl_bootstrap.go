package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Schema names the metadata table and the columns the application touches.
type Schema struct {
	Table       string
	ID          string
	JournalName string
	Year        string
	Phase       string
	DocID       string
}

// WithDefaults fills empty column names with the standard layout.
func (s Schema) WithDefaults() Schema {
	if s.ID == "" {
		s.ID = "id"
	}
	if s.JournalName == "" {
		s.JournalName = "journal_name"
	}
	if s.Year == "" {
		s.Year = "year"
	}
	if s.Phase == "" {
		s.Phase = "phase"
	}
	if s.DocID == "" {
		s.DocID = "doc_id"
	}
	return s
}

// DDLBootstrapper creates the metadata table described by s if it does not
// exist yet. Backends register one per storage kind at init time.
type DDLBootstrapper func(ctx context.Context, repo Repository, s Schema) error

var (
	ddlMu  sync.RWMutex
	ddlFns = map[string]DDLBootstrapper{}
)

// RegisterDDL registers (or replaces) a DDLBootstrapper for the given storage
// kind. It is typically called from backend packages' init() functions.
func RegisterDDL(kind string, fn DDLBootstrapper) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlFns[strings.ToLower(kind)] = fn
}

// EnsureTable locates the DDLBootstrapper for kind and invokes it. Callers do
// not need to know which backend they are using.
//
// If no DDL bootstrapper has been registered for the storage kind, an error
// is returned.
func EnsureTable(ctx context.Context, kind string, repo Repository, s Schema) error {
	ddlMu.RLock()
	fn, ok := ddlFns[strings.ToLower(kind)]
	ddlMu.RUnlock()
	if !ok {
		return fmt.Errorf("no DDL bootstrapper registered for storage.kind=%q", kind)
	}
	if strings.TrimSpace(s.Table) == "" {
		return fmt.Errorf("ensure table: table name must not be empty")
	}
	return fn(ctx, repo, s.WithDefaults())
}

// CreateTableSQL renders a CREATE TABLE statement for s using the dialect's
// quoting. idType is the full key definition (type and constraints) and
// textType is used for every other column.
func CreateTableSQL(d Dialect, s Schema, ifNotExists bool, idType, textType string) string {
	s = s.WithDefaults()
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	if ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(d.QuoteIdent(s.Table))
	b.WriteString(" (")
	b.WriteString(d.QuoteIdent(s.ID) + " " + idType)
	for _, c := range []string{s.JournalName, s.Year, s.Phase, s.DocID} {
		b.WriteString(", ")
		b.WriteString(d.QuoteIdent(c) + " " + textType)
	}
	b.WriteString(")")
	return b.String()
}
