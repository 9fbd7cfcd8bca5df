package storage

import (
	"strconv"
	"strings"
)

// Dialect captures the SQL differences the application cares about.
type Dialect interface {
	// Name is the storage kind, used in log fields and error prefixes.
	Name() string

	// Placeholder returns the bind marker for the n-th argument (1-based).
	Placeholder(n int) string

	// QuoteIdent quotes a possibly schema-qualified identifier.
	QuoteIdent(name string) string

	// Page returns the fragments that restrict a SELECT to n rows: top goes
	// right after SELECT, limit at the end of the statement.
	Page(n int) (top, limit string)
}

// quoteWith quotes every dot-separated part of name with open/close,
// doubling any embedded close character.
func quoteWith(name string, open, close string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = open + strings.ReplaceAll(p, close, close+close) + close
	}
	return strings.Join(parts, ".")
}

// QuestionDialect is shared by backends that bind with "?" and LIMIT.
type QuestionDialect struct {
	Kind string
	// Quote is the identifier quote character, '"' or '`'.
	Quote string
}

func (d QuestionDialect) Name() string {
	return d.Kind
}

func (d QuestionDialect) Placeholder(int) string {
	return "?"
}

func (d QuestionDialect) QuoteIdent(n string) string {
	return quoteWith(n, d.Quote, d.Quote)
}

func (d QuestionDialect) Page(n int) (string, string) {
	return "", " LIMIT " + strconv.Itoa(n)
}

// PostgresDialect binds with $n.
type PostgresDialect struct{}

func (PostgresDialect) Name() string {
	return "postgres"
}

func (PostgresDialect) Placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func (PostgresDialect) QuoteIdent(n string) string {
	return quoteWith(n, `"`, `"`)
}

func (PostgresDialect) Page(n int) (string, string) {
	return "", " LIMIT " + strconv.Itoa(n)
}

// MSSQLDialect binds with @pN and pages with TOP.
type MSSQLDialect struct{}

func (MSSQLDialect) Name() string {
	return "mssql"
}

func (MSSQLDialect) Placeholder(n int) string {
	return "@p" + strconv.Itoa(n)
}

func (MSSQLDialect) QuoteIdent(n string) string {
	return quoteWith(n, "[", "]")
}

func (MSSQLDialect) Page(n int) (string, string) {
	return "TOP (" + strconv.Itoa(n) + ") ", ""
}
