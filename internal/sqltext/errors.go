package sqltext

import (
	"errors"
	"fmt"
)

// Reason classifies why a statement was skipped instead of rewritten.
type Reason string

const (
	ReasonNotInsert                  Reason = "not_insert"
	ReasonMalformedNoColumnsOrValues Reason = "malformed_no_columns_or_values"
	ReasonMalformedNoValuesOpenParen Reason = "malformed_no_values_open_paren"
	ReasonMalformedValuesCloseParen  Reason = "malformed_values_close_paren"
	ReasonMultipleRows               Reason = "multiple_rows"
	ReasonFieldCountMismatch         Reason = "field_count_mismatch"
	ReasonMissingRequiredColumn      Reason = "missing_required_column"
	ReasonEmptyRequiredValue         Reason = "empty_required_value"
	ReasonLineTooLong                Reason = "line_too_long"
)

// Reasons lists every Reason in a stable order for reporting.
var Reasons = []Reason{
	ReasonNotInsert,
	ReasonMalformedNoColumnsOrValues,
	ReasonMalformedNoValuesOpenParen,
	ReasonMalformedValuesCloseParen,
	ReasonMultipleRows,
	ReasonFieldCountMismatch,
	ReasonMissingRequiredColumn,
	ReasonEmptyRequiredValue,
	ReasonLineTooLong,
}

// SkipError reports a statement that cannot be rewritten. It is always
// recoverable: callers log it and move to the next statement.
type SkipError struct {
	Reason Reason
	Detail string
	// Snippet is the head of the offending statement, for diagnostics.
	Snippet string
}

func (e *SkipError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("skip %s: %s", e.Reason, e.Snippet)
	}
	return fmt.Sprintf("skip %s (%s): %s", e.Reason, e.Detail, e.Snippet)
}

// ReasonOf extracts the Reason from err if it wraps a *SkipError.
func ReasonOf(err error) (Reason, bool) {
	var se *SkipError
	if errors.As(err, &se) {
		return se.Reason, true
	}
	return "", false
}

const snippetLen = 50

func skip(stmt string, reason Reason, format string, args ...any) *SkipError {
	snippet := stmt
	if r := []rune(snippet); len(r) > snippetLen {
		snippet = string(r[:snippetLen]) + "..."
	}
	detail := ""
	if format != "" {
		detail = fmt.Sprintf(format, args...)
	}
	return &SkipError{Reason: reason, Detail: detail, Snippet: snippet}
}
