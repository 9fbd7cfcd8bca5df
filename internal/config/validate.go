package config

import (
	"fmt"
	"net/url"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is a dotted path into the config (e.g. "storage.db.dsn",
// "source.locations[1]"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be returned as one.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidateJob performs static checks over j and returns every finding. It
// does not mutate j. Call it on j.WithDefaults() so unset runtime values are
// not reported.
func ValidateJob(j Job) []Issue {
	var issues []Issue

	if strings.TrimSpace(j.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it labels metrics and log lines",
		})
	}
	issues = append(issues, validateSource(j.Source)...)
	issues = append(issues, validateStorage(j.Storage)...)
	issues = append(issues, validateRewrite(j.Rewrite)...)
	issues = append(issues, validateRuntime(j.Runtime)...)
	issues = append(issues, validateMetrics(j.Metrics)...)

	return issues
}

// validateSource checks dump locations. Having none is fine: the patch
// command does not read dumps and rewrite takes them as arguments.
func validateSource(s Source) []Issue {
	var issues []Issue

	for i, loc := range s.Locations {
		path := fmt.Sprintf("source.locations[%d]", i)
		if strings.TrimSpace(loc) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path,
				Message:  "location must not be empty",
			})
			continue
		}
		if strings.HasPrefix(loc, "s3://") {
			u, err := url.Parse(loc)
			if err != nil || u.Host == "" || strings.Trim(u.Path, "/") == "" {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path,
					Message:  fmt.Sprintf("%q is not of the form s3://bucket/key", loc),
				})
			}
		}
	}
	if s.HTTP.MaxRetries < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.http.max_retries",
			Message:  "max_retries must not be negative",
		})
	}
	if s.HTTP.Timeout < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.http.timeout",
			Message:  "timeout must not be negative",
		})
	}

	return issues
}

// validateStorage validates storage configuration and DB settings.
func validateStorage(s Storage) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  "storage.kind must not be empty",
		})
	} else {
		known := map[string]struct{}{
			"mysql":    {},
			"postgres": {},
			"mssql":    {},
			"sqlite":   {},
		}
		if _, ok := known[strings.ToLower(s.Kind)]; !ok {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "storage.kind",
				Message:  fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", s.Kind),
			})
		}
	}

	db := s.DB
	if strings.TrimSpace(db.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.db.dsn",
			Message:  "storage.db.dsn must not be empty (set it in the file, DOCFILL_DSN or --dsn)",
		})
	}
	if strings.TrimSpace(db.Table) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.db.table",
			Message:  "storage.db.table must not be empty",
		})
	}

	cols := map[string]string{}
	for _, c := range []struct{ field, name string }{
		{"id", db.Columns.ID},
		{"journal_name", db.Columns.JournalName},
		{"year", db.Columns.Year},
		{"phase", db.Columns.Phase},
		{"doc_id", db.Columns.DocID},
	} {
		name := c.name
		if name == "" {
			name = c.field
		}
		key := strings.ToLower(name)
		if prev, dup := cols[key]; dup {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "storage.db.columns." + c.field,
				Message:  fmt.Sprintf("column %q is also used for %s", name, prev),
			})
			continue
		}
		cols[key] = c.field
	}

	return issues
}

func validateRewrite(r Rewrite) []Issue {
	var issues []Issue

	for old := range r.Corrections {
		if old == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "rewrite.corrections",
				Message:  "correction keys must not be empty",
			})
		}
	}
	if r.IDColumn != "" && strings.ContainsAny(r.IDColumn, "(),;") {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "rewrite.id_column",
			Message:  fmt.Sprintf("id_column %q must be a single column name", r.IDColumn),
		})
	}
	if r.MaxLineBytes < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "rewrite.max_line_bytes",
			Message:  "max_line_bytes must not be negative",
		})
	}

	return issues
}

// validateRuntime validates RuntimeConfig for obvious misconfigurations.
func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue

	for _, f := range []struct {
		path string
		v    int
	}{
		{"runtime.workers", r.Workers},
		{"runtime.batch_size", r.BatchSize},
		{"runtime.page_size", r.PageSize},
	} {
		if f.v < 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     f.path,
				Message:  fmt.Sprintf("%s must not be negative", f.path[len("runtime."):]),
			})
		}
	}
	if r.Workers > 64 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.workers",
			Message:  fmt.Sprintf("workers=%d opens as many connections; most servers cap this well below", r.Workers),
		})
	}
	if r.BatchSize > 10000 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.batch_size",
			Message:  fmt.Sprintf("batch_size=%d keeps very large transactions open", r.BatchSize),
		})
	}
	if r.ShutdownTimeout < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.shutdown_timeout",
			Message:  "shutdown_timeout must not be negative",
		})
	}
	if r.ForceTimeout < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.force_timeout",
			Message:  "force_timeout must not be negative",
		})
	}

	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue

	switch m.Backend {
	case "", "none":
	case "pushgateway":
		if m.PushgatewayURL == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "metrics.pushgateway_url",
				Message:  "pushgateway_url is empty; PUSHGATEWAY_URL or http://localhost:9091 will be used",
			})
		}
	case "datadog":
		if m.DatadogAddr == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.datadog_addr",
				Message:  "datadog backend requires datadog_addr",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; metrics will be disabled", m.Backend),
		})
	}

	return issues
}
