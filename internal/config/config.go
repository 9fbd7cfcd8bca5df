// Package config defines the job configuration for docfill. A job file names
// where dumps come from, which database holds the metadata table, how the
// rewriter treats statements and how many workers write batches.
//
// Job files are JSON or YAML, chosen by extension:
//
//	{
//	  "job": "journals",
//	  "source":  { "locations": ["s3://dumps/meta.sql.gz"] },
//	  "storage": { "kind": "mysql", "db": { "dsn": "...", "table": "meta_data_journal" } },
//	  "runtime": { "workers": 5, "batch_size": 500, "shutdown_timeout": "60s" }
//	}
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"docfill/internal/storage"
)

// Defaults applied by WithDefaults.
const (
	DefaultJob             = "docfill"
	DefaultTable           = "meta_data_journal"
	DefaultWorkers         = 5
	DefaultBatchSize       = 500
	DefaultPageSize        = 1000
	DefaultShutdownTimeout = Duration(60 * time.Second)
	DefaultForceTimeout    = Duration(60 * time.Second)
)

// Job is the top-level object decoded from a job file.
type Job struct {
	// Job labels metrics and log lines.
	Job string `json:"job" yaml:"job"`

	Source  Source        `json:"source" yaml:"source"`
	Storage Storage       `json:"storage" yaml:"storage"`
	Rewrite Rewrite       `json:"rewrite" yaml:"rewrite"`
	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`
	Metrics Metrics       `json:"metrics" yaml:"metrics"`
}

// Source locates dump files for the rewrite command.
type Source struct {
	// Locations are local paths, http(s) URLs or s3:// URIs. Command line
	// arguments replace them.
	Locations []string `json:"locations" yaml:"locations"`

	// Manifest is a text file with one location per line.
	Manifest string `json:"manifest" yaml:"manifest"`

	HTTP SourceHTTP `json:"http" yaml:"http"`
	S3   SourceS3   `json:"s3" yaml:"s3"`
}

// SourceHTTP configures http(s) locations.
type SourceHTTP struct {
	Timeout            Duration `json:"timeout" yaml:"timeout"`
	MaxRetries         int      `json:"max_retries" yaml:"max_retries"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// SourceS3 configures s3:// locations. Credentials come from the usual AWS
// environment and shared config files.
type SourceS3 struct {
	Region       string `json:"region" yaml:"region"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style"`
}

// Storage selects the backend holding the metadata table.
type Storage struct {
	// Kind is one of storage.ListKinds(), e.g. "mysql" or "sqlite".
	Kind string   `json:"kind" yaml:"kind"`
	DB   DBConfig `json:"db" yaml:"db"`
}

// DBConfig configures the metadata table.
type DBConfig struct {
	DSN   string `json:"dsn" yaml:"dsn"`
	Table string `json:"table" yaml:"table"`

	// Columns overrides column names; empty fields keep the standard layout.
	Columns Columns `json:"columns" yaml:"columns"`

	// AutoCreateTable runs the backend DDL bootstrapper before writing.
	AutoCreateTable bool `json:"auto_create_table" yaml:"auto_create_table"`
}

// Columns names the table columns.
type Columns struct {
	ID          string `json:"id" yaml:"id"`
	JournalName string `json:"journal_name" yaml:"journal_name"`
	Year        string `json:"year" yaml:"year"`
	Phase       string `json:"phase" yaml:"phase"`
	DocID       string `json:"doc_id" yaml:"doc_id"`
}

// Rewrite tunes dump rewriting.
type Rewrite struct {
	// IDColumn is the column text inserted into each statement, quotes
	// included. Empty means "`doc_id`".
	IDColumn string `json:"id_column" yaml:"id_column"`

	// Corrections replace text inside column lists, e.g.
	// {"document_ no": "document_no"}. Nil keeps the built-in fix.
	Corrections map[string]string `json:"corrections" yaml:"corrections"`

	SkipDuplicates bool `json:"skip_duplicates" yaml:"skip_duplicates"`
	MaxLineBytes   int  `json:"max_line_bytes" yaml:"max_line_bytes"`
}

// RuntimeConfig controls concurrency, batching and shutdown.
type RuntimeConfig struct {
	Workers         int      `json:"workers" yaml:"workers"`
	BatchSize       int      `json:"batch_size" yaml:"batch_size"`
	PageSize        int      `json:"page_size" yaml:"page_size"`
	ShutdownTimeout Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	ForceTimeout    Duration `json:"force_timeout" yaml:"force_timeout"`
}

// Metrics selects a metrics backend: "pushgateway", "datadog" or "none".
type Metrics struct {
	Backend          string `json:"backend" yaml:"backend"`
	PushgatewayURL   string `json:"pushgateway_url" yaml:"pushgateway_url"`
	DatadogAddr      string `json:"datadog_addr" yaml:"datadog_addr"`
	DatadogNamespace string `json:"datadog_namespace" yaml:"datadog_namespace"`
}

// Duration is a time.Duration written as a string such as "90s" or "2m".
// Bare numbers are read as seconds.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalJSON writes d as a duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "60s" or 60.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var secs float64
		if nerr := json.Unmarshal(b, &secs); nerr != nil {
			return fmt.Errorf("duration must be a string or number of seconds: %s", b)
		}
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	return d.parse(s)
}

// UnmarshalYAML accepts the same forms as UnmarshalJSON.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	if n.Tag == "!!int" || n.Tag == "!!float" {
		secs, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return err
		}
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	return d.parse(n.Value)
}

func (d *Duration) parse(s string) error {
	if strings.TrimSpace(s) == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Load reads a job file. Files ending in .yaml or .yml are YAML, anything
// else is JSON. Unknown fields are rejected. Environment overrides are applied
// after decoding; defaults are not.
func Load(path string) (Job, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Job{}, fmt.Errorf("read config: %w", err)
	}
	j, err := Decode(b, filepath.Ext(path))
	if err != nil {
		return Job{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := j.ApplyEnv(os.Getenv); err != nil {
		return Job{}, err
	}
	return j, nil
}

// Decode parses b as YAML when ext is ".yaml" or ".yml", otherwise as JSON.
func Decode(b []byte, ext string) (Job, error) {
	var j Job
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&j); err != nil {
			return Job{}, err
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&j); err != nil {
			return Job{}, err
		}
	}
	return j, nil
}

// ApplyEnv overrides fields from DOCFILL_DSN, DOCFILL_WORKERS,
// DOCFILL_BATCH_SIZE and DOCFILL_PAGE_SIZE. getenv is usually os.Getenv.
func (j *Job) ApplyEnv(getenv func(string) string) error {
	if v := getenv("DOCFILL_DSN"); v != "" {
		j.Storage.DB.DSN = v
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"DOCFILL_WORKERS", &j.Runtime.Workers},
		{"DOCFILL_BATCH_SIZE", &j.Runtime.BatchSize},
		{"DOCFILL_PAGE_SIZE", &j.Runtime.PageSize},
	}
	for _, e := range ints {
		s := getenv(e.key)
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("%s: %w", e.key, err)
		}
		*e.dst = n
	}
	return nil
}

// WithDefaults returns a copy of j with zero values replaced by defaults.
func (j Job) WithDefaults() Job {
	if j.Job == "" {
		j.Job = DefaultJob
	}
	j.Storage.Kind = strings.ToLower(strings.TrimSpace(j.Storage.Kind))
	if j.Storage.DB.Table == "" {
		j.Storage.DB.Table = DefaultTable
	}
	r := &j.Runtime
	r.Workers = pickInt(r.Workers, DefaultWorkers)
	r.BatchSize = pickInt(r.BatchSize, DefaultBatchSize)
	r.PageSize = pickInt(r.PageSize, DefaultPageSize)
	if r.ShutdownTimeout == 0 {
		r.ShutdownTimeout = DefaultShutdownTimeout
	}
	if r.ForceTimeout == 0 {
		r.ForceTimeout = DefaultForceTimeout
	}
	if j.Metrics.Backend == "" {
		j.Metrics.Backend = "none"
	}
	return j
}

// Schema returns the table layout for storage and patch.
func (j Job) Schema() storage.Schema {
	c := j.Storage.DB.Columns
	return storage.Schema{
		Table:       j.Storage.DB.Table,
		ID:          c.ID,
		JournalName: c.JournalName,
		Year:        c.Year,
		Phase:       c.Phase,
		DocID:       c.DocID,
	}.WithDefaults()
}

// StorageConfig returns the backend-neutral connection settings. The pool is
// sized to the worker count so every worker can hold its own transaction.
func (j Job) StorageConfig() storage.Config {
	return storage.Config{
		Kind:         j.Storage.Kind,
		DSN:          j.Storage.DB.DSN,
		MaxOpenConns: j.Runtime.Workers,
	}
}

// pickInt chooses a when set, otherwise b. Negative values are kept so
// ValidateJob can report them.
func pickInt(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}
