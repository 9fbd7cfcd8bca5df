// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from docfill runs.
//
// It exposes a narrow interface (Backend) focused on counters and timing data
// (histograms), and a global, pluggable backend that defaults to a no-op
// implementation, so metrics are always safe to call even when no real backend
// is configured. Concrete metric systems live in subpackages (prompush,
// datadog) and are installed once by the CLI via SetBackend.
package metrics

import (
	"sync"
	"time"
)

// Metric names shared by every backend.
const (
	StepTotal           = "docfill_step_total"
	StepDurationSeconds = "docfill_step_duration_seconds"
	RecordsTotal        = "docfill_records_total"
	BatchesTotal        = "docfill_batches_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
// It is intentionally generic so we can plug in Prometheus, Datadog, etc.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep is a convenience for the common pattern:
// measure latency + success/failure per step ("rewrite", "write", "patch").
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status,
	}

	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// RecordRow increments a record-level counter for the given job and kind.
//
// Kinds used by docfill:
//   - "read"      (dump lines considered)
//   - "rewritten" (statements accepted by the rewriter)
//   - "skipped"   (statements rejected with a reason)
//   - "duplicate" (statements dropped by the duplicate filter)
//   - "committed" (statements in committed batches)
//   - "patched"   (rows updated in patch mode)
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordBatch counts one finished batch; status is "committed" or "failed".
func RecordBatch(job, status string) {
	current().IncCounter(BatchesTotal, 1, Labels{
		"job":    job,
		"status": status,
	})
}
