// Package batch applies rewritten statements to storage in fixed-size
// batches. Each batch runs in its own transaction on its own connection, a
// bounded pool of workers processes batches concurrently, and a failed batch
// is rolled back without affecting the others.
//
// Shutdown is two-staged: after every batch has been submitted the writer
// waits up to ShutdownTimeout for the pool to drain, then cancels in-flight
// work and waits up to ForceTimeout more. If workers still have not returned
// the Report is marked TerminationFailed and Run returns anyway.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"docfill/internal/logging"
	"docfill/internal/metrics"
	"docfill/internal/storage"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultBatchSize       = 500
	DefaultWorkers         = 5
	DefaultShutdownTimeout = 60 * time.Second
	DefaultForceTimeout    = 60 * time.Second
)

// ErrNotFinished marks batches whose worker was still running when the
// forced shutdown window expired.
var ErrNotFinished = errors.New("batch did not finish before forced shutdown")

// Batch is a consecutive run of statements executed in one transaction.
type Batch struct {
	Index      int
	Statements []string
}

// Partition splits statements into consecutive batches of at most size
// statements, preserving order. size <= 0 means DefaultBatchSize.
func Partition(statements []string, size int) []Batch {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if len(statements) == 0 {
		return nil
	}
	out := make([]Batch, 0, (len(statements)+size-1)/size)
	for start := 0; start < len(statements); start += size {
		end := min(start+size, len(statements))
		out = append(out, Batch{Index: len(out), Statements: statements[start:end]})
	}
	return out
}

// StatementError identifies the statement that aborted a batch.
type StatementError struct {
	Batch  int
	Offset int // position of the statement within its batch
	Err    error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("batch %d: statement %d: %v", e.Batch, e.Offset, e.Err)
}

func (e *StatementError) Unwrap() error { return e.Err }

// Result is the outcome of one batch.
type Result struct {
	Index     int
	Size      int
	Executed  int // statements that ran before commit or failure
	Committed bool
	Err       error
	Duration  time.Duration
}

// Report summarises a Run.
type Report struct {
	Batches             int
	Committed           int
	Failed              int
	Statements          int
	StatementsCommitted int
	Results             []Result
	TerminationFailed   bool
	Elapsed             time.Duration
}

// Err returns nil when every batch committed, otherwise an error naming how
// many batches failed. The first failure is wrapped.
func (r Report) Err() error {
	if r.Failed == 0 && !r.TerminationFailed {
		return nil
	}
	var first error
	for _, res := range r.Results {
		if res.Err != nil {
			first = res.Err
			break
		}
	}
	if first == nil {
		first = ErrNotFinished
	}
	if r.TerminationFailed {
		return fmt.Errorf("%d of %d batches failed, pool did not terminate: %w", r.Failed, r.Batches, first)
	}
	return fmt.Errorf("%d of %d batches failed: %w", r.Failed, r.Batches, first)
}

// Options tunes a Writer. Zero values select the defaults above.
type Options struct {
	Workers         int
	BatchSize       int
	ShutdownTimeout time.Duration
	ForceTimeout    time.Duration

	// Job labels metrics; empty means "docfill".
	Job    string
	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = DefaultShutdownTimeout
	}
	if o.ForceTimeout <= 0 {
		o.ForceTimeout = DefaultForceTimeout
	}
	if o.Job == "" {
		o.Job = "docfill"
	}
	o.Logger = logging.OrNop(o.Logger)
	return o
}

// Writer executes statement batches against a Repository.
type Writer struct {
	repo storage.Repository
	opts Options
}

// NewWriter returns a Writer for repo.
func NewWriter(repo storage.Repository, opts Options) *Writer {
	return &Writer{repo: repo, opts: opts.withDefaults()}
}

// collector is the only state shared between workers.
type collector struct {
	mu      sync.Mutex
	results []Result
	done    []bool

	committed atomic.Int64 // statements in committed batches, for progress logs
}

func (c *collector) record(r Result) {
	c.mu.Lock()
	c.results[r.Index] = r
	c.done[r.Index] = true
	c.mu.Unlock()
}

func (c *collector) snapshot() ([]Result, []bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Result(nil), c.results...), append([]bool(nil), c.done...)
}

// Run partitions statements and executes every batch. It never returns early
// on a batch failure; inspect the Report (or Report.Err) for the outcome.
func (w *Writer) Run(ctx context.Context, statements []string) Report {
	start := time.Now()
	log := w.opts.Logger
	batches := Partition(statements, w.opts.BatchSize)

	col := &collector{
		results: make([]Result, len(batches)),
		done:    make([]bool, len(batches)),
	}
	for _, b := range batches {
		col.results[b.Index] = Result{Index: b.Index, Size: len(b.Statements)}
	}

	log.Info("batch write started",
		zap.Int("statements", len(statements)),
		zap.Int("batches", len(batches)),
		zap.Int("workers", w.opts.Workers),
		zap.Int("batch_size", w.opts.BatchSize))

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(w.opts.Workers)

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for _, b := range batches {
			g.Go(func() error {
				res := w.runBatch(workCtx, b, start, col)
				col.record(res)
				return nil
			})
		}
		_ = g.Wait()
	}()

	terminationFailed := false
	shutdown := time.NewTimer(w.opts.ShutdownTimeout)
	defer shutdown.Stop()

	select {
	case <-drained:
	case <-ctx.Done():
		log.Warn("batch write interrupted; cancelling workers", zap.Error(ctx.Err()))
		terminationFailed = !w.force(cancel, drained)
	case <-shutdown.C:
		log.Warn("batch pool did not drain in time; cancelling workers",
			zap.Duration("shutdown_timeout", w.opts.ShutdownTimeout))
		terminationFailed = !w.force(cancel, drained)
	}

	results, done := col.snapshot()
	rep := Report{
		Batches:           len(batches),
		Statements:        len(statements),
		TerminationFailed: terminationFailed,
		Elapsed:           time.Since(start),
	}
	for i := range results {
		if !done[i] {
			results[i].Err = ErrNotFinished
		}
		if results[i].Committed {
			rep.Committed++
			rep.StatementsCommitted += results[i].Size
		} else {
			rep.Failed++
		}
	}
	rep.Results = results

	fields := []zap.Field{
		zap.Int("batches", rep.Batches),
		zap.Int("committed", rep.Committed),
		zap.Int("failed", rep.Failed),
		zap.Int("statements_committed", rep.StatementsCommitted),
		zap.Duration("elapsed", rep.Elapsed.Truncate(time.Millisecond)),
	}
	switch {
	case rep.TerminationFailed:
		log.Error("batch pool failed to terminate", fields...)
	case rep.Failed > 0:
		log.Warn("batch write finished with failures", fields...)
	default:
		log.Info("batch write finished", fields...)
	}
	return rep
}

// force cancels in-flight work and waits up to ForceTimeout for the pool to
// drain. It reports whether the pool terminated.
func (w *Writer) force(cancel context.CancelFunc, drained <-chan struct{}) bool {
	cancel()
	t := time.NewTimer(w.opts.ForceTimeout)
	defer t.Stop()
	select {
	case <-drained:
		return true
	case <-t.C:
		return false
	}
}

// runBatch executes one batch in a transaction. Any error rolls the batch
// back; the error is returned in the Result, never to the pool.
func (w *Writer) runBatch(ctx context.Context, b Batch, runStart time.Time, col *collector) Result {
	start := time.Now()
	res := Result{Index: b.Index, Size: len(b.Statements)}
	log := w.opts.Logger.With(zap.Int("batch", b.Index), zap.Int("size", res.Size))

	fail := func(err error) Result {
		res.Err = err
		res.Duration = time.Since(start)
		metrics.RecordBatch(w.opts.Job, "failed")
		log.Warn("batch rolled back", zap.Int("executed", res.Executed), zap.Error(err))
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("batch %d not started: %w", b.Index, err))
	}

	tx, err := w.repo.BeginTx(ctx)
	if err != nil {
		return fail(fmt.Errorf("batch %d: %w", b.Index, err))
	}
	for i, stmt := range b.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fail(&StatementError{Batch: b.Index, Offset: i, Err: err})
		}
		res.Executed++
	}
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return fail(fmt.Errorf("batch %d: commit: %w", b.Index, err))
	}

	res.Committed = true
	res.Duration = time.Since(start)
	total := col.committed.Add(int64(res.Size))
	metrics.RecordBatch(w.opts.Job, "committed")
	metrics.RecordRow(w.opts.Job, "committed", int64(res.Size))

	rps := float64(0)
	if res.Duration > 0 {
		rps = float64(res.Size) / res.Duration.Seconds()
	}
	log.Info("batch committed",
		zap.Float64("rps", rps),
		zap.Int64("total_committed", total),
		zap.Duration("batch_elapsed", res.Duration.Truncate(time.Millisecond)),
		zap.Duration("elapsed", time.Since(runStart).Truncate(time.Millisecond)))
	return res
}
