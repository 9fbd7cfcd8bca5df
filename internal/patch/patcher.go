// Package patch fills in missing doc_id values on rows that already live in a
// table. The whole run is one transaction: either every selected row gets an
// identifier or none does.
package patch

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"docfill/internal/logging"
	"docfill/internal/metrics"
	"docfill/internal/storage"
)

// DefaultPageSize is the number of rows read per keyset page.
const DefaultPageSize = 1000

// Row is one metadata row selected for patching. NULL columns scan as "".
type Row struct {
	ID          int64
	JournalName string
	Year        string
	Phase       string
	DocID       string
}

// Generator produces identifiers. *docid.Generator satisfies it.
type Generator interface {
	Generate(name, year, issue string) string
}

// UpdateError reports the row whose update aborted the run.
type UpdateError struct {
	ID  int64
	Err error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("update row id=%d: %v", e.ID, e.Err)
}

func (e *UpdateError) Unwrap() error { return e.Err }

// Report summarises a Patch run.
type Report struct {
	Scanned   int
	Updated   int
	Anomalies int // updates that affected zero rows
	Elapsed   time.Duration
}

// Options tunes a Patcher.
type Options struct {
	Schema   storage.Schema
	PageSize int

	// Job labels metrics; empty means "docfill".
	Job    string
	Logger *zap.Logger
}

// Patcher assigns identifiers to rows whose doc_id is NULL or empty.
type Patcher struct {
	repo storage.Repository
	gen  Generator
	opts Options

	selectSQL string
	updateSQL string
}

// New returns a Patcher. Queries are rendered once from the schema and the
// repository's dialect.
func New(repo storage.Repository, gen Generator, opts Options) *Patcher {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Job == "" {
		opts.Job = "docfill"
	}
	opts.Logger = logging.OrNop(opts.Logger)
	opts.Schema = opts.Schema.WithDefaults()

	d := repo.Dialect()
	s := opts.Schema
	q := d.QuoteIdent
	top, limit := d.Page(opts.PageSize)

	return &Patcher{
		repo: repo,
		gen:  gen,
		opts: opts,
		selectSQL: fmt.Sprintf(
			"SELECT %s%s, %s, %s, %s FROM %s WHERE (%s IS NULL OR %s = '') AND %s > %s ORDER BY %s%s",
			top, q(s.ID), q(s.JournalName), q(s.Year), q(s.Phase), q(s.Table),
			q(s.DocID), q(s.DocID), q(s.ID), d.Placeholder(1), q(s.ID), limit,
		),
		updateSQL: fmt.Sprintf(
			"UPDATE %s SET %s = %s WHERE %s = %s",
			q(s.Table), q(s.DocID), d.Placeholder(1), q(s.ID), d.Placeholder(2),
		),
	}
}

// Patch runs the backfill. On any error the transaction is rolled back and
// the returned Report reflects the work attempted before the failure.
func (p *Patcher) Patch(ctx context.Context) (rep Report, err error) {
	start := time.Now()
	log := p.opts.Logger.With(zap.String("table", p.opts.Schema.Table))
	defer func() {
		rep.Elapsed = time.Since(start)
		metrics.RecordStep(p.opts.Job, "patch", err, rep.Elapsed)
	}()

	tx, err := p.repo.BeginTx(ctx)
	if err != nil {
		return rep, err
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("rollback failed", zap.Error(rbErr))
			} else {
				log.Warn("patch rolled back", zap.Int("rows_attempted", rep.Scanned), zap.Error(err))
			}
		}
	}()

	// Ids may be zero or negative; start below every possible key.
	lastID := int64(math.MinInt64)
	for {
		page, err := p.page(ctx, tx, lastID)
		if err != nil {
			return rep, err
		}
		if len(page) == 0 {
			break
		}
		for _, row := range page {
			rep.Scanned++
			row.DocID = p.gen.Generate(row.JournalName, row.Year, row.Phase)

			res, err := tx.ExecContext(ctx, p.updateSQL, row.DocID, row.ID)
			if err != nil {
				return rep, &UpdateError{ID: row.ID, Err: err}
			}
			n, err := res.RowsAffected()
			if err != nil {
				return rep, &UpdateError{ID: row.ID, Err: err}
			}
			if n == 0 {
				rep.Anomalies++
				log.Warn("update affected no rows", zap.Int64("id", row.ID), zap.String("doc_id", row.DocID))
				continue
			}
			rep.Updated++
			log.Debug("row patched", zap.Int64("id", row.ID), zap.String("doc_id", row.DocID))
		}
		lastID = page[len(page)-1].ID
		log.Info("page patched", zap.Int64("last_id", lastID), zap.Int("updated", rep.Updated))
	}

	if err := tx.Commit(); err != nil {
		return rep, fmt.Errorf("commit: %w", err)
	}
	committed = true
	metrics.RecordRow(p.opts.Job, "patched", int64(rep.Updated))
	log.Info("patch committed",
		zap.Int("scanned", rep.Scanned),
		zap.Int("updated", rep.Updated),
		zap.Int("anomalies", rep.Anomalies))
	return rep, nil
}

// page reads the next keyset page. The cursor is fully drained and closed
// before the caller issues updates on the same connection.
func (p *Patcher) page(ctx context.Context, tx storage.Tx, after int64) ([]Row, error) {
	rows, err := tx.QueryContext(ctx, p.selectSQL, after)
	if err != nil {
		return nil, fmt.Errorf("select rows after id=%d: %w", after, err)
	}
	defer rows.Close()

	out := make([]Row, 0, p.opts.PageSize)
	for rows.Next() {
		var r Row
		var name, year, phase sql.NullString
		if err := rows.Scan(&r.ID, &name, &year, &phase); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.JournalName, r.Year, r.Phase = name.String, year.String, phase.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
