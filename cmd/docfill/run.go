package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"docfill/internal/batch"
	"docfill/internal/config"
	"docfill/internal/datasource"
	"docfill/internal/datasource/file"
	"docfill/internal/datasource/httpds"
	"docfill/internal/datasource/s3"
	"docfill/internal/docid"
	"docfill/internal/dump"
	"docfill/internal/metrics"
	"docfill/internal/patch"
	"docfill/internal/pinyin"
	"docfill/internal/sqltext"
	"docfill/internal/storage"
)

// newRepositoryFn is swapped in tests.
var newRepositoryFn = storage.New

func newPatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "patch",
		Short: "fill missing doc_id values in the metadata table",
		Long: `patch selects every row whose doc_id is NULL or empty, generates an
identifier for it and updates it, all inside one transaction. Any failed
update rolls the whole run back.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			j, _, err := a.loadJob(cmd, true)
			if err != nil {
				return err
			}
			done, err := a.setup(j)
			if err != nil {
				return err
			}
			defer done()
			return a.runPatch(cmd.Context(), j, cmd.OutOrStdout())
		},
	}
}

func newRewriteCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "rewrite [dump | @manifest]...",
		Short: "add doc_id to INSERT statements from SQL dumps and load them",
		Long: `rewrite reads each dump (local path, http(s) URL or s3:// URI, optionally
.gz or .sz compressed), adds a generated doc_id to every single-row INSERT
and executes the result in concurrent batch transactions. An argument of the
form @file names a manifest with one location per line. Without arguments
the config's source.locations and source.manifest are used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, _, err := a.loadJob(cmd, output == "")
			if err != nil {
				return err
			}
			locs, err := resolveLocations(args, j.Source)
			if err != nil {
				return err
			}
			done, err := a.setup(j)
			if err != nil {
				return err
			}
			defer done()
			return a.runRewrite(cmd.Context(), j, locs, output, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "",
		"write rewritten statements to this file ('-' for stdout) instead of the database")
	return cmd
}

// resolveLocations expands @manifest arguments. With no arguments it falls
// back to the configured locations and manifest.
func resolveLocations(args []string, src config.Source) ([]string, error) {
	if len(args) == 0 {
		args = append([]string(nil), src.Locations...)
		if src.Manifest != "" {
			args = append(args, "@"+src.Manifest)
		}
	}
	var out []string
	for _, arg := range args {
		if manifest, ok := strings.CutPrefix(arg, "@"); ok {
			list, err := file.ReadList(manifest)
			if err != nil {
				return nil, fmt.Errorf("read manifest %s: %w", manifest, err)
			}
			out = append(out, list...)
			continue
		}
		out = append(out, arg)
	}
	if len(out) == 0 {
		return nil, errors.New("no dump locations given")
	}
	return out, nil
}

// openRepo connects to the configured backend and optionally creates the
// metadata table.
func (a *app) openRepo(ctx context.Context, j config.Job) (storage.Repository, error) {
	repo, err := newRepositoryFn(ctx, j.StorageConfig())
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if j.Storage.DB.AutoCreateTable {
		if err := storage.EnsureTable(ctx, j.Storage.Kind, repo, j.Schema()); err != nil {
			repo.Close()
			return nil, fmt.Errorf("apply DDL: %w", err)
		}
		a.log.Info("table ensured", zap.String("table", j.Storage.DB.Table))
	}
	return repo, nil
}

func (a *app) newGenerator() *docid.Generator {
	return docid.NewGenerator(pinyin.New(a.log))
}

func (a *app) runPatch(ctx context.Context, j config.Job, stdout io.Writer) error {
	repo, err := a.openRepo(ctx, j)
	if err != nil {
		return err
	}
	defer repo.Close()

	p := patch.New(repo, a.newGenerator(), patch.Options{
		Schema:   j.Schema(),
		PageSize: j.Runtime.PageSize,
		Job:      j.Job,
		Logger:   a.log,
	})
	rep, err := p.Patch(ctx)
	fmt.Fprintf(stdout, "patch: scanned=%d updated=%d anomalies=%d committed=%t elapsed=%s\n",
		rep.Scanned, rep.Updated, rep.Anomalies, err == nil, rep.Elapsed.Truncate(time.Millisecond))
	if err != nil {
		return fmt.Errorf("patch: %w", err)
	}
	return nil
}

func (a *app) newRewriter(j config.Job) *sqltext.Rewriter {
	s := j.Schema()
	idCol := j.Rewrite.IDColumn
	if idCol == "" {
		idCol = "`" + s.DocID + "`"
	}
	var corrections []sqltext.Correction
	if j.Rewrite.Corrections != nil {
		corrections = sqltext.CorrectionsFromMap(j.Rewrite.Corrections)
	}
	return sqltext.NewRewriter(a.newGenerator(), sqltext.Options{
		IDColumn:    idCol,
		Columns:     sqltext.Columns{JournalName: s.JournalName, Year: s.Year, Phase: s.Phase},
		Corrections: corrections,
	})
}

func sourceOptions(src config.Source) datasource.Options {
	return datasource.Options{
		HTTP: httpds.Config{
			Timeout:            src.HTTP.Timeout.Std(),
			MaxRetries:         src.HTTP.MaxRetries,
			InsecureSkipVerify: src.HTTP.InsecureSkipVerify,
		},
		S3: s3.Config{
			Region:       src.S3.Region,
			Endpoint:     src.S3.Endpoint,
			UsePathStyle: src.S3.UsePathStyle,
		},
	}
}

// rewriteDumps rewrites every location in order with one generator, so
// sequence numbers continue across dumps.
func (a *app) rewriteDumps(ctx context.Context, j config.Job, locs []string) ([]string, dump.Report, error) {
	rw := a.newRewriter(j)
	opts := sourceOptions(j.Source)
	total := dump.Report{Skipped: map[sqltext.Reason]int{}}

	var stmts []string
	for _, loc := range locs {
		start := time.Now()
		log := a.log.With(zap.String("dump", loc))

		out, rep, err := rewriteOne(ctx, loc, opts, rw, dump.Options{
			SkipDuplicates: j.Rewrite.SkipDuplicates,
			MaxLineBytes:   j.Rewrite.MaxLineBytes,
			Logger:         log,
		})
		metrics.RecordStep(j.Job, "rewrite", err, time.Since(start))
		if err != nil {
			return nil, total, fmt.Errorf("rewrite %s: %w", loc, err)
		}
		log.Info("dump rewritten",
			zap.Int("lines", rep.Lines),
			zap.Int("accepted", rep.Accepted),
			zap.Int("skipped", rep.SkippedTotal()),
			zap.Int("duplicates", rep.Duplicates))

		stmts = append(stmts, out...)
		total.Lines += rep.Lines
		total.Candidates += rep.Candidates
		total.Duplicates += rep.Duplicates
		total.Accepted += rep.Accepted
		for r, n := range rep.Skipped {
			total.Skipped[r] += n
		}
	}
	metrics.RecordRow(j.Job, "rewritten", int64(total.Accepted))
	metrics.RecordRow(j.Job, "skipped", int64(total.SkippedTotal()))
	return stmts, total, nil
}

func rewriteOne(ctx context.Context, loc string, opts datasource.Options, rw dump.Rewriter, dopts dump.Options) ([]string, dump.Report, error) {
	rc, err := datasource.Open(ctx, loc, opts)
	if err != nil {
		return nil, dump.Report{}, err
	}
	defer rc.Close()
	return dump.Rewrite(ctx, rc, rw, dopts)
}

func (a *app) runRewrite(ctx context.Context, j config.Job, locs []string, output string, stdout io.Writer) error {
	stmts, drep, err := a.rewriteDumps(ctx, j, locs)
	if err != nil {
		return err
	}
	for reason, n := range drep.Skipped {
		a.log.Info("skipped statements", zap.String("reason", string(reason)), zap.Int("count", n))
	}

	if output != "" {
		if err := writeStatements(output, stmts, stdout); err != nil {
			return err
		}
		a.log.Info("statements written", zap.String("output", output), zap.Int("statements", len(stmts)))
		return nil
	}

	repo, err := a.openRepo(ctx, j)
	if err != nil {
		return err
	}
	defer repo.Close()

	w := batch.NewWriter(repo, batch.Options{
		Workers:         j.Runtime.Workers,
		BatchSize:       j.Runtime.BatchSize,
		ShutdownTimeout: j.Runtime.ShutdownTimeout.Std(),
		ForceTimeout:    j.Runtime.ForceTimeout.Std(),
		Job:             j.Job,
		Logger:          a.log,
	})
	rep := w.Run(ctx, stmts)
	metrics.RecordStep(j.Job, "load", rep.Err(), rep.Elapsed)

	fmt.Fprintf(stdout,
		"rewrite: dumps=%d lines=%d accepted=%d skipped=%d duplicates=%d batches=%d committed=%d failed=%d rows=%d elapsed=%s\n",
		len(locs), drep.Lines, drep.Accepted, drep.SkippedTotal(), drep.Duplicates,
		rep.Batches, rep.Committed, rep.Failed, rep.StatementsCommitted, rep.Elapsed.Truncate(time.Millisecond))
	return rep.Err()
}

// writeStatements writes one statement per line to path, or to stdout when
// path is "-".
func writeStatements(path string, stmts []string, stdout io.Writer) (err error) {
	var w io.Writer = stdout
	if path != "-" {
		f, cerr := os.Create(path)
		if cerr != nil {
			return fmt.Errorf("create output: %w", cerr)
		}
		defer func() {
			if cerr := f.Close(); err == nil && cerr != nil {
				err = fmt.Errorf("close output: %w", cerr)
			}
		}()
		w = f
	}
	bw := bufio.NewWriter(w)
	for _, s := range stmts {
		if _, err := bw.WriteString(s); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}
