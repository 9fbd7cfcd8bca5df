// Command docfill assigns doc_id values to periodical metadata, either by
// patching rows already in a table or by rewriting INSERT statements from a
// SQL dump and loading them in concurrent batches.
//
//	docfill patch    --config job.yaml
//	docfill rewrite  --kind mysql --dsn "$DSN" dump.sql.gz @more-dumps.txt
//	docfill validate --config job.json
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"docfill/internal/config"
	"docfill/internal/logging"
	"docfill/internal/metrics"
	"docfill/internal/metrics/datadog"
	"docfill/internal/metrics/prompush"

	// register all backends with the storage factory.
	_ "docfill/internal/storage/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "docfill: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// app carries flag values shared by every subcommand.
type app struct {
	cfgPath        string
	dsn            string
	kind           string
	workers        int
	batchSize      int
	pageSize       int
	metricsBackend string
	verbose        bool

	runID string
	log   *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "docfill",
		Short:         "generate doc_id values for periodical metadata",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	f := root.PersistentFlags()
	f.StringVar(&a.cfgPath, "config", "", "job config file (.json, .yaml or .yml)")
	f.StringVar(&a.dsn, "dsn", "", "database DSN (overrides config and DOCFILL_DSN)")
	f.StringVar(&a.kind, "kind", "", "storage kind: mysql, postgres, mssql or sqlite")
	f.IntVar(&a.workers, "workers", 0, "concurrent batch workers")
	f.IntVar(&a.batchSize, "batch-size", 0, "statements per batch transaction")
	f.IntVar(&a.pageSize, "page-size", 0, "rows read per page when patching")
	f.StringVar(&a.metricsBackend, "metrics-backend", "", "metrics backend: pushgateway, datadog or none")
	f.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logs")

	root.AddCommand(newPatchCmd(a), newRewriteCmd(a), newValidateCmd(a))
	return root
}

// loadJob reads the config file (if any), applies environment and flag
// overrides, fills defaults and validates the result. Issues are printed to
// stderr; any error-severity issue fails the command. Storage issues are
// ignored when needStorage is false.
func (a *app) loadJob(cmd *cobra.Command, needStorage bool) (config.Job, []config.Issue, error) {
	var j config.Job
	if a.cfgPath != "" {
		var err error
		if j, err = config.Load(a.cfgPath); err != nil {
			return config.Job{}, nil, err
		}
	} else if err := j.ApplyEnv(os.Getenv); err != nil {
		return config.Job{}, nil, err
	}

	f := cmd.Flags()
	if f.Changed("dsn") {
		j.Storage.DB.DSN = a.dsn
	}
	if f.Changed("kind") {
		j.Storage.Kind = a.kind
	}
	if f.Changed("workers") {
		j.Runtime.Workers = a.workers
	}
	if f.Changed("batch-size") {
		j.Runtime.BatchSize = a.batchSize
	}
	if f.Changed("page-size") {
		j.Runtime.PageSize = a.pageSize
	}
	if f.Changed("metrics-backend") {
		j.Metrics.Backend = a.metricsBackend
	}
	j = j.WithDefaults()

	issues := config.ValidateJob(j)
	if !needStorage {
		kept := issues[:0]
		for _, iss := range issues {
			if !strings.HasPrefix(iss.Path, "storage.") {
				kept = append(kept, iss)
			}
		}
		issues = kept
	}
	for _, iss := range issues {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return j, issues, errors.New("configuration is invalid")
	}
	return j, issues, nil
}

// setup builds the run logger and metrics backend. The returned func flushes
// metrics and syncs the logger.
func (a *app) setup(j config.Job) (func(), error) {
	l, err := logging.New(a.verbose)
	if err != nil {
		return nil, err
	}
	a.runID = uuid.NewString()
	a.log = l.With(zap.String("run_id", a.runID), zap.String("job", j.Job))

	flush := a.initMetrics(j)
	return func() {
		flush()
		_ = a.log.Sync()
	}, nil
}

// initMetrics installs the configured backend and returns its flush func.
// Backend failures are logged and leave the nop backend in place.
func (a *app) initMetrics(j config.Job) func() {
	var (
		b   metrics.Backend
		err error
	)
	switch j.Metrics.Backend {
	case "pushgateway":
		gwURL := j.Metrics.PushgatewayURL
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}
		b, err = prompush.NewBackend(j.Job, gwURL, a.runID)
	case "datadog":
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       j.Metrics.DatadogAddr,
			Namespace:  j.Metrics.DatadogNamespace,
			GlobalTags: []string{"job:" + j.Job, "run_id:" + a.runID},
		})
	case "", "none":
		a.log.Debug("metrics disabled")
		return func() {}
	default:
		a.log.Warn("unknown metrics backend; metrics disabled", zap.String("backend", j.Metrics.Backend))
		return func() {}
	}
	if err != nil {
		a.log.Warn("metrics backend init failed; using nop", zap.String("backend", j.Metrics.Backend), zap.Error(err))
		return func() {}
	}

	a.log.Info("metrics enabled", zap.String("backend", j.Metrics.Backend))
	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			a.log.Warn("metrics flush failed", zap.Error(err))
		}
	}
}

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "check the job configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			j, issues, err := a.loadJob(cmd, true)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: job=%s storage=%s table=%s (%d warnings)\n",
				j.Job, j.Storage.Kind, j.Storage.DB.Table, len(issues))
			return nil
		},
	}
}
