// Package main implements the tsbench command.
// tsbench extracts a monthly mortality series from a public registry, checks
// that the data is real and usable, and benchmarks forecasting models on it
// with a rolling-origin backtest.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/HatiCode/tsbench/cmd/tsbench/config"
	"github.com/HatiCode/tsbench/cmd/tsbench/logger"
	"github.com/HatiCode/tsbench/cmd/tsbench/metrics"
	"github.com/HatiCode/tsbench/cmd/tsbench/store"
	"github.com/HatiCode/tsbench/pkg/storage"
)

const version = "v0.1.0"

func main() {
	// Flag defaults read the environment, so .env must be loaded first.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "tsbench",
		Short:        "Benchmark forecasting models on real registry data",
		Version:      version,
		SilenceUsage: true,
	}
	root.AddCommand(
		newBenchmarkCmd(),
		newPipelineCmd(),
		newValidateCmd(),
	)
	return root
}

// env holds the run-wide dependencies shared by the benchmark and pipeline
// commands.
type env struct {
	cfg        *config.Config
	logger     *slog.Logger
	metrics    *metrics.Metrics
	store      storage.Store
	closeStore func() error
}

func newEnv(ctx context.Context, cfg *config.Config, command string) (*env, error) {
	log := logger.New(cfg)
	slog.SetDefault(log)

	log.Info("starting tsbench",
		"version", version,
		"command", command,
		"output_prefix", cfg.OutputPrefix,
		"storage", cfg.Storage,
	)

	s, closeStore, err := store.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:        cfg,
		logger:     log,
		metrics:    metrics.New(cfg.OutputPrefix),
		store:      s,
		closeStore: closeStore,
	}, nil
}

// putRun stores the run record. Store failures are logged, never returned:
// the output files are the primary record.
func (e *env) putRun(ctx context.Context, run *storage.RunRecord) {
	if err := e.store.PutRun(ctx, *run); err != nil {
		e.logger.Error("failed to store run record", "run_id", run.RunID, "error", err)
		return
	}
	e.logger.Debug("stored run record", "run_id", run.RunID, "state", run.State)
}

// close exports metrics and releases the store.
func (e *env) close() {
	exportCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.metrics.Export(exportCtx, e.cfg.MetricsTextfile, e.cfg.PushgatewayURL, e.cfg.PushJob); err != nil {
		e.logger.Error("failed to export metrics", "error", err)
	}
	if err := e.closeStore(); err != nil {
		e.logger.Error("failed to close store", "error", err)
	}
}
