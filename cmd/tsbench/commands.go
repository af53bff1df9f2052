package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/HatiCode/tsbench/cmd/tsbench/config"
	"github.com/HatiCode/tsbench/cmd/tsbench/logger"
	"github.com/HatiCode/tsbench/pkg/extract"
	"github.com/HatiCode/tsbench/pkg/pipeline"
	"github.com/HatiCode/tsbench/pkg/results"
	"github.com/HatiCode/tsbench/pkg/series"
	"github.com/HatiCode/tsbench/pkg/storage"
	"github.com/HatiCode/tsbench/pkg/validate"
)

func newBenchmarkCmd() *cobra.Command {
	cfg := &config.Config{}
	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Backtest models on a monthly series CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.InputCSV == "" {
				return errors.New("--input-csv is required")
			}
			if err := cfg.ValidateBacktest(); err != nil {
				return err
			}
			return runBenchmark(cmd, cfg)
		},
	}
	cfg.AddInputFlags(cmd.Flags())
	cfg.AddBacktestFlags(cmd.Flags())
	cfg.AddGlobalFlags(cmd.Flags())
	return cmd
}

func runBenchmark(cmd *cobra.Command, cfg *config.Config) error {
	ctx := cmd.Context()
	e, err := newEnv(ctx, cfg, "benchmark")
	if err != nil {
		return err
	}
	defer e.close()

	s, err := series.LoadFile(cfg.InputCSV, series.LoadOptions{
		DateColumn:  cfg.DateColumn,
		ValueColumn: cfg.ValueColumn,
	})
	if err != nil {
		return fmt.Errorf("load series: %w", err)
	}

	bench, err := NewBench(cfg, e.metrics, e.logger)
	if err != nil {
		return err
	}
	started := time.Now().UTC()
	run, err := bench.Run(ctx, s)
	if err != nil {
		e.putRun(ctx, &storage.RunRecord{
			RunID:      uuid.NewString(),
			Prefix:     cfg.OutputPrefix,
			StartedAt:  started,
			FinishedAt: time.Now().UTC(),
			State:      string(pipeline.StateFailed),
			Error:      err.Error(),
		})
		return err
	}
	run.State = string(pipeline.StateDone)
	e.putRun(ctx, run)

	return results.WriteMetrics(cmd.OutOrStdout(), run.Metrics)
}

func newPipelineCmd() *cobra.Command {
	cfg := &config.Config{}
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Extract, validate and benchmark a registry series",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := errors.Join(cfg.ValidateExtraction(), cfg.ValidateBacktest()); err != nil {
				return err
			}
			return runPipeline(cmd.Context(), cfg)
		},
	}
	cfg.AddExtractionFlags(cmd.Flags())
	cfg.AddValidationFlags(cmd.Flags())
	cfg.AddBacktestFlags(cmd.Flags())
	cfg.AddGlobalFlags(cmd.Flags())
	return cmd
}

func runPipeline(ctx context.Context, cfg *config.Config) error {
	years, err := extract.ParseYears(cfg.Years)
	if err != nil {
		return err
	}

	e, err := newEnv(ctx, cfg, "pipeline")
	if err != nil {
		return err
	}
	defer e.close()

	bench, err := NewBench(cfg, e.metrics, e.logger)
	if err != nil {
		return err
	}
	var run *storage.RunRecord
	benchmark := pipeline.BenchmarkFunc(func(ctx context.Context, a *extract.Artifact) error {
		r, err := bench.Run(ctx, a.Series)
		if err != nil {
			return err
		}
		run = r
		return nil
	})

	req := extract.Request{Source: cfg.Source, UF: cfg.UF, Years: years, Month: cfg.Month}
	pcfg := pipeline.Config{
		Request: req,
		Build: extract.BuildOptions{
			Rule:    extract.CIDRule{Column: cfg.CIDColumn, Prefix: cfg.CIDPrefix},
			Month:   cfg.Month,
			MaxRows: cfg.MaxRows,
			Name:    strings.ToLower(req.Source + "_" + req.UF),
		},
		Retry: pipeline.RetryPolicy{MaxAttempts: cfg.MaxAttempts, Wait: cfg.RetryWait},
	}

	recorder := newFileRecorder(cfg.OutputPrefix, e.store, e.logger)
	orch, err := pipeline.New(pcfg, channels(cfg, e), validate.RealDataPolicy(thresholds(cfg, true)), benchmark,
		pipeline.WithRecorder(recorder),
		pipeline.WithObserver(e.metrics),
		pipeline.WithLogger(e.logger),
	)
	if err != nil {
		return err
	}

	started := time.Now().UTC()
	outcome, runErr := orch.Run(ctx)

	if run == nil {
		run = &storage.RunRecord{
			RunID:      uuid.NewString(),
			Prefix:     cfg.OutputPrefix,
			StartedAt:  started,
			FinishedAt: time.Now().UTC(),
		}
	}
	run.State = string(outcome.State)
	if runErr != nil {
		run.Error = runErr.Error()
	}
	run.Extraction = &outcome.Metadata
	run.Validation = recorder.Verdict()
	e.putRun(ctx, run)

	return runErr
}

// channels returns the extraction tiers in order: mirror, fallback mirror,
// local exports.
func channels(cfg *config.Config, e *env) []extract.Channel {
	var out []extract.Channel
	for _, url := range []string{cfg.MirrorURL, cfg.FallbackURL} {
		if url != "" {
			out = append(out, extract.NewHTTPChannel(url, cfg.RequestRate, cfg.FetchTimeout, cfg.CacheDir, e.logger))
		}
	}
	if cfg.LocalPattern != "" {
		out = append(out, &extract.FileChannel{Path: cfg.LocalPattern})
	}
	return out
}

func thresholds(cfg *config.Config, requireMetadata bool) validate.Thresholds {
	t := validate.DefaultThresholds()
	t.CIDColumn = cfg.CIDColumn
	t.CIDPrefix = cfg.CIDPrefix
	t.ExpectedSource = cfg.Source
	t.MinSeriesPoints = cfg.MinSeriesPoints
	t.MinDistinctCIDs = cfg.MinDistinctCIDs
	t.MaxFilledFraction = cfg.MaxFilledFraction
	t.MinCV = cfg.MinCV
	t.RequireMetadata = requireMetadata
	return t
}

func newValidateCmd() *cobra.Command {
	cfg := &config.Config{}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that extracted files are real registry data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.RawCSV == "" || cfg.InputCSV == "" {
				return errors.New("--raw-csv and --series-csv are required")
			}
			return runValidate(cmd, cfg)
		},
	}
	cfg.AddValidateInputFlags(cmd.Flags())
	cfg.AddValidationFlags(cmd.Flags())
	cmd.Flags().StringVar(&cfg.LogFormat, "log-format", "text", "Log format: text or json")
	cmd.Flags().StringVar(&cfg.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	return cmd
}

func runValidate(cmd *cobra.Command, cfg *config.Config) error {
	log := logger.New(cfg)

	raw, err := extract.ReadFrameFile(cfg.RawCSV)
	if err != nil {
		return fmt.Errorf("read raw records: %w", err)
	}
	s, err := series.LoadFile(cfg.InputCSV, series.LoadOptions{})
	if err != nil {
		return fmt.Errorf("load series: %w", err)
	}
	a := &extract.Artifact{Raw: raw, Series: s, CIDColumn: cfg.CIDColumn}
	if cfg.MetaJSON != "" {
		var meta extract.Metadata
		if err := results.ReadJSON(cfg.MetaJSON, &meta); err != nil {
			return fmt.Errorf("read metadata: %w", err)
		}
		a.Metadata = &meta
	}

	verdict := validate.RealDataPolicy(thresholds(cfg, a.Metadata != nil)).Check(a)
	report := newValidationReport(verdict, cfg.RawCSV, cfg.InputCSV, a.Metadata)
	if err := results.WriteJSON(cfg.ReportOutput, report); err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}

	if !verdict.Passed {
		log.Error("data reality check failed", "reason", verdict.Reason, "report", cfg.ReportOutput)
		return fmt.Errorf("data reality check failed: %s", verdict.Reason)
	}
	log.Info("data reality check passed", "checks", len(verdict.Checks), "report", cfg.ReportOutput)
	return nil
}
