package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/HatiCode/tsbench/cmd/tsbench/config"
	"github.com/HatiCode/tsbench/cmd/tsbench/metrics"
	tsmodels "github.com/HatiCode/tsbench/cmd/tsbench/models"
	"github.com/HatiCode/tsbench/pkg/backtest"
	"github.com/HatiCode/tsbench/pkg/evaluate"
	"github.com/HatiCode/tsbench/pkg/results"
	"github.com/HatiCode/tsbench/pkg/series"
	"github.com/HatiCode/tsbench/pkg/storage"
)

// Bench runs one benchmark: build models → backtest → score → write outputs.
type Bench struct {
	cfg     *config.Config
	policy  evaluate.ZeroPolicy
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewBench creates a Bench. The sMAPE zero policy is parsed from cfg.
func NewBench(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*Bench, error) {
	if logger == nil {
		logger = slog.Default()
	}
	policy, err := evaluate.ParseZeroPolicy(cfg.ZeroPolicy)
	if err != nil {
		return nil, err
	}
	return &Bench{
		cfg:     cfg,
		policy:  policy,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Run benchmarks s and writes the output files. The returned record is not
// stored; callers attach extraction details and persist it.
func (b *Bench) Run(ctx context.Context, s *series.Series) (*storage.RunRecord, error) {
	start := time.Now()
	run := &storage.RunRecord{
		RunID:     uuid.NewString(),
		Prefix:    b.cfg.OutputPrefix,
		StartedAt: b.now().UTC(),
	}
	b.logger.Debug("starting benchmark", "run_id", run.RunID, "series", s.Name)

	set, buildDuration, err := b.buildModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("models: %w", err)
	}
	defer func() {
		if err := set.Close(); err != nil {
			b.logger.Warn("failed to release model resources", "error", err)
		}
	}()

	res, backtestDuration, err := b.backtest(ctx, s, set)
	if err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}

	scores := evaluate.Aggregate(res.Records, b.policy)
	b.metrics.RecordResults(len(res.Windows), scores)

	paths, err := results.SaveBenchmark(b.cfg.OutputPrefix, scores, res)
	if err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}

	for _, skip := range res.Skipped {
		b.logger.Warn("model skipped", "model", skip.Model, "stage", skip.Stage, "reason", skip.Reason)
	}

	run.FinishedAt = b.now().UTC()
	run.Windows = len(res.Windows)
	run.Metrics = scores
	run.Skipped = res.Skipped

	b.logger.Info("benchmark complete",
		"run_id", run.RunID,
		"windows", len(res.Windows),
		"models_completed", len(res.Models),
		"models_skipped", len(res.Skipped),
		"metrics_file", paths.Metrics,
		"build_ms", buildDuration.Milliseconds(),
		"backtest_ms", backtestDuration.Milliseconds(),
		"total_ms", time.Since(start).Milliseconds(),
	)
	return run, nil
}

// buildModels constructs the configured models and reports the ones that
// could not be built.
func (b *Bench) buildModels(ctx context.Context) (*tsmodels.Set, time.Duration, error) {
	start := time.Now()

	set, err := tsmodels.New(ctx, b.cfg, b.logger)
	if err != nil {
		return nil, 0, err
	}
	for _, skip := range set.Unavailable {
		b.metrics.ModelSkipped(skip)
	}

	duration := time.Since(start)
	b.logger.Debug("built models",
		"available", len(set.Models),
		"unavailable", len(set.Unavailable),
		"duration_ms", duration.Milliseconds(),
	)
	return set, duration, nil
}

func (b *Bench) backtest(ctx context.Context, s *series.Series, set *tsmodels.Set) (*backtest.Result, time.Duration, error) {
	start := time.Now()

	runner := backtest.NewRunner(backtest.Config{
		Horizon:      b.cfg.Horizon,
		MinTrainSize: b.cfg.MinTrainSize,
		Workers:      b.cfg.Workers,
	}, b.metrics, b.logger)

	res, err := runner.Run(ctx, s, set.Models, set.Unavailable)
	if err != nil {
		return nil, 0, err
	}
	return res, time.Since(start), nil
}
