package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HatiCode/tsbench/pkg/models"
	"github.com/HatiCode/tsbench/pkg/series"
	"github.com/HatiCode/tsbench/pkg/window"
)

// Result is the output of a backtest run.
type Result struct {
	// Windows are the splits the models were evaluated on.
	Windows []window.Window

	// Models lists the models that completed every window, in input order.
	Models []string

	// Records holds the forecasts of completed models ordered by model,
	// window and step.
	Records []PredictionRecord

	// Skipped lists excluded models: those that failed to construct and those
	// that failed on any window.
	Skipped []SkippedModel
}

// RecordsFor returns the records of one model.
func (r *Result) RecordsFor(model string) []PredictionRecord {
	var out []PredictionRecord
	for _, rec := range r.Records {
		if rec.Model == model {
			out = append(out, rec)
		}
	}
	return out
}

// Runner evaluates models over rolling-origin windows.
//
// A model that fails to fit or predict on any window, or returns a forecast of
// the wrong length, is excluded from the whole run: its partial records are
// discarded and it is reported in Result.Skipped. Other models are unaffected.
type Runner struct {
	cfg      Config
	observer Observer
	logger   *slog.Logger
}

// NewRunner creates a runner. observer and logger may be nil.
func NewRunner(cfg Config, observer Observer, logger *slog.Logger) *Runner {
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, observer: observer, logger: logger}
}

// failure is the first failure seen for a model, by window ID.
type failure struct {
	windowID int
	skip     SkippedModel
}

// Run fits and predicts every model on every window of s. Models that could
// not be constructed are passed in unavailable and carried into the result.
//
// Errors are returned only for invalid input, a series too short for any
// window, an empty model list, or context cancellation. Model failures are
// never returned as errors.
func (r *Runner) Run(ctx context.Context, s *series.Series, ms []models.Model, unavailable []SkippedModel) (*Result, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if len(ms) == 0 {
		return nil, ErrNoModels
	}

	seq, err := window.Generate(s.Len(), r.cfg.MinTrainSize, r.cfg.Horizon)
	if err != nil {
		return nil, err
	}
	windows := seq.Collect()

	start := time.Now()
	r.logger.Info("starting backtest",
		"series", s.Name,
		"points", s.Len(),
		"windows", len(windows),
		"models", len(ms),
		"workers", max(r.cfg.Workers, 1),
	)

	// shards[m][w] is written by exactly one task.
	shards := make([][][]PredictionRecord, len(ms))
	for i := range shards {
		shards[i] = make([][]PredictionRecord, len(windows))
	}

	var mu sync.Mutex
	failed := make(map[int]failure)
	// failedBefore keeps the recorded failure independent of scheduling:
	// windows earlier than a known failure still run and may replace it.
	failedBefore := func(mi, windowID int) bool {
		mu.Lock()
		defer mu.Unlock()
		f, ok := failed[mi]
		return ok && f.windowID < windowID
	}
	fail := func(mi, windowID int, stage Stage, err error) {
		mu.Lock()
		defer mu.Unlock()
		if prev, ok := failed[mi]; ok && prev.windowID <= windowID {
			return
		}
		failed[mi] = failure{
			windowID: windowID,
			skip:     SkippedModel{Model: ms[mi].Name(), Stage: stage, Reason: err.Error()},
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.cfg.Workers, 1))

	for _, w := range windows {
		for mi, m := range ms {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				if failedBefore(mi, w.ID) {
					return nil
				}

				recs, stage, err := r.evaluate(gctx, m, s, w)
				if err != nil {
					if ctxErr := gctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
						return err
					}
					fail(mi, w.ID, stage, err)
					return nil
				}
				shards[mi][w.ID] = recs
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("backtest canceled: %w", err)
	}

	res := &Result{Windows: windows}
	res.Skipped = append(res.Skipped, unavailable...)
	for mi, m := range ms {
		if f, ok := failed[mi]; ok {
			r.logger.Warn("model excluded from run",
				"model", m.Name(),
				"stage", f.skip.Stage,
				"window", f.windowID,
				"reason", f.skip.Reason,
			)
			r.observer.ModelSkipped(f.skip)
			res.Skipped = append(res.Skipped, f.skip)
			continue
		}
		res.Models = append(res.Models, m.Name())
		for _, recs := range shards[mi] {
			res.Records = append(res.Records, recs...)
		}
	}

	r.logger.Info("backtest complete",
		"models_completed", len(res.Models),
		"models_skipped", len(res.Skipped),
		"predictions", len(res.Records),
		"total_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// evaluate fits m on the window's training slice and forecasts its test
// slice.
func (r *Runner) evaluate(ctx context.Context, m models.Model, s *series.Series, w window.Window) ([]PredictionRecord, Stage, error) {
	start := time.Now()
	fitted, err := m.Fit(ctx, w.Train(s))
	if err != nil {
		return nil, StageFit, err
	}
	r.observer.ObserveFit(m.Name(), time.Since(start))

	start = time.Now()
	pred, err := fitted.Predict(ctx, w.Horizon())
	if err != nil {
		return nil, StagePredict, err
	}
	r.observer.ObservePredict(m.Name(), time.Since(start))

	if len(pred) != w.Horizon() {
		return nil, StagePredict, fmt.Errorf("forecast has %d values, want %d", len(pred), w.Horizon())
	}

	recs := make([]PredictionRecord, w.Horizon())
	for i := range recs {
		p := s.Points[w.TestStart+i]
		recs[i] = PredictionRecord{
			WindowID:  w.ID,
			Model:     m.Name(),
			Step:      i + 1,
			Time:      p.Time,
			Actual:    p.Value,
			Predicted: pred[i],
		}
	}

	r.logger.Debug("window evaluated",
		"model", m.Name(),
		"window", w.ID,
		"train_points", w.TrainLen(),
	)
	return recs, "", nil
}
