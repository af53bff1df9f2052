// Package pipeline composes extraction, validation and benchmarking into a
// single run with an explicit state machine.
//
// Extraction channels are tried in tiers, each with a bounded number of
// attempts and a constant wait between them. Only transient errors are
// retried. A dataset that fails validation never reaches the benchmark: its
// metadata is recorded with status failed and the run ends.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/HatiCode/tsbench/pkg/extract"
	"github.com/HatiCode/tsbench/pkg/validate"
)

var (
	// ErrExtractionExhausted is returned when every tier used up its attempts
	// or failed permanently.
	ErrExtractionExhausted = errors.New("extraction exhausted")
	// ErrInvalidData is returned when the extracted dataset was rejected.
	ErrInvalidData = errors.New("invalid data")
)

// Benchmarker runs the benchmark stage on a validated artifact.
type Benchmarker interface {
	Benchmark(ctx context.Context, a *extract.Artifact) error
}

// BenchmarkFunc adapts a function to a Benchmarker.
type BenchmarkFunc func(ctx context.Context, a *extract.Artifact) error

func (f BenchmarkFunc) Benchmark(ctx context.Context, a *extract.Artifact) error {
	return f(ctx, a)
}

// Recorder persists extraction metadata and verdicts as each stage settles.
type Recorder interface {
	RecordExtraction(ctx context.Context, meta extract.Metadata, a *extract.Artifact) error
	RecordValidation(ctx context.Context, meta extract.Metadata, v validate.Verdict) error
}

// Observer receives attempt and completion events.
type Observer interface {
	ExtractionAttempt(channel string, err error)
	Finished(state State)
}

type nopRecorder struct{}

func (nopRecorder) RecordExtraction(context.Context, extract.Metadata, *extract.Artifact) error {
	return nil
}

func (nopRecorder) RecordValidation(context.Context, extract.Metadata, validate.Verdict) error {
	return nil
}

type nopObserver struct{}

func (nopObserver) ExtractionAttempt(string, error) {}
func (nopObserver) Finished(State)                  {}

// RetryPolicy bounds the attempts made against a single channel.
type RetryPolicy struct {
	MaxAttempts int
	Wait        time.Duration
}

// Config describes what to extract and how to shape it.
type Config struct {
	Request extract.Request
	Build   extract.BuildOptions
	Retry   RetryPolicy
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := c.Request.Validate(); err != nil {
		return fmt.Errorf("request: %w", err)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.Wait < 0 {
		return fmt.Errorf("retry wait must be >= 0, got %s", c.Retry.Wait)
	}
	return nil
}

// Outcome summarizes a pipeline run.
type Outcome struct {
	State       State
	Transitions []Transition
	Metadata    extract.Metadata
	Verdict     *validate.Verdict
	Artifact    *extract.Artifact
	Err         error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder sets where metadata and verdicts are persisted.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithObserver sets the event hook.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithTimer replaces the timer used for retry waits.
func WithTimer(newTimer func() backoff.Timer) Option {
	return func(o *Orchestrator) { o.newTimer = newTimer }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator runs Extract, Validate and Benchmark in order.
type Orchestrator struct {
	cfg      Config
	channels []extract.Channel
	policy   validate.Policy
	bench    Benchmarker
	recorder Recorder
	observer Observer
	logger   *slog.Logger
	newTimer func() backoff.Timer
	now      func() time.Time
}

// New creates an orchestrator. channels are tried in order.
func New(cfg Config, channels []extract.Channel, policy validate.Policy, bench Benchmarker, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if len(channels) == 0 {
		return nil, errors.New("at least one extraction channel is required")
	}
	if policy == nil || bench == nil {
		return nil, errors.New("validation policy and benchmarker are required")
	}
	if cfg.Build.Rule.Column == "" {
		cfg.Build.Rule = extract.DefaultCIDRule
	}
	o := &Orchestrator{
		cfg:      cfg,
		channels: channels,
		policy:   policy,
		bench:    bench,
		recorder: nopRecorder{},
		observer: nopObserver{},
		logger:   slog.Default(),
		newTimer: func() backoff.Timer { return nil },
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run executes the pipeline once. Every call starts from pending with no
// attempts, so a failed pipeline can simply be run again. The returned error
// equals Outcome.Err and is nil only when the run reached done.
func (o *Orchestrator) Run(ctx context.Context) (*Outcome, error) {
	m := newMachine(o.now)
	meta := extract.NewMetadata(o.cfg.Request, o.cfg.Build.Rule, o.now())
	out := &Outcome{}

	finish := func(err error) (*Outcome, error) {
		if err != nil {
			m.to(StateFailed)
		}
		out.State = m.state
		out.Transitions = m.history
		out.Metadata = meta
		out.Err = err
		o.observer.Finished(m.state)
		o.logger.Info("pipeline finished", "state", m.state, "attempts", meta.AttemptCount, "transitions", len(m.history))
		return out, err
	}

	raw, channel, err := o.extract(ctx, m, &meta)
	meta.FinishedAt = o.now().UTC()
	if err != nil {
		meta.Status = extract.StatusFailed
		meta.Error = err.Error()
		if ctx.Err() == nil {
			m.to(StateExtractionExhausted)
			err = fmt.Errorf("%w: %w", ErrExtractionExhausted, err)
		}
		o.logger.Error("extraction failed", "attempts", meta.AttemptCount, "error", err)
		if rerr := o.recorder.RecordExtraction(ctx, meta, nil); rerr != nil {
			err = errors.Join(err, fmt.Errorf("record extraction: %w", rerr))
		}
		return finish(err)
	}

	meta.Channel = channel
	meta.RowsDownloaded = raw.Len()
	artifact, err := extract.Build(raw, o.cfg.Build)
	if err != nil {
		m.to(StateExtracted)
		m.to(StateValidating)
		m.to(StateInvalid)
		meta.Status = extract.StatusFailed
		meta.Error = fmt.Sprintf("build: %v", err)
		o.logger.Error("extracted records are unusable", "channel", channel, "error", err)
		rerr := o.recorder.RecordExtraction(ctx, meta, nil)
		return finish(errors.Join(fmt.Errorf("%w: %w", ErrInvalidData, err), rerr))
	}

	extractedAt := meta.FinishedAt
	meta.Status = extract.StatusSuccess
	meta.ExtractedAt = &extractedAt
	meta.CIDColumn = artifact.CIDColumn
	meta.DateColumn = artifact.DateColumn
	meta.RowsAfterFilter = artifact.Raw.Len()
	meta.SeriesPoints = artifact.Series.Len()
	artifact.Metadata = &meta
	out.Artifact = artifact
	m.to(StateExtracted)
	o.logger.Info("extraction succeeded",
		"channel", channel,
		"attempts", meta.AttemptCount,
		"rows_downloaded", meta.RowsDownloaded,
		"rows_after_filter", meta.RowsAfterFilter,
		"series_points", meta.SeriesPoints,
	)
	if err := o.recorder.RecordExtraction(ctx, meta, artifact); err != nil {
		return finish(fmt.Errorf("record extraction: %w", err))
	}

	m.to(StateValidating)
	verdict := o.policy.Check(artifact)
	out.Verdict = &verdict
	if !verdict.Passed {
		m.to(StateInvalid)
		meta.Status = extract.StatusFailed
		meta.Error = "validation: " + verdict.Reason
		o.logger.Error("dataset rejected", "reason", verdict.Reason)
		rerr := o.recorder.RecordValidation(ctx, meta, verdict)
		return finish(errors.Join(fmt.Errorf("%w: %s", ErrInvalidData, verdict.Reason), rerr))
	}
	m.to(StateValidated)
	if err := o.recorder.RecordValidation(ctx, meta, verdict); err != nil {
		return finish(fmt.Errorf("record validation: %w", err))
	}

	m.to(StateBenchmarking)
	if err := o.bench.Benchmark(ctx, artifact); err != nil {
		return finish(fmt.Errorf("benchmark: %w", err))
	}
	m.to(StateDone)
	return finish(nil)
}

// extract tries each channel in order and returns the first success.
func (o *Orchestrator) extract(ctx context.Context, m *machine, meta *extract.Metadata) (*extract.Frame, string, error) {
	var errs []error
	for i, ch := range o.channels {
		frame, err := o.extractTier(ctx, m, meta, ch)
		if err == nil {
			return frame, ch.Name(), nil
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		o.logger.Warn("extraction tier failed", "tier", i+1, "channel", ch.Name(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
	}
	return nil, "", errors.Join(errs...)
}

func (o *Orchestrator) extractTier(ctx context.Context, m *machine, meta *extract.Metadata, ch extract.Channel) (*extract.Frame, error) {
	var frame *extract.Frame
	operation := func() error {
		m.to(StateExtracting)
		started := o.now()
		f, err := ch.Extract(ctx, o.cfg.Request)

		meta.AttemptCount++
		attempt := extract.Attempt{
			N:         meta.AttemptCount,
			Channel:   ch.Name(),
			StartedAt: started.UTC(),
			Duration:  o.now().Sub(started),
		}
		if err != nil {
			attempt.Err = err.Error()
		}
		meta.Attempts = append(meta.Attempts, attempt)
		o.observer.ExtractionAttempt(ch.Name(), err)

		if err == nil {
			frame = f
			return nil
		}
		if ctx.Err() != nil || !extract.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(o.cfg.Retry.Wait), uint64(o.cfg.Retry.MaxAttempts-1)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		m.to(StateRetryWait)
		o.logger.Warn("extraction attempt failed, retrying",
			"channel", ch.Name(),
			"attempt", meta.AttemptCount,
			"wait", wait,
			"error", err,
		)
	}
	if err := backoff.RetryNotifyWithTimer(operation, b, notify, o.newTimer()); err != nil {
		return nil, err
	}
	return frame, nil
}

// States lists the states an outcome passed through, starting with pending.
func (out *Outcome) States() []State {
	m := &machine{history: out.Transitions}
	return m.states()
}
