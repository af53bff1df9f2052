// Package metrics collects Prometheus metrics for a tsbench run.
//
// tsbench is a batch job, so metrics live in a private registry and are
// exported once at the end of the run, either to a node-exporter textfile or
// to a Pushgateway.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/HatiCode/tsbench/pkg/backtest"
	"github.com/HatiCode/tsbench/pkg/evaluate"
	"github.com/HatiCode/tsbench/pkg/pipeline"
)

// Metrics implements backtest.Observer and pipeline.Observer.
type Metrics struct {
	registry *prometheus.Registry

	FitSeconds         *prometheus.HistogramVec
	PredictSeconds     *prometheus.HistogramVec
	PredictionsTotal   *prometheus.CounterVec
	SkippedModelsTotal *prometheus.CounterVec
	ExtractionAttempts *prometheus.CounterVec
	Windows            prometheus.Gauge
	ModelSMAPE         *prometheus.GaugeVec
	ModelMAE           *prometheus.GaugeVec
	PipelineState      *prometheus.GaugeVec
	LastRunTimestamp   prometheus.Gauge
}

// New creates the run metrics, labeled with the output prefix.
func New(prefix string) *Metrics {
	labels := prometheus.Labels{"prefix": prefix}
	buckets := []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FitSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "tsbench_model_fit_seconds",
			Help:        "Time spent fitting a model on one window",
			Buckets:     buckets,
			ConstLabels: labels,
		}, []string{"model"}),
		PredictSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "tsbench_model_predict_seconds",
			Help:        "Time spent predicting one window",
			Buckets:     buckets,
			ConstLabels: labels,
		}, []string{"model"}),
		PredictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "tsbench_predictions_total",
			Help:        "Point forecasts produced by completed models",
			ConstLabels: labels,
		}, []string{"model"}),
		SkippedModelsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "tsbench_skipped_models_total",
			Help:        "Models excluded from a run by stage",
			ConstLabels: labels,
		}, []string{"model", "stage"}),
		ExtractionAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "tsbench_extraction_attempts_total",
			Help:        "Extraction attempts by channel and outcome",
			ConstLabels: labels,
		}, []string{"channel", "outcome"}),
		Windows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "tsbench_windows",
			Help:        "Rolling-origin windows evaluated in the last run",
			ConstLabels: labels,
		}),
		ModelSMAPE: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "tsbench_model_smape",
			Help:        "sMAPE of each model in the last run",
			ConstLabels: labels,
		}, []string{"model"}),
		ModelMAE: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "tsbench_model_mae",
			Help:        "MAE of each model in the last run",
			ConstLabels: labels,
		}, []string{"model"}),
		PipelineState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "tsbench_pipeline_state",
			Help:        "Terminal pipeline state of the last run (1 for the reached state)",
			ConstLabels: labels,
		}, []string{"state"}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "tsbench_last_run_timestamp_seconds",
			Help:        "Unix time the last run finished",
			ConstLabels: labels,
		}),
	}

	m.registry.MustRegister(
		m.FitSeconds,
		m.PredictSeconds,
		m.PredictionsTotal,
		m.SkippedModelsTotal,
		m.ExtractionAttempts,
		m.Windows,
		m.ModelSMAPE,
		m.ModelMAE,
		m.PipelineState,
		m.LastRunTimestamp,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveFit(model string, d time.Duration) {
	m.FitSeconds.WithLabelValues(model).Observe(d.Seconds())
}

func (m *Metrics) ObservePredict(model string, d time.Duration) {
	m.PredictSeconds.WithLabelValues(model).Observe(d.Seconds())
}

func (m *Metrics) ModelSkipped(s backtest.SkippedModel) {
	m.SkippedModelsTotal.WithLabelValues(s.Model, string(s.Stage)).Inc()
}

func (m *Metrics) ExtractionAttempt(channel string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.ExtractionAttempts.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) Finished(state pipeline.State) {
	m.PipelineState.Reset()
	m.PipelineState.WithLabelValues(string(state)).Set(1)
}

// RecordResults records the outcome of a benchmark.
func (m *Metrics) RecordResults(windows int, results []evaluate.Result) {
	m.Windows.Set(float64(windows))
	for _, r := range results {
		m.PredictionsTotal.WithLabelValues(r.Model).Add(float64(r.N))
		m.ModelSMAPE.WithLabelValues(r.Model).Set(r.SMAPE)
		m.ModelMAE.WithLabelValues(r.Model).Set(r.MAE)
	}
	m.LastRunTimestamp.SetToCurrentTime()
}

// Export writes the registry to textfile and pushes it to pushURL. Empty
// targets are skipped.
func (m *Metrics) Export(ctx context.Context, textfile, pushURL, job string) error {
	if textfile != "" {
		if err := prometheus.WriteToTextfile(textfile, m.registry); err != nil {
			return fmt.Errorf("write metrics textfile: %w", err)
		}
	}
	if pushURL != "" {
		if err := push.New(pushURL, job).Gatherer(m.registry).PushContext(ctx); err != nil {
			return fmt.Errorf("push metrics: %w", err)
		}
	}
	return nil
}
