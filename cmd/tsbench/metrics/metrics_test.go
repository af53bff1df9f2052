package metrics

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/HatiCode/tsbench/pkg/backtest"
	"github.com/HatiCode/tsbench/pkg/evaluate"
	"github.com/HatiCode/tsbench/pkg/pipeline"
)

func TestObserveFitAndPredict(t *testing.T) {
	m := New("results/test")

	m.ObserveFit("sarima", 120*time.Millisecond)
	m.ObserveFit("mean", time.Millisecond)
	m.ObservePredict("sarima", 3*time.Millisecond)

	if count := testutil.CollectAndCount(m.FitSeconds); count != 2 {
		t.Errorf("expected 2 fit series, got %d", count)
	}
	if count := testutil.CollectAndCount(m.PredictSeconds); count != 1 {
		t.Errorf("expected 1 predict series, got %d", count)
	}
}

func TestModelSkipped(t *testing.T) {
	m := New("results/test")

	m.ModelSkipped(backtest.SkippedModel{Model: "foundation", Stage: backtest.StageConstruct, Reason: "no checkpoint"})
	m.ModelSkipped(backtest.SkippedModel{Model: "foundation", Stage: backtest.StageConstruct, Reason: "no checkpoint"})

	got := testutil.ToFloat64(m.SkippedModelsTotal.WithLabelValues("foundation", "construct"))
	if got != 2 {
		t.Errorf("skipped count = %v, want 2", got)
	}
}

func TestExtractionAttempt(t *testing.T) {
	m := New("results/test")

	m.ExtractionAttempt("http-mirror", errors.New("timeout"))
	m.ExtractionAttempt("http-mirror", errors.New("timeout"))
	m.ExtractionAttempt("http-mirror", nil)

	if got := testutil.ToFloat64(m.ExtractionAttempts.WithLabelValues("http-mirror", "error")); got != 2 {
		t.Errorf("error attempts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ExtractionAttempts.WithLabelValues("http-mirror", "success")); got != 1 {
		t.Errorf("success attempts = %v, want 1", got)
	}
}

func TestFinished(t *testing.T) {
	m := New("results/test")

	m.Finished(pipeline.StateFailed)
	m.Finished(pipeline.StateDone)

	if count := testutil.CollectAndCount(m.PipelineState); count != 1 {
		t.Errorf("expected only the last state, got %d series", count)
	}
	if got := testutil.ToFloat64(m.PipelineState.WithLabelValues("done")); got != 1 {
		t.Errorf("done gauge = %v, want 1", got)
	}
}

func TestRecordResults(t *testing.T) {
	m := New("results/test")

	m.RecordResults(31, []evaluate.Result{
		{Model: "sarima", MAE: 10, RMSE: 12, SMAPE: 8.5, N: 186},
		{Model: "mean", MAE: 25, RMSE: 30, SMAPE: math.NaN(), N: 186},
	})

	if got := testutil.ToFloat64(m.Windows); got != 31 {
		t.Errorf("windows = %v, want 31", got)
	}
	if got := testutil.ToFloat64(m.PredictionsTotal.WithLabelValues("sarima")); got != 186 {
		t.Errorf("predictions = %v, want 186", got)
	}
	if got := testutil.ToFloat64(m.ModelSMAPE.WithLabelValues("sarima")); got != 8.5 {
		t.Errorf("smape = %v, want 8.5", got)
	}
	if got := testutil.ToFloat64(m.ModelSMAPE.WithLabelValues("mean")); !math.IsNaN(got) {
		t.Errorf("smape = %v, want NaN", got)
	}
	if got := testutil.ToFloat64(m.LastRunTimestamp); got <= 0 {
		t.Errorf("last run timestamp not set")
	}
}

func TestExport_Textfile(t *testing.T) {
	m := New("results/test")
	m.RecordResults(5, nil)
	path := filepath.Join(t.TempDir(), "tsbench.prom")

	if err := m.Export(context.Background(), path, "", ""); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `tsbench_windows{prefix="results/test"} 5`) {
		t.Errorf("textfile missing windows gauge:\n%s", data)
	}
}

func TestExport_Push(t *testing.T) {
	var pushed atomic.Int32
	var body atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/metrics/job/tsbench") {
			t.Errorf("unexpected push path: %s", r.URL.Path)
		}
		data, _ := io.ReadAll(r.Body)
		body.Store(len(data))
		pushed.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m := New("results/test")
	m.RecordResults(5, nil)
	if err := m.Export(context.Background(), "", server.URL, "tsbench"); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if pushed.Load() != 1 {
		t.Errorf("expected 1 push, got %d", pushed.Load())
	}
	if n, _ := body.Load().(int); n == 0 {
		t.Error("expected a non-empty push body")
	}
}

func TestExport_Nothing(t *testing.T) {
	if err := New("results/test").Export(context.Background(), "", "", ""); err != nil {
		t.Errorf("Export() error = %v", err)
	}
}
