package models

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/HatiCode/tsbench/pkg/series"
)

// makeSeries builds a monthly series starting January 2018.
func makeSeries(values []float64) *series.Series {
	start := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	pts := make([]series.Point, len(values))
	for i, v := range values {
		pts[i] = series.Point{Time: start.AddDate(0, i, 0), Value: v}
	}
	return &series.Series{Name: "test", Points: pts}
}

// syntheticSeasonal generates trend + yearly seasonality.
func syntheticSeasonal(n int, level, slope, amplitude float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = level + slope*float64(i) + amplitude*math.Sin(2*math.Pi*float64(i)/12)
	}
	return out
}

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}

func TestBaselineModels_Name(t *testing.T) {
	if got := NewEMAModel(0, 0).Name(); got != "ema" {
		t.Errorf("EMAModel.Name() = %q", got)
	}
	if got := (MeanModel{}).Name(); got != "mean" {
		t.Errorf("MeanModel.Name() = %q", got)
	}
	if got := NewSeasonalNaiveModel(12).Name(); got != "snaive" {
		t.Errorf("SeasonalNaiveModel.Name() = %q", got)
	}
}

func TestEMAModel_Predict(t *testing.T) {
	m := NewEMAModel(3, 12)
	fit, err := m.Fit(context.Background(), makeSeries([]float64{100, 100, 100, 100}))
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	out, err := fit.Predict(context.Background(), 6)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if len(out) != 6 {
		t.Fatalf("len(Predict()) = %d, want 6", len(out))
	}
	for i, v := range out {
		if math.Abs(v-100) > 1e-9 {
			t.Errorf("out[%d] = %f, want 100", i, v)
		}
	}
}

func TestEMAModel_EmptyTraining(t *testing.T) {
	_, err := NewEMAModel(3, 12).Fit(context.Background(), makeSeries(nil))
	if err == nil || !contains(err.Error(), "empty") {
		t.Errorf("Fit() error = %v, want empty training error", err)
	}
}

func TestMeanModel_Predict(t *testing.T) {
	fit, err := MeanModel{}.Fit(context.Background(), makeSeries([]float64{1, 2, 3, 6}))
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	out, _ := fit.Predict(context.Background(), 2)
	if out[0] != 3 || out[1] != 3 {
		t.Errorf("Predict() = %v, want [3 3]", out)
	}
	if _, err := fit.Predict(context.Background(), 0); err == nil {
		t.Error("Predict(0) expected error")
	}
}

func TestSeasonalNaiveModel_Predict(t *testing.T) {
	values := make([]float64, 24)
	for i := range values {
		values[i] = float64(i % 12)
	}
	fit, err := NewSeasonalNaiveModel(12).Fit(context.Background(), makeSeries(values))
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	out, _ := fit.Predict(context.Background(), 14)
	for i, v := range out {
		if v != float64(i%12) {
			t.Errorf("out[%d] = %v, want %v", i, v, float64(i%12))
		}
	}

	if _, err := NewSeasonalNaiveModel(12).Fit(context.Background(), makeSeries(values[:5])); err == nil {
		t.Error("Fit() on short series expected error")
	}
}

func TestBaseline_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := (MeanModel{}).Fit(ctx, makeSeries([]float64{1})); err != context.Canceled {
		t.Errorf("Fit() error = %v, want %v", err, context.Canceled)
	}
}

func TestComputeEMA(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		n      int
		want   float64
	}{
		{
			name:   "constant values",
			values: []float64{100, 100, 100, 100, 100},
			n:      5,
			want:   100,
		},
		{
			name:   "increasing values",
			values: []float64{10, 20, 30, 40, 50},
			n:      5,
			want:   34.0,
		},
		{
			name:   "fewer values than n",
			values: []float64{10, 20, 30},
			n:      5,
			want:   22.5,
		},
		{
			name:   "empty values",
			values: []float64{},
			n:      5,
			want:   0,
		},
		{
			name:   "single value",
			values: []float64{42},
			n:      5,
			want:   42,
		},
		{
			name:   "more values than n",
			values: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
			n:      5,
			want:   8.33, // uses last 5 values
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeEMA(tt.values, tt.n)

			// Allow 1% tolerance for floating point
			tolerance := tt.want * 0.01
			if tolerance == 0 {
				tolerance = 0.01
			}

			if got < tt.want-tolerance || got > tt.want+tolerance {
				t.Errorf("computeEMA() = %.2f, want ~%.2f (±%.2f)", got, tt.want, tolerance)
			}
		})
	}
}
