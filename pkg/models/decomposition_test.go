package models

import (
	"context"
	"math"
	"testing"
)

func TestDecompositionModel_TrendPlusSeason(t *testing.T) {
	full := syntheticSeasonal(48, 10, 2, 5)

	m, err := NewDecompositionModel(12, true)
	if err != nil {
		t.Fatal(err)
	}
	fit, err := m.Fit(context.Background(), makeSeries(full[:36]))
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	out, err := fit.Predict(context.Background(), 12)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	for i, v := range out {
		if math.Abs(v-full[36+i]) > 1e-6 {
			t.Errorf("out[%d] = %f, want %f", i, v, full[36+i])
		}
	}
}

func TestDecompositionModel_TrendOnly(t *testing.T) {
	m, _ := NewDecompositionModel(12, false)
	fit, err := m.Fit(context.Background(), makeSeries([]float64{1, 3, 5, 7}))
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	out, _ := fit.Predict(context.Background(), 2)
	if math.Abs(out[0]-9) > 1e-9 || math.Abs(out[1]-11) > 1e-9 {
		t.Errorf("Predict() = %v, want [9 11]", out)
	}
}

func TestDecompositionModel_Errors(t *testing.T) {
	if _, err := NewDecompositionModel(1, true); !IsUnavailable(err) {
		t.Errorf("NewDecompositionModel(1) error = %v, want ModelUnavailableError", err)
	}

	m, _ := NewDecompositionModel(12, true)
	_, err := m.Fit(context.Background(), makeSeries(syntheticSeasonal(20, 10, 1, 1)))
	if err == nil || !contains(err.Error(), "need at least 24") {
		t.Errorf("Fit() error = %v, want insufficient seasonality error", err)
	}
}

func TestCenteredMovingAverage(t *testing.T) {
	got := centeredMovingAverage([]float64{1, 2, 3, 4, 5}, 3)
	if !math.IsNaN(got[0]) || !math.IsNaN(got[4]) {
		t.Errorf("edges = %v, %v, want NaN", got[0], got[4])
	}
	for i, want := range map[int]float64{1: 2, 2: 3, 3: 4} {
		if got[i] != want {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want)
		}
	}
}

func TestLinearFit(t *testing.T) {
	intercept, slope := linearFit([]float64{5, 7, 9})
	if math.Abs(intercept-5) > 1e-9 || math.Abs(slope-2) > 1e-9 {
		t.Errorf("linearFit() = %v, %v, want 5, 2", intercept, slope)
	}
	intercept, slope = linearFit([]float64{4})
	if intercept != 4 || slope != 0 {
		t.Errorf("linearFit(single) = %v, %v, want 4, 0", intercept, slope)
	}
}
