package models

import (
	"context"
	"math"
	"sync"
	"testing"
)

func TestNewSARIMAModel_InvalidOrder(t *testing.T) {
	tests := []struct {
		name  string
		order SARIMAOrder
	}{
		{"negative p", SARIMAOrder{P: -1, D: 1, Q: 1}},
		{"d > 2", SARIMAOrder{P: 1, D: 3, Q: 1}},
		{"seasonal D > 1", SARIMAOrder{P: 1, D: 1, Q: 1, SD: 2, Period: 12}},
		{"seasonal without period", SARIMAOrder{P: 1, D: 1, Q: 1, SP: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSARIMAModel(tt.order, false)
			if !IsUnavailable(err) {
				t.Errorf("NewSARIMAModel() error = %v, want ModelUnavailableError", err)
			}
		})
	}
}

func TestSARIMAModel_Name(t *testing.T) {
	m, err := NewSARIMAModel(DefaultSARIMAOrder, false)
	if err != nil {
		t.Fatal(err)
	}
	if m.Name() != "sarima" {
		t.Errorf("Name() = %q, want sarima", m.Name())
	}
	if got := m.Order().String(); got != "(1,1,1)(1,1,1,12)" {
		t.Errorf("Order().String() = %q", got)
	}
}

func TestSARIMAModel_Fit_InsufficientData(t *testing.T) {
	m, _ := NewSARIMAModel(DefaultSARIMAOrder, false)
	_, err := m.Fit(context.Background(), makeSeries(syntheticSeasonal(10, 100, 1, 10)))
	if err == nil {
		t.Fatal("Fit() error = nil, want error for insufficient data")
	}
	if !contains(err.Error(), "need at least") {
		t.Errorf("error message = %q, want to contain 'need at least'", err.Error())
	}
}

func TestSARIMAModel_TrendPlusSeasonExact(t *testing.T) {
	// Linear trend plus a period-12 cycle vanishes under first and seasonal
	// differencing, so integration must reproduce the continuation exactly.
	full := syntheticSeasonal(60, 100, 2, 15)

	m, _ := NewSARIMAModel(DefaultSARIMAOrder, false)
	fit, err := m.Fit(context.Background(), makeSeries(full[:48]))
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	out, err := fit.Predict(context.Background(), 12)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	for i, v := range out {
		if math.Abs(v-full[48+i]) > 1e-6 {
			t.Errorf("out[%d] = %f, want %f", i, v, full[48+i])
		}
	}
}

func TestSARIMAModel_MinimumTraining(t *testing.T) {
	m, _ := NewSARIMAModel(DefaultSARIMAOrder, false)
	values := syntheticSeasonal(24, 50, 0.5, 8)
	for i := range values {
		values[i] += 3 * math.Cos(float64(i)*1.7)
	}

	fit, err := m.Fit(context.Background(), makeSeries(values))
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	out, err := fit.Predict(context.Background(), 6)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if len(out) != 6 {
		t.Fatalf("len(out) = %d, want 6", len(out))
	}
	for i, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("out[%d] = %v, want finite", i, v)
		}
	}
}

func TestSARIMAModel_LogTransform(t *testing.T) {
	m, _ := NewSARIMAModel(DefaultSARIMAOrder, true)

	values := syntheticSeasonal(36, 100, 1, 20)
	fit, err := m.Fit(context.Background(), makeSeries(values))
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	out, err := fit.Predict(context.Background(), 6)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	for i, v := range out {
		if v <= 0 {
			t.Errorf("out[%d] = %f, want positive under log transform", i, v)
		}
	}

	values[5] = 0
	if _, err := m.Fit(context.Background(), makeSeries(values)); !IsUnavailable(err) {
		t.Errorf("Fit() with zero value error = %v, want ModelUnavailableError", err)
	}
}

func TestSARIMAModel_NonSeasonal(t *testing.T) {
	m, err := NewSARIMAModel(SARIMAOrder{P: 1, D: 1, Q: 1}, false)
	if err != nil {
		t.Fatal(err)
	}
	values := make([]float64, 30)
	for i := range values {
		values[i] = 10 + 3*float64(i)
	}
	fit, err := m.Fit(context.Background(), makeSeries(values))
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	out, _ := fit.Predict(context.Background(), 3)
	for i, v := range out {
		want := 10 + 3*float64(30+i)
		if math.Abs(v-want) > 1e-6 {
			t.Errorf("out[%d] = %f, want %f", i, v, want)
		}
	}
}

func TestSARIMAModel_ContextCancellation(t *testing.T) {
	m, _ := NewSARIMAModel(DefaultSARIMAOrder, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Fit(ctx, makeSeries(syntheticSeasonal(48, 100, 1, 10)))
	if err != context.Canceled {
		t.Errorf("Fit() error = %v, want %v", err, context.Canceled)
	}
}

func TestSARIMAModel_Concurrency_Predict(t *testing.T) {
	m, _ := NewSARIMAModel(DefaultSARIMAOrder, false)
	fit, err := m.Fit(context.Background(), makeSeries(syntheticSeasonal(48, 100, 1, 10)))
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for range 5 {
		wg.Go(func() {
			if _, err := fit.Predict(context.Background(), 6); err != nil {
				errs <- err
			}
		})
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Predict() error: %v", err)
	}
}

func TestIntegrateReversesDifference(t *testing.T) {
	x := []float64{1, 4, 9, 16, 25, 36}
	d := difference(x, 2)
	back := integrate(x[:2], d, 2)
	for i, v := range back {
		if v != x[2+i] {
			t.Errorf("integrate()[%d] = %v, want %v", i, v, x[2+i])
		}
	}
}
