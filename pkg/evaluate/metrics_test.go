package evaluate

import (
	"encoding/json"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/HatiCode/tsbench/pkg/backtest"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Abs(b))
}

func TestMetrics_KnownValues(t *testing.T) {
	actual := []float64{100, 110, 120, 130, 140, 150}
	predicted := []float64{100, 100, 100, 100, 100, 100}

	if got := MAE(actual, predicted); got != 25 {
		t.Errorf("MAE() = %v, want 25", got)
	}
	wantRMSE := math.Sqrt((0 + 100 + 400 + 900 + 1600 + 2500) / 6.0)
	if got := RMSE(actual, predicted); !approx(got, wantRMSE) {
		t.Errorf("RMSE() = %v, want %v", got, wantRMSE)
	}

	got := SMAPE([]float64{100}, []float64{50}, StrictZero)
	if !approx(got, 100*2*50/150.0) {
		t.Errorf("SMAPE() = %v, want %v", got, 100*2*50/150.0)
	}
}

func TestSMAPE_ZeroHandling(t *testing.T) {
	if got := SMAPE([]float64{0, 10}, []float64{0, 10}, StrictZero); got != 0 {
		t.Errorf("SMAPE(both zero) = %v, want 0", got)
	}
	if got := SMAPE([]float64{0, 10}, []float64{5, 10}, StrictZero); !math.IsNaN(got) {
		t.Errorf("SMAPE(one-sided zero, strict) = %v, want NaN", got)
	}
	if got := SMAPE([]float64{0, 10}, []float64{5, 10}, BoundedZero); got != 100 {
		t.Errorf("SMAPE(one-sided zero, bounded) = %v, want 100", got)
	}
}

func TestSMAPE_ScaleInvariant(t *testing.T) {
	actual := []float64{12, 40, 7, 93, 55}
	predicted := []float64{10, 44, 9, 80, 60}
	base := SMAPE(actual, predicted, StrictZero)

	for _, k := range []float64{0.001, 3, 1e6} {
		sa := make([]float64, len(actual))
		sp := make([]float64, len(predicted))
		for i := range actual {
			sa[i] = actual[i] * k
			sp[i] = predicted[i] * k
		}
		if got := SMAPE(sa, sp, StrictZero); !approx(got, base) {
			t.Errorf("SMAPE scaled by %v = %v, want %v", k, got, base)
		}
	}
}

func makeRecords(n int) []backtest.PredictionRecord {
	rng := rand.New(rand.NewPCG(1, 2))
	recs := make([]backtest.PredictionRecord, 0, 2*n)
	for i := range n {
		for _, m := range []string{"a", "b"} {
			recs = append(recs, backtest.PredictionRecord{
				WindowID:  i / 6,
				Model:     m,
				Step:      i%6 + 1,
				Actual:    rng.Float64() * 1000,
				Predicted: rng.Float64() * 1000,
			})
		}
	}
	return recs
}

func TestAggregate_PermutationInvariant(t *testing.T) {
	recs := makeRecords(186)
	base := Aggregate(recs, StrictZero)

	rng := rand.New(rand.NewPCG(7, 9))
	for range 5 {
		shuffled := append([]backtest.PredictionRecord(nil), recs...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got := Aggregate(shuffled, StrictZero)
		for i := range base {
			if got[i] != base[i] {
				t.Fatalf("shuffled result %d = %+v, want %+v", i, got[i], base[i])
			}
		}
	}
}

func TestAggregate_Ordering(t *testing.T) {
	recs := []backtest.PredictionRecord{
		{Model: "worse", Actual: 10, Predicted: 5},
		{Model: "best", Actual: 10, Predicted: 10},
		{Model: "undefined", Actual: 0, Predicted: 3},
		{Model: "alsobest", Actual: 10, Predicted: 10},
	}
	got := Aggregate(recs, StrictZero)

	want := []string{"alsobest", "best", "worse", "undefined"}
	if len(got) != len(want) {
		t.Fatalf("len(Aggregate()) = %d, want %d", len(got), len(want))
	}
	for i, name := range want {
		if got[i].Model != name {
			t.Errorf("Aggregate()[%d].Model = %q, want %q", i, got[i].Model, name)
		}
	}
	if got[0].N != 1 {
		t.Errorf("N = %d, want 1", got[0].N)
	}
}

func TestScore_Errors(t *testing.T) {
	if _, err := Score("m", []float64{1}, []float64{1, 2}, StrictZero); err == nil {
		t.Error("length mismatch expected error")
	}
	if _, err := Score("m", nil, nil, StrictZero); err == nil {
		t.Error("empty input expected error")
	}
}

func TestParseZeroPolicy(t *testing.T) {
	for in, want := range map[string]ZeroPolicy{"": StrictZero, "strict": StrictZero, "Bounded": BoundedZero} {
		got, err := ParseZeroPolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseZeroPolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseZeroPolicy("lenient"); err == nil {
		t.Error("unknown policy expected error")
	}
}

func TestResult_JSONNaN(t *testing.T) {
	in := Result{Model: "m", MAE: 1.5, RMSE: 2, SMAPE: math.NaN(), N: 3}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var out Result
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if out.MAE != 1.5 || out.RMSE != 2 || !math.IsNaN(out.SMAPE) || out.N != 3 {
		t.Errorf("round trip = %+v", out)
	}
}

func TestAggregate_MatchesScore(t *testing.T) {
	recs := []backtest.PredictionRecord{
		{Model: "sarima", Actual: 100, Predicted: 90},
		{Model: "mean", Actual: 100, Predicted: 100},
		{Model: "sarima", Actual: 120, Predicted: 126},
		{Model: "mean", Actual: 120, Predicted: 100},
		{Model: "sarima", Actual: 0, Predicted: 0},
	}
	got := Aggregate(recs, BoundedZero)
	if len(got) != 2 {
		t.Fatalf("len(Aggregate) = %d, want 2", len(got))
	}

	want := map[string]struct{ actual, predicted []float64 }{
		"sarima": {[]float64{100, 120, 0}, []float64{90, 126, 0}},
		"mean":   {[]float64{100, 120}, []float64{100, 100}},
	}
	for _, r := range got {
		w := want[r.Model]
		ref, err := Score(r.Model, w.actual, w.predicted, BoundedZero)
		if err != nil {
			t.Fatal(err)
		}
		if r.N != ref.N || !approx(r.MAE, ref.MAE) || !approx(r.RMSE, ref.RMSE) || !approx(r.SMAPE, ref.SMAPE) {
			t.Errorf("Aggregate %s = %+v, Score = %+v", r.Model, r, ref)
		}
	}

	if empty := Aggregate(nil, StrictZero); len(empty) != 0 {
		t.Errorf("Aggregate(nil) = %v, want empty", empty)
	}
}
