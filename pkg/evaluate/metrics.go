// Package evaluate scores backtest forecasts with MAE, RMSE and sMAPE.
package evaluate

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/HatiCode/tsbench/pkg/backtest"
)

// ZeroPolicy decides the sMAPE term when exactly one of actual and predicted
// is zero.
type ZeroPolicy int

const (
	// StrictZero makes the term undefined (NaN), which propagates to the
	// model's sMAPE.
	StrictZero ZeroPolicy = iota

	// BoundedZero scores the term at its maximum, 2 (200%).
	BoundedZero
)

func (p ZeroPolicy) String() string {
	if p == BoundedZero {
		return "bounded"
	}
	return "strict"
}

// ParseZeroPolicy parses "strict" or "bounded".
func ParseZeroPolicy(s string) (ZeroPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return StrictZero, nil
	case "bounded":
		return BoundedZero, nil
	default:
		return StrictZero, fmt.Errorf("unknown smape zero policy %q (valid: strict, bounded)", s)
	}
}

// Result holds one model's aggregate error.
type Result struct {
	Model string
	MAE   float64
	RMSE  float64
	// SMAPE is expressed in percent.
	SMAPE float64
	N     int
}

// MAE returns the mean absolute error.
func MAE(actual, predicted []float64) float64 {
	terms := make([]float64, len(actual))
	for i := range actual {
		terms[i] = math.Abs(actual[i] - predicted[i])
	}
	return mean(terms)
}

// RMSE returns the root mean squared error.
func RMSE(actual, predicted []float64) float64 {
	terms := make([]float64, len(actual))
	for i := range actual {
		d := actual[i] - predicted[i]
		terms[i] = d * d
	}
	return math.Sqrt(mean(terms))
}

// SMAPE returns the symmetric mean absolute percentage error in percent. A
// term where both values are zero contributes 0.
func SMAPE(actual, predicted []float64, policy ZeroPolicy) float64 {
	terms := make([]float64, len(actual))
	for i := range actual {
		terms[i] = smapeTerm(actual[i], predicted[i], policy)
	}
	return 100 * mean(terms)
}

func smapeTerm(a, p float64, policy ZeroPolicy) float64 {
	switch {
	case a == 0 && p == 0:
		return 0
	case a == 0 || p == 0:
		if policy == BoundedZero {
			return 2
		}
		return math.NaN()
	}
	denom := math.Abs(a) + math.Abs(p)
	return 2 * math.Abs(a-p) / denom
}

// mean sums terms in ascending order so the result does not depend on the
// order records were produced in.
func mean(terms []float64) float64 {
	if len(terms) == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(terms)
	sort.Float64s(sorted)
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return sum / float64(len(sorted))
}

// Score computes all metrics for one model.
func Score(model string, actual, predicted []float64, policy ZeroPolicy) (Result, error) {
	if len(actual) != len(predicted) {
		return Result{}, fmt.Errorf("length mismatch: %d actual, %d predicted", len(actual), len(predicted))
	}
	if len(actual) == 0 {
		return Result{}, fmt.Errorf("model %s has no predictions", model)
	}
	return Result{
		Model: model,
		MAE:   MAE(actual, predicted),
		RMSE:  RMSE(actual, predicted),
		SMAPE: SMAPE(actual, predicted, policy),
		N:     len(actual),
	}, nil
}

// Aggregate scores each model over all of its records and returns the results
// sorted by sMAPE ascending, undefined sMAPE last, ties broken by model name.
func Aggregate(records []backtest.PredictionRecord, policy ZeroPolicy) []Result {
	type pairs struct{ actual, predicted []float64 }
	byModel := make(map[string]*pairs)
	for _, r := range records {
		p, ok := byModel[r.Model]
		if !ok {
			p = &pairs{}
			byModel[r.Model] = p
		}
		p.actual = append(p.actual, r.Actual)
		p.predicted = append(p.predicted, r.Predicted)
	}

	results := make([]Result, 0, len(byModel))
	for name, p := range byModel {
		results = append(results, Result{
			Model: name,
			MAE:   MAE(p.actual, p.predicted),
			RMSE:  RMSE(p.actual, p.predicted),
			SMAPE: SMAPE(p.actual, p.predicted, policy),
			N:     len(p.actual),
		})
	}
	SortResults(results)
	return results
}

// SortResults orders results by sMAPE ascending with NaN last, then by name.
func SortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		an, bn := math.IsNaN(a.SMAPE), math.IsNaN(b.SMAPE)
		switch {
		case an != bn:
			return bn
		case !an && a.SMAPE != b.SMAPE:
			return a.SMAPE < b.SMAPE
		}
		return a.Model < b.Model
	})
}

type resultJSON struct {
	Model string   `json:"model"`
	MAE   *float64 `json:"mae"`
	RMSE  *float64 `json:"rmse"`
	SMAPE *float64 `json:"smape"`
	N     int      `json:"n_predictions"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// MarshalJSON encodes undefined metrics as null.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		Model: r.Model,
		MAE:   finite(r.MAE),
		RMSE:  finite(r.RMSE),
		SMAPE: finite(r.SMAPE),
		N:     r.N,
	})
}

// UnmarshalJSON decodes null metrics as NaN.
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw resultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Result{
		Model: raw.Model,
		MAE:   orNaN(raw.MAE),
		RMSE:  orNaN(raw.RMSE),
		SMAPE: orNaN(raw.SMAPE),
		N:     raw.N,
	}
	return nil
}
