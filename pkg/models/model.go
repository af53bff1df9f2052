// Package models defines the forecasting model contract used by the backtest
// runner, along with the built-in models: SARIMA, classical decomposition, a
// checkpoint-backed foundation model and simple baselines.
package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/HatiCode/tsbench/pkg/series"
)

// Model produces a fitted forecaster from a training series.
//
// Fit must not mutate the model itself; each call returns an independent
// Fitted value so a single Model can be fit on several windows concurrently.
type Model interface {
	// Name returns the model identifier used in outputs.
	Name() string

	// Fit trains on the given series.
	Fit(ctx context.Context, train *series.Series) (Fitted, error)
}

// Fitted forecasts the periods immediately following its training data.
type Fitted interface {
	// Predict returns exactly horizon point forecasts.
	Predict(ctx context.Context, horizon int) ([]float64, error)
}

// ModelUnavailableError reports that a model cannot be used at all in this
// run: a missing dependency, an unloadable checkpoint, or data the model
// cannot accept.
type ModelUnavailableError struct {
	Model  string
	Reason string
	Err    error
}

func (e *ModelUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model %s unavailable: %s: %v", e.Model, e.Reason, e.Err)
	}
	return fmt.Sprintf("model %s unavailable: %s", e.Model, e.Reason)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

// Unavailable builds a ModelUnavailableError.
func Unavailable(model, reason string, err error) error {
	return &ModelUnavailableError{Model: model, Reason: reason, Err: err}
}

// IsUnavailable reports whether err is or wraps a ModelUnavailableError.
func IsUnavailable(err error) bool {
	var mu *ModelUnavailableError
	return errors.As(err, &mu)
}

func checkTrain(name string, train *series.Series) error {
	if train.Len() == 0 {
		return fmt.Errorf("%s: training series is empty", name)
	}
	return nil
}

func checkHorizon(horizon int) error {
	if horizon < 1 {
		return fmt.Errorf("horizon must be >= 1, got %d", horizon)
	}
	return nil
}
