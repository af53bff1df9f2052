// Package backtest runs a set of forecasting models over every rolling-origin
// window of a series and collects their point forecasts.
package backtest

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoModels is returned when no model is available to run.
var ErrNoModels = errors.New("no models available")

// Stage identifies where a model failed.
type Stage string

const (
	StageConstruct Stage = "construct"
	StageFit       Stage = "fit"
	StagePredict   Stage = "predict"
)

// PredictionRecord is one point forecast for one window.
type PredictionRecord struct {
	WindowID  int
	Model     string
	Step      int
	Time      time.Time
	Actual    float64
	Predicted float64
}

// SkippedModel records a model excluded from a run and why.
type SkippedModel struct {
	Model  string `json:"model"`
	Stage  Stage  `json:"stage"`
	Reason string `json:"reason"`
}

func (s SkippedModel) String() string {
	return fmt.Sprintf("%s (%s): %s", s.Model, s.Stage, s.Reason)
}

// Config controls a backtest run.
type Config struct {
	// Horizon is the number of periods forecast per window.
	Horizon int

	// MinTrainSize is the training length of the first window.
	MinTrainSize int

	// Workers bounds the number of concurrent fit/predict tasks. Values below
	// 1 run sequentially.
	Workers int
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Horizon < 1 {
		return fmt.Errorf("horizon must be >= 1, got %d", c.Horizon)
	}
	if c.MinTrainSize < 1 {
		return fmt.Errorf("min_train_size must be >= 1, got %d", c.MinTrainSize)
	}
	return nil
}

// Observer receives timing and skip events from a run. Implementations must
// be safe for concurrent use.
type Observer interface {
	ObserveFit(model string, d time.Duration)
	ObservePredict(model string, d time.Duration)
	ModelSkipped(s SkippedModel)
}

type nopObserver struct{}

func (nopObserver) ObserveFit(string, time.Duration)     {}
func (nopObserver) ObservePredict(string, time.Duration) {}
func (nopObserver) ModelSkipped(SkippedModel)            {}
