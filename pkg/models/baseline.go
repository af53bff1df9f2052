package models

import (
	"context"
	"fmt"

	"github.com/HatiCode/tsbench/pkg/series"
)

// EMAModel forecasts a flat line from a blend of a short and a long
// exponential moving average.
//
// Algorithm:
//  1. Compute EMA over the last short and last long points
//  2. Forecast = 0.7*EMA_short + 0.3*EMA_long
//  3. Values are clamped to be non-negative
type EMAModel struct {
	short int
	long  int
}

// NewEMAModel creates an EMA baseline. Spans default to 3 and 12 months.
func NewEMAModel(short, long int) *EMAModel {
	if short <= 0 {
		short = 3
	}
	if long <= 0 {
		long = 12
	}
	return &EMAModel{short: short, long: long}
}

// Name returns the model identifier.
func (m *EMAModel) Name() string { return "ema" }

// Fit computes the blended level from the training values.
func (m *EMAModel) Fit(ctx context.Context, train *series.Series) (Fitted, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkTrain(m.Name(), train); err != nil {
		return nil, err
	}

	values := train.Values()
	level := 0.7*computeEMA(values, m.short) + 0.3*computeEMA(values, m.long)
	if level < 0 {
		level = 0
	}
	return constantForecast(level), nil
}

// MeanModel forecasts the mean of the training values.
type MeanModel struct{}

// Name returns the model identifier.
func (MeanModel) Name() string { return "mean" }

// Fit computes the training mean.
func (m MeanModel) Fit(ctx context.Context, train *series.Series) (Fitted, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkTrain(m.Name(), train); err != nil {
		return nil, err
	}
	return constantForecast(train.Sum() / float64(train.Len())), nil
}

// SeasonalNaiveModel repeats the last observed season.
type SeasonalNaiveModel struct {
	period int
}

// NewSeasonalNaiveModel creates a seasonal naive model with the given period.
func NewSeasonalNaiveModel(period int) *SeasonalNaiveModel {
	if period <= 0 {
		period = 12
	}
	return &SeasonalNaiveModel{period: period}
}

// Name returns the model identifier.
func (m *SeasonalNaiveModel) Name() string { return "snaive" }

// Fit keeps the last full season of the training values.
func (m *SeasonalNaiveModel) Fit(ctx context.Context, train *series.Series) (Fitted, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if train.Len() < m.period {
		return nil, fmt.Errorf("snaive: need at least %d points, got %d", m.period, train.Len())
	}
	values := train.Values()
	season := make([]float64, m.period)
	copy(season, values[len(values)-m.period:])
	return seasonalForecast(season), nil
}

type constantForecast float64

func (c constantForecast) Predict(ctx context.Context, horizon int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkHorizon(horizon); err != nil {
		return nil, err
	}
	out := make([]float64, horizon)
	for i := range out {
		out[i] = float64(c)
	}
	return out, nil
}

type seasonalForecast []float64

func (s seasonalForecast) Predict(ctx context.Context, horizon int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkHorizon(horizon); err != nil {
		return nil, err
	}
	out := make([]float64, horizon)
	for i := range out {
		out[i] = s[i%len(s)]
	}
	return out, nil
}

// computeEMA calculates the exponential moving average over the most recent n points.
// If there are fewer than n points, uses all available points.
// Returns 0 if values is empty.
//
// EMA formula: EMA_t = α * value_t + (1-α) * EMA_{t-1}
// where α = 2 / (n + 1)
func computeEMA(values []float64, n int) float64 {
	if len(values) == 0 {
		return 0
	}

	start := 0
	if len(values) > n {
		start = len(values) - n
	}
	window := values[start:]

	alpha := 2.0 / float64(len(window)+1)
	ema := window[0]
	for i := 1; i < len(window); i++ {
		ema = alpha*window[i] + (1-alpha)*ema
	}
	return ema
}
