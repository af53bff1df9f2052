package models

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/HatiCode/tsbench/pkg/series"
)

// DecompositionModel is an additive trend plus seasonality forecaster.
//
// The seasonal profile is estimated by classical decomposition: a centered
// moving average gives the trend, and detrended values are averaged per phase
// of the season. A least squares line fit to the deseasonalized series is then
// extrapolated and the seasonal profile added back.
type DecompositionModel struct {
	period int
	yearly bool
}

// NewDecompositionModel creates the model. With yearly disabled it reduces to
// a linear trend.
func NewDecompositionModel(period int, yearly bool) (*DecompositionModel, error) {
	if yearly && period < 2 {
		return nil, Unavailable("decomposition", fmt.Sprintf("seasonal period must be >= 2, got %d", period), nil)
	}
	return &DecompositionModel{period: period, yearly: yearly}, nil
}

// Name returns the model identifier.
func (m *DecompositionModel) Name() string { return "decomposition" }

// Fit estimates the seasonal profile and trend line.
func (m *DecompositionModel) Fit(ctx context.Context, train *series.Series) (Fitted, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := train.Len()
	if n < 2 {
		return nil, fmt.Errorf("decomposition: need at least 2 points, got %d", n)
	}
	if m.yearly && n < 2*m.period {
		return nil, fmt.Errorf("decomposition: need at least %d points for seasonality, got %d", 2*m.period, n)
	}

	values := train.Values()
	fit := &fittedDecomposition{
		period: m.period,
		last:   train.Points[n-1].Time,
		n:      n,
	}

	deseasonalized := values
	if m.yearly {
		fit.seasonal = m.seasonalProfile(train)
		deseasonalized = make([]float64, n)
		for i, p := range train.Points {
			deseasonalized[i] = values[i] - fit.seasonal[m.phase(p.Time, i)]
		}
	}
	fit.intercept, fit.slope = linearFit(deseasonalized)
	return fit, nil
}

func (m *DecompositionModel) phase(t time.Time, i int) int {
	return phase(m.period, t, i)
}

// phase aligns monthly data with the calendar when the period is a year.
func phase(period int, t time.Time, i int) int {
	if period == 12 {
		return int(t.Month()) - 1
	}
	return i % period
}

func (m *DecompositionModel) seasonalProfile(train *series.Series) []float64 {
	values := train.Values()
	trend := centeredMovingAverage(values, m.period)

	sums := make([]float64, m.period)
	counts := make([]int, m.period)
	for i, p := range train.Points {
		if math.IsNaN(trend[i]) {
			continue
		}
		k := m.phase(p.Time, i)
		sums[k] += values[i] - trend[i]
		counts[k]++
	}

	profile := make([]float64, m.period)
	var mean float64
	for k := range profile {
		if counts[k] > 0 {
			profile[k] = sums[k] / float64(counts[k])
		}
		mean += profile[k]
	}
	mean /= float64(m.period)
	for k := range profile {
		profile[k] -= mean
	}
	return profile
}

type fittedDecomposition struct {
	period           int
	seasonal         []float64
	intercept, slope float64
	last             time.Time
	n                int
}

func (f *fittedDecomposition) Predict(ctx context.Context, horizon int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkHorizon(horizon); err != nil {
		return nil, err
	}
	out := make([]float64, horizon)
	for h := range out {
		i := f.n + h
		v := f.intercept + f.slope*float64(i)
		if f.seasonal != nil {
			v += f.seasonal[phase(f.period, series.AddMonths(f.last, h+1), i)]
		}
		out[h] = v
	}
	return out, nil
}

// centeredMovingAverage returns the 2xperiod centered moving average for even
// periods and a simple centered average for odd ones. Positions without a full
// window are NaN.
func centeredMovingAverage(values []float64, period int) []float64 {
	n := len(values)
	trend := make([]float64, n)
	for i := range trend {
		trend[i] = math.NaN()
	}

	half := period / 2
	for i := half; i < n-half; i++ {
		var sum float64
		if period%2 == 0 {
			sum = 0.5*values[i-half] + 0.5*values[i+half]
			for j := i - half + 1; j < i+half; j++ {
				sum += values[j]
			}
		} else {
			for j := i - half; j <= i+half; j++ {
				sum += values[j]
			}
		}
		trend[i] = sum / float64(period)
	}
	return trend
}

// linearFit returns the least squares intercept and slope of y against its
// index.
func linearFit(y []float64) (intercept, slope float64) {
	n := float64(len(y))
	var sx, sy, sxx, sxy float64
	for i, v := range y {
		x := float64(i)
		sx += x
		sy += v
		sxx += x * x
		sxy += x * v
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return sy / n, 0
	}
	slope = (n*sxy - sx*sy) / den
	intercept = (sy - slope*sx) / n
	return intercept, slope
}
