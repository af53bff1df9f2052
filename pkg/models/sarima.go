package models

import (
	"context"
	"fmt"
	"math"

	"github.com/HatiCode/tsbench/pkg/series"
)

// SARIMAOrder is the (p,d,q)(P,D,Q,s) order of a seasonal ARIMA model.
type SARIMAOrder struct {
	P, D, Q    int
	SP, SD, SQ int
	Period     int
}

// DefaultSARIMAOrder is (1,1,1)(1,1,1,12).
var DefaultSARIMAOrder = SARIMAOrder{P: 1, D: 1, Q: 1, SP: 1, SD: 1, SQ: 1, Period: 12}

func (o SARIMAOrder) String() string {
	return fmt.Sprintf("(%d,%d,%d)(%d,%d,%d,%d)", o.P, o.D, o.Q, o.SP, o.SD, o.SQ, o.Period)
}

func (o SARIMAOrder) seasonal() bool {
	return o.SP > 0 || o.SD > 0 || o.SQ > 0
}

// minLength is the shortest training series the order can be estimated on.
func (o SARIMAOrder) minLength() int {
	n := o.D + o.P + o.Q + o.SP + o.SQ + 2
	if o.seasonal() {
		n += o.SD * o.Period
	}
	return n
}

// SARIMAModel estimates a seasonal ARIMA model by conditional sum of squares.
//
// After differencing, the series is standardized and the AR, MA, seasonal AR
// and seasonal MA coefficients are found by gradient descent with momentum on
// the one-step residuals. Seasonal and non-seasonal terms enter additively.
type SARIMAModel struct {
	order        SARIMAOrder
	logTransform bool
	maxIter      int
}

// NewSARIMAModel validates the order and returns a model. An order that can
// never be estimated yields a ModelUnavailableError.
func NewSARIMAModel(order SARIMAOrder, logTransform bool) (*SARIMAModel, error) {
	switch {
	case order.P < 0 || order.D < 0 || order.Q < 0 || order.SP < 0 || order.SD < 0 || order.SQ < 0:
		return nil, Unavailable("sarima", "negative order "+order.String(), nil)
	case order.D > 2 || order.SD > 1:
		return nil, Unavailable("sarima", "differencing order too high "+order.String(), nil)
	case order.seasonal() && order.Period < 2:
		return nil, Unavailable("sarima", "seasonal period must be >= 2", nil)
	}
	return &SARIMAModel{order: order, logTransform: logTransform, maxIter: 200}, nil
}

// Name returns the model identifier.
func (m *SARIMAModel) Name() string { return "sarima" }

// Order returns the configured order.
func (m *SARIMAModel) Order() SARIMAOrder { return m.order }

// Fit estimates coefficients on the training series.
func (m *SARIMAModel) Fit(ctx context.Context, train *series.Series) (Fitted, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if train.Len() < m.order.minLength() {
		return nil, fmt.Errorf("sarima%s: need at least %d points, got %d", m.order, m.order.minLength(), train.Len())
	}

	y := train.Values()
	if m.logTransform {
		for i, v := range y {
			if v <= 0 {
				return nil, Unavailable(m.Name(), fmt.Sprintf("log transform requires positive values, got %v at index %d", v, i), nil)
			}
			y[i] = math.Log(v)
		}
	}

	// Each differencing pass keeps the series it was applied to so forecasts
	// can be integrated back in reverse order.
	var passes []diffPass
	w := y
	for range m.order.D {
		passes = append(passes, diffPass{base: w, lag: 1})
		w = difference(w, 1)
	}
	if m.order.seasonal() {
		for range m.order.SD {
			passes = append(passes, diffPass{base: w, lag: m.order.Period})
			w = difference(w, m.order.Period)
		}
	}

	fit := &fittedSARIMA{
		terms:        m.terms(),
		passes:       passes,
		logTransform: m.logTransform,
	}
	fit.mean, fit.scale = standardize(w)
	fit.z = make([]float64, len(w))
	for i, v := range w {
		fit.z[i] = (v - fit.mean) / fit.scale
	}
	fit.coef = make([]float64, len(fit.terms))

	if err := fit.optimize(ctx, m.maxIter); err != nil {
		return nil, err
	}
	return fit, nil
}

func (m *SARIMAModel) terms() []lagTerm {
	var terms []lagTerm
	for i := 1; i <= m.order.P; i++ {
		terms = append(terms, lagTerm{lag: i})
	}
	for i := 1; i <= m.order.Q; i++ {
		terms = append(terms, lagTerm{lag: i, ma: true})
	}
	if m.order.seasonal() {
		for i := 1; i <= m.order.SP; i++ {
			terms = append(terms, lagTerm{lag: i * m.order.Period})
		}
		for i := 1; i <= m.order.SQ; i++ {
			terms = append(terms, lagTerm{lag: i * m.order.Period, ma: true})
		}
	}
	return terms
}

// lagTerm is an autoregressive term on z[t-lag], or a moving average term on
// the residual at t-lag when ma is set.
type lagTerm struct {
	lag int
	ma  bool
}

type diffPass struct {
	base []float64
	lag  int
}

type fittedSARIMA struct {
	terms        []lagTerm
	coef         []float64
	passes       []diffPass
	z            []float64
	residuals    []float64
	mean, scale  float64
	logTransform bool
}

// residualsFor computes one-step residuals of z under coef.
func (f *fittedSARIMA) residualsFor(coef []float64) ([]float64, float64) {
	res := make([]float64, len(f.z))
	var sse float64
	for t := range f.z {
		pred := 0.0
		for k, term := range f.terms {
			if t-term.lag < 0 {
				continue
			}
			if term.ma {
				pred += coef[k] * res[t-term.lag]
			} else {
				pred += coef[k] * f.z[t-term.lag]
			}
		}
		res[t] = f.z[t] - pred
		sse += res[t] * res[t]
	}
	return res, sse
}

func (f *fittedSARIMA) optimize(ctx context.Context, maxIter int) error {
	const (
		tolerance = 1e-8
		momentum  = 0.9
		decay     = 0.99
		patience  = 20
	)
	n := float64(len(f.z))
	learningRate := 0.05

	for k, term := range f.terms {
		if !term.ma {
			f.coef[k] = autocorrelation(f.z, term.lag) * 0.5
		} else {
			f.coef[k] = 0.1
		}
	}

	velocity := make([]float64, len(f.coef))
	best := make([]float64, len(f.coef))
	copy(best, f.coef)
	bestSSE := math.Inf(1)
	stale := 0

	for iter := range maxIter {
		if iter%20 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		res, sse := f.residualsFor(f.coef)
		if sse < bestSSE {
			if bestSSE-sse < tolerance {
				copy(best, f.coef)
				break
			}
			bestSSE = sse
			copy(best, f.coef)
			stale = 0
		} else {
			stale++
			if stale > patience {
				break
			}
		}

		grad := make([]float64, len(f.coef))
		for t := range f.z {
			for k, term := range f.terms {
				if t-term.lag < 0 {
					continue
				}
				x := f.z[t-term.lag]
				if term.ma {
					x = res[t-term.lag]
				}
				grad[k] -= 2 * res[t] * x
			}
		}

		for k := range f.coef {
			velocity[k] = momentum*velocity[k] + learningRate*grad[k]/n
			f.coef[k] = clamp(f.coef[k]-velocity[k], -0.99, 0.99)
		}
		learningRate *= decay
	}

	copy(f.coef, best)
	f.residuals, _ = f.residualsFor(f.coef)
	return nil
}

// Predict forecasts horizon steps ahead, undoing standardization,
// differencing and the log transform.
func (f *fittedSARIMA) Predict(ctx context.Context, horizon int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkHorizon(horizon); err != nil {
		return nil, err
	}

	n := len(f.z)
	z := make([]float64, n, n+horizon)
	copy(z, f.z)
	res := make([]float64, n, n+horizon)
	copy(res, f.residuals)

	for t := n; t < n+horizon; t++ {
		pred := 0.0
		for k, term := range f.terms {
			if t-term.lag < 0 {
				continue
			}
			if term.ma {
				pred += f.coef[k] * res[t-term.lag]
			} else {
				pred += f.coef[k] * z[t-term.lag]
			}
		}
		z = append(z, pred)
		res = append(res, 0)
	}

	out := make([]float64, horizon)
	for i := range out {
		out[i] = z[n+i]*f.scale + f.mean
	}
	for i := len(f.passes) - 1; i >= 0; i-- {
		out = integrate(f.passes[i].base, out, f.passes[i].lag)
	}
	if f.logTransform {
		for i := range out {
			out[i] = math.Exp(out[i])
		}
	}
	for i, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("sarima: non-finite forecast at step %d", i+1)
		}
	}
	return out, nil
}

func difference(x []float64, lag int) []float64 {
	if len(x) <= lag {
		return nil
	}
	out := make([]float64, len(x)-lag)
	for i := range out {
		out[i] = x[i+lag] - x[i]
	}
	return out
}

// integrate reverses difference(base, lag) for values that continue the
// differenced series past its end.
func integrate(base, diffs []float64, lag int) []float64 {
	ext := make([]float64, len(base), len(base)+len(diffs))
	copy(ext, base)
	for _, d := range diffs {
		ext = append(ext, d+ext[len(ext)-lag])
	}
	return ext[len(base):]
}

func standardize(x []float64) (mean, scale float64) {
	if len(x) == 0 {
		return 0, 1
	}
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))
	var ss float64
	for _, v := range x {
		ss += (v - mean) * (v - mean)
	}
	scale = math.Sqrt(ss / float64(len(x)))
	if scale == 0 || math.IsNaN(scale) {
		scale = 1
	}
	return mean, scale
}

// autocorrelation of an already centered series at the given lag.
func autocorrelation(z []float64, lag int) float64 {
	if lag >= len(z) {
		return 0
	}
	var num, den float64
	for i, v := range z {
		den += v * v
		if i >= lag {
			num += v * z[i-lag]
		}
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func clamp(v, lower, upper float64) float64 {
	return math.Max(lower, math.Min(upper, v))
}
