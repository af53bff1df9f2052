package models

import (
	"context"
	"fmt"
	"math"

	"github.com/HatiCode/tsbench/pkg/series"
)

// RemoteForecaster is a pretrained model served over the network.
type RemoteForecaster interface {
	Forecast(ctx context.Context, model string, history []float64, horizon int) ([]float64, error)
	Health(ctx context.Context) error
}

// FoundationModel is a pretrained forecaster that needs no training. Fit only
// captures the context; inference runs either against a cached checkpoint or a
// remote inference service.
type FoundationModel struct {
	ckpt    *Checkpoint
	release func()

	remote      RemoteForecaster
	remoteModel string
}

// NewFoundationModel loads the checkpoint at path through cache. Any failure
// is reported as a ModelUnavailableError.
func NewFoundationModel(cache *CheckpointCache, path string) (*FoundationModel, error) {
	if path == "" {
		return nil, Unavailable("foundation", "no checkpoint configured", nil)
	}
	ckpt, release, err := cache.Acquire(path)
	if err != nil {
		return nil, Unavailable("foundation", "checkpoint load failed", err)
	}
	return &FoundationModel{ckpt: ckpt, release: release}, nil
}

// NewRemoteFoundationModel checks that the inference service is reachable.
func NewRemoteFoundationModel(ctx context.Context, remote RemoteForecaster, model string) (*FoundationModel, error) {
	if err := remote.Health(ctx); err != nil {
		return nil, Unavailable("foundation", "inference service unreachable", err)
	}
	return &FoundationModel{remote: remote, remoteModel: model}, nil
}

// Name returns the model identifier.
func (m *FoundationModel) Name() string { return "foundation" }

// Close releases the checkpoint reference.
func (m *FoundationModel) Close() error {
	if m.release != nil {
		m.release()
	}
	return nil
}

// Fit stores the training values as inference context.
func (m *FoundationModel) Fit(ctx context.Context, train *series.Series) (Fitted, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkTrain(m.Name(), train); err != nil {
		return nil, err
	}
	return &fittedFoundation{model: m, history: train.Values()}, nil
}

type fittedFoundation struct {
	model   *FoundationModel
	history []float64
}

func (f *fittedFoundation) Predict(ctx context.Context, horizon int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkHorizon(horizon); err != nil {
		return nil, err
	}

	if f.model.remote != nil {
		out, err := f.model.remote.Forecast(ctx, f.model.remoteModel, f.history, horizon)
		if err != nil {
			return nil, fmt.Errorf("remote forecast: %w", err)
		}
		return out, nil
	}
	return rollout(f.model.ckpt, f.history, horizon), nil
}

// rollout runs the checkpoint autoregressively on the standardized context.
func rollout(c *Checkpoint, history []float64, horizon int) []float64 {
	mean, scale := standardize(history)

	z := make([]float64, 0, c.ContextLen+horizon)
	for i := len(history) - c.ContextLen; i < len(history); i++ {
		v := history[max(i, 0)]
		z = append(z, (v-mean)/scale)
	}

	out := make([]float64, horizon)
	for h := range out {
		next := c.Bias
		tail := z[len(z)-c.ContextLen:]
		for i, w := range c.Weights {
			next += w * tail[i]
		}
		if math.IsNaN(next) || math.IsInf(next, 0) {
			next = 0
		}
		z = append(z, next)
		out[h] = next*scale + mean
	}
	return out
}
