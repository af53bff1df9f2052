// Package models builds the forecasting models named on the command line.
package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/HatiCode/tsbench/cmd/tsbench/config"
	"github.com/HatiCode/tsbench/pkg/backtest"
	"github.com/HatiCode/tsbench/pkg/client"
	"github.com/HatiCode/tsbench/pkg/models"
)

// Names lists every model the factory knows.
var Names = []string{"sarima", "decomposition", "foundation", "mean", "ema", "snaive"}

// Set is the outcome of building the configured models.
type Set struct {
	// Models are ready to run, in the configured order.
	Models []models.Model
	// Unavailable are models that could not be constructed.
	Unavailable []backtest.SkippedModel

	closers []io.Closer
}

// Close releases model resources such as cached checkpoints.
func (s *Set) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// New builds the models in cfg.Models. An unknown or repeated name is an
// error; a model that is known but cannot be constructed is reported in
// Set.Unavailable and the rest of the set is still returned.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Set, error) {
	if logger == nil {
		logger = slog.Default()
	}

	set := &Set{}
	seen := make(map[string]bool)
	for _, raw := range cfg.Models {
		name := strings.ToLower(strings.TrimSpace(raw))
		if seen[name] {
			return nil, fmt.Errorf("model %q listed more than once", name)
		}
		seen[name] = true

		m, err := build(ctx, name, cfg)
		if err != nil {
			if models.IsUnavailable(err) {
				logger.Warn("model unavailable", "model", name, "error", err)
				set.Unavailable = append(set.Unavailable, backtest.SkippedModel{
					Model:  name,
					Stage:  backtest.StageConstruct,
					Reason: err.Error(),
				})
				continue
			}
			set.Close()
			return nil, err
		}
		if c, ok := m.(io.Closer); ok {
			set.closers = append(set.closers, c)
		}
		logger.Info("initialized model", "model", m.Name())
		set.Models = append(set.Models, m)
	}
	return set, nil
}

func build(ctx context.Context, name string, cfg *config.Config) (models.Model, error) {
	switch name {
	case "sarima":
		order, err := config.ParseSARIMAOrder(cfg.SARIMAOrder)
		if err != nil {
			return nil, err
		}
		return models.NewSARIMAModel(order, cfg.SARIMALog)

	case "decomposition":
		return models.NewDecompositionModel(cfg.DecompPeriod, cfg.DecompYearly)

	case "foundation":
		if cfg.FoundationEndpoint != "" {
			if cfg.FoundationTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.FoundationTimeout)
				defer cancel()
			}
			remote := client.NewInferenceClientWithTimeout(cfg.FoundationEndpoint, cfg.FoundationTimeout)
			return models.NewRemoteFoundationModel(ctx, remote, cfg.FoundationModel)
		}
		return models.NewFoundationModel(models.Checkpoints, cfg.FoundationCheckpoint)

	case "mean":
		return models.MeanModel{}, nil

	case "ema":
		return models.NewEMAModel(3, 12), nil

	case "snaive":
		return models.NewSeasonalNaiveModel(12), nil

	default:
		return nil, fmt.Errorf("unknown model %q (known: %s)", name, strings.Join(Names, ", "))
	}
}
