// Package store provides run store initialization for tsbench.
//
// It supports two backends:
//
//   - memory: records live for the duration of the process. Suitable for
//     one-off runs where the output files are the only record kept.
//
//   - redis: records are shared across runs and machines, so operators can
//     look up the latest extraction status and benchmark results.
//
// Initialization is fail-fast: a Redis backend is pinged before use.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/tsbench/cmd/tsbench/config"
	"github.com/HatiCode/tsbench/pkg/storage"
)

// New creates the configured store. The returned close function releases
// backend connections and is never nil.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, func() error, error) {
	switch cfg.Storage {
	case "redis":
		logger.Info("initializing redis storage",
			"addr", cfg.RedisAddr,
			"db", cfg.RedisDB,
			"ttl", cfg.RedisTTL,
		)
		redisStore, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("redis storage: %w", err)
		}

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := redisStore.Ping(pingCtx); err != nil {
			redisStore.Close()
			return nil, nil, fmt.Errorf("redis health check failed: %w", err)
		}
		logger.Info("redis storage initialized successfully")
		return redisStore, redisStore.Close, nil

	case "memory", "":
		logger.Debug("initializing in-memory storage")
		return storage.NewMemoryStore(), func() error { return nil }, nil

	default:
		return nil, nil, fmt.Errorf("invalid storage type %q", cfg.Storage)
	}
}
