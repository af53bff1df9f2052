package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HatiCode/tsbench/pkg/extract"
)

const keyPrefix = "tsbench:"

// RedisStore keeps records in Redis as JSON values. A zero TTL keeps them
// forever.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis at addr.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{client: client, ttl: ttl}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Ping checks connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	return nil
}

// Close releases the client's connections.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func extractionKey(key string) string { return keyPrefix + "extraction:" + key }
func runKey(id string) string          { return keyPrefix + "run:" + id }
func latestRunKey(prefix string) string {
	return keyPrefix + "latest:" + prefix
}

func (r *RedisStore) PutExtraction(ctx context.Context, meta extract.Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal extraction metadata: %w", err)
	}
	if err := r.client.Set(ctx, extractionKey(meta.Key()), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store extraction metadata: %w", err)
	}
	return nil
}

func (r *RedisStore) LatestExtraction(ctx context.Context, key string) (extract.Metadata, bool, error) {
	var meta extract.Metadata
	found, err := r.getJSON(ctx, extractionKey(key), &meta)
	return meta, found, err
}

// PutRun stores the run and marks it as the latest for its prefix in one
// transaction.
func (r *RedisStore) PutRun(ctx context.Context, run RunRecord) error {
	if run.RunID == "" {
		return errors.New("run id is required")
	}
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, runKey(run.RunID), data, r.ttl)
		pipe.Set(ctx, latestRunKey(run.Prefix), run.RunID, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store run: %w", err)
	}
	return nil
}

func (r *RedisStore) GetRun(ctx context.Context, runID string) (RunRecord, bool, error) {
	var run RunRecord
	found, err := r.getJSON(ctx, runKey(runID), &run)
	return run, found, err
}

func (r *RedisStore) LatestRun(ctx context.Context, prefix string) (RunRecord, bool, error) {
	id, err := r.client.Get(ctx, latestRunKey(prefix)).Result()
	if errors.Is(err, redis.Nil) {
		return RunRecord{}, false, nil
	}
	if err != nil {
		return RunRecord{}, false, fmt.Errorf("failed to get latest run: %w", err)
	}
	return r.GetRun(ctx, id)
}

func (r *RedisStore) getJSON(ctx context.Context, key string, v any) (bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal(val, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}
