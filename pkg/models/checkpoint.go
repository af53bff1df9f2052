package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Checkpoint holds the weights of a pretrained autoregressive forecaster.
//
// The network is a linear head over the last ContextLen standardized values:
// next = Bias + sum(Weights[i] * z[i]).
type Checkpoint struct {
	Name       string    `json:"name"`
	ContextLen int       `json:"context_len"`
	Weights    []float64 `json:"weights"`
	Bias       float64   `json:"bias"`
}

// Validate checks the checkpoint shape.
func (c *Checkpoint) Validate() error {
	if c.ContextLen < 1 {
		return fmt.Errorf("context_len must be >= 1, got %d", c.ContextLen)
	}
	if len(c.Weights) != c.ContextLen {
		return fmt.Errorf("expected %d weights, got %d", c.ContextLen, len(c.Weights))
	}
	return nil
}

// LoadCheckpoint reads and validates a JSON checkpoint file.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", path, err)
	}
	return &c, nil
}

// CheckpointCache shares loaded checkpoints across every model instance in
// the process. Each path is loaded at most once on success; failed loads are
// not cached so a later call retries. Entries are reference counted but never
// evicted.
type CheckpointCache struct {
	mu      sync.Mutex
	load    func(path string) (*Checkpoint, error)
	entries map[string]*checkpointEntry
	loads   int
}

type checkpointEntry struct {
	ckpt *Checkpoint
	refs int
}

// NewCheckpointCache creates a cache that loads with the given function.
func NewCheckpointCache(load func(path string) (*Checkpoint, error)) *CheckpointCache {
	return &CheckpointCache{
		load:    load,
		entries: make(map[string]*checkpointEntry),
	}
}

// Checkpoints is the process-wide checkpoint cache.
var Checkpoints = NewCheckpointCache(LoadCheckpoint)

func cacheKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// Acquire returns the checkpoint at path, loading it on first use. The
// returned release function drops the reference and is safe to call more
// than once.
func (c *CheckpointCache) Acquire(path string) (*Checkpoint, func(), error) {
	key := cacheKey(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		ckpt, err := c.load(path)
		if err != nil {
			return nil, nil, err
		}
		c.loads++
		e = &checkpointEntry{ckpt: ckpt}
		c.entries[key] = e
	}
	e.refs++

	var once sync.Once
	release := func() {
		once.Do(func() {
			c.mu.Lock()
			e.refs--
			c.mu.Unlock()
		})
	}
	return e.ckpt, release, nil
}

// Refs returns the number of live references to path.
func (c *CheckpointCache) Refs(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[cacheKey(path)]; ok {
		return e.refs
	}
	return 0
}

// Loads returns how many successful loads the cache has performed.
func (c *CheckpointCache) Loads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads
}
