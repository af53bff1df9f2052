package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/HatiCode/tsbench/pkg/extract"
)

// MemoryStore keeps records in process memory. Data is lost on exit.
type MemoryStore struct {
	mu          sync.RWMutex
	extractions map[string]extract.Metadata
	runs        map[string]RunRecord
	latest      map[string]string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		extractions: make(map[string]extract.Metadata),
		runs:        make(map[string]RunRecord),
		latest:      make(map[string]string),
	}
}

func (m *MemoryStore) PutExtraction(_ context.Context, meta extract.Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extractions[meta.Key()] = meta
	return nil
}

func (m *MemoryStore) LatestExtraction(_ context.Context, key string) (extract.Metadata, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.extractions[key]
	return meta, ok, nil
}

func (m *MemoryStore) PutRun(_ context.Context, run RunRecord) error {
	if run.RunID == "" {
		return errors.New("run id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.RunID] = run
	m.latest[run.Prefix] = run.RunID
	return nil
}

func (m *MemoryStore) GetRun(_ context.Context, runID string) (RunRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[runID]
	return run, ok, nil
}

func (m *MemoryStore) LatestRun(_ context.Context, prefix string) (RunRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.latest[prefix]
	if !ok {
		return RunRecord{}, false, nil
	}
	run, ok := m.runs[id]
	return run, ok, nil
}
