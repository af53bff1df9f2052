// Package storage persists extraction metadata and benchmark run summaries so
// later runs and operators can inspect what happened.
package storage

import (
	"context"
	"time"

	"github.com/HatiCode/tsbench/pkg/backtest"
	"github.com/HatiCode/tsbench/pkg/evaluate"
	"github.com/HatiCode/tsbench/pkg/extract"
	"github.com/HatiCode/tsbench/pkg/validate"
)

// RunRecord summarizes one benchmark or pipeline run.
type RunRecord struct {
	RunID      string                  `json:"run_id"`
	Prefix     string                  `json:"prefix"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	State      string                  `json:"state"`
	Error      string                  `json:"error,omitempty"`
	Windows    int                     `json:"windows"`
	Metrics    []evaluate.Result       `json:"metrics,omitempty"`
	Skipped    []backtest.SkippedModel `json:"skipped,omitempty"`
	Extraction *extract.Metadata       `json:"extraction,omitempty"`
	Validation *validate.Verdict       `json:"validation,omitempty"`
}

// Store persists extraction metadata and run records.
//
// Extraction metadata is keyed by extract.Metadata.Key; runs by RunID, with
// the latest run per output prefix tracked separately.
type Store interface {
	PutExtraction(ctx context.Context, meta extract.Metadata) error
	LatestExtraction(ctx context.Context, key string) (extract.Metadata, bool, error)
	PutRun(ctx context.Context, run RunRecord) error
	GetRun(ctx context.Context, runID string) (RunRecord, bool, error)
	LatestRun(ctx context.Context, prefix string) (RunRecord, bool, error)
}
