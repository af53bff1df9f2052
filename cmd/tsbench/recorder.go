package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/HatiCode/tsbench/pkg/extract"
	"github.com/HatiCode/tsbench/pkg/results"
	"github.com/HatiCode/tsbench/pkg/series"
	"github.com/HatiCode/tsbench/pkg/storage"
	"github.com/HatiCode/tsbench/pkg/validate"
)

// validationReport is the JSON written next to the extraction metadata.
type validationReport struct {
	Passed    bool                   `json:"passed"`
	Reason    string                 `json:"reason,omitempty"`
	Checks    []validate.CheckResult `json:"checks"`
	RawCSV    string                 `json:"raw_csv,omitempty"`
	SeriesCSV string                 `json:"series_csv,omitempty"`
	Metadata  *extract.Metadata      `json:"metadata,omitempty"`
}

func newValidationReport(v validate.Verdict, rawCSV, seriesCSV string, meta *extract.Metadata) validationReport {
	checks := v.Checks
	if checks == nil {
		checks = []validate.CheckResult{}
	}
	return validationReport{
		Passed:    v.Passed,
		Reason:    v.Reason,
		Checks:    checks,
		RawCSV:    rawCSV,
		SeriesCSV: seriesCSV,
		Metadata:  meta,
	}
}

// fileRecorder writes pipeline artifacts under an output prefix and mirrors
// extraction metadata into the run store.
type fileRecorder struct {
	paths  results.Paths
	store  storage.Store
	logger *slog.Logger

	mu      sync.Mutex
	verdict *validate.Verdict
}

func newFileRecorder(prefix string, store storage.Store, logger *slog.Logger) *fileRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &fileRecorder{
		paths:  results.PathsFor(prefix),
		store:  store,
		logger: logger,
	}
}

// RecordExtraction writes the metadata, and the raw records and series when
// the extraction produced them.
func (r *fileRecorder) RecordExtraction(ctx context.Context, meta extract.Metadata, a *extract.Artifact) error {
	if a != nil {
		if err := results.WriteFileAtomic(r.paths.Raw, func(w io.Writer) error {
			return extract.WriteFrame(w, a.Raw)
		}); err != nil {
			return err
		}
		if err := results.WriteFileAtomic(r.paths.Series, func(w io.Writer) error {
			return series.Write(w, a.Series)
		}); err != nil {
			return err
		}
	}
	if err := r.writeMetadata(ctx, meta); err != nil {
		return err
	}
	r.logger.Debug("recorded extraction", "status", meta.Status, "path", r.paths.Extraction)
	return nil
}

// RecordValidation writes the verdict and the metadata as updated by it.
func (r *fileRecorder) RecordValidation(ctx context.Context, meta extract.Metadata, v validate.Verdict) error {
	r.mu.Lock()
	r.verdict = &v
	r.mu.Unlock()

	report := newValidationReport(v, r.paths.Raw, r.paths.Series, &meta)
	if err := results.WriteJSON(r.paths.Validation, report); err != nil {
		return err
	}
	if err := r.writeMetadata(ctx, meta); err != nil {
		return err
	}
	r.logger.Debug("recorded validation", "passed", v.Passed, "path", r.paths.Validation)
	return nil
}

// Verdict returns the last recorded verdict, or nil.
func (r *fileRecorder) Verdict() *validate.Verdict {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.verdict
}

func (r *fileRecorder) writeMetadata(ctx context.Context, meta extract.Metadata) error {
	if err := results.WriteJSON(r.paths.Extraction, meta); err != nil {
		return err
	}
	if err := r.store.PutExtraction(ctx, meta); err != nil {
		return fmt.Errorf("store extraction: %w", err)
	}
	return nil
}
