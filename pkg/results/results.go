// Package results reads and writes benchmark outputs: the metrics table, the
// per-record predictions, the skipped-model report and JSON sidecars.
//
// Files are written to a temporary path and renamed into place so a failed
// run never leaves a partial file behind.
package results

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/HatiCode/tsbench/pkg/backtest"
	"github.com/HatiCode/tsbench/pkg/evaluate"
	"github.com/HatiCode/tsbench/pkg/series"
)

var (
	metricsHeader     = []string{"model", "mae", "rmse", "smape", "n_predictions"}
	predictionsHeader = []string{"window_id", "model", "step", "date", "actual", "predicted"}
	skippedHeader     = []string{"model", "stage", "reason"}
)

// Paths are the output files for a run prefix.
type Paths struct {
	Metrics     string
	Predictions string
	Skipped     string
	Extraction  string
	Validation  string
	Series      string
	Raw         string
}

// PathsFor derives every output path from prefix.
func PathsFor(prefix string) Paths {
	return Paths{
		Metrics:     prefix + "_metrics.csv",
		Predictions: prefix + "_predictions.csv",
		Skipped:     prefix + "_skipped.csv",
		Extraction:  prefix + "_extraction.json",
		Validation:  prefix + "_validation.json",
		Series:      prefix + "_series.csv",
		Raw:         prefix + "_raw.csv",
	}
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteMetrics writes one row per model.
func WriteMetrics(w io.Writer, rs []evaluate.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(metricsHeader); err != nil {
		return err
	}
	for _, r := range rs {
		rec := []string{r.Model, formatFloat(r.MAE), formatFloat(r.RMSE), formatFloat(r.SMAPE), strconv.Itoa(r.N)}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadMetrics parses a metrics table written by WriteMetrics.
func ReadMetrics(r io.Reader) ([]evaluate.Result, error) {
	rows, err := readTable(r, metricsHeader)
	if err != nil {
		return nil, err
	}
	out := make([]evaluate.Result, 0, len(rows))
	for i, row := range rows {
		var res evaluate.Result
		res.Model = row[0]
		fields := []*float64{&res.MAE, &res.RMSE, &res.SMAPE}
		for j, dst := range fields {
			v, err := strconv.ParseFloat(row[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", i+2, metricsHeader[j+1], err)
			}
			*dst = v
		}
		if res.N, err = strconv.Atoi(row[4]); err != nil {
			return nil, fmt.Errorf("line %d: n_predictions: %w", i+2, err)
		}
		out = append(out, res)
	}
	return out, nil
}

// WritePredictions writes one row per prediction record.
func WritePredictions(w io.Writer, recs []backtest.PredictionRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(predictionsHeader); err != nil {
		return err
	}
	for _, r := range recs {
		rec := []string{
			strconv.Itoa(r.WindowID),
			r.Model,
			strconv.Itoa(r.Step),
			r.Time.Format(series.DateLayout),
			formatFloat(r.Actual),
			formatFloat(r.Predicted),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadPredictions parses a predictions file written by WritePredictions.
func ReadPredictions(r io.Reader) ([]backtest.PredictionRecord, error) {
	rows, err := readTable(r, predictionsHeader)
	if err != nil {
		return nil, err
	}
	out := make([]backtest.PredictionRecord, 0, len(rows))
	for i, row := range rows {
		var rec backtest.PredictionRecord
		var errs []error
		var e error
		rec.WindowID, e = strconv.Atoi(row[0])
		errs = append(errs, e)
		rec.Model = row[1]
		rec.Step, e = strconv.Atoi(row[2])
		errs = append(errs, e)
		rec.Time, e = time.Parse(series.DateLayout, row[3])
		errs = append(errs, e)
		rec.Actual, e = strconv.ParseFloat(row[4], 64)
		errs = append(errs, e)
		rec.Predicted, e = strconv.ParseFloat(row[5], 64)
		errs = append(errs, e)
		if err := errors.Join(errs...); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// WriteSkipped writes the skipped-model report.
func WriteSkipped(w io.Writer, skipped []backtest.SkippedModel) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(skippedHeader); err != nil {
		return err
	}
	for _, s := range skipped {
		if err := cw.Write([]string{s.Model, string(s.Stage), s.Reason}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadSkipped parses a skipped-model report.
func ReadSkipped(r io.Reader) ([]backtest.SkippedModel, error) {
	rows, err := readTable(r, skippedHeader)
	if err != nil {
		return nil, err
	}
	out := make([]backtest.SkippedModel, 0, len(rows))
	for _, row := range rows {
		out = append(out, backtest.SkippedModel{Model: row[0], Stage: backtest.Stage(row[1]), Reason: row[2]})
	}
	return out, nil
}

func readTable(r io.Reader, header []string) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(header)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("missing header")
	}
	if got := strings.Join(rows[0], ","); got != strings.Join(header, ",") {
		return nil, fmt.Errorf("unexpected header %q", got)
	}
	return rows[1:], nil
}

// WriteFileAtomic writes path through a temporary file in the same directory.
func WriteFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// WriteJSON writes v as indented JSON, atomically.
func WriteJSON(path string, v any) error {
	return WriteFileAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

// ReadJSON decodes the JSON file at path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// SaveBenchmark writes the metrics, predictions and skipped-model files for
// prefix. Each file is replaced atomically.
func SaveBenchmark(prefix string, metrics []evaluate.Result, res *backtest.Result) (Paths, error) {
	paths := PathsFor(prefix)
	writes := []struct {
		path  string
		write func(io.Writer) error
	}{
		{paths.Metrics, func(w io.Writer) error { return WriteMetrics(w, metrics) }},
		{paths.Predictions, func(w io.Writer) error { return WritePredictions(w, res.Records) }},
		{paths.Skipped, func(w io.Writer) error { return WriteSkipped(w, res.Skipped) }},
	}
	for _, wr := range writes {
		if err := WriteFileAtomic(wr.path, wr.write); err != nil {
			return paths, err
		}
	}
	return paths, nil
}
