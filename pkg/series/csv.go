package series

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the layout used when writing period starts.
const DateLayout = "2006-01-02"

var dateLayouts = []string{
	DateLayout,
	"2006-01",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"02012006",
	"02/01/2006",
}

// ParseDate parses a date in one of the accepted layouts and returns the
// start of its month.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range dateLayouts {
		if len(layout) != len(raw) && layout != time.RFC3339 {
			continue
		}
		if t, err := time.Parse(layout, raw); err == nil {
			return MonthStart(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// LoadOptions names the columns to read from a series CSV.
type LoadOptions struct {
	Name        string
	DateColumn  string
	ValueColumn string
}

func (o LoadOptions) withDefaults() LoadOptions {
	if o.DateColumn == "" {
		o.DateColumn = "date"
	}
	if o.ValueColumn == "" {
		o.ValueColumn = "value"
	}
	return o
}

// ParseError reports a malformed row in a series CSV.
type ParseError struct {
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: column %s: invalid value %q: %v", e.Line, e.Column, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// LoadFile reads a series CSV from path.
func LoadFile(path string, opts LoadOptions) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open series: %w", err)
	}
	defer f.Close()

	if opts.Name == "" {
		opts.Name = path
	}
	return Load(f, opts)
}

// Load reads a CSV with a header row containing a date column and a value
// column. Rows in the same month are summed, missing months are zero-filled.
// Negative and non-finite values are rejected.
func Load(r io.Reader, opts LoadOptions) (*Series, error) {
	opts = opts.withDefaults()

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("series csv is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	dateIdx, valueIdx := -1, -1
	for i, col := range header {
		switch strings.TrimSpace(col) {
		case opts.DateColumn:
			dateIdx = i
		case opts.ValueColumn:
			valueIdx = i
		}
	}
	if dateIdx < 0 {
		return nil, fmt.Errorf("missing date column %q", opts.DateColumn)
	}
	if valueIdx < 0 {
		return nil, fmt.Errorf("missing value column %q", opts.ValueColumn)
	}

	var obs []Point
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}

		t, err := ParseDate(rec[dateIdx])
		if err != nil {
			return nil, &ParseError{Line: line, Column: opts.DateColumn, Value: rec[dateIdx], Err: err}
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[valueIdx]), 64)
		if err != nil {
			return nil, &ParseError{Line: line, Column: opts.ValueColumn, Value: rec[valueIdx], Err: err}
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &ParseError{Line: line, Column: opts.ValueColumn, Value: rec[valueIdx], Err: errors.New("non-finite value")}
		}
		if v < 0 {
			return nil, &ParseError{Line: line, Column: opts.ValueColumn, Value: rec[valueIdx], Err: errors.New("negative value")}
		}
		obs = append(obs, Point{Time: t, Value: v})
	}

	if len(obs) == 0 {
		return nil, errors.New("series csv has no rows")
	}
	return Densify(opts.Name, obs)
}

// Write emits the series as a "date,value" CSV.
func Write(w io.Writer, s *Series) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "value"}); err != nil {
		return err
	}
	for _, p := range s.Points {
		rec := []string{p.Time.Format(DateLayout), strconv.FormatFloat(p.Value, 'g', -1, 64)}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
