// Package series holds the dense monthly time series that models are trained
// and scored on, along with helpers for loading and densifying raw data.
package series

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotDense is returned when a series has gaps, duplicates or
// out-of-order periods.
var ErrNotDense = errors.New("series is not dense")

// Point is a single observation: the start of a monthly period and its value.
type Point struct {
	Time  time.Time
	Value float64
}

// Series is an ordered, gap-free monthly sequence of points.
//
// Filled marks periods that had no observations in the source data and were
// inserted with a zero value during densification. It is either nil or has the
// same length as Points.
type Series struct {
	Name   string
	Points []Point
	Filled []bool
}

// New builds a series from points that are already dense.
func New(name string, points []Point) (*Series, error) {
	s := &Series{Name: name, Points: points}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Len returns the number of points.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Points)
}

// Values returns a copy of the point values in order.
func (s *Series) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// Times returns a copy of the period starts in order.
func (s *Series) Times() []time.Time {
	out := make([]time.Time, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Time
	}
	return out
}

// Slice returns the sub-series [start, end). The result shares no memory with s.
func (s *Series) Slice(start, end int) *Series {
	if start < 0 {
		start = 0
	}
	if end > len(s.Points) {
		end = len(s.Points)
	}
	if start > end {
		start = end
	}

	out := &Series{Name: s.Name, Points: make([]Point, end-start)}
	copy(out.Points, s.Points[start:end])
	if s.Filled != nil {
		out.Filled = make([]bool, end-start)
		copy(out.Filled, s.Filled[start:end])
	}
	return out
}

// Sum returns the sum of all values.
func (s *Series) Sum() float64 {
	var total float64
	for _, p := range s.Points {
		total += p.Value
	}
	return total
}

// FilledCount returns how many periods were zero-filled.
func (s *Series) FilledCount() int {
	n := 0
	for _, f := range s.Filled {
		if f {
			n++
		}
	}
	return n
}

// Validate checks that the series is dense: every point starts a month and
// each point is exactly one month after the previous.
func (s *Series) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil series", ErrNotDense)
	}
	if s.Filled != nil && len(s.Filled) != len(s.Points) {
		return fmt.Errorf("filled mask has %d entries for %d points", len(s.Filled), len(s.Points))
	}
	for i, p := range s.Points {
		if !p.Time.Equal(MonthStart(p.Time)) {
			return fmt.Errorf("%w: point %d at %s is not a period start", ErrNotDense, i, p.Time.Format(time.RFC3339))
		}
		if i == 0 {
			continue
		}
		want := AddMonths(s.Points[i-1].Time, 1)
		if !p.Time.Equal(want) {
			return fmt.Errorf("%w: point %d at %s, expected %s",
				ErrNotDense, i, p.Time.Format(DateLayout), want.Format(DateLayout))
		}
	}
	return nil
}

// MonthStart truncates t to the first instant of its month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// AddMonths moves a period start forward by n months.
func AddMonths(t time.Time, n int) time.Time {
	return MonthStart(t).AddDate(0, n, 0)
}
