// Package window generates rolling-origin, expanding-window train/test splits
// over a dense series.
//
// Window i trains on indices [0, m+i-1] and tests on [m+i, m+i+h-1], where m is
// the minimum training size and h the horizon. A series of length L yields
// L-m-h+1 windows.
package window

import (
	"fmt"
	"iter"

	"github.com/HatiCode/tsbench/pkg/series"
)

// Window is one train/test split. All bounds are inclusive indices into the
// source series.
type Window struct {
	ID         int
	TrainStart int
	TrainEnd   int
	TestStart  int
	TestEnd    int
}

// TrainLen returns the number of training points.
func (w Window) TrainLen() int { return w.TrainEnd - w.TrainStart + 1 }

// Horizon returns the number of test points.
func (w Window) Horizon() int { return w.TestEnd - w.TestStart + 1 }

// Train returns the training slice of s.
func (w Window) Train(s *series.Series) *series.Series {
	return s.Slice(w.TrainStart, w.TrainEnd+1)
}

// Test returns the test slice of s.
func (w Window) Test(s *series.Series) *series.Series {
	return s.Slice(w.TestStart, w.TestEnd+1)
}

// InsufficientDataError is returned when the parameters cannot produce a
// single window: the series is too short, or MinTrainSize or Horizon is
// below 1.
type InsufficientDataError struct {
	Length       int
	MinTrainSize int
	Horizon      int
}

func (e *InsufficientDataError) Error() string {
	if e.MinTrainSize < 1 {
		return fmt.Sprintf("insufficient data: min_train_size must be >= 1, got %d", e.MinTrainSize)
	}
	if e.Horizon < 1 {
		return fmt.Sprintf("insufficient data: horizon must be >= 1, got %d", e.Horizon)
	}
	return fmt.Sprintf("insufficient data: series length %d < min_train_size %d + horizon %d",
		e.Length, e.MinTrainSize, e.Horizon)
}

// Count returns the number of windows for the given parameters, or 0 if none
// fit.
func Count(length, minTrainSize, horizon int) int {
	n := length - minTrainSize - horizon + 1
	if n < 0 {
		return 0
	}
	return n
}

// Sequence is a lazily evaluated list of windows. It holds no per-window state
// and can be iterated any number of times.
type Sequence struct {
	length       int
	minTrainSize int
	horizon      int
}

// Generate validates the parameters and returns the window sequence.
func Generate(length, minTrainSize, horizon int) (Sequence, error) {
	if minTrainSize < 1 || horizon < 1 || Count(length, minTrainSize, horizon) < 1 {
		return Sequence{}, &InsufficientDataError{Length: length, MinTrainSize: minTrainSize, Horizon: horizon}
	}
	return Sequence{length: length, minTrainSize: minTrainSize, horizon: horizon}, nil
}

// Len returns the number of windows.
func (s Sequence) Len() int {
	return Count(s.length, s.minTrainSize, s.horizon)
}

// At returns window i. It panics if i is out of range.
func (s Sequence) At(i int) Window {
	if i < 0 || i >= s.Len() {
		panic(fmt.Sprintf("window index %d out of range [0, %d)", i, s.Len()))
	}
	end := s.minTrainSize + i - 1
	return Window{
		ID:         i,
		TrainStart: 0,
		TrainEnd:   end,
		TestStart:  end + 1,
		TestEnd:    end + s.horizon,
	}
}

// All yields the windows in order of ID.
func (s Sequence) All() iter.Seq[Window] {
	return func(yield func(Window) bool) {
		for i := range s.Len() {
			if !yield(s.At(i)) {
				return
			}
		}
	}
}

// Collect materializes the sequence.
func (s Sequence) Collect() []Window {
	out := make([]Window, 0, s.Len())
	for w := range s.All() {
		out = append(out, w)
	}
	return out
}
