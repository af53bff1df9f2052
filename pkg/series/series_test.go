package series

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2021-03-15", month(2021, time.March)},
		{"2021-03", month(2021, time.March)},
		{"2021-03-15T10:00:00Z", month(2021, time.March)},
		{"15032021", month(2021, time.March)},
		{"15/03/2021", month(2021, time.March)},
		{"2021-03-15 08:30:00", month(2021, time.March)},
	}
	for _, tt := range tests {
		got, err := ParseDate(tt.in)
		if err != nil {
			t.Errorf("ParseDate(%q) error = %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "yesterday", "2021/13/01"} {
		if _, err := ParseDate(bad); err == nil {
			t.Errorf("ParseDate(%q) expected error", bad)
		}
	}
}

func TestDensify_FillsGapsAndSumsDuplicates(t *testing.T) {
	obs := []Point{
		{Time: time.Date(2020, 1, 10, 0, 0, 0, 0, time.UTC), Value: 3},
		{Time: time.Date(2020, 1, 20, 0, 0, 0, 0, time.UTC), Value: 4},
		{Time: month(2020, time.April), Value: 5},
	}

	s, err := Densify("x", obs)
	if err != nil {
		t.Fatalf("Densify() error = %v", err)
	}
	if s.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", s.Len())
	}

	wantValues := []float64{7, 0, 0, 5}
	wantFilled := []bool{false, true, true, false}
	for i := range wantValues {
		if s.Points[i].Value != wantValues[i] {
			t.Errorf("Points[%d].Value = %v, want %v", i, s.Points[i].Value, wantValues[i])
		}
		if s.Filled[i] != wantFilled[i] {
			t.Errorf("Filled[%d] = %v, want %v", i, s.Filled[i], wantFilled[i])
		}
	}
	if s.FilledCount() != 2 {
		t.Errorf("FilledCount() = %d, want 2", s.FilledCount())
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestDensify_Empty(t *testing.T) {
	if _, err := Densify("x", nil); err == nil {
		t.Fatal("expected error for no observations")
	}
}

func TestValidate_NotDense(t *testing.T) {
	s := &Series{Points: []Point{
		{Time: month(2020, time.January)},
		{Time: month(2020, time.March)},
	}}
	if err := s.Validate(); !errors.Is(err, ErrNotDense) {
		t.Errorf("Validate() = %v, want ErrNotDense", err)
	}

	s = &Series{Points: []Point{{Time: time.Date(2020, 1, 5, 0, 0, 0, 0, time.UTC)}}}
	if err := s.Validate(); !errors.Is(err, ErrNotDense) {
		t.Errorf("Validate() mid-month = %v, want ErrNotDense", err)
	}

	if _, err := New("dup", []Point{{Time: month(2020, 1)}, {Time: month(2020, 1)}}); !errors.Is(err, ErrNotDense) {
		t.Errorf("New() duplicate = %v, want ErrNotDense", err)
	}
}

func TestSlice_Copies(t *testing.T) {
	s, _ := Densify("x", []Point{
		{Time: month(2020, 1), Value: 1},
		{Time: month(2020, 2), Value: 2},
		{Time: month(2020, 3), Value: 3},
	})

	sub := s.Slice(1, 3)
	if sub.Len() != 2 || sub.Points[0].Value != 2 {
		t.Fatalf("Slice(1,3) = %+v", sub.Points)
	}
	sub.Points[0].Value = 99
	if s.Points[1].Value != 2 {
		t.Error("Slice() shares memory with the source series")
	}
	if got := s.Slice(5, 9).Len(); got != 0 {
		t.Errorf("out of range Slice().Len() = %d, want 0", got)
	}
}

func TestLoad(t *testing.T) {
	in := "date,value\n2020-01-01,10\n2020-01-15,5\n2020-03-01,7\n"
	s, err := Load(strings.NewReader(in), LoadOptions{Name: "t"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []float64{15, 0, 7}
	got := s.Values()
	if len(got) != len(want) {
		t.Fatalf("Values() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Values()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLoad_CustomColumns(t *testing.T) {
	in := "ds,y,extra\n2020-01,1,a\n2020-02,2,b\n"
	s, err := Load(strings.NewReader(in), LoadOptions{DateColumn: "ds", ValueColumn: "y"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"no rows", "date,value\n"},
		{"missing date column", "when,value\n2020-01-01,1\n"},
		{"missing value column", "date,count\n2020-01-01,1\n"},
		{"bad date", "date,value\nnope,1\n"},
		{"bad value", "date,value\n2020-01-01,abc\n"},
		{"negative", "date,value\n2020-01-01,-1\n"},
		{"nan", "date,value\n2020-01-01,5\n2020-02-01,NaN\n"},
		{"inf", "date,value\n2020-01-01,Inf\n"},
		{"positive inf", "date,value\n2020-01-01,+Inf\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(strings.NewReader(tt.in), LoadOptions{}); err == nil {
				t.Error("expected error")
			}
		})
	}

	_, err := Load(strings.NewReader("date,value\n2020-01-01,-1\n"), LoadOptions{})
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Line != 2 {
		t.Errorf("expected ParseError on line 2, got %v", err)
	}

	_, err = Load(strings.NewReader("date,value\n2020-01-01,5\n2020-02-01,NaN\n"), LoadOptions{})
	if !errors.As(err, &pe) || pe.Line != 3 || !strings.Contains(pe.Error(), "non-finite") {
		t.Errorf("expected non-finite ParseError on line 3, got %v", err)
	}
}

func TestWriteThenLoad(t *testing.T) {
	s, _ := Densify("x", []Point{
		{Time: month(2021, 11), Value: 1.5},
		{Time: month(2022, 2), Value: 4},
	})

	var buf bytes.Buffer
	if err := Write(&buf, s); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	back, err := Load(&buf, LoadOptions{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if back.Len() != s.Len() {
		t.Fatalf("Len() = %d, want %d", back.Len(), s.Len())
	}
	for i := range s.Points {
		if !back.Points[i].Time.Equal(s.Points[i].Time) || back.Points[i].Value != s.Points[i].Value {
			t.Errorf("point %d = %+v, want %+v", i, back.Points[i], s.Points[i])
		}
	}
}
