package extract

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Row is one raw registry record keyed by column name.
// Example: {"CAUSABAS": "I219", "DTOBITO": "21042022", "SEXO": "1"}
type Row map[string]string

// Frame is a lightweight table of raw records returned by channels.
type Frame struct {
	Columns []string
	Rows    []Row
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// HasColumn reports whether the frame has the named column.
func (f *Frame) HasColumn(name string) bool {
	for _, c := range f.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Append adds the rows of other, extending the column set as needed.
func (f *Frame) Append(other *Frame) {
	for _, c := range other.Columns {
		if !f.HasColumn(c) {
			f.Columns = append(f.Columns, c)
		}
	}
	f.Rows = append(f.Rows, other.Rows...)
}

// ReadFrame parses a CSV with a header row.
func ReadFrame(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("raw csv is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	f := &Frame{Columns: header}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(f.Rows)+2, err)
		}
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		f.Rows = append(f.Rows, row)
	}
	return f, nil
}

// ReadFrameFile parses the CSV at path.
func ReadFrameFile(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadFrame(file)
}

// WriteFrame writes the frame as CSV with its columns in order.
func WriteFrame(w io.Writer, f *Frame) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Columns); err != nil {
		return err
	}
	rec := make([]string, len(f.Columns))
	for _, row := range f.Rows {
		for i, c := range f.Columns {
			rec[i] = row[c]
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
