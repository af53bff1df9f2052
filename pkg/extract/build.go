package extract

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HatiCode/tsbench/pkg/series"
)

// DefaultDateColumns are tried in order to find the event date.
var DefaultDateColumns = []string{"DTOBITO", "DT_OBITO", "DT_OBITO_ORIG", "event_date", "date"}

// CIDRule selects records whose underlying cause starts with Prefix.
type CIDRule struct {
	Column string
	Prefix string
}

// DefaultCIDRule keeps cardiovascular deaths (CID-10 chapter I).
var DefaultCIDRule = CIDRule{Column: "CAUSABAS", Prefix: "I"}

func (r CIDRule) String() string {
	return fmt.Sprintf("%s^%s", r.Column, strings.ToUpper(r.Prefix))
}

// Matches reports whether a cause code satisfies the rule.
func (r CIDRule) Matches(code string) bool {
	return strings.HasPrefix(normalizeCID(code), strings.ToUpper(r.Prefix))
}

func normalizeCID(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Artifact is everything an extraction produced: the filtered raw records,
// the monthly series and the metadata describing the run.
type Artifact struct {
	Raw        *Frame
	Series     *series.Series
	Metadata   *Metadata
	CIDColumn  string
	DateColumn string
}

// BuildOptions controls Build.
type BuildOptions struct {
	Rule CIDRule
	// Month keeps only events in this calendar month when non-zero.
	Month int
	// MaxRows caps the filtered records when positive.
	MaxRows int
	// Name labels the resulting series.
	Name string
}

// Build filters raw records by cause of death, parses event dates and
// aggregates the events into a dense monthly count series.
func Build(raw *Frame, opts BuildOptions) (*Artifact, error) {
	rule := opts.Rule
	if rule.Column == "" {
		rule = DefaultCIDRule
	}
	if !raw.HasColumn(rule.Column) {
		return nil, fmt.Errorf("column %s not found in raw records", rule.Column)
	}

	filtered := &Frame{Columns: append([]string(nil), raw.Columns...)}
	for _, row := range raw.Rows {
		if !rule.Matches(row[rule.Column]) {
			continue
		}
		clean := make(Row, len(row))
		for k, v := range row {
			clean[k] = v
		}
		clean[rule.Column] = normalizeCID(row[rule.Column])
		filtered.Rows = append(filtered.Rows, clean)
		if opts.MaxRows > 0 && len(filtered.Rows) >= opts.MaxRows {
			break
		}
	}
	if filtered.Len() == 0 {
		return nil, errors.New("no records left after cause-of-death filter")
	}

	dateCol := ""
	for _, c := range DefaultDateColumns {
		if filtered.HasColumn(c) {
			dateCol = c
			break
		}
	}
	if dateCol == "" {
		return nil, errors.New("could not identify the event date column")
	}

	counts := make(map[time.Time]float64)
	kept := filtered.Rows[:0]
	for _, row := range filtered.Rows {
		t, err := ParseEventDate(row[dateCol])
		if err != nil {
			continue
		}
		if opts.Month > 0 && int(t.Month()) != opts.Month {
			continue
		}
		counts[t]++
		kept = append(kept, row)
	}
	filtered.Rows = kept
	if len(counts) == 0 {
		return nil, errors.New("no valid event dates after parsing")
	}

	name := opts.Name
	if name == "" {
		name = "events"
	}
	s, err := series.FromCounts(name, counts)
	if err != nil {
		return nil, err
	}

	return &Artifact{
		Raw:        filtered,
		Series:     s,
		CIDColumn:  rule.Column,
		DateColumn: dateCol,
	}, nil
}

// ParseEventDate parses registry dates, trying the SIM ddmmyyyy form first.
// Seven-digit values are treated as ddmmyyyy with the leading zero dropped.
func ParseEventDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) == 7 && isDigits(raw) {
		raw = "0" + raw
	}
	if len(raw) == 8 && isDigits(raw) {
		if t, err := time.Parse("02012006", raw); err == nil {
			return series.MonthStart(t), nil
		}
	}
	return series.ParseDate(raw)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
