package extract

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status is the outcome of an extraction. It is the single gate the pipeline
// consults before benchmarking.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// TimeRange is the period an extraction covers.
type TimeRange struct {
	Years []int `json:"years"`
	Month int   `json:"month,omitempty"`
}

// Attempt records one call to a channel.
type Attempt struct {
	N         int           `json:"n"`
	Channel   string        `json:"channel"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Err       string        `json:"error,omitempty"`
}

// Metadata describes an extraction run.
type Metadata struct {
	Source          string     `json:"source"`
	UF              string     `json:"uf"`
	TimeRange       TimeRange  `json:"time_range"`
	CIDRule         string     `json:"cid_rule"`
	CIDColumn       string     `json:"cid_column,omitempty"`
	DateColumn      string     `json:"date_column,omitempty"`
	Channel         string     `json:"channel,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      time.Time  `json:"finished_at"`
	ExtractedAt     *time.Time `json:"extracted_at,omitempty"`
	Status          Status     `json:"status"`
	AttemptCount    int        `json:"attempt_count"`
	Attempts        []Attempt  `json:"attempts"`
	Error           string     `json:"error,omitempty"`
	RowsDownloaded  int        `json:"rows_downloaded"`
	RowsAfterFilter int        `json:"rows_after_filter"`
	SeriesPoints    int        `json:"series_points"`
	Synthetic       bool       `json:"synthetic"`
}

// NewMetadata starts a pending metadata record for req.
func NewMetadata(req Request, rule CIDRule, now time.Time) Metadata {
	return Metadata{
		Source:    req.Source,
		UF:        strings.ToUpper(req.UF),
		TimeRange: TimeRange{Years: req.Years, Month: req.Month},
		CIDRule:   rule.String(),
		StartedAt: now.UTC(),
		Status:    StatusPending,
		Attempts:  []Attempt{},
	}
}

// Key identifies the extraction target independent of when it ran.
func (m Metadata) Key() string {
	years := make([]string, len(m.TimeRange.Years))
	for i, y := range m.TimeRange.Years {
		years[i] = strconv.Itoa(y)
	}
	key := fmt.Sprintf("%s:%s:%s:%s", m.Source, m.UF, strings.Join(years, ","), m.CIDRule)
	if m.TimeRange.Month > 0 {
		key += fmt.Sprintf(":m%d", m.TimeRange.Month)
	}
	return key
}
