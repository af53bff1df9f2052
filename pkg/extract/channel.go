// Package extract acquires raw mortality records from registry channels and
// shapes them into the monthly event series the benchmark runs on.
//
// A Channel fetches raw records for a request; channels are tried in tiers by
// the pipeline, which also owns retries. Typical channels:
//   - HTTPChannel: downloads per-year CSV exports from a registry mirror
//   - FileChannel: reads exports already on disk
package extract

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
)

// ErrTransient marks an extraction failure that may succeed on retry.
var ErrTransient = errors.New("transient extraction failure")

// Transient wraps err so IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether err is worth retrying: timeouts, explicitly
// transient errors and retryable HTTP statuses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// StatusError is a non-200 response from an HTTP channel.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Code)
}

// Retryable reports whether the status is a server-side or rate-limit error.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// Request describes the records to extract.
type Request struct {
	// Source is the registry, e.g. "SIM".
	Source string
	// UF is the two-letter state code.
	UF string
	// Years to download, in order.
	Years []int
	// Month optionally restricts the series to a single calendar month (1-12).
	Month int
}

// Validate checks the request.
func (r Request) Validate() error {
	if r.Source == "" {
		return errors.New("source is required")
	}
	if len(r.UF) != 2 {
		return fmt.Errorf("uf must be a two-letter code, got %q", r.UF)
	}
	if len(r.Years) == 0 {
		return errors.New("at least one year is required")
	}
	if r.Month < 0 || r.Month > 12 {
		return fmt.Errorf("month must be 1-12, got %d", r.Month)
	}
	return nil
}

// Channel is a source of raw registry records.
//
// Extract must respect context cancellation and deadlines. Failures that may
// go away on retry should satisfy IsTransient; everything else is treated as
// permanent for the channel.
type Channel interface {
	// Extract fetches all records for the request.
	Extract(ctx context.Context, req Request) (*Frame, error)

	// Name returns a short identifier, e.g. "http-mirror".
	Name() string
}

// ParseYears accepts a single year ("2022"), a list ("2019,2020,2022") or an
// inclusive range ("2019-2023").
func ParseYears(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("years is empty")
	}

	if strings.Contains(s, "-") && !strings.Contains(s, ",") {
		parts := strings.SplitN(s, "-", 2)
		from, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		to, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err := errors.Join(err1, err2); err != nil {
			return nil, fmt.Errorf("invalid year range %q: %w", s, err)
		}
		if to < from {
			return nil, fmt.Errorf("invalid year range %q: end before start", s)
		}
		years := make([]int, 0, to-from+1)
		for y := from; y <= to; y++ {
			years = append(years, y)
		}
		return years, nil
	}

	var years []int
	for _, part := range strings.Split(s, ",") {
		y, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid year %q: %w", part, err)
		}
		years = append(years, y)
	}
	return years, nil
}
