// Package validate decides whether an extracted dataset is plausibly real and
// fit for benchmarking.
//
// A Policy is built from independent checks so thresholds and the set of
// checks can be tuned per dataset without touching the pipeline.
package validate

import (
	"fmt"
	"math"
	"strings"

	"github.com/HatiCode/tsbench/pkg/extract"
)

// Check is one named predicate over an extraction artifact.
type Check interface {
	Name() string
	// Evaluate returns whether the artifact passes and a short detail.
	Evaluate(a *extract.Artifact) (bool, string)
}

// CheckResult is the outcome of a single check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Verdict is the outcome of a policy.
type Verdict struct {
	Passed bool          `json:"passed"`
	Reason string        `json:"reason,omitempty"`
	Checks []CheckResult `json:"checks"`
}

// Policy decides whether an artifact may be benchmarked.
type Policy interface {
	Check(a *extract.Artifact) Verdict
}

// CheckPolicy passes when every check passes.
type CheckPolicy struct {
	checks []Check
}

// NewPolicy builds a policy from checks, evaluated in order.
func NewPolicy(checks ...Check) *CheckPolicy {
	return &CheckPolicy{checks: checks}
}

// Check runs every check; all are evaluated even after a failure so the
// report is complete.
func (p *CheckPolicy) Check(a *extract.Artifact) Verdict {
	v := Verdict{Passed: true, Checks: make([]CheckResult, 0, len(p.checks))}
	var failed []string
	for _, c := range p.checks {
		ok, detail := c.Evaluate(a)
		v.Checks = append(v.Checks, CheckResult{Name: c.Name(), Passed: ok, Detail: detail})
		if !ok {
			v.Passed = false
			if detail != "" {
				failed = append(failed, fmt.Sprintf("%s (%s)", c.Name(), detail))
			} else {
				failed = append(failed, c.Name())
			}
		}
	}
	if !v.Passed {
		v.Reason = "failed checks: " + strings.Join(failed, ", ")
	}
	return v
}

// Thresholds parameterize the real-data checks.
type Thresholds struct {
	CIDColumn         string
	CIDPrefix         string
	MinDistinctCIDs   int
	MinSeriesPoints   int
	ExpectedSource    string
	RequireMetadata   bool
	MaxFilledFraction float64
	// MinCV is the minimum coefficient of variation of the series; 0 disables
	// the check.
	MinCV float64
}

// DefaultThresholds match the checks used for SIM cardiovascular series.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CIDColumn:         "CAUSABAS",
		CIDPrefix:         "I",
		MinDistinctCIDs:   3,
		MinSeriesPoints:   24,
		ExpectedSource:    "SIM",
		RequireMetadata:   true,
		MaxFilledFraction: 0.5,
	}
}

// RealDataPolicy returns the default policy for thresholds t.
func RealDataPolicy(t Thresholds) *CheckPolicy {
	return NewPolicy(DefaultChecks(t)...)
}

// DefaultChecks returns the real-data checks for thresholds t.
func DefaultChecks(t Thresholds) []Check {
	checks := []Check{
		HasCIDColumn(t.CIDColumn),
		RawRowsPositive(),
		CIDPrefixAllMatch(t.CIDColumn, t.CIDPrefix),
		DistinctCIDsAtLeast(t.CIDColumn, t.MinDistinctCIDs),
		HasSeries(),
		SeriesPointsAtLeast(t.MinSeriesPoints),
		SeriesSumPositive(),
	}
	if t.MaxFilledFraction > 0 {
		checks = append(checks, FilledFractionAtMost(t.MaxFilledFraction))
	}
	if t.MinCV > 0 {
		checks = append(checks, DispersionAtLeast(t.MinCV))
	}
	if t.RequireMetadata {
		checks = append(checks, NotSynthetic(), SourceIs(t.ExpectedSource))
	}
	return checks
}

type funcCheck struct {
	name string
	fn   func(a *extract.Artifact) (bool, string)
}

func (c funcCheck) Name() string { return c.name }

func (c funcCheck) Evaluate(a *extract.Artifact) (bool, string) {
	if a == nil {
		return false, "no artifact"
	}
	return c.fn(a)
}

// CheckFunc adapts a function to a Check.
func CheckFunc(name string, fn func(a *extract.Artifact) (bool, string)) Check {
	return funcCheck{name: name, fn: fn}
}

// HasCIDColumn requires the raw records to carry the cause-of-death column.
func HasCIDColumn(column string) Check {
	return CheckFunc("has_cid_column", func(a *extract.Artifact) (bool, string) {
		if a.Raw == nil || !a.Raw.HasColumn(column) {
			return false, "missing column " + column
		}
		return true, ""
	})
}

// RawRowsPositive requires at least one raw record.
func RawRowsPositive() Check {
	return CheckFunc("raw_rows_gt_0", func(a *extract.Artifact) (bool, string) {
		n := a.Raw.Len()
		return n > 0, fmt.Sprintf("%d rows", n)
	})
}

// CIDPrefixAllMatch requires every cause code to start with prefix.
func CIDPrefixAllMatch(column, prefix string) Check {
	rule := extract.CIDRule{Column: column, Prefix: prefix}
	return CheckFunc("cid_prefix_all_match", func(a *extract.Artifact) (bool, string) {
		if a.Raw == nil || !a.Raw.HasColumn(column) {
			return false, "missing column " + column
		}
		bad := 0
		for _, row := range a.Raw.Rows {
			if !rule.Matches(row[column]) {
				bad++
			}
		}
		if bad > 0 {
			return false, fmt.Sprintf("%d codes outside prefix %s", bad, strings.ToUpper(prefix))
		}
		return true, ""
	})
}

// DistinctCIDsAtLeast requires at least n distinct cause codes.
func DistinctCIDsAtLeast(column string, n int) Check {
	return CheckFunc(fmt.Sprintf("cid_unique_ge_%d", n), func(a *extract.Artifact) (bool, string) {
		if a.Raw == nil || !a.Raw.HasColumn(column) {
			return false, "missing column " + column
		}
		seen := make(map[string]struct{})
		for _, row := range a.Raw.Rows {
			seen[strings.ToUpper(strings.TrimSpace(row[column]))] = struct{}{}
		}
		return len(seen) >= n, fmt.Sprintf("%d distinct codes", len(seen))
	})
}

// HasSeries requires an aggregated series.
func HasSeries() Check {
	return CheckFunc("series_has_columns", func(a *extract.Artifact) (bool, string) {
		if a.Series == nil {
			return false, "no series"
		}
		return true, ""
	})
}

// SeriesPointsAtLeast requires a minimum series length.
func SeriesPointsAtLeast(n int) Check {
	return CheckFunc("series_points_min", func(a *extract.Artifact) (bool, string) {
		got := a.Series.Len()
		return got >= n, fmt.Sprintf("%d points, need %d", got, n)
	})
}

// SeriesSumPositive rejects an all-zero series.
func SeriesSumPositive() Check {
	return CheckFunc("series_value_sum_gt_0", func(a *extract.Artifact) (bool, string) {
		if a.Series == nil {
			return false, "no series"
		}
		sum := a.Series.Sum()
		return sum > 0, fmt.Sprintf("sum %g", sum)
	})
}

// FilledFractionAtMost bounds the share of periods that were zero-filled
// rather than observed.
func FilledFractionAtMost(max float64) Check {
	return CheckFunc("filled_fraction_max", func(a *extract.Artifact) (bool, string) {
		n := a.Series.Len()
		if n == 0 {
			return false, "no series"
		}
		frac := float64(a.Series.FilledCount()) / float64(n)
		return frac <= max, fmt.Sprintf("%.2f of periods filled, max %.2f", frac, max)
	})
}

// DispersionAtLeast rejects series that are implausibly flat.
func DispersionAtLeast(minCV float64) Check {
	return CheckFunc("dispersion_min", func(a *extract.Artifact) (bool, string) {
		n := a.Series.Len()
		if n == 0 {
			return false, "no series"
		}
		values := a.Series.Values()
		var mean float64
		for _, v := range values {
			mean += v
		}
		mean /= float64(n)
		if mean == 0 {
			return false, "zero mean"
		}
		var ss float64
		for _, v := range values {
			ss += (v - mean) * (v - mean)
		}
		cv := math.Sqrt(ss/float64(n)) / mean
		return cv >= minCV, fmt.Sprintf("cv %.3f, min %.3f", cv, minCV)
	})
}

// NotSynthetic requires metadata declaring the data real.
func NotSynthetic() Check {
	return CheckFunc("meta_not_synthetic", func(a *extract.Artifact) (bool, string) {
		if a.Metadata == nil {
			return false, "no metadata"
		}
		return !a.Metadata.Synthetic, ""
	})
}

// SourceIs requires the metadata source to match.
func SourceIs(source string) Check {
	return CheckFunc("meta_has_source_"+strings.ToLower(source), func(a *extract.Artifact) (bool, string) {
		if a.Metadata == nil {
			return false, "no metadata"
		}
		return a.Metadata.Source == source, "source " + a.Metadata.Source
	})
}
