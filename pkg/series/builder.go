package series

import (
	"fmt"
	"sort"
	"time"
)

// Densify aggregates raw observations into a dense monthly series.
//
// Observations are bucketed by the month they fall in and summed. Months
// between the first and last observation that have no data are inserted with
// value 0 and flagged in Filled.
func Densify(name string, obs []Point) (*Series, error) {
	if len(obs) == 0 {
		return nil, fmt.Errorf("no observations to densify")
	}

	buckets := make(map[time.Time]float64, len(obs))
	for _, o := range obs {
		buckets[MonthStart(o.Time)] += o.Value
	}

	periods := make([]time.Time, 0, len(buckets))
	for p := range buckets {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].Before(periods[j]) })

	first, last := periods[0], periods[len(periods)-1]
	n := monthsBetween(first, last) + 1

	s := &Series{
		Name:   name,
		Points: make([]Point, 0, n),
		Filled: make([]bool, 0, n),
	}
	for t := first; !t.After(last); t = AddMonths(t, 1) {
		v, ok := buckets[t]
		s.Points = append(s.Points, Point{Time: t, Value: v})
		s.Filled = append(s.Filled, !ok)
	}
	return s, nil
}

// FromCounts builds a dense series from per-period counts, as produced when
// tallying events by month.
func FromCounts(name string, counts map[time.Time]float64) (*Series, error) {
	obs := make([]Point, 0, len(counts))
	for t, v := range counts {
		obs = append(obs, Point{Time: t, Value: v})
	}
	return Densify(name, obs)
}

func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}
