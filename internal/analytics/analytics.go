// Package analytics is the aggregation engine behind the admin dashboards.
// It turns raw visitor sessions, page views, form sessions and lead journeys
// into funnel, step, real-time, attribution and overview reports.
//
// The package is organized into focused modules:
//   - funnel.go: per-step reach counts and drop-off ranking
//   - steps.go: per-step answer distributions, timing and skip rates
//   - realtime.go: "right now" snapshot with 5-minute window buckets
//   - attribution.go: multi-touch credit assignment across lead journeys
//   - overview.go: lead totals, status histogram and daily trend
//   - queries.go: store reads shared by the report builders
//
// All ratio computations guard their denominator: an empty input produces an
// all-zero report, never NaN or a division error.
package analytics

import "math"

// MetricCountResult represents a generic key-count pair for query results
type MetricCountResult struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Breakdown is one category's share of a categorical group-count.
type Breakdown struct {
	Name       string  `json:"name"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Percentage returns part/total*100 rounded to one decimal place, and 0 when
// the denominator is zero.
func Percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(float64(part) / float64(total) * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
