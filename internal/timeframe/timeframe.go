// Package timeframe provides date-range parsing and bucketing helpers for the
// aggregation queries. Every admin read endpoint accepts an optional
// startDate/endDate pair; this package turns those into a validated TimeFrame
// and generates the reference date points used to zero-fill trend charts.
package timeframe

import (
	"fmt"
	"time"
)

// DateStat is a single point in a time series.
type DateStat struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type BucketSize string

const (
	BucketSizeHour BucketSize = "hour"
	BucketSizeDay  BucketSize = "day"
)

// DateParamLayout is the wire format for startDate/endDate query parameters.
const DateParamLayout = "2006-01-02"

// TimeFrame represents a period between two points in time.
type TimeFrame struct {
	From       time.Time
	To         time.Time
	BucketSize BucketSize
}

// NewTimeFrame builds a validated TimeFrame.
func NewTimeFrame(from, to time.Time, bucketSize BucketSize) (*TimeFrame, error) {
	if from.After(to) {
		return nil, fmt.Errorf("from must be before to")
	}
	return &TimeFrame{From: from, To: to, BucketSize: bucketSize}, nil
}

// ParseRange parses optional startDate/endDate query parameters (YYYY-MM-DD).
// A missing start defaults to defaultDays before the end; a missing end
// defaults to now. The end date is inclusive: "2024-07-01" covers the whole of
// July 1st.
func ParseRange(startDate, endDate string, defaultDays int) (*TimeFrame, error) {
	now := time.Now().UTC()

	to := now
	if endDate != "" {
		parsed, err := time.Parse(DateParamLayout, endDate)
		if err != nil {
			return nil, fmt.Errorf("invalid endDate %q: %w", endDate, err)
		}
		to = parsed.AddDate(0, 0, 1).Add(-time.Second)
	}

	from := to.AddDate(0, 0, -defaultDays)
	if startDate != "" {
		parsed, err := time.Parse(DateParamLayout, startDate)
		if err != nil {
			return nil, fmt.Errorf("invalid startDate %q: %w", startDate, err)
		}
		from = parsed
	}

	return NewTimeFrame(from, to, BucketSizeDay)
}

// LastNDays returns a day-bucketed frame covering the trailing n days up to now.
func LastNDays(n int) *TimeFrame {
	now := time.Now().UTC()
	return &TimeFrame{
		From:       now.AddDate(0, 0, -n),
		To:         now,
		BucketSize: BucketSizeDay,
	}
}

// Duration returns the length of the frame.
func (tf *TimeFrame) Duration() time.Duration {
	return tf.To.Sub(tf.From)
}

// Contains reports whether t falls inside the frame (inclusive bounds).
func (tf *TimeFrame) Contains(t time.Time) bool {
	return !t.Before(tf.From) && !t.After(tf.To)
}

// FormatBucket formats a timestamp as its bucket label.
func (tf *TimeFrame) FormatBucket(t time.Time) string {
	if tf.BucketSize == BucketSizeHour {
		return t.UTC().Format("2006-01-02 15:00")
	}
	return t.UTC().Format(DateParamLayout)
}

// DatePoints returns one reference timestamp per bucket covering the frame, in
// chronological order. Used to zero-fill series so charts never have gaps.
func (tf *TimeFrame) DatePoints() []time.Time {
	var points []time.Time

	switch tf.BucketSize {
	case BucketSizeHour:
		current := tf.From.UTC().Truncate(time.Hour)
		for !current.After(tf.To) {
			points = append(points, current)
			current = current.Add(time.Hour)
		}
	default:
		from := tf.From.UTC()
		current := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
		for !current.After(tf.To) {
			points = append(points, current)
			current = current.AddDate(0, 0, 1)
		}
	}

	return points
}

// FillSeries turns sparse per-bucket counts into a dense, zero-filled series
// covering the whole frame.
func (tf *TimeFrame) FillSeries(counts map[string]int) []DateStat {
	points := tf.DatePoints()
	series := make([]DateStat, 0, len(points))
	for _, point := range points {
		label := tf.FormatBucket(point)
		series = append(series, DateStat{Date: label, Count: counts[label]})
	}
	return series
}

// SQLiteBucketExpression returns the SQLite strftime expression that groups the
// given timestamp column into this frame's buckets.
func (tf *TimeFrame) SQLiteBucketExpression(column string) string {
	if tf.BucketSize == BucketSizeHour {
		return fmt.Sprintf("strftime('%%Y-%%m-%%d %%H:00', %s)", column)
	}
	return fmt.Sprintf("strftime('%%Y-%%m-%%d', %s)", column)
}
