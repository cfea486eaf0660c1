package analytics

import (
	"fmt"

	"gorm.io/gorm"

	"leadlens/internal/forms"
	"leadlens/internal/timeframe"
)

// GetFormSessionsInTimeFrame loads every form session started inside the frame.
func GetFormSessionsInTimeFrame(db *gorm.DB, tf *timeframe.TimeFrame) ([]forms.FormSession, error) {
	var formSessions []forms.FormSession
	err := db.Where("started_at BETWEEN ? AND ?", tf.From, tf.To).
		Order("started_at ASC").
		Find(&formSessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load form sessions: %w", err)
	}
	return formSessions, nil
}

// FormSessionBreakdown group-counts form sessions in the frame by a
// categorical column, with each category's share of the total. Empty values
// are reported under the given fallback label.
func FormSessionBreakdown(db *gorm.DB, tf *timeframe.TimeFrame, column, fallback string) ([]Breakdown, error) {
	var rows []struct {
		Name  string
		Count int
	}
	err := db.Model(&forms.FormSession{}).
		Select(fmt.Sprintf("COALESCE(NULLIF(%s, ''), ?) AS name, COUNT(*) AS count", column), fallback).
		Where("started_at BETWEEN ? AND ?", tf.From, tf.To).
		Group("name").
		Order("count DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute %s breakdown: %w", column, err)
	}

	total := 0
	for _, row := range rows {
		total += row.Count
	}

	result := make([]Breakdown, 0, len(rows))
	for _, row := range rows {
		result = append(result, Breakdown{
			Name:       row.Name,
			Count:      row.Count,
			Percentage: Percentage(row.Count, total),
		})
	}
	return result, nil
}

// CompletionTrend returns a zero-filled series of completed form sessions per
// bucket inside the frame.
func CompletionTrend(db *gorm.DB, tf *timeframe.TimeFrame) ([]timeframe.DateStat, error) {
	var rows []struct {
		Bucket string
		Count  int
	}
	err := db.Model(&forms.FormSession{}).
		Select(tf.SQLiteBucketExpression("started_at")+" AS bucket, COUNT(*) AS count").
		Where("completed = ? AND started_at BETWEEN ? AND ?", true, tf.From, tf.To).
		Group("bucket").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute completion trend: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Bucket] = row.Count
	}
	return tf.FillSeries(counts), nil
}
