package analytics

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"leadlens/internal/leads"
	"leadlens/internal/timeframe"
)

const (
	newLeadsWindowDays = 30
	recentLeadsLimit   = 5
	trendDays          = 7
)

// Overview is the landing dashboard payload.
type Overview struct {
	TotalLeads     int                  `json:"total_leads"`
	NewLeads       int                  `json:"new_leads"`
	ConversionRate float64              `json:"conversion_rate"`
	StatusCounts   []MetricCountResult  `json:"status_counts"`
	LeadSources    []Breakdown          `json:"lead_sources"`
	RecentLeads    []leads.Lead         `json:"recent_leads"`
	DailyTrend     []timeframe.DateStat `json:"daily_trend"`
}

// GetOverview assembles the high-level lead metrics.
func GetOverview(db *gorm.DB, logger *slog.Logger) (*Overview, error) {
	now := time.Now().UTC()
	overview := &Overview{}

	var total int64
	if err := db.Model(&leads.Lead{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count leads: %w", err)
	}
	overview.TotalLeads = int(total)

	var fresh int64
	err := db.Model(&leads.Lead{}).
		Where("created_at >= ?", now.AddDate(0, 0, -newLeadsWindowDays)).
		Count(&fresh).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count new leads: %w", err)
	}
	overview.NewLeads = int(fresh)

	statusCounts, converted, err := leadStatusCounts(db)
	if err != nil {
		return nil, err
	}
	overview.StatusCounts = statusCounts
	overview.ConversionRate = Percentage(converted, overview.TotalLeads)

	overview.LeadSources, err = leadSourceBreakdown(db)
	if err != nil {
		return nil, err
	}

	err = db.Order("created_at DESC").Limit(recentLeadsLimit).Find(&overview.RecentLeads).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recent leads: %w", err)
	}

	overview.DailyTrend, err = leadDailyTrend(db)
	if err != nil {
		return nil, err
	}

	return overview, nil
}

func leadStatusCounts(db *gorm.DB) ([]MetricCountResult, int, error) {
	var rows []struct {
		Status string
		Count  int
	}
	err := db.Model(&leads.Lead{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Order("count DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count lead statuses: %w", err)
	}

	counts := make([]MetricCountResult, 0, len(rows))
	converted := 0
	for _, row := range rows {
		counts = append(counts, MetricCountResult{Name: row.Status, Count: row.Count})
		if row.Status == leads.StatusConverted {
			converted = row.Count
		}
	}
	return counts, converted, nil
}

func leadSourceBreakdown(db *gorm.DB) ([]Breakdown, error) {
	var rows []struct {
		Name  string
		Count int
	}
	err := db.Model(&leads.Lead{}).
		Select("COALESCE(NULLIF(source, ''), 'direct') AS name, COUNT(*) AS count").
		Group("name").
		Order("count DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute lead sources: %w", err)
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

// leadDailyTrend returns one point per day for the trailing week, including
// zero-count days.
func leadDailyTrend(db *gorm.DB) ([]timeframe.DateStat, error) {
	tf := timeframe.LastNDays(trendDays)

	var rows []struct {
		Bucket string
		Count  int
	}
	err := db.Model(&leads.Lead{}).
		Select(tf.SQLiteBucketExpression("created_at")+" AS bucket, COUNT(*) AS count").
		Where("created_at BETWEEN ? AND ?", tf.From, tf.To).
		Group("bucket").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute lead trend: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Bucket] = row.Count
	}
	return tf.FillSeries(counts), nil
}
