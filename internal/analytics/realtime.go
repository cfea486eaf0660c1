package analytics

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"leadlens/internal/config"
	"leadlens/internal/leads"
	"leadlens/internal/pkg/geoip"
	"leadlens/internal/pkg/useragent"
	"leadlens/internal/sessions"
)

const (
	windowBucketCount   = 12
	windowBucketLength  = 5 * time.Minute
	topPagesLimit       = 5
	recentActivityLimit = 10
)

// WindowBucket is one 5-minute slice of the trailing hour.
type WindowBucket struct {
	Time        string `json:"time"` // bucket start, HH:MM
	Visitors    int    `json:"visitors"`
	PageViews   int    `json:"page_views"`
	Conversions int    `json:"conversions"`
}

// RankedPage is one entry of the top-pages list.
type RankedPage struct {
	Rank       int     `json:"rank"`
	Path       string  `json:"path"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// ActivityItem is one entry of the recent-activity feed.
type ActivityItem struct {
	Path       string    `json:"path"`
	Device     string    `json:"device"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RealTimeSnapshot is the "right now" view of the site.
type RealTimeSnapshot struct {
	ActiveVisitors int            `json:"active_visitors"`
	BounceRate     float64        `json:"bounce_rate"`
	Buckets        []WindowBucket `json:"buckets"`
	Devices        []Breakdown    `json:"devices"`
	Sources        []Breakdown    `json:"sources"`
	Countries      []Breakdown    `json:"countries"`
	TopPages       []RankedPage   `json:"top_pages"`
	RecentActivity []ActivityItem `json:"recent_activity"`
}

// GetRealTimeSnapshot computes the live dashboard snapshot. The liveness
// sweep always runs first so staleness is resolved before any active-visitor
// count is reported.
func GetRealTimeSnapshot(dbManager cartridge.DBManager, logger *slog.Logger) (*RealTimeSnapshot, error) {
	if _, err := sessions.SweepStaleSessions(dbManager, logger); err != nil {
		return nil, err
	}

	db := dbManager.GetConnection()
	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	liveness := time.Duration(config.GetConfig().GetSessionLiveness()) * time.Second

	snapshot := &RealTimeSnapshot{}

	var active int64
	err := db.Model(&sessions.VisitorSession{}).
		Where("is_active = ? AND last_ping > ?", true, now.Add(-liveness)).
		Count(&active).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count active visitors: %w", err)
	}
	snapshot.ActiveVisitors = int(active)

	bounceRate, err := bounceRateForDay(db, dayStart)
	if err != nil {
		return nil, err
	}
	snapshot.BounceRate = bounceRate

	buckets, err := windowBuckets(db, now)
	if err != nil {
		return nil, err
	}
	snapshot.Buckets = buckets

	snapshot.Devices, err = sessionBreakdown(db, dayStart, "device", useragent.Unknown)
	if err != nil {
		return nil, err
	}
	snapshot.Sources, err = sessionBreakdown(db, dayStart, "utm_source", "direct")
	if err != nil {
		return nil, err
	}
	snapshot.Countries, err = sessionBreakdown(db, dayStart, "country", geoip.UnknownCountry)
	if err != nil {
		return nil, err
	}

	snapshot.TopPages, err = topPages(db, dayStart)
	if err != nil {
		return nil, err
	}

	snapshot.RecentActivity, err = recentActivity(db, dayStart)
	if err != nil {
		return nil, err
	}

	return snapshot, nil
}

// bounceRateForDay is bounced/completed over sessions that ended today, where
// a bounce is a completed session with exactly one page view.
func bounceRateForDay(db *gorm.DB, dayStart time.Time) (float64, error) {
	var completed, bounced int64

	base := db.Model(&sessions.VisitorSession{}).
		Where("is_active = ? AND ended_at >= ?", false, dayStart)
	if err := base.Count(&completed).Error; err != nil {
		return 0, fmt.Errorf("failed to count completed sessions: %w", err)
	}
	if completed == 0 {
		return 0, nil
	}

	err := db.Model(&sessions.VisitorSession{}).
		Where("is_active = ? AND ended_at >= ? AND page_views = ?", false, dayStart, 1).
		Count(&bounced).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count bounced sessions: %w", err)
	}

	return Percentage(int(bounced), int(completed)), nil
}

// windowBuckets fills exactly 12 buckets of 5 minutes covering the trailing
// hour, bucketed in memory from one scan per record kind.
func windowBuckets(db *gorm.DB, now time.Time) ([]WindowBucket, error) {
	windowStart := now.Add(-windowBucketCount * windowBucketLength)

	buckets := make([]WindowBucket, windowBucketCount)
	for i := range buckets {
		buckets[i].Time = windowStart.Add(time.Duration(i) * windowBucketLength).Format("15:04")
	}

	bucketIndex := func(t time.Time) (int, bool) {
		if t.Before(windowStart) || !t.Before(now.Add(windowBucketLength)) {
			return 0, false
		}
		idx := int(t.Sub(windowStart) / windowBucketLength)
		if idx < 0 || idx >= windowBucketCount {
			return 0, false
		}
		return idx, true
	}

	var sessionStarts []time.Time
	err := db.Model(&sessions.VisitorSession{}).
		Where("started_at >= ?", windowStart).
		Pluck("started_at", &sessionStarts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load session starts: %w", err)
	}
	for _, t := range sessionStarts {
		if idx, ok := bucketIndex(t.UTC()); ok {
			buckets[idx].Visitors++
		}
	}

	var viewTimes []time.Time
	err = db.Model(&sessions.PageView{}).
		Where("viewed_at >= ?", windowStart).
		Pluck("viewed_at", &viewTimes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load page view times: %w", err)
	}
	for _, t := range viewTimes {
		if idx, ok := bucketIndex(t.UTC()); ok {
			buckets[idx].PageViews++
		}
	}

	var conversionTimes []time.Time
	err = db.Model(&leads.Lead{}).
		Where("created_at >= ?", windowStart).
		Pluck("created_at", &conversionTimes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load conversion times: %w", err)
	}
	for _, t := range conversionTimes {
		if idx, ok := bucketIndex(t.UTC()); ok {
			buckets[idx].Conversions++
		}
	}

	return buckets, nil
}

// sessionBreakdown group-counts today's sessions by a categorical column and
// annotates each category with its share of the day's total.
func sessionBreakdown(db *gorm.DB, dayStart time.Time, column, fallback string) ([]Breakdown, error) {
	var rows []struct {
		Name  string
		Count int
	}
	err := db.Model(&sessions.VisitorSession{}).
		Select(fmt.Sprintf("COALESCE(NULLIF(%s, ''), ?) AS name, COUNT(*) AS count", column), fallback).
		Where("started_at >= ?", dayStart).
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

func topPages(db *gorm.DB, dayStart time.Time) ([]RankedPage, error) {
	var rows []struct {
		Path  string
		Count int
	}
	err := db.Model(&sessions.PageView{}).
		Select("path, COUNT(*) AS count").
		Where("viewed_at >= ?", dayStart).
		Group("path").
		Order("count DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute top pages: %w", err)
	}

	total := 0
	for _, row := range rows {
		total += row.Count
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Count > rows[j].Count })
	if len(rows) > topPagesLimit {
		rows = rows[:topPagesLimit]
	}

	pages := make([]RankedPage, 0, len(rows))
	for i, row := range rows {
		pages = append(pages, RankedPage{
			Rank:       i + 1,
			Path:       row.Path,
			Count:      row.Count,
			Percentage: Percentage(row.Count, total),
		})
	}
	return pages, nil
}

func recentActivity(db *gorm.DB, dayStart time.Time) ([]ActivityItem, error) {
	var rows []struct {
		Path     string
		Device   string
		ViewedAt time.Time
	}
	err := db.Model(&sessions.PageView{}).
		Select("page_views.path, visitor_sessions.device, page_views.viewed_at").
		Joins("JOIN visitor_sessions ON visitor_sessions.id = page_views.session_id").
		Where("page_views.viewed_at >= ?", dayStart).
		Order("page_views.viewed_at DESC").
		Limit(recentActivityLimit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recent activity: %w", err)
	}

	items := make([]ActivityItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, ActivityItem{
			Path:       row.Path,
			Device:     row.Device,
			OccurredAt: row.ViewedAt,
		})
	}
	return items, nil
}
