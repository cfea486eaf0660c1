package http

import (
	"log/slog"

	"github.com/karloscodes/cartridge"

	"leadlens/internal/analytics"
	"leadlens/internal/leads"
	"leadlens/internal/timeframe"
)

// OverviewIndexAction serves the landing dashboard: lead totals, status
// histogram, conversion rate, sources and the weekly trend.
func OverviewIndexAction(ctx *cartridge.Context) error {
	db := ctx.DBManager.GetConnection()

	overview, err := analytics.GetOverview(db, ctx.Logger)
	if err != nil {
		ctx.Logger.Error("Failed to build overview, serving empty payload", slog.Any("error", err))
		overview = emptyOverview()
	}

	return ctx.JSON(overview)
}

func emptyOverview() *analytics.Overview {
	return &analytics.Overview{
		StatusCounts: []analytics.MetricCountResult{},
		LeadSources:  []analytics.Breakdown{},
		RecentLeads:  []leads.Lead{},
		DailyTrend:   []timeframe.DateStat{},
	}
}
