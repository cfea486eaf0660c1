package http

import (
	"log/slog"
	"net/http"

	"github.com/karloscodes/cartridge"

	"leadlens/internal/analytics"
	"leadlens/internal/forms"
	"leadlens/internal/timeframe"
)

// StepsResponse is the payload of GET /admin/api/analytics/steps.
type StepsResponse struct {
	TotalSessions int                      `json:"total_sessions"`
	Steps         []analytics.StepAnalysis `json:"steps"`
}

// StepsIndexAction serves the per-question analysis: answer distributions,
// dwell times, skip and drop-off rates for every configured funnel step.
func StepsIndexAction(ctx *cartridge.Context) error {
	tf, err := timeframe.ParseRange(ctx.Query("startDate"), ctx.Query("endDate"), defaultRangeDays)
	if err != nil {
		return ctx.Status(http.StatusBadRequest).JSON(map[string]string{"error": err.Error()})
	}

	steps := forms.MustFunnel()

	db := ctx.DBManager.GetConnection()
	sessions, err := analytics.GetFormSessionsInTimeFrame(db, tf)
	if err != nil {
		ctx.Logger.Error("Failed to load form sessions, serving empty payload", slog.Any("error", err))
		return ctx.JSON(&StepsResponse{
			TotalSessions: 0,
			Steps:         analytics.AnalyzeSteps(nil, steps, ctx.Logger),
		})
	}

	return ctx.JSON(&StepsResponse{
		TotalSessions: len(sessions),
		Steps:         analytics.AnalyzeSteps(sessions, steps, ctx.Logger),
	})
}
