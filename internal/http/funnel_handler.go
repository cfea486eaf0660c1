package http

import (
	"context"
	"net/http"

	"log/slog"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"leadlens/internal/analytics"
	"leadlens/internal/forms"
	"leadlens/internal/pkg/async"
	"leadlens/internal/pkg/useragent"
	"leadlens/internal/timeframe"
)

const defaultRangeDays = 30

// FunnelResponse is the payload of GET /admin/api/analytics/funnel.
type FunnelResponse struct {
	TotalSessions   int                         `json:"total_sessions"`
	Steps           []analytics.FunnelStepCount `json:"steps"`
	DropOffs        []analytics.DropOff         `json:"drop_offs"`
	StepTimes       []analytics.StepTime        `json:"step_times"`
	Devices         []analytics.Breakdown       `json:"devices"`
	Sources         []analytics.Breakdown       `json:"sources"`
	CompletionTrend []timeframe.DateStat        `json:"completion_trend"`
}

// FunnelIndexAction serves the questionnaire funnel report. The session load,
// both breakdowns and the trend run in parallel; a storage failure degrades to
// an empty report rather than a 5xx, so the dashboard always renders.
func FunnelIndexAction(ctx *cartridge.Context) error {
	tf, err := timeframe.ParseRange(ctx.Query("startDate"), ctx.Query("endDate"), defaultRangeDays)
	if err != nil {
		return ctx.Status(http.StatusBadRequest).JSON(map[string]string{"error": err.Error()})
	}

	db := ctx.DBManager.GetConnection()
	resp, err := fetchFunnelReport(db, tf, ctx.Logger)
	if err != nil {
		ctx.Logger.Error("Failed to build funnel report, serving empty payload", slog.Any("error", err))
		resp = emptyFunnelResponse(tf)
	}

	return ctx.JSON(resp)
}

// funnelCore bundles the results computed from one form-session load.
type funnelCore struct {
	report    analytics.FunnelReport
	stepTimes []analytics.StepTime
}

func fetchFunnelReport(db *gorm.DB, tf *timeframe.TimeFrame, logger *slog.Logger) (*FunnelResponse, error) {
	steps := forms.MustFunnel()

	tasks := []async.Task{
		{
			Name: "report",
			Execute: func() (interface{}, error) {
				sessions, err := analytics.GetFormSessionsInTimeFrame(db, tf)
				if err != nil {
					return nil, err
				}
				return funnelCore{
					report:    analytics.BuildFunnelReport(sessions, steps),
					stepTimes: analytics.AverageTimePerStep(sessions, steps, logger),
				}, nil
			},
		},
		{
			Name: "devices",
			Execute: func() (interface{}, error) {
				return analytics.FormSessionBreakdown(db, tf, "device_type", useragent.Unknown)
			},
		},
		{
			Name: "sources",
			Execute: func() (interface{}, error) {
				return analytics.FormSessionBreakdown(db, tf, "utm_source", "direct")
			},
		},
		{
			Name: "completionTrend",
			Execute: func() (interface{}, error) {
				return analytics.CompletionTrend(db, tf)
			},
		},
	}

	pool := async.NewPool(4)
	results := pool.Execute(context.Background(), tasks)

	for name, result := range results {
		if result.Err != nil {
			logger.Error("Funnel query failed", slog.String("query", name), slog.Any("error", result.Err))
			return nil, result.Err
		}
	}

	core := results["report"].Data.(funnelCore)
	return &FunnelResponse{
		TotalSessions:   core.report.TotalSessions,
		Steps:           core.report.Steps,
		DropOffs:        ensureDropOffs(core.report.DropOffs),
		StepTimes:       core.stepTimes,
		Devices:         ensureBreakdowns(results["devices"].Data.([]analytics.Breakdown)),
		Sources:         ensureBreakdowns(results["sources"].Data.([]analytics.Breakdown)),
		CompletionTrend: results["completionTrend"].Data.([]timeframe.DateStat),
	}, nil
}

func emptyFunnelResponse(tf *timeframe.TimeFrame) *FunnelResponse {
	steps := forms.MustFunnel()
	report := analytics.BuildFunnelReport(nil, steps)
	return &FunnelResponse{
		TotalSessions:   0,
		Steps:           report.Steps,
		DropOffs:        []analytics.DropOff{},
		StepTimes:       analytics.AverageTimePerStep(nil, steps, nil),
		Devices:         []analytics.Breakdown{},
		Sources:         []analytics.Breakdown{},
		CompletionTrend: tf.FillSeries(nil),
	}
}

func ensureBreakdowns(items []analytics.Breakdown) []analytics.Breakdown {
	if items == nil {
		return []analytics.Breakdown{}
	}
	return items
}

func ensureDropOffs(items []analytics.DropOff) []analytics.DropOff {
	if items == nil {
		return []analytics.DropOff{}
	}
	return items
}
