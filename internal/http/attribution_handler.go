package http

import (
	"log/slog"
	"net/http"

	"github.com/karloscodes/cartridge"

	"leadlens/internal/analytics"
	"leadlens/internal/leads"
	"leadlens/internal/timeframe"
)

// AttributionIndexAction serves the multi-touch attribution report. The model
// query parameter selects the credit distribution; it defaults to linear.
func AttributionIndexAction(ctx *cartridge.Context) error {
	model, err := analytics.ParseModel(ctx.Query("model"))
	if err != nil {
		return ctx.Status(http.StatusBadRequest).JSON(map[string]string{"error": err.Error()})
	}

	tf, err := timeframe.ParseRange(ctx.Query("startDate"), ctx.Query("endDate"), defaultRangeDays)
	if err != nil {
		return ctx.Status(http.StatusBadRequest).JSON(map[string]string{"error": err.Error()})
	}

	db := ctx.DBManager.GetConnection()
	leadSet, err := leads.GetLeadsWithJourneys(db, tf.From, tf.To)
	if err != nil {
		ctx.Logger.Error("Failed to load lead journeys, serving empty payload", slog.Any("error", err))
		leadSet = nil
	}

	report := analytics.Summarize(leadSet, model)
	if report.Channels == nil {
		report.Channels = []analytics.ChannelCredit{}
	}
	return ctx.JSON(report)
}
