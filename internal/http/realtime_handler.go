package http

import (
	"log/slog"

	"github.com/karloscodes/cartridge"
	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"leadlens/internal/analytics"
	"leadlens/internal/pkg/geoip"
)

// RealtimeIndexAction serves the live snapshot: active visitors, the trailing
// hour bucketed into 5-minute windows, and today's breakdowns. Storage errors
// degrade to a zeroed snapshot so the dashboard keeps polling.
func RealtimeIndexAction(ctx *cartridge.Context) error {
	snapshot, err := analytics.GetRealTimeSnapshot(ctx.DBManager, ctx.Logger)
	if err != nil {
		ctx.Logger.Error("Failed to build real-time snapshot, serving empty payload", slog.Any("error", err))
		snapshot = emptySnapshot()
	}

	snapshot.Countries = humanizeCountries(snapshot.Countries)
	return ctx.JSON(snapshot)
}

func emptySnapshot() *analytics.RealTimeSnapshot {
	return &analytics.RealTimeSnapshot{
		Buckets:        []analytics.WindowBucket{},
		Devices:        []analytics.Breakdown{},
		Sources:        []analytics.Breakdown{},
		Countries:      []analytics.Breakdown{},
		TopPages:       []analytics.RankedPage{},
		RecentActivity: []analytics.ActivityItem{},
	}
}

// humanizeCountries replaces ISO alpha codes with common country names.
func humanizeCountries(items []analytics.Breakdown) []analytics.Breakdown {
	if len(items) == 0 {
		return []analytics.Breakdown{}
	}

	caser := cases.Upper(language.AmericanEnglish)
	countries := gountries.New()

	result := make([]analytics.Breakdown, len(items))
	for i, item := range items {
		if item.Name == geoip.UnknownCountry {
			item.Name = "Unknown"
			result[i] = item
			continue
		}
		country, err := countries.FindCountryByAlpha(item.Name)
		if err != nil {
			item.Name = caser.String(item.Name)
			result[i] = item
			continue
		}
		item.Name = country.Name.Common
		result[i] = item
	}
	return result
}
