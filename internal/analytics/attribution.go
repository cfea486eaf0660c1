package analytics

import (
	"fmt"
	"math"
	"sort"

	"leadlens/internal/leads"
)

// Model selects how conversion credit is distributed across a journey.
type Model string

const (
	ModelFirstTouch    Model = "first_touch"
	ModelLastTouch     Model = "last_touch"
	ModelLinear        Model = "linear"
	ModelTimeDecay     Model = "time_decay"
	ModelPositionBased Model = "position_based"
)

// timeDecayRate is the per-step decay applied walking backwards from the most
// recent touchpoint: the last touch gets weight 1, the one before it 0.7, the
// one before that 0.49, and so on, then weights are normalized to sum to 100.
const timeDecayRate = 0.7

// positionEdgeShare is the percentage granted to each of the first and last
// touchpoints under the position-based model; the remainder is split evenly
// among the middle ones.
const positionEdgeShare = 40.0

// ParseModel validates an attribution model selector.
func ParseModel(s string) (Model, error) {
	switch Model(s) {
	case ModelFirstTouch, ModelLastTouch, ModelLinear, ModelTimeDecay, ModelPositionBased:
		return Model(s), nil
	case "":
		return ModelLinear, nil
	}
	return "", fmt.Errorf("unknown attribution model: %s", s)
}

// CreditsFor returns the per-touchpoint credit percentages for a journey of n
// touchpoints. The result always sums to 100 (within float tolerance); n <= 0
// returns nil since attribution over an empty journey is undefined.
func CreditsFor(n int, model Model) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		// A single touch gets full credit under every model.
		return []float64{100}
	}

	credits := make([]float64, n)
	switch model {
	case ModelFirstTouch:
		credits[0] = 100
	case ModelLastTouch:
		credits[n-1] = 100
	case ModelLinear:
		share := 100 / float64(n)
		for i := range credits {
			credits[i] = share
		}
	case ModelTimeDecay:
		total := 0.0
		for i := range credits {
			weight := math.Pow(timeDecayRate, float64(n-1-i))
			credits[i] = weight
			total += weight
		}
		for i := range credits {
			credits[i] = credits[i] / total * 100
		}
	case ModelPositionBased:
		if n == 2 {
			credits[0] = 50
			credits[1] = 50
			break
		}
		middleShare := (100 - 2*positionEdgeShare) / float64(n-2)
		credits[0] = positionEdgeShare
		credits[n-1] = positionEdgeShare
		for i := 1; i < n-1; i++ {
			credits[i] = middleShare
		}
	default:
		// Unknown models fall back to linear rather than dropping credit.
		share := 100 / float64(n)
		for i := range credits {
			credits[i] = share
		}
	}
	return credits
}

// ChannelCredit is one marketing channel's rolled-up attribution.
type ChannelCredit struct {
	Channel         string  `json:"channel"`
	CreditPercent   float64 `json:"credit_percent"`
	Conversions     int     `json:"conversions"`
	AttributedValue float64 `json:"attributed_value"`
}

// JourneyBucket is one bar of the journey-length histogram.
type JourneyBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// AttributionReport rolls channel credit across every lead journey under one
// model.
type AttributionReport struct {
	Model          Model           `json:"model"`
	TotalJourneys  int             `json:"total_journeys"`
	Channels       []ChannelCredit `json:"channels"`
	JourneyLengths []JourneyBucket `json:"journey_lengths"`
}

// Summarize assigns credit across every lead's journey and rolls it up per
// channel. Leads without touchpoints are excluded entirely: attribution over
// an empty journey is undefined.
func Summarize(leadSet []leads.Lead, model Model) AttributionReport {
	report := AttributionReport{Model: model}

	type channelAgg struct {
		credit   float64
		journeys int
		value    float64
	}
	channels := make(map[string]*channelAgg)
	lengths := map[string]int{"1": 0, "2-3": 0, "4-6": 0, "7+": 0}

	for _, lead := range leadSet {
		n := len(lead.Touchpoints)
		if n == 0 {
			continue
		}
		report.TotalJourneys++
		lengths[journeyLengthLabel(n)]++

		credits := CreditsFor(n, model)
		seen := make(map[string]bool, n)
		for i, tp := range lead.Touchpoints {
			agg := channels[tp.Source]
			if agg == nil {
				agg = &channelAgg{}
				channels[tp.Source] = agg
			}
			agg.credit += credits[i]
			agg.value += credits[i] / 100 * lead.DealValue
			if !seen[tp.Source] {
				agg.journeys++
				seen[tp.Source] = true
			}
		}
	}

	totalCredit := float64(report.TotalJourneys) * 100
	for name, agg := range channels {
		creditPercent := 0.0
		if totalCredit > 0 {
			creditPercent = round1(agg.credit / totalCredit * 100)
		}
		report.Channels = append(report.Channels, ChannelCredit{
			Channel:         name,
			CreditPercent:   creditPercent,
			Conversions:     agg.journeys,
			AttributedValue: math.Round(agg.value*100) / 100,
		})
	}
	sort.SliceStable(report.Channels, func(i, j int) bool {
		if report.Channels[i].CreditPercent != report.Channels[j].CreditPercent {
			return report.Channels[i].CreditPercent > report.Channels[j].CreditPercent
		}
		return report.Channels[i].Channel < report.Channels[j].Channel
	})

	for _, label := range []string{"1", "2-3", "4-6", "7+"} {
		report.JourneyLengths = append(report.JourneyLengths, JourneyBucket{
			Label: label,
			Count: lengths[label],
		})
	}
	return report
}

func journeyLengthLabel(n int) string {
	switch {
	case n == 1:
		return "1"
	case n <= 3:
		return "2-3"
	case n <= 6:
		return "4-6"
	default:
		return "7+"
	}
}
