package analytics

import (
	"sort"

	"leadlens/internal/forms"
)

// FunnelStepCount is the reach of one funnel step across a session set.
type FunnelStepCount struct {
	Step       float64 `json:"step"`
	Name       string  `json:"name"`
	Reached    int     `json:"reached"`
	Percentage float64 `json:"percentage"`
}

// DropOff is the loss between two consecutive funnel steps.
type DropOff struct {
	FromStep   float64 `json:"from_step"`
	ToStep     float64 `json:"to_step"`
	FromName   string  `json:"from_name"`
	ToName     string  `json:"to_name"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// FunnelReport is the full funnel breakdown for a set of form sessions.
// DropOffs are sorted descending by percentage so the biggest problems come
// first.
type FunnelReport struct {
	TotalSessions int               `json:"total_sessions"`
	Steps         []FunnelStepCount `json:"steps"`
	DropOffs      []DropOff         `json:"drop_offs"`
}

// BuildFunnelReport computes per-step reach and inter-step drop-off for the
// configured funnel. MaxStepReached is monotonic per session, so reach counts
// never increase from one step to the next.
func BuildFunnelReport(sessions []forms.FormSession, steps []forms.FunnelStep) FunnelReport {
	report := FunnelReport{
		TotalSessions: len(sessions),
		Steps:         make([]FunnelStepCount, 0, len(steps)),
	}

	for _, step := range steps {
		reached := countReached(sessions, step.Step)
		report.Steps = append(report.Steps, FunnelStepCount{
			Step:       step.Step,
			Name:       step.Name,
			Reached:    reached,
			Percentage: Percentage(reached, report.TotalSessions),
		})
	}

	for i := 0; i < len(report.Steps)-1; i++ {
		from := report.Steps[i]
		to := report.Steps[i+1]

		dropCount := from.Reached - to.Reached
		// A step nobody reached cannot be a drop-off denominator.
		if dropCount <= 0 || from.Reached == 0 {
			continue
		}
		report.DropOffs = append(report.DropOffs, DropOff{
			FromStep:   from.Step,
			ToStep:     to.Step,
			FromName:   from.Name,
			ToName:     to.Name,
			Count:      dropCount,
			Percentage: Percentage(dropCount, from.Reached),
		})
	}

	sort.SliceStable(report.DropOffs, func(i, j int) bool {
		return report.DropOffs[i].Percentage > report.DropOffs[j].Percentage
	})

	return report
}

func countReached(sessions []forms.FormSession, step float64) int {
	count := 0
	for _, s := range sessions {
		if s.MaxStepReached >= step {
			count++
		}
	}
	return count
}
