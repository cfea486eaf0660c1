package analytics

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"leadlens/internal/forms"
)

// NoAnswer is reported as mostSelected when a step has no usable answers.
const NoAnswer = "N/A"

// AnswerCount is one answer value's tally for a step.
type AnswerCount struct {
	Value      string  `json:"value"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// NumericBucket is one of the five equal-width buckets of a slider step.
type NumericBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// NumericSummary describes the distribution of a slider step's answers.
type NumericSummary struct {
	Min     float64         `json:"min"`
	Max     float64         `json:"max"`
	Average float64         `json:"average"`
	Median  float64         `json:"median"`
	Buckets []NumericBucket `json:"buckets"`
}

// StepAnalysis is the full per-step report.
type StepAnalysis struct {
	Step           float64         `json:"step"`
	Name           string          `json:"name"`
	Kind           forms.StepKind  `json:"kind"`
	TotalResponses int             `json:"total_responses"`
	AverageTime    int             `json:"average_time"` // seconds, rounded
	SkipRate       float64         `json:"skip_rate"`
	DropOffRate    float64         `json:"drop_off_rate"`
	MostSelected   string          `json:"most_selected"`
	Answers        []AnswerCount   `json:"answers,omitempty"`
	Numeric        *NumericSummary `json:"numeric,omitempty"`
}

// StepTime is the average recorded dwell time on one funnel step.
type StepTime struct {
	Step        float64 `json:"step"`
	Name        string  `json:"name"`
	AverageTime int     `json:"average_time"` // seconds, rounded
}

// groupStepEvents flattens session histories into per-step event lists.
// Sessions whose step history fails to parse are skipped; the rest of the
// batch proceeds.
func groupStepEvents(sessions []forms.FormSession, logger *slog.Logger) map[float64][]forms.StepEvent {
	grouped := make(map[float64][]forms.StepEvent)
	for i := range sessions {
		history, err := sessions[i].History()
		if err != nil {
			if logger != nil {
				logger.Warn("Skipping form session with malformed step history",
					slog.Uint64("form_session_id", uint64(sessions[i].ID)),
					slog.Any("error", err))
			}
			continue
		}
		for _, event := range history {
			grouped[event.Step] = append(grouped[event.Step], event)
		}
	}
	return grouped
}

// AverageTimePerStep reports the mean dwell time for every configured step,
// averaging over events that recorded a duration. Steps with no timed events
// report zero.
func AverageTimePerStep(sessions []forms.FormSession, steps []forms.FunnelStep, logger *slog.Logger) []StepTime {
	grouped := groupStepEvents(sessions, logger)

	result := make([]StepTime, 0, len(steps))
	for _, step := range steps {
		result = append(result, StepTime{
			Step:        step.Step,
			Name:        step.Name,
			AverageTime: averageDuration(grouped[step.Step]),
		})
	}
	return result
}

// AnalyzeSteps builds the per-step report for every configured funnel step.
// Each StepEvent appearance counts as an independent observation, including
// revisits after "went back".
func AnalyzeSteps(sessions []forms.FormSession, steps []forms.FunnelStep, logger *slog.Logger) []StepAnalysis {
	grouped := groupStepEvents(sessions, logger)

	result := make([]StepAnalysis, 0, len(steps))
	for i, step := range steps {
		events := grouped[step.Step]

		analysis := StepAnalysis{
			Step:           step.Step,
			Name:           step.Name,
			Kind:           step.Kind,
			TotalResponses: len(events),
			AverageTime:    averageDuration(events),
			SkipRate:       Percentage(countSkipped(events), len(events)),
			MostSelected:   NoAnswer,
		}

		reached := countReached(sessions, step.Step)
		if i+1 < len(steps) && reached > 0 {
			reachedNext := countReached(sessions, steps[i+1].Step)
			analysis.DropOffRate = Percentage(reached-reachedNext, reached)
		}

		switch step.Kind {
		case forms.StepKindSelect:
			analysis.Answers = tallyAnswers(events, false)
			if len(analysis.Answers) > 0 {
				analysis.MostSelected = analysis.Answers[0].Value
			}
		case forms.StepKindMultiSelect:
			// Each selected element counts independently against the event
			// count, so multi-select percentages may legitimately sum above
			// 100%.
			analysis.Answers = tallyAnswers(events, true)
			if len(analysis.Answers) > 0 {
				analysis.MostSelected = analysis.Answers[0].Value
			}
		case forms.StepKindSlider:
			if summary := summarizeNumeric(events); summary != nil {
				analysis.Numeric = summary
				analysis.MostSelected = fmt.Sprintf("%g (average)", summary.Average)
			}
		case forms.StepKindForm:
			// Contact-details steps are never bucketed by value.
		}

		result = append(result, analysis)
	}
	return result
}

// averageDuration averages over events that recorded a duration; events
// without one are excluded from both sides of the division.
func averageDuration(events []forms.StepEvent) int {
	sum, count := 0, 0
	for _, e := range events {
		if e.Duration != nil {
			sum += *e.Duration
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return int(math.Round(float64(sum) / float64(count)))
}

func countSkipped(events []forms.StepEvent) int {
	count := 0
	for _, e := range events {
		if e.WasSkipped {
			count++
		}
	}
	return count
}

// tallyAnswers tallies exact answer strings. For multi-select steps every
// list element is tallied independently, with percentages still computed
// against the event count.
func tallyAnswers(events []forms.StepEvent, multi bool) []AnswerCount {
	counts := make(map[string]int)
	for _, e := range events {
		if e.Answer == nil {
			continue
		}
		if multi {
			for _, value := range answerList(e.Answer) {
				counts[value]++
			}
			continue
		}
		if value, ok := e.Answer.(string); ok && value != "" {
			counts[value]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	answers := make([]AnswerCount, 0, len(counts))
	for value, count := range counts {
		answers = append(answers, AnswerCount{
			Value:      value,
			Count:      count,
			Percentage: Percentage(count, len(events)),
		})
	}
	sort.SliceStable(answers, func(i, j int) bool {
		if answers[i].Count != answers[j].Count {
			return answers[i].Count > answers[j].Count
		}
		return answers[i].Value < answers[j].Value
	})
	return answers
}

// answerList normalizes a decoded multi-select answer into its elements.
func answerList(answer interface{}) []string {
	var values []string
	switch list := answer.(type) {
	case []interface{}:
		for _, item := range list {
			if s, ok := item.(string); ok && s != "" {
				values = append(values, s)
			}
		}
	case []string:
		for _, s := range list {
			if s != "" {
				values = append(values, s)
			}
		}
	}
	return values
}

// summarizeNumeric computes min/max/average/median and partitions the
// observed range into five equal-width buckets. The maximum value lands in
// the last bucket (inclusive upper boundary), never in a sixth.
func summarizeNumeric(events []forms.StepEvent) *NumericSummary {
	var values []float64
	for _, e := range events {
		if v, ok := numericAnswer(e.Answer); ok {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return nil
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	min := sorted[0]
	max := sorted[len(sorted)-1]

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	average := math.Round(sum / float64(len(sorted)))
	// Lower-of-two median on even counts.
	median := sorted[(len(sorted)-1)/2]

	summary := &NumericSummary{
		Min:     min,
		Max:     max,
		Average: average,
		Median:  median,
	}

	bucketSize := (max - min) / 5
	if bucketSize == 0 {
		// All answers identical: a single degenerate bucket.
		summary.Buckets = []NumericBucket{{
			Label: fmt.Sprintf("%g-%g", math.Round(min), math.Round(max)),
			Count: len(sorted),
		}}
		return summary
	}

	counts := make([]int, 5)
	for _, v := range sorted {
		idx := int(math.Floor((v - min) / bucketSize))
		if idx > 4 {
			idx = 4
		}
		counts[idx]++
	}

	summary.Buckets = make([]NumericBucket, 5)
	for i := 0; i < 5; i++ {
		start := math.Round(min + float64(i)*bucketSize)
		end := math.Round(min + float64(i+1)*bucketSize)
		summary.Buckets[i] = NumericBucket{
			Label: fmt.Sprintf("%g-%g", start, end),
			Count: counts[i],
		}
	}
	return summary
}

func numericAnswer(answer interface{}) (float64, bool) {
	switch v := answer.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
