package forms

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

// StepKind tags a funnel step with the shape of its answers. The step
// analyzer dispatches on this tag instead of sniffing answer values.
type StepKind string

const (
	StepKindSelect      StepKind = "select"
	StepKindMultiSelect StepKind = "multi_select"
	StepKindSlider      StepKind = "slider"
	StepKindForm        StepKind = "form"
)

// SliderRange is the numeric range of a slider step.
type SliderRange struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// FunnelStep is the static configuration of one funnel stage. Only the fields
// matching the kind are set: Options for the select kinds, Range for sliders.
type FunnelStep struct {
	Step    float64      `yaml:"step" json:"step"` // may be fractional, e.g. 5.5 for a sub-step
	Name    string       `yaml:"name" json:"name"`
	Kind    StepKind     `yaml:"kind" json:"kind"`
	Options []string     `yaml:"options,omitempty" json:"options,omitempty"`
	Range   *SliderRange `yaml:"range,omitempty" json:"range,omitempty"`
}

//go:embed funnel.yml
var funnelYAML []byte

type funnelConfig struct {
	Steps []FunnelStep `yaml:"steps"`
}

var (
	funnelOnce  sync.Once
	funnelSteps []FunnelStep
	funnelErr   error
)

// Funnel returns the configured funnel steps in order. The configuration is
// embedded and parsed once; an invalid configuration is a programming error
// surfaced on first use.
func Funnel() ([]FunnelStep, error) {
	funnelOnce.Do(func() {
		var cfg funnelConfig
		if err := yaml.Unmarshal(funnelYAML, &cfg); err != nil {
			funnelErr = fmt.Errorf("failed to parse funnel configuration: %w", err)
			return
		}
		if err := validateFunnel(cfg.Steps); err != nil {
			funnelErr = err
			return
		}
		funnelSteps = cfg.Steps
	})
	return funnelSteps, funnelErr
}

// MustFunnel is Funnel for callers that cannot propagate the error (route
// mounting, seeding). Panics on a broken embedded configuration.
func MustFunnel() []FunnelStep {
	steps, err := Funnel()
	if err != nil {
		panic(err)
	}
	return steps
}

// StepByNumber finds a configured step by its number.
func StepByNumber(steps []FunnelStep, number float64) (FunnelStep, bool) {
	for _, s := range steps {
		if s.Step == number {
			return s, true
		}
	}
	return FunnelStep{}, false
}

func validateFunnel(steps []FunnelStep) error {
	if len(steps) == 0 {
		return fmt.Errorf("funnel configuration has no steps")
	}

	seen := make(map[float64]bool, len(steps))
	previous := 0.0
	for _, s := range steps {
		if seen[s.Step] {
			return fmt.Errorf("duplicate funnel step %v", s.Step)
		}
		seen[s.Step] = true

		if s.Step <= previous {
			return fmt.Errorf("funnel steps must be in ascending order, got %v after %v", s.Step, previous)
		}
		previous = s.Step

		switch s.Kind {
		case StepKindSelect, StepKindMultiSelect:
			if len(s.Options) == 0 {
				return fmt.Errorf("step %v (%s) requires options", s.Step, s.Kind)
			}
		case StepKindSlider:
			if s.Range == nil {
				return fmt.Errorf("step %v requires a numeric range", s.Step)
			}
			if s.Range.Min >= s.Range.Max {
				return fmt.Errorf("step %v has an empty range", s.Step)
			}
		case StepKindForm:
			// no extra configuration
		default:
			return fmt.Errorf("step %v has unknown kind %q", s.Step, s.Kind)
		}
	}
	return nil
}
