package forms_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadlens/internal/forms"
)

func TestFunnelConfigurationLoads(t *testing.T) {
	steps, err := forms.Funnel()
	require.NoError(t, err)
	require.NotEmpty(t, steps)

	previous := 0.0
	for _, s := range steps {
		assert.Greater(t, s.Step, previous)
		previous = s.Step

		switch s.Kind {
		case forms.StepKindSelect, forms.StepKindMultiSelect:
			assert.NotEmpty(t, s.Options, "step %v", s.Step)
		case forms.StepKindSlider:
			require.NotNil(t, s.Range, "step %v", s.Step)
			assert.Less(t, s.Range.Min, s.Range.Max)
		case forms.StepKindForm:
		default:
			t.Fatalf("step %v has unknown kind %q", s.Step, s.Kind)
		}
	}
}

func TestStepByNumber(t *testing.T) {
	steps := forms.MustFunnel()

	first, ok := forms.StepByNumber(steps, steps[0].Step)
	require.True(t, ok)
	assert.Equal(t, steps[0].Name, first.Name)

	_, ok = forms.StepByNumber(steps, 999)
	assert.False(t, ok)
}
