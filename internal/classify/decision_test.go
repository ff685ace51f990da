package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"NewsRadar/internal/domain"
)

func TestDecideBoundaries(t *testing.T) {
	t.Parallel()

	th := Thresholds{High: 0.7, Edge: 0.4}
	tests := []struct {
		name       string
		confidence float64
		want       Decision
	}{
		{name: "certain", confidence: 1.0, want: Decision{Priority: domain.PriorityMedium, Score: 70}},
		{name: "exactly high", confidence: 0.7, want: Decision{Priority: domain.PriorityMedium, Score: 70}},
		{name: "between", confidence: 0.55, want: Decision{Priority: domain.PriorityLow, Score: 55}},
		{name: "exactly edge", confidence: 0.4, want: Decision{Priority: domain.PriorityLow, Score: 55}},
		{name: "just below edge", confidence: 0.39, want: Decision{Priority: domain.PriorityNone, Score: 20, SkipLLM: true}},
		{name: "zero", confidence: 0, want: Decision{Priority: domain.PriorityNone, Score: 20, SkipLLM: true}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Decide(tc.confidence, th))
		})
	}
}

func TestThresholdsValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultThresholds().Validate())
	assert.Error(t, Thresholds{High: 0.4, Edge: 0.4}.Validate())
	assert.Error(t, Thresholds{High: 0.3, Edge: 0.5}.Validate())
	assert.Error(t, Thresholds{High: 1.2, Edge: 0.5}.Validate())
}
