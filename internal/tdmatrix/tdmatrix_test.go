package tdmatrix

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"evai/internal/config"
	"evai/internal/types"
)

func newMatrix() *Matrix {
	return New(config.DefaultConfig().TDMatrix)
}

func TestComputeBands(t *testing.T) {
	tests := []struct {
		name   string
		ai     float64
		agency float64
		band   types.TDBand
		block  bool
	}{
		{"balanced", 0.4, 0.6, types.TDBalanced, false},       // 0.4
		{"exactly balanced max", 0.6, 0.4, types.TDBalanced, false}, // 0.6
		{"dominant", 0.7, 0.3, types.TDDominant, false},       // 0.7, agency at threshold
		{"exactly dominant max", 0.8, 0.2, types.TDDominant, true}, // 0.8 with agency 0.2 < 0.3
		{"critical", 0.9, 0.1, types.TDCritical, true},        // 0.9
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := newMatrix().Compute(tt.ai, tt.agency)
			assert.Equal(t, tt.band, score.Band)
			assert.Equal(t, tt.block, score.ShouldBlock)
			assert.InDelta(t, tt.ai/(tt.ai+tt.agency), score.Value, 0.001)
		})
	}
}

func TestComputeZeroDenominator(t *testing.T) {
	score := newMatrix().Compute(0, 0)
	assert.Equal(t, 0.5, score.Value)
	assert.Equal(t, types.TDBalanced, score.Band)
	assert.False(t, score.ShouldBlock)
}

func TestLowAgencyBlock(t *testing.T) {
	// value 0.75 is dominant, not critical, but agency 0.25 < 0.3 blocks
	score := newMatrix().Compute(0.75, 0.25)
	assert.Equal(t, types.TDDominant, score.Band)
	assert.True(t, score.ShouldBlock)

	// Same value with healthy agency does not block
	score = newMatrix().Compute(3, 1) // 0.75
	assert.Equal(t, types.TDDominant, score.Band)
	assert.False(t, score.ShouldBlock)
}

func TestEstimateAIContribution(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"neutral short", "dat klinkt zwaar", 0.2}, // base 0.3, <30 words -0.1
		{"directive", "probeer vandaag een wandeling", 0.5},
		{"imperative planning", "je moet dit actieplan volgen", 0.9}, // 0.3+0.4+0.3-0.1
		{"reflective question", "hoe voel je je daarbij", 0.0},       // 0.3-0.2-0.1
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, EstimateAIContribution(tt.text), 0.001)
		})
	}
}

func TestEstimateAIContributionWordCount(t *testing.T) {
	base := "dit is een neutrale zin zonder sleutelwoorden over van alles"
	long := strings.Repeat(base+" ", 12) // > 100 words

	short := EstimateAIContribution(base)
	longScore := EstimateAIContribution(long)

	assert.InDelta(t, 0.2, short, 0.001)    // base - short penalty
	assert.InDelta(t, 0.4, longScore, 0.001) // base + long penalty
}

func TestEstimateClamping(t *testing.T) {
	// Stack every positive marker with length
	text := strings.Repeat("je moet dit actieplan proberen, ga nu, misschien zou kunnen werken ", 20)
	assert.Equal(t, 1.0, EstimateAIContribution(text))
}

func TestEvaluateDirectiveResponseForPassiveUser(t *testing.T) {
	directive := "Je moet nu dit actieplan volgen. Start vandaag, ga door en probeer alle volgende stappen."

	score := newMatrix().Evaluate(directive, 0.2)
	assert.True(t, score.ShouldBlock)

	reflective := "Hoe voel je je daar nu bij? Vertel gerust meer."
	score = newMatrix().Evaluate(reflective, 0.5)
	assert.False(t, score.ShouldBlock)
	assert.Equal(t, types.TDBalanced, score.Band)
}
