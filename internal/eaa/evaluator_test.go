package eaa

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"evai/internal/types"
)

func TestEvaluateBaselines(t *testing.T) {
	// No lexical matches at all
	profile := NewEvaluator().Evaluate("xyz", RubricContext{})

	assert.Equal(t, 0.3, profile.Ownership)
	assert.Equal(t, 0.4, profile.Autonomy)
	assert.Equal(t, 0.4, profile.Agency)
}

func TestEvaluateOwnershipSignals(t *testing.T) {
	// Personal + felt + absolutist: 0.3 + 0.3 + 0.2 + 0.1 = 0.9
	profile := NewEvaluator().Evaluate("ik voel dit altijd", RubricContext{})
	assert.InDelta(t, 0.9, profile.Ownership, 0.001)
}

func TestEvaluateAutonomySignals(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    float64
	}{
		{"capability", "dat kan lukken", 0.7},
		{"capability plus tentative", "misschien kan het", 0.9},
		{"obligation drags down", "het moet nu", 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := NewEvaluator().Evaluate(tt.message, RubricContext{})
			assert.InDelta(t, tt.want, profile.Autonomy, 0.001)
		})
	}
}

func TestEvaluateAgencySignals(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    float64
	}{
		{"action verbs", "vandaag ga starten met sporten", 0.8},
		{"helplessness", "het lukt niet meer", 0.0}, // 0.4 - 0.2(niet) - 0.3, clamped
		{"support seeking", "graag wat hulp hierbij", 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := NewEvaluator().Evaluate(tt.message, RubricContext{})
			assert.InDelta(t, tt.want, profile.Agency, 0.001)
		})
	}
}

func TestEvaluateClamping(t *testing.T) {
	// Everything positive stacked should never exceed 1.0
	profile := NewEvaluator().Evaluate(
		"ik voel dat ik altijd kan en misschien ga ik starten met hulp zoeken",
		RubricContext{Protective: 0.9})

	assert.LessOrEqual(t, profile.Ownership, 1.0)
	assert.LessOrEqual(t, profile.Autonomy, 1.0)
	assert.LessOrEqual(t, profile.Agency, 1.0)
	assert.GreaterOrEqual(t, profile.Ownership, 0.0)

	// Everything negative stacked never drops below 0
	low := NewEvaluator().Evaluate("moet verplicht maar lukt niet, kan niet, onmogelijk",
		RubricContext{})
	assert.GreaterOrEqual(t, low.Agency, 0.0)
	assert.GreaterOrEqual(t, low.Autonomy, 0.0)
}

func TestEvaluateHighRiskDampensWithFloors(t *testing.T) {
	// Action message under high risk: agency stays at least at its floor
	profile := NewEvaluator().Evaluate("vandaag ga starten", RubricContext{Risk: 0.8})
	assert.InDelta(t, 0.6, profile.Agency, 0.001) // 0.8 - 0.2
	assert.InDelta(t, 0.3, profile.Autonomy, 0.001) // 0.4 - 0.1

	// Already-low agency hits the 0.2 floor
	floor := NewEvaluator().Evaluate("lukt niet", RubricContext{Risk: 0.8})
	assert.InDelta(t, 0.2, floor.Agency, 0.001)
}

func TestEvaluateDominantPatternBoostsOwnership(t *testing.T) {
	base := NewEvaluator().Evaluate("xyz", RubricContext{})
	boosted := NewEvaluator().Evaluate("xyz", RubricContext{DominantPattern: "anxiety-support"})

	assert.InDelta(t, base.Ownership+0.15, boosted.Ownership, 0.001)
}

func TestValidateForStrategy(t *testing.T) {
	tests := []struct {
		name    string
		profile types.EAAProfile
		label   string
		valid   bool
	}{
		{"reflection always valid", types.EAAProfile{}, types.LabelReflectievraag, true},
		{"suggestion needs agency", types.EAAProfile{Agency: 0.4}, types.LabelSuggestie, false},
		{"suggestion with agency", types.EAAProfile{Agency: 0.5}, types.LabelSuggestie, true},
		{"intervention needs both", types.EAAProfile{Ownership: 0.5, Agency: 0.5}, types.LabelInterventie, false},
		{"intervention valid", types.EAAProfile{Ownership: 0.4, Agency: 0.6}, types.LabelInterventie, true},
		{"default label low profile", types.EAAProfile{Ownership: 0.2, Agency: 0.5}, types.LabelValideren, false},
		{"default label ok", types.EAAProfile{Ownership: 0.3, Agency: 0.3}, types.LabelValideren, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := ValidateForStrategy(tt.profile, tt.label)
			assert.Equal(t, tt.valid, check.Valid)
			if !tt.valid {
				assert.Equal(t, types.LabelReflectievraag, check.Fallback)
				assert.NotEmpty(t, check.Reason)
			}
		})
	}
}
