// Package eaa derives the user's Ownership, Autonomy and Agency profile
// from message text. The heuristics are lexical Dutch patterns; rubric
// context then dampens or boosts the raw values. Everything clamps to [0,1].
package eaa

import (
	"regexp"

	"evai/internal/logging"
	"evai/internal/types"
)

// =============================================================================
// LEXICAL PATTERNS
// =============================================================================

var (
	// Ownership: first-person framing, felt experience, absolutist framing
	rePersonal   = regexp.MustCompile(`(?i)\b(ik|mijn|me|mezelf)\b`)
	reFelt       = regexp.MustCompile(`(?i)\b(voel|denk|merk)\b`)
	reAbsolutist = regexp.MustCompile(`(?i)\b(altijd|nooit|steeds)\b`)

	// Autonomy: capability and choice vs obligation
	reCapability = regexp.MustCompile(`(?i)\b(kan|wil|zou|mag)\b`)
	reTentative  = regexp.MustCompile(`(?i)\b(misschien|wellicht|mogelijk)\b`)
	reObligation = regexp.MustCompile(`(?i)\b(moet|moeten|verplicht)\b`)

	// Agency: action orientation vs helplessness
	reAction      = regexp.MustCompile(`(?i)\b(doe|ga|probeer|start|begin)\b`)
	reSupport     = regexp.MustCompile(`(?i)\b(help|hulp|steun|ondersteuning)\b`)
	reNegation    = regexp.MustCompile(`(?i)\b(niet|geen|nooit)\b`)
	reHelplessness = regexp.MustCompile(`(?i)(lukt niet|kan niet|onmogelijk)`)
)

// RubricContext is the slice of rubric output the evaluator consumes.
// Risk and Protective are normalized to [0,1].
type RubricContext struct {
	Risk            float64
	Protective      float64
	DominantPattern string
}

// Evaluator computes EAA profiles.
type Evaluator struct{}

// NewEvaluator creates an evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Evaluate derives an EAA profile from the message, adjusted by rubric
// context.
func (e *Evaluator) Evaluate(message string, ctx RubricContext) types.EAAProfile {
	ownership := 0.3
	if rePersonal.MatchString(message) {
		ownership += 0.3
	}
	if reFelt.MatchString(message) {
		ownership += 0.2
	}
	if reAbsolutist.MatchString(message) {
		ownership += 0.1
	}

	autonomy := 0.4
	if reCapability.MatchString(message) {
		autonomy += 0.3
	}
	if reTentative.MatchString(message) {
		autonomy += 0.2
	}
	if reObligation.MatchString(message) {
		autonomy -= 0.2
	}

	agency := 0.4
	if reAction.MatchString(message) {
		agency += 0.4
	}
	if reSupport.MatchString(message) {
		agency += 0.1
	}
	if reNegation.MatchString(message) {
		agency -= 0.2
	}
	if reHelplessness.MatchString(message) {
		agency -= 0.3
	}

	// High rubric risk dampens agency and autonomy: a user in distress is
	// not acting from strength even when the words sound active. Floors
	// keep the profile usable downstream.
	if ctx.Risk > 0.7 {
		agency -= 0.2
		if agency < 0.2 {
			agency = 0.2
		}
		autonomy -= 0.1
		if autonomy < 0.3 {
			autonomy = 0.3
		}
	}

	if ctx.Protective > 0.6 {
		agency += 0.2
		if agency > 1 {
			agency = 1
		}
		autonomy += 0.1
		if autonomy > 1 {
			autonomy = 1
		}
	}

	if ctx.DominantPattern == "mood-regulation" || ctx.DominantPattern == "anxiety-support" {
		ownership += 0.15
	}

	profile := types.EAAProfile{
		Ownership: clamp01(ownership),
		Autonomy:  clamp01(autonomy),
		Agency:    clamp01(agency),
	}

	logging.EAADebug("profile: ownership=%.2f autonomy=%.2f agency=%.2f (risk=%.2f protective=%.2f pattern=%s)",
		profile.Ownership, profile.Autonomy, profile.Agency, ctx.Risk, ctx.Protective, ctx.DominantPattern)

	return profile
}
