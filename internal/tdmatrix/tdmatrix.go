// Package tdmatrix measures transactional dominance: how much of the
// conversational work the AI is doing relative to the user's own agency.
// A response that plans, instructs and decides for a passive user scores
// high and gets blocked before delivery.
package tdmatrix

import (
	"regexp"
	"strings"

	"evai/internal/config"
	"evai/internal/logging"
	"evai/internal/types"
)

// Matrix computes dominance scores for candidate responses.
type Matrix struct {
	cfg config.TDMatrixConfig
}

// New creates a matrix with the given thresholds.
func New(cfg config.TDMatrixConfig) *Matrix {
	return &Matrix{cfg: cfg}
}

// =============================================================================
// AI CONTRIBUTION ESTIMATION
// =============================================================================

var (
	reDirective   = regexp.MustCompile(`(?i)\b(probeer|doe|ga|start|begin)\b`)
	reHedged      = regexp.MustCompile(`(?i)(zou kunnen|misschien|overweeg)`)
	reImperative  = regexp.MustCompile(`(?i)(moet|moeten|zou moeten)`)
	rePlanning    = regexp.MustCompile(`(?i)(volgende stappen|actieplan|strategie)`)
	reReflective  = regexp.MustCompile(`(?i)(wat denk jij|hoe voel je|herken je)`)
	reExplanatory = regexp.MustCompile(`(?i)\b(vertel|leg uit|beschrijf)\b`)
)

// EstimateAIContribution scores how directive a candidate response is,
// in [0,1]. Reflective questions lower the score, imperatives and action
// plans raise it.
func EstimateAIContribution(responseText string) float64 {
	contribution := 0.3

	if reDirective.MatchString(responseText) {
		contribution += 0.3
	}
	if reHedged.MatchString(responseText) {
		contribution += 0.2
	}
	if reImperative.MatchString(responseText) {
		contribution += 0.4
	}
	if rePlanning.MatchString(responseText) {
		contribution += 0.3
	}
	if reReflective.MatchString(responseText) {
		contribution -= 0.2
	}
	if reExplanatory.MatchString(responseText) {
		contribution -= 0.1
	}

	wordCount := len(strings.Fields(responseText))
	if wordCount > 100 {
		contribution += 0.1
	} else if wordCount < 30 {
		contribution -= 0.1
	}

	if contribution < 0 {
		return 0
	}
	if contribution > 1 {
		return 1
	}
	return contribution
}

// =============================================================================
// DOMINANCE SCORING
// =============================================================================

// Compute derives the dominance score from AI contribution and user agency.
// A zero denominator means neither side is contributing; 0.5 keeps that
// neutral instead of dividing by zero.
func (m *Matrix) Compute(aiContribution, userAgency float64) types.TDScore {
	var value float64
	if aiContribution+userAgency == 0 {
		value = 0.5
	} else {
		value = aiContribution / (aiContribution + userAgency)
	}

	var band types.TDBand
	switch {
	case value <= m.cfg.BalancedMax:
		band = types.TDBalanced
	case value <= m.cfg.DominantMax:
		band = types.TDDominant
	default:
		band = types.TDCritical
	}

	score := types.TDScore{
		Value:          value,
		AIContribution: aiContribution,
		UserAgency:     userAgency,
		Band:           band,
	}
	score.ShouldBlock = m.shouldBlock(score)

	switch band {
	case types.TDCritical:
		logging.EthicsWarn("TD critical: value=%.2f ai=%.2f agency=%.2f", value, aiContribution, userAgency)
	case types.TDDominant:
		logging.EthicsWarn("TD dominant: value=%.2f ai=%.2f agency=%.2f", value, aiContribution, userAgency)
	default:
		logging.EthicsDebug("TD balanced: value=%.2f", value)
	}

	return score
}

// Evaluate scores a candidate response text against the user's agency.
func (m *Matrix) Evaluate(responseText string, userAgency float64) types.TDScore {
	return m.Compute(EstimateAIContribution(responseText), userAgency)
}

// shouldBlock returns true for the critical band, and for high dominance
// over a user with very low agency.
func (m *Matrix) shouldBlock(score types.TDScore) bool {
	if score.Band == types.TDCritical {
		return true
	}
	return score.Value > m.cfg.LowAgencyBlock && score.UserAgency < m.cfg.LowAgencyMin
}
