package rubric

import (
	"regexp"
	"strings"

	"evai/internal/config"
	"evai/internal/logging"
	"evai/internal/types"
)

// =============================================================================
// RUBRIC ENGINE
// =============================================================================

// Engine scores messages against a rubric set.
type Engine struct {
	rubrics []Rubric
	cfg     config.RubricsConfig
}

// NewEngine creates an engine with the default rubric set.
func NewEngine(cfg config.RubricsConfig) *Engine {
	return &Engine{rubrics: DefaultRubrics(), cfg: cfg}
}

// NewEngineWithRubrics creates an engine with a custom rubric set.
func NewEngineWithRubrics(cfg config.RubricsConfig, rubrics []Rubric) *Engine {
	return &Engine{rubrics: rubrics, cfg: cfg}
}

var tokenPattern = regexp.MustCompile(`[\p{L}\d']+`)

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

func wordMatches(word string, tokens map[string]bool) bool {
	if tokens[word] {
		return true
	}
	for _, syn := range synonymMap[word] {
		if tokens[syn] {
			return true
		}
	}
	return false
}

// factorMatches applies the configured strictness to a multi-word factor.
// strict requires every word, moderate at least half, flexible any.
func (e *Engine) factorMatches(factor string, tokens map[string]bool) bool {
	words := tokenize(factor)
	if len(words) == 0 {
		return false
	}

	matched := 0
	for _, w := range words {
		if wordMatches(w, tokens) {
			matched++
		}
	}

	switch e.cfg.Strictness {
	case "strict":
		return matched == len(words)
	case "moderate":
		return matched >= (len(words)+1)/2
	default: // flexible
		return matched > 0
	}
}

func (e *Engine) modeMultiplier() float64 {
	switch e.cfg.Mode {
	case "strict":
		return e.cfg.StrictMultiplier
	case "flexible":
		return e.cfg.FlexibleMultiplier
	default:
		return e.cfg.BalancedMultiplier
	}
}

// Score assesses a message against every rubric. Rubrics with no trigger
// match are skipped entirely. An empty message yields an empty result with
// dominant pattern "none".
func (e *Engine) Score(message string) types.RubricResult {
	timer := logging.StartTimer(logging.CategoryRubrics, "Score")
	defer timer.Stop()

	tokens := make(map[string]bool)
	for _, t := range tokenize(message) {
		tokens[t] = true
	}
	contentLower := strings.ToLower(message)

	multiplier := e.modeMultiplier()
	var scores []types.RubricScore

	for _, r := range e.rubrics {
		var triggered []string
		for _, trigger := range r.Triggers {
			if strings.Contains(contentLower, strings.ToLower(trigger)) {
				triggered = append(triggered, trigger)
			}
		}
		if len(triggered) == 0 {
			continue
		}

		var riskMatches, protectMatches []string
		for _, factor := range r.RiskWords {
			if e.factorMatches(factor, tokens) {
				riskMatches = append(riskMatches, factor)
			}
		}
		for _, factor := range r.ProtectSet {
			if e.factorMatches(factor, tokens) {
				protectMatches = append(protectMatches, factor)
			}
		}

		triggerRatio := float64(len(triggered)) / float64(len(r.Triggers))
		baseRisk := triggerRatio * 100

		riskScore := baseRisk * multiplier * r.BaseWeight
		if riskScore > 100 {
			riskScore = 100
		}

		protectiveScore := float64(len(protectMatches))*e.cfg.ProtectiveBonus -
			float64(len(riskMatches))*e.cfg.RiskPenalty
		if protectiveScore < 0 {
			protectiveScore = 0
		}

		var confidence types.Confidence
		switch {
		case triggerRatio >= 0.6:
			confidence = types.ConfidenceHigh
		case triggerRatio >= 0.3:
			confidence = types.ConfidenceMedium
		default:
			confidence = types.ConfidenceLow
		}

		scores = append(scores, types.RubricScore{
			RubricID:         r.ID,
			RiskScore:        riskScore,
			ProtectiveScore:  protectiveScore,
			MatchedTriggers:  triggered,
			MatchedRisk:      riskMatches,
			MatchedProtect:   protectMatches,
			Confidence:       confidence,
			InterventionHint: triggerRatio >= e.cfg.InterventionThreshold,
		})

		logging.RubricsDebug("rubric %s triggered: risk=%.1f protective=%.1f confidence=%s",
			r.ID, riskScore, protectiveScore, confidence)
	}

	result := types.RubricResult{
		Scores:            scores,
		OverallRisk:       overallRisk(scores),
		OverallProtective: overallProtective(scores),
		DominantPattern:   dominantPattern(scores),
	}

	logging.Rubrics("scored message: rubrics=%d overall_risk=%.1f dominant=%s",
		len(scores), result.OverallRisk, result.DominantPattern)

	return result
}

func confidenceWeight(c types.Confidence) float64 {
	switch c {
	case types.ConfidenceHigh:
		return 1.0
	case types.ConfidenceMedium:
		return 0.7
	default:
		return 0.4
	}
}

// overallRisk is the confidence-weighted mean of per-rubric risk.
func overallRisk(scores []types.RubricScore) float64 {
	if len(scores) == 0 {
		return 0
	}
	var weighted, totalWeight float64
	for _, s := range scores {
		w := confidenceWeight(s.Confidence)
		weighted += s.RiskScore * w
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0
	}
	return weighted / totalWeight
}

func overallProtective(scores []types.RubricScore) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s.ProtectiveScore
	}
	return sum / float64(len(scores))
}

func dominantPattern(scores []types.RubricScore) string {
	if len(scores) == 0 {
		return "none"
	}
	best := scores[0]
	for _, s := range scores[1:] {
		if s.RiskScore > best.RiskScore {
			best = s
		}
	}
	return best.RubricID
}
