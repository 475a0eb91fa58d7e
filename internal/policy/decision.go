// Package policy routes turns through the decision table and validates
// plans and responses. The table is ordered data: (predicate, action)
// pairs checked by priority with first-match-wins, so the same input
// always produces the same rule.
package policy

import (
	"fmt"
	"regexp"

	"evai/internal/config"
	"evai/internal/logging"
	"evai/internal/types"
)

// =============================================================================
// MESSAGE SHAPE PREDICATES
// =============================================================================

var greetingPattern = regexp.MustCompile(`^(?i)(hi|hallo|hey|hoi|dag|hello|yo|hé|hee|sup|hiya|ok|oké|ja|nee|hmm)[\s!?.]*$`)

// IsGreeting reports whether a message is a bare greeting or acknowledgement.
func IsGreeting(message string) bool {
	return greetingPattern.MatchString(message)
}

// IsComplex reports whether a message needs full planning: anything longer
// than a short phrase that is not a greeting.
func IsComplex(message string) bool {
	return len(message) > 20 && !IsGreeting(message)
}

// =============================================================================
// DECISION TABLE
// =============================================================================

// rule is one row of the decision table.
type rule struct {
	id        string
	priority  int
	predicate func(in types.PolicyInput, cfg config.PolicyConfig) bool
	decide    func(in types.PolicyInput, cfg config.PolicyConfig) types.PolicyDecision
}

// Engine routes policy inputs through the decision table.
type Engine struct {
	cfg   config.PolicyConfig
	rules []rule
}

// NewEngine creates a decision engine with the standard rule table.
func NewEngine(cfg config.PolicyConfig) *Engine {
	return &Engine{cfg: cfg, rules: standardRules()}
}

// standardRules returns the table ordered by priority descending. The slice
// order is the evaluation order; priorities are recorded for audit output.
func standardRules() []rule {
	return []rule{
		{
			id:       "crisis_escalation",
			priority: 100,
			predicate: func(in types.PolicyInput, cfg config.PolicyConfig) bool {
				return in.CrisisScore > cfg.CrisisThreshold && in.ConsentGiven
			},
			decide: func(in types.PolicyInput, cfg config.PolicyConfig) types.PolicyDecision {
				return types.PolicyDecision{
					Action:     types.ActionEscalate,
					Confidence: 0.95,
					Reason:     fmt.Sprintf("crisis score %.0f above threshold with consent", in.CrisisScore),
				}
			},
		},
		{
			id:       "fast_path_greeting",
			priority: 90,
			predicate: func(in types.PolicyInput, cfg config.PolicyConfig) bool {
				return IsGreeting(in.Message) && !IsComplex(in.Message) &&
					in.DistressScore < cfg.GreetingDistressMax
			},
			decide: func(in types.PolicyInput, cfg config.PolicyConfig) types.PolicyDecision {
				return types.PolicyDecision{
					Action:     types.ActionFastPath,
					Confidence: 0.75,
					Reason:     "greeting with low distress",
				}
			},
		},
		{
			id:       "high_seed_match",
			priority: 80,
			predicate: func(in types.PolicyInput, cfg config.PolicyConfig) bool {
				return in.SeedMatchScore >= cfg.SeedMatchThreshold
			},
			decide: func(in types.PolicyInput, cfg config.PolicyConfig) types.PolicyDecision {
				return types.PolicyDecision{
					Action:     types.ActionUseSeed,
					Confidence: min(0.95, in.SeedMatchScore+0.1),
					Reason:     fmt.Sprintf("seed match %.2f above threshold", in.SeedMatchScore),
				}
			},
		},
		{
			id:       "low_distress_template",
			priority: 70,
			predicate: func(in types.PolicyInput, cfg config.PolicyConfig) bool {
				return in.DistressScore < cfg.LowDistressThreshold &&
					in.SeedMatchScore > cfg.TemplateMatchMin
			},
			decide: func(in types.PolicyInput, cfg config.PolicyConfig) types.PolicyDecision {
				return types.PolicyDecision{
					Action:     types.ActionTemplate,
					Confidence: 0.8 - (in.DistressScore/100)*0.2,
					Reason:     "low distress with usable seed match",
				}
			},
		},
		{
			id:       "complex_llm_planning",
			priority: 60,
			predicate: func(in types.PolicyInput, cfg config.PolicyConfig) bool {
				return in.DistressScore >= cfg.LowDistressThreshold || IsComplex(in.Message)
			},
			decide: func(in types.PolicyInput, cfg config.PolicyConfig) types.PolicyDecision {
				confidence := 0.7
				if IsComplex(in.Message) {
					confidence = 0.85
				}
				return types.PolicyDecision{
					Action:     types.ActionLLMPlanning,
					Confidence: confidence,
					Reason:     "elevated distress or complex message",
				}
			},
		},
	}
}

// clampConfidence keeps decision confidence inside [0.5, 0.95].
func clampConfidence(v float64) float64 {
	if v < 0.5 {
		return 0.5
	}
	if v > 0.95 {
		return 0.95
	}
	return v
}

// Decide walks the table and returns the first matching rule's decision.
// When nothing matches, the fallback routes to LLM planning at minimum
// confidence.
func (e *Engine) Decide(in types.PolicyInput) types.PolicyDecision {
	timer := logging.StartTimer(logging.CategoryPolicy, "Decide")
	defer timer.Stop()

	for _, r := range e.rules {
		if !r.predicate(in, e.cfg) {
			continue
		}
		decision := r.decide(in, e.cfg)
		decision.RuleID = r.id
		decision.Confidence = clampConfidence(decision.Confidence)

		logging.Policy("decision: rule=%s action=%s confidence=%.2f", r.id, decision.Action, decision.Confidence)
		return decision
	}

	decision := types.PolicyDecision{
		Action:     types.ActionLLMPlanning,
		RuleID:     "fallback",
		Confidence: 0.5,
		Reason:     "no rule matched",
	}
	logging.Policy("decision: rule=fallback action=%s", decision.Action)
	return decision
}
