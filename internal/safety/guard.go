// Package safety is the pre-pipeline guard. Every user message passes
// through it before any other stage runs.
package safety

import (
	"context"
	"regexp"

	"evai/internal/logging"
	"evai/internal/types"
)

// Classifier is the external safety capability. Implementations return a
// verdict with reasons; the Guard handles their failures.
type Classifier interface {
	Check(ctx context.Context, text string) (types.SafetyAssessment, error)
}

// Guard wraps a classifier with fail-closed behavior: a classifier error
// degrades to review, never to pass.
type Guard struct {
	classifier Classifier
}

// NewGuard creates a guard over the given classifier.
func NewGuard(classifier Classifier) *Guard {
	return &Guard{classifier: classifier}
}

// Check classifies the message. Never returns an error: an unreachable or
// failing classifier yields a review verdict so the pipeline continues
// annotated instead of running unguarded.
func (g *Guard) Check(ctx context.Context, text string) types.SafetyAssessment {
	timer := logging.StartTimer(logging.CategorySafety, "Check")
	defer timer.Stop()

	assessment, err := g.classifier.Check(ctx, text)
	if err != nil {
		logging.SafetyError("classifier failed, degrading to review: %v", err)
		return types.SafetyAssessment{
			Verdict: types.SafetyReview,
			Reasons: []string{"veiligheidscontrole niet beschikbaar"},
		}
	}

	switch assessment.Verdict {
	case types.SafetyPass, types.SafetyReview, types.SafetyBlock:
	default:
		// Unknown verdicts from a misbehaving classifier also fail closed.
		logging.SafetyWarn("unknown verdict %q, degrading to review", assessment.Verdict)
		assessment.Verdict = types.SafetyReview
	}

	if assessment.Verdict != types.SafetyPass {
		logging.Safety("verdict=%s reasons=%v", assessment.Verdict, assessment.Reasons)
	}
	return assessment
}

// =============================================================================
// KEYWORD CLASSIFIER
// =============================================================================

// blockPatterns end the turn outright: attempts to weaponize the system
// or steer it off its guardrails.
var blockPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)negeer (alle |je )?(vorige |eerdere )?instructies`),
	regexp.MustCompile(`(?i)ignore (all |your )?(previous |earlier )?instructions`),
	regexp.MustCompile(`(?i)system ?prompt`),
	regexp.MustCompile(`(?i)doe alsof je geen (regels|grenzen|richtlijnen) hebt`),
	regexp.MustCompile(`(?i)hoe (maak|bouw) ik een (wapen|bom)`),
}

// reviewPatterns keep the turn alive but flag it for the audit trail and
// HITL queue.
var reviewPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)jailbreak`),
	regexp.MustCompile(`(?i)rollenspel waarin je`),
	regexp.MustCompile(`(?i)wat is jouw (prompt|opdracht)`),
}

// KeywordClassifier is the built-in local classifier. Deployments with an
// external moderation endpoint implement Classifier against it instead.
type KeywordClassifier struct{}

// NewKeywordClassifier creates the local pattern classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// Check matches the message against the block and review pattern tables.
func (c *KeywordClassifier) Check(ctx context.Context, text string) (types.SafetyAssessment, error) {
	for _, p := range blockPatterns {
		if p.MatchString(text) {
			return types.SafetyAssessment{
				Verdict: types.SafetyBlock,
				Reasons: []string{"bericht bevat een geblokkeerd patroon"},
			}, nil
		}
	}
	for _, p := range reviewPatterns {
		if p.MatchString(text) {
			return types.SafetyAssessment{
				Verdict: types.SafetyReview,
				Reasons: []string{"bericht gemarkeerd voor beoordeling"},
			}, nil
		}
	}
	return types.SafetyAssessment{Verdict: types.SafetyPass}, nil
}
