package policy

import (
	"fmt"
	"regexp"
	"strings"

	"evai/internal/config"
	"evai/internal/logging"
	"evai/internal/types"
)

// =============================================================================
// PII DETECTION
// =============================================================================

var (
	reEmail     = regexp.MustCompile(`@\w+\.\w+`)
	reNLPhone   = regexp.MustCompile(`\b0(?:[ -]?\d){9}\b`)
	reBareDigit = regexp.MustCompile(`\b\d(?:[ -]?\d){8}\b`)
)

// ContainsPII reports whether text carries an email address or a Dutch
// phone number. The phone patterns tolerate single spaces or dashes
// between digits so formatted numbers like "06-12 34 56 78" are caught.
func ContainsPII(text string) bool {
	return reEmail.MatchString(text) || reNLPhone.MatchString(text) || reBareDigit.MatchString(text)
}

// =============================================================================
// PLAN VALIDATION
// =============================================================================

// PlanContext is the turn state a plan is validated against.
type PlanContext struct {
	CrisisScore   float64 // 0..100
	DistressScore float64 // 0..100
	CopingScore   float64 // 0..100
	ConsentGiven  bool
}

// Validator checks plans and responses against the safety rules.
type Validator struct {
	cfg config.PolicyConfig
}

// NewValidator creates a validator using the configured crisis threshold.
func NewValidator(cfg config.PolicyConfig) *Validator {
	return &Validator{cfg: cfg}
}

// ValidatePlan checks a response plan before execution. Errors invalidate
// the plan; warnings lower its confidence but let it through.
func (v *Validator) ValidatePlan(plan types.ResponsePlan, pctx PlanContext) types.ValidationResult {
	var errs, warnings []string

	if plan.Goal == "" && plan.Strategy == "" && len(plan.Steps) == 0 {
		errs = append(errs, "plan has no goal, strategy or steps")
	}

	if pctx.CrisisScore > v.cfg.CrisisThreshold {
		if plan.Strategy == "self-help" {
			errs = append(errs, "self-help strategy not allowed at crisis level")
		} else if plan.Strategy != "refer" && plan.Strategy != "crisis-intervention" {
			warnings = append(warnings, fmt.Sprintf("crisis score %.0f but strategy is %q", pctx.CrisisScore, plan.Strategy))
		}
	}

	planText := plan.Goal + " " + plan.Strategy + " " + strings.Join(plan.Steps, " ")
	if ContainsPII(planText) {
		errs = append(errs, "plan contains personally identifiable information")
	}

	if !pctx.ConsentGiven && strings.Contains(plan.Strategy, "active") {
		warnings = append(warnings, "active strategy without consent")
	}

	if pctx.CopingScore < 20 && strings.Contains(plan.Strategy, "self-reflection") {
		warnings = append(warnings, "self-reflection strategy with very low coping capacity")
	}

	if pctx.DistressScore > 70 && plan.Label == types.LabelSuggestie {
		warnings = append(warnings, "suggestion label under high distress")
	}

	return buildResult(errs, warnings, "plan")
}

// =============================================================================
// RESPONSE VALIDATION
// =============================================================================

var medicalTerms = []string{"diagnose", "stoornis", "dsm", "icd", "psychiatrisch"}

var medicationTerms = []string{"medicijn", "antidepressiv", "ssri", "benzodiazepine"}

// escalationPhrases are the Dutch phrasings that count as pointing the user
// toward professional help.
var escalationPhrases = []string{
	"hulp zoeken", "contact opnemen", "professional", "therapeut",
	"arts", "verwijzing", "113", "crisisdienst", "spoedeisende hulp",
}

// ValidateResponse checks generated text before it reaches the user.
func (v *Validator) ValidateResponse(response string, pctx PlanContext) types.ValidationResult {
	var errs, warnings []string

	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		errs = append(errs, "empty response")
		return buildResult(errs, warnings, "response")
	}

	if len(trimmed) < 20 {
		warnings = append(warnings, "response shorter than 20 characters")
	}
	if len(trimmed) > 500 {
		warnings = append(warnings, "response longer than 500 characters")
	}

	lower := strings.ToLower(trimmed)
	for _, term := range medicalTerms {
		if strings.Contains(lower, term) {
			errs = append(errs, fmt.Sprintf("medical terminology: %q", term))
			break
		}
	}
	for _, term := range medicationTerms {
		if strings.Contains(lower, term) {
			errs = append(errs, fmt.Sprintf("medication reference: %q", term))
			break
		}
	}

	if pctx.CrisisScore > v.cfg.CrisisThreshold && !containsEscalationLanguage(lower) {
		warnings = append(warnings, "crisis level response without escalation language")
	}

	if ContainsPII(trimmed) {
		errs = append(errs, "response contains personally identifiable information")
	}

	return buildResult(errs, warnings, "response")
}

func containsEscalationLanguage(lower string) bool {
	for _, phrase := range escalationPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// buildResult derives OK and Confidence from the collected errors and
// warnings. Any error zeroes confidence; each warning costs 0.1 down to
// a floor of 0.5.
func buildResult(errs, warnings []string, kind string) types.ValidationResult {
	result := types.ValidationResult{
		OK:       len(errs) == 0,
		Errors:   errs,
		Warnings: warnings,
	}
	if result.OK {
		result.Confidence = 1.0 - 0.1*float64(len(warnings))
		if result.Confidence < 0.5 {
			result.Confidence = 0.5
		}
	}

	if len(errs) > 0 {
		logging.PolicyWarn("%s validation failed: %v", kind, errs)
	} else if len(warnings) > 0 {
		logging.Policy("%s validation passed with warnings: %v", kind, warnings)
	}
	return result
}
