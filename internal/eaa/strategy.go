package eaa

import (
	"fmt"

	"evai/internal/types"
)

// StrategyCheck is the outcome of validating a response label against the
// user's EAA profile.
type StrategyCheck struct {
	Valid    bool
	Reason   string
	Fallback string // label to use instead when invalid
}

// ValidateForStrategy checks that a response label fits the user's profile.
// Suggestions need agency to act on; interventions need both ownership and
// agency; reflective questions are always safe.
func ValidateForStrategy(profile types.EAAProfile, label string) StrategyCheck {
	switch label {
	case types.LabelReflectievraag:
		return StrategyCheck{Valid: true}

	case types.LabelSuggestie:
		if profile.Agency < 0.5 {
			return StrategyCheck{
				Valid:    false,
				Reason:   fmt.Sprintf("agency %.2f below 0.5 required for a suggestion", profile.Agency),
				Fallback: types.LabelReflectievraag,
			}
		}
		return StrategyCheck{Valid: true}

	case types.LabelInterventie:
		if profile.Ownership < 0.4 || profile.Agency < 0.6 {
			return StrategyCheck{
				Valid: false,
				Reason: fmt.Sprintf("intervention needs ownership>=0.4 and agency>=0.6, got %.2f/%.2f",
					profile.Ownership, profile.Agency),
				Fallback: types.LabelReflectievraag,
			}
		}
		return StrategyCheck{Valid: true}

	default:
		if profile.Ownership < 0.3 || profile.Agency < 0.3 {
			return StrategyCheck{
				Valid: false,
				Reason: fmt.Sprintf("profile too low for %s: ownership=%.2f agency=%.2f",
					label, profile.Ownership, profile.Agency),
				Fallback: types.LabelReflectievraag,
			}
		}
		return StrategyCheck{Valid: true}
	}
}
