// Package trace provides operation visibility for the decision pipeline.
// This file defines trace event types for per-turn stage reporting.
package trace

import (
	"fmt"
	"strings"
	"time"
)

// Stage identifies the pipeline stage an event came from.
type Stage string

const (
	StageSafety    Stage = "safety"    // Guard verdicts, injection hits
	StageRubric    Stage = "rubric"    // Rubric scoring results
	StageEAA       Stage = "eaa"       // Profile derivation, strategy choice
	StagePolicy    Stage = "policy"    // Rule matches and routing
	StageKnowledge Stage = "knowledge" // Seed ranking, learned seeds
	StageFusion    Stage = "fusion"    // Strategy selection, weights
	StageEthics    Stage = "ethics"    // Dominance bands, rule verdicts
	StageHealing   Stage = "healing"   // Retry and fallback recovery
	StageDecision  Stage = "decision"  // Final turn outcome
)

// String returns the display name for the stage.
func (s Stage) String() string {
	return string(s)
}

// DisplayPrefix returns the bracketed prefix for inline display.
func (s Stage) DisplayPrefix() string {
	return fmt.Sprintf("[%s]", strings.ToUpper(string(s)))
}

// Event represents a single pipeline event.
type Event struct {
	// ID is a sequence number for ordering across async sources
	ID uint64

	// Timestamp when the event occurred
	Timestamp time.Time

	// Stage identifies the source pipeline stage
	Stage Stage

	// Summary is a one-line description for inline display
	Summary string

	// Details provides expanded information (shown in verbose mode)
	Details string

	// ConversationID associates the event with a conversation
	ConversationID string

	// Turn associates the event with a turn within the conversation
	Turn int

	// Duration for timed operations (optional)
	Duration time.Duration
}

// String returns a formatted string for display.
func (e Event) String() string {
	result := fmt.Sprintf("%s %s", e.Stage.DisplayPrefix(), e.Summary)
	if e.Duration > 0 {
		result += fmt.Sprintf(" (%.1fms)", float64(e.Duration.Microseconds())/1000)
	}
	return result
}

// HasDetails returns true if the event has expanded details.
func (e Event) HasDetails() bool {
	return e.Details != ""
}

// AllStages returns all valid pipeline stages.
func AllStages() []Stage {
	return []Stage{
		StageSafety,
		StageRubric,
		StageEAA,
		StagePolicy,
		StageKnowledge,
		StageFusion,
		StageEthics,
		StageHealing,
		StageDecision,
	}
}

// ValidStage returns true if the stage string is valid.
func ValidStage(s string) bool {
	for _, stage := range AllStages() {
		if string(stage) == s {
			return true
		}
	}
	return false
}
