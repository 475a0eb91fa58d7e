package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"evai/internal/trace"
	"evai/internal/types"
)

var (
	turnConversation string
	turnIndex        int
	turnConsent      bool
	turnCrisis       float64
	turnDistress     float64
	turnCoping       float64
	turnPrevConf     float64
	turnDisliked     string
	turnTimeout      time.Duration
)

// turnCmd processes a single user message through the pipeline.
var turnCmd = &cobra.Command{
	Use:   "turn [message]",
	Short: "Process one user message through the decision pipeline",
	Long: `Runs a single turn: safety guard, rubric scoring, EAA profiling, policy
routing, knowledge fusion and the governance gates. Prints the response
with its decision provenance.

Example:
  evai turn "voel me vandaag erg somber" --conversation demo`,
	Args: cobra.ExactArgs(1),
	RunE: runTurn,
}

func init() {
	turnCmd.Flags().StringVar(&turnConversation, "conversation", "", "conversation id (random when empty)")
	turnCmd.Flags().IntVar(&turnIndex, "turn-index", 0, "0-based turn position in the conversation")
	turnCmd.Flags().BoolVar(&turnConsent, "consent", false, "user gave consent for active intervention")
	turnCmd.Flags().Float64Var(&turnCrisis, "crisis", 0, "upstream crisis score 0..100")
	turnCmd.Flags().Float64Var(&turnDistress, "distress", 0, "upstream distress score 0..100")
	turnCmd.Flags().Float64Var(&turnCoping, "coping", 0, "upstream coping score 0..100")
	turnCmd.Flags().Float64Var(&turnPrevConf, "prev-confidence", 0, "confidence of the previous turn")
	turnCmd.Flags().StringVar(&turnDisliked, "disliked", "", "label the user disliked last turn")
	turnCmd.Flags().DurationVar(&turnTimeout, "timeout", 60*time.Second, "turn processing deadline")
}

func runTurn(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	conversationID := turnConversation
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	var events <-chan trace.Event
	if debug {
		events = rt.bus.Subscribe()
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), turnTimeout)
	defer cancel()

	result := rt.orch.ProcessTurn(ctx, types.TurnInput{
		ConversationID: conversationID,
		Message:        args[0],
		TurnIndex:      turnIndex,
		ConsentGiven:   turnConsent,
		DislikedLabel:  turnDisliked,
		PrevConfidence: turnPrevConf,
		CrisisScore:    turnCrisis,
		DistressScore:  turnDistress,
		CopingScore:    turnCoping,
	})
	rt.bus.Flush()

	if debug && events != nil {
		drainTrace(events)
	}

	fmt.Println(result.ResponseText)
	fmt.Println()
	fmt.Printf("conversation: %s\n", conversationID)
	fmt.Printf("decision:     %s\n", result.DecisionID)
	fmt.Printf("path:         %s (rule %s)\n", result.Path, result.RuleID)
	fmt.Printf("label:        %s  emotion: %s  confidence: %.2f\n", result.Label, result.Emotion, result.Confidence)
	fmt.Printf("eaa:          ownership=%.2f autonomy=%.2f agency=%.2f\n",
		result.EAA.Ownership, result.EAA.Autonomy, result.EAA.Agency)
	fmt.Printf("td:           value=%.2f band=%s\n", result.TD.Value, result.TD.Band)
	fmt.Printf("latency:      %dms\n", result.LatencyMS)
	if result.Blocked {
		fmt.Println("blocked:      yes")
	}
	if result.NeedsReview {
		fmt.Println("needs review: yes")
	}
	if result.Healed {
		fmt.Println("healed:       yes")
	}
	return nil
}

// drainTrace prints whatever trace events are already buffered.
func drainTrace(events <-chan trace.Event) {
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			fmt.Println(evt.String())
		default:
			return
		}
	}
}
