package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"evai/internal/config"
	"evai/internal/core"
	"evai/internal/logging"
	"evai/internal/types"
)

// =============================================================================
// GAP DETECTION
// =============================================================================

// correction catches the user pushing back on the previous answer.
var reCorrection = regexp.MustCompile(`(?i)^\s*(nee|niet zo|ik bedoel|bedoelde|dat klopt niet|correctie|even corrigeren)`)

// Gap describes a knowledge gap worth learning from.
type Gap struct {
	Message        string
	Emotion        string // dominant rubric pattern, "neutraal" when none
	RiskScore      float64
	PrevConfidence float64
	NoMatch        bool
}

// Triggered reports whether this gap should start a learning pass: no seed
// matched, the previous turn scored low, or the user corrected us.
func (g Gap) Triggered() bool {
	return g.NoMatch || g.PrevConfidence < 0.6 || reCorrection.MatchString(g.Message)
}

// Severity maps the turn's risk score to a learning severity band.
func (g Gap) Severity() string {
	switch {
	case g.RiskScore > 70:
		return "critical"
	case g.RiskScore > 50:
		return "high"
	case g.RiskScore > 30:
		return "medium"
	default:
		return "low"
	}
}

// =============================================================================
// SEED SYNTHESIS
// =============================================================================

// GateFunc validates a candidate response text before it may be persisted.
// The orchestrator wires this to the dominance and ethics checks.
type GateFunc func(responseText string) error

// Learner synthesizes new seeds from knowledge gaps.
type Learner struct {
	llm  core.LLMClient
	gate GateFunc
	cfg  config.OrchestratorConfig
}

// NewLearner creates a learner. gate may be nil, which skips candidate
// validation (tests only).
func NewLearner(llm core.LLMClient, gate GateFunc, cfg config.OrchestratorConfig) *Learner {
	return &Learner{llm: llm, gate: gate, cfg: cfg}
}

const seedSystemPrompt = `Je bent een schrijver van therapeutische gesprekssjablonen voor een Nederlandstalige steun-app.
Antwoord uitsluitend met een JSON-object met deze velden:
{"type": "validation|reflection|suggestion", "emotions": ["..."], "triggers": ["..."], "response_text": "..."}
De response_text is warm, kort (maximaal 3 zinnen), stelt geen diagnose en noemt geen medicatie.`

type seedCandidate struct {
	Type         string   `json:"type"`
	Emotions     []string `json:"emotions"`
	Triggers     []string `json:"triggers"`
	ResponseText string   `json:"response_text"`
}

// LearnFromGap asks the LLM for a new seed covering the gap, validates the
// candidate through the gate, and returns it ready to persist. The caller
// decides whether to use it for the current turn.
func (l *Learner) LearnFromGap(ctx context.Context, gap Gap) (*types.KnowledgeSeed, error) {
	timer := logging.StartTimer(logging.CategoryKnowledge, "LearnFromGap")
	defer timer.Stop()

	userPrompt := fmt.Sprintf(
		"Emotie: %s\nErnst: %s\nGebruikersbericht: %q\nSchrijf een nieuw sjabloon dat dit soort berichten beantwoordt.",
		gap.Emotion, gap.Severity(), truncate(gap.Message, 240),
	)

	raw, err := l.llm.CompleteWithSystem(ctx, seedSystemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("seed synthesis: %w", err)
	}

	candidate, err := parseSeedCandidate(raw)
	if err != nil {
		return nil, err
	}

	if l.gate != nil {
		if err := l.gate(candidate.ResponseText); err != nil {
			logging.KnowledgeWarn("learned seed rejected by gate: %v", err)
			return nil, fmt.Errorf("candidate rejected: %w", err)
		}
	}

	now := time.Now()
	seed := &types.KnowledgeSeed{
		ID:             uuid.NewString(),
		Type:           candidate.Type,
		Label:          SelectLabel(candidate.Type, ""),
		Triggers:       candidate.Triggers,
		Emotions:       candidate.Emotions,
		ResponseText:   candidate.ResponseText,
		BaseConfidence: l.cfg.LearnerConfidence,
		CreatedAt:      now,
		Learned:        true,
	}

	logging.Knowledge("learned seed %s type=%s severity=%s", seed.ID, seed.Type, gap.Severity())
	return seed, nil
}

// parseSeedCandidate tolerates markdown fences around the JSON object.
func parseSeedCandidate(raw string) (*seedCandidate, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var candidate seedCandidate
	if err := json.Unmarshal([]byte(cleaned), &candidate); err != nil {
		return nil, fmt.Errorf("seed candidate parse: %w", err)
	}
	if candidate.ResponseText == "" {
		return nil, fmt.Errorf("seed candidate has no response text")
	}
	switch candidate.Type {
	case "validation", "reflection", "suggestion":
	default:
		candidate.Type = "validation"
	}
	return &candidate, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
