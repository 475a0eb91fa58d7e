// Package types defines the shared value types that flow through the
// decision pipeline. Values are constructed once per turn and treated as
// immutable afterwards; stages derive new values instead of mutating.
package types

import (
	"time"
)

// =============================================================================
// TURN INPUT / OUTPUT
// =============================================================================

// TurnInput carries everything the pipeline needs to process one user turn.
type TurnInput struct {
	ConversationID string
	UserID         string
	Message        string
	TurnIndex      int // 0-based position in the conversation
	ConsentGiven   bool
	DislikedLabel  string // label the user disliked on the previous turn, "" if none

	// Previous turn state, zero values on the first turn.
	PrevConfidence float64

	// Optional externally-supplied signals (crisis detection upstream).
	CrisisScore   float64 // 0..100
	DistressScore float64 // 0..100
	CopingScore   float64 // 0..100
}

// TurnResult is the pipeline's final product for a turn.
type TurnResult struct {
	DecisionID   string
	ResponseText string
	Label        string // Valideren, Reflectievraag, Suggestie, Interventie, Fout
	Emotion      string
	Confidence   float64
	RuleID       string // policy rule that routed this turn
	Path         DecisionPath
	Plan         *ResponsePlan
	EAA          EAAProfile
	TD           TDScore
	Rubrics      RubricResult
	Safety       SafetyAssessment
	Blocked      bool
	NeedsReview  bool // HITL escalation or safety review
	Healed       bool // auto-heal recovered this turn
	LatencyMS    int64
}

// DecisionPath identifies which branch produced the response.
type DecisionPath string

const (
	PathFastPath     DecisionPath = "FAST_PATH"
	PathUseSeed      DecisionPath = "USE_SEED"
	PathTemplateOnly DecisionPath = "TEMPLATE_ONLY"
	PathEscalate     DecisionPath = "ESCALATE_INTERVENTION"
	PathLLMPlanning  DecisionPath = "LLM_PLANNING"
	PathLearned      DecisionPath = "LEARNED_SEED"
	PathBlocked      DecisionPath = "BLOCKED"
	PathFallback     DecisionPath = "FALLBACK"
)

// Response labels. Dutch, matching the therapeutic vocabulary of the seeds.
const (
	LabelValideren      = "Valideren"
	LabelReflectievraag = "Reflectievraag"
	LabelSuggestie      = "Suggestie"
	LabelInterventie    = "Interventie"
	LabelFout           = "Fout"
)

// =============================================================================
// RUBRIC SCORING
// =============================================================================

// RubricScore is the outcome of scoring one rubric against a message.
type RubricScore struct {
	RubricID         string
	RiskScore        float64 // 0..100
	ProtectiveScore  float64 // >= 0
	MatchedTriggers  []string
	MatchedRisk      []string
	MatchedProtect   []string
	Confidence       Confidence
	InterventionHint bool // trigger ratio crossed the rubric's intervention threshold
}

// Confidence buckets for rubric matches.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// RubricResult aggregates all rubric scores for one message.
type RubricResult struct {
	Scores            []RubricScore
	OverallRisk       float64 // 0..100, confidence-weighted
	OverallProtective float64 // mean of protective scores
	DominantPattern   string  // rubric id with highest risk, "none" if nothing matched
}

// =============================================================================
// EAA PROFILE
// =============================================================================

// EAAProfile captures user Ownership, Autonomy and Agency for a turn.
// All three values are clamped to [0,1].
type EAAProfile struct {
	Ownership float64
	Autonomy  float64
	Agency    float64
}

// =============================================================================
// TD-MATRIX
// =============================================================================

// TDBand classifies the transactional-dominance value.
type TDBand string

const (
	TDBalanced TDBand = "balanced" // value <= 0.6
	TDDominant TDBand = "dominant" // value <= 0.8
	TDCritical TDBand = "critical" // value > 0.8
)

// TDScore is the transactional-dominance assessment of a candidate response.
type TDScore struct {
	Value          float64 // ai / (ai + agency)
	AIContribution float64
	UserAgency     float64
	Band           TDBand
	ShouldBlock    bool
}

// =============================================================================
// POLICY DECISION
// =============================================================================

// PolicyInput is the signal set the decision table matches against.
type PolicyInput struct {
	Message        string
	CrisisScore    float64 // 0..100
	DistressScore  float64 // 0..100
	SeedMatchScore float64 // 0..1, best knowledge match
	ConsentGiven   bool
}

// PolicyAction is the tagged action variant a policy rule selects.
type PolicyAction string

const (
	ActionUseSeed     PolicyAction = "USE_SEED"
	ActionFastPath    PolicyAction = "FAST_PATH"
	ActionTemplate    PolicyAction = "TEMPLATE_ONLY"
	ActionEscalate    PolicyAction = "ESCALATE_INTERVENTION"
	ActionLLMPlanning PolicyAction = "LLM_PLANNING"
)

// PolicyDecision is the routing outcome for a turn.
type PolicyDecision struct {
	Action     PolicyAction
	RuleID     string
	Confidence float64 // clamped to [0.5, 0.95]
	Reason     string
}

// =============================================================================
// KNOWLEDGE SEEDS
// =============================================================================

// KnowledgeSeed is a curated therapeutic response template.
type KnowledgeSeed struct {
	ID             string
	Type           string // validation, reflection, suggestion
	Label          string
	Triggers       []string
	Emotions       []string
	ResponseText   string
	BaseConfidence float64
	UsageCount     int
	LastUsed       time.Time
	CreatedAt      time.Time
	Learned        bool // synthesized by learning mode rather than curated
}

// RankedSeed pairs a seed with its computed relevance for the current turn.
type RankedSeed struct {
	Seed       KnowledgeSeed
	Score      float64 // 0..1
	Similarity float64 // embedding cosine, 0 when unavailable
}

// =============================================================================
// RESPONSE PLAN
// =============================================================================

// ResponsePlan is the structured plan behind a generated response.
type ResponsePlan struct {
	Goal     string
	Strategy string
	Steps    []string
	Label    string
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationResult reports errors and warnings from plan or response checks.
// OK holds iff there are no errors. Confidence is 1.0 minus 0.1 per warning,
// floored at 0.5, and 0 when any error is present.
type ValidationResult struct {
	OK         bool
	Errors     []string
	Warnings   []string
	Confidence float64
}

// =============================================================================
// FUSION
// =============================================================================

// FusionStrategy names how symbolic and neural text were combined.
type FusionStrategy string

const (
	FusionNeuralEnhanced   FusionStrategy = "neural_enhanced"
	FusionWeightedBlend    FusionStrategy = "weighted_blend"
	FusionSymbolicFallback FusionStrategy = "symbolic_fallback"
)

// FusionResult is the combined response with its provenance weights.
// SymbolicWeight + NeuralWeight always equals 1.0.
type FusionResult struct {
	Text           string
	Strategy       FusionStrategy
	SymbolicWeight float64
	NeuralWeight   float64
	Preservation   float64
	Confidence     float64
}

// =============================================================================
// SAFETY
// =============================================================================

// SafetyVerdict is the guard's ruling on a turn.
type SafetyVerdict string

const (
	SafetyPass   SafetyVerdict = "pass"
	SafetyReview SafetyVerdict = "review"
	SafetyBlock  SafetyVerdict = "block"
)

// SafetyAssessment is the pre-pipeline guard result.
type SafetyAssessment struct {
	Verdict SafetyVerdict
	Reasons []string
}

// =============================================================================
// ETHICS
// =============================================================================

// EthicsContext holds the symbolic parameters the ethics rules evaluate.
// Keys follow the governance vocabulary: A autonomy, TD dominance value,
// V shared value, V_M ownership, V_A agency, D_Bc protective, B risk.
type EthicsContext struct {
	A   float64
	TD  float64
	V   float64
	VM  float64
	VA  float64
	DBc float64
	B   float64
}

// EthicsActionKind names the symbolic action a fired ethics rule requests.
type EthicsActionKind string

const (
	EthicsSeedInjection    EthicsActionKind = "seed_injection"
	EthicsAlert            EthicsActionKind = "alert"
	EthicsReflectivePrompt EthicsActionKind = "reflective_prompt"
	EthicsContextExpansion EthicsActionKind = "context_expansion"
	EthicsAuditLog         EthicsActionKind = "audit_log"
	EthicsHaltOutput       EthicsActionKind = "halt_output"
)

// EthicsAction is the fired rule plus its action parameter.
type EthicsAction struct {
	RuleID string
	Kind   EthicsActionKind
	Param  string // action argument: target value, severity, role
}

// Blocking reports whether this action must stop response delivery.
// halt_output is the only blocking action.
func (a EthicsAction) Blocking() bool {
	return a.Kind == EthicsHaltOutput
}

// =============================================================================
// BRIEFING
// =============================================================================

// Briefing is the cached strategic context for hard conversations.
type Briefing struct {
	ConversationID string
	Summary        string
	FocusAreas     []string
	GeneratedAt    time.Time
}

// Expired reports whether the briefing is older than ttl at the given time.
func (b Briefing) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(b.GeneratedAt) > ttl
}
