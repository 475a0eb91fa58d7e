// Package orchestrator runs the per-turn decision pipeline: safety guard,
// rubric scoring, EAA profiling, policy routing, knowledge fusion, and the
// governance gates, with auto-heal around the whole of it.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"evai/internal/config"
	"evai/internal/core"
	"evai/internal/eaa"
	"evai/internal/embedding"
	"evai/internal/ethics"
	"evai/internal/fusion"
	"evai/internal/knowledge"
	"evai/internal/logging"
	"evai/internal/policy"
	"evai/internal/rubric"
	"evai/internal/safety"
	"evai/internal/store"
	"evai/internal/tdmatrix"
	"evai/internal/trace"
	"evai/internal/types"
)

// =============================================================================
// FIXED RESPONSES
// =============================================================================

const (
	blockedResponse = "Dit bericht kan ik niet verwerken. Laten we het ergens anders over hebben."

	greetingResponse = "Hoi! Fijn dat je er bent. Hoe gaat het vandaag met je?"

	crisisResponse = "Wat je beschrijft klinkt heel zwaar, en ik wil dat je hier goede hulp bij krijgt. " +
		"Neem contact op met 113 (bel 0800-0113) of je huisarts. Je hoeft dit niet alleen te dragen."

	reviewResponse = "Ik wil hier zorgvuldig op reageren. Er kijkt iemand met me mee, we komen hier snel op terug."
)

// templates are the per-emotion canned responses for the template path.
var templates = map[string]string{
	"verdrietig":   "Dat klinkt als echt verdriet. Je hoeft dat hier niet weg te stoppen.",
	"angstig":      "Spanning kan flink opspelen. Je bent hier niet alleen mee.",
	"boos":         "Die boosheid mag er zijn. Wil je vertellen wat er gebeurde?",
	"eenzaam":      "Je alleen voelen is zwaar. Fijn dat je het hier deelt.",
	"gestrest":     "Dat klinkt als veel tegelijk. Even stilstaan mag ook.",
	"blij":         "Wat fijn om te horen. Koester dat gevoel gerust even.",
	EmotionNeutral: "Dank je dat je dit deelt. Vertel gerust meer, ik luister.",
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator wires the pipeline stages together and processes turns.
type Orchestrator struct {
	cfg       *config.Config
	guard     *safety.Guard
	rubrics   *rubric.Engine
	profiles  *eaa.Evaluator
	policies  *policy.Engine
	validator *policy.Validator
	ranker    *knowledge.Ranker
	learner   *knowledge.Learner
	matrix    *tdmatrix.Matrix
	rules     *ethics.Engine
	assembler *fusion.Assembler
	llm       core.LLMClient
	store     *store.LocalStore
	indexer   *embedding.Indexer
	emotions  EmotionDetector
	bus       *trace.Bus
	briefings *BriefingCache

	healBackoff time.Duration

	// one turn in flight per conversation
	turnLocks sync.Map
}

// New builds an orchestrator from configuration and the shared
// infrastructure. The indexer and bus may be nil; the pipeline then skips
// embedding similarity and trace emission.
func New(cfg *config.Config, llmClient core.LLMClient, st *store.LocalStore, ix *embedding.Indexer, bus *trace.Bus) *Orchestrator {
	ttl, err := time.ParseDuration(cfg.Orchestrator.BriefingTTL)
	if err != nil {
		ttl = 5 * time.Minute
	}
	backoff, err := time.ParseDuration(cfg.Orchestrator.HealRetryBackoff)
	if err != nil {
		backoff = 500 * time.Millisecond
	}

	matrix := tdmatrix.New(cfg.TDMatrix)
	validator := policy.NewValidator(cfg.Policy)
	rules := ethics.NewEngine()

	// Learned seeds pass the same governance gates as live responses
	// before they are persisted.
	gate := func(responseText string) error {
		if check := validator.ValidateResponse(responseText, policy.PlanContext{}); !check.OK {
			return fmt.Errorf("%w: %s", core.ErrValidationFailed, strings.Join(check.Errors, "; "))
		}
		td := matrix.Evaluate(responseText, 0.5)
		if td.ShouldBlock {
			return fmt.Errorf("%w: dominance %.2f", core.ErrBlocked, td.Value)
		}
		neutral := types.EAAProfile{Ownership: 0.5, Autonomy: 0.5, Agency: 0.5}
		ectx := ethics.BuildContext(neutral, td.Value, 0.5, 0, false)
		if action := rules.Evaluate(ectx); action != nil && action.Blocking() {
			return fmt.Errorf("%w: rule %s", core.ErrBlocked, action.RuleID)
		}
		return nil
	}

	return &Orchestrator{
		cfg:         cfg,
		guard:       safety.NewGuard(safety.NewKeywordClassifier()),
		rubrics:     rubric.NewEngine(cfg.Rubrics),
		profiles:    eaa.NewEvaluator(),
		policies:    policy.NewEngine(cfg.Policy),
		validator:   validator,
		ranker:      knowledge.NewRanker(cfg.Ranking),
		learner:     knowledge.NewLearner(llmClient, gate, cfg.Orchestrator),
		matrix:      matrix,
		rules:       rules,
		assembler:   fusion.NewAssembler(cfg.Fusion),
		llm:         llmClient,
		store:       st,
		indexer:     ix,
		emotions:    NewKeywordEmotions(),
		bus:         bus,
		briefings:   NewBriefingCache(ttl),
		healBackoff: backoff,
	}
}

func (o *Orchestrator) conversationLock(conversationID string) *sync.Mutex {
	v, _ := o.turnLocks.LoadOrStore(conversationID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (o *Orchestrator) emit(in types.TurnInput, stage trace.Stage, format string, args ...interface{}) {
	if o.bus == nil {
		return
	}
	o.bus.Emit(trace.Event{
		Stage:          stage,
		Summary:        fmt.Sprintf(format, args...),
		ConversationID: in.ConversationID,
		Turn:           in.TurnIndex,
	})
}

// =============================================================================
// TURN PROCESSING
// =============================================================================

// ProcessTurn runs one user turn through the pipeline and always returns a
// deliverable result. Fatal errors are absorbed by auto-heal.
func (o *Orchestrator) ProcessTurn(ctx context.Context, in types.TurnInput) types.TurnResult {
	lock := o.conversationLock(in.ConversationID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	audit := logging.AuditWithConversation(in.ConversationID)
	audit.Log(logging.AuditEvent{
		EventType: logging.AuditTurnStart,
		Category:  string(logging.CategoryOrchestrator),
		Success:   true,
		Fields:    map[string]interface{}{"turn": in.TurnIndex},
	})

	result, err := o.processTurn(ctx, in)
	if err != nil {
		logging.OrchestratorError("turn failed: %v", err)
		result = o.heal(ctx, in, err)
	}

	if result.DecisionID == "" {
		result.DecisionID = uuid.NewString()
	}
	result.LatencyMS = time.Since(start).Milliseconds()

	o.persist(in, result)

	audit.Log(logging.AuditEvent{
		EventType:  logging.AuditTurnEnd,
		Category:   string(logging.CategoryOrchestrator),
		DecisionID: result.DecisionID,
		Success:    !result.Blocked,
		DurationMs: result.LatencyMS,
		Fields: map[string]interface{}{
			"path":       string(result.Path),
			"label":      result.Label,
			"confidence": result.Confidence,
		},
	})
	o.emit(in, trace.StageDecision, "path=%s label=%s confidence=%.2f", result.Path, result.Label, result.Confidence)

	logging.Orchestrator("turn done: conv=%s path=%s rule=%s confidence=%.2f latency=%dms",
		in.ConversationID, result.Path, result.RuleID, result.Confidence, result.LatencyMS)
	return result
}

// candidate is a branch's proposed response before the governance gates.
type candidate struct {
	text  string
	label string
	conf  float64
	path  types.DecisionPath
	plan  *types.ResponsePlan
}

func (o *Orchestrator) processTurn(ctx context.Context, in types.TurnInput) (types.TurnResult, error) {
	audit := logging.AuditWithConversation(in.ConversationID)

	// Safety and rubric scoring are independent reads of the message.
	var (
		assessment types.SafetyAssessment
		scored     types.RubricResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		assessment = o.guard.Check(gctx, in.Message)
		return nil
	})
	g.Go(func() error {
		scored = o.rubrics.Score(in.Message)
		return nil
	})
	if err := g.Wait(); err != nil {
		return types.TurnResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return types.TurnResult{}, err
	}

	o.emit(in, trace.StageSafety, "verdict=%s", assessment.Verdict)
	o.emit(in, trace.StageRubric, "risk=%.1f dominant=%s", scored.OverallRisk, scored.DominantPattern)
	audit.Log(logging.AuditEvent{
		EventType: logging.AuditSafetyCheck,
		Category:  string(logging.CategorySafety),
		Success:   assessment.Verdict != types.SafetyBlock,
		Fields:    map[string]interface{}{"verdict": string(assessment.Verdict)},
	})

	if assessment.Verdict == types.SafetyBlock {
		audit.Log(logging.AuditEvent{
			EventType: logging.AuditSafetyBlock,
			Category:  string(logging.CategorySafety),
			Message:   strings.Join(assessment.Reasons, "; "),
		})
		return types.TurnResult{
			DecisionID:   uuid.NewString(),
			ResponseText: blockedResponse,
			Label:        types.LabelFout,
			Emotion:      EmotionNeutral,
			Confidence:   1.0,
			RuleID:       "safety_block",
			Path:         types.PathBlocked,
			Rubrics:      scored,
			Safety:       assessment,
			Blocked:      true,
			NeedsReview:  true,
		}, nil
	}
	needsReview := assessment.Verdict == types.SafetyReview
	if needsReview {
		audit.Log(logging.AuditEvent{
			EventType: logging.AuditSafetyReview,
			Category:  string(logging.CategorySafety),
			Success:   true,
			Message:   strings.Join(assessment.Reasons, "; "),
		})
	}

	// Fast path for plain greetings, unless the rubrics flag risk anyway.
	if policy.IsGreeting(in.Message) && !policy.IsComplex(in.Message) &&
		scored.OverallRisk <= o.cfg.Orchestrator.FastPathRiskMax {
		o.emit(in, trace.StagePolicy, "rule=fast_path_greeting")
		return o.finish(in, candidate{
			text:  greetingResponse,
			label: types.LabelValideren,
			conf:  0.95,
			path:  types.PathFastPath,
		}, "fast_path_greeting", EmotionNeutral, types.EAAProfile{Ownership: 0.5, Autonomy: 0.5, Agency: 0.5},
			scored, assessment, needsReview, false), nil
	}

	emotion := o.emotions.Detect(in.Message)
	complexMsg := policy.IsComplex(in.Message)

	profile := o.profiles.Evaluate(in.Message, eaa.RubricContext{
		Risk:            scored.OverallRisk / 100,
		Protective:      normalizeProtective(scored.OverallProtective),
		DominantPattern: scored.DominantPattern,
	})
	o.emit(in, trace.StageEAA, "ownership=%.2f autonomy=%.2f agency=%.2f", profile.Ownership, profile.Autonomy, profile.Agency)
	audit.Log(logging.AuditEvent{
		EventType: logging.AuditEAAProfile,
		Category:  string(logging.CategoryEAA),
		Success:   true,
		Fields: map[string]interface{}{
			"ownership": profile.Ownership,
			"autonomy":  profile.Autonomy,
			"agency":    profile.Agency,
		},
	})

	var brief *types.Briefing
	if o.needsBriefing(in, scored.OverallRisk, complexMsg) {
		brief = o.briefing(ctx, in, scored.OverallRisk)
	}

	// Knowledge search and ranking.
	seeds, err := o.store.ListSeeds()
	if err != nil {
		return types.TurnResult{}, fmt.Errorf("%w: listing seeds: %v", core.ErrStoreUnavailable, err)
	}
	sims := map[string]float64{}
	if o.indexer != nil {
		if got, simErr := o.indexer.QuerySimilarities(ctx, in.Message); simErr == nil {
			sims = got
		} else {
			logging.KnowledgeWarn("similarity lookup failed: %v", simErr)
		}
	}
	ranked := o.ranker.Rank(seeds, knowledge.Query{
		Message:            in.Message,
		DetectedEmotion:    emotion,
		DislikedLabel:      in.DislikedLabel,
		Similarities:       sims,
		ConversationLength: in.TurnIndex,
	})
	bestScore := 0.0
	if len(ranked) > 0 {
		bestScore = ranked[0].Score
	}
	o.emit(in, trace.StageKnowledge, "candidates=%d best=%.2f", len(ranked), bestScore)

	// Learning mode: synthesize a seed when the library has no answer.
	// The first turn has no previous confidence to be unsure about.
	prevConf := in.PrevConfidence
	if in.TurnIndex == 0 {
		prevConf = 1.0
	}
	gap := knowledge.Gap{
		Message:        in.Message,
		Emotion:        emotion,
		RiskScore:      scored.OverallRisk,
		PrevConfidence: prevConf,
		NoMatch:        len(ranked) == 0,
	}
	// Crisis turns always route through the policy table, never learning.
	if gap.Triggered() && bestScore < o.cfg.Policy.SeedMatchThreshold &&
		in.CrisisScore <= o.cfg.Policy.CrisisThreshold {
		if cand, ok := o.learnSeed(ctx, in, gap); ok {
			return o.finish(in, cand, "learning_mode", emotion, profile, scored, assessment, needsReview, false), nil
		}
	}

	decision := o.policies.Decide(types.PolicyInput{
		Message:        in.Message,
		CrisisScore:    in.CrisisScore,
		DistressScore:  in.DistressScore,
		SeedMatchScore: bestScore,
		ConsentGiven:   in.ConsentGiven,
	})
	o.emit(in, trace.StagePolicy, "rule=%s action=%s", decision.RuleID, decision.Action)
	audit.LogDecision("", decision.RuleID, decision.Confidence)

	cand := o.runBranch(ctx, in, decision, ranked, emotion, profile, brief)
	return o.finish(in, cand, decision.RuleID, emotion, profile, scored, assessment, needsReview, false), nil
}

func normalizeProtective(p float64) float64 {
	v := p / 10
	if v > 1 {
		return 1
	}
	return v
}

// =============================================================================
// POLICY BRANCHES
// =============================================================================

func (o *Orchestrator) runBranch(ctx context.Context, in types.TurnInput, decision types.PolicyDecision,
	ranked []types.RankedSeed, emotion string, profile types.EAAProfile, brief *types.Briefing) candidate {

	switch decision.Action {
	case types.ActionEscalate:
		plan := &types.ResponsePlan{
			Goal:     "safety",
			Strategy: "refer",
			Steps:    []string{"erken de ernst", "verwijs naar professionele hulp", "blijf beschikbaar"},
			Label:    types.LabelInterventie,
		}
		return candidate{
			text:  crisisResponse,
			label: types.LabelInterventie,
			conf:  0.95,
			path:  types.PathEscalate,
			plan:  plan,
		}

	case types.ActionFastPath:
		return candidate{
			text:  greetingResponse,
			label: types.LabelValideren,
			conf:  0.95,
			path:  types.PathFastPath,
		}

	case types.ActionUseSeed:
		if len(ranked) > 0 {
			return o.fuseSeed(ctx, in, ranked, emotion, profile, decision.Confidence)
		}
		return o.templateCandidate(emotion, decision.Confidence)

	case types.ActionTemplate:
		return o.templateCandidate(emotion, decision.Confidence)

	default: // LLM planning
		return o.planBranch(ctx, in, emotion, profile, decision, brief)
	}
}

func (o *Orchestrator) templateCandidate(emotion string, conf float64) candidate {
	text, ok := templates[emotion]
	if !ok {
		text = templates[EmotionNeutral]
	}
	return candidate{
		text:  text,
		label: types.LabelValideren,
		conf:  conf,
		path:  types.PathTemplateOnly,
	}
}

// fuseSeed runs the symbolic/neural fusion path: extract the seed core,
// rewrite it with the LLM, and assemble under preservation constraints.
func (o *Orchestrator) fuseSeed(ctx context.Context, in types.TurnInput, ranked []types.RankedSeed,
	emotion string, profile types.EAAProfile, neuralConf float64) candidate {

	audit := logging.AuditWithConversation(in.ConversationID)
	top := ranked[0]
	seed := top.Seed

	if err := fusion.CheckSeedText(seed.ResponseText); err != nil {
		logging.SafetyWarn("seed %s rejected: %v", seed.ID, err)
		audit.LogError(logging.AuditValidationFailed, "seed_injection_check", err)
		return o.templateCandidate(emotion, neuralConf)
	}

	symIn := fusion.Input{
		SymbolicResponse:   seed.ResponseText,
		SymbolicEmotion:    emotion,
		SymbolicConfidence: top.Score,
	}

	var fused types.FusionResult
	systemPrompt, userPrompt := fusion.BuildPrompt(seed.ResponseText, in.Message)
	neural, err := o.llm.CompleteWithSystem(ctx, systemPrompt, userPrompt)
	if err != nil {
		logging.OrchestratorWarn("fusion LLM call failed, using seed text: %v", err)
		audit.LogError(logging.AuditLLMError, "fusion", err)
		fused = o.assembler.SymbolicFallback(symIn)
	} else {
		check := o.validator.ValidateResponse(neural, o.planContext(in))
		td := o.matrix.Evaluate(neural, profile.Agency)
		symIn.NeuralResponse = neural
		symIn.NeuralConfidence = neuralConf
		symIn.Validated = check.OK
		symIn.ConstraintsOK = !td.ShouldBlock
		fused = o.assembler.Assemble(symIn)
	}

	o.emit(in, trace.StageFusion, "strategy=%s preservation=%.2f", fused.Strategy, fused.Preservation)
	audit.Log(logging.AuditEvent{
		EventType: logging.AuditFusionAssembled,
		Category:  string(logging.CategoryFusion),
		Success:   true,
		Fields: map[string]interface{}{
			"strategy":     string(fused.Strategy),
			"preservation": fused.Preservation,
		},
	})

	o.trackUsage(in, ranked)
	audit.Log(logging.AuditEvent{
		EventType: logging.AuditSeedUsed,
		Category:  string(logging.CategoryKnowledge),
		Target:    seed.ID,
		Success:   true,
	})

	return candidate{
		text:  fused.Text,
		label: knowledge.SelectLabel(seed.Type, in.DislikedLabel),
		conf:  fused.Confidence,
		path:  types.PathUseSeed,
	}
}

// trackUsage bumps usage counters for the top ranked seeds. Failures only
// cost the usage statistics, never the turn.
func (o *Orchestrator) trackUsage(in types.TurnInput, ranked []types.RankedSeed) {
	ids := o.ranker.UsageUpdates(ranked)
	if len(ids) == 0 {
		return
	}
	if err := o.store.BumpUsage(ids); err != nil {
		logging.KnowledgeWarn("usage tracking failed: %v", err)
		return
	}
	o.emit(in, trace.StageKnowledge, "usage bumped for %d seeds", len(ids))
}

const planningSystemPrompt = `Je bent de planner van een Nederlandstalige steun-app. Maak een kort responsplan
en de bijbehorende reactie voor het bericht van de gebruiker.
Antwoord uitsluitend met JSON: {"goal": "...", "strategy": "...", "steps": ["..."], "label": "Valideren|Reflectievraag|Suggestie", "response": "..."}.
De reactie is warm, informeel en maximaal drie zinnen. Geen diagnoses, geen medisch advies.`

type llmPlan struct {
	Goal     string   `json:"goal"`
	Strategy string   `json:"strategy"`
	Steps    []string `json:"steps"`
	Label    string   `json:"label"`
	Response string   `json:"response"`
}

func (o *Orchestrator) planBranch(ctx context.Context, in types.TurnInput, emotion string,
	profile types.EAAProfile, decision types.PolicyDecision, brief *types.Briefing) candidate {

	audit := logging.AuditWithConversation(in.ConversationID)

	userPrompt := "Bericht: " + in.Message
	if brief != nil && brief.Summary != "" {
		userPrompt = "Gesprekscontext: " + brief.Summary + "\n" + userPrompt
	}

	raw, err := o.llm.CompleteWithSystem(ctx, planningSystemPrompt, userPrompt)
	if err != nil {
		logging.OrchestratorWarn("planning LLM call failed, using template: %v", err)
		audit.LogError(logging.AuditLLMError, "planning", err)
		return o.templateCandidate(emotion, decision.Confidence)
	}

	plan, response, err := parsePlan(raw)
	if err != nil {
		logging.OrchestratorWarn("unusable plan, using template: %v", err)
		audit.LogError(logging.AuditLLMError, "plan_parse", err)
		return o.templateCandidate(emotion, decision.Confidence)
	}

	if check := o.validator.ValidatePlan(*plan, o.planContext(in)); !check.OK {
		logging.OrchestratorWarn("plan rejected: %s", strings.Join(check.Errors, "; "))
		audit.LogError(logging.AuditValidationFailed, "plan", errors.New(strings.Join(check.Errors, "; ")))
		return o.eaaFallback(profile)
	}

	return candidate{
		text:  response,
		label: plan.Label,
		conf:  decision.Confidence,
		path:  types.PathLLMPlanning,
		plan:  plan,
	}
}

func parsePlan(raw string) (*types.ResponsePlan, string, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var p llmPlan
	if err := json.Unmarshal([]byte(cleaned), &p); err != nil {
		return nil, "", fmt.Errorf("parsing plan: %w", err)
	}
	if p.Response == "" {
		return nil, "", fmt.Errorf("%w: plan has no response", core.ErrNoCompletion)
	}

	label := p.Label
	switch label {
	case types.LabelValideren, types.LabelReflectievraag, types.LabelSuggestie:
	default:
		label = types.LabelValideren
	}

	return &types.ResponsePlan{
		Goal:     p.Goal,
		Strategy: p.Strategy,
		Steps:    p.Steps,
		Label:    label,
	}, p.Response, nil
}

// learnSeed runs learning mode and persists the gate-approved seed. The
// learned response is delivered directly.
func (o *Orchestrator) learnSeed(ctx context.Context, in types.TurnInput, gap knowledge.Gap) (candidate, bool) {
	seed, err := o.learner.LearnFromGap(ctx, gap)
	if err != nil || seed == nil {
		if err != nil {
			logging.KnowledgeWarn("learning mode failed: %v", err)
		}
		return candidate{}, false
	}

	if err := o.store.UpsertSeed(*seed); err != nil {
		logging.KnowledgeWarn("learned seed not persisted: %v", err)
	} else if o.indexer != nil {
		if err := o.indexer.IndexSeed(ctx, *seed); err != nil {
			logging.KnowledgeWarn("learned seed not indexed: %v", err)
		}
	}

	o.emit(in, trace.StageKnowledge, "learned seed %s severity=%s", seed.ID, gap.Severity())
	logging.AuditWithConversation(in.ConversationID).Log(logging.AuditEvent{
		EventType: logging.AuditSeedLearned,
		Category:  string(logging.CategoryKnowledge),
		Target:    seed.ID,
		Success:   true,
		Fields:    map[string]interface{}{"severity": gap.Severity()},
	})

	return candidate{
		text:  seed.ResponseText,
		label: seed.Label,
		conf:  seed.BaseConfidence,
		path:  types.PathLearned,
	}, true
}

// =============================================================================
// GOVERNANCE GATES AND RESULT ASSEMBLY
// =============================================================================

func (o *Orchestrator) planContext(in types.TurnInput) policy.PlanContext {
	return policy.PlanContext{
		CrisisScore:   in.CrisisScore,
		DistressScore: in.DistressScore,
		CopingScore:   in.CopingScore,
		ConsentGiven:  in.ConsentGiven,
	}
}

// eaaFallback picks a safe replacement matched to the user's agency.
func (o *Orchestrator) eaaFallback(profile types.EAAProfile) candidate {
	var text string
	switch {
	case profile.Agency < 0.4:
		text = "Hoe voel je je hier op dit moment onder?"
	case profile.Agency < 0.6:
		text = "Dat klinkt niet makkelijk. Ik ben er voor je."
	default:
		text = "Fijn dat je dit deelt. Vertel gerust verder, ik luister."
	}
	return candidate{
		text:  text,
		label: types.LabelFout,
		conf:  0.3,
		path:  types.PathFallback,
	}
}

// finish runs the governance gates over a branch candidate and builds the
// final result.
func (o *Orchestrator) finish(in types.TurnInput, cand candidate, ruleID, emotion string,
	profile types.EAAProfile, scored types.RubricResult, assessment types.SafetyAssessment,
	needsReview, healed bool) types.TurnResult {

	audit := logging.AuditWithConversation(in.ConversationID)
	pctx := o.planContext(in)

	if check := o.validator.ValidateResponse(cand.text, pctx); !check.OK {
		logging.OrchestratorWarn("response rejected: %s", strings.Join(check.Errors, "; "))
		audit.LogError(logging.AuditValidationFailed, "response", errors.New(strings.Join(check.Errors, "; ")))
		cand = o.eaaFallback(profile)
	}

	td := o.matrix.Evaluate(cand.text, profile.Agency)
	audit.Log(logging.AuditEvent{
		EventType: logging.AuditTDEvaluated,
		Category:  string(logging.CategoryEthics),
		Success:   !td.ShouldBlock,
		Fields:    map[string]interface{}{"value": td.Value, "band": string(td.Band)},
	})
	if td.ShouldBlock {
		audit.Log(logging.AuditEvent{
			EventType: logging.AuditTDBlock,
			Category:  string(logging.CategoryEthics),
			Fields:    map[string]interface{}{"value": td.Value},
		})
		o.emit(in, trace.StageEthics, "td block value=%.2f", td.Value)
		cand = o.eaaFallback(profile)
		td = o.matrix.Evaluate(cand.text, profile.Agency)
	}

	ectx := ethics.BuildContext(profile, td.Value, normalizeProtective(scored.OverallProtective),
		scored.OverallRisk/100, len(scored.Scores) > 0)
	if action := o.rules.Evaluate(ectx); action != nil {
		audit.Log(logging.AuditEvent{
			EventType: logging.AuditEthicsRule,
			Category:  string(logging.CategoryEthics),
			Target:    action.RuleID,
			Success:   !action.Blocking(),
			Fields:    map[string]interface{}{"action": string(action.Kind), "param": action.Param},
		})
		o.emit(in, trace.StageEthics, "rule=%s action=%s", action.RuleID, action.Kind)
		if action.Blocking() {
			audit.Log(logging.AuditEvent{
				EventType: logging.AuditEthicsHalt,
				Category:  string(logging.CategoryEthics),
				Target:    action.RuleID,
			})
			cand = o.eaaFallback(profile)
			td = o.matrix.Evaluate(cand.text, profile.Agency)
		}
	}

	// Crisis referrals keep their label even for a dampened profile.
	if cand.path != types.PathEscalate {
		if check := eaa.ValidateForStrategy(profile, cand.label); !check.Valid {
			logging.EAADebug("label %s rejected: %s", cand.label, check.Reason)
			cand.label = check.Fallback
		}
	}

	return types.TurnResult{
		DecisionID:   uuid.NewString(),
		ResponseText: cand.text,
		Label:        cand.label,
		Emotion:      emotion,
		Confidence:   cand.conf,
		RuleID:       ruleID,
		Path:         cand.path,
		Plan:         cand.plan,
		EAA:          profile,
		TD:           td,
		Rubrics:      scored,
		Safety:       assessment,
		NeedsReview:  needsReview,
		Healed:       healed,
	}
}

// =============================================================================
// AUTO-HEAL
// =============================================================================

// heal converts a fatal pipeline error into a deliverable result: retry for
// transient failures, template fallback for generation failures, HITL
// escalation for everything else.
func (o *Orchestrator) heal(ctx context.Context, in types.TurnInput, cause error) types.TurnResult {
	audit := logging.AuditWithConversation(in.ConversationID)

	if errors.Is(cause, context.DeadlineExceeded) || errors.Is(cause, core.ErrStoreUnavailable) {
		logging.Healing("retrying turn after %v: %v", o.healBackoff, cause)
		audit.Log(logging.AuditEvent{
			EventType: logging.AuditHealAttempt,
			Category:  string(logging.CategoryHealing),
			Error:     cause.Error(),
		})
		o.emit(in, trace.StageHealing, "retry after %s", o.healBackoff)

		time.Sleep(o.healBackoff)
		retryCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if result, err := o.processTurn(retryCtx, in); err == nil {
			result.Healed = true
			return result
		} else {
			logging.HealingWarn("retry failed: %v", err)
			cause = err
		}
	}

	if errors.Is(cause, core.ErrValidationFailed) || errors.Is(cause, core.ErrNoCompletion) {
		logging.Healing("template fallback for: %v", cause)
		o.emit(in, trace.StageHealing, "template fallback")
		cand := o.templateCandidate(EmotionNeutral, 0.5)
		return types.TurnResult{
			DecisionID:   uuid.NewString(),
			ResponseText: cand.text,
			Label:        cand.label,
			Emotion:      EmotionNeutral,
			Confidence:   cand.conf,
			RuleID:       "auto_heal",
			Path:         types.PathFallback,
			Healed:       true,
		}
	}

	logging.HealingError("escalating to review: %v", cause)
	audit.Log(logging.AuditEvent{
		EventType: logging.AuditHealEscalate,
		Category:  string(logging.CategoryHealing),
		Error:     cause.Error(),
	})
	o.emit(in, trace.StageHealing, "escalated to review")

	return types.TurnResult{
		DecisionID:   uuid.NewString(),
		ResponseText: reviewResponse,
		Label:        types.LabelFout,
		Emotion:      EmotionNeutral,
		Confidence:   0.3,
		RuleID:       "auto_heal",
		Path:         types.PathFallback,
		NeedsReview:  true,
	}
}

// =============================================================================
// PERSISTENCE
// =============================================================================

func (o *Orchestrator) persist(in types.TurnInput, result types.TurnResult) {
	if o.store == nil {
		return
	}
	audit := logging.AuditWithConversation(in.ConversationID)

	err := o.store.RecordDecision(store.DecisionRecord{
		ConversationID: in.ConversationID,
		Path:           result.Path,
		RuleID:         result.RuleID,
		Label:          result.Label,
		Confidence:     result.Confidence,
		Response:       result.ResponseText,
		Blocked:        result.Blocked,
		Healed:         result.Healed,
	})
	if err != nil {
		logging.OrchestratorWarn("decision not recorded: %v", err)
		audit.LogError(logging.AuditStoreWrite, "decision_log", err)
	}

	if err := o.store.StoreTurn(in.ConversationID, in.TurnIndex, in.Message,
		result.ResponseText, result.Label, result.Confidence); err != nil {
		logging.OrchestratorWarn("turn not recorded: %v", err)
		audit.LogError(logging.AuditStoreWrite, "conversation_turns", err)
	}
}
