// Package knowledge ranks curated seeds against the current turn and
// synthesizes new seeds when the store has no answer.
package knowledge

import (
	"regexp"
	"sort"
	"strings"

	"evai/internal/config"
	"evai/internal/logging"
	"evai/internal/types"
)

// =============================================================================
// CONTEXT FILTER
// =============================================================================

var (
	reShortGreeting  = regexp.MustCompile(`(?i)^(hi|hallo|hey|hoi|dag)`)
	reReflectiveSeed = regexp.MustCompile(`(?i)wat zou er gebeuren|hoe zou het zijn|denk eens na|zou je|als je`)
)

// filterByContext drops reflective seeds when the user opens with a bare
// greeting. A reflection prompt on "hoi" reads as interrogation.
func filterByContext(seeds []types.KnowledgeSeed, message string, conversationLength int) []types.KnowledgeSeed {
	if !reShortGreeting.MatchString(strings.TrimSpace(message)) || conversationLength != 0 {
		return seeds
	}

	filtered := make([]types.KnowledgeSeed, 0, len(seeds))
	for _, seed := range seeds {
		if reReflectiveSeed.MatchString(seed.ResponseText) {
			logging.KnowledgeDebug("filtered reflective seed for greeting: %s", seed.ID)
			continue
		}
		filtered = append(filtered, seed)
	}
	return filtered
}

// =============================================================================
// RANKING
// =============================================================================

// Query is the turn state seeds are ranked against.
type Query struct {
	Message            string
	DetectedEmotion    string             // dominant rubric pattern, "" when none
	DislikedLabel      string             // label the user pushed back on, "" when none
	Similarities       map[string]float64 // seed ID -> embedding cosine, may be nil
	ConversationLength int
}

// Ranker scores seeds for relevance to a turn.
type Ranker struct {
	cfg config.RankingConfig
}

// NewRanker creates a ranker with the given weights.
func NewRanker(cfg config.RankingConfig) *Ranker {
	return &Ranker{cfg: cfg}
}

// Rank filters, scores and orders seeds for the turn, returning at most
// TopN results in descending score order. Scoring is additive on top of
// each seed's base confidence and capped at 1.0.
func (r *Ranker) Rank(seeds []types.KnowledgeSeed, q Query) []types.RankedSeed {
	timer := logging.StartTimer(logging.CategoryKnowledge, "Rank")
	defer timer.StopWithDetail("%d candidates", len(seeds))

	candidates := filterByContext(seeds, q.Message, q.ConversationLength)
	input := strings.ToLower(q.Message)
	detected := strings.ToLower(q.DetectedEmotion)

	ranked := make([]types.RankedSeed, 0, len(candidates))
	for _, seed := range candidates {
		score := seed.BaseConfidence

		if detected != "" && emotionMatches(seed.Emotions, detected) {
			score += r.cfg.EmotionOverlapBonus
		}
		if emotionInText(seed.Emotions, input) {
			score += r.cfg.QueryEmotionBonus
		}
		if triggerInText(seed.Triggers, input) {
			score += r.cfg.TriggerBonus
		}

		similarity := q.Similarities[seed.ID]
		score += similarity * r.cfg.SimilarityWeight

		usageBonus := float64(seed.UsageCount) * r.cfg.UsageBonusPerUse
		if usageBonus > r.cfg.UsageBonusCap {
			usageBonus = r.cfg.UsageBonusCap
		}
		score += usageBonus

		if q.DislikedLabel != "" && seed.Label == q.DislikedLabel {
			score *= r.cfg.DislikedPenalty
		}

		if score > 1.0 {
			score = 1.0
		}

		ranked = append(ranked, types.RankedSeed{Seed: seed, Score: score, Similarity: similarity})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > r.cfg.TopN {
		ranked = ranked[:r.cfg.TopN]
	}
	return ranked
}

// UsageUpdates returns the seed IDs whose usage counters should be bumped
// after a decision, the top UsageTrackTopN of the ranking.
func (r *Ranker) UsageUpdates(ranked []types.RankedSeed) []string {
	n := r.cfg.UsageTrackTopN
	if len(ranked) < n {
		n = len(ranked)
	}
	ids := make([]string, 0, n)
	for _, rs := range ranked[:n] {
		ids = append(ids, rs.Seed.ID)
	}
	return ids
}

func emotionMatches(emotions []string, detected string) bool {
	for _, e := range emotions {
		if strings.Contains(strings.ToLower(e), detected) {
			return true
		}
	}
	return false
}

func emotionInText(emotions []string, input string) bool {
	for _, e := range emotions {
		if e != "" && strings.Contains(input, strings.ToLower(e)) {
			return true
		}
	}
	return false
}

func triggerInText(triggers []string, input string) bool {
	for _, t := range triggers {
		if t != "" && strings.Contains(input, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

// =============================================================================
// LABEL SELECTION
// =============================================================================

// SelectLabel picks the response label for a seed decision. A disliked
// label rotates forward (Valideren -> Reflectievraag -> Suggestie ->
// Valideren); otherwise the seed's type decides.
func SelectLabel(seedType, dislikedLabel string) string {
	if dislikedLabel != "" {
		switch dislikedLabel {
		case types.LabelValideren:
			return types.LabelReflectievraag
		case types.LabelReflectievraag:
			return types.LabelSuggestie
		default:
			return types.LabelValideren
		}
	}

	switch seedType {
	case "reflection":
		return types.LabelReflectievraag
	case "suggestion":
		return types.LabelSuggestie
	default:
		return types.LabelValideren
	}
}
