package knowledge

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evai/internal/config"
	"evai/internal/types"
)

func testRanker() *Ranker {
	return NewRanker(config.DefaultConfig().Ranking)
}

// ===== RANKING =====

func TestRankAdditiveScoring(t *testing.T) {
	r := testRanker()

	seeds := []types.KnowledgeSeed{{
		ID:             "seed-1",
		Type:           "validation",
		Label:          types.LabelValideren,
		Emotions:       []string{"boos"},
		Triggers:       []string{"werk"},
		BaseConfidence: 0.2,
		UsageCount:     5,
	}}

	ranked := r.Rank(seeds, Query{
		Message:            "dat maakt me boos",
		Similarities:       map[string]float64{"seed-1": 0.5},
		ConversationLength: 3,
	})
	require.Len(t, ranked, 1)
	// 0.2 base + 0.3 emotion in text + 0.15 similarity + 0.05 usage
	assert.InDelta(t, 0.7, ranked[0].Score, 1e-9)
	assert.Equal(t, 0.5, ranked[0].Similarity)
}

func TestRankCapsAtOne(t *testing.T) {
	r := testRanker()

	seeds := []types.KnowledgeSeed{{
		ID:             "seed-1",
		Emotions:       []string{"eenzaam"},
		Triggers:       []string{"alleen"},
		BaseConfidence: 0.5,
	}}

	ranked := r.Rank(seeds, Query{
		Message:            "ik voel me zo eenzaam en alleen",
		DetectedEmotion:    "eenzaam",
		ConversationLength: 2,
	})
	require.Len(t, ranked, 1)
	assert.Equal(t, 1.0, ranked[0].Score)
}

func TestRankUsageBonusIsCapped(t *testing.T) {
	r := testRanker()

	seeds := []types.KnowledgeSeed{{
		ID:             "seed-1",
		BaseConfidence: 0.5,
		UsageCount:     50,
	}}

	ranked := r.Rank(seeds, Query{Message: "gaat over iets anders", ConversationLength: 1})
	require.Len(t, ranked, 1)
	assert.InDelta(t, 0.6, ranked[0].Score, 1e-9, "usage bonus stops at the cap")
}

func TestRankDislikedLabelDemotes(t *testing.T) {
	r := testRanker()

	seeds := []types.KnowledgeSeed{
		{ID: "liked", Label: types.LabelReflectievraag, BaseConfidence: 0.5},
		{ID: "disliked", Label: types.LabelValideren, BaseConfidence: 0.9},
	}

	ranked := r.Rank(seeds, Query{
		Message:            "ik weet het even niet",
		DislikedLabel:      types.LabelValideren,
		ConversationLength: 4,
	})
	require.Len(t, ranked, 2)
	assert.Equal(t, "liked", ranked[0].Seed.ID, "demoted seed loses its lead")
	assert.InDelta(t, 0.27, ranked[1].Score, 1e-9)
}

func TestRankDropsReflectiveSeedsForOpeningGreeting(t *testing.T) {
	r := testRanker()

	seeds := []types.KnowledgeSeed{
		{ID: "reflective", ResponseText: "Wat zou er gebeuren als je het loslaat?", BaseConfidence: 0.9},
		{ID: "plain", ResponseText: "Fijn dat je er bent.", BaseConfidence: 0.5},
	}

	opening := r.Rank(seeds, Query{Message: "hoi", ConversationLength: 0})
	require.Len(t, opening, 1)
	assert.Equal(t, "plain", opening[0].Seed.ID)

	later := r.Rank(seeds, Query{Message: "hoi", ConversationLength: 2})
	assert.Len(t, later, 2, "filter only applies to the opening message")
}

func TestRankReturnsTopN(t *testing.T) {
	r := testRanker()

	var seeds []types.KnowledgeSeed
	for i := 0; i < 8; i++ {
		seeds = append(seeds, types.KnowledgeSeed{
			ID:             fmt.Sprintf("seed-%d", i),
			BaseConfidence: 0.1 * float64(i+1),
		})
	}

	ranked := r.Rank(seeds, Query{Message: "iets", ConversationLength: 1})
	require.Len(t, ranked, 5)
	assert.Equal(t, "seed-7", ranked[0].Seed.ID, "highest base confidence first")
}

func TestUsageUpdates(t *testing.T) {
	r := testRanker()

	ranked := []types.RankedSeed{
		{Seed: types.KnowledgeSeed{ID: "a"}},
		{Seed: types.KnowledgeSeed{ID: "b"}},
		{Seed: types.KnowledgeSeed{ID: "c"}},
		{Seed: types.KnowledgeSeed{ID: "d"}},
	}
	assert.Equal(t, []string{"a", "b", "c"}, r.UsageUpdates(ranked))
	assert.Equal(t, []string{"a"}, r.UsageUpdates(ranked[:1]))
}

// ===== LABEL SELECTION =====

func TestSelectLabel(t *testing.T) {
	tests := []struct {
		name     string
		seedType string
		disliked string
		want     string
	}{
		{"validation type", "validation", "", types.LabelValideren},
		{"reflection type", "reflection", "", types.LabelReflectievraag},
		{"suggestion type", "suggestion", "", types.LabelSuggestie},
		{"unknown type", "anything", "", types.LabelValideren},
		{"rotate from validate", "validation", types.LabelValideren, types.LabelReflectievraag},
		{"rotate from reflect", "validation", types.LabelReflectievraag, types.LabelSuggestie},
		{"rotate from suggest", "validation", types.LabelSuggestie, types.LabelValideren},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectLabel(tt.seedType, tt.disliked))
		})
	}
}

// ===== GAP DETECTION =====

func TestGapTriggered(t *testing.T) {
	assert.True(t, Gap{NoMatch: true, PrevConfidence: 0.9}.Triggered())
	assert.True(t, Gap{PrevConfidence: 0.4}.Triggered())
	assert.True(t, Gap{Message: "nee, dat bedoel ik niet", PrevConfidence: 0.9}.Triggered())
	assert.False(t, Gap{Message: "dank je wel", PrevConfidence: 0.9}.Triggered())
}

func TestGapSeverity(t *testing.T) {
	tests := []struct {
		risk float64
		want string
	}{
		{85, "critical"},
		{60, "high"},
		{40, "medium"},
		{30, "low"},
		{0, "low"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Gap{RiskScore: tt.risk}.Severity())
	}
}

// ===== LEARNING =====

type stubLLM struct {
	response string
	err      error
}

func (s *stubLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return s.response, s.err
}

func (s *stubLLM) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return s.response, s.err
}

func TestLearnFromGapSynthesizesSeed(t *testing.T) {
	llm := &stubLLM{response: "```json\n{\"type\":\"reflection\",\"emotions\":[\"verdrietig\"],\"triggers\":[\"verlies\"],\"response_text\":\"Dat klinkt als een groot verlies. Wil je er meer over vertellen?\"}\n```"}
	learner := NewLearner(llm, nil, config.DefaultConfig().Orchestrator)

	seed, err := learner.LearnFromGap(context.Background(), Gap{
		Message: "mijn vader is overleden",
		Emotion: "verdrietig",
		NoMatch: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, seed.ID)
	assert.Equal(t, "reflection", seed.Type)
	assert.Equal(t, types.LabelReflectievraag, seed.Label)
	assert.Equal(t, 0.75, seed.BaseConfidence)
	assert.True(t, seed.Learned)
}

func TestLearnFromGapGateRejection(t *testing.T) {
	llm := &stubLLM{response: `{"type":"suggestion","response_text":"Probeer dit eens."}`}
	gate := func(text string) error { return errors.New("dominance too high") }
	learner := NewLearner(llm, gate, config.DefaultConfig().Orchestrator)

	seed, err := learner.LearnFromGap(context.Background(), Gap{Message: "help", NoMatch: true})
	assert.Error(t, err)
	assert.Nil(t, seed)
}

func TestLearnFromGapBadJSON(t *testing.T) {
	llm := &stubLLM{response: "sorry, ik kan dit niet"}
	learner := NewLearner(llm, nil, config.DefaultConfig().Orchestrator)

	seed, err := learner.LearnFromGap(context.Background(), Gap{Message: "help", NoMatch: true})
	assert.Error(t, err)
	assert.Nil(t, seed)
}

func TestLearnFromGapLLMError(t *testing.T) {
	llm := &stubLLM{err: errors.New("rate limited")}
	learner := NewLearner(llm, nil, config.DefaultConfig().Orchestrator)

	_, err := learner.LearnFromGap(context.Background(), Gap{Message: "help", NoMatch: true})
	assert.Error(t, err)
}
