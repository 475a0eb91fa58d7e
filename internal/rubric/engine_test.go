package rubric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evai/internal/config"
	"evai/internal/types"
)

func newTestEngine(mode string) *Engine {
	cfg := config.DefaultConfig().Rubrics
	cfg.Mode = mode
	return NewEngine(cfg)
}

func TestScoreEmptyMessage(t *testing.T) {
	result := newTestEngine("balanced").Score("")

	assert.Empty(t, result.Scores)
	assert.Equal(t, 0.0, result.OverallRisk)
	assert.Equal(t, 0.0, result.OverallProtective)
	assert.Equal(t, "none", result.DominantPattern)
}

func TestScoreSkipsUntriggeredRubrics(t *testing.T) {
	// Only anxiety triggers present
	result := newTestEngine("balanced").Score("ik heb zoveel stress en paniek")

	require.Len(t, result.Scores, 1)
	assert.Equal(t, "anxiety-support", result.Scores[0].RubricID)
	assert.Equal(t, "anxiety-support", result.DominantPattern)
}

func TestScoreRiskCalculation(t *testing.T) {
	// 2 of 5 anxiety triggers: base 40, balanced x1.0, weight 1.2 -> 48
	result := newTestEngine("balanced").Score("stress en angst vandaag")

	require.Len(t, result.Scores, 1)
	score := result.Scores[0]
	assert.InDelta(t, 48.0, score.RiskScore, 0.01)
	assert.Equal(t, types.ConfidenceMedium, score.Confidence)
}

func TestScoreModeMultipliers(t *testing.T) {
	msg := "stress en angst vandaag"

	strict := newTestEngine("strict").Score(msg).Scores[0].RiskScore
	balanced := newTestEngine("balanced").Score(msg).Scores[0].RiskScore
	flexible := newTestEngine("flexible").Score(msg).Scores[0].RiskScore

	assert.Greater(t, strict, balanced)
	assert.Greater(t, balanced, flexible)
	assert.InDelta(t, 48.0*1.3, strict, 0.01)
	assert.InDelta(t, 48.0*0.7, flexible, 0.01)
}

func TestScoreCapsAtHundred(t *testing.T) {
	// All four mood triggers: base 100 x1.3 x1.1 would exceed 100
	result := newTestEngine("strict").Score("boos gefrustreerd geïrriteerd woedend")

	require.Len(t, result.Scores, 1)
	assert.Equal(t, 100.0, result.Scores[0].RiskScore)
	assert.Equal(t, types.ConfidenceHigh, result.Scores[0].Confidence)
	assert.True(t, result.Scores[0].InterventionHint)
}

func TestProtectiveScoring(t *testing.T) {
	// Trigger word plus two protective factors, no risk factors
	result := newTestEngine("balanced").Score("ik voel me bang maar ik wil steun zoeken en hulp accepteren")

	require.NotEmpty(t, result.Scores)
	var validation *types.RubricScore
	for i := range result.Scores {
		if result.Scores[i].RubricID == "emotional-validation" {
			validation = &result.Scores[i]
		}
	}
	require.NotNil(t, validation)
	assert.Equal(t, 50.0, validation.ProtectiveScore)
	assert.Len(t, validation.MatchedProtect, 2)
}

func TestProtectiveScoreNeverNegative(t *testing.T) {
	// Risk factors without protective factors
	result := newTestEngine("balanced").Score("verdrietig door zelfverwijt en isolatie")

	require.NotEmpty(t, result.Scores)
	for _, s := range result.Scores {
		assert.GreaterOrEqual(t, s.ProtectiveScore, 0.0)
	}
}

func TestSynonymMatching(t *testing.T) {
	cfg := config.DefaultConfig().Rubrics
	cfg.Strictness = "flexible"
	e := NewEngineWithRubrics(cfg, []Rubric{{
		ID:         "test",
		Triggers:   []string{"kwaad"},
		RiskWords:  []string{"boos"}, // should match "kwaad" via synonym
		BaseWeight: 1.0,
	}})

	result := e.Score("ik ben zo kwaad")
	require.Len(t, result.Scores, 1)
	assert.Len(t, result.Scores[0].MatchedRisk, 1)
}

func TestFactorStrictness(t *testing.T) {
	rubrics := []Rubric{{
		ID:         "test",
		Triggers:   []string{"verdrietig"},
		RiskWords:  []string{"sociale terugtrekking"},
		BaseWeight: 1.0,
	}}

	tests := []struct {
		strictness string
		message    string
		wantMatch  bool
	}{
		{"strict", "verdrietig door sociale terugtrekking", true},
		{"strict", "verdrietig en sociale druk", false},
		{"moderate", "verdrietig en sociale druk", true}, // 1 of 2 words
		{"flexible", "verdrietig door terugtrekking", true},
	}

	for _, tt := range tests {
		t.Run(tt.strictness+"/"+tt.message, func(t *testing.T) {
			cfg := config.DefaultConfig().Rubrics
			cfg.Strictness = tt.strictness
			result := NewEngineWithRubrics(cfg, rubrics).Score(tt.message)
			require.Len(t, result.Scores, 1)
			assert.Equal(t, tt.wantMatch, len(result.Scores[0].MatchedRisk) == 1)
		})
	}
}

func TestOverallRiskConfidenceWeighting(t *testing.T) {
	// Two rubrics with different confidence should weight toward high confidence
	result := newTestEngine("balanced").Score(
		"boos gefrustreerd geïrriteerd woedend en een beetje verdrietig")

	require.Len(t, result.Scores, 2)
	assert.Equal(t, "mood-regulation", result.DominantPattern)
	// Weighted average must sit between the two scores, closer to mood-regulation
	var mood, emo float64
	for _, s := range result.Scores {
		if s.RubricID == "mood-regulation" {
			mood = s.RiskScore
		} else {
			emo = s.RiskScore
		}
	}
	assert.Greater(t, result.OverallRisk, emo)
	assert.Less(t, result.OverallRisk, mood)
	mid := (mood + emo) / 2
	assert.Greater(t, result.OverallRisk, mid)
}
