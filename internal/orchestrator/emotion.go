package orchestrator

import "strings"

// EmotionDetector labels the dominant emotion of a message. The pipeline
// only needs a coarse Dutch label for seed matching and templates, so the
// default implementation is a keyword heuristic. A real classifier can be
// plugged in through this interface.
type EmotionDetector interface {
	Detect(message string) string
}

// EmotionNeutral is returned when no emotion keyword matches.
const EmotionNeutral = "neutraal"

// KeywordEmotions is the heuristic detector used by default.
type KeywordEmotions struct{}

// NewKeywordEmotions creates the keyword heuristic detector.
func NewKeywordEmotions() *KeywordEmotions {
	return &KeywordEmotions{}
}

// emotionKeywords is ordered so ties resolve the same way every run.
var emotionKeywords = []struct {
	emotion  string
	keywords []string
}{
	{"verdrietig", []string{"verdriet", "huil", "somber", "verloren", "gemis", "rouw"}},
	{"angstig", []string{"bang", "angst", "paniek", "zenuw", "onzeker", "eng"}},
	{"boos", []string{"boos", "woede", "kwaad", "gefrustreerd", "oneerlijk", "irritant"}},
	{"eenzaam", []string{"eenzaam", "alleen", "niemand", "geïsoleerd"}},
	{"gestrest", []string{"stress", "druk", "overweldigd", "uitgeput", "teveel", "moe"}},
	{"blij", []string{"blij", "dankbaar", "opgelucht", "trots", "fijn"}},
}

// Detect returns the emotion with the most keyword hits, or neutraal.
func (d *KeywordEmotions) Detect(message string) string {
	lower := strings.ToLower(message)

	best := EmotionNeutral
	bestHits := 0
	for _, entry := range emotionKeywords {
		hits := 0
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best = entry.emotion
			bestHits = hits
		}
	}
	return best
}
