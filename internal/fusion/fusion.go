// Package fusion combines the symbolic seed response with the neural
// candidate into one answer, weighted by how well the neural text
// preserved the seed's therapeutic intent.
package fusion

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"evai/internal/config"
	"evai/internal/core"
	"evai/internal/logging"
	"evai/internal/types"
)

// =============================================================================
// THERAPEUTIC INTENT
// =============================================================================

// Intent flags the therapeutic markers present in a text.
type Intent struct {
	Validation bool
	Reflection bool
	Suggestion bool
	Empathy    bool
}

var (
	reValidation = regexp.MustCompile(`begrijp|herken|voelt|is logisch|normaal`)
	reReflection = regexp.MustCompile(`vraag|denk|overweeg|zou kunnen|misschien`)
	reSuggestion = regexp.MustCompile(`probeer|kun je|zou je kunnen|stel voor`)
	reEmpathy    = regexp.MustCompile(`voel|moeilijk|snap|hier voor je`)
)

// ExtractIntent detects the therapeutic markers in a seed or response.
func ExtractIntent(text string) Intent {
	lower := strings.ToLower(text)
	return Intent{
		Validation: reValidation.MatchString(lower),
		Reflection: reReflection.MatchString(lower),
		Suggestion: reSuggestion.MatchString(lower),
		Empathy:    reEmpathy.MatchString(lower),
	}
}

// =============================================================================
// SIMILARITY
// =============================================================================

// Similarity is the Jaccard word overlap between two texts, ignoring
// words of one or two characters.
func Similarity(a, b string) float64 {
	wordsA := wordSet(a)
	wordsB := wordSet(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	intersection := 0
	for w := range wordsA {
		if wordsB[w] {
			intersection++
		}
	}
	union := len(wordsA) + len(wordsB) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if len(w) > 2 {
			set[w] = true
		}
	}
	return set
}

var reSentenceSplit = regexp.MustCompile(`[.!?]+`)

func splitSentences(text string) []string {
	var sentences []string
	for _, s := range reSentenceSplit.Split(text, -1) {
		s = strings.TrimSpace(s)
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// =============================================================================
// SEED TEXT GUARD
// =============================================================================

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (all |your )?(previous |earlier )?instructions`),
	regexp.MustCompile(`(?i)negeer (alle |je )?(vorige |eerdere )?instructies`),
	regexp.MustCompile(`(?i)system ?prompt`),
	regexp.MustCompile(`(?i)\{\{.*\}\}`),
}

// CheckSeedText validates a seed's text before it is injected into an LLM
// prompt template. Stored seeds are data, not instructions.
func CheckSeedText(text string) error {
	for _, p := range injectionPatterns {
		if p.MatchString(text) {
			return fmt.Errorf("%w: seed text matches injection pattern", core.ErrPromptInjection)
		}
	}
	return nil
}

// =============================================================================
// FUSION ASSEMBLY
// =============================================================================

// Input is the material the assembler fuses.
type Input struct {
	SymbolicResponse   string
	SymbolicEmotion    string
	SymbolicConfidence float64
	NeuralResponse     string
	NeuralConfidence   float64
	Validated          bool // response validation outcome
	ConstraintsOK      bool // dominance and ethics constraints
}

// therapeuticBlacklist rejects canned counselor phrasings in the neural
// candidate. The app speaks like a friend, not an intake form.
var therapeuticBlacklist = []string{
	"het is begrijpelijk",
	"veel mensen ervaren",
	"ik hoor dat je",
	"dat moet moeilijk zijn",
	"neem gerust de tijd",
	"het is oké om",
	"ik begrijp dat",
	"therapeutisch",
	"validatie",
}

// Assembler fuses symbolic and neural responses.
type Assembler struct {
	cfg config.FusionConfig
}

// NewAssembler creates an assembler with the given thresholds.
func NewAssembler(cfg config.FusionConfig) *Assembler {
	return &Assembler{cfg: cfg}
}

// Preservation is the fraction of symbolic sentences the neural response
// kept, where kept means word similarity above the sentence threshold.
func (a *Assembler) Preservation(symbolic, neural string) float64 {
	symbolicSentences := splitSentences(symbolic)
	neuralSentences := splitSentences(neural)
	if len(symbolicSentences) == 0 {
		return 0
	}

	preserved := 0
	for _, s := range symbolicSentences {
		for _, n := range neuralSentences {
			if Similarity(s, n) > a.cfg.SentenceSimThreshold {
				preserved++
				break
			}
		}
	}
	return float64(preserved) / float64(len(symbolicSentences))
}

// Assemble fuses the inputs. The symbolic and neural weights always sum
// to 1.0; fusedConfidence is the weight-blended confidence.
func (a *Assembler) Assemble(in Input) types.FusionResult {
	timer := logging.StartTimer(logging.CategoryFusion, "Assemble")
	defer timer.Stop()

	symbolicWeight := 0.6
	neuralWeight := 0.4

	if !in.Validated || !in.ConstraintsOK {
		// Validation failure: trust the rules over the model.
		symbolicWeight = 0.9
		neuralWeight = 0.1
	} else if in.SymbolicConfidence < a.cfg.LowConfidenceSymbolic {
		symbolicWeight = math.Max(0.5, symbolicWeight-0.1)
		neuralWeight = 1.0 - symbolicWeight
	}

	preservation := a.Preservation(in.SymbolicResponse, in.NeuralResponse)

	var text string
	var strategy types.FusionStrategy

	neuralLower := strings.ToLower(in.NeuralResponse)
	hasForbiddenPhrase := false
	for _, phrase := range therapeuticBlacklist {
		if strings.Contains(neuralLower, phrase) {
			hasForbiddenPhrase = true
			break
		}
	}
	tooLong := len(in.NeuralResponse) > a.cfg.MaxNeuralLength

	switch {
	case hasForbiddenPhrase:
		logging.FusionDebug("blacklisted phrase in neural response, using symbolic")
		text = in.SymbolicResponse
		strategy = types.FusionSymbolicFallback
	case tooLong && preservation > 0.5:
		logging.FusionDebug("neural response too long (%d chars), using symbolic", len(in.NeuralResponse))
		text = in.SymbolicResponse
		strategy = types.FusionSymbolicFallback
	case preservation > a.cfg.NeuralEnhancedMin:
		text = in.NeuralResponse
		strategy = types.FusionNeuralEnhanced
	case preservation > a.cfg.WeightedBlendMin:
		text = a.weightedBlend(in.SymbolicResponse, in.NeuralResponse, symbolicWeight)
		strategy = types.FusionWeightedBlend
	default:
		logging.FusionDebug("poor preservation (%.2f), falling back to symbolic", preservation)
		text = in.SymbolicResponse
		strategy = types.FusionSymbolicFallback
	}

	confidence := in.SymbolicConfidence*symbolicWeight + in.NeuralConfidence*neuralWeight

	logging.Fusion("strategy=%s weights=%.2f/%.2f preservation=%.2f", strategy, symbolicWeight, neuralWeight, preservation)
	return types.FusionResult{
		Text:           text,
		Strategy:       strategy,
		SymbolicWeight: symbolicWeight,
		NeuralWeight:   neuralWeight,
		Preservation:   preservation,
		Confidence:     confidence,
	}
}

// SymbolicFallback is the assembly used when fusion cannot run at all:
// ethics halt, dominance block, or an upstream error.
func (a *Assembler) SymbolicFallback(in Input) types.FusionResult {
	return types.FusionResult{
		Text:           in.SymbolicResponse,
		Strategy:       types.FusionSymbolicFallback,
		SymbolicWeight: 1.0,
		NeuralWeight:   0.0,
		Preservation:   0.0,
		Confidence:     in.SymbolicConfidence,
	}
}

// weightedBlend keeps the leading share of seed sentences and appends up
// to MaxNeuralAdditions neural sentences that add something new.
func (a *Assembler) weightedBlend(symbolic, neural string, weight float64) string {
	seedSentences := splitSentences(symbolic)
	neuralSentences := splitSentences(neural)

	coreCount := int(math.Ceil(float64(len(seedSentences)) * weight))
	if coreCount > len(seedSentences) {
		coreCount = len(seedSentences)
	}
	blendedSentences := append([]string{}, seedSentences[:coreCount]...)

	added := 0
	for _, n := range neuralSentences {
		if added >= a.cfg.MaxNeuralAdditions {
			break
		}
		duplicate := false
		for _, s := range seedSentences {
			if Similarity(s, n) > 0.7 {
				duplicate = true
				break
			}
		}
		if !duplicate {
			blendedSentences = append(blendedSentences, n)
			added++
		}
	}

	blended := strings.TrimSpace(strings.Join(blendedSentences, ". "))
	if !strings.HasSuffix(blended, ".") {
		blended += "."
	}
	return blended
}

// =============================================================================
// FUSION PROMPT
// =============================================================================

const fusionSystemPrompt = `Je helpt een Nederlandstalige steun-app een kernboodschap natuurlijker te verwoorden.
Behoud de betekenis en de toon van de kernboodschap. Voeg niets klinisch toe, stel geen diagnose.
Antwoord met maximaal twee korte zinnen.`

// BuildPrompt builds the system and user prompt for the LLM fusion call.
// The seed text must have passed CheckSeedText first.
func BuildPrompt(seedText, userMessage string) (systemPrompt, userPrompt string) {
	intent := ExtractIntent(seedText)
	var markers []string
	if intent.Validation {
		markers = append(markers, "validatie")
	}
	if intent.Reflection {
		markers = append(markers, "reflectie")
	}
	if intent.Suggestion {
		markers = append(markers, "suggestie")
	}
	if intent.Empathy {
		markers = append(markers, "empathie")
	}

	userPrompt = fmt.Sprintf(
		"Kernboodschap: %q\nTe behouden intentie: %s\nBericht van de gebruiker: %q\nHerschrijf de kernboodschap zodat die aansluit op het bericht.",
		seedText, strings.Join(markers, ", "), userMessage,
	)
	return fusionSystemPrompt, userPrompt
}
