// Package rubric scores user messages against the EvAI 5.6 therapeutic
// rubrics. Each rubric carries Dutch trigger words plus risk and protective
// factors; scoring is lexical and deterministic so the symbolic layer never
// depends on a model call.
package rubric

// Rubric defines one therapeutic assessment dimension.
type Rubric struct {
	ID         string
	Name       string
	Triggers   []string
	RiskWords  []string
	ProtectSet []string
	BaseWeight float64
}

// DefaultRubrics returns the EvAI 5.6 rubric set.
func DefaultRubrics() []Rubric {
	return []Rubric{
		{
			ID:         "emotional-validation",
			Name:       "Emotionele Validatie",
			Triggers:   []string{"verdrietig", "bang", "alleen", "onbegrepen", "pijn", "verloren"},
			RiskWords:  []string{"zelfverwijt", "isolatie", "hulpeloosheid"},
			ProtectSet: []string{"steun zoeken", "contact maken", "hulp accepteren"},
			BaseWeight: 1.0,
		},
		{
			ID:         "anxiety-support",
			Name:       "Angst Ondersteuning",
			Triggers:   []string{"ongerust", "paniek", "stress", "zenuwachtig", "angst"},
			RiskWords:  []string{"vermijding", "controle verlies", "catastroferen"},
			ProtectSet: []string{"ademtechnieken", "grounding", "ondersteuning"},
			BaseWeight: 1.2,
		},
		{
			ID:         "mood-regulation",
			Name:       "Stemming Regulatie",
			Triggers:   []string{"boos", "gefrustreerd", "geïrriteerd", "woedend"},
			RiskWords:  []string{"agressie", "impulsiviteit", "destructief gedrag"},
			ProtectSet: []string{"emotie regulatie", "pauze nemen", "reflectie"},
			BaseWeight: 1.1,
		},
		{
			ID:         "social-connection",
			Name:       "Sociale Verbinding",
			Triggers:   []string{"eenzaam", "uitgesloten", "niet begrepen", "geïsoleerd"},
			RiskWords:  []string{"sociale terugtrekking", "negatieve gedachten over anderen"},
			ProtectSet: []string{"contact zoeken", "gemeenschap", "delen van gevoelens"},
			BaseWeight: 0.9,
		},
		{
			ID:         "self-worth",
			Name:       "Zelfwaarde",
			Triggers:   []string{"waardeloos", "mislukking", "niet goed genoeg", "teleurstelling"},
			RiskWords:  []string{"zelfkritiek", "perfectionalisme", "vergelijking"},
			ProtectSet: []string{"zelfcompassie", "groei mindset", "kleine successen"},
			BaseWeight: 1.3,
		},
	}
}

// synonymMap expands factor words so close Dutch variants still match.
var synonymMap = map[string][]string{
	"overweldigende": {"overweldigend"},
	"overweldigend":  {"overweldigende"},
	"boos":           {"kwaad", "woedend"},
	"kwaad":          {"boos", "woedend"},
	"eenzaam":        {"alleen"},
	"alleen":         {"eenzaam"},
	"gestrest":       {"stress"},
	"stress":         {"gestrest"},
}
