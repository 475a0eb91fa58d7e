// Package config loads and validates the EvAI runtime configuration.
// Every heuristic constant in the pipeline lives here so operators can
// tune thresholds without rebuilding.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all EvAI runtime configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Embedding engine configuration
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Seed/decision store configuration
	Store StoreConfig `yaml:"store"`

	// Rubric scoring configuration
	Rubrics RubricsConfig `yaml:"rubrics"`

	// Policy decision thresholds
	Policy PolicyConfig `yaml:"policy"`

	// TD-Matrix thresholds
	TDMatrix TDMatrixConfig `yaml:"td_matrix"`

	// Knowledge ranking weights
	Ranking RankingConfig `yaml:"ranking"`

	// Fusion thresholds
	Fusion FusionConfig `yaml:"fusion"`

	// Orchestrator settings
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the neural generation backend.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini, ollama, mock
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// EmbeddingConfig configures the embedding engine.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // genai, ollama, mock
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"` // ollama server address
	Dimensions int    `yaml:"dimensions"`
	Timeout    string `yaml:"timeout"`
}

// StoreConfig configures SQLite persistence.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// RubricsConfig configures rubric scoring.
type RubricsConfig struct {
	Mode string `yaml:"mode"` // strict, balanced, flexible

	// Mode multipliers applied to base risk
	StrictMultiplier   float64 `yaml:"strict_multiplier"`
	BalancedMultiplier float64 `yaml:"balanced_multiplier"`
	FlexibleMultiplier float64 `yaml:"flexible_multiplier"`

	// Factor matching strictness for risk/protective words
	Strictness string `yaml:"strictness"` // strict, moderate, flexible

	// Protective score shaping
	ProtectiveBonus float64 `yaml:"protective_bonus"` // per protective match
	RiskPenalty     float64 `yaml:"risk_penalty"`     // per risk match

	// Trigger ratio that flags an intervention hint
	InterventionThreshold float64 `yaml:"intervention_threshold"`
}

// PolicyConfig configures the decision table thresholds.
type PolicyConfig struct {
	CrisisThreshold      float64 `yaml:"crisis_threshold"`       // crisis score for escalation
	SeedMatchThreshold   float64 `yaml:"seed_match_threshold"`   // match score for USE_SEED
	LowDistressThreshold float64 `yaml:"low_distress_threshold"` // below this, template path allowed
	GreetingDistressMax  float64 `yaml:"greeting_distress_max"`  // fast path only under this distress
	TemplateMatchMin     float64 `yaml:"template_match_min"`     // min match for TEMPLATE_ONLY
}

// TDMatrixConfig configures transactional dominance thresholds.
type TDMatrixConfig struct {
	BalancedMax    float64 `yaml:"balanced_max"`     // upper bound of the balanced band
	DominantMax    float64 `yaml:"dominant_max"`     // upper bound of the dominant band
	LowAgencyBlock float64 `yaml:"low_agency_block"` // value above this blocks when agency is low
	LowAgencyMin   float64 `yaml:"low_agency_min"`   // agency below this triggers the low-agency block
}

// RankingConfig configures knowledge seed ranking weights.
type RankingConfig struct {
	EmotionOverlapBonus float64 `yaml:"emotion_overlap_bonus"`
	QueryEmotionBonus   float64 `yaml:"query_emotion_bonus"`
	TriggerBonus        float64 `yaml:"trigger_bonus"`
	SimilarityWeight    float64 `yaml:"similarity_weight"`
	UsageBonusPerUse    float64 `yaml:"usage_bonus_per_use"`
	UsageBonusCap       float64 `yaml:"usage_bonus_cap"`
	DislikedPenalty     float64 `yaml:"disliked_penalty"` // multiplier, not subtraction
	TopN                int     `yaml:"top_n"`
	UsageTrackTopN      int     `yaml:"usage_track_top_n"`
}

// FusionConfig configures symbolic/neural fusion.
type FusionConfig struct {
	SentenceSimThreshold  float64 `yaml:"sentence_sim_threshold"`  // neural sentence counts as preserving above this
	NeuralEnhancedMin     float64 `yaml:"neural_enhanced_min"`     // preservation above this allows neural text
	WeightedBlendMin      float64 `yaml:"weighted_blend_min"`      // preservation above this allows blending
	MaxNeuralLength       int     `yaml:"max_neural_length"`       // long neural output falls back to the seed
	MaxNeuralAdditions    int     `yaml:"max_neural_additions"`    // new neural sentences kept in a blend
	LowConfidenceSymbolic float64 `yaml:"low_confidence_symbolic"` // symbolic conf below this shifts weight
}

// OrchestratorConfig configures the turn pipeline.
type OrchestratorConfig struct {
	BriefingTTL           string  `yaml:"briefing_ttl"`            // wall-clock briefing cache lifetime
	BriefingRiskThreshold float64 `yaml:"briefing_risk_threshold"` // risk above this forces a briefing
	BriefingEarlyTurns    int     `yaml:"briefing_early_turns"`    // early turn window for complex messages
	BriefingLowConfidence float64 `yaml:"briefing_low_confidence"` // previous confidence below this forces one
	FastPathRiskMax       float64 `yaml:"fast_path_risk_max"`      // greeting risk above this takes the full pipeline
	LearnerConfidence     float64 `yaml:"learner_confidence"`      // confidence of freshly learned seeds
	HealRetryBackoff      string  `yaml:"heal_retry_backoff"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level     string `yaml:"level"` // debug, info, warn, error
	DebugMode bool   `yaml:"debug_mode"`
	Format    string `yaml:"format"` // json, text
}

// DefaultConfig returns the default configuration. The numeric defaults are
// the canonical pipeline constants.
func DefaultConfig() *Config {
	return &Config{
		Name:    "evai",
		Version: "1.0.0",

		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-3-flash-preview",
			BaseURL:  "https://generativelanguage.googleapis.com/v1beta",
			Timeout:  "60s",
		},

		Embedding: EmbeddingConfig{
			Provider:   "genai",
			Model:      "gemini-embedding-001",
			BaseURL:    "http://localhost:11434",
			Dimensions: 768,
			Timeout:    "30s",
		},

		Store: StoreConfig{
			DatabasePath: ".evai/evai.db",
		},

		Rubrics: RubricsConfig{
			Mode:                  "balanced",
			StrictMultiplier:      1.3,
			BalancedMultiplier:    1.0,
			FlexibleMultiplier:    0.7,
			Strictness:            "moderate",
			ProtectiveBonus:       25,
			RiskPenalty:           15,
			InterventionThreshold: 0.6,
		},

		Policy: PolicyConfig{
			CrisisThreshold:      80,
			SeedMatchThreshold:   0.88,
			LowDistressThreshold: 35,
			GreetingDistressMax:  50,
			TemplateMatchMin:     0.65,
		},

		TDMatrix: TDMatrixConfig{
			BalancedMax:    0.6,
			DominantMax:    0.8,
			LowAgencyBlock: 0.7,
			LowAgencyMin:   0.3,
		},

		Ranking: RankingConfig{
			EmotionOverlapBonus: 0.4,
			QueryEmotionBonus:   0.3,
			TriggerBonus:        0.2,
			SimilarityWeight:    0.3,
			UsageBonusPerUse:    0.01,
			UsageBonusCap:       0.1,
			DislikedPenalty:     0.3,
			TopN:                5,
			UsageTrackTopN:      3,
		},

		Fusion: FusionConfig{
			SentenceSimThreshold:  0.6,
			NeuralEnhancedMin:     0.7,
			WeightedBlendMin:      0.4,
			MaxNeuralLength:       120,
			MaxNeuralAdditions:    2,
			LowConfidenceSymbolic: 0.6,
		},

		Orchestrator: OrchestratorConfig{
			BriefingTTL:           "5m",
			BriefingRiskThreshold: 70,
			BriefingEarlyTurns:    3,
			BriefingLowConfidence: 0.6,
			FastPathRiskMax:       60,
			LearnerConfidence:     0.75,
			HealRetryBackoff:      "500ms",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults for
// anything unset. Environment overrides take final precedence.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Validate checks that tunables are inside sane ranges.
func (c *Config) Validate() error {
	switch c.Rubrics.Mode {
	case "strict", "balanced", "flexible":
	default:
		return fmt.Errorf("invalid rubrics mode %q", c.Rubrics.Mode)
	}
	switch c.Rubrics.Strictness {
	case "strict", "moderate", "flexible":
	default:
		return fmt.Errorf("invalid rubrics strictness %q", c.Rubrics.Strictness)
	}
	if c.Policy.CrisisThreshold < 0 || c.Policy.CrisisThreshold > 100 {
		return fmt.Errorf("crisis_threshold must be in [0,100], got %v", c.Policy.CrisisThreshold)
	}
	if c.Policy.SeedMatchThreshold < 0 || c.Policy.SeedMatchThreshold > 1 {
		return fmt.Errorf("seed_match_threshold must be in [0,1], got %v", c.Policy.SeedMatchThreshold)
	}
	if c.TDMatrix.BalancedMax >= c.TDMatrix.DominantMax {
		return fmt.Errorf("td_matrix balanced_max (%v) must be below dominant_max (%v)",
			c.TDMatrix.BalancedMax, c.TDMatrix.DominantMax)
	}
	if c.Ranking.TopN <= 0 {
		return fmt.Errorf("ranking top_n must be positive, got %d", c.Ranking.TopN)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// API keys from environment (check in priority order)
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "gemini"
		}
		if c.Embedding.APIKey == "" {
			c.Embedding.APIKey = key
		}
	}
	if key := os.Getenv("EVAI_LLM_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("EVAI_EMBEDDING_API_KEY"); key != "" {
		c.Embedding.APIKey = key
	}

	if provider := os.Getenv("EVAI_LLM_PROVIDER"); provider != "" {
		c.LLM.Provider = provider
	}
	if model := os.Getenv("EVAI_LLM_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if url := os.Getenv("EVAI_LLM_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}

	if path := os.Getenv("EVAI_DB_PATH"); path != "" {
		c.Store.DatabasePath = path
	}

	if mode := os.Getenv("EVAI_RUBRIC_MODE"); mode != "" {
		c.Rubrics.Mode = mode
	}
	if v := os.Getenv("EVAI_CRISIS_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Policy.CrisisThreshold = f
		}
	}

	if level := os.Getenv("EVAI_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if os.Getenv("EVAI_DEBUG") == "1" || os.Getenv("EVAI_DEBUG") == "true" {
		c.Logging.DebugMode = true
		c.Logging.Level = "debug"
	}
}
