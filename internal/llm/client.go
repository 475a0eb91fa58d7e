package llm

import (
	"fmt"
	"time"

	"evai/internal/config"
	"evai/internal/core"
)

// NewClient creates an LLM client from the app configuration.
func NewClient(cfg config.LLMConfig) (core.LLMClient, error) {
	switch cfg.Provider {
	case "gemini":
		timeout, err := time.ParseDuration(cfg.Timeout)
		if err != nil || timeout <= 0 {
			timeout = 60 * time.Second
		}
		return NewGeminiClientWithConfig(GeminiConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: timeout,
		}), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s (use 'gemini' or 'mock')", cfg.Provider)
	}
}
