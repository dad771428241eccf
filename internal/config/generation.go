package config

import (
	"fmt"
	"time"
)

// GenerationConfig configures the text-generation client.
type GenerationConfig struct {
	// Provider selects the client implementation: "gemini" or "mock".
	Provider string `yaml:"provider"`
	// APIKey authenticates against the provider. Usually supplied via
	// COPYFORGE_API_KEY rather than the file.
	APIKey string `yaml:"api_key"`
	// PrimaryModel and EscalatedModel map the two quality/cost tiers.
	PrimaryModel   string `yaml:"primary_model"`
	EscalatedModel string `yaml:"escalated_model"`
	// Timeout bounds a single generation call.
	Timeout string `yaml:"timeout"`
	// MaxEvidenceBytes caps how much evidence text enters the prompt.
	MaxEvidenceBytes int `yaml:"max_evidence_bytes"`
	// Cost rates per 1k tokens, by tier, used by the budget ledger.
	PrimaryInputCostPer1K    float64 `yaml:"primary_input_cost_per_1k"`
	PrimaryOutputCostPer1K   float64 `yaml:"primary_output_cost_per_1k"`
	EscalatedInputCostPer1K  float64 `yaml:"escalated_input_cost_per_1k"`
	EscalatedOutputCostPer1K float64 `yaml:"escalated_output_cost_per_1k"`
}

// DefaultGenerationConfig returns the generation defaults.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Provider:                 "gemini",
		PrimaryModel:             "gemini-2.5-flash",
		EscalatedModel:           "gemini-2.5-pro",
		Timeout:                  "120s",
		MaxEvidenceBytes:         24 << 10,
		PrimaryInputCostPer1K:    0.00015,
		PrimaryOutputCostPer1K:   0.0006,
		EscalatedInputCostPer1K:  0.00125,
		EscalatedOutputCostPer1K: 0.01,
	}
}

func (c *GenerationConfig) validate() error {
	switch c.Provider {
	case "gemini", "mock":
	default:
		return fmt.Errorf("generation.provider must be gemini or mock, got %q", c.Provider)
	}
	if c.PrimaryModel == "" || c.EscalatedModel == "" {
		return fmt.Errorf("generation: both tier models are required")
	}
	if c.MaxEvidenceBytes <= 0 {
		return fmt.Errorf("generation.max_evidence_bytes must be positive")
	}
	if _, err := parseDuration(c.Timeout, time.Minute); err != nil {
		return fmt.Errorf("generation.timeout: %w", err)
	}
	return nil
}

// TimeoutDuration returns the parsed call timeout.
func (c *GenerationConfig) TimeoutDuration() time.Duration {
	d, _ := parseDuration(c.Timeout, 2*time.Minute)
	return d
}
