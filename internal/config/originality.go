package config

import "fmt"

// OriginalityConfig configures the cross-item fingerprint guard.
type OriginalityConfig struct {
	// ShingleSize is the word n-gram width.
	ShingleSize int `yaml:"shingle_size"`
	// SimilarityThreshold forces a rewrite at or above this Jaccard
	// similarity against the rolling window.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	// WindowSize bounds the resident rolling window.
	WindowSize int `yaml:"window_size"`
	// ReloadTail is how many persisted entries are reloaded on startup.
	ReloadTail int `yaml:"reload_tail"`
	// RotateAbove compacts the fingerprint log once it exceeds this
	// many entries, keeping ReloadTail of them.
	RotateAbove int `yaml:"rotate_above"`
}

// DefaultOriginalityConfig returns the guard defaults.
func DefaultOriginalityConfig() OriginalityConfig {
	return OriginalityConfig{
		ShingleSize:         3,
		SimilarityThreshold: 0.40,
		WindowSize:          1000,
		ReloadTail:          2000,
		RotateAbove:         10000,
	}
}

func (c *OriginalityConfig) validate() error {
	if c.ShingleSize < 1 {
		return fmt.Errorf("originality.shingle_size must be >= 1")
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("originality.similarity_threshold must be in (0,1]")
	}
	if c.WindowSize <= 0 || c.ReloadTail < c.WindowSize {
		return fmt.Errorf("originality: reload_tail must be >= window_size > 0")
	}
	if c.RotateAbove < c.ReloadTail {
		return fmt.Errorf("originality.rotate_above must be >= reload_tail")
	}
	return nil
}
