package config

import "fmt"

// RecoveryConfig configures targeted recovery passes over the reject log.
//
// The relaxation factors are deliberately tunable policy inputs rather
// than fixed constants: how far structural bounds widen and how much the
// grounding requirement drops for a relaxed pass is a product decision.
type RecoveryConfig struct {
	// RetryCeiling is the per-item cap across all recovery passes
	// combined. Items exceeding it are parked as abandoned.
	RetryCeiling int `yaml:"retry_ceiling"`
	// RelaxCountFactor multiplies max unit/word bounds (and divides
	// min bounds) in relaxed-validation mode.
	RelaxCountFactor float64 `yaml:"relax_count_factor"`
	// RelaxOverlapFactor multiplies the grounding-overlap requirement
	// in relaxed-validation mode.
	RelaxOverlapFactor float64 `yaml:"relax_overlap_factor"`
}

// DefaultRecoveryConfig returns the recovery defaults.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		RetryCeiling:       4,
		RelaxCountFactor:   1.5,
		RelaxOverlapFactor: 0.67,
	}
}

func (c *RecoveryConfig) validate() error {
	if c.RetryCeiling < 1 {
		return fmt.Errorf("recovery.retry_ceiling must be >= 1")
	}
	if c.RelaxCountFactor < 1 {
		return fmt.Errorf("recovery.relax_count_factor must be >= 1")
	}
	if c.RelaxOverlapFactor <= 0 || c.RelaxOverlapFactor > 1 {
		return fmt.Errorf("recovery.relax_overlap_factor must be in (0,1]")
	}
	return nil
}
