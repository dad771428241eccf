package config

import (
	"fmt"
	"time"
)

// CheckpointConfig configures the durable item-state store.
type CheckpointConfig struct {
	// LeaseTimeout is how long an in-flight claim survives before a
	// restart reclaims the item as pending.
	LeaseTimeout string `yaml:"lease_timeout"`
	// Override allows reprocessing items already Done or Rejected.
	// Only targeted recovery passes set this.
	Override bool `yaml:"override"`
}

// DefaultCheckpointConfig returns the checkpoint defaults.
func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{LeaseTimeout: "30m"}
}

func (c *CheckpointConfig) validate() error {
	if _, err := parseDuration(c.LeaseTimeout, 30*time.Minute); err != nil {
		return fmt.Errorf("checkpoint.lease_timeout: %w", err)
	}
	return nil
}

// LeaseTimeoutDuration returns the parsed lease timeout.
func (c *CheckpointConfig) LeaseTimeoutDuration() time.Duration {
	d, _ := parseDuration(c.LeaseTimeout, 30*time.Minute)
	return d
}
