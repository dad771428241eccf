// Package config holds all copyforge configuration, loaded from a YAML
// file with environment-variable overrides for secrets. Each concern
// keeps its settings in its own file to mirror the package it configures.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all copyforge configuration.
type Config struct {
	// WorkDir is where checkpoints, journals, caches and logs live.
	WorkDir string `yaml:"work_dir"`

	Fetch       FetchConfig       `yaml:"fetch"`
	Generation  GenerationConfig  `yaml:"generation"`
	Validation  ValidationConfig  `yaml:"validation"`
	Originality OriginalityConfig `yaml:"originality"`
	Budget      BudgetConfig      `yaml:"budget"`
	Pool        PoolConfig        `yaml:"pool"`
	Checkpoint  CheckpointConfig  `yaml:"checkpoint"`
	Recovery    RecoveryConfig    `yaml:"recovery"`
}

// Default returns a config populated with every default value.
func Default() *Config {
	return &Config{
		WorkDir:     ".copyforge",
		Fetch:       DefaultFetchConfig(),
		Generation:  DefaultGenerationConfig(),
		Validation:  DefaultValidationConfig(),
		Originality: DefaultOriginalityConfig(),
		Budget:      DefaultBudgetConfig(),
		Pool:        DefaultPoolConfig(),
		Checkpoint:  DefaultCheckpointConfig(),
		Recovery:    DefaultRecoveryConfig(),
	}
}

// Load reads the YAML config at path over the defaults, then applies
// environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides secret-bearing and deployment-varying fields from
// the environment. Secrets never belong in the YAML file.
func (c *Config) applyEnv() {
	if v := os.Getenv("COPYFORGE_API_KEY"); v != "" {
		c.Generation.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && c.Generation.APIKey == "" {
		c.Generation.APIKey = v
	}
	if v := os.Getenv("COPYFORGE_WORK_DIR"); v != "" {
		c.WorkDir = v
	}
}

// Validate checks every concern's settings.
func (c *Config) Validate() error {
	if c.WorkDir == "" {
		return fmt.Errorf("work_dir is required")
	}
	for _, check := range []func() error{
		c.Fetch.validate,
		c.Generation.validate,
		c.Validation.validate,
		c.Originality.validate,
		c.Budget.validate,
		c.Pool.validate,
		c.Checkpoint.validate,
		c.Recovery.validate,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// Paths derived from the work directory.

func (c *Config) CheckpointPath() string  { return filepath.Join(c.WorkDir, "checkpoint.json") }
func (c *Config) LockPath() string        { return filepath.Join(c.WorkDir, "checkpoint.lock") }
func (c *Config) AcceptedPath() string    { return filepath.Join(c.WorkDir, "accepted.jsonl") }
func (c *Config) RejectsPath() string     { return filepath.Join(c.WorkDir, "rejects.jsonl") }
func (c *Config) FingerprintPath() string { return filepath.Join(c.WorkDir, "fingerprints.jsonl") }
func (c *Config) EvidenceCachePath() string {
	return filepath.Join(c.WorkDir, "evidence_cache.sqlite")
}

// parseDuration parses a duration string, falling back to def when empty.
func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}
