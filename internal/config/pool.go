package config

import "fmt"

// PoolConfig configures the worker pool.
type PoolConfig struct {
	// Concurrency is the number of items processed in parallel.
	Concurrency int `yaml:"concurrency"`
	// MaxItems caps how many items a single run processes; zero means
	// the whole queue.
	MaxItems int `yaml:"max_items"`
}

// DefaultPoolConfig returns the pool defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{Concurrency: 4}
}

func (c *PoolConfig) validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("pool.concurrency must be >= 1")
	}
	if c.MaxItems < 0 {
		return fmt.Errorf("pool.max_items must be >= 0")
	}
	return nil
}
