package config

import (
	"fmt"
	"time"
)

// FetchConfig configures the evidence fetcher.
type FetchConfig struct {
	// Timeout is the per-request HTTP timeout (duration string).
	Timeout string `yaml:"timeout"`
	// UserAgent identifies the fetcher to evidence hosts.
	UserAgent string `yaml:"user_agent"`
	// MaxRetries bounds retry attempts for transient failures.
	MaxRetries int `yaml:"max_retries"`
	// BackoffBase is the first retry delay; doubled per attempt with
	// +-50% jitter.
	BackoffBase string `yaml:"backoff_base"`
	// MinBlocks and MinChars are the thin-evidence floors.
	MinBlocks int `yaml:"min_blocks"`
	MinChars  int `yaml:"min_chars"`
	// CacheTTL is how long a cached evidence record stays fresh.
	CacheTTL string `yaml:"cache_ttl"`
	// MaxBodyBytes caps how much of a response body is read.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// DefaultFetchConfig returns the fetcher defaults.
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		Timeout:      "20s",
		UserAgent:    "copyforge/1.0 (+catalog content pipeline)",
		MaxRetries:   3,
		BackoffBase:  "500ms",
		MinBlocks:    6,
		MinChars:     800,
		CacheTTL:     "168h", // 7 days
		MaxBodyBytes: 4 << 20,
	}
}

func (c *FetchConfig) validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must be >= 0")
	}
	if c.MinBlocks <= 0 || c.MinChars <= 0 {
		return fmt.Errorf("fetch thin-evidence floors must be positive")
	}
	for _, d := range []string{c.Timeout, c.BackoffBase, c.CacheTTL} {
		if _, err := parseDuration(d, time.Second); err != nil {
			return fmt.Errorf("fetch: bad duration %q: %w", d, err)
		}
	}
	return nil
}

// TimeoutDuration returns the parsed request timeout.
func (c *FetchConfig) TimeoutDuration() time.Duration {
	d, _ := parseDuration(c.Timeout, 20*time.Second)
	return d
}

// BackoffBaseDuration returns the parsed base backoff.
func (c *FetchConfig) BackoffBaseDuration() time.Duration {
	d, _ := parseDuration(c.BackoffBase, 500*time.Millisecond)
	return d
}

// CacheTTLDuration returns the parsed cache TTL.
func (c *FetchConfig) CacheTTLDuration() time.Duration {
	d, _ := parseDuration(c.CacheTTL, 7*24*time.Hour)
	return d
}
