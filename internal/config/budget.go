package config

import "fmt"

// BudgetConfig configures the spend ledger.
type BudgetConfig struct {
	// Cap is the hard cost ceiling for the whole run, in account
	// currency units. Zero disables the cap.
	Cap float64 `yaml:"cap"`
	// MinProjectionSample is the minimum completed-item count before
	// the projected-total formula is trusted; below it only actual
	// spend is compared against the cap.
	MinProjectionSample int `yaml:"min_projection_sample"`
}

// DefaultBudgetConfig returns the ledger defaults.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		Cap:                 0,
		MinProjectionSample: 5,
	}
}

func (c *BudgetConfig) validate() error {
	if c.Cap < 0 {
		return fmt.Errorf("budget.cap must be >= 0")
	}
	if c.MinProjectionSample < 1 {
		return fmt.Errorf("budget.min_projection_sample must be >= 1")
	}
	return nil
}
