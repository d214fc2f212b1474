package reports

import (
	"fmt"
	"time"
)

// ReportsConfig controls the report cadence.
type ReportsConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() ReportsConfig {
	return ReportsConfig{Interval: 15 * time.Minute}
}

// Validate rejects out-of-range settings at startup.
func (c ReportsConfig) Validate() error {
	if c.Interval < time.Minute {
		return fmt.Errorf("interval must be >= 1m, got %v", c.Interval)
	}
	return nil
}
