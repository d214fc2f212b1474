package stress

import (
	"fmt"
	"time"
)

// StressConfig controls the aggregation windows.
type StressConfig struct {
	ShortWindow time.Duration `mapstructure:"short_window"`
	LongWindow  time.Duration `mapstructure:"long_window"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() StressConfig {
	return StressConfig{
		ShortWindow: 15 * time.Minute,
		LongWindow:  24 * time.Hour,
	}
}

// Validate rejects out-of-range settings at startup.
func (c StressConfig) Validate() error {
	if c.ShortWindow < time.Minute {
		return fmt.Errorf("short_window must be >= 1m, got %v", c.ShortWindow)
	}
	if c.LongWindow <= c.ShortWindow {
		return fmt.Errorf("long_window (%v) must exceed short_window (%v)", c.LongWindow, c.ShortWindow)
	}
	return nil
}
