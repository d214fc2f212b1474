package roster

import "fmt"

// RosterConfig controls enrollment and identity resolution.
type RosterConfig struct {
	RecognitionThreshold float64 `mapstructure:"recognition_threshold"`
	MinSamples           int     `mapstructure:"min_samples"`
	QualityThreshold     float64 `mapstructure:"quality_threshold"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() RosterConfig {
	return RosterConfig{
		RecognitionThreshold: 0.70,
		MinSamples:           3,
		QualityThreshold:     0.70,
	}
}

// Validate rejects out-of-range settings at startup.
func (c RosterConfig) Validate() error {
	if c.RecognitionThreshold <= 0 || c.RecognitionThreshold > 1 {
		return fmt.Errorf("recognition_threshold must be in (0, 1], got %v", c.RecognitionThreshold)
	}
	if c.MinSamples < 1 {
		return fmt.Errorf("min_samples must be >= 1, got %d", c.MinSamples)
	}
	if c.QualityThreshold < 0 || c.QualityThreshold > 1 {
		return fmt.Errorf("quality_threshold must be in [0, 1], got %v", c.QualityThreshold)
	}
	return nil
}
