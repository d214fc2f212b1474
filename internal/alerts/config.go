package alerts

import (
	"fmt"
	"time"
)

// AlertsConfig controls trigger thresholds and evaluation cadence.
type AlertsConfig struct {
	TriggerCount       int           `mapstructure:"trigger_count"`
	FatigueCount       int           `mapstructure:"fatigue_count"`
	FatigueComboCount  int           `mapstructure:"fatigue_combo_count"`
	UnknownBurst       int           `mapstructure:"unknown_burst"`
	Cooldown           time.Duration `mapstructure:"cooldown"`
	EvaluationInterval time.Duration `mapstructure:"evaluation_interval"`
	ZScoreThreshold    float64       `mapstructure:"zscore_threshold"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() AlertsConfig {
	return AlertsConfig{
		TriggerCount:       10,
		FatigueCount:       15,
		FatigueComboCount:  20,
		UnknownBurst:       30,
		Cooldown:           time.Hour,
		EvaluationInterval: time.Second,
		ZScoreThreshold:    3.0,
	}
}

// Validate rejects out-of-range settings at startup.
func (c AlertsConfig) Validate() error {
	if c.TriggerCount < 1 {
		return fmt.Errorf("trigger_count must be >= 1, got %d", c.TriggerCount)
	}
	if c.FatigueCount < 1 {
		return fmt.Errorf("fatigue_count must be >= 1, got %d", c.FatigueCount)
	}
	if c.FatigueComboCount < c.FatigueCount {
		return fmt.Errorf("fatigue_combo_count must be >= fatigue_count, got %d", c.FatigueComboCount)
	}
	if c.UnknownBurst < 1 {
		return fmt.Errorf("unknown_burst must be >= 1, got %d", c.UnknownBurst)
	}
	if c.Cooldown < time.Minute {
		return fmt.Errorf("cooldown must be >= 1m, got %v", c.Cooldown)
	}
	if c.EvaluationInterval < 100*time.Millisecond {
		return fmt.Errorf("evaluation_interval must be >= 100ms, got %v", c.EvaluationInterval)
	}
	if c.ZScoreThreshold <= 0 {
		return fmt.Errorf("zscore_threshold must be > 0, got %v", c.ZScoreThreshold)
	}
	return nil
}
