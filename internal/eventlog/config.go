package eventlog

import (
	"fmt"
	"time"
)

// EventlogConfig controls ingestion and retention.
type EventlogConfig struct {
	QueueSize           int           `mapstructure:"queue_size"`
	MaxFramesPerSecond  float64       `mapstructure:"max_frames_per_second"`
	RetentionMaxEvents  int64         `mapstructure:"retention_max_events"`
	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() EventlogConfig {
	return EventlogConfig{
		QueueSize:           256,
		MaxFramesPerSecond:  10,
		RetentionMaxEvents:  1_000_000,
		MaintenanceInterval: time.Hour,
	}
}

// Validate rejects out-of-range settings at startup.
func (c EventlogConfig) Validate() error {
	if c.QueueSize < 1 {
		return fmt.Errorf("queue_size must be >= 1, got %d", c.QueueSize)
	}
	if c.MaxFramesPerSecond <= 0 {
		return fmt.Errorf("max_frames_per_second must be > 0, got %v", c.MaxFramesPerSecond)
	}
	if c.RetentionMaxEvents < 1 {
		return fmt.Errorf("retention_max_events must be >= 1, got %d", c.RetentionMaxEvents)
	}
	if c.MaintenanceInterval < time.Minute {
		return fmt.Errorf("maintenance_interval must be >= 1m, got %v", c.MaintenanceInterval)
	}
	return nil
}
