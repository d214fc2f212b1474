// Package stress computes per-employee stress summaries over sliding
// windows of the detection event log.
package stress

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stressvision/stressvision/internal/eventlog"
	"github.com/stressvision/stressvision/internal/timeutil"
	"github.com/stressvision/stressvision/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin    = (*Module)(nil)
	_ plugin.Validator = (*Module)(nil)
)

// eventlogModule is the surface this module needs from the eventlog plugin.
type eventlogModule interface {
	Store() *eventlog.EventStore
}

// Module implements the stress plugin: windowed aggregation over the log.
type Module struct {
	logger     *zap.Logger
	config     StressConfig
	aggregator *Aggregator
	clock      timeutil.Clock
}

// New creates a new stress module instance.
func New() *Module {
	return &Module{clock: timeutil.RealClock{}}
}

// NewWithClock creates a stress module with an injected clock.
func NewWithClock(clock timeutil.Clock) *Module {
	return &Module{clock: clock}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "stress",
		Version:      "0.1.0",
		Description:  "Windowed stress aggregation",
		Dependencies: []string{"eventlog"},
		Required:     true,
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	m.config = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.config); err != nil {
			return fmt.Errorf("unmarshal stress config: %w", err)
		}
	}

	p, ok := deps.Plugins.Resolve("eventlog")
	if !ok {
		return fmt.Errorf("stress requires the eventlog module")
	}
	src, ok := p.(eventlogModule)
	if !ok {
		return fmt.Errorf("eventlog module does not expose an event store")
	}
	m.aggregator = NewAggregator(src.Store())

	m.logger.Info("stress module initialized",
		zap.Duration("short_window", m.config.ShortWindow),
		zap.Duration("long_window", m.config.LongWindow),
	)
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	return nil
}

func (m *Module) Stop(ctx context.Context) error {
	return nil
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	return m.config.Validate()
}

// Aggregator exposes the summary computation for downstream modules.
func (m *Module) Aggregator() *Aggregator {
	return m.aggregator
}

// ShortWindow returns the configured short aggregation window.
func (m *Module) ShortWindow() time.Duration {
	return m.config.ShortWindow
}

// LongWindow returns the configured long aggregation window.
func (m *Module) LongWindow() time.Duration {
	return m.config.LongWindow
}

// Live summarizes the employee's short window ending now.
func (m *Module) Live(ctx context.Context, employeeID string) (*Summary, error) {
	now := m.clock.Now()
	return m.aggregator.Summarize(ctx, employeeID, now.Add(-m.config.ShortWindow), now)
}
