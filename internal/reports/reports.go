// Package reports generates periodic summaries over contiguous windows of
// the detection event log.
package reports

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stressvision/stressvision/internal/alerts"
	"github.com/stressvision/stressvision/internal/eventlog"
	"github.com/stressvision/stressvision/internal/stress"
	"github.com/stressvision/stressvision/internal/timeutil"
	"github.com/stressvision/stressvision/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin    = (*Module)(nil)
	_ plugin.Validator = (*Module)(nil)
)

type eventlogModule interface {
	Store() *eventlog.EventStore
}

type stressModule interface {
	Aggregator() *stress.Aggregator
}

type alertsModule interface {
	Store() *alerts.AlertStore
}

// Module implements the reports plugin.
type Module struct {
	logger    *zap.Logger
	config    ReportsConfig
	store     *ReportStore
	scheduler *Scheduler
	clock     timeutil.Clock
	bus       plugin.EventBus
}

// New creates a new reports module instance.
func New() *Module {
	return &Module{clock: timeutil.RealClock{}}
}

// NewWithClock creates a reports module with an injected clock.
func NewWithClock(clock timeutil.Clock) *Module {
	return &Module{clock: clock}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "reports",
		Version:      "0.1.0",
		Description:  "Periodic windowed reports",
		Dependencies: []string{"eventlog", "stress", "alerts"},
		Required:     false,
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus

	m.config = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.config); err != nil {
			return fmt.Errorf("unmarshal reports config: %w", err)
		}
	}

	if deps.Store == nil {
		return fmt.Errorf("reports requires a store")
	}
	if err := deps.Store.Migrate(ctx, "reports", Migrations()); err != nil {
		return fmt.Errorf("reports migrations: %w", err)
	}
	m.store = NewReportStore(deps.Store.DB())

	p, ok := deps.Plugins.Resolve("eventlog")
	if !ok {
		return fmt.Errorf("reports requires the eventlog module")
	}
	el, ok := p.(eventlogModule)
	if !ok {
		return fmt.Errorf("eventlog module does not expose an event store")
	}

	p, ok = deps.Plugins.Resolve("stress")
	if !ok {
		return fmt.Errorf("reports requires the stress module")
	}
	st, ok := p.(stressModule)
	if !ok {
		return fmt.Errorf("stress module does not expose an aggregator")
	}

	p, ok = deps.Plugins.Resolve("alerts")
	if !ok {
		return fmt.Errorf("reports requires the alerts module")
	}
	al, ok := p.(alertsModule)
	if !ok {
		return fmt.Errorf("alerts module does not expose an alert store")
	}

	builder := NewBuilder(el.Store(), st.Aggregator(), al.Store())
	m.scheduler = NewScheduler(m.store, builder, m.config.Interval, m.clock, m.bus, m.logger)

	m.logger.Info("reports module initialized", zap.Duration("interval", m.config.Interval))
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	return m.scheduler.Start(ctx)
}

func (m *Module) Stop(ctx context.Context) error {
	m.scheduler.Stop()
	return nil
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	return m.config.Validate()
}

// Store exposes read access for the console facade.
func (m *Module) Store() *ReportStore {
	return m.store
}

// Latest returns the most recent report, or nil, nil when none exist.
func (m *Module) Latest(ctx context.Context) (*Report, error) {
	return m.store.Latest(ctx)
}

// Interval returns the configured report cadence.
func (m *Module) Interval() time.Duration {
	return m.config.Interval
}
