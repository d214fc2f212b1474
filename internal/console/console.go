// Package console is the read-side facade over the other modules: live
// summaries, alert handling, and dashboard snapshots for an operator UI.
package console

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stressvision/stressvision/internal/alerts"
	"github.com/stressvision/stressvision/internal/eventlog"
	"github.com/stressvision/stressvision/internal/reports"
	"github.com/stressvision/stressvision/internal/stress"
	"github.com/stressvision/stressvision/internal/timeutil"
	"github.com/stressvision/stressvision/pkg/plugin"
)

// Compile-time interface guard.
var _ plugin.Plugin = (*Module)(nil)

// Snapshot is the dashboard headline view. When a read fails the previous
// snapshot is returned with Stale set, so the UI can tell cached data from
// current data.
type Snapshot struct {
	ActiveEmployees    int       `json:"active_employees"`
	LastHourDetections int64     `json:"last_hour_detections"`
	OverallStressPct   float64   `json:"overall_stress_pct"`
	PendingAlertCount  int64     `json:"pending_alert_count"`
	AsOf               time.Time `json:"as_of"`
	Stale              bool      `json:"stale"`
}

type eventlogModule interface {
	Store() *eventlog.EventStore
}

type stressModule interface {
	Live(ctx context.Context, employeeID string) (*stress.Summary, error)
	Aggregator() *stress.Aggregator
}

type alertsModule interface {
	List(ctx context.Context, state string, limit int) ([]alerts.Alert, error)
	Transition(ctx context.Context, id, target, actor, note string) error
	Store() *alerts.AlertStore
}

type reportsModule interface {
	Latest(ctx context.Context) (*reports.Report, error)
}

// Module implements the console plugin.
type Module struct {
	logger  *zap.Logger
	clock   timeutil.Clock
	events  *eventlog.EventStore
	stress  stressModule
	alerts  alertsModule
	reports reportsModule

	mu   sync.Mutex
	last Snapshot
}

// New creates a new console module instance.
func New() *Module {
	return &Module{clock: timeutil.RealClock{}}
}

// NewWithClock creates a console module with an injected clock.
func NewWithClock(clock timeutil.Clock) *Module {
	return &Module{clock: clock}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "console",
		Version:      "0.1.0",
		Description:  "Operator-facing read facade",
		Dependencies: []string{"eventlog", "stress", "alerts", "reports"},
		Required:     false,
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	p, ok := deps.Plugins.Resolve("eventlog")
	if !ok {
		return fmt.Errorf("console requires the eventlog module")
	}
	el, ok := p.(eventlogModule)
	if !ok {
		return fmt.Errorf("eventlog module does not expose an event store")
	}
	m.events = el.Store()

	p, ok = deps.Plugins.Resolve("stress")
	if !ok {
		return fmt.Errorf("console requires the stress module")
	}
	if m.stress, ok = p.(stressModule); !ok {
		return fmt.Errorf("stress module does not expose live summaries")
	}

	p, ok = deps.Plugins.Resolve("alerts")
	if !ok {
		return fmt.Errorf("console requires the alerts module")
	}
	if m.alerts, ok = p.(alertsModule); !ok {
		return fmt.Errorf("alerts module does not expose its lifecycle")
	}

	p, ok = deps.Plugins.Resolve("reports")
	if !ok {
		return fmt.Errorf("console requires the reports module")
	}
	if m.reports, ok = p.(reportsModule); !ok {
		return fmt.Errorf("reports module does not expose reports")
	}

	m.logger.Info("console module initialized")
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	return nil
}

func (m *Module) Stop(ctx context.Context) error {
	return nil
}

// LiveSummary returns the employee's stress summary over the short window
// ending now.
func (m *Module) LiveSummary(ctx context.Context, employeeID string) (*stress.Summary, error) {
	return m.stress.Live(ctx, employeeID)
}

// ListAlerts returns alerts filtered by state; empty means all states.
func (m *Module) ListAlerts(ctx context.Context, state string) ([]alerts.Alert, error) {
	return m.alerts.List(ctx, state, 0)
}

// TransitionAlert moves an alert through its lifecycle on behalf of an
// operator.
func (m *Module) TransitionAlert(ctx context.Context, id, target, actor, note string) error {
	return m.alerts.Transition(ctx, id, target, actor, note)
}

// LatestReport returns the most recent periodic report, or nil, nil when
// none have been generated yet.
func (m *Module) LatestReport(ctx context.Context) (*reports.Report, error) {
	return m.reports.Latest(ctx)
}

// DashboardSnapshot assembles the headline numbers for the dashboard. A
// failed read returns the previous snapshot marked Stale instead of an
// error, so the dashboard keeps rendering.
func (m *Module) DashboardSnapshot(ctx context.Context) Snapshot {
	now := m.clock.Now()
	snap, err := m.buildSnapshot(ctx, now)
	if err != nil {
		m.logger.Warn("dashboard snapshot failed, serving stale data", zap.Error(err))
		m.mu.Lock()
		defer m.mu.Unlock()
		stale := m.last
		stale.Stale = true
		return stale
	}

	m.mu.Lock()
	m.last = snap
	m.mu.Unlock()
	return snap
}

func (m *Module) buildSnapshot(ctx context.Context, now time.Time) (Snapshot, error) {
	hourAgo := now.Add(-time.Hour)

	employees, err := m.events.DistinctEmployees(ctx, hourAgo, now)
	if err != nil {
		return Snapshot{}, err
	}
	total, err := m.events.CountEvents(ctx, eventlog.EventFilter{Start: hourAgo, End: now})
	if err != nil {
		return Snapshot{}, err
	}
	stressed, err := m.events.CountEvents(ctx, eventlog.EventFilter{Start: hourAgo, End: now, StressOnly: true})
	if err != nil {
		return Snapshot{}, err
	}
	pending, err := m.alerts.Store().CountByState(ctx, alerts.StatePending)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		ActiveEmployees:    len(employees),
		LastHourDetections: total,
		PendingAlertCount:  pending,
		AsOf:               now,
	}
	if total > 0 {
		snap.OverallStressPct = float64(stressed) / float64(total) * 100
	}
	return snap, nil
}
