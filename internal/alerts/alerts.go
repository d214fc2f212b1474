// Package alerts evaluates trigger rules over the detection event log and
// manages the alert lifecycle.
package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

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
	ShortWindow() time.Duration
	LongWindow() time.Duration
}

// Module implements the alerts plugin: rule evaluation, cooldown
// suppression, and the alert state machine.
type Module struct {
	logger *zap.Logger
	bus    plugin.EventBus
	config AlertsConfig
	store  *AlertStore
	engine *Engine
	clock  timeutil.Clock

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	unsubscribe func()
}

// New creates a new alerts module instance.
func New() *Module {
	return &Module{clock: timeutil.RealClock{}}
}

// NewWithClock creates an alerts module with an injected clock.
func NewWithClock(clock timeutil.Clock) *Module {
	return &Module{clock: clock}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "alerts",
		Version:      "0.1.0",
		Description:  "Stress alert triggers and lifecycle",
		Dependencies: []string{"eventlog", "stress"},
		Required:     true,
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus

	m.config = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.config); err != nil {
			return fmt.Errorf("unmarshal alerts config: %w", err)
		}
	}

	if deps.Store == nil {
		return fmt.Errorf("alerts requires a store")
	}
	if err := deps.Store.Migrate(ctx, "alerts", Migrations()); err != nil {
		return fmt.Errorf("alerts migrations: %w", err)
	}
	m.store = NewAlertStore(deps.Store.DB())

	p, ok := deps.Plugins.Resolve("eventlog")
	if !ok {
		return fmt.Errorf("alerts requires the eventlog module")
	}
	el, ok := p.(eventlogModule)
	if !ok {
		return fmt.Errorf("eventlog module does not expose an event store")
	}

	p, ok = deps.Plugins.Resolve("stress")
	if !ok {
		return fmt.Errorf("alerts requires the stress module")
	}
	st, ok := p.(stressModule)
	if !ok {
		return fmt.Errorf("stress module does not expose an aggregator")
	}

	m.engine = NewEngine(m.store, el.Store(), st.Aggregator(),
		m.config, st.ShortWindow(), st.LongWindow(), m.clock, m.bus, m.logger)

	m.logger.Info("alerts module initialized",
		zap.Int("trigger_count", m.config.TriggerCount),
		zap.Duration("cooldown", m.config.Cooldown),
	)
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(context.Background())

	// Periodic sweep catches rules that fire with no new events, like the
	// unknown-identity burst draining back below threshold elsewhere.
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := m.clock.NewTicker(m.config.EvaluationInterval)
		defer ticker.Stop()

		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C():
				if err := m.engine.Evaluate(m.ctx); err != nil {
					m.logger.Warn("alert evaluation failed", zap.Error(err))
				}
			}
		}
	}()

	// Event-driven evaluation keeps alert latency below the sweep interval.
	if m.bus != nil {
		m.unsubscribe = m.bus.Subscribe(eventlog.TopicEventRecorded, m.onEventRecorded)
	}
	return nil
}

func (m *Module) Stop(ctx context.Context) error {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	return nil
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	return m.config.Validate()
}

func (m *Module) onEventRecorded(ctx context.Context, event plugin.Event) {
	ev, ok := event.Payload.(*eventlog.DetectionEvent)
	if !ok {
		return
	}
	var err error
	if ev.EmployeeID != nil {
		err = m.engine.EvaluateEmployee(ctx, *ev.EmployeeID)
	} else {
		err = m.engine.EvaluateAnomalies(ctx)
	}
	if err != nil {
		m.logger.Warn("event-driven evaluation failed", zap.Error(err))
	}
}

// Store exposes read access for the console facade.
func (m *Module) Store() *AlertStore {
	return m.store
}

// Engine exposes the evaluation engine, mainly for tests and tooling.
func (m *Module) Engine() *Engine {
	return m.engine
}

// List returns alerts filtered by state; empty means all.
func (m *Module) List(ctx context.Context, state string, limit int) ([]Alert, error) {
	return m.store.List(ctx, state, limit)
}

// Transition moves an alert through its lifecycle and publishes the
// corresponding bus event.
func (m *Module) Transition(ctx context.Context, id, target, actor, note string) error {
	if err := m.store.Transition(ctx, id, target, actor, note, m.clock.Now()); err != nil {
		return err
	}
	transitionsTotal.WithLabelValues(target).Inc()

	topic := TopicAlertAcknowledged
	if target == StateResolved {
		topic = TopicAlertResolved
	}
	m.logger.Info("alert transitioned",
		zap.String("alert_id", id),
		zap.String("state", target),
		zap.String("actor", actor),
	)
	if m.bus != nil {
		a, err := m.store.Get(ctx, id)
		if err == nil {
			m.bus.PublishAsync(ctx, plugin.Event{Topic: topic, Source: "alerts", Payload: a})
		}
	}
	return nil
}
