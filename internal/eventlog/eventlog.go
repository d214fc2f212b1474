// Package eventlog owns monitoring sessions and the append-only detection
// event log, including the bounded ingestion path from capture sources.
package eventlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stressvision/stressvision/internal/roster"
	"github.com/stressvision/stressvision/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin    = (*Module)(nil)
	_ plugin.Validator = (*Module)(nil)
)

// rosterModule is the surface the eventlog needs from the roster plugin.
type rosterModule interface {
	Resolver() *roster.Resolver
}

// Module implements the eventlog plugin: session lifecycle, the detection
// event log, ingestion, and log retention.
type Module struct {
	logger   *zap.Logger
	bus      plugin.EventBus
	config   EventlogConfig
	store    *EventStore
	recorder *Recorder

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new eventlog module instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "eventlog",
		Version:      "0.1.0",
		Description:  "Monitoring sessions and the detection event log",
		Dependencies: []string{"roster"},
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
			return fmt.Errorf("unmarshal eventlog config: %w", err)
		}
	}

	if deps.Store == nil {
		return fmt.Errorf("eventlog requires a store")
	}
	if err := deps.Store.Migrate(ctx, "eventlog", Migrations()); err != nil {
		return fmt.Errorf("eventlog migrations: %w", err)
	}
	m.store = NewEventStore(deps.Store.DB())

	p, ok := deps.Plugins.Resolve("roster")
	if !ok {
		return fmt.Errorf("eventlog requires the roster module")
	}
	src, ok := p.(rosterModule)
	if !ok {
		return fmt.Errorf("roster module does not expose an identity resolver")
	}
	m.recorder = NewRecorder(m.store, src.Resolver(), m.bus, m.config, m.logger)

	m.logger.Info("eventlog module initialized",
		zap.Int("queue_size", m.config.QueueSize),
		zap.Float64("max_fps", m.config.MaxFramesPerSecond),
	)
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.recorder.Start(m.ctx)

	// Rebind to a session left open by an unclean shutdown.
	if open, err := m.store.OpenSession(ctx); err != nil {
		m.logger.Warn("could not check for open session", zap.Error(err))
	} else if open != nil {
		m.recorder.SetSession(open.ID)
		m.logger.Info("resumed open session", zap.String("session_id", open.ID))
	}

	m.startMaintenance()
	return nil
}

func (m *Module) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	m.recorder.Stop()
	m.wg.Wait()
	return nil
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	return m.config.Validate()
}

// Store exposes the event store for downstream read-side modules.
func (m *Module) Store() *EventStore {
	return m.store
}

// Recorder exposes the ingestion boundary for capture sources.
func (m *Module) Recorder() *Recorder {
	return m.recorder
}

// StartSession opens a monitoring session and binds the recorder to it.
func (m *Module) StartSession(ctx context.Context, source string) (*Session, error) {
	sess, err := m.store.StartSession(ctx, source)
	if err != nil {
		return nil, err
	}
	m.recorder.SetSession(sess.ID)
	m.logger.Info("session started",
		zap.String("session_id", sess.ID),
		zap.String("source", source),
	)
	if m.bus != nil {
		m.bus.PublishAsync(ctx, plugin.Event{
			Topic:   TopicSessionStarted,
			Source:  "eventlog",
			Payload: sess,
		})
	}
	return sess, nil
}

// EndSession closes the open session and detaches the recorder.
func (m *Module) EndSession(ctx context.Context) error {
	open, err := m.store.OpenSession(ctx)
	if err != nil {
		return err
	}
	if open == nil {
		return ErrNoSession
	}
	m.recorder.SetSession("")
	if err := m.store.EndSession(ctx, open.ID); err != nil {
		return err
	}
	m.logger.Info("session ended", zap.String("session_id", open.ID))
	if m.bus != nil {
		m.bus.PublishAsync(ctx, plugin.Event{
			Topic:   TopicSessionEnded,
			Source:  "eventlog",
			Payload: open,
		})
	}
	return nil
}

// startMaintenance launches a background goroutine that periodically prunes
// the oldest detection events beyond the retention cap.
func (m *Module) startMaintenance() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.config.MaintenanceInterval)
		defer ticker.Stop()

		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				m.runMaintenance()
			}
		}
	}()
}

// runMaintenance executes a single retention sweep.
func (m *Module) runMaintenance() {
	ctx, cancel := context.WithTimeout(m.ctx, 30*time.Second)
	defer cancel()

	pruned, err := m.store.PruneEvents(ctx, m.config.RetentionMaxEvents)
	if err != nil {
		m.logger.Warn("failed to prune old events", zap.Error(err))
		return
	}
	if pruned > 0 {
		prunedTotal.Add(float64(pruned))
		m.logger.Info("pruned old detection events", zap.Int64("count", pruned))
	}
}
