// Package roster manages enrolled employees and resolves face embeddings
// to identities via nearest-neighbor cosine similarity.
package roster

import (
	"context"
	"fmt"

	"github.com/stressvision/stressvision/pkg/plugin"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin    = (*Module)(nil)
	_ plugin.Validator = (*Module)(nil)
)

// Module implements the roster plugin: enrollment plus identity resolution.
type Module struct {
	logger   *zap.Logger
	bus      plugin.EventBus
	config   RosterConfig
	store    *RosterStore
	resolver *Resolver
}

// New creates a new roster module instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "roster",
		Version:     "0.1.0",
		Description: "Employee enrollment and identity resolution",
		Required:    true,
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus

	m.config = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.config); err != nil {
			return fmt.Errorf("unmarshal roster config: %w", err)
		}
	}

	if deps.Store == nil {
		return fmt.Errorf("roster requires a store")
	}
	if err := deps.Store.Migrate(ctx, "roster", migrations()); err != nil {
		return fmt.Errorf("roster migrations: %w", err)
	}
	m.store = NewRosterStore(deps.Store.DB())

	m.resolver = NewResolver(m.config.RecognitionThreshold)
	if err := m.reloadEnrollments(ctx); err != nil {
		return fmt.Errorf("load enrollments: %w", err)
	}

	m.logger.Info("roster module initialized",
		zap.Float64("recognition_threshold", m.config.RecognitionThreshold),
		zap.Int("enrolled", m.resolver.EnrolledCount()),
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

// Store exposes the roster store for the enrollment boundary.
func (m *Module) Store() *RosterStore {
	return m.store
}

// Resolver returns the identity resolver backed by the current enrollment set.
func (m *Module) Resolver() *Resolver {
	return m.resolver
}

// Enroll registers an employee with the given embedding samples. At least
// MinSamples samples are required, and the mean pairwise cosine similarity
// between samples must reach QualityThreshold; low-quality enrollments
// produce unreliable matches and are rejected outright.
func (m *Module) Enroll(ctx context.Context, emp *Employee, samples [][]float64) error {
	if len(samples) < m.config.MinSamples {
		return fmt.Errorf("%w: got %d samples, need %d", ErrTooFewSamples, len(samples), m.config.MinSamples)
	}

	quality, err := enrollmentQuality(samples)
	if err != nil {
		return err
	}
	if quality < m.config.QualityThreshold {
		return fmt.Errorf("%w: quality %.2f below threshold %.2f", ErrLowQuality, quality, m.config.QualityThreshold)
	}

	if err := m.store.InsertEmployee(ctx, emp); err != nil {
		return err
	}
	for _, sample := range samples {
		if err := m.store.AppendEmbedding(ctx, emp.ID, sample, quality); err != nil {
			return err
		}
	}

	if err := m.reloadEnrollments(ctx); err != nil {
		return err
	}

	m.logger.Info("employee enrolled",
		zap.String("employee_id", emp.ID),
		zap.Int("samples", len(samples)),
		zap.Float64("quality", quality),
	)
	if m.bus != nil {
		m.bus.PublishAsync(ctx, plugin.Event{
			Topic:   TopicEmployeeEnrolled,
			Source:  "roster",
			Payload: emp,
		})
	}
	return nil
}

// AddSamples appends embedding samples to an existing employee.
func (m *Module) AddSamples(ctx context.Context, employeeID string, samples [][]float64) error {
	emp, err := m.store.GetEmployee(ctx, employeeID)
	if err != nil {
		return err
	}
	if emp == nil {
		return fmt.Errorf("employee %q not enrolled", employeeID)
	}
	for _, sample := range samples {
		if err := m.store.AppendEmbedding(ctx, employeeID, sample, 0); err != nil {
			return err
		}
	}
	return m.reloadEnrollments(ctx)
}

// reloadEnrollments rebuilds the resolver's in-memory enrollment snapshot
// from the store. Called at init and after every enrollment change.
func (m *Module) reloadEnrollments(ctx context.Context) error {
	enrolled, err := m.store.ListEnrollments(ctx)
	if err != nil {
		return err
	}
	m.resolver.SetEnrollments(enrolled)
	return nil
}
