package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/stressvision/stressvision/internal/eventlog"
	"github.com/stressvision/stressvision/internal/stress"
	"github.com/stressvision/stressvision/internal/timeutil"
	"github.com/stressvision/stressvision/pkg/models"
	"github.com/stressvision/stressvision/pkg/plugin"
)

// minBaselineBuckets is the minimum number of non-empty baseline buckets
// before the z-score rule can fire. Too few buckets make the standard
// deviation meaningless.
const minBaselineBuckets = 4

// Engine evaluates trigger rules against the event log and writes alerts.
// Evaluation is idempotent: re-running over the same events is absorbed by
// the cooldown.
type Engine struct {
	store       *AlertStore
	events      *eventlog.EventStore
	aggregator  *stress.Aggregator
	cfg         AlertsConfig
	shortWindow time.Duration
	longWindow  time.Duration
	clock       timeutil.Clock
	bus         plugin.EventBus
	logger      *zap.Logger

	// triggerMu serializes the cooldown check and the insert. The sweep
	// tick and bus handlers evaluate concurrently; without it both could
	// pass the check and insert duplicate (employee, type) alerts.
	triggerMu sync.Mutex
}

// NewEngine creates an alert evaluation engine.
func NewEngine(store *AlertStore, events *eventlog.EventStore, aggregator *stress.Aggregator,
	cfg AlertsConfig, shortWindow, longWindow time.Duration, clock timeutil.Clock,
	bus plugin.EventBus, logger *zap.Logger) *Engine {
	return &Engine{
		store:       store,
		events:      events,
		aggregator:  aggregator,
		cfg:         cfg,
		shortWindow: shortWindow,
		longWindow:  longWindow,
		clock:       clock,
		bus:         bus,
		logger:      logger,
	}
}

// Evaluate runs all trigger rules: per-employee rules for every employee
// seen in the last hour, then the global anomaly rules.
func (e *Engine) Evaluate(ctx context.Context) error {
	now := e.clock.Now()
	employees, err := e.events.DistinctEmployees(ctx, now.Add(-time.Hour), now)
	if err != nil {
		return fmt.Errorf("list active employees: %w", err)
	}
	for _, id := range employees {
		if err := e.EvaluateEmployee(ctx, id); err != nil {
			e.logger.Warn("employee evaluation failed",
				zap.String("employee_id", id), zap.Error(err))
		}
	}
	return e.EvaluateAnomalies(ctx)
}

// EvaluateEmployee runs the per-employee rules for one employee.
func (e *Engine) EvaluateEmployee(ctx context.Context, employeeID string) error {
	now := e.clock.Now()
	if err := e.checkProlongedStress(ctx, employeeID, now); err != nil {
		return err
	}
	return e.checkFatigue(ctx, employeeID, now)
}

// checkProlongedStress fires when the short-window stress-class event count
// reaches the trigger threshold.
func (e *Engine) checkProlongedStress(ctx context.Context, employeeID string, now time.Time) error {
	sum, err := e.aggregator.Summarize(ctx, employeeID, now.Add(-e.shortWindow), now)
	if errors.Is(err, stress.ErrNoData) {
		return nil
	}
	if err != nil {
		return err
	}
	if sum.HighStressCount < e.cfg.TriggerCount {
		return nil
	}

	conf, err := e.latestConfidence(ctx, eventlog.EventFilter{
		Start:      now.Add(-e.shortWindow),
		End:        now,
		EmployeeID: &employeeID,
		StressOnly: true,
	})
	if err != nil {
		return err
	}
	return e.trigger(ctx, &Alert{
		EmployeeID:  &employeeID,
		Type:        TypeProlongedHighStress,
		Severity:    severityFor(conf),
		Message:     fmt.Sprintf("%d stress events in the last %s", sum.HighStressCount, e.shortWindow),
		StressLevel: sum.MeanStress,
		CreatedAt:   now,
	})
}

// checkFatigue fires when fatigue classifications in the last hour reach
// the fatigue threshold, or when fatigue plus flat-neutral classifications
// together reach the combined threshold. A tired face often reads as
// neutral to the classifier, so the combined clause catches sustained
// low-expressiveness runs the pure fatigue count misses.
func (e *Engine) checkFatigue(ctx context.Context, employeeID string, now time.Time) error {
	filter := eventlog.EventFilter{
		Start:      now.Add(-time.Hour),
		End:        now,
		EmployeeID: &employeeID,
		Emotion:    models.EmotionFatigue,
	}
	count, err := e.events.CountEvents(ctx, filter)
	if err != nil {
		return err
	}
	message := fmt.Sprintf("%d fatigue detections in the last hour", count)
	if count < int64(e.cfg.FatigueCount) {
		neutralFilter := filter
		neutralFilter.Emotion = models.EmotionNeutral
		neutral, err := e.events.CountEvents(ctx, neutralFilter)
		if err != nil {
			return err
		}
		if count+neutral < int64(e.cfg.FatigueComboCount) {
			return nil
		}
		message = fmt.Sprintf("%d fatigue and %d neutral detections in the last hour", count, neutral)
	}

	conf, err := e.latestConfidence(ctx, filter)
	if err != nil {
		return err
	}
	return e.trigger(ctx, &Alert{
		EmployeeID:  &employeeID,
		Type:        TypeFatigueDetected,
		Severity:    severityFor(conf),
		Message:     message,
		StressLevel: conf,
		CreatedAt:   now,
	})
}

// EvaluateAnomalies runs the global rules: unknown-identity bursts and
// z-score spikes of the overall stress ratio against the long-window
// baseline.
func (e *Engine) EvaluateAnomalies(ctx context.Context) error {
	now := e.clock.Now()

	unknown, err := e.events.CountEvents(ctx, eventlog.EventFilter{
		Start:       now.Add(-e.shortWindow),
		End:         now,
		UnknownOnly: true,
	})
	if err != nil {
		return err
	}
	if unknown >= int64(e.cfg.UnknownBurst) {
		if err := e.trigger(ctx, &Alert{
			Type:      TypeAnomalyDetected,
			Severity:  SeverityMedium,
			Message:   fmt.Sprintf("%d unrecognized faces in the last %s", unknown, e.shortWindow),
			CreatedAt: now,
		}); err != nil {
			return err
		}
	}

	return e.checkStressSpike(ctx, now)
}

// checkStressSpike compares the current short-window stress ratio against
// the distribution of short-window ratios over the long window.
func (e *Engine) checkStressSpike(ctx context.Context, now time.Time) error {
	current, err := e.aggregator.StressRatio(ctx, now.Add(-e.shortWindow), now)
	if errors.Is(err, stress.ErrNoData) {
		return nil
	}
	if err != nil {
		return err
	}

	baseline, err := e.aggregator.RatioSeries(ctx, now.Add(-e.longWindow), now.Add(-e.shortWindow), e.shortWindow)
	if err != nil {
		return err
	}
	if len(baseline) < minBaselineBuckets {
		return nil
	}

	mean := stat.Mean(baseline, nil)
	stdDev := stat.PopStdDev(baseline, nil)
	if stdDev <= 0 {
		return nil
	}
	z := (current - mean) / stdDev
	if z < e.cfg.ZScoreThreshold {
		return nil
	}

	severity := SeverityMedium
	if z >= e.cfg.ZScoreThreshold+1 {
		severity = SeverityHigh
	}
	return e.trigger(ctx, &Alert{
		Type:        TypeAnomalyDetected,
		Severity:    severity,
		Message:     fmt.Sprintf("stress ratio %.2f is %.1f standard deviations above the %s baseline", current, z, e.longWindow),
		StressLevel: current,
		CreatedAt:   now,
	})
}

// trigger inserts an alert unless a cooldown for the same (employee, type)
// pair is still running. Alerts in ANY state suppress, including resolved
// ones.
func (e *Engine) trigger(ctx context.Context, a *Alert) error {
	e.triggerMu.Lock()
	defer e.triggerMu.Unlock()

	last, found, err := e.store.LastCreated(ctx, a.EmployeeID, a.Type)
	if err != nil {
		return err
	}
	if found && a.CreatedAt.Sub(last) < e.cfg.Cooldown {
		suppressedTotal.WithLabelValues(a.Type).Inc()
		if e.bus != nil {
			e.bus.PublishAsync(ctx, plugin.Event{
				Topic:   TopicAlertSuppressed,
				Source:  "alerts",
				Payload: a,
			})
		}
		return nil
	}

	a.ID = uuid.NewString()
	a.State = StatePending
	a.StateChangedAt = a.CreatedAt
	if err := e.store.Insert(ctx, a); err != nil {
		return err
	}
	triggeredTotal.WithLabelValues(a.Type, a.Severity).Inc()

	fields := []zap.Field{
		zap.String("alert_id", a.ID),
		zap.String("type", a.Type),
		zap.String("severity", a.Severity),
	}
	if a.EmployeeID != nil {
		fields = append(fields, zap.String("employee_id", *a.EmployeeID))
	}
	e.logger.Info("alert triggered", fields...)

	if e.bus != nil {
		e.bus.PublishAsync(ctx, plugin.Event{
			Topic:   TopicAlertTriggered,
			Source:  "alerts",
			Payload: a,
		})
	}
	return nil
}

// latestConfidence returns the confidence of the most recent event matching
// the filter, or 0 when none match.
func (e *Engine) latestConfidence(ctx context.Context, f eventlog.EventFilter) (float64, error) {
	events, err := e.events.QueryEvents(ctx, f)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}
	return events[len(events)-1].Confidence, nil
}

// severityFor maps the triggering confidence to a severity level.
func severityFor(confidence float64) string {
	switch {
	case confidence > 0.8:
		return SeverityHigh
	case confidence >= 0.6:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
