package alerts

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/stressvision/stressvision/internal/eventlog"
	"github.com/stressvision/stressvision/internal/store"
	"github.com/stressvision/stressvision/internal/stress"
	"github.com/stressvision/stressvision/internal/timeutil"
	"github.com/stressvision/stressvision/pkg/models"
)

type engineFixture struct {
	engine *Engine
	alerts *AlertStore
	events *eventlog.EventStore
	clock  *timeutil.MockClock
	sessID string
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	ctx := context.Background()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(ctx, "eventlog", eventlog.Migrations()); err != nil {
		t.Fatalf("eventlog migrations: %v", err)
	}
	if err := s.Migrate(ctx, "alerts", Migrations()); err != nil {
		t.Fatalf("alerts migrations: %v", err)
	}

	events := eventlog.NewEventStore(s.DB())
	sess, err := events.StartSession(ctx, "cam-01")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	alertStore := NewAlertStore(s.DB())
	clock := timeutil.NewMockClock(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	engine := NewEngine(alertStore, events, stress.NewAggregator(events),
		DefaultConfig(), 15*time.Minute, 24*time.Hour, clock, nil, zap.NewNop())

	return &engineFixture{
		engine: engine,
		alerts: alertStore,
		events: events,
		clock:  clock,
		sessID: sess.ID,
	}
}

func (f *engineFixture) append(t *testing.T, employeeID string, emotion models.Emotion, confidence float64, at time.Time) {
	t.Helper()
	ev := &eventlog.DetectionEvent{
		SessionID:  f.sessID,
		Emotion:    emotion,
		Stress:     emotion.IsStressClass(),
		Confidence: confidence,
		ObservedAt: at,
	}
	if employeeID != "" {
		ev.EmployeeID = &employeeID
	}
	if err := f.events.AppendEvent(context.Background(), ev); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
}

func (f *engineFixture) pendingAlerts(t *testing.T) []Alert {
	t.Helper()
	alerts, err := f.alerts.List(context.Background(), StatePending, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	return alerts
}

func TestEngine_ProlongedStressTriggersOnce(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	now := f.clock.Now()

	// Exactly the trigger threshold of stress events in the short window.
	for i := 0; i < 10; i++ {
		f.append(t, "emp-001", models.EmotionAngry, 0.85, now.Add(-time.Duration(10-i)*time.Minute))
	}

	if err := f.engine.EvaluateEmployee(ctx, "emp-001"); err != nil {
		t.Fatalf("EvaluateEmployee: %v", err)
	}
	alerts := f.pendingAlerts(t)
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	a := alerts[0]
	if a.Type != TypeProlongedHighStress || a.EmployeeID == nil || *a.EmployeeID != "emp-001" {
		t.Errorf("alert = %+v", a)
	}
	if a.Severity != SeverityHigh {
		t.Errorf("Severity = %q, want high for confidence 0.85", a.Severity)
	}

	// Re-evaluation over the same events is absorbed by the cooldown.
	for i := 0; i < 5; i++ {
		if err := f.engine.EvaluateEmployee(ctx, "emp-001"); err != nil {
			t.Fatalf("EvaluateEmployee: %v", err)
		}
	}
	if got := f.pendingAlerts(t); len(got) != 1 {
		t.Errorf("alerts after re-evaluation = %d, want still 1", len(got))
	}
}

func TestEngine_BelowThresholdNoAlert(t *testing.T) {
	f := newEngineFixture(t)
	now := f.clock.Now()

	for i := 0; i < 9; i++ {
		f.append(t, "emp-001", models.EmotionAngry, 0.85, now.Add(-time.Duration(9-i)*time.Minute))
	}
	if err := f.engine.EvaluateEmployee(context.Background(), "emp-001"); err != nil {
		t.Fatalf("EvaluateEmployee: %v", err)
	}
	if got := f.pendingAlerts(t); len(got) != 0 {
		t.Errorf("alerts = %d, want 0 below threshold", len(got))
	}
}

func TestEngine_CooldownExpiresThenRetriggers(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	burst := func(now time.Time) {
		for i := 0; i < 10; i++ {
			f.append(t, "emp-001", models.EmotionStressHigh, 0.9, now.Add(-time.Duration(10-i)*time.Minute))
		}
	}

	burst(f.clock.Now())
	if err := f.engine.EvaluateEmployee(ctx, "emp-001"); err != nil {
		t.Fatalf("EvaluateEmployee: %v", err)
	}

	// Inside the cooldown nothing new fires, even with fresh events.
	f.clock.Advance(30 * time.Minute)
	burst(f.clock.Now())
	if err := f.engine.EvaluateEmployee(ctx, "emp-001"); err != nil {
		t.Fatalf("EvaluateEmployee: %v", err)
	}
	if got := f.pendingAlerts(t); len(got) != 1 {
		t.Fatalf("alerts inside cooldown = %d, want 1", len(got))
	}

	// After the cooldown a fresh burst triggers again.
	f.clock.Advance(31 * time.Minute)
	burst(f.clock.Now())
	if err := f.engine.EvaluateEmployee(ctx, "emp-001"); err != nil {
		t.Fatalf("EvaluateEmployee: %v", err)
	}
	if got := f.pendingAlerts(t); len(got) != 2 {
		t.Errorf("alerts after cooldown = %d, want 2", len(got))
	}
}

func TestEngine_FatigueRule(t *testing.T) {
	f := newEngineFixture(t)
	now := f.clock.Now()

	for i := 0; i < 15; i++ {
		f.append(t, "emp-001", models.EmotionFatigue, 0.65, now.Add(-time.Duration(55-i)*time.Minute))
	}
	if err := f.engine.EvaluateEmployee(context.Background(), "emp-001"); err != nil {
		t.Fatalf("EvaluateEmployee: %v", err)
	}

	alerts := f.pendingAlerts(t)
	var fatigue *Alert
	for i := range alerts {
		if alerts[i].Type == TypeFatigueDetected {
			fatigue = &alerts[i]
		}
	}
	if fatigue == nil {
		t.Fatalf("no fatigue alert in %+v", alerts)
	}
	if fatigue.Severity != SeverityMedium {
		t.Errorf("Severity = %q, want medium for confidence 0.65", fatigue.Severity)
	}
}

func TestEngine_UnknownBurstAnomaly(t *testing.T) {
	f := newEngineFixture(t)
	now := f.clock.Now()

	for i := 0; i < 30; i++ {
		f.append(t, "", models.EmotionNeutral, 0.9, now.Add(-time.Duration(i%14+1)*time.Minute))
	}
	if err := f.engine.EvaluateAnomalies(context.Background()); err != nil {
		t.Fatalf("EvaluateAnomalies: %v", err)
	}

	alerts := f.pendingAlerts(t)
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Type != TypeAnomalyDetected || alerts[0].EmployeeID != nil {
		t.Errorf("alert = %+v, want global anomaly", alerts[0])
	}
}

func TestEngine_StressSpikeZScore(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	now := f.clock.Now()

	// Quiet baseline: one non-stress event per short-window bucket across
	// the long window, with a single stressed bucket at the end.
	for i := 1; i <= 90; i++ {
		f.append(t, "emp-001", models.EmotionNeutral, 0.9, now.Add(-time.Duration(i)*15*time.Minute))
	}
	// Tiny wobble so the baseline standard deviation is non-zero.
	f.append(t, "emp-001", models.EmotionAngry, 0.9, now.Add(-20*15*time.Minute).Add(time.Minute))

	// Current short window: fully stressed.
	for i := 0; i < 5; i++ {
		f.append(t, "emp-001", models.EmotionStressHigh, 0.9, now.Add(-time.Duration(i)*time.Minute))
	}

	if err := f.engine.EvaluateAnomalies(ctx); err != nil {
		t.Fatalf("EvaluateAnomalies: %v", err)
	}

	alerts := f.pendingAlerts(t)
	found := false
	for _, a := range alerts {
		if a.Type == TypeAnomalyDetected && a.EmployeeID == nil {
			found = true
		}
	}
	if !found {
		t.Errorf("no anomaly alert for stress spike, alerts = %+v", alerts)
	}
}

func TestSeverityFor(t *testing.T) {
	cases := []struct {
		confidence float64
		want       string
	}{
		{0.95, SeverityHigh},
		{0.81, SeverityHigh},
		{0.8, SeverityMedium},
		{0.6, SeverityMedium},
		{0.59, SeverityLow},
		{0, SeverityLow},
	}
	for _, tc := range cases {
		if got := severityFor(tc.confidence); got != tc.want {
			t.Errorf("severityFor(%v) = %q, want %q", tc.confidence, got, tc.want)
		}
	}
}

func TestEngine_FatigueComboRule(t *testing.T) {
	f := newEngineFixture(t)
	now := f.clock.Now()

	// Below the pure fatigue threshold, but fatigue plus neutral reaches
	// the combined one. Kept outside the short window so the prolonged
	// stress rule stays quiet.
	for i := 0; i < 10; i++ {
		f.append(t, "emp-001", models.EmotionFatigue, 0.65, now.Add(-time.Duration(55-i)*time.Minute))
	}
	for i := 0; i < 10; i++ {
		f.append(t, "emp-001", models.EmotionNeutral, 0.90, now.Add(-time.Duration(40-i)*time.Minute))
	}
	if err := f.engine.EvaluateEmployee(context.Background(), "emp-001"); err != nil {
		t.Fatalf("EvaluateEmployee: %v", err)
	}

	alerts := f.pendingAlerts(t)
	if len(alerts) != 1 || alerts[0].Type != TypeFatigueDetected {
		t.Fatalf("alerts = %+v, want one fatigue alert", alerts)
	}
}

func TestEngine_FatigueComboBelowThreshold(t *testing.T) {
	f := newEngineFixture(t)
	now := f.clock.Now()

	for i := 0; i < 10; i++ {
		f.append(t, "emp-001", models.EmotionFatigue, 0.65, now.Add(-time.Duration(55-i)*time.Minute))
	}
	for i := 0; i < 9; i++ {
		f.append(t, "emp-001", models.EmotionNeutral, 0.90, now.Add(-time.Duration(40-i)*time.Minute))
	}
	if err := f.engine.EvaluateEmployee(context.Background(), "emp-001"); err != nil {
		t.Fatalf("EvaluateEmployee: %v", err)
	}
	if alerts := f.pendingAlerts(t); len(alerts) != 0 {
		t.Fatalf("alerts = %+v, want none below combined threshold", alerts)
	}
}

func TestTrigger_ConcurrentEvaluatorsInsertOnce(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	now := f.clock.Now()
	employeeID := "emp-001"

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.engine.trigger(ctx, &Alert{
				EmployeeID: &employeeID,
				Type:       TypeProlongedHighStress,
				Severity:   SeverityMedium,
				Message:    "concurrent evaluation",
				CreatedAt:  now,
			})
			if err != nil {
				t.Errorf("trigger: %v", err)
			}
		}()
	}
	wg.Wait()

	if alerts := f.pendingAlerts(t); len(alerts) != 1 {
		t.Fatalf("alerts = %d, want exactly 1 from concurrent triggers", len(alerts))
	}
}
