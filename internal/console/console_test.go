package console

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stressvision/stressvision/internal/alerts"
	"github.com/stressvision/stressvision/internal/eventlog"
	"github.com/stressvision/stressvision/internal/reports"
	"github.com/stressvision/stressvision/internal/store"
	"github.com/stressvision/stressvision/internal/stress"
	"github.com/stressvision/stressvision/internal/timeutil"
	"github.com/stressvision/stressvision/pkg/models"
)

type stubStress struct{ agg *stress.Aggregator }

func (s stubStress) Live(context.Context, string) (*stress.Summary, error) { return nil, nil }
func (s stubStress) Aggregator() *stress.Aggregator                        { return s.agg }

type stubAlerts struct{ store *alerts.AlertStore }

func (s stubAlerts) List(ctx context.Context, state string, limit int) ([]alerts.Alert, error) {
	return s.store.List(ctx, state, limit)
}
func (s stubAlerts) Transition(ctx context.Context, id, target, actor, note string) error {
	return s.store.Transition(ctx, id, target, actor, note, time.Now().UTC())
}
func (s stubAlerts) Store() *alerts.AlertStore { return s.store }

type stubReports struct{ latest *reports.Report }

func (s stubReports) Latest(context.Context) (*reports.Report, error) { return s.latest, nil }

func newConsole(t *testing.T) (*Module, *eventlog.EventStore, *alerts.AlertStore, *timeutil.MockClock, *store.SQLiteStore) {
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
	if err := s.Migrate(ctx, "alerts", alerts.Migrations()); err != nil {
		t.Fatalf("alerts migrations: %v", err)
	}

	events := eventlog.NewEventStore(s.DB())
	alertStore := alerts.NewAlertStore(s.DB())
	clock := timeutil.NewMockClock(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))

	m := &Module{
		logger:  zap.NewNop(),
		clock:   clock,
		events:  events,
		stress:  stubStress{agg: stress.NewAggregator(events)},
		alerts:  stubAlerts{store: alertStore},
		reports: stubReports{},
	}
	return m, events, alertStore, clock, s
}

func TestDashboardSnapshot(t *testing.T) {
	m, events, alertStore, clock, _ := newConsole(t)
	ctx := context.Background()
	now := clock.Now()

	sess, err := events.StartSession(ctx, "cam-01")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	emp1, emp2 := "emp-001", "emp-002"
	for _, ev := range []*eventlog.DetectionEvent{
		{SessionID: sess.ID, EmployeeID: &emp1, Emotion: models.EmotionAngry, Stress: true, Confidence: 0.8, ObservedAt: now.Add(-30 * time.Minute)},
		{SessionID: sess.ID, EmployeeID: &emp2, Emotion: models.EmotionNeutral, Confidence: 0.9, ObservedAt: now.Add(-20 * time.Minute)},
		{SessionID: sess.ID, Emotion: models.EmotionNeutral, Confidence: 0.9, ObservedAt: now.Add(-10 * time.Minute)},
		// Outside the last hour.
		{SessionID: sess.ID, EmployeeID: &emp1, Emotion: models.EmotionNeutral, Confidence: 0.9, ObservedAt: now.Add(-2 * time.Hour)},
	} {
		if err := events.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	if err := alertStore.Insert(ctx, &alerts.Alert{
		ID: uuid.NewString(), EmployeeID: &emp1, Type: alerts.TypeProlongedHighStress,
		Severity: alerts.SeverityHigh, Message: "test", CreatedAt: now,
	}); err != nil {
		t.Fatalf("Insert alert: %v", err)
	}

	snap := m.DashboardSnapshot(ctx)
	if snap.Stale {
		t.Fatal("fresh snapshot marked stale")
	}
	if snap.ActiveEmployees != 2 {
		t.Errorf("ActiveEmployees = %d, want 2", snap.ActiveEmployees)
	}
	if snap.LastHourDetections != 3 {
		t.Errorf("LastHourDetections = %d, want 3", snap.LastHourDetections)
	}
	if snap.PendingAlertCount != 1 {
		t.Errorf("PendingAlertCount = %d, want 1", snap.PendingAlertCount)
	}
	if snap.OverallStressPct < 33.3 || snap.OverallStressPct > 33.4 {
		t.Errorf("OverallStressPct = %v, want ~33.3", snap.OverallStressPct)
	}
	if !snap.AsOf.Equal(now) {
		t.Errorf("AsOf = %v, want %v", snap.AsOf, now)
	}
}

func TestDashboardSnapshot_ServesStaleOnFailure(t *testing.T) {
	m, events, _, clock, db := newConsole(t)
	ctx := context.Background()

	sess, err := events.StartSession(ctx, "cam-01")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	emp := "emp-001"
	if err := events.AppendEvent(ctx, &eventlog.DetectionEvent{
		SessionID: sess.ID, EmployeeID: &emp, Emotion: models.EmotionNeutral,
		Confidence: 0.9, ObservedAt: clock.Now().Add(-time.Minute),
	}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	first := m.DashboardSnapshot(ctx)
	if first.Stale || first.LastHourDetections != 1 {
		t.Fatalf("first snapshot = %+v", first)
	}

	// Break the read path; the cached snapshot comes back marked stale.
	db.Close()
	second := m.DashboardSnapshot(ctx)
	if !second.Stale {
		t.Error("snapshot after failure not marked stale")
	}
	if second.LastHourDetections != 1 || second.ActiveEmployees != first.ActiveEmployees {
		t.Errorf("stale snapshot = %+v, want cached values from %+v", second, first)
	}
	if !second.AsOf.Equal(first.AsOf) {
		t.Errorf("stale AsOf = %v, want original %v", second.AsOf, first.AsOf)
	}
}

func TestTransitionAlert_Delegates(t *testing.T) {
	m, _, alertStore, clock, _ := newConsole(t)
	ctx := context.Background()

	a := &alerts.Alert{
		ID: uuid.NewString(), Type: alerts.TypeFatigueDetected,
		Severity: alerts.SeverityMedium, Message: "test", CreatedAt: clock.Now(),
	}
	if err := alertStore.Insert(ctx, a); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := m.TransitionAlert(ctx, a.ID, alerts.StateAcknowledged, "supervisor", ""); err != nil {
		t.Fatalf("TransitionAlert: %v", err)
	}
	got, err := alertStore.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != alerts.StateAcknowledged {
		t.Errorf("State = %q, want acknowledged", got.State)
	}

	pending, err := m.ListAlerts(ctx, alerts.StatePending)
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
}

func TestLatestReport_NilWhenNoneGenerated(t *testing.T) {
	m, _, _, _, _ := newConsole(t)
	r, err := m.LatestReport(context.Background())
	if err != nil {
		t.Fatalf("LatestReport: %v", err)
	}
	if r != nil {
		t.Errorf("LatestReport = %+v, want nil", r)
	}
}
