package reports

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stressvision/stressvision/internal/alerts"
	"github.com/stressvision/stressvision/internal/eventlog"
	"github.com/stressvision/stressvision/internal/store"
	"github.com/stressvision/stressvision/internal/stress"
	"github.com/stressvision/stressvision/internal/timeutil"
	"github.com/stressvision/stressvision/pkg/models"
)

type fixture struct {
	db      *store.SQLiteStore
	events  *eventlog.EventStore
	alerts  *alerts.AlertStore
	reports *ReportStore
	builder *Builder
	clock   *timeutil.MockClock
	sessID  string
}

// newFixture sets up the full schema unless withReports is false, which
// leaves the reports table missing so writes fail.
func newFixture(t *testing.T, withReports bool) *fixture {
	t.Helper()
	ctx := context.Background()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(ctx, "eventlog", eventlog.Migrations()))
	require.NoError(t, s.Migrate(ctx, "alerts", alerts.Migrations()))
	if withReports {
		require.NoError(t, s.Migrate(ctx, "reports", Migrations()))
	}

	events := eventlog.NewEventStore(s.DB())
	sess, err := events.StartSession(ctx, "cam-01")
	require.NoError(t, err)

	alertStore := alerts.NewAlertStore(s.DB())
	return &fixture{
		db:      s,
		events:  events,
		alerts:  alertStore,
		reports: NewReportStore(s.DB()),
		builder: NewBuilder(events, stress.NewAggregator(events), alertStore),
		clock:   timeutil.NewMockClock(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)),
		sessID:  sess.ID,
	}
}

func (f *fixture) append(t *testing.T, employeeID string, emotion models.Emotion, at time.Time) {
	t.Helper()
	ev := &eventlog.DetectionEvent{
		SessionID:  f.sessID,
		Emotion:    emotion,
		Stress:     emotion.IsStressClass(),
		Confidence: 0.8,
		ObservedAt: at,
	}
	if employeeID != "" {
		ev.EmployeeID = &employeeID
	}
	require.NoError(t, f.events.AppendEvent(context.Background(), ev))
}

func (f *fixture) newScheduler() *Scheduler {
	return NewScheduler(f.reports, f.builder, 15*time.Minute, f.clock, nil, zap.NewNop())
}

func TestBuilder_Aggregates(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	base := f.clock.Now()

	f.append(t, "emp-001", models.EmotionAngry, base.Add(time.Minute))
	f.append(t, "emp-001", models.EmotionNeutral, base.Add(2*time.Minute))
	f.append(t, "emp-002", models.EmotionHappy, base.Add(3*time.Minute))
	f.append(t, "", models.EmotionFear, base.Add(4*time.Minute))

	alertInWindow := &alerts.Alert{
		ID:        uuid.NewString(),
		Type:      alerts.TypeProlongedHighStress,
		Severity:  alerts.SeverityHigh,
		Message:   "test",
		CreatedAt: base.Add(5 * time.Minute),
	}
	require.NoError(t, f.alerts.Insert(ctx, alertInWindow))

	end := base.Add(15 * time.Minute)
	r, err := f.builder.Build(ctx, base, end, end)
	require.NoError(t, err)

	assert.EqualValues(t, 4, r.TotalDetections)
	assert.Equal(t, 2, r.DistinctEmployees)
	assert.InDelta(t, 50.0, r.StressPct, 1e-9)
	assert.EqualValues(t, 1, r.EmotionDistribution["angry"])
	assert.EqualValues(t, 1, r.EmotionDistribution["fear"])
	assert.Equal(t, []string{alertInWindow.ID}, r.AlertIDs)

	// Per-employee summaries cover only known employees with events.
	require.Len(t, r.EmployeeSummaries, 2)
	assert.Equal(t, "emp-001", r.EmployeeSummaries[0].EmployeeID)
	assert.Equal(t, 2, r.EmployeeSummaries[0].SampleCount)
	assert.Equal(t, "emp-002", r.EmployeeSummaries[1].EmployeeID)
}

func TestBuilder_EmptyWindowStillReports(t *testing.T) {
	f := newFixture(t, true)
	base := f.clock.Now()

	r, err := f.builder.Build(context.Background(), base, base.Add(15*time.Minute), base.Add(15*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, r.TotalDetections)
	assert.Zero(t, r.StressPct)
	assert.Empty(t, r.EmployeeSummaries)
}

func TestScheduler_ContiguousWindows(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	s := f.newScheduler()
	s.cursor = f.clock.Now()

	// Three windows of events, then a tick after each.
	var total int64
	for i := 0; i < 3; i++ {
		for j := 0; j < i+2; j++ {
			f.append(t, "emp-001", models.EmotionNeutral, f.clock.Now().Add(time.Duration(j+1)*time.Minute))
			total++
		}
		f.clock.Set(f.clock.Now().Add(15 * time.Minute))
		s.tick(ctx)
	}

	reports, err := f.reports.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, reports, 3)

	// Newest first; adjacent windows share a boundary and never overlap.
	for i := 0; i < len(reports)-1; i++ {
		assert.True(t, reports[i].WindowStart.Equal(reports[i+1].WindowEnd),
			"window %d start %v != window %d end %v", i, reports[i].WindowStart, i+1, reports[i+1].WindowEnd)
	}

	// Every event is counted exactly once across the windows.
	var sum int64
	for _, r := range reports {
		sum += r.TotalDetections
	}
	assert.Equal(t, total, sum)
}

func TestScheduler_FailedWindowRetriesWithOriginalStart(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	s := f.newScheduler()
	start := f.clock.Now()
	s.cursor = start

	f.append(t, "emp-001", models.EmotionNeutral, start.Add(time.Minute))

	// No reports table yet: the write fails, is counted, and the cursor
	// stays put.
	failedBefore := testutil.ToFloat64(failedTotal.WithLabelValues("write"))
	f.clock.Set(start.Add(15 * time.Minute))
	s.tick(ctx)
	assert.True(t, s.cursor.Equal(start), "cursor moved after failed write")
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(failedTotal.WithLabelValues("write")))

	// Once the table exists, the retried window keeps the original start.
	require.NoError(t, f.db.Migrate(ctx, "reports", Migrations()))
	f.clock.Set(start.Add(30 * time.Minute))
	s.tick(ctx)

	latest, err := f.reports.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.WindowStart.Equal(start))
	assert.True(t, latest.WindowEnd.Equal(start.Add(30*time.Minute)))
	assert.EqualValues(t, 1, latest.TotalDetections)
}

func TestScheduler_ResumesCursorAcrossRestart(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	start := f.clock.Now()

	s := f.newScheduler()
	s.cursor = start
	f.clock.Set(start.Add(15 * time.Minute))
	s.tick(ctx)

	// A fresh scheduler picks up where the last report ended.
	s2 := f.newScheduler()
	require.NoError(t, s2.Start(ctx))
	defer s2.Stop()
	s2.mu.Lock()
	cursor := s2.cursor
	s2.mu.Unlock()
	assert.True(t, cursor.Equal(start.Add(15*time.Minute)),
		"cursor = %v, want %v", cursor, start.Add(15*time.Minute))
}

func TestReportStore_RoundTrip(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	base := f.clock.Now()

	r := &Report{
		ID:                  uuid.NewString(),
		WindowStart:         base,
		WindowEnd:           base.Add(15 * time.Minute),
		TotalDetections:     7,
		DistinctEmployees:   2,
		StressPct:           42.5,
		EmotionDistribution: map[string]int64{"neutral": 5, "angry": 2},
		AlertIDs:            []string{"a-1"},
		GeneratedAt:         base.Add(15 * time.Minute),
	}
	require.NoError(t, f.reports.Insert(ctx, r))

	got, err := f.reports.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, r.ID, got.ID)
	assert.EqualValues(t, 7, got.TotalDetections)
	assert.InDelta(t, 42.5, got.StressPct, 1e-9)
	assert.EqualValues(t, 5, got.EmotionDistribution["neutral"])
	assert.Equal(t, []string{"a-1"}, got.AlertIDs)

	none := newFixture(t, true)
	empty, err := none.reports.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty)
}
