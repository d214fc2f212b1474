package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stressvision/stressvision/internal/alerts"
	"github.com/stressvision/stressvision/internal/eventlog"
	"github.com/stressvision/stressvision/internal/stress"
)

// Builder assembles one report over a window. Aggregate counters come
// straight from SQL over the whole window; per-employee summaries are
// recomputed through the stress aggregator.
type Builder struct {
	events     *eventlog.EventStore
	aggregator *stress.Aggregator
	alerts     *alerts.AlertStore
}

// NewBuilder creates a report builder over the given sources.
func NewBuilder(events *eventlog.EventStore, aggregator *stress.Aggregator, alertStore *alerts.AlertStore) *Builder {
	return &Builder{events: events, aggregator: aggregator, alerts: alertStore}
}

// Build assembles the report for [start, end). A window with no events
// still produces a report with zero counters; absence of a report means
// the window was never covered.
func (b *Builder) Build(ctx context.Context, start, end, generatedAt time.Time) (*Report, error) {
	total, err := b.events.CountEvents(ctx, eventlog.EventFilter{Start: start, End: end})
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	stressed, err := b.events.CountEvents(ctx, eventlog.EventFilter{Start: start, End: end, StressOnly: true})
	if err != nil {
		return nil, fmt.Errorf("count stress events: %w", err)
	}
	employees, err := b.events.DistinctEmployees(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("distinct employees: %w", err)
	}
	distribution, err := b.events.EmotionCounts(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("emotion distribution: %w", err)
	}
	alertIDs, err := b.alerts.ListCreatedBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("alerts in window: %w", err)
	}

	r := &Report{
		ID:                  uuid.NewString(),
		WindowStart:         start,
		WindowEnd:           end,
		TotalDetections:     total,
		DistinctEmployees:   len(employees),
		EmotionDistribution: distribution,
		AlertIDs:            alertIDs,
		GeneratedAt:         generatedAt,
	}
	if total > 0 {
		r.StressPct = float64(stressed) / float64(total) * 100
	}

	for _, id := range employees {
		sum, err := b.aggregator.Summarize(ctx, id, start, end)
		if errors.Is(err, stress.ErrNoData) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("summarize %s: %w", id, err)
		}
		r.EmployeeSummaries = append(r.EmployeeSummaries, *sum)
	}
	return r, nil
}
