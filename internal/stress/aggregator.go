package stress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/stressvision/stressvision/internal/eventlog"
	"github.com/stressvision/stressvision/pkg/models"
)

// ErrNoData distinguishes an empty window from one that aggregates to zero.
var ErrNoData = errors.New("no detection events in window")

// EventSource is the read surface the aggregator needs from the event log.
type EventSource interface {
	QueryEvents(ctx context.Context, f eventlog.EventFilter) ([]eventlog.DetectionEvent, error)
	CountEvents(ctx context.Context, f eventlog.EventFilter) (int64, error)
}

// Summary aggregates detection events for one employee over one window.
// EmployeeID is empty for the unknown-identity aggregate. MeanStress and
// StdDev are computed over the confidence of stress-class events only.
type Summary struct {
	EmployeeID         string         `json:"employee_id,omitempty"`
	WindowStart        time.Time      `json:"window_start"`
	WindowEnd          time.Time      `json:"window_end"`
	SampleCount        int            `json:"sample_count"`
	HighStressCount    int            `json:"high_stress_count"`
	MeanStress         float64        `json:"mean_stress"`
	StdDev             float64        `json:"std_dev"`
	PredominantEmotion models.Emotion `json:"predominant_emotion"`
}

// Aggregator recomputes stress summaries from the event log on every call.
// No incremental counters are kept: short and long windows derive from the
// same log, so they can never drift apart.
type Aggregator struct {
	events EventSource
}

// NewAggregator creates an aggregator over the given event source.
func NewAggregator(events EventSource) *Aggregator {
	return &Aggregator{events: events}
}

// Summarize aggregates one employee's events over [start, end). Returns
// ErrNoData when the window holds no events for the employee.
func (a *Aggregator) Summarize(ctx context.Context, employeeID string, start, end time.Time) (*Summary, error) {
	if employeeID == "" {
		return nil, fmt.Errorf("employee id required, use SummarizeUnknown for unresolved events")
	}
	events, err := a.events.QueryEvents(ctx, eventlog.EventFilter{
		Start:      start,
		End:        end,
		EmployeeID: &employeeID,
	})
	if err != nil {
		return nil, err
	}
	return summarize(employeeID, start, end, events)
}

// SummarizeUnknown aggregates unresolved (employee IS NULL) events over
// [start, end). Used by anomaly evaluation only; unknown events are never
// attributed to any employee.
func (a *Aggregator) SummarizeUnknown(ctx context.Context, start, end time.Time) (*Summary, error) {
	events, err := a.events.QueryEvents(ctx, eventlog.EventFilter{
		Start:       start,
		End:         end,
		UnknownOnly: true,
	})
	if err != nil {
		return nil, err
	}
	return summarize("", start, end, events)
}

// StressRatio returns the fraction of events in [start, end) that belong to
// the stress class, over all employees and unknowns. Returns ErrNoData for
// an empty window.
func (a *Aggregator) StressRatio(ctx context.Context, start, end time.Time) (float64, error) {
	total, err := a.events.CountEvents(ctx, eventlog.EventFilter{Start: start, End: end})
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, ErrNoData
	}
	stressed, err := a.events.CountEvents(ctx, eventlog.EventFilter{Start: start, End: end, StressOnly: true})
	if err != nil {
		return 0, err
	}
	return float64(stressed) / float64(total), nil
}

// RatioSeries buckets [start, end) by the given width and returns the
// stress ratio per non-empty bucket, oldest first. Empty buckets are
// skipped rather than reported as zero.
func (a *Aggregator) RatioSeries(ctx context.Context, start, end time.Time, bucket time.Duration) ([]float64, error) {
	var series []float64
	for t := start; t.Before(end); t = t.Add(bucket) {
		bucketEnd := t.Add(bucket)
		if bucketEnd.After(end) {
			bucketEnd = end
		}
		ratio, err := a.StressRatio(ctx, t, bucketEnd)
		if errors.Is(err, ErrNoData) {
			continue
		}
		if err != nil {
			return nil, err
		}
		series = append(series, ratio)
	}
	return series, nil
}

func summarize(employeeID string, start, end time.Time, events []eventlog.DetectionEvent) (*Summary, error) {
	if len(events) == 0 {
		return nil, ErrNoData
	}

	s := &Summary{
		EmployeeID:  employeeID,
		WindowStart: start,
		WindowEnd:   end,
		SampleCount: len(events),
	}

	var stressConf []float64
	counts := make(map[models.Emotion]int)
	lastSeen := make(map[models.Emotion]int)
	for i, ev := range events {
		counts[ev.Emotion]++
		lastSeen[ev.Emotion] = i
		if ev.Stress {
			s.HighStressCount++
			stressConf = append(stressConf, ev.Confidence)
		}
	}
	if len(stressConf) > 0 {
		s.MeanStress = stat.Mean(stressConf, nil)
		s.StdDev = stat.PopStdDev(stressConf, nil)
	}

	// Mode of the emotion labels; ties go to the most recent occurrence.
	for emotion, n := range counts {
		switch {
		case n > counts[s.PredominantEmotion]:
			s.PredominantEmotion = emotion
		case n == counts[s.PredominantEmotion] && lastSeen[emotion] > lastSeen[s.PredominantEmotion]:
			s.PredominantEmotion = emotion
		}
	}
	return s, nil
}
