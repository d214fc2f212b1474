package reports

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stressvision/stressvision/internal/timeutil"
	"github.com/stressvision/stressvision/pkg/plugin"
)

// Scheduler generates reports on a fixed cadence over contiguous,
// non-overlapping windows. The cursor only advances when a report is
// written, so a failed window is retried from its original start on the
// next tick and no interval is ever skipped.
type Scheduler struct {
	store    *ReportStore
	builder  *Builder
	interval time.Duration
	clock    timeutil.Clock
	bus      plugin.EventBus
	logger   *zap.Logger

	mu     sync.Mutex
	cursor time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a report scheduler.
func NewScheduler(store *ReportStore, builder *Builder, interval time.Duration,
	clock timeutil.Clock, bus plugin.EventBus, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		builder:  builder,
		interval: interval,
		clock:    clock,
		bus:      bus,
		logger:   logger,
	}
}

// Start initializes the window cursor and begins the tick loop. The cursor
// resumes from the last written report so windows stay contiguous across
// restarts; with no prior reports it starts now.
func (s *Scheduler) Start(ctx context.Context) error {
	end, found, err := s.store.LatestWindowEnd(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if found {
		s.cursor = end
	} else {
		s.cursor = s.clock.Now()
	}
	s.mu.Unlock()

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := s.clock.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C():
				s.tick(s.ctx)
			}
		}
	}()
	return nil
}

// Stop signals the scheduler to stop and waits for completion.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// tick generates the report for [cursor, now). Failures are logged and the
// cursor stays put for a retry with the original window start.
func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	start := s.cursor
	s.mu.Unlock()

	now := s.clock.Now()
	if !now.After(start) {
		return
	}

	report, err := s.builder.Build(ctx, start, now, now)
	if err != nil {
		failedTotal.WithLabelValues("build").Inc()
		s.logger.Error("report build failed",
			zap.Time("window_start", start), zap.Error(err))
		return
	}
	if err := s.store.Insert(ctx, report); err != nil {
		failedTotal.WithLabelValues("write").Inc()
		s.logger.Error("report write failed",
			zap.Time("window_start", start), zap.Error(err))
		return
	}

	s.mu.Lock()
	s.cursor = now
	s.mu.Unlock()

	generatedTotal.Inc()
	s.logger.Info("report generated",
		zap.String("report_id", report.ID),
		zap.Time("window_start", report.WindowStart),
		zap.Time("window_end", report.WindowEnd),
		zap.Int64("detections", report.TotalDetections),
	)
	if s.bus != nil {
		s.bus.PublishAsync(ctx, plugin.Event{
			Topic:   TopicReportGenerated,
			Source:  "reports",
			Payload: report,
		})
	}
}
