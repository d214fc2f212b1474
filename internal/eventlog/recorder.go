package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/stressvision/stressvision/internal/roster"
	"github.com/stressvision/stressvision/pkg/models"
	"github.com/stressvision/stressvision/pkg/plugin"
)

// IdentityResolver maps a face embedding to an employee match.
type IdentityResolver interface {
	Resolve(embedding []float64) (models.Match, error)
}

// Recorder ingests observations from capture sources. Record never blocks:
// over-rate frames and queue overflow are counted and dropped so a slow
// writer can never stall the caller.
type Recorder struct {
	store    *EventStore
	resolver IdentityResolver
	bus      plugin.EventBus
	logger   *zap.Logger
	limiter  *rate.Limiter
	queue    chan models.Observation

	mu           sync.Mutex
	sessionID    string
	lastObserved time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRecorder creates a recorder with a bounded ingest queue.
func NewRecorder(store *EventStore, resolver IdentityResolver, bus plugin.EventBus, cfg EventlogConfig, logger *zap.Logger) *Recorder {
	return &Recorder{
		store:    store,
		resolver: resolver,
		bus:      bus,
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Limit(cfg.MaxFramesPerSecond), int(cfg.MaxFramesPerSecond)+1),
		queue:    make(chan models.Observation, cfg.QueueSize),
	}
}

// Start launches the single consumer goroutine. All appends go through it,
// so writes are serialized without locking the store.
func (r *Recorder) Start(ctx context.Context) {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-r.ctx.Done():
				r.drain()
				return
			case obs := <-r.queue:
				r.process(obs)
			}
		}
	}()
}

// Stop signals the consumer to stop and waits for queued work to finish.
func (r *Recorder) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// SetSession binds the recorder to the open session. An empty ID detaches;
// observations received while detached are dropped.
func (r *Recorder) SetSession(id string) {
	r.mu.Lock()
	r.sessionID = id
	r.mu.Unlock()
}

// Record enqueues an observation for ingestion. Returns false when the
// frame was dropped, either by the rate limiter or a full queue.
func (r *Recorder) Record(obs models.Observation) bool {
	if !r.limiter.Allow() {
		droppedTotal.WithLabelValues("rate_limited").Inc()
		return false
	}
	select {
	case r.queue <- obs:
		return true
	default:
		droppedTotal.WithLabelValues("queue_full").Inc()
		return false
	}
}

// drain processes whatever is already queued, then returns.
func (r *Recorder) drain() {
	for {
		select {
		case obs := <-r.queue:
			r.process(obs)
		default:
			return
		}
	}
}

func (r *Recorder) process(obs models.Observation) {
	r.mu.Lock()
	sessionID := r.sessionID
	r.mu.Unlock()
	if sessionID == "" {
		droppedTotal.WithLabelValues("no_session").Inc()
		return
	}

	match, err := r.resolver.Resolve(obs.Embedding)
	if err != nil {
		if errors.Is(err, roster.ErrDimensionMismatch) {
			droppedTotal.WithLabelValues("bad_embedding").Inc()
			r.logger.Warn("rejected observation", zap.Error(err))
			return
		}
		droppedTotal.WithLabelValues("resolve_error").Inc()
		r.logger.Error("identity resolution failed", zap.Error(err))
		return
	}

	ev := DetectionEvent{
		SessionID:  sessionID,
		Emotion:    obs.Emotion,
		Stress:     obs.Emotion.IsStressClass(),
		Confidence: obs.Confidence,
		ObservedAt: r.clampObserved(obs.ObservedAt),
	}
	if match.Known() {
		id := match.EmployeeID
		ev.EmployeeID = &id
	} else {
		unknownTotal.Inc()
	}
	if box, err := json.Marshal(obs.Region); err == nil {
		ev.BoundingBox = string(box)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.AppendEvent(ctx, &ev); err != nil {
		droppedTotal.WithLabelValues("store_error").Inc()
		r.logger.Error("failed to append event", zap.Error(err))
		return
	}
	recordedTotal.WithLabelValues(string(ev.Emotion)).Inc()

	if r.bus != nil {
		// Handlers outlive this append; give them the recorder's context,
		// not the per-append timeout.
		busCtx := r.ctx
		if busCtx == nil {
			busCtx = context.Background()
		}
		r.bus.PublishAsync(busCtx, plugin.Event{
			Topic:   TopicEventRecorded,
			Source:  "eventlog",
			Payload: &ev,
		})
	}
}

// clampObserved keeps appended timestamps non-decreasing even when capture
// sources deliver slightly out-of-order frames.
func (r *Recorder) clampObserved(t time.Time) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.IsZero() {
		t = time.Now().UTC()
	}
	if t.Before(r.lastObserved) {
		t = r.lastObserved
	}
	r.lastObserved = t
	return t
}
