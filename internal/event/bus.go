// Package event provides the in-memory publish/subscribe bus that carries
// detection, alert, and report notifications between modules.
package event

import (
	"context"
	"sync"

	"github.com/stressvision/stressvision/pkg/plugin"
	"go.uber.org/zap"
)

// Compile-time interface guard.
var _ plugin.EventBus = (*Bus)(nil)

// Bus is an in-memory event bus implementing plugin.EventBus. Publish runs
// handlers in the caller's goroutine; PublishAsync runs each handler in its
// own goroutine so the detection pipeline is never stalled by a slow
// subscriber. A panicking handler is isolated and counted, never fatal.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]subscription // keyed by topic
	tapAll []subscription            // subscribed to every topic
	nextID uint64
	logger *zap.Logger
}

type subscription struct {
	id      uint64
	handler plugin.EventHandler
}

// NewBus creates a new in-memory event bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		subs:   make(map[string][]subscription),
		logger: logger,
	}
}

// Publish dispatches an event synchronously to all matching handlers.
func (b *Bus) Publish(ctx context.Context, event plugin.Event) error {
	b.dispatch(ctx, event, false)
	return nil
}

// PublishAsync dispatches an event asynchronously to all matching handlers.
func (b *Bus) PublishAsync(ctx context.Context, event plugin.Event) {
	b.dispatch(ctx, event, true)
}

func (b *Bus) dispatch(ctx context.Context, event plugin.Event, async bool) {
	b.mu.RLock()
	matched := make([]subscription, 0, len(b.subs[event.Topic])+len(b.tapAll))
	matched = append(matched, b.subs[event.Topic]...)
	matched = append(matched, b.tapAll...)
	b.mu.RUnlock()

	publishedTotal.WithLabelValues(event.Topic).Inc()
	for _, s := range matched {
		if async {
			go b.safeCall(ctx, s.handler, event)
		} else {
			b.safeCall(ctx, s.handler, event)
		}
	}
}

// Subscribe registers a handler for a specific topic. Returns an unsubscribe function.
func (b *Bus) Subscribe(topic string, handler plugin.EventHandler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.subs[topic] = withoutID(b.subs[topic], id)
	}
}

// SubscribeAll registers a handler for all topics. Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler plugin.EventHandler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.tapAll = append(b.tapAll, subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.tapAll = withoutID(b.tapAll, id)
	}
}

func withoutID(subs []subscription, id uint64) []subscription {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}

func (b *Bus) safeCall(ctx context.Context, handler plugin.EventHandler, event plugin.Event) {
	defer func() {
		if r := recover(); r != nil {
			panicsTotal.WithLabelValues(event.Topic).Inc()
			b.logger.Error("event handler panicked",
				zap.String("topic", event.Topic),
				zap.String("source", event.Source),
				zap.Any("panic", r),
			)
		}
	}()
	handler(ctx, event)
}
