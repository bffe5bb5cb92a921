package client

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Handler is a subscriber callback. The payload is the raw JSON payload
// of the event frame.
type Handler func(payload json.RawMessage)

type subscriber struct {
	id uint64
	fn Handler
}

// SubscriberRegistry holds locally registered callbacks per event type.
// It belongs to the ConnectionManager, not to any single connection, so
// subscriptions survive reconnects without duplicate delivery.
type SubscriberRegistry struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscriber
	logger *slog.Logger
}

// NewSubscriberRegistry creates an empty registry
func NewSubscriberRegistry(logger *slog.Logger) *SubscriberRegistry {
	return &SubscriberRegistry{
		subs:   make(map[string][]subscriber),
		logger: logger.With("component", "subscriber_registry"),
	}
}

// On registers a callback for an event type and returns its unsubscribe
// function. Callbacks are invoked in registration order. Calling the
// returned function more than once is a no-op.
func (r *SubscriberRegistry) On(eventType string, fn Handler) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.subs[eventType] = append(r.subs[eventType], subscriber{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		subs := r.subs[eventType]
		for i, s := range subs {
			if s.id == id {
				r.subs[eventType] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
		// Already removed: idempotent
	}
}

// Count returns the number of subscribers for an event type
func (r *SubscriberRegistry) Count(eventType string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[eventType])
}

// Dispatch invokes every subscriber for the event type in registration
// order. Each callback is isolated: a panic in one is recovered and
// logged, and the remaining callbacks still run.
func (r *SubscriberRegistry) Dispatch(eventType string, payload json.RawMessage) {
	r.mu.RLock()
	subs := make([]subscriber, len(r.subs[eventType]))
	copy(subs, r.subs[eventType])
	r.mu.RUnlock()

	for _, s := range subs {
		r.invoke(eventType, s, payload)
	}
}

func (r *SubscriberRegistry) invoke(eventType string, s subscriber, payload json.RawMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("subscriber callback panicked",
				"event_type", eventType,
				"panic", rec,
			)
		}
	}()
	s.fn(payload)
}
