package engine

import (
	"sync"
	"time"
)

// SubscriberFunc is a callback invoked when an event is emitted.
type SubscriberFunc func(Event)

type subscriber struct {
	fn    SubscriberFunc
	types map[EventType]bool
}

// EventBus dispatches lifecycle events synchronously on the emitting
// goroutine, in subscription order. Subscribers must not block; they run
// inside the control loop.
type EventBus struct {
	mu   sync.RWMutex
	subs []subscriber
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers fn for every event.
func (eb *EventBus) Subscribe(fn SubscriberFunc) {
	eb.mu.Lock()
	eb.subs = append(eb.subs, subscriber{fn: fn})
	eb.mu.Unlock()
}

// SubscribeTypes registers fn for the listed event types only.
func (eb *EventBus) SubscribeTypes(fn SubscriberFunc, types ...EventType) {
	set := make(map[EventType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	eb.mu.Lock()
	eb.subs = append(eb.subs, subscriber{fn: fn, types: set})
	eb.mu.Unlock()
}

// Emit stamps evt if needed and delivers it.
func (eb *EventBus) Emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	eb.mu.RLock()
	subs := append([]subscriber(nil), eb.subs...)
	eb.mu.RUnlock()

	for _, s := range subs {
		if s.types != nil && !s.types[evt.Type] {
			continue
		}
		s.fn(evt)
	}
}
