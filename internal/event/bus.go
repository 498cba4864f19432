package event

import (
	"log"
	"runtime/debug"
	"sync"
)

// Handler is a function that handles an event.
type Handler func(Event)

// subscription is a registered handler for one event type.
type subscription struct {
	id      int
	handler Handler
}

// Bus is a simple synchronous pub-sub event bus. Handlers run on the
// publisher's goroutine; a panicking handler is recovered and logged so
// it cannot block delivery to the rest.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]subscription // eventType -> subscriptions
	nextID int
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]subscription)}
}

// Subscribe registers a handler for a specific event type.
// Returns a subscription ID for Unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs[eventType] = append(b.subs[eventType], subscription{id: b.nextID, handler: handler})
	return b.nextID
}

// SubscribeAll registers a handler called for every published event.
func (b *Bus) SubscribeAll(handler Handler) int {
	return b.Subscribe("*", handler)
}

// Unsubscribe removes a subscription by ID.
// Returns true if the subscription was found and removed.
func (b *Bus) Unsubscribe(id int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subs {
		for i, sub := range subs {
			if sub.id == id {
				b.subs[eventType] = append(subs[:i], subs[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Publish dispatches an event to all handlers registered for its type,
// then to wildcard handlers, in registration order.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	specific := make([]subscription, len(b.subs[event.EventType()]))
	copy(specific, b.subs[event.EventType()])
	wildcard := make([]subscription, len(b.subs["*"]))
	copy(wildcard, b.subs["*"])
	b.mu.RUnlock()

	for _, sub := range specific {
		b.safeCall(sub.handler, event)
	}
	for _, sub := range wildcard {
		b.safeCall(sub.handler, event)
	}
}

// safeCall invokes a handler and recovers from any panic.
func (b *Bus) safeCall(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: event handler panicked for event %s: %v\n%s",
				event.EventType(), r, debug.Stack())
		}
	}()
	handler(event)
}

// SubscriptionCount returns the total number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, subs := range b.subs {
		count += len(subs)
	}
	return count
}
