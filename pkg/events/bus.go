package events

import (
	"log/slog"
	"sync"
	"time"
)

// BusEvent is one in-process domain event.
type BusEvent struct {
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Bus is an in-process publish/subscribe fan-out. Handlers run synchronously
// on the publisher's goroutine and must not block.
type Bus struct {
	mu       sync.RWMutex
	handlers map[int]func(BusEvent)
	nextID   int
	logger   *slog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[int]func(BusEvent)),
		logger:   logger.With("component", "event_bus"),
	}
}

// Subscribe registers a handler and returns its subscription id.
func (b *Bus) Subscribe(handler func(BusEvent)) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers[b.nextID] = handler
	return b.nextID
}

// Unsubscribe removes a handler. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
}

// SubscriberCount returns the number of registered handlers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

// Publish delivers the event to every handler. The handler set is snapshotted
// under the lock so handlers may unsubscribe themselves.
func (b *Bus) Publish(event BusEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	snapshot := make([]func(BusEvent), 0, len(b.handlers))
	for _, h := range b.handlers {
		snapshot = append(snapshot, h)
	}
	b.mu.RUnlock()

	for _, h := range snapshot {
		h(event)
	}
}
