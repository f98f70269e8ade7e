package queue

import (
	"log/slog"
	"sync"

	"github.com/cortexhq/cortex/pkg/models"
)

// Intake is the bounded FIFO of perceived events awaiting processing.
// Normalizers push; workers claim. At capacity the oldest event is dropped
// with a warning rather than blocking perception.
type Intake struct {
	mu       sync.Mutex
	events   []models.PerceivedEvent
	capacity int
	logger   *slog.Logger
}

// NewIntake creates an intake bounded at capacity.
func NewIntake(capacity int, logger *slog.Logger) *Intake {
	if capacity <= 0 {
		capacity = DefaultConfig().IntakeCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Intake{
		capacity: capacity,
		logger:   logger.With("component", "intake"),
	}
}

// Push appends an event. At capacity the oldest queued event is dropped.
func (q *Intake) Push(event models.PerceivedEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) >= q.capacity {
		dropped := q.events[0]
		q.events = q.events[1:]
		q.logger.Warn("intake full, dropping oldest event",
			"dropped_event_id", dropped.EventID,
			"capacity", q.capacity)
	}
	q.events = append(q.events, event)
}

// Next claims the oldest queued event, or ErrNoEventsAvailable.
func (q *Intake) Next() (models.PerceivedEvent, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return models.PerceivedEvent{}, ErrNoEventsAvailable
	}
	event := q.events[0]
	q.events = q.events[1:]
	return event, nil
}

// Depth returns the number of queued events.
func (q *Intake) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
