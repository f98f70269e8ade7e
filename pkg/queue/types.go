// Package queue runs the processing worker pool: workers claim perceived
// events from the intake, drive each through the full pipeline, and either
// execute the resulting plan or surface it on the review queue.
package queue

import (
	"errors"
	"time"
)

// Sentinel errors for the worker loop.
var (
	// ErrNoEventsAvailable indicates the intake is empty.
	ErrNoEventsAvailable = errors.New("no events available")

	// ErrAtCapacity indicates the pool is already processing its maximum
	// number of concurrent events.
	ErrAtCapacity = errors.New("at capacity")
)

// Config tunes the worker pool.
type Config struct {
	// WorkerCount is the number of polling workers.
	WorkerCount int `yaml:"worker_count"`

	// MaxConcurrent bounds events in flight across all workers.
	MaxConcurrent int `yaml:"max_concurrent"`

	// PollInterval is the idle sleep between intake polls.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter spreads polls across workers.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// EventTimeout bounds the processing of one event end to end.
	EventTimeout time.Duration `yaml:"event_timeout"`

	// IntakeCapacity bounds the intake buffer. At capacity the oldest
	// event is dropped with a warning.
	IntakeCapacity int `yaml:"intake_capacity"`
}

// DefaultConfig returns the pool defaults.
func DefaultConfig() Config {
	return Config{
		WorkerCount:        2,
		MaxConcurrent:      4,
		PollInterval:       2 * time.Second,
		PollIntervalJitter: 500 * time.Millisecond,
		EventTimeout:       5 * time.Minute,
		IntakeCapacity:     256,
	}
}

// WorkerStatus is the current state of one worker.
type WorkerStatus string

// Worker status values.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth is one worker's health snapshot.
type WorkerHealth struct {
	ID              string       `json:"id"`
	Status          WorkerStatus `json:"status"`
	CurrentEventID  string       `json:"current_event_id,omitempty"`
	EventsProcessed int          `json:"events_processed"`
	LastActivity    time.Time    `json:"last_activity"`
}

// PoolHealth is the pool-level health snapshot.
type PoolHealth struct {
	IsHealthy     bool           `json:"is_healthy"`
	ActiveWorkers int            `json:"active_workers"`
	TotalWorkers  int            `json:"total_workers"`
	ActiveEvents  int            `json:"active_events"`
	MaxConcurrent int            `json:"max_concurrent"`
	IntakeDepth   int            `json:"intake_depth"`
	WorkerStats   []WorkerHealth `json:"worker_stats"`
}
