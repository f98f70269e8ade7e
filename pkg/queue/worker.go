package queue

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// EventRegistry is the subset of Pool used by Worker for cancel registration.
type EventRegistry interface {
	RegisterEvent(eventID string, cancel context.CancelFunc)
	UnregisterEvent(eventID string)
	InFlight() int
}

// Worker polls the intake and processes claimed events through the pipeline.
type Worker struct {
	id       string
	cfg      Config
	intake   *Intake
	pipeline *Pipeline
	registry EventRegistry
	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu              sync.RWMutex
	status          WorkerStatus
	currentEventID  string
	eventsProcessed int
	lastActivity    time.Time
}

// NewWorker creates a worker.
func NewWorker(id string, cfg Config, intake *Intake, pipeline *Pipeline, registry EventRegistry, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		id:           id,
		cfg:          cfg,
		intake:       intake,
		pipeline:     pipeline,
		registry:     registry,
		logger:       logger.With("worker_id", id),
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish its current
// event. Safe to call multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the worker's health snapshot.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:              w.id,
		Status:          w.status,
		CurrentEventID:  w.currentEventID,
		EventsProcessed: w.eventsProcessed,
		LastActivity:    w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	w.logger.Info("worker started")

	for {
		select {
		case <-w.stopCh:
			w.logger.Info("worker shutting down")
			return
		case <-ctx.Done():
			w.logger.Info("context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoEventsAvailable) || errors.Is(err, ErrAtCapacity) {
					w.sleep(w.pollInterval())
					continue
				}
				w.logger.Error("event processing failed", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

// pollAndProcess claims one event and runs it through the pipeline under the
// event timeout.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	if w.registry.InFlight() >= w.cfg.MaxConcurrent {
		return ErrAtCapacity
	}

	event, err := w.intake.Next()
	if err != nil {
		return err
	}

	log := w.logger.With("event_id", event.EventID)
	log.Info("event claimed")

	w.setStatus(WorkerStatusWorking, event.EventID)
	defer w.setStatus(WorkerStatusIdle, "")

	eventCtx, cancel := context.WithTimeout(ctx, w.cfg.EventTimeout)
	defer cancel()

	w.registry.RegisterEvent(event.EventID, cancel)
	defer w.registry.UnregisterEvent(event.EventID)

	outcome, err := w.pipeline.Process(eventCtx, event)

	w.mu.Lock()
	w.eventsProcessed++
	w.mu.Unlock()

	if err != nil {
		return err
	}
	log.Info("event processed",
		"decision", string(outcome.Decision),
		"disposition", string(outcome.Disposition),
		"mode", string(outcome.Mode),
		"executed", outcome.Executed,
		"queued", outcome.Queued)
	return nil
}

// sleep waits for the duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollInterval returns the poll duration with jitter in
// [base-jitter, base+jitter].
func (w *Worker) pollInterval() time.Duration {
	base := w.cfg.PollInterval
	jitter := w.cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

func (w *Worker) setStatus(status WorkerStatus, eventID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentEventID = eventID
	w.lastActivity = time.Now()
}
