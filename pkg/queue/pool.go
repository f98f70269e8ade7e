package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Pool manages the processing workers and the per-event cancel registry.
type Pool struct {
	cfg      Config
	intake   *Intake
	pipeline *Pipeline
	logger   *slog.Logger
	workers  []*Worker

	mu           sync.RWMutex
	activeEvents map[string]context.CancelFunc
	started      bool
}

// NewPool creates a worker pool over the intake and pipeline.
func NewPool(cfg Config, intake *Intake, pipeline *Pipeline, logger *slog.Logger) *Pool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultConfig().WorkerCount
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = DefaultConfig().EventTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		cfg:          cfg,
		intake:       intake,
		pipeline:     pipeline,
		logger:       logger.With("component", "worker_pool"),
		workers:      make([]*Worker, 0, cfg.WorkerCount),
		activeEvents: make(map[string]context.CancelFunc),
	}
}

// Start spawns the workers. Subsequent calls are no-ops.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		p.logger.Warn("worker pool already started, ignoring duplicate Start call")
		return
	}
	p.started = true
	p.mu.Unlock()

	p.logger.Info("starting worker pool", "worker_count", p.cfg.WorkerCount)
	for i := 0; i < p.cfg.WorkerCount; i++ {
		worker := NewWorker(fmt.Sprintf("worker-%d", i), p.cfg, p.intake, p.pipeline, p, p.logger)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}
}

// Stop signals all workers to stop and waits; workers finish their current
// events before exiting.
func (p *Pool) Stop() {
	active := p.activeEventIDs()
	if len(active) > 0 {
		p.logger.Info("waiting for in-flight events", "count", len(active), "event_ids", active)
	}
	for _, worker := range p.workers {
		worker.Stop()
	}
	p.logger.Info("worker pool stopped")
}

// RegisterEvent stores a cancel function for manual cancellation.
func (p *Pool) RegisterEvent(eventID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeEvents[eventID] = cancel
}

// UnregisterEvent removes the cancel function when processing ends.
func (p *Pool) UnregisterEvent(eventID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeEvents, eventID)
}

// CancelEvent cancels an in-flight event. Reports whether it was found.
func (p *Pool) CancelEvent(eventID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cancel, ok := p.activeEvents[eventID]; ok {
		cancel()
		return true
	}
	return false
}

// InFlight returns the number of events currently being processed.
func (p *Pool) InFlight() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.activeEvents)
}

// Health returns the pool health snapshot.
func (p *Pool) Health() *PoolHealth {
	stats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats[i] = worker.Health()
		if stats[i].Status == WorkerStatusWorking {
			activeWorkers++
		}
	}

	inFlight := p.InFlight()
	return &PoolHealth{
		IsHealthy:     len(p.workers) > 0 && inFlight <= p.cfg.MaxConcurrent,
		ActiveWorkers: activeWorkers,
		TotalWorkers:  len(p.workers),
		ActiveEvents:  inFlight,
		MaxConcurrent: p.cfg.MaxConcurrent,
		IntakeDepth:   p.intake.Depth(),
		WorkerStats:   stats,
	}
}

func (p *Pool) activeEventIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.activeEvents))
	for id := range p.activeEvents {
		ids = append(ids, id)
	}
	return ids
}
