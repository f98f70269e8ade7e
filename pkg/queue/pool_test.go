package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexhq/cortex/pkg/models"
)

func processedCount(pool *Pool) int {
	total := 0
	for _, w := range pool.workers {
		total += w.Health().EventsProcessed
	}
	return total
}

func poolConfig() Config {
	cfg := DefaultConfig()
	cfg.WorkerCount = 2
	cfg.PollInterval = 10 * time.Millisecond
	cfg.PollIntervalJitter = 0
	cfg.EventTimeout = 5 * time.Second
	return cfg
}

func TestPoolProcessesIntakeEvents(t *testing.T) {
	router := &scriptedRouter{responses: []string{"CONCLUSION: archive this notification\nCONFIDENCE: 0.96"}}
	fix := newPipelineFixture(t, router, nil)

	intake := NewIntake(16, nil)
	for i := 0; i < 3; i++ {
		event := mailEvent(t, "Build finished")
		event.EventID = fmt.Sprintf("evt-%d", i)
		intake.Push(event)
	}

	pool := NewPool(poolConfig(), intake, fix.pipeline, nil)
	pool.Start(context.Background())
	defer pool.Stop()

	require.Eventually(t, func() bool {
		return processedCount(pool) == 3 && intake.Depth() == 0
	}, 3*time.Second, 10*time.Millisecond)

	pool.Stop()
	assert.Len(t, fix.mail.Moves, 3)
}

func TestPoolGracefulStop(t *testing.T) {
	router := &scriptedRouter{responses: []string{"CONCLUSION: archive this notification\nCONFIDENCE: 0.96"}}
	fix := newPipelineFixture(t, router, nil)

	intake := NewIntake(16, nil)
	intake.Push(mailEvent(t, "Build finished"))

	pool := NewPool(poolConfig(), intake, fix.pipeline, nil)
	pool.Start(context.Background())

	require.Eventually(t, func() bool { return processedCount(pool) == 1 }, 3*time.Second, 10*time.Millisecond)
	pool.Stop()

	// No event left in flight after a graceful stop.
	assert.Zero(t, pool.InFlight())
}

func TestPoolStartIsIdempotent(t *testing.T) {
	router := &scriptedRouter{responses: []string{"CONCLUSION: archive\nCONFIDENCE: 0.96"}}
	fix := newPipelineFixture(t, router, nil)

	pool := NewPool(poolConfig(), NewIntake(4, nil), fix.pipeline, nil)
	pool.Start(context.Background())
	pool.Start(context.Background())
	defer pool.Stop()

	assert.Len(t, pool.workers, 2)
}

func TestPoolCancelEvent(t *testing.T) {
	pool := NewPool(poolConfig(), NewIntake(4, nil), nil, nil)

	cancelled := false
	pool.RegisterEvent("evt-1", func() { cancelled = true })

	assert.True(t, pool.CancelEvent("evt-1"))
	assert.True(t, cancelled)
	assert.False(t, pool.CancelEvent("evt-missing"))

	pool.UnregisterEvent("evt-1")
	assert.Zero(t, pool.InFlight())
}

func TestPoolHealthSnapshot(t *testing.T) {
	router := &scriptedRouter{responses: []string{"CONCLUSION: archive\nCONFIDENCE: 0.96"}}
	fix := newPipelineFixture(t, router, nil)

	intake := NewIntake(4, nil)
	intake.Push(models.PerceivedEvent{EventID: "queued-1"})

	pool := NewPool(poolConfig(), intake, fix.pipeline, nil)

	// Before start: no workers, not healthy.
	health := pool.Health()
	assert.False(t, health.IsHealthy)
	assert.Zero(t, health.TotalWorkers)
	assert.Equal(t, 1, health.IntakeDepth)

	pool.Start(context.Background())
	defer pool.Stop()

	require.Eventually(t, func() bool {
		h := pool.Health()
		return h.IsHealthy && h.TotalWorkers == 2
	}, 3*time.Second, 10*time.Millisecond)
}
