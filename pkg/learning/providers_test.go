package learning

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryTracker(t *testing.T) *ProviderTracker {
	t.Helper()
	tr, err := NewProviderTracker(DefaultProviderTrackerConfig(""))
	require.NoError(t, err)
	return tr
}

func TestRecordCallAccumulatesScore(t *testing.T) {
	tr := memoryTracker(t)

	require.NoError(t, tr.RecordCall("anthropic", "sonnet", CallRecord{
		Latency:             800 * time.Millisecond,
		CostUSD:             0.01,
		Success:             true,
		PredictedConfidence: 0.9,
		ActualQuality:       0.8,
	}))
	require.NoError(t, tr.RecordCall("anthropic", "sonnet", CallRecord{
		Latency:             1200 * time.Millisecond,
		CostUSD:             0.02,
		Success:             false,
		PredictedConfidence: 0.7,
		ActualQuality:       0.9,
	}))

	s, ok := tr.Score("anthropic", "sonnet")
	require.True(t, ok)
	assert.Equal(t, 2, s.TotalCalls)
	assert.Equal(t, 1, s.SuccessfulCalls)
	assert.Equal(t, 1, s.FailedCalls)
	assert.Equal(t, s.TotalCalls, s.SuccessfulCalls+s.FailedCalls)
	assert.InDelta(t, 0.8, s.AvgConfidence, 1e-9)
	assert.InDelta(t, 0.15, s.CalibrationError, 1e-9) // (0.1 + 0.2) / 2
	assert.InDelta(t, 1000, s.AvgLatencyMs, 1e-9)
	assert.InDelta(t, 0.03, s.TotalCostUSD, 1e-9)
	assert.InDelta(t, 0.5, s.SuccessRate(), 1e-9)
}

func TestRecordCallRequiresProvider(t *testing.T) {
	tr := memoryTracker(t)
	assert.Error(t, tr.RecordCall("", "sonnet", CallRecord{Success: true}))
}

func TestP95FromBoundedHistory(t *testing.T) {
	cfg := DefaultProviderTrackerConfig("")
	cfg.RingSize = 20
	tr, err := NewProviderTracker(cfg)
	require.NoError(t, err)

	for i := 1; i <= 20; i++ {
		require.NoError(t, tr.RecordCall("openai", "gpt", CallRecord{
			Latency: time.Duration(i*100) * time.Millisecond,
			Success: true,
		}))
	}

	s, ok := tr.Score("openai", "gpt")
	require.True(t, ok)
	assert.InDelta(t, 1900, s.P95LatencyMs, 1e-9)
	assert.Len(t, tr.history["openai/gpt"], 20)

	// Ring stays bounded; one slow outlier lands at p100, not p95.
	require.NoError(t, tr.RecordCall("openai", "gpt", CallRecord{
		Latency: 10 * time.Second,
		Success: true,
	}))
	assert.Len(t, tr.history["openai/gpt"], 20)
}

func TestBestProviderOptimizers(t *testing.T) {
	tr := memoryTracker(t)

	// Fast but sloppy.
	for i := 0; i < 5; i++ {
		require.NoError(t, tr.RecordCall("fastco", "mini", CallRecord{
			Latency:             100 * time.Millisecond,
			CostUSD:             0.001,
			Success:             true,
			PredictedConfidence: 0.9,
			ActualQuality:       0.4,
		}))
	}
	// Slow but well calibrated.
	for i := 0; i < 5; i++ {
		require.NoError(t, tr.RecordCall("sharpco", "max", CallRecord{
			Latency:             3 * time.Second,
			CostUSD:             0.05,
			Success:             true,
			PredictedConfidence: 0.9,
			ActualQuality:       0.88,
		}))
	}

	tests := []struct {
		optimizeFor string
		want        string
	}{
		{OptimizeSpeed, "fastco"},
		{OptimizeCost, "fastco"},
		{OptimizeQuality, "sharpco"},
	}
	for _, tt := range tests {
		t.Run(tt.optimizeFor, func(t *testing.T) {
			best, err := tr.BestProvider(tt.optimizeFor, 3)
			require.NoError(t, err)
			assert.Equal(t, tt.want, best.ProviderName)
		})
	}
}

func TestBestProviderMinCallsGate(t *testing.T) {
	tr := memoryTracker(t)
	require.NoError(t, tr.RecordCall("anthropic", "haiku", CallRecord{Success: true}))

	_, err := tr.BestProvider(OptimizeBalanced, 5)
	assert.ErrorIs(t, err, ErrNoProvider)

	best, err := tr.BestProvider(OptimizeBalanced, 1)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", best.ProviderName)
}

func TestBestProviderUnknownOptimizer(t *testing.T) {
	tr := memoryTracker(t)
	require.NoError(t, tr.RecordCall("anthropic", "haiku", CallRecord{Success: true}))

	_, err := tr.BestProvider("vibes", 1)
	assert.ErrorIs(t, err, ErrUnknownOptimizer)
}

func TestFailedCallsDragTheScore(t *testing.T) {
	tr := memoryTracker(t)

	for i := 0; i < 4; i++ {
		require.NoError(t, tr.RecordCall("flaky", "mini", CallRecord{Success: i == 0}))
		require.NoError(t, tr.RecordCall("steady", "mini", CallRecord{Success: true}))
	}

	best, err := tr.BestProvider(OptimizeSpeed, 3)
	require.NoError(t, err)
	assert.Equal(t, "steady", best.ProviderName)
}

func TestProviderTrackerPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.json")
	cfg := DefaultProviderTrackerConfig(path)

	tr, err := NewProviderTracker(cfg)
	require.NoError(t, err)
	require.NoError(t, tr.RecordCall("anthropic", "sonnet", CallRecord{
		Latency: 500 * time.Millisecond,
		CostUSD: 0.01,
		Success: true,
	}))

	reloaded, err := NewProviderTracker(cfg)
	require.NoError(t, err)
	s, ok := reloaded.Score("anthropic", "sonnet")
	require.True(t, ok)
	assert.Equal(t, 1, s.TotalCalls)
	assert.InDelta(t, 0.01, s.TotalCostUSD, 1e-9)
}

func TestPruneHistoryDropsOldRecords(t *testing.T) {
	tr := memoryTracker(t)
	frozen := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return frozen }

	require.NoError(t, tr.RecordCall("anthropic", "sonnet", CallRecord{
		Timestamp: frozen.Add(-60 * 24 * time.Hour),
		Success:   true,
	}))
	require.NoError(t, tr.RecordCall("anthropic", "sonnet", CallRecord{
		Timestamp: frozen.Add(-time.Hour),
		Success:   true,
	}))

	tr.mu.Lock()
	tr.pruneHistory()
	remaining := len(tr.history["anthropic/sonnet"])
	tr.mu.Unlock()
	assert.Equal(t, 1, remaining)
}
