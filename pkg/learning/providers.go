package learning

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/cortexhq/cortex/pkg/models"
	"github.com/cortexhq/cortex/pkg/store"
)

// Sentinel errors for the provider tracker.
var (
	// ErrNoProvider indicates no provider passed the selection gates.
	ErrNoProvider = errors.New("no eligible provider")

	// ErrUnknownOptimizer indicates an unsupported optimization target.
	ErrUnknownOptimizer = errors.New("unknown optimizer")
)

// Optimization targets for BestProvider.
const (
	OptimizeSpeed    = "speed"
	OptimizeCost     = "cost"
	OptimizeQuality  = "quality"
	OptimizeBalanced = "balanced"
)

// historyPruneInterval is how many total calls pass between history sweeps;
// the ring buffer bounds memory regardless.
const historyPruneInterval = 100

// CallRecord is one observed AI call.
type CallRecord struct {
	Timestamp           time.Time     `json:"timestamp"`
	Latency             time.Duration `json:"latency_ns"`
	CostUSD             float64       `json:"cost_usd"`
	Success             bool          `json:"success"`
	PredictedConfidence float64       `json:"predicted_confidence"`
	ActualQuality       float64       `json:"actual_quality"`
}

// ProviderTrackerConfig controls persistence and history bounds.
type ProviderTrackerConfig struct {
	// Path of the JSON state file. Empty disables persistence.
	Path string `yaml:"path"`

	// RingSize bounds the per-key call history.
	RingSize int `yaml:"ring_size"`

	// MaxHistoryAge is the sweep horizon for old records.
	MaxHistoryAge time.Duration `yaml:"max_history_age"`
}

// DefaultProviderTrackerConfig keeps 256 records per key for 30 days.
func DefaultProviderTrackerConfig(path string) ProviderTrackerConfig {
	return ProviderTrackerConfig{Path: path, RingSize: 256, MaxHistoryAge: 30 * 24 * time.Hour}
}

// ProviderTracker maintains per-(provider, tier) quality scores and bounded
// call histories.
type ProviderTracker struct {
	mu         sync.Mutex
	scores     map[string]models.ProviderScore
	history    map[string][]CallRecord
	cfg        ProviderTrackerConfig
	totalCalls int
	now        func() time.Time
}

// NewProviderTracker creates a tracker, loading prior scores from the
// configured path when present.
func NewProviderTracker(cfg ProviderTrackerConfig) (*ProviderTracker, error) {
	if cfg.RingSize <= 0 {
		cfg.RingSize = 256
	}
	if cfg.MaxHistoryAge <= 0 {
		cfg.MaxHistoryAge = 30 * 24 * time.Hour
	}
	t := &ProviderTracker{
		scores:  make(map[string]models.ProviderScore),
		history: make(map[string][]CallRecord),
		cfg:     cfg,
		now:     time.Now,
	}
	if cfg.Path != "" {
		if err := t.load(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *ProviderTracker) load() error {
	data, err := os.ReadFile(t.cfg.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading provider scores: %w", err)
	}
	var stored []models.ProviderScore
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("decoding provider scores: %w", err)
	}
	for _, s := range stored {
		t.scores[s.Key()] = s
	}
	return nil
}

// persist serializes the scores sorted by key. Callers must hold the lock.
func (t *ProviderTracker) persist() error {
	if t.cfg.Path == "" {
		return nil
	}
	all := make([]models.ProviderScore, 0, len(t.scores))
	for _, s := range t.scores {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Key() < all[j].Key() })

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding provider scores: %w", err)
	}
	return store.WriteFileAtomic(t.cfg.Path, data)
}

// RecordCall folds one observed call into the provider's running score and
// history ring.
func (t *ProviderTracker) RecordCall(provider, tier string, rec CallRecord) error {
	if provider == "" {
		return fmt.Errorf("%w: empty provider_name", models.ErrInvalidProviderScore)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = t.now().UTC()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := provider + "/" + tier
	score, ok := t.scores[key]
	if !ok {
		score = models.ProviderScore{ProviderName: provider, ModelTier: tier}
	}

	n := float64(score.TotalCalls)
	score.TotalCalls++
	if rec.Success {
		score.SuccessfulCalls++
	} else {
		score.FailedCalls++
	}
	score.AvgConfidence = (score.AvgConfidence*n + rec.PredictedConfidence) / (n + 1)
	score.CalibrationError = (score.CalibrationError*n + math.Abs(rec.PredictedConfidence-rec.ActualQuality)) / (n + 1)
	latencyMs := float64(rec.Latency.Milliseconds())
	score.AvgLatencyMs = (score.AvgLatencyMs*n + latencyMs) / (n + 1)
	score.TotalCostUSD += rec.CostUSD

	// Ring buffer: oldest record dropped at capacity.
	ring := append(t.history[key], rec)
	if len(ring) > t.cfg.RingSize {
		ring = ring[len(ring)-t.cfg.RingSize:]
	}
	t.history[key] = ring
	score.P95LatencyMs = p95Latency(ring)

	t.scores[key] = score
	t.totalCalls++

	// Age-based sweep is kept off the hot path.
	if t.totalCalls%historyPruneInterval == 0 {
		t.pruneHistory()
	}

	return t.persist()
}

// pruneHistory drops records older than the configured horizon. Callers must
// hold the lock.
func (t *ProviderTracker) pruneHistory() {
	cutoff := t.now().UTC().Add(-t.cfg.MaxHistoryAge)
	for key, ring := range t.history {
		kept := ring[:0]
		for _, rec := range ring {
			if rec.Timestamp.After(cutoff) {
				kept = append(kept, rec)
			}
		}
		t.history[key] = kept
	}
}

func p95Latency(ring []CallRecord) float64 {
	if len(ring) == 0 {
		return 0
	}
	latencies := make([]float64, len(ring))
	for i, rec := range ring {
		latencies[i] = float64(rec.Latency.Milliseconds())
	}
	sort.Float64s(latencies)
	idx := int(math.Ceil(0.95*float64(len(latencies)))) - 1
	if idx < 0 {
		idx = 0
	}
	return latencies[idx]
}

// Score returns the current score for one (provider, tier).
func (t *ProviderTracker) Score(provider, tier string) (models.ProviderScore, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.scores[provider+"/"+tier]
	return s, ok
}

// Scores returns a snapshot of all tracked scores.
func (t *ProviderTracker) Scores() []models.ProviderScore {
	t.mu.Lock()
	defer t.mu.Unlock()
	all := make([]models.ProviderScore, 0, len(t.scores))
	for _, s := range t.scores {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Key() < all[j].Key() })
	return all
}

// BestProvider ranks providers with at least minCalls samples by the chosen
// optimizer. Every optimizer is multiplied by the success rate.
func (t *ProviderTracker) BestProvider(optimizeFor string, minCalls int) (models.ProviderScore, error) {
	candidates := t.Scores()

	best := models.ProviderScore{}
	bestScore := -1.0
	for _, s := range candidates {
		if s.TotalCalls < minCalls {
			continue
		}
		weighted, err := optimizerScore(s, optimizeFor)
		if err != nil {
			return models.ProviderScore{}, err
		}
		if weighted > bestScore {
			bestScore = weighted
			best = s
		}
	}
	if bestScore < 0 {
		return models.ProviderScore{}, fmt.Errorf("%w: optimize_for=%s min_calls=%d", ErrNoProvider, optimizeFor, minCalls)
	}
	return best, nil
}

func optimizerScore(s models.ProviderScore, optimizeFor string) (float64, error) {
	speed := 1 / (1 + s.AvgLatencyMs/1000)
	cost := 1 / (1 + s.CostPerSuccess())
	quality := s.AvgConfidence * (1 - s.CalibrationError)

	var base float64
	switch optimizeFor {
	case OptimizeSpeed:
		base = speed
	case OptimizeCost:
		base = cost
	case OptimizeQuality:
		base = quality
	case OptimizeBalanced:
		base = (speed + cost + quality) / 3
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownOptimizer, optimizeFor)
	}
	return base * s.SuccessRate(), nil
}
