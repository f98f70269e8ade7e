package learning

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/cortexhq/cortex/pkg/models"
	"github.com/cortexhq/cortex/pkg/store"
)

// Sentinel errors for the pattern store.
var (
	// ErrDuplicatePattern indicates an Add with an id already stored.
	ErrDuplicatePattern = errors.New("duplicate pattern")

	// ErrPatternNotFound indicates an update to a pattern that is not
	// stored.
	ErrPatternNotFound = errors.New("pattern not found")
)

// Confidence adjustments on recorded outcomes: small reward, larger penalty.
const (
	successConfidenceDelta = 0.02
	failureConfidenceDelta = -0.05
)

// PatternStoreConfig controls persistence, pruning, and query gates.
type PatternStoreConfig struct {
	// Path of the JSON state file. Empty disables persistence.
	Path string `yaml:"path"`

	MaxAgeDays     int     `yaml:"max_age_days"`
	MinOccurrences int     `yaml:"min_occurrences"`
	MinSuccessRate float64 `yaml:"min_success_rate"`

	// Pruning drops well-observed underperformers: patterns with at least
	// MinOccurrences × OccurrenceFactor samples and a success rate below
	// MinSuccessRate × SuccessFactor.
	PruneOccurrenceFactor int     `yaml:"prune_occurrence_factor"`
	PruneSuccessFactor    float64 `yaml:"prune_success_factor"`
}

// DefaultPatternStoreConfig returns the pattern store defaults.
func DefaultPatternStoreConfig(path string) PatternStoreConfig {
	return PatternStoreConfig{
		Path:                  path,
		MaxAgeDays:            90,
		MinOccurrences:        3,
		MinSuccessRate:        0.5,
		PruneOccurrenceFactor: 2,
		PruneSuccessFactor:    0.8,
	}
}

// PatternQuery gates and bounds a ranked pattern query. Zero values fall back
// to the store config.
type PatternQuery struct {
	MinOccurrences int
	MinSuccessRate float64
	MaxResults     int
}

// PatternStore is the thread-safe, JSON-persistent set of learned patterns.
type PatternStore struct {
	mu       sync.RWMutex
	patterns map[string]models.Pattern
	cfg      PatternStoreConfig
	now      func() time.Time
}

// NewPatternStore creates a store, loading prior state from the configured
// path when present.
func NewPatternStore(cfg PatternStoreConfig) (*PatternStore, error) {
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 90
	}
	if cfg.PruneOccurrenceFactor <= 0 {
		cfg.PruneOccurrenceFactor = 2
	}
	if cfg.PruneSuccessFactor <= 0 {
		cfg.PruneSuccessFactor = 0.8
	}
	s := &PatternStore{
		patterns: make(map[string]models.Pattern),
		cfg:      cfg,
		now:      time.Now,
	}
	if cfg.Path != "" {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *PatternStore) load() error {
	data, err := os.ReadFile(s.cfg.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading pattern store: %w", err)
	}
	var stored []models.Pattern
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("decoding pattern store: %w", err)
	}
	for _, p := range stored {
		s.patterns[p.PatternID] = p
	}
	return nil
}

// persist serializes the full set, sorted by id, with an atomic rename.
// Callers must hold the lock.
func (s *PatternStore) persist() error {
	if s.cfg.Path == "" {
		return nil
	}
	all := make([]models.Pattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].PatternID < all[j].PatternID })

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding pattern store: %w", err)
	}
	return store.WriteFileAtomic(s.cfg.Path, data)
}

// Add stores a new pattern. The id must be unused.
func (s *PatternStore) Add(p models.Pattern) error {
	validated, err := models.NewPattern(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.patterns[validated.PatternID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePattern, validated.PatternID)
	}
	s.patterns[validated.PatternID] = validated
	return s.persist()
}

// Get returns one pattern by id.
func (s *PatternStore) Get(id string) (models.Pattern, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patterns[id]
	return p, ok
}

// Len returns the number of stored patterns.
func (s *PatternStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.patterns)
}

// RecordSuccess folds a positive outcome into the pattern's statistics.
func (s *PatternStore) RecordSuccess(id string) error {
	return s.recordOutcome(id, true)
}

// RecordFailure folds a negative outcome into the pattern's statistics.
func (s *PatternStore) RecordFailure(id string) error {
	return s.recordOutcome(id, false)
}

// recordOutcome recomputes the success rate incrementally and nudges the
// confidence. Patterns are values: the updated copy replaces the slot.
func (s *PatternStore) recordOutcome(id string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patterns[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPatternNotFound, id)
	}

	outcome := 0.0
	delta := failureConfidenceDelta
	if success {
		outcome = 1.0
		delta = successConfidenceDelta
	}

	n := float64(p.Occurrences)
	p.SuccessRate = models.Clamp01((p.SuccessRate*n + outcome) / (n + 1))
	p.Occurrences++
	p.Confidence = models.Clamp01(p.Confidence + delta)
	p.LastSeen = s.now().UTC()

	s.patterns[id] = p
	return s.persist()
}

// Match returns every stored pattern whose conditions entail the event. The
// set is snapshotted under the lock; matching runs outside it.
func (s *PatternStore) Match(event *models.PerceivedEvent) []models.Pattern {
	s.mu.RLock()
	snapshot := make([]models.Pattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		snapshot = append(snapshot, p)
	}
	s.mu.RUnlock()

	var matched []models.Pattern
	for _, p := range snapshot {
		if p.Matches(event) {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].PatternID < matched[j].PatternID })
	return matched
}

// Query applies the occurrence and success-rate gates, then ranks by a
// relevance score combining quality, recency, and reliability.
func (s *PatternStore) Query(q PatternQuery) []models.Pattern {
	if q.MinOccurrences == 0 {
		q.MinOccurrences = s.cfg.MinOccurrences
	}
	if q.MinSuccessRate == 0 {
		q.MinSuccessRate = s.cfg.MinSuccessRate
	}

	s.mu.RLock()
	snapshot := make([]models.Pattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		snapshot = append(snapshot, p)
	}
	s.mu.RUnlock()

	now := s.now().UTC()
	var eligible []models.Pattern
	for _, p := range snapshot {
		if p.Occurrences >= q.MinOccurrences && p.SuccessRate >= q.MinSuccessRate {
			eligible = append(eligible, p)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		ri, rj := s.relevance(eligible[i], now), s.relevance(eligible[j], now)
		if ri != rj {
			return ri > rj
		}
		return eligible[i].PatternID < eligible[j].PatternID
	})
	if q.MaxResults > 0 && len(eligible) > q.MaxResults {
		eligible = eligible[:q.MaxResults]
	}
	return eligible
}

// relevance blends base quality, recency, and occurrence reliability.
func (s *PatternStore) relevance(p models.Pattern, now time.Time) float64 {
	quality := p.Confidence * p.SuccessRate

	maxAge := float64(s.cfg.MaxAgeDays) * 24
	ageHours := now.Sub(p.LastSeen).Hours()
	recency := models.Clamp01(1 - ageHours/maxAge)

	reliability := models.Clamp01(float64(p.Occurrences) / float64(s.cfg.MinOccurrences*3))

	return 0.5*quality + 0.3*recency + 0.2*reliability
}

// Prune drops stale patterns and well-observed underperformers, returning
// how many were removed.
func (s *PatternStore) Prune() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	maxAge := time.Duration(s.cfg.MaxAgeDays) * 24 * time.Hour
	occFloor := s.cfg.MinOccurrences * s.cfg.PruneOccurrenceFactor
	rateFloor := s.cfg.MinSuccessRate * s.cfg.PruneSuccessFactor

	removed := 0
	for id, p := range s.patterns {
		stale := now.Sub(p.LastSeen) > maxAge
		underperforming := p.Occurrences >= occFloor && p.SuccessRate < rateFloor
		if stale || underperforming {
			delete(s.patterns, id)
			removed++
		}
	}
	if removed > 0 {
		if err := s.persist(); err != nil {
			return removed, err
		}
	}
	return removed, nil
}
