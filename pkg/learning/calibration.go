package learning

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/cortexhq/cortex/pkg/models"
	"github.com/cortexhq/cortex/pkg/store"
)

// CalibratorConfig controls binning, smoothing, and persistence.
type CalibratorConfig struct {
	// Path of the JSON state file. Empty disables persistence.
	Path string `yaml:"path"`

	// Bins divides [0,1] into equal-width confidence bins.
	Bins int `yaml:"bins"`

	// RingSize bounds the per-bin observation history.
	RingSize int `yaml:"ring_size"`

	// MinSamplesPerBin is the floor under which Calibrate is the identity.
	MinSamplesPerBin int `yaml:"min_samples_per_bin"`

	// Smoothing pulls the calibrated value back toward the raw prediction;
	// 0 returns the bin average, 1 the prediction.
	Smoothing float64 `yaml:"smoothing"`
}

// DefaultCalibratorConfig uses 10 bins of up to 128 observations.
func DefaultCalibratorConfig(path string) CalibratorConfig {
	return CalibratorConfig{
		Path:             path,
		Bins:             10,
		RingSize:         128,
		MinSamplesPerBin: 5,
		Smoothing:        0.3,
	}
}

// observation is one (predicted, actual) pair.
type observation struct {
	Predicted float64 `json:"predicted"`
	Actual    float64 `json:"actual"`
}

// ConfidenceCalibrator maps predicted confidence to observed correctness by
// binning past observations.
type ConfidenceCalibrator struct {
	mu   sync.Mutex
	bins [][]observation
	cfg  CalibratorConfig
}

// NewConfidenceCalibrator creates a calibrator, loading prior observations
// from the configured path when present.
func NewConfidenceCalibrator(cfg CalibratorConfig) (*ConfidenceCalibrator, error) {
	if cfg.Bins <= 0 {
		cfg.Bins = 10
	}
	if cfg.RingSize <= 0 {
		cfg.RingSize = 128
	}
	if cfg.Smoothing < 0 || cfg.Smoothing > 1 {
		return nil, fmt.Errorf("%w: smoothing %v outside [0,1]", ErrInvalidConfig, cfg.Smoothing)
	}
	c := &ConfidenceCalibrator{
		bins: make([][]observation, cfg.Bins),
		cfg:  cfg,
	}
	if cfg.Path != "" {
		if err := c.load(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *ConfidenceCalibrator) load() error {
	data, err := os.ReadFile(c.cfg.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading calibration state: %w", err)
	}
	var stored [][]observation
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("decoding calibration state: %w", err)
	}
	for i := 0; i < len(stored) && i < len(c.bins); i++ {
		c.bins[i] = stored[i]
	}
	return nil
}

// persist writes all bins atomically. Callers must hold the lock.
func (c *ConfidenceCalibrator) persist() error {
	if c.cfg.Path == "" {
		return nil
	}
	data, err := json.MarshalIndent(c.bins, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding calibration state: %w", err)
	}
	return store.WriteFileAtomic(c.cfg.Path, data)
}

func (c *ConfidenceCalibrator) binIndex(p float64) int {
	idx := int(p * float64(c.cfg.Bins))
	if idx >= c.cfg.Bins {
		idx = c.cfg.Bins - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// AddObservation records one (predicted, actual) pair in the matching bin.
func (c *ConfidenceCalibrator) AddObservation(predicted, actual float64) error {
	if !models.InUnit(predicted) || !models.InUnit(actual) {
		return fmt.Errorf("%w: observation (%v, %v) outside [0,1]", ErrInvalidConfig, predicted, actual)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.binIndex(predicted)
	ring := append(c.bins[idx], observation{Predicted: predicted, Actual: actual})
	if len(ring) > c.cfg.RingSize {
		ring = ring[len(ring)-c.cfg.RingSize:]
	}
	c.bins[idx] = ring
	return c.persist()
}

// Calibrate maps a predicted confidence onto the observed correctness of its
// bin, smoothed toward the prediction. Underpopulated bins return the
// prediction unchanged.
func (c *ConfidenceCalibrator) Calibrate(p float64) float64 {
	p = models.Clamp01(p)

	c.mu.Lock()
	defer c.mu.Unlock()

	bin := c.bins[c.binIndex(p)]
	if len(bin) < c.cfg.MinSamplesPerBin {
		return p
	}

	sum := 0.0
	for _, obs := range bin {
		sum += obs.Actual
	}
	avgActual := sum / float64(len(bin))

	return models.Clamp01(c.cfg.Smoothing*p + (1-c.cfg.Smoothing)*avgActual)
}

// ECE is the expected calibration error: the sample-weighted mean of each
// bin's |avg predicted − avg actual|.
func (c *ConfidenceCalibrator) ECE() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	weighted := 0.0
	for _, bin := range c.bins {
		if len(bin) == 0 {
			continue
		}
		sumPred, sumActual := 0.0, 0.0
		for _, obs := range bin {
			sumPred += obs.Predicted
			sumActual += obs.Actual
		}
		n := float64(len(bin))
		weighted += n * math.Abs(sumPred/n-sumActual/n)
		total += len(bin)
	}
	if total == 0 {
		return 0
	}
	return weighted / float64(total)
}

// SampleCount returns the total number of stored observations.
func (c *ConfidenceCalibrator) SampleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, bin := range c.bins {
		total += len(bin)
	}
	return total
}
