package models

import (
	"errors"
	"fmt"
)

// ErrInvalidProviderScore indicates a provider score violates its invariants.
var ErrInvalidProviderScore = errors.New("invalid provider score")

// ProviderScore aggregates observed quality of one (provider, tier) pair.
type ProviderScore struct {
	ProviderName string `json:"provider_name"`
	ModelTier    string `json:"model_tier"`

	TotalCalls      int `json:"total_calls"`
	SuccessfulCalls int `json:"successful_calls"`
	FailedCalls     int `json:"failed_calls"`

	AvgConfidence    float64 `json:"avg_confidence"`
	CalibrationError float64 `json:"calibration_error"`
	AvgLatencyMs     float64 `json:"avg_latency_ms"`
	P95LatencyMs     float64 `json:"p95_latency_ms"`
	TotalCostUSD     float64 `json:"total_cost_usd"`
}

// Validate checks the count consistency and range invariants.
func (s ProviderScore) Validate() error {
	if s.ProviderName == "" {
		return fmt.Errorf("%w: empty provider_name", ErrInvalidProviderScore)
	}
	if s.TotalCalls < 0 || s.SuccessfulCalls < 0 || s.FailedCalls < 0 {
		return fmt.Errorf("%w: negative call count", ErrInvalidProviderScore)
	}
	if s.TotalCalls != s.SuccessfulCalls+s.FailedCalls {
		return fmt.Errorf("%w: total %d != successful %d + failed %d",
			ErrInvalidProviderScore, s.TotalCalls, s.SuccessfulCalls, s.FailedCalls)
	}
	if !InUnit(s.AvgConfidence) {
		return fmt.Errorf("%w: avg_confidence %v outside [0,1]", ErrInvalidProviderScore, s.AvgConfidence)
	}
	return nil
}

// Key returns the tracker key for the score: "provider/tier".
func (s ProviderScore) Key() string {
	return s.ProviderName + "/" + s.ModelTier
}

// SuccessRate is the fraction of calls that succeeded (0 for no calls).
func (s ProviderScore) SuccessRate() float64 {
	if s.TotalCalls == 0 {
		return 0
	}
	return float64(s.SuccessfulCalls) / float64(s.TotalCalls)
}

// CostPerSuccess is the total spend divided by successful calls
// (0 when nothing has succeeded).
func (s ProviderScore) CostPerSuccess() float64 {
	if s.SuccessfulCalls == 0 {
		return 0
	}
	return s.TotalCostUSD / float64(s.SuccessfulCalls)
}
