package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidHypothesis indicates a hypothesis violates a documented invariant.
var ErrInvalidHypothesis = errors.New("invalid hypothesis")

// Hypothesis is a candidate conclusion about an event, with supporting and
// contradicting evidence. Mutable within a working memory.
type Hypothesis struct {
	ID                    string         `json:"id"`
	Description           string         `json:"description"`
	Confidence            float64        `json:"confidence"`
	SupportingEvidence    []string       `json:"supporting_evidence"`
	ContradictingEvidence []string       `json:"contradicting_evidence"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
	Metadata              map[string]any `json:"metadata"`
}

// NewHypothesis builds a validated hypothesis with timestamps set to now.
func NewHypothesis(id, description string, confidence float64) (*Hypothesis, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidHypothesis)
	}
	if description == "" {
		return nil, fmt.Errorf("%w: empty description", ErrInvalidHypothesis)
	}
	if !InUnit(confidence) {
		return nil, fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidHypothesis, confidence)
	}
	now := time.Now().UTC()
	return &Hypothesis{
		ID:                    id,
		Description:           description,
		Confidence:            confidence,
		SupportingEvidence:    []string{},
		ContradictingEvidence: []string{},
		CreatedAt:             now,
		UpdatedAt:             now,
		Metadata:              map[string]any{},
	}, nil
}

// AddSupport appends supporting evidence and bumps the update timestamp.
func (h *Hypothesis) AddSupport(evidence string) {
	h.SupportingEvidence = append(h.SupportingEvidence, evidence)
	h.UpdatedAt = time.Now().UTC()
}

// AddContradiction appends contradicting evidence and bumps the update timestamp.
func (h *Hypothesis) AddContradiction(evidence string) {
	h.ContradictingEvidence = append(h.ContradictingEvidence, evidence)
	h.UpdatedAt = time.Now().UTC()
}

// SetConfidence updates the confidence, clamped into [0,1].
func (h *Hypothesis) SetConfidence(confidence float64) {
	h.Confidence = Clamp01(confidence)
	h.UpdatedAt = time.Now().UTC()
}
