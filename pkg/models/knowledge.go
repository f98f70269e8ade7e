package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidKnowledgeUpdate indicates a knowledge update violates its invariants.
var ErrInvalidKnowledgeUpdate = errors.New("invalid knowledge update")

// KnowledgeUpdate is one proposed change to the external knowledge base.
type KnowledgeUpdate struct {
	UpdateID   string              `json:"update_id"`
	Type       KnowledgeUpdateType `json:"type"`
	TargetID   string              `json:"target_id"`
	Changes    map[string]any      `json:"changes"`
	Confidence float64             `json:"confidence"`
	Source     string              `json:"source"`
	CreatedAt  time.Time           `json:"created_at"`
}

// NewKnowledgeUpdate builds a validated update with a fresh unique id.
func NewKnowledgeUpdate(t KnowledgeUpdateType, targetID string, changes map[string]any, confidence float64, source string) (KnowledgeUpdate, error) {
	if !t.IsValid() {
		return KnowledgeUpdate{}, fmt.Errorf("%w: unknown type %q", ErrInvalidKnowledgeUpdate, t)
	}
	if targetID == "" {
		return KnowledgeUpdate{}, fmt.Errorf("%w: empty target_id", ErrInvalidKnowledgeUpdate)
	}
	if len(changes) == 0 {
		return KnowledgeUpdate{}, fmt.Errorf("%w: empty changes", ErrInvalidKnowledgeUpdate)
	}
	if !InUnit(confidence) {
		return KnowledgeUpdate{}, fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidKnowledgeUpdate, confidence)
	}
	return KnowledgeUpdate{
		UpdateID:   uuid.New().String(),
		Type:       t,
		TargetID:   targetID,
		Changes:    changes,
		Confidence: confidence,
		Source:     source,
		CreatedAt:  time.Now().UTC(),
	}, nil
}
