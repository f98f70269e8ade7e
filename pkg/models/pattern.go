package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPattern indicates a pattern violates a documented invariant.
var ErrInvalidPattern = errors.New("invalid pattern")

// Condition keys understood by Pattern.Matches.
const (
	CondEventType      = "event_type"
	CondMinUrgency     = "min_urgency"
	CondEntityTypes    = "required_entity_types"
	CondContextualKeys = "contextual_keys"
)

// Pattern is a learned association of event conditions to suggested actions.
// Patterns are immutable: every update produces a new value that replaces the
// stored slot.
type Pattern struct {
	PatternID   string      `json:"pattern_id"`
	PatternType PatternType `json:"pattern_type"`

	// Conditions entail the event: event_type (string), min_urgency
	// (string), required_entity_types ([]string), contextual_keys
	// ([]string, matched against event metadata keys).
	Conditions map[string]any `json:"conditions"`

	SuggestedActions []string `json:"suggested_actions"` // ordered action types

	Confidence  float64   `json:"confidence"`
	SuccessRate float64   `json:"success_rate"`
	Occurrences int       `json:"occurrences"`
	LastSeen    time.Time `json:"last_seen"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewPattern builds a validated pattern.
func NewPattern(p Pattern) (Pattern, error) {
	if p.PatternID == "" {
		return Pattern{}, fmt.Errorf("%w: empty pattern_id", ErrInvalidPattern)
	}
	if !p.PatternType.IsValid() {
		return Pattern{}, fmt.Errorf("%w: unknown pattern_type %q", ErrInvalidPattern, p.PatternType)
	}
	if !InUnit(p.Confidence) {
		return Pattern{}, fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidPattern, p.Confidence)
	}
	if !InUnit(p.SuccessRate) {
		return Pattern{}, fmt.Errorf("%w: success_rate %v outside [0,1]", ErrInvalidPattern, p.SuccessRate)
	}
	if p.Occurrences < 0 {
		return Pattern{}, fmt.Errorf("%w: negative occurrences %d", ErrInvalidPattern, p.Occurrences)
	}
	if p.Conditions == nil {
		p.Conditions = map[string]any{}
	}
	if p.SuggestedActions == nil {
		p.SuggestedActions = []string{}
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	} else {
		p.CreatedAt = p.CreatedAt.UTC()
	}
	if p.LastSeen.IsZero() {
		p.LastSeen = now
	} else {
		p.LastSeen = p.LastSeen.UTC()
	}
	return p, nil
}

// Matches reports whether the pattern's conditions entail the event: the
// event type matches, the event's urgency is at or above the floor, every
// required entity type is present, and every contextual key appears in the
// event metadata. Absent condition keys impose no constraint.
func (p Pattern) Matches(event *PerceivedEvent) bool {
	if v, ok := p.Conditions[CondEventType]; ok {
		s, ok := v.(string)
		if !ok || EventType(s) != event.Type {
			return false
		}
	}
	if v, ok := p.Conditions[CondMinUrgency]; ok {
		s, ok := v.(string)
		if !ok || !event.Urgency.AtLeast(Urgency(s)) {
			return false
		}
	}
	if v, ok := p.Conditions[CondEntityTypes]; ok {
		required, ok := toStringSlice(v)
		if !ok {
			return false
		}
		present := event.EntityTypes()
		for _, t := range required {
			if !present[t] {
				return false
			}
		}
	}
	if v, ok := p.Conditions[CondContextualKeys]; ok {
		keys, ok := toStringSlice(v)
		if !ok {
			return false
		}
		for _, k := range keys {
			if _, present := event.Metadata[k]; !present {
				return false
			}
		}
	}
	return true
}

// toStringSlice accepts []string directly and []any of strings (the shape
// produced by JSON round-trips of the conditions map).
func toStringSlice(v any) ([]string, bool) {
	switch vv := v.(type) {
	case []string:
		return vv, true
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
