package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func matchableEvent(t *testing.T) PerceivedEvent {
	t.Helper()
	e := validEvent()
	e.Type = EventTypeRequest
	e.Urgency = UrgencyHigh
	e.Entities = []Entity{
		{Type: "person", Value: "Alice", Confidence: 0.9},
		{Type: "project", Value: "Apollo", Confidence: 0.7},
	}
	e.Metadata = map[string]any{"folder": "inbox"}
	built, err := NewEvent(e)
	require.NoError(t, err)
	return built
}

func TestPatternMatches(t *testing.T) {
	event := matchableEvent(t)

	tests := []struct {
		name       string
		conditions map[string]any
		want       bool
	}{
		{"empty conditions match everything", map[string]any{}, true},
		{"matching event type", map[string]any{CondEventType: "request"}, true},
		{"wrong event type", map[string]any{CondEventType: "reminder"}, false},
		{"urgency floor met", map[string]any{CondMinUrgency: "medium"}, true},
		{"urgency floor exact", map[string]any{CondMinUrgency: "high"}, true},
		{"urgency floor not met", map[string]any{CondMinUrgency: "critical"}, false},
		{"required entities present", map[string]any{CondEntityTypes: []string{"person", "project"}}, true},
		{"required entity missing", map[string]any{CondEntityTypes: []string{"person", "invoice"}}, false},
		{"contextual key present", map[string]any{CondContextualKeys: []string{"folder"}}, true},
		{"contextual key missing", map[string]any{CondContextualKeys: []string{"label"}}, false},
		{"all conditions together", map[string]any{
			CondEventType:      "request",
			CondMinUrgency:     "medium",
			CondEntityTypes:    []string{"person"},
			CondContextualKeys: []string{"folder"},
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPattern(Pattern{
				PatternID:   "p-1",
				PatternType: PatternActionSequence,
				Conditions:  tt.conditions,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Matches(&event))
		})
	}
}

func TestPatternMatchesAfterJSONRoundTrip(t *testing.T) {
	// Condition slices decode as []any after a round-trip; matching must
	// still work on the decoded shape.
	event := matchableEvent(t)
	p, err := NewPattern(Pattern{
		PatternID:   "p-rt",
		PatternType: PatternContextTrigger,
		Conditions: map[string]any{
			CondEntityTypes:    []string{"person"},
			CondContextualKeys: []string{"folder"},
		},
	})
	require.NoError(t, err)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	var decoded Pattern
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.True(t, decoded.Matches(&event))
}

func TestPatternJSONRoundTripStable(t *testing.T) {
	p, err := NewPattern(Pattern{
		PatternID:        "p-stable",
		PatternType:      PatternTimeBased,
		Conditions:       map[string]any{CondEventType: "reminder"},
		SuggestedActions: []string{"create_task"},
		Confidence:       0.7,
		SuccessRate:      0.85,
		Occurrences:      12,
		LastSeen:         time.Now().UTC(),
	})
	require.NoError(t, err)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	var decoded Pattern
	require.NoError(t, json.Unmarshal(data, &decoded))
	again, err := json.Marshal(decoded)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
}

func TestNewPatternValidation(t *testing.T) {
	tests := []struct {
		name    string
		pattern Pattern
	}{
		{"empty id", Pattern{PatternType: PatternTimeBased}},
		{"bad type", Pattern{PatternID: "x", PatternType: "weird"}},
		{"confidence out of range", Pattern{PatternID: "x", PatternType: PatternTimeBased, Confidence: 1.1}},
		{"success rate out of range", Pattern{PatternID: "x", PatternType: PatternTimeBased, SuccessRate: -0.2}},
		{"negative occurrences", Pattern{PatternID: "x", PatternType: PatternTimeBased, Occurrences: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPattern(tt.pattern)
			assert.ErrorIs(t, err, ErrInvalidPattern)
		})
	}
}
