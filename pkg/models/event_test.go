package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEvent() PerceivedEvent {
	now := time.Now().UTC().Add(-time.Minute)
	return PerceivedEvent{
		EventID:     "evt-1",
		Source:      SourceMail,
		SourceID:    "msg-42",
		OccurredAt:  now,
		ReceivedAt:  now.Add(time.Second),
		PerceivedAt: now.Add(2 * time.Second),
		Title:       "Quarterly report",
		Content:     "Please review the attached report.",
		Type:        EventTypeRequest,
		Urgency:     UrgencyMedium,
		FromPerson:  "Alice <alice@example.com>",
	}
}

func TestNewEventValid(t *testing.T) {
	e, err := NewEvent(validEvent())
	require.NoError(t, err)

	// All collection fields are present after construction.
	assert.NotNil(t, e.Entities)
	assert.NotNil(t, e.Topics)
	assert.NotNil(t, e.Keywords)
	assert.NotNil(t, e.URLs)
	assert.NotNil(t, e.ToPeople)
	assert.NotNil(t, e.CcPeople)
	assert.NotNil(t, e.References)
	assert.NotNil(t, e.AttachmentTypes)
	assert.NotNil(t, e.ClarificationQuestions)
	assert.NotNil(t, e.Metadata)
}

func TestNewEventInvariants(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PerceivedEvent)
	}{
		{"empty event_id", func(e *PerceivedEvent) { e.EventID = "" }},
		{"unknown source", func(e *PerceivedEvent) { e.Source = "pigeon" }},
		{"unknown event_type", func(e *PerceivedEvent) { e.Type = "spam" }},
		{"unknown urgency", func(e *PerceivedEvent) { e.Urgency = "extreme" }},
		{"zero occurred_at", func(e *PerceivedEvent) { e.OccurredAt = time.Time{} }},
		{"occurred after received", func(e *PerceivedEvent) {
			e.OccurredAt = e.ReceivedAt.Add(time.Minute)
			e.PerceivedAt = e.OccurredAt.Add(time.Hour)
		}},
		{"received after perceived", func(e *PerceivedEvent) { e.ReceivedAt = e.PerceivedAt.Add(time.Minute) }},
		{"occurred in the future", func(e *PerceivedEvent) {
			future := time.Now().Add(time.Hour)
			e.OccurredAt = future
			e.ReceivedAt = future
			e.PerceivedAt = future
		}},
		{"attachment flag without count", func(e *PerceivedEvent) { e.HasAttachments = true }},
		{"count without flag", func(e *PerceivedEvent) {
			e.AttachmentCount = 1
			e.AttachmentTypes = []string{"pdf"}
		}},
		{"type list shorter than count", func(e *PerceivedEvent) {
			e.HasAttachments = true
			e.AttachmentCount = 2
			e.AttachmentTypes = []string{"pdf"}
		}},
		{"confidence above 1", func(e *PerceivedEvent) { e.PerceptionConfidence = 1.5 }},
		{"confidence below 0", func(e *PerceivedEvent) { e.PerceptionConfidence = -0.1 }},
		{"entity without value", func(e *PerceivedEvent) {
			e.Entities = []Entity{{Type: "person", Value: "   ", Confidence: 0.5}}
		}},
		{"entity confidence out of range", func(e *PerceivedEvent) {
			e.Entities = []Entity{{Type: "person", Value: "alice", Confidence: 1.2}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validEvent()
			tt.mutate(&e)
			_, err := NewEvent(e)
			assert.Error(t, err)
		})
	}
}

func TestNewEventFutureSkewTolerance(t *testing.T) {
	// Within the one-second tolerance the event is accepted.
	e := validEvent()
	near := time.Now().Add(500 * time.Millisecond)
	e.OccurredAt = near
	e.ReceivedAt = near
	e.PerceivedAt = near
	_, err := NewEvent(e)
	assert.NoError(t, err)
}

func TestAttachmentTripleCoherent(t *testing.T) {
	e := validEvent()
	e.HasAttachments = true
	e.AttachmentCount = 2
	e.AttachmentTypes = []string{"pdf", "png"}
	built, err := NewEvent(e)
	require.NoError(t, err)
	assert.Equal(t, built.HasAttachments, built.AttachmentCount > 0)
	assert.Len(t, built.AttachmentTypes, built.AttachmentCount)
}

func TestEntityIdentity(t *testing.T) {
	a, err := NewEntity("person", "Alice", 0.9, nil)
	require.NoError(t, err)
	b, err := NewEntity("person", "alice", 0.1, map[string]any{"role": "organizer"})
	require.NoError(t, err)
	c, err := NewEntity("location", "Alice", 0.9, nil)
	require.NoError(t, err)

	// Identity is (type, lower(value)); confidence and metadata do not count.
	assert.True(t, a.Same(b))
	assert.False(t, a.Same(c))
	assert.Equal(t, a.Key(), b.Key())
}

func TestEntityTrimming(t *testing.T) {
	e, err := NewEntity("  person  ", "  Alice  ", 0.5, nil)
	require.NoError(t, err)
	assert.Equal(t, "person", e.Type)
	assert.Equal(t, "Alice", e.Value)
}

func TestEventJSONRoundTrip(t *testing.T) {
	e := validEvent()
	e.Entities = []Entity{{Type: "person", Value: "Alice", Confidence: 0.9, Metadata: map[string]any{"role": "sender"}}}
	e.Topics = []string{"reports"}
	e.URLs = []string{"https://example.com/report"}
	e.ThreadID = "thread-7"
	built, err := NewEvent(e)
	require.NoError(t, err)

	data, err := json.Marshal(built)
	require.NoError(t, err)

	var decoded PerceivedEvent
	require.NoError(t, json.Unmarshal(data, &decoded))

	again, err := json.Marshal(decoded)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
}

func TestEntityTypesSet(t *testing.T) {
	e := validEvent()
	e.Entities = []Entity{
		{Type: "person", Value: "Alice", Confidence: 0.9},
		{Type: "person", Value: "Bob", Confidence: 0.9},
		{Type: "location", Value: "Paris", Confidence: 0.8},
	}
	built, err := NewEvent(e)
	require.NoError(t, err)

	types := built.EntityTypes()
	assert.Len(t, types, 2)
	assert.True(t, types["person"])
	assert.True(t, types["location"])
}
