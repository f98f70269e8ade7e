package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// FutureSkewTolerance is the clock skew allowed before a source timestamp is
// considered to be in the future.
const FutureSkewTolerance = time.Second

// Sentinel errors for event construction.
var (
	// ErrInvalidEvent indicates an event violates a documented invariant.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrInvalidEntity indicates an entity violates a documented invariant.
	ErrInvalidEntity = errors.New("invalid entity")
)

// Entity is a typed value extracted from an event. Identity is
// (Type, lower(Value)); confidence and metadata are descriptive only.
type Entity struct {
	Type       string         `json:"type"`
	Value      string         `json:"value"`
	Confidence float64        `json:"confidence"`
	Metadata   map[string]any `json:"metadata"`
}

// NewEntity builds a validated entity. Type and value are trimmed and must be
// non-empty; confidence must be in [0,1]. A nil metadata map is replaced with
// an empty one.
func NewEntity(entityType, value string, confidence float64, metadata map[string]any) (Entity, error) {
	entityType = strings.TrimSpace(entityType)
	value = strings.TrimSpace(value)
	if entityType == "" {
		return Entity{}, fmt.Errorf("%w: empty type", ErrInvalidEntity)
	}
	if value == "" {
		return Entity{}, fmt.Errorf("%w: empty value", ErrInvalidEntity)
	}
	if !InUnit(confidence) {
		return Entity{}, fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidEntity, confidence)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Entity{Type: entityType, Value: value, Confidence: confidence, Metadata: metadata}, nil
}

// Key returns the identity key of the entity: (type, lower(value)).
func (e Entity) Key() string {
	return e.Type + "\x00" + strings.ToLower(e.Value)
}

// Same reports whether two entities have the same identity. Metadata and
// confidence do not participate.
func (e Entity) Same(other Entity) bool {
	return e.Key() == other.Key()
}

// PerceivedEvent is the normalized, immutable representation of one input to
// the system. Construct via NewEvent, which enforces every invariant; treat
// the value as frozen afterwards.
type PerceivedEvent struct {
	EventID  string      `json:"event_id"`
	Source   EventSource `json:"source"`
	SourceID string      `json:"source_id"`

	// Timestamps satisfy OccurredAt <= ReceivedAt <= PerceivedAt, all UTC.
	OccurredAt  time.Time `json:"occurred_at"`
	ReceivedAt  time.Time `json:"received_at"`
	PerceivedAt time.Time `json:"perceived_at"`

	Title   string `json:"title"`
	Content string `json:"content"`

	Type    EventType `json:"event_type"`
	Urgency Urgency   `json:"urgency"`

	Entities []Entity `json:"entities"`
	Topics   []string `json:"topics"`
	Keywords []string `json:"keywords"`
	URLs     []string `json:"urls"`

	FromPerson string   `json:"from_person"`
	ToPeople   []string `json:"to_people"`
	CcPeople   []string `json:"cc_people"`

	ThreadID   string   `json:"thread_id,omitempty"`
	InReplyTo  string   `json:"in_reply_to,omitempty"`
	References []string `json:"references"`

	HasAttachments  bool     `json:"has_attachments"`
	AttachmentCount int      `json:"attachment_count"`
	AttachmentTypes []string `json:"attachment_types"`

	Metadata map[string]any `json:"metadata"`

	PerceptionConfidence   float64  `json:"perception_confidence"`
	NeedsClarification     bool     `json:"needs_clarification"`
	ClarificationQuestions []string `json:"clarification_questions"`
}

// NewEvent validates and freezes an event. The input value is normalized:
// nil collections become empty, timestamps are converted to UTC.
func NewEvent(e PerceivedEvent) (PerceivedEvent, error) {
	if e.EventID == "" {
		return PerceivedEvent{}, fmt.Errorf("%w: empty event_id", ErrInvalidEvent)
	}
	if !e.Source.IsValid() {
		return PerceivedEvent{}, fmt.Errorf("%w: unknown source %q", ErrInvalidEvent, e.Source)
	}
	if !e.Type.IsValid() {
		return PerceivedEvent{}, fmt.Errorf("%w: unknown event_type %q", ErrInvalidEvent, e.Type)
	}
	if !e.Urgency.IsValid() {
		return PerceivedEvent{}, fmt.Errorf("%w: unknown urgency %q", ErrInvalidEvent, e.Urgency)
	}
	if e.OccurredAt.IsZero() || e.ReceivedAt.IsZero() || e.PerceivedAt.IsZero() {
		return PerceivedEvent{}, fmt.Errorf("%w: zero timestamp", ErrInvalidEvent)
	}

	e.OccurredAt = e.OccurredAt.UTC()
	e.ReceivedAt = e.ReceivedAt.UTC()
	e.PerceivedAt = e.PerceivedAt.UTC()

	if e.OccurredAt.After(e.ReceivedAt) {
		return PerceivedEvent{}, fmt.Errorf("%w: occurred_at %s after received_at %s",
			ErrInvalidEvent, e.OccurredAt.Format(time.RFC3339Nano), e.ReceivedAt.Format(time.RFC3339Nano))
	}
	if e.ReceivedAt.After(e.PerceivedAt) {
		return PerceivedEvent{}, fmt.Errorf("%w: received_at %s after perceived_at %s",
			ErrInvalidEvent, e.ReceivedAt.Format(time.RFC3339Nano), e.PerceivedAt.Format(time.RFC3339Nano))
	}
	if e.OccurredAt.After(time.Now().Add(FutureSkewTolerance)) {
		return PerceivedEvent{}, fmt.Errorf("%w: occurred_at %s is in the future",
			ErrInvalidEvent, e.OccurredAt.Format(time.RFC3339Nano))
	}

	if e.HasAttachments != (e.AttachmentCount > 0) {
		return PerceivedEvent{}, fmt.Errorf("%w: has_attachments=%v but attachment_count=%d",
			ErrInvalidEvent, e.HasAttachments, e.AttachmentCount)
	}
	if len(e.AttachmentTypes) != e.AttachmentCount {
		return PerceivedEvent{}, fmt.Errorf("%w: %d attachment types for count %d",
			ErrInvalidEvent, len(e.AttachmentTypes), e.AttachmentCount)
	}

	if !InUnit(e.PerceptionConfidence) {
		return PerceivedEvent{}, fmt.Errorf("%w: perception_confidence %v outside [0,1]",
			ErrInvalidEvent, e.PerceptionConfidence)
	}

	for i, ent := range e.Entities {
		validated, err := NewEntity(ent.Type, ent.Value, ent.Confidence, ent.Metadata)
		if err != nil {
			return PerceivedEvent{}, fmt.Errorf("entity %d: %w", i, err)
		}
		e.Entities[i] = validated
	}

	// All collection fields are present, never nil.
	if e.Entities == nil {
		e.Entities = []Entity{}
	}
	if e.Topics == nil {
		e.Topics = []string{}
	}
	if e.Keywords == nil {
		e.Keywords = []string{}
	}
	if e.URLs == nil {
		e.URLs = []string{}
	}
	if e.ToPeople == nil {
		e.ToPeople = []string{}
	}
	if e.CcPeople == nil {
		e.CcPeople = []string{}
	}
	if e.References == nil {
		e.References = []string{}
	}
	if e.AttachmentTypes == nil {
		e.AttachmentTypes = []string{}
	}
	if e.ClarificationQuestions == nil {
		e.ClarificationQuestions = []string{}
	}
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}

	return e, nil
}

// AccountID returns the originating account recorded by the normalizer, or
// an empty string for events without one.
func (e *PerceivedEvent) AccountID() string {
	v, _ := e.Metadata["account_id"].(string)
	return v
}

// EntityByType returns the first entity of the given type, if any.
func (e *PerceivedEvent) EntityByType(entityType string) (Entity, bool) {
	for _, ent := range e.Entities {
		if ent.Type == entityType {
			return ent, true
		}
	}
	return Entity{}, false
}

// EntityTypes returns the set of entity types present on the event.
func (e *PerceivedEvent) EntityTypes() map[string]bool {
	types := make(map[string]bool, len(e.Entities))
	for _, ent := range e.Entities {
		types[ent.Type] = true
	}
	return types
}
