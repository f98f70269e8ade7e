// Package models defines the core value types shared across the pipeline:
// perceived events, hypotheses, reasoning passes, learned patterns, provider
// scores, and the persistent review artifacts. Values are validated at
// construction and treated as immutable afterwards.
package models

// EventSource identifies the origin of a perceived event.
type EventSource string

// Event source constants.
const (
	SourceMail     EventSource = "mail"
	SourceChat     EventSource = "chat"
	SourceCalendar EventSource = "calendar"
	SourceFile     EventSource = "file"
	SourceNote     EventSource = "note"
	SourceQuestion EventSource = "question"
	SourceWeb      EventSource = "web"
	SourceTask     EventSource = "task"
	SourceUnknown  EventSource = "unknown"
)

// IsValid checks if the event source is a known value.
func (s EventSource) IsValid() bool {
	switch s {
	case SourceMail, SourceChat, SourceCalendar, SourceFile, SourceNote,
		SourceQuestion, SourceWeb, SourceTask, SourceUnknown:
		return true
	default:
		return false
	}
}

// EventType classifies what kind of input an event represents.
type EventType string

// Event type constants.
const (
	EventTypeRequest        EventType = "request"
	EventTypeInformation    EventType = "information"
	EventTypeDecisionNeeded EventType = "decision_needed"
	EventTypeActionRequired EventType = "action_required"
	EventTypeReminder       EventType = "reminder"
	EventTypeDeadline       EventType = "deadline"
	EventTypeReference      EventType = "reference"
	EventTypeLearning       EventType = "learning"
	EventTypeInsight        EventType = "insight"
	EventTypeStatusUpdate   EventType = "status_update"
	EventTypeError          EventType = "error"
	EventTypeConfirmation   EventType = "confirmation"
	EventTypeInvitation     EventType = "invitation"
	EventTypeReply          EventType = "reply"
	EventTypeUnknown        EventType = "unknown"
)

// IsValid checks if the event type is a known value.
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeRequest, EventTypeInformation, EventTypeDecisionNeeded,
		EventTypeActionRequired, EventTypeReminder, EventTypeDeadline,
		EventTypeReference, EventTypeLearning, EventTypeInsight,
		EventTypeStatusUpdate, EventTypeError, EventTypeConfirmation,
		EventTypeInvitation, EventTypeReply, EventTypeUnknown:
		return true
	default:
		return false
	}
}

// Urgency expresses how time-sensitive an event is.
type Urgency string

// Urgency constants, ordered from most to least urgent.
const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyMedium   Urgency = "medium"
	UrgencyLow      Urgency = "low"
	UrgencyNone     Urgency = "none"
)

// urgencyRank maps urgency to a comparable rank (higher = more urgent).
var urgencyRank = map[Urgency]int{
	UrgencyNone:     0,
	UrgencyLow:      1,
	UrgencyMedium:   2,
	UrgencyHigh:     3,
	UrgencyCritical: 4,
}

// IsValid checks if the urgency is a known value.
func (u Urgency) IsValid() bool {
	_, ok := urgencyRank[u]
	return ok
}

// Rank returns the numeric rank of the urgency (0 = none, 4 = critical).
// Unknown values rank as none.
func (u Urgency) Rank() int {
	return urgencyRank[u]
}

// AtLeast reports whether u is at least as urgent as other.
func (u Urgency) AtLeast(other Urgency) bool {
	return u.Rank() >= other.Rank()
}

// Raise returns the urgency one level higher than u, capped at critical.
func (u Urgency) Raise() Urgency {
	switch u {
	case UrgencyNone:
		return UrgencyLow
	case UrgencyLow:
		return UrgencyMedium
	case UrgencyMedium:
		return UrgencyHigh
	default:
		return UrgencyCritical
	}
}

// MemoryState is the lifecycle state of a working memory.
type MemoryState string

// Working memory lifecycle states.
const (
	StateInitialized MemoryState = "initialized"
	StatePerceiving  MemoryState = "perceiving"
	StateReasoning   MemoryState = "reasoning"
	StatePlanning    MemoryState = "planning"
	StateExecuting   MemoryState = "executing"
	StateComplete    MemoryState = "complete"
	StateArchived    MemoryState = "archived"
)

// IsValid checks if the memory state is a known value.
func (s MemoryState) IsValid() bool {
	switch s {
	case StateInitialized, StatePerceiving, StateReasoning, StatePlanning,
		StateExecuting, StateComplete, StateArchived:
		return true
	default:
		return false
	}
}

// Terminal reports whether the state permits no further reasoning.
func (s MemoryState) Terminal() bool {
	return s == StateComplete || s == StateArchived
}

// PassType identifies the kind of work a reasoning pass performs.
type PassType string

// Reasoning pass types.
const (
	PassInitialAnalysis   PassType = "initial_analysis"
	PassContextEnrichment PassType = "context_enrichment"
	PassDeepReasoning     PassType = "deep_reasoning"
	PassValidation        PassType = "validation"
	PassArbitration       PassType = "arbitration"
)

// IsValid checks if the pass type is a known value.
func (t PassType) IsValid() bool {
	switch t {
	case PassInitialAnalysis, PassContextEnrichment, PassDeepReasoning,
		PassValidation, PassArbitration:
		return true
	default:
		return false
	}
}

// RiskLevel classifies how dangerous an action is to execute.
type RiskLevel string

// Risk levels, ordered from least to most severe.
const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

var riskRank = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// IsValid checks if the risk level is a known value.
func (r RiskLevel) IsValid() bool {
	_, ok := riskRank[r]
	return ok
}

// Rank returns the numeric rank of the risk level (0 = low, 3 = critical).
func (r RiskLevel) Rank() int {
	return riskRank[r]
}

// ExecutionMode determines whether a plan runs automatically or waits for review.
type ExecutionMode string

// Execution modes.
const (
	ModeAuto   ExecutionMode = "auto"
	ModeReview ExecutionMode = "review"
	ModeManual ExecutionMode = "manual"
)

// IsValid checks if the execution mode is a known value.
func (m ExecutionMode) IsValid() bool {
	return m == ModeAuto || m == ModeReview || m == ModeManual
}

// RequiresApproval reports whether a plan in this mode needs user approval.
func (m ExecutionMode) RequiresApproval() bool {
	return m != ModeAuto
}

// PatternType categorizes a learned pattern.
type PatternType string

// Pattern types.
const (
	PatternActionSequence     PatternType = "action_sequence"
	PatternEntityRelationship PatternType = "entity_relationship"
	PatternTimeBased          PatternType = "time_based"
	PatternContextTrigger     PatternType = "context_trigger"
)

// IsValid checks if the pattern type is a known value.
func (t PatternType) IsValid() bool {
	switch t {
	case PatternActionSequence, PatternEntityRelationship, PatternTimeBased,
		PatternContextTrigger:
		return true
	default:
		return false
	}
}

// KnowledgeUpdateType identifies what a knowledge update changes.
type KnowledgeUpdateType string

// Knowledge update types.
const (
	UpdateNoteCreated         KnowledgeUpdateType = "note_created"
	UpdateNoteUpdated         KnowledgeUpdateType = "note_updated"
	UpdateEntityAdded         KnowledgeUpdateType = "entity_added"
	UpdateTagAdded            KnowledgeUpdateType = "tag_added"
	UpdateRelationshipCreated KnowledgeUpdateType = "relationship_created"
)

// IsValid checks if the knowledge update type is a known value.
func (t KnowledgeUpdateType) IsValid() bool {
	switch t {
	case UpdateNoteCreated, UpdateNoteUpdated, UpdateEntityAdded,
		UpdateTagAdded, UpdateRelationshipCreated:
		return true
	default:
		return false
	}
}

// DraftStatus is the lifecycle state of a stored reply draft.
type DraftStatus string

// Draft lifecycle states.
const (
	DraftPending   DraftStatus = "draft"
	DraftSent      DraftStatus = "sent"
	DraftDiscarded DraftStatus = "discarded"
	DraftFailed    DraftStatus = "failed"
)

// IsValid checks if the draft status is a known value.
func (s DraftStatus) IsValid() bool {
	switch s {
	case DraftPending, DraftSent, DraftDiscarded, DraftFailed:
		return true
	default:
		return false
	}
}

// QueueStatus is the lifecycle state of a review queue item.
type QueueStatus string

// Queue item lifecycle states.
const (
	QueuePending  QueueStatus = "pending"
	QueueApproved QueueStatus = "approved"
	QueueRejected QueueStatus = "rejected"
)

// IsValid checks if the queue status is a known value.
func (s QueueStatus) IsValid() bool {
	return s == QueuePending || s == QueueApproved || s == QueueRejected
}
