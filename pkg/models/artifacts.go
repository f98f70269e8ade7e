package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for artifact lifecycle transitions.
var (
	// ErrInvalidTransition indicates an illegal lifecycle transition.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrInvalidArtifact indicates an artifact violates a documented invariant.
	ErrInvalidArtifact = errors.New("invalid artifact")
)

// DraftEdit is one entry in a draft's edit history.
type DraftEdit struct {
	EditedAt time.Time `json:"edited_at"`
	Body     string    `json:"body"`
}

// DraftReply is a stored, editable reply prepared but not yet sent.
type DraftReply struct {
	DraftID   string      `json:"draft_id"`
	EventID   string      `json:"event_id"`
	AccountID string      `json:"account_id"`
	To        []string    `json:"to"`
	Subject   string      `json:"subject"`
	Body      string      `json:"body"`
	Status    DraftStatus `json:"status"`
	History   []DraftEdit `json:"history"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// NewDraftReply builds a validated pending draft.
func NewDraftReply(draftID, eventID, accountID string, to []string, subject, body string) (DraftReply, error) {
	if draftID == "" {
		return DraftReply{}, fmt.Errorf("%w: empty draft_id", ErrInvalidArtifact)
	}
	if eventID == "" {
		return DraftReply{}, fmt.Errorf("%w: empty event_id", ErrInvalidArtifact)
	}
	if to == nil {
		to = []string{}
	}
	now := time.Now().UTC()
	return DraftReply{
		DraftID:   draftID,
		EventID:   eventID,
		AccountID: accountID,
		To:        to,
		Subject:   subject,
		Body:      body,
		Status:    DraftPending,
		History:   []DraftEdit{},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Edit replaces the body, recording the previous body in history.
// Only pending drafts may be edited.
func (d *DraftReply) Edit(body string) error {
	if d.Status != DraftPending {
		return fmt.Errorf("%w: cannot edit draft in status %q", ErrInvalidTransition, d.Status)
	}
	d.History = append(d.History, DraftEdit{EditedAt: time.Now().UTC(), Body: d.Body})
	d.Body = body
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// Transition moves the draft to a terminal status. Legal transitions are
// draft → sent | discarded | failed.
func (d *DraftReply) Transition(to DraftStatus) error {
	if !to.IsValid() || to == DraftPending {
		return fmt.Errorf("%w: draft %q -> %q", ErrInvalidTransition, d.Status, to)
	}
	if d.Status != DraftPending {
		return fmt.Errorf("%w: draft %q -> %q", ErrInvalidTransition, d.Status, to)
	}
	d.Status = to
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// QueueItem is a persistent representation of an event awaiting user review.
type QueueItem struct {
	ItemID    string      `json:"item_id"`
	EventID   string      `json:"event_id"`
	AccountID string      `json:"account_id"`
	Title     string      `json:"title"`
	Summary   string      `json:"summary"`
	Status    QueueStatus `json:"status"`

	// Proposed plan captured for review.
	ActionTypes []string      `json:"action_types"`
	PlanMode    ExecutionMode `json:"plan_mode,omitempty"`
	Confidence  float64       `json:"confidence"`

	// Failure details when processing did not complete.
	FailureKind    string `json:"failure_kind,omitempty"`
	FailureMessage string `json:"failure_message,omitempty"`

	// Optional snooze target for deferred items.
	SnoozedUntil time.Time `json:"snoozed_until,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewQueueItem builds a validated pending queue item.
func NewQueueItem(itemID, eventID, accountID, title, summary string) (QueueItem, error) {
	if itemID == "" {
		return QueueItem{}, fmt.Errorf("%w: empty item_id", ErrInvalidArtifact)
	}
	if eventID == "" {
		return QueueItem{}, fmt.Errorf("%w: empty event_id", ErrInvalidArtifact)
	}
	now := time.Now().UTC()
	return QueueItem{
		ItemID:      itemID,
		EventID:     eventID,
		AccountID:   accountID,
		Title:       title,
		Summary:     summary,
		Status:      QueuePending,
		ActionTypes: []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Transition moves the item to a terminal status. Legal transitions are
// pending → approved | rejected.
func (q *QueueItem) Transition(to QueueStatus) error {
	if !to.IsValid() || to == QueuePending {
		return fmt.Errorf("%w: queue item %q -> %q", ErrInvalidTransition, q.Status, to)
	}
	if q.Status != QueuePending {
		return fmt.Errorf("%w: queue item %q -> %q", ErrInvalidTransition, q.Status, to)
	}
	q.Status = to
	q.UpdatedAt = time.Now().UTC()
	return nil
}
