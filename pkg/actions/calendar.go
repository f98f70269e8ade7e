package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/cortexhq/cortex/pkg/integrations"
	"github.com/cortexhq/cortex/pkg/models"
)

// Metadata keys for undo state captured by calendar actions.
const (
	metaCreatedEventUID  = "created_event_uid"
	metaPreviousResponse = "previous_response"
)

// CreateEvent adds a new calendar event. Undo deletes the created event.
type CreateEvent struct {
	base
	Calendar  integrations.CalendarClient
	AccountID string
	Event     integrations.CalendarEvent
}

func (a *CreateEvent) ID() string {
	return ActionID("create_event", a.AccountID, a.Event.Subject, a.Event.Start.UTC().Format(time.RFC3339))
}
func (a *CreateEvent) Type() string { return "create_event" }

func (a *CreateEvent) Validate() ValidationResult {
	var errs []string
	if a.Calendar == nil {
		errs = append(errs, "calendar client is not configured")
	}
	if a.Event.Subject == "" {
		errs = append(errs, "event subject is required")
	}
	if a.Event.Start.IsZero() || a.Event.End.IsZero() {
		errs = append(errs, "event start and end are required")
	} else if !a.Event.End.After(a.Event.Start) {
		errs = append(errs, "event end must be after start")
	}
	if len(errs) > 0 {
		return Invalid(errs...)
	}
	return Valid()
}

func (a *CreateEvent) Execute(ctx context.Context) (*ActionResult, error) {
	started := time.Now()
	result := newResult()

	uid, err := a.Calendar.CreateEvent(ctx, a.AccountID, a.Event)
	if err != nil {
		return result.fail(started, fmt.Errorf("creating event %q: %w", a.Event.Subject, err)), nil
	}

	result.Metadata[metaCreatedEventUID] = uid
	a.executed = true
	return result.succeed(started, fmt.Sprintf("created event %s (%q)", uid, a.Event.Subject)), nil
}

func (a *CreateEvent) SupportsUndo() bool { return true }

func (a *CreateEvent) CanUndo(result *ActionResult) bool {
	if result == nil || !result.Success {
		return false
	}
	_, ok := result.metaString(metaCreatedEventUID)
	return ok
}

func (a *CreateEvent) Undo(ctx context.Context, result *ActionResult) error {
	uid, ok := result.metaString(metaCreatedEventUID)
	if !ok {
		return ErrUndoStateMissing
	}
	return a.Calendar.DeleteEvent(ctx, a.AccountID, uid)
}

func (a *CreateEvent) EstimatedDuration() time.Duration { return 3 * time.Second }

// RespondToEvent accepts, declines, or tentatively answers an invitation.
// Undo restores the response status recorded at execute time.
type RespondToEvent struct {
	base
	Calendar  integrations.CalendarClient
	AccountID string
	EventUID  string
	Response  integrations.ResponseStatus
	Comment   string
}

func (a *RespondToEvent) ID() string {
	return ActionID("respond_event", a.AccountID, a.EventUID, string(a.Response))
}
func (a *RespondToEvent) Type() string { return "respond_event" }

func (a *RespondToEvent) Validate() ValidationResult {
	var errs []string
	if a.Calendar == nil {
		errs = append(errs, "calendar client is not configured")
	}
	if a.EventUID == "" {
		errs = append(errs, "event uid is required")
	}
	switch a.Response {
	case integrations.ResponseAccepted, integrations.ResponseDeclined, integrations.ResponseTentative:
	default:
		errs = append(errs, fmt.Sprintf("invalid response %q", a.Response))
	}
	if len(errs) > 0 {
		return Invalid(errs...)
	}
	return Valid()
}

func (a *RespondToEvent) Execute(ctx context.Context) (*ActionResult, error) {
	started := time.Now()
	result := newResult()

	prev, err := a.Calendar.Fetch(ctx, a.AccountID, a.EventUID)
	if err != nil {
		return result.fail(started, fmt.Errorf("fetching event %s: %w", a.EventUID, err)), nil
	}
	if err := a.Calendar.Respond(ctx, a.AccountID, a.EventUID, a.Response, a.Comment); err != nil {
		return result.fail(started, fmt.Errorf("responding to event %s: %w", a.EventUID, err)), nil
	}

	result.Metadata[metaPreviousResponse] = string(prev.ResponseStatus)
	a.executed = true
	return result.succeed(started, fmt.Sprintf("responded %s to event %s", a.Response, a.EventUID)), nil
}

func (a *RespondToEvent) SupportsUndo() bool { return true }

// RiskLevel overrides the undo-based heuristic: an invitation response is
// visible to the organizer the moment it is sent, so it always needs review.
func (a *RespondToEvent) RiskLevel() models.RiskLevel { return models.RiskHigh }

func (a *RespondToEvent) CanUndo(result *ActionResult) bool {
	if result == nil || !result.Success {
		return false
	}
	_, ok := result.metaString(metaPreviousResponse)
	return ok
}

func (a *RespondToEvent) Undo(ctx context.Context, result *ActionResult) error {
	prev, ok := result.metaString(metaPreviousResponse)
	if !ok {
		return ErrUndoStateMissing
	}
	return a.Calendar.Respond(ctx, a.AccountID, a.EventUID, integrations.ResponseStatus(prev), "")
}

func (a *RespondToEvent) EstimatedDuration() time.Duration { return 3 * time.Second }

// BlockTime reserves a focus slot on the calendar. It is a CreateEvent with
// the subject conventions of a time block.
type BlockTime struct {
	base
	Calendar  integrations.CalendarClient
	AccountID string
	Title     string
	Start     time.Time
	End       time.Time
	Reason    string
}

func (a *BlockTime) ID() string {
	return ActionID("block_time", a.AccountID, a.Start.UTC().Format(time.RFC3339))
}
func (a *BlockTime) Type() string { return "block_time" }

func (a *BlockTime) Validate() ValidationResult {
	var errs []string
	if a.Calendar == nil {
		errs = append(errs, "calendar client is not configured")
	}
	if a.Start.IsZero() || a.End.IsZero() {
		errs = append(errs, "start and end are required")
	} else if !a.End.After(a.Start) {
		errs = append(errs, "end must be after start")
	}
	if len(errs) > 0 {
		return Invalid(errs...)
	}
	return Valid()
}

func (a *BlockTime) Execute(ctx context.Context) (*ActionResult, error) {
	started := time.Now()
	result := newResult()

	title := a.Title
	if title == "" {
		title = "Focus time"
	}
	uid, err := a.Calendar.CreateEvent(ctx, a.AccountID, integrations.CalendarEvent{
		Subject: title,
		Body:    a.Reason,
		Start:   a.Start,
		End:     a.End,
	})
	if err != nil {
		return result.fail(started, fmt.Errorf("blocking time: %w", err)), nil
	}

	result.Metadata[metaCreatedEventUID] = uid
	a.executed = true
	return result.succeed(started, fmt.Sprintf("blocked %s from %s to %s",
		title, a.Start.Format(time.RFC3339), a.End.Format(time.RFC3339))), nil
}

func (a *BlockTime) SupportsUndo() bool { return true }

func (a *BlockTime) CanUndo(result *ActionResult) bool {
	if result == nil || !result.Success {
		return false
	}
	_, ok := result.metaString(metaCreatedEventUID)
	return ok
}

func (a *BlockTime) Undo(ctx context.Context, result *ActionResult) error {
	uid, ok := result.metaString(metaCreatedEventUID)
	if !ok {
		return ErrUndoStateMissing
	}
	return a.Calendar.DeleteEvent(ctx, a.AccountID, uid)
}

func (a *BlockTime) EstimatedDuration() time.Duration { return 3 * time.Second }

// CreateTaskFromEvent turns a calendar event into a task (e.g. meeting
// preparation). Undo removes the created task.
type CreateTaskFromEvent struct {
	base
	Tasks    integrations.TaskManager
	EventUID string
	Request  integrations.TaskRequest
}

func (a *CreateTaskFromEvent) ID() string {
	return ActionID("task_from_event", a.EventUID, a.Request.Name)
}
func (a *CreateTaskFromEvent) Type() string { return "task_from_event" }

func (a *CreateTaskFromEvent) Validate() ValidationResult {
	var errs []string
	if a.Tasks == nil {
		errs = append(errs, "task manager is not configured")
	}
	if a.Request.Name == "" {
		errs = append(errs, "task name is required")
	}
	if len(errs) > 0 {
		return Invalid(errs...)
	}
	return Valid()
}

func (a *CreateTaskFromEvent) Execute(ctx context.Context) (*ActionResult, error) {
	started := time.Now()
	result := newResult()

	task, err := a.Tasks.AddTask(ctx, a.Request)
	if err != nil {
		return result.fail(started, fmt.Errorf("creating task %q: %w", a.Request.Name, err)), nil
	}

	result.Metadata[metaCreatedTaskID] = task.TaskID
	a.executed = true
	return result.succeed(started, fmt.Sprintf("created task %s (%q)", task.TaskID, task.Name)), nil
}

func (a *CreateTaskFromEvent) SupportsUndo() bool { return true }

func (a *CreateTaskFromEvent) CanUndo(result *ActionResult) bool {
	if result == nil || !result.Success {
		return false
	}
	_, ok := result.metaString(metaCreatedTaskID)
	return ok
}

func (a *CreateTaskFromEvent) Undo(ctx context.Context, result *ActionResult) error {
	id, ok := result.metaString(metaCreatedTaskID)
	if !ok {
		return ErrUndoStateMissing
	}
	return a.Tasks.RemoveTask(ctx, id)
}

func (a *CreateTaskFromEvent) EstimatedDuration() time.Duration { return 2 * time.Second }
