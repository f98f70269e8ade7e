package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/cortexhq/cortex/pkg/integrations"
)

// Metadata keys for undo state captured by chat actions. The sent message id
// is recorded separately from the reply-to id: undo deletes the message we
// sent, never the one we replied to.
const (
	metaSentMessageID = "sent_message_id"
	metaPreviousFlag  = "previous_flag"
)

// ReplyToChat sends a reply in a chat channel. Undo deletes the sent message.
type ReplyToChat struct {
	base
	Chat      integrations.ChatClient
	AccountID string
	ChannelID string
	ReplyToID string
	Text      string
}

func (a *ReplyToChat) ID() string {
	return ActionID("reply_chat", a.AccountID, a.ChannelID, a.ReplyToID)
}
func (a *ReplyToChat) Type() string { return "reply_chat" }

func (a *ReplyToChat) Validate() ValidationResult {
	var errs []string
	if a.Chat == nil {
		errs = append(errs, "chat client is not configured")
	}
	if a.ChannelID == "" {
		errs = append(errs, "channel id is required")
	}
	if a.Text == "" {
		errs = append(errs, "reply text is empty")
	}
	if len(errs) > 0 {
		return Invalid(errs...)
	}
	return Valid()
}

func (a *ReplyToChat) Execute(ctx context.Context) (*ActionResult, error) {
	started := time.Now()
	result := newResult()

	sentID, err := a.Chat.Send(ctx, a.AccountID, a.ChannelID, a.ReplyToID, a.Text)
	if err != nil {
		return result.fail(started, fmt.Errorf("sending chat reply: %w", err)), nil
	}

	result.Metadata[metaSentMessageID] = sentID
	a.executed = true
	return result.succeed(started, fmt.Sprintf("sent chat message %s in %s", sentID, a.ChannelID)), nil
}

func (a *ReplyToChat) SupportsUndo() bool { return true }

func (a *ReplyToChat) CanUndo(result *ActionResult) bool {
	if result == nil || !result.Success {
		return false
	}
	_, ok := result.metaString(metaSentMessageID)
	return ok
}

func (a *ReplyToChat) Undo(ctx context.Context, result *ActionResult) error {
	sentID, ok := result.metaString(metaSentMessageID)
	if !ok {
		return ErrUndoStateMissing
	}
	return a.Chat.DeleteMessage(ctx, a.AccountID, a.ChannelID, sentID)
}

func (a *ReplyToChat) EstimatedDuration() time.Duration { return 2 * time.Second }

// FlagMessage marks a chat message for follow-up. Undo restores the previous
// flag state.
type FlagMessage struct {
	base
	Chat      integrations.ChatClient
	AccountID string
	ChannelID string
	MessageID string
	Flagged   bool
}

func (a *FlagMessage) ID() string {
	return ActionID("flag_message", a.AccountID, a.ChannelID, a.MessageID)
}
func (a *FlagMessage) Type() string { return "flag_message" }

func (a *FlagMessage) Validate() ValidationResult {
	var errs []string
	if a.Chat == nil {
		errs = append(errs, "chat client is not configured")
	}
	if a.ChannelID == "" {
		errs = append(errs, "channel id is required")
	}
	if a.MessageID == "" {
		errs = append(errs, "message id is required")
	}
	if len(errs) > 0 {
		return Invalid(errs...)
	}
	return Valid()
}

func (a *FlagMessage) Execute(ctx context.Context) (*ActionResult, error) {
	started := time.Now()
	result := newResult()

	if err := a.Chat.Flag(ctx, a.AccountID, a.ChannelID, a.MessageID, a.Flagged); err != nil {
		return result.fail(started, fmt.Errorf("flagging message %s: %w", a.MessageID, err)), nil
	}

	result.Metadata[metaPreviousFlag] = fmt.Sprintf("%t", !a.Flagged)
	a.executed = true
	return result.succeed(started, fmt.Sprintf("set flag=%t on message %s", a.Flagged, a.MessageID)), nil
}

func (a *FlagMessage) SupportsUndo() bool { return true }

func (a *FlagMessage) CanUndo(result *ActionResult) bool {
	if result == nil || !result.Success {
		return false
	}
	_, ok := result.metaString(metaPreviousFlag)
	return ok
}

func (a *FlagMessage) Undo(ctx context.Context, result *ActionResult) error {
	prev, ok := result.metaString(metaPreviousFlag)
	if !ok {
		return ErrUndoStateMissing
	}
	return a.Chat.Flag(ctx, a.AccountID, a.ChannelID, a.MessageID, prev == "true")
}

func (a *FlagMessage) EstimatedDuration() time.Duration { return time.Second }

// CreateTaskFromMessage turns a chat message into a task. Undo removes the
// created task.
type CreateTaskFromMessage struct {
	base
	Tasks     integrations.TaskManager
	MessageID string
	Request   integrations.TaskRequest
}

func (a *CreateTaskFromMessage) ID() string {
	return ActionID("task_from_message", a.MessageID, a.Request.Name)
}
func (a *CreateTaskFromMessage) Type() string { return "task_from_message" }

func (a *CreateTaskFromMessage) Validate() ValidationResult {
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

func (a *CreateTaskFromMessage) Execute(ctx context.Context) (*ActionResult, error) {
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

func (a *CreateTaskFromMessage) SupportsUndo() bool { return true }

func (a *CreateTaskFromMessage) CanUndo(result *ActionResult) bool {
	if result == nil || !result.Success {
		return false
	}
	_, ok := result.metaString(metaCreatedTaskID)
	return ok
}

func (a *CreateTaskFromMessage) Undo(ctx context.Context, result *ActionResult) error {
	id, ok := result.metaString(metaCreatedTaskID)
	if !ok {
		return ErrUndoStateMissing
	}
	return a.Tasks.RemoveTask(ctx, id)
}

func (a *CreateTaskFromMessage) EstimatedDuration() time.Duration { return 2 * time.Second }
