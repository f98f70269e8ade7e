package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cortexhq/cortex/pkg/integrations"
	"github.com/cortexhq/cortex/pkg/models"
)

// Metadata keys for undo state captured by mail actions.
const (
	metaOriginalFolder = "original_folder"
	metaDraftID        = "draft_id"
)

// ArchiveEmail moves a message to the account's archive folder. Undo restores
// the folder the message was in at execute time.
type ArchiveEmail struct {
	base
	Mail          integrations.MailClient
	AccountID     string
	MessageUID    string
	ArchiveFolder string
}

func (a *ArchiveEmail) ID() string   { return ActionID("archive_email", a.AccountID, a.MessageUID) }
func (a *ArchiveEmail) Type() string { return "archive_email" }

func (a *ArchiveEmail) Validate() ValidationResult {
	var errs []string
	if a.Mail == nil {
		errs = append(errs, "mail client is not configured")
	}
	if a.MessageUID == "" {
		errs = append(errs, "message uid is required")
	}
	if a.ArchiveFolder == "" {
		errs = append(errs, "archive folder is not configured")
	}
	if len(errs) > 0 {
		return Invalid(errs...)
	}
	return Valid()
}

func (a *ArchiveEmail) Execute(ctx context.Context) (*ActionResult, error) {
	started := time.Now()
	result := newResult()

	msg, err := a.Mail.Fetch(ctx, a.AccountID, a.MessageUID)
	if err != nil {
		return result.fail(started, fmt.Errorf("fetching message %s: %w", a.MessageUID, err)), nil
	}
	if err := a.Mail.Move(ctx, a.AccountID, a.MessageUID, a.ArchiveFolder); err != nil {
		return result.fail(started, fmt.Errorf("archiving message %s: %w", a.MessageUID, err)), nil
	}

	result.Metadata[metaOriginalFolder] = msg.Folder
	a.executed = true
	return result.succeed(started, fmt.Sprintf("archived message %s to %s", a.MessageUID, a.ArchiveFolder)), nil
}

func (a *ArchiveEmail) SupportsUndo() bool { return true }

func (a *ArchiveEmail) CanUndo(result *ActionResult) bool {
	if result == nil || !result.Success {
		return false
	}
	_, ok := result.metaString(metaOriginalFolder)
	return ok
}

func (a *ArchiveEmail) Undo(ctx context.Context, result *ActionResult) error {
	folder, ok := result.metaString(metaOriginalFolder)
	if !ok {
		return ErrUndoStateMissing
	}
	return a.Mail.Move(ctx, a.AccountID, a.MessageUID, folder)
}

func (a *ArchiveEmail) EstimatedDuration() time.Duration { return 2 * time.Second }

// DeleteEmail removes a message. The default is a soft delete to trash, which
// can be undone by restoring the original folder. A permanent delete cannot
// be undone and declares so statically.
type DeleteEmail struct {
	base
	Mail        integrations.MailClient
	AccountID   string
	MessageUID  string
	TrashFolder string
	Permanent   bool
}

func (a *DeleteEmail) ID() string   { return ActionID("delete_email", a.AccountID, a.MessageUID) }
func (a *DeleteEmail) Type() string { return "delete_email" }

func (a *DeleteEmail) Validate() ValidationResult {
	var errs []string
	if a.Mail == nil {
		errs = append(errs, "mail client is not configured")
	}
	if a.MessageUID == "" {
		errs = append(errs, "message uid is required")
	}
	if !a.Permanent && a.TrashFolder == "" {
		errs = append(errs, "trash folder is not configured")
	}
	if len(errs) > 0 {
		return Invalid(errs...)
	}
	if a.Permanent {
		return Valid("permanent delete cannot be undone")
	}
	return Valid()
}

func (a *DeleteEmail) Execute(ctx context.Context) (*ActionResult, error) {
	started := time.Now()
	result := newResult()

	if a.Permanent {
		if err := a.Mail.Delete(ctx, a.AccountID, a.MessageUID, true); err != nil {
			return result.fail(started, fmt.Errorf("deleting message %s: %w", a.MessageUID, err)), nil
		}
		a.executed = true
		return result.succeed(started, fmt.Sprintf("permanently deleted message %s", a.MessageUID)), nil
	}

	msg, err := a.Mail.Fetch(ctx, a.AccountID, a.MessageUID)
	if err != nil {
		return result.fail(started, fmt.Errorf("fetching message %s: %w", a.MessageUID, err)), nil
	}
	if err := a.Mail.Move(ctx, a.AccountID, a.MessageUID, a.TrashFolder); err != nil {
		return result.fail(started, fmt.Errorf("moving message %s to trash: %w", a.MessageUID, err)), nil
	}

	result.Metadata[metaOriginalFolder] = msg.Folder
	a.executed = true
	return result.succeed(started, fmt.Sprintf("moved message %s to %s", a.MessageUID, a.TrashFolder)), nil
}

func (a *DeleteEmail) SupportsUndo() bool { return !a.Permanent }

func (a *DeleteEmail) CanUndo(result *ActionResult) bool {
	if a.Permanent || result == nil || !result.Success {
		return false
	}
	_, ok := result.metaString(metaOriginalFolder)
	return ok
}

func (a *DeleteEmail) Undo(ctx context.Context, result *ActionResult) error {
	if a.Permanent {
		return ErrUndoUnsupported
	}
	folder, ok := result.metaString(metaOriginalFolder)
	if !ok {
		return ErrUndoStateMissing
	}
	return a.Mail.Move(ctx, a.AccountID, a.MessageUID, folder)
}

func (a *DeleteEmail) EstimatedDuration() time.Duration { return 2 * time.Second }

// MoveEmail files a message into an arbitrary target folder.
type MoveEmail struct {
	base
	Mail         integrations.MailClient
	AccountID    string
	MessageUID   string
	TargetFolder string
}

func (a *MoveEmail) ID() string {
	return ActionID("move_email", a.AccountID, a.MessageUID, a.TargetFolder)
}
func (a *MoveEmail) Type() string { return "move_email" }

func (a *MoveEmail) Validate() ValidationResult {
	var errs []string
	if a.Mail == nil {
		errs = append(errs, "mail client is not configured")
	}
	if a.MessageUID == "" {
		errs = append(errs, "message uid is required")
	}
	if a.TargetFolder == "" {
		errs = append(errs, "target folder is required")
	}
	if len(errs) > 0 {
		return Invalid(errs...)
	}
	return Valid()
}

func (a *MoveEmail) Execute(ctx context.Context) (*ActionResult, error) {
	started := time.Now()
	result := newResult()

	msg, err := a.Mail.Fetch(ctx, a.AccountID, a.MessageUID)
	if err != nil {
		return result.fail(started, fmt.Errorf("fetching message %s: %w", a.MessageUID, err)), nil
	}
	if err := a.Mail.Move(ctx, a.AccountID, a.MessageUID, a.TargetFolder); err != nil {
		return result.fail(started, fmt.Errorf("moving message %s: %w", a.MessageUID, err)), nil
	}

	result.Metadata[metaOriginalFolder] = msg.Folder
	a.executed = true
	return result.succeed(started, fmt.Sprintf("moved message %s to %s", a.MessageUID, a.TargetFolder)), nil
}

func (a *MoveEmail) SupportsUndo() bool { return true }

func (a *MoveEmail) CanUndo(result *ActionResult) bool {
	if result == nil || !result.Success {
		return false
	}
	_, ok := result.metaString(metaOriginalFolder)
	return ok
}

func (a *MoveEmail) Undo(ctx context.Context, result *ActionResult) error {
	folder, ok := result.metaString(metaOriginalFolder)
	if !ok {
		return ErrUndoStateMissing
	}
	return a.Mail.Move(ctx, a.AccountID, a.MessageUID, folder)
}

func (a *MoveEmail) EstimatedDuration() time.Duration { return 2 * time.Second }

// DraftSaver is the slice of the draft store that PrepareReply needs.
type DraftSaver interface {
	SaveDraft(ctx context.Context, draft models.DraftReply) error
	DeleteDraft(ctx context.Context, draftID string) error
}

// PrepareReply stores a reply draft for user review. Nothing is sent; undo
// removes the stored draft.
type PrepareReply struct {
	base
	Drafts    DraftSaver
	AccountID string
	EventID   string
	To        []string
	Subject   string
	Body      string
}

func (a *PrepareReply) ID() string   { return ActionID("prepare_reply", a.AccountID, a.EventID) }
func (a *PrepareReply) Type() string { return "prepare_reply" }

func (a *PrepareReply) Validate() ValidationResult {
	var errs []string
	if a.Drafts == nil {
		errs = append(errs, "draft store is not configured")
	}
	if a.EventID == "" {
		errs = append(errs, "event id is required")
	}
	if len(a.To) == 0 {
		errs = append(errs, "at least one recipient is required")
	}
	if a.Body == "" {
		errs = append(errs, "reply body is empty")
	}
	if len(errs) > 0 {
		return Invalid(errs...)
	}
	return Valid()
}

func (a *PrepareReply) Execute(ctx context.Context) (*ActionResult, error) {
	started := time.Now()
	result := newResult()

	draft, err := models.NewDraftReply(uuid.NewString(), a.EventID, a.AccountID, a.To, a.Subject, a.Body)
	if err != nil {
		return result.fail(started, fmt.Errorf("building reply draft: %w", err)), nil
	}
	if err := a.Drafts.SaveDraft(ctx, draft); err != nil {
		return result.fail(started, fmt.Errorf("saving reply draft: %w", err)), nil
	}

	result.Metadata[metaDraftID] = draft.DraftID
	a.executed = true
	return result.succeed(started, fmt.Sprintf("prepared reply draft %s", draft.DraftID)), nil
}

func (a *PrepareReply) SupportsUndo() bool { return true }

func (a *PrepareReply) CanUndo(result *ActionResult) bool {
	if result == nil || !result.Success {
		return false
	}
	_, ok := result.metaString(metaDraftID)
	return ok
}

func (a *PrepareReply) Undo(ctx context.Context, result *ActionResult) error {
	id, ok := result.metaString(metaDraftID)
	if !ok {
		return ErrUndoStateMissing
	}
	return a.Drafts.DeleteDraft(ctx, id)
}

func (a *PrepareReply) EstimatedDuration() time.Duration { return time.Second }
