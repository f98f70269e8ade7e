package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/cortexhq/cortex/pkg/integrations"
)

// Metadata keys for undo state captured by note actions.
const (
	metaCreatedNoteID   = "created_note_id"
	metaPreviousContent = "previous_content"
	metaPreviousTitle   = "previous_title"
	metaUpdatedNoteID   = "updated_note_id"
)

// CreateNote adds a note to the knowledge base. Undo deletes it.
type CreateNote struct {
	base
	Notes    integrations.NoteManager
	Title    string
	Content  string
	Tags     []string
	Entities []string
	Metadata map[string]any
}

func (a *CreateNote) ID() string   { return ActionID("create_note", a.Title) }
func (a *CreateNote) Type() string { return "create_note" }

func (a *CreateNote) Validate() ValidationResult {
	var errs []string
	if a.Notes == nil {
		errs = append(errs, "note manager is not configured")
	}
	if a.Title == "" {
		errs = append(errs, "note title is required")
	}
	if len(errs) > 0 {
		return Invalid(errs...)
	}
	return Valid()
}

func (a *CreateNote) Execute(ctx context.Context) (*ActionResult, error) {
	started := time.Now()
	result := newResult()

	id, err := a.Notes.CreateNote(ctx, a.Title, a.Content, a.Tags, a.Entities, a.Metadata)
	if err != nil {
		return result.fail(started, fmt.Errorf("creating note %q: %w", a.Title, err)), nil
	}

	result.Metadata[metaCreatedNoteID] = id
	a.executed = true
	return result.succeed(started, fmt.Sprintf("created note %s (%q)", id, a.Title)), nil
}

func (a *CreateNote) SupportsUndo() bool { return true }

func (a *CreateNote) CanUndo(result *ActionResult) bool {
	if result == nil || !result.Success {
		return false
	}
	_, ok := result.metaString(metaCreatedNoteID)
	return ok
}

func (a *CreateNote) Undo(ctx context.Context, result *ActionResult) error {
	id, ok := result.metaString(metaCreatedNoteID)
	if !ok {
		return ErrUndoStateMissing
	}
	return a.Notes.DeleteNote(ctx, id)
}

func (a *CreateNote) EstimatedDuration() time.Duration { return time.Second }

// UpdateNote applies changes to an existing note. A snapshot of the previous
// title and content is captured at execute time so the update can be undone.
type UpdateNote struct {
	base
	Notes   integrations.NoteManager
	NoteID  string
	Changes map[string]any
}

func (a *UpdateNote) ID() string   { return ActionID("update_note", a.NoteID) }
func (a *UpdateNote) Type() string { return "update_note" }

func (a *UpdateNote) Validate() ValidationResult {
	var errs []string
	if a.Notes == nil {
		errs = append(errs, "note manager is not configured")
	}
	if a.NoteID == "" {
		errs = append(errs, "note id is required")
	}
	if len(a.Changes) == 0 {
		errs = append(errs, "changes are empty")
	}
	if len(errs) > 0 {
		return Invalid(errs...)
	}
	return Valid()
}

func (a *UpdateNote) Execute(ctx context.Context) (*ActionResult, error) {
	started := time.Now()
	result := newResult()

	prev, err := a.Notes.GetNote(ctx, a.NoteID)
	if err != nil {
		return result.fail(started, fmt.Errorf("fetching note %s: %w", a.NoteID, err)), nil
	}
	if prev == nil {
		return result.fail(started, fmt.Errorf("note %s not found", a.NoteID)), nil
	}
	if err := a.Notes.UpdateNote(ctx, a.NoteID, a.Changes); err != nil {
		return result.fail(started, fmt.Errorf("updating note %s: %w", a.NoteID, err)), nil
	}

	result.Metadata[metaUpdatedNoteID] = a.NoteID
	result.Metadata[metaPreviousTitle] = prev.Title
	result.Metadata[metaPreviousContent] = prev.Content
	a.executed = true
	return result.succeed(started, fmt.Sprintf("updated note %s", a.NoteID)), nil
}

func (a *UpdateNote) SupportsUndo() bool { return true }

func (a *UpdateNote) CanUndo(result *ActionResult) bool {
	if result == nil || !result.Success {
		return false
	}
	_, ok := result.metaString(metaUpdatedNoteID)
	return ok
}

func (a *UpdateNote) Undo(ctx context.Context, result *ActionResult) error {
	id, ok := result.metaString(metaUpdatedNoteID)
	if !ok {
		return ErrUndoStateMissing
	}
	title, _ := result.metaString(metaPreviousTitle)
	content, hasContent := result.metaString(metaPreviousContent)
	changes := map[string]any{"title": title}
	if hasContent {
		changes["content"] = content
	}
	return a.Notes.UpdateNote(ctx, id, changes)
}

func (a *UpdateNote) EstimatedDuration() time.Duration { return time.Second }
