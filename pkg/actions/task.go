package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/cortexhq/cortex/pkg/integrations"
)

// Metadata key for undo state captured by task actions.
const metaCreatedTaskID = "created_task_id"

// CreateTask adds a task to the external task manager. Undo removes it.
type CreateTask struct {
	base
	Tasks   integrations.TaskManager
	EventID string
	Request integrations.TaskRequest
}

func (a *CreateTask) ID() string   { return ActionID("create_task", a.EventID, a.Request.Name) }
func (a *CreateTask) Type() string { return "create_task" }

func (a *CreateTask) Validate() ValidationResult {
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

func (a *CreateTask) Execute(ctx context.Context) (*ActionResult, error) {
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

func (a *CreateTask) SupportsUndo() bool { return true }

func (a *CreateTask) CanUndo(result *ActionResult) bool {
	if result == nil || !result.Success {
		return false
	}
	_, ok := result.metaString(metaCreatedTaskID)
	return ok
}

func (a *CreateTask) Undo(ctx context.Context, result *ActionResult) error {
	id, ok := result.metaString(metaCreatedTaskID)
	if !ok {
		return ErrUndoStateMissing
	}
	return a.Tasks.RemoveTask(ctx, id)
}

func (a *CreateTask) EstimatedDuration() time.Duration { return 2 * time.Second }

// CompleteTask marks an existing task as done. Completion is not reversed
// automatically; the action does not support undo.
type CompleteTask struct {
	base
	Tasks    integrations.TaskManager
	IDOrName string
}

func (a *CompleteTask) ID() string   { return ActionID("complete_task", a.IDOrName) }
func (a *CompleteTask) Type() string { return "complete_task" }

func (a *CompleteTask) Validate() ValidationResult {
	var errs []string
	if a.Tasks == nil {
		errs = append(errs, "task manager is not configured")
	}
	if a.IDOrName == "" {
		errs = append(errs, "task id or name is required")
	}
	if len(errs) > 0 {
		return Invalid(errs...)
	}
	return Valid()
}

func (a *CompleteTask) Execute(ctx context.Context) (*ActionResult, error) {
	started := time.Now()
	result := newResult()

	task, err := a.Tasks.CompleteTask(ctx, a.IDOrName)
	if err != nil {
		return result.fail(started, fmt.Errorf("completing task %q: %w", a.IDOrName, err)), nil
	}

	result.Metadata["completed_task_id"] = task.TaskID
	a.executed = true
	return result.succeed(started, fmt.Sprintf("completed task %s", task.TaskID)), nil
}

func (a *CompleteTask) SupportsUndo() bool               { return false }
func (a *CompleteTask) CanUndo(_ *ActionResult) bool     { return false }
func (a *CompleteTask) Undo(context.Context, *ActionResult) error { return ErrUndoUnsupported }
func (a *CompleteTask) EstimatedDuration() time.Duration { return 2 * time.Second }
