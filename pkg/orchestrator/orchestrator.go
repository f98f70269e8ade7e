// Package orchestrator executes action plans: validate everything up front,
// run actions in plan order, and roll back on the first failure.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cortexhq/cortex/pkg/actions"
	"github.com/cortexhq/cortex/pkg/planner"
)

// ErrPlanInvalid indicates pre-validation rejected the plan; nothing was
// executed.
var ErrPlanInvalid = errors.New("plan validation failed")

// Executed pairs one action with the result of its Execute call.
type Executed struct {
	Action actions.Action
	Result *actions.ActionResult
}

// ExecutionResult is the outcome of one plan run.
type ExecutionResult struct {
	Success    bool
	Results    []Executed
	Duration   time.Duration
	Err        error
	RolledBack bool
}

// Options tune orchestrator behavior.
type Options struct {
	// FailFast stops at the first failing action and rolls back prior
	// successful actions.
	FailFast bool

	// TimeoutFactor scales each action's estimated duration into its
	// execution budget.
	TimeoutFactor int

	// MinActionTimeout is the floor of the per-action budget.
	MinActionTimeout time.Duration
}

// DefaultOptions returns the orchestrator defaults.
func DefaultOptions() Options {
	return Options{
		FailFast:         true,
		TimeoutFactor:    3,
		MinActionTimeout: 5 * time.Second,
	}
}

// Orchestrator runs plans sequentially. It holds no per-plan state and is
// safe to share across workers.
type Orchestrator struct {
	opts   Options
	logger *slog.Logger
}

// New creates an orchestrator.
func New(opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TimeoutFactor <= 0 {
		opts.TimeoutFactor = 3
	}
	if opts.MinActionTimeout <= 0 {
		opts.MinActionTimeout = 5 * time.Second
	}
	return &Orchestrator{opts: opts, logger: logger.With("component", "orchestrator")}
}

// Execute runs the plan. Pre-validation failures abort before any side
// effect; execution failures trigger reverse rollback when FailFast is set.
func (o *Orchestrator) Execute(ctx context.Context, plan *planner.ActionPlan) *ExecutionResult {
	started := time.Now()
	result := &ExecutionResult{Results: []Executed{}}

	if err := o.preValidate(plan.Actions); err != nil {
		result.Err = err
		result.Duration = time.Since(started)
		return result
	}

	failed := false
	for _, action := range plan.Actions {
		res, err := o.runOne(ctx, action)
		if err != nil {
			// Unexpected failure out of Execute; treat it as a failed
			// action and keep the error on the result record.
			res = &actions.ActionResult{
				Success:    false,
				Error:      err.Error(),
				Metadata:   map[string]any{},
				ExecutedAt: time.Now().UTC(),
			}
		}
		result.Results = append(result.Results, Executed{Action: action, Result: res})

		if !res.Success {
			failed = true
			result.Err = fmt.Errorf("action %s failed: %s", action.ID(), res.Error)
			o.logger.Error("action failed", "action_id", action.ID(), "error", res.Error)
			if o.opts.FailFast {
				o.rollback(ctx, result)
				break
			}
		}
	}

	result.Success = !failed
	result.Duration = time.Since(started)
	return result
}

// preValidate checks every action before anything runs, aggregating all
// reported problems into a single error.
func (o *Orchestrator) preValidate(acts []actions.Action) error {
	var problems []string
	for _, a := range acts {
		v := a.Validate()
		for _, w := range v.Warnings {
			o.logger.Warn("action validation warning", "action_id", a.ID(), "warning", w)
		}
		if !v.Valid {
			problems = append(problems, fmt.Sprintf("%s: %s", a.ID(), strings.Join(v.Errors, "; ")))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrPlanInvalid, strings.Join(problems, " | "))
	}
	return nil
}

// runOne executes a single action under its timeout budget, converting a
// panic into an error.
func (o *Orchestrator) runOne(ctx context.Context, action actions.Action) (result *actions.ActionResult, err error) {
	budget := action.EstimatedDuration() * time.Duration(o.opts.TimeoutFactor)
	if budget < o.opts.MinActionTimeout {
		budget = o.opts.MinActionTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("action %s panicked: %v", action.ID(), r)
		}
	}()

	o.logger.Debug("executing action", "action_id", action.ID(), "type", action.Type(), "budget", budget)
	return action.Execute(runCtx)
}

// rollback walks the executed pairs in reverse and undoes every successful,
// undoable one. Undo errors are logged and never abort the walk.
func (o *Orchestrator) rollback(ctx context.Context, result *ExecutionResult) {
	result.RolledBack = true
	for i := len(result.Results) - 1; i >= 0; i-- {
		pair := result.Results[i]
		if pair.Result == nil || !pair.Result.Success {
			continue
		}
		if !pair.Action.SupportsUndo() {
			o.logger.Warn("skipping rollback of irreversible action", "action_id", pair.Action.ID())
			continue
		}
		if !pair.Action.CanUndo(pair.Result) {
			o.logger.Warn("rollback state unavailable", "action_id", pair.Action.ID())
			continue
		}
		if err := pair.Action.Undo(ctx, pair.Result); err != nil {
			o.logger.Error("rollback failed", "action_id", pair.Action.ID(), "error", err)
			continue
		}
		o.logger.Info("rolled back action", "action_id", pair.Action.ID())
	}
}
