// Package actions defines the executable side-effect units produced by the
// action factory and run by the orchestrator. Actions are values: identity is
// a stable id derived from type and key parameters, and all undo state lives
// in the ActionResult returned from Execute, never in the action itself.
package actions

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
)

// Sentinel errors for action execution.
var (
	// ErrNotExecutable indicates validation found the action unrunnable.
	ErrNotExecutable = errors.New("action is not executable")

	// ErrUndoUnsupported indicates Undo was called on an action without
	// undo support.
	ErrUndoUnsupported = errors.New("action does not support undo")

	// ErrUndoStateMissing indicates the result lacks the captured state
	// required to undo.
	ErrUndoStateMissing = errors.New("undo state missing from result")
)

// ValidationResult reports whether an action may execute.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Invalid builds a failed validation result from error messages.
func Invalid(errs ...string) ValidationResult {
	return ValidationResult{Valid: false, Errors: errs, Warnings: []string{}}
}

// Valid builds a passing validation result.
func Valid(warnings ...string) ValidationResult {
	if warnings == nil {
		warnings = []string{}
	}
	return ValidationResult{Valid: true, Errors: []string{}, Warnings: warnings}
}

// ActionResult is the outcome of one Execute call. Metadata carries any state
// captured for undo (original folder, created ids, snapshots).
type ActionResult struct {
	Success    bool           `json:"success"`
	Duration   time.Duration  `json:"duration_ns"`
	Output     string         `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata"`
	ExecutedAt time.Time      `json:"executed_at"`
}

// newResult starts a result stamped with the current time.
func newResult() *ActionResult {
	return &ActionResult{Metadata: map[string]any{}, ExecutedAt: time.Now().UTC()}
}

// succeed finalizes the result as successful.
func (r *ActionResult) succeed(started time.Time, output string) *ActionResult {
	r.Success = true
	r.Output = output
	r.Duration = time.Since(started)
	return r
}

// fail finalizes the result as failed.
func (r *ActionResult) fail(started time.Time, err error) *ActionResult {
	r.Success = false
	r.Error = err.Error()
	r.Duration = time.Since(started)
	return r
}

// metaString reads a string value from result metadata.
func (r *ActionResult) metaString(key string) (string, bool) {
	if r == nil || r.Metadata == nil {
		return "", false
	}
	v, ok := r.Metadata[key].(string)
	return v, ok && v != ""
}

// Action is the capability set every executable unit implements.
type Action interface {
	// ID is the stable identity of the action, derived from type and key
	// parameters. Equality and plan-DAG keys use it.
	ID() string

	// Type names the action kind (e.g. "archive_email").
	Type() string

	// Validate checks parameters and configuration without side effects.
	Validate() ValidationResult

	// Execute performs the side effect. Expected failures are reported in
	// the result; returned errors signal unexpected failures. Execute must
	// be safe to re-invoke after a failure that did not reach observable
	// state.
	Execute(ctx context.Context) (*ActionResult, error)

	// SupportsUndo reports statically whether the action can ever be undone.
	SupportsUndo() bool

	// CanUndo reports whether this particular result can be undone.
	CanUndo(result *ActionResult) bool

	// Undo reverts the side effect using state captured in the result.
	Undo(ctx context.Context, result *ActionResult) error

	// Dependencies lists predecessor action ids that must run first.
	Dependencies() []string

	// EstimatedDuration is the expected wall-clock cost, used to derive
	// timeout budgets.
	EstimatedDuration() time.Duration
}

// idSanitizer collapses anything outside [a-z0-9] into single dashes.
var idSanitizer = regexp.MustCompile(`[^a-z0-9]+`)

// ActionID derives a stable action id from the type and key parameters.
func ActionID(actionType string, params ...string) string {
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, actionType)
	for _, p := range params {
		s := idSanitizer.ReplaceAllString(strings.ToLower(p), "-")
		s = strings.Trim(s, "-")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ":")
}

// base carries the shared bookkeeping of concrete actions. The executed flag
// is an internal cache only; the canonical execution state is the result
// returned from Execute.
type base struct {
	deps     []string
	executed bool
}

// Dependencies returns the declared predecessor ids.
func (b *base) Dependencies() []string {
	if b.deps == nil {
		return []string{}
	}
	return b.deps
}

// After declares predecessor action ids.
func (b *base) After(ids ...string) {
	b.deps = append(b.deps, ids...)
}
