// Package planner turns a converged working memory and a set of candidate
// actions into an ordered, risk-assessed ActionPlan.
package planner

import (
	"errors"
	"fmt"
	"time"

	"github.com/cortexhq/cortex/pkg/actions"
	"github.com/cortexhq/cortex/pkg/memory"
	"github.com/cortexhq/cortex/pkg/models"
)

// Sentinel errors for plan construction.
var (
	// ErrPlanning is the base class of planning failures.
	ErrPlanning = errors.New("planning failed")

	// ErrMissingDependency indicates an action depends on an id not in the
	// plan.
	ErrMissingDependency = fmt.Errorf("%w: missing dependency", ErrPlanning)

	// ErrDependencyCycle indicates the dependency graph is not a DAG.
	ErrDependencyCycle = fmt.Errorf("%w: dependency cycle", ErrPlanning)
)

// Risk is the per-action risk record carried by a plan.
type Risk struct {
	ActionID   string           `json:"action_id"`
	ActionType string           `json:"action_type"`
	Level      models.RiskLevel `json:"level"`
	Reversible bool             `json:"reversible"`
}

// ActionPlan is an ordered execution plan over a dependency DAG.
type ActionPlan struct {
	Actions           []actions.Action     `json:"-"`
	Mode              models.ExecutionMode `json:"mode"`
	Risks             []Risk               `json:"risks"`
	Rationale         string               `json:"rationale"`
	EstimatedDuration time.Duration        `json:"estimated_duration_ns"`
	Confidence        float64              `json:"confidence"`
	Metadata          map[string]any       `json:"metadata"`
	CreatedAt         time.Time            `json:"created_at"`
}

// RequiresApproval reports whether the plan must pass human review before
// execution.
func (p *ActionPlan) RequiresApproval() bool {
	return p.Mode != models.ModeAuto
}

// MaxRisk returns the highest risk level across the plan's actions, or
// RiskLow for an empty plan.
func (p *ActionPlan) MaxRisk() models.RiskLevel {
	max := models.RiskLow
	for _, r := range p.Risks {
		if r.Level.Rank() > max.Rank() {
			max = r.Level
		}
	}
	return max
}

// RiskAssessor lets an action override the default risk heuristic.
type RiskAssessor interface {
	RiskLevel() models.RiskLevel
}

// Options control mode selection.
type Options struct {
	// AutoApproveThreshold is the minimum confidence for auto execution.
	AutoApproveThreshold float64

	// RiskTolerance is the highest risk level still eligible for auto
	// execution.
	RiskTolerance models.RiskLevel
}

// DefaultOptions returns the planner defaults: auto-approve at 0.95
// confidence, tolerate up to medium risk.
func DefaultOptions() Options {
	return Options{
		AutoApproveThreshold: 0.95,
		RiskTolerance:        models.RiskMedium,
	}
}

// Plan produces an ActionPlan: topological order over the declared
// dependencies, per-action risk, and an execution mode.
func Plan(mem *memory.WorkingMemory, acts []actions.Action, opts Options) (*ActionPlan, error) {
	started := time.Now()

	ordered, err := topoSort(acts)
	if err != nil {
		return nil, err
	}

	risks := make([]Risk, 0, len(ordered))
	var total time.Duration
	for _, a := range ordered {
		risks = append(risks, assessRisk(a))
		total += a.EstimatedDuration()
	}

	best := mem.Best()
	confidence := mem.Confidence()

	plan := &ActionPlan{
		Actions:           ordered,
		Risks:             risks,
		Rationale:         rationale(best),
		EstimatedDuration: total,
		Confidence:        confidence,
		Metadata:          map[string]any{},
		CreatedAt:         time.Now().UTC(),
	}
	plan.Mode = selectMode(best, ordered, confidence, plan.MaxRisk(), opts)

	plan.Metadata["planning_duration_ms"] = time.Since(started).Milliseconds()
	plan.Metadata["action_count"] = len(ordered)
	if best != nil {
		plan.Metadata["hypothesis_id"] = best.ID
	}
	plan.Metadata["risk_summary"] = riskSummary(risks)

	return plan, nil
}

// selectMode implements the mode policy: MANUAL without a hypothesis or
// without actions, AUTO only when confidence and risk both allow it.
func selectMode(best *models.Hypothesis, acts []actions.Action, confidence float64, maxRisk models.RiskLevel, opts Options) models.ExecutionMode {
	if best == nil || len(acts) == 0 {
		return models.ModeManual
	}
	if confidence >= opts.AutoApproveThreshold && maxRisk.Rank() <= opts.RiskTolerance.Rank() {
		return models.ModeAuto
	}
	return models.ModeReview
}

// assessRisk classifies one action. Undoable actions are low risk; an action
// may override via RiskAssessor; everything else irreversible is medium.
func assessRisk(a actions.Action) Risk {
	r := Risk{ActionID: a.ID(), ActionType: a.Type(), Reversible: a.SupportsUndo()}
	if ra, ok := a.(RiskAssessor); ok {
		r.Level = ra.RiskLevel()
		return r
	}
	if a.SupportsUndo() {
		r.Level = models.RiskLow
	} else {
		r.Level = models.RiskMedium
	}
	return r
}

func riskSummary(risks []Risk) map[string]int {
	summary := map[string]int{}
	for _, r := range risks {
		summary[string(r.Level)]++
	}
	return summary
}

func rationale(best *models.Hypothesis) string {
	if best == nil {
		return "no converged hypothesis; manual review required"
	}
	return fmt.Sprintf("%s (confidence %.2f)", best.Description, best.Confidence)
}

// topoSort orders actions with Kahn's algorithm. Ties are broken by input
// order so plans are deterministic.
func topoSort(acts []actions.Action) ([]actions.Action, error) {
	byID := make(map[string]actions.Action, len(acts))
	for _, a := range acts {
		byID[a.ID()] = a
	}

	indegree := make(map[string]int, len(acts))
	dependents := make(map[string][]string, len(acts))
	for _, a := range acts {
		id := a.ID()
		for _, dep := range a.Dependencies() {
			if _, ok := byID[dep]; !ok {
				return nil, fmt.Errorf("%w: action %s depends on unknown %s", ErrMissingDependency, id, dep)
			}
			indegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	queue := make([]string, 0, len(acts))
	for _, a := range acts {
		if indegree[a.ID()] == 0 {
			queue = append(queue, a.ID())
		}
	}

	ordered := make([]actions.Action, 0, len(acts))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		ordered = append(ordered, byID[id])
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(ordered) != len(acts) {
		return nil, fmt.Errorf("%w: %d of %d actions unreachable", ErrDependencyCycle, len(acts)-len(ordered), len(acts))
	}
	return ordered, nil
}
