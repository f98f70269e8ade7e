package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cortexhq/cortex/pkg/actions"
	"github.com/cortexhq/cortex/pkg/agent"
	"github.com/cortexhq/cortex/pkg/events"
	"github.com/cortexhq/cortex/pkg/history"
	"github.com/cortexhq/cortex/pkg/integrations"
	"github.com/cortexhq/cortex/pkg/learning"
	"github.com/cortexhq/cortex/pkg/memory"
	"github.com/cortexhq/cortex/pkg/models"
	"github.com/cortexhq/cortex/pkg/orchestrator"
	"github.com/cortexhq/cortex/pkg/perception"
	"github.com/cortexhq/cortex/pkg/planner"
	"github.com/cortexhq/cortex/pkg/store"
)

// Broadcaster is the subset of the channel manager the pipeline uses.
type Broadcaster interface {
	BroadcastToChannel(channel, roomID string, message map[string]any, exclude ...string)
}

// Outcome summarizes the processing of one event.
type Outcome struct {
	EventID     string
	Decision    perception.FilterDecision
	Disposition actions.Disposition
	Mode        models.ExecutionMode
	Confidence  float64
	Passes      int

	// Terminal handling: exactly one of Executed or Queued for events that
	// reach planning; skipped events have neither.
	Executed    bool
	RolledBack  bool
	Queued      bool
	QueueItemID string

	Learning *learning.LearningResult
}

// Pipeline drives one perceived event through triage, reasoning, planning,
// and execution or review. The learner and broadcaster are optional.
type Pipeline struct {
	Filter       *perception.PreFilter
	Reasoner     *agent.Reasoner
	Factory      *actions.Factory
	PlanOpts     planner.Options
	Orchestrator *orchestrator.Orchestrator
	Queue        *store.QueueStore
	Learner      *learning.Engine
	Broadcast    Broadcaster
	History      *history.Store

	logger *slog.Logger

	// Recently processed memories, retained so later explicit feedback
	// (queue approval, rejection) can still run a learning cycle. Held
	// behind a pointer so the configured Pipeline value can be copied.
	retained *retention
}

// retentionCap bounds the recall window for explicit feedback.
const retentionCap = 256

// lightMaxPasses caps reasoning for lightly triaged events.
const lightMaxPasses = 2

// retention is the lock-guarded recall window for processed memories.
type retention struct {
	mu    sync.Mutex
	items map[string]*memory.WorkingMemory
	order []string
}

// NewPipeline wires the pipeline. Filter, Reasoner, Factory, Orchestrator,
// and Queue are required.
func NewPipeline(p Pipeline, logger *slog.Logger) (*Pipeline, error) {
	if p.Filter == nil || p.Reasoner == nil || p.Factory == nil || p.Orchestrator == nil || p.Queue == nil {
		return nil, fmt.Errorf("pipeline: filter, reasoner, factory, orchestrator, and queue store are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	p.logger = logger.With("component", "pipeline")
	p.retained = &retention{items: make(map[string]*memory.WorkingMemory)}
	return &p, nil
}

// Recall returns the retained working memory for a recently processed event.
func (p *Pipeline) Recall(eventID string) (*memory.WorkingMemory, bool) {
	p.retained.mu.Lock()
	defer p.retained.mu.Unlock()
	mem, ok := p.retained.items[eventID]
	return mem, ok
}

// retain keeps the memory for later feedback, evicting the oldest entry once
// the window is full.
func (p *Pipeline) retain(mem *memory.WorkingMemory) {
	r := p.retained
	r.mu.Lock()
	defer r.mu.Unlock()
	id := mem.Event.EventID
	if _, exists := r.items[id]; !exists {
		r.order = append(r.order, id)
	}
	r.items[id] = mem
	for len(r.order) > retentionCap {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.items, oldest)
	}
}

// Process runs one event end to end. Reasoning failures surface the event on
// the review queue and return the wrapped error alongside the outcome.
func (p *Pipeline) Process(ctx context.Context, event models.PerceivedEvent) (*Outcome, error) {
	outcome := &Outcome{EventID: event.EventID}
	log := p.logger.With("event_id", event.EventID)
	defer func() { p.record(ctx, &event, outcome) }()

	triage := p.Filter.Classify(&event)
	outcome.Decision = triage.Decision
	p.announce(event.EventID, "prefilter", string(triage.Decision), 0, triage.Reason)
	if triage.Decision == perception.DecisionSkip {
		log.Info("event skipped by pre-filter", "reason", triage.Reason)
		return outcome, nil
	}

	mem := memory.New(event)
	defer p.retain(mem)
	reasoned, err := p.reason(ctx, mem, triage.Decision)
	if reasoned != nil {
		outcome.Passes = reasoned.Passes
	}
	outcome.Confidence = mem.Confidence()
	if err != nil {
		p.announce(event.EventID, "reasoning", "failed", mem.Confidence(), "")
		if qerr := p.enqueue(ctx, outcome, &event, mem, nil, "reasoning", err.Error()); qerr != nil {
			log.Error("failed to enqueue after reasoning failure", "error", qerr)
		}
		return outcome, err
	}
	p.announce(event.EventID, "reasoning", "converged", mem.Confidence(), "")

	matched := p.matchedPatternIDs(&event)

	outcome.Disposition = deriveDisposition(&event, mem.Best())
	if outcome.Disposition == actions.DispositionReply && mem.DraftReply() == "" {
		// A reply needs a body; without a drafted one the user writes it.
		outcome.Disposition = actions.DispositionReview
	}
	in := actions.BuildInput{
		Disposition: outcome.Disposition,
		Event:       &event,
		ReplyBody:   mem.DraftReply(),
	}
	if outcome.Disposition == actions.DispositionRespond {
		in.Response = calendarResponse(mem.Best())
	}
	acts, err := p.Factory.Build(in)
	if err != nil {
		return outcome, fmt.Errorf("building actions for %s: %w", event.EventID, err)
	}

	if err := mem.Transition(models.StatePlanning); err != nil {
		return outcome, fmt.Errorf("entering planning for %s: %w", event.EventID, err)
	}

	if len(acts) == 0 {
		// Review and snooze dispositions carry no actions; the user decides.
		outcome.Mode = models.ModeManual
		if err := p.enqueue(ctx, outcome, &event, mem, nil, "", ""); err != nil {
			return outcome, err
		}
		p.complete(mem)
		return outcome, nil
	}

	plan, err := planner.Plan(mem, acts, p.PlanOpts)
	if err != nil {
		p.announce(event.EventID, "planning", "failed", mem.Confidence(), "")
		if qerr := p.enqueue(ctx, outcome, &event, mem, nil, "planning", err.Error()); qerr != nil {
			log.Error("failed to enqueue after planning failure", "error", qerr)
		}
		return outcome, err
	}
	outcome.Mode = plan.Mode
	p.announce(event.EventID, "planning", string(plan.Mode), plan.Confidence, plan.Rationale)

	if plan.RequiresApproval() {
		if err := p.enqueue(ctx, outcome, &event, mem, plan, "", ""); err != nil {
			return outcome, err
		}
		p.complete(mem)
		return outcome, nil
	}

	if err := mem.Transition(models.StateExecuting); err != nil {
		return outcome, fmt.Errorf("entering execution for %s: %w", event.EventID, err)
	}
	exec := p.Orchestrator.Execute(ctx, plan)
	outcome.Executed = exec.Success
	outcome.RolledBack = exec.RolledBack
	p.complete(mem)

	state := "executed"
	if !exec.Success {
		state = "execution_failed"
	}
	p.announce(event.EventID, "executing", state, plan.Confidence, "")

	p.learn(ctx, outcome, mem, reasoned, exec, matched)
	return outcome, nil
}

// enqueue writes a review-queue item for the event and broadcasts its
// arrival. The plan is optional; failureKind marks processing failures.
func (p *Pipeline) enqueue(ctx context.Context, outcome *Outcome, event *models.PerceivedEvent, mem *memory.WorkingMemory, plan *planner.ActionPlan, failureKind, failureMessage string) error {
	item, err := models.NewQueueItem("q-"+event.EventID, event.EventID, event.AccountID(), event.Title, reviewSummary(mem))
	if err != nil {
		return fmt.Errorf("creating queue item for %s: %w", event.EventID, err)
	}
	item.Confidence = mem.Confidence()
	item.FailureKind = failureKind
	item.FailureMessage = failureMessage
	if plan != nil {
		item.PlanMode = plan.Mode
		for _, a := range plan.Actions {
			item.ActionTypes = append(item.ActionTypes, a.Type())
		}
	}
	if err := p.Queue.SaveItem(ctx, item); err != nil {
		return fmt.Errorf("saving queue item for %s: %w", event.EventID, err)
	}

	outcome.Queued = true
	outcome.QueueItemID = item.ItemID

	if p.Broadcast != nil {
		payload := events.ItemPayload{
			Kind:    "queue_item",
			ItemID:  item.ItemID,
			EventID: item.EventID,
			Status:  string(item.Status),
		}
		p.Broadcast.BroadcastToChannel(events.ChannelQueue, "", payload.Frame(events.FrameItemAdded))
	}
	return nil
}

// learn runs one learning cycle with implicit feedback derived from the
// execution outcome. Partial failures are logged, not raised.
func (p *Pipeline) learn(ctx context.Context, outcome *Outcome, mem *memory.WorkingMemory, reasoned *agent.Result, exec *orchestrator.ExecutionResult, matchedPatternIDs []string) {
	if p.Learner == nil {
		return
	}

	executed := make([]learning.ExecutedAction, 0, len(exec.Results))
	for _, pair := range exec.Results {
		executed = append(executed, learning.ExecutedAction{
			Type:    pair.Action.Type(),
			Success: pair.Result != nil && pair.Result.Success,
		})
	}

	in := learning.LearnInput{
		Feedback: models.UserFeedback{
			Approval:       exec.Success,
			ActionExecuted: exec.Success,
			TimeToAction:   exec.Duration,
			CreatedAt:      time.Now().UTC(),
		},
		Memory:            mem,
		Executed:          executed,
		MatchedPatternIDs: matchedPatternIDs,
	}
	if n := len(reasoned.Observations); n > 0 {
		obs := reasoned.Observations[n-1]
		in.Provider = obs.Provider
		in.Tier = obs.Tier
		in.Latency = obs.Latency
		in.Success = obs.Success
		for _, o := range reasoned.Observations {
			in.CostUSD += o.CostUSD
		}
	}

	result, err := p.Learner.Learn(ctx, in)
	if err != nil {
		p.logger.Error("learning cycle failed", "event_id", mem.Event.EventID, "error", err)
		return
	}
	outcome.Learning = result
}

func (p *Pipeline) matchedPatternIDs(event *models.PerceivedEvent) []string {
	if p.Learner == nil || p.Learner.Patterns == nil {
		return nil
	}
	matched := p.Learner.Patterns.Match(event)
	ids := make([]string, 0, len(matched))
	for _, pattern := range matched {
		ids = append(ids, pattern.PatternID)
	}
	return ids
}

// record writes the session row for the event. A nil history store is a
// no-op.
func (p *Pipeline) record(ctx context.Context, event *models.PerceivedEvent, outcome *Outcome) {
	err := p.History.Record(ctx, history.Session{
		EventID:     event.EventID,
		AccountID:   event.AccountID(),
		Source:      string(event.Source),
		Decision:    string(outcome.Decision),
		Disposition: string(outcome.Disposition),
		PlanMode:    string(outcome.Mode),
		Outcome:     outcomeLabel(outcome),
		Confidence:  outcome.Confidence,
		Passes:      outcome.Passes,
	})
	if err != nil {
		p.logger.Warn("could not record session history",
			"event_id", event.EventID, "error", err)
	}
}

// outcomeLabel names the terminal state of a processed event.
func outcomeLabel(o *Outcome) string {
	switch {
	case o.RolledBack:
		return "rolled_back"
	case o.Executed:
		return "executed"
	case o.Queued:
		return "queued"
	case o.Decision == perception.DecisionSkip:
		return "skipped"
	default:
		return "failed"
	}
}

func (p *Pipeline) complete(mem *memory.WorkingMemory) {
	if err := mem.Transition(models.StateComplete); err != nil {
		p.logger.Warn("could not complete working memory",
			"event_id", mem.Event.EventID, "error", err)
	}
}

// announce broadcasts a pipeline state transition on the events channel.
func (p *Pipeline) announce(eventID, stage, state string, confidence float64, detail string) {
	if p.Broadcast == nil {
		return
	}
	payload := events.ProcessingEventPayload{
		EventID:    eventID,
		Stage:      stage,
		State:      state,
		Confidence: confidence,
		Detail:     detail,
	}
	p.Broadcast.BroadcastToChannel(events.ChannelEvents, "", payload.Frame())
}

func reviewSummary(mem *memory.WorkingMemory) string {
	if best := mem.Best(); best != nil {
		return best.Description
	}
	return "no converged interpretation"
}

// reason runs the reasoning loop, under a reduced budget when triage asked
// for light processing.
func (p *Pipeline) reason(ctx context.Context, mem *memory.WorkingMemory, decision perception.FilterDecision) (*agent.Result, error) {
	if decision == perception.DecisionProcessLight {
		return p.Reasoner.ReasonWithBudget(ctx, mem, agent.Budget{
			MaxPasses:   lightMaxPasses,
			SkipContext: true,
		})
	}
	return p.Reasoner.Reason(ctx, mem)
}

// deriveDisposition maps the best hypothesis to a handling disposition by
// keyword. A calendar event needing a decision is an invitation to answer;
// everything else without a conclusion goes to review.
func deriveDisposition(event *models.PerceivedEvent, best *models.Hypothesis) actions.Disposition {
	if best == nil {
		return actions.DispositionReview
	}
	if event.Source == models.SourceCalendar && event.Type == models.EventTypeDecisionNeeded {
		return actions.DispositionRespond
	}
	desc := strings.ToLower(best.Description)
	switch {
	case strings.Contains(desc, "delete"), strings.Contains(desc, "spam"), strings.Contains(desc, "junk"):
		return actions.DispositionDelete
	case strings.Contains(desc, "task"), strings.Contains(desc, "follow up"), strings.Contains(desc, "follow-up"):
		return actions.DispositionTask
	case strings.Contains(desc, "reply"), strings.Contains(desc, "respond"):
		return actions.DispositionReply
	case strings.Contains(desc, "reference"), strings.Contains(desc, "keep for"):
		return actions.DispositionReference
	case strings.Contains(desc, "snooze"), strings.Contains(desc, "defer"):
		return actions.DispositionSnooze
	case strings.Contains(desc, "archive"):
		return actions.DispositionArchive
	default:
		return actions.DispositionReview
	}
}

// calendarResponse maps the hypothesis wording to an invitation answer.
// Tentative when the analysis did not commit either way.
func calendarResponse(best *models.Hypothesis) integrations.ResponseStatus {
	desc := strings.ToLower(best.Description)
	switch {
	case strings.Contains(desc, "decline"), strings.Contains(desc, "reject"):
		return integrations.ResponseDeclined
	case strings.Contains(desc, "accept"), strings.Contains(desc, "attend"), strings.Contains(desc, "confirm"):
		return integrations.ResponseAccepted
	default:
		return integrations.ResponseTentative
	}
}
