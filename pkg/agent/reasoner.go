package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cortexhq/cortex/pkg/agent/prompt"
	"github.com/cortexhq/cortex/pkg/memory"
	"github.com/cortexhq/cortex/pkg/models"
)

// Options tunes the reasoning loop.
type Options struct {
	// MaxPasses is the safety bound on the number of passes.
	MaxPasses int

	// ConvergenceThreshold is the overall confidence below which another
	// pass is always scheduled.
	ConvergenceThreshold float64

	// PassTimeout bounds each pass, covering its context search and router
	// call together.
	PassTimeout time.Duration

	// ContextWindow bounds how far back context retrieval reaches.
	ContextWindow time.Duration
}

// DefaultOptions runs up to 5 passes converging at 0.8.
func DefaultOptions() Options {
	return Options{
		MaxPasses:            5,
		ConvergenceThreshold: 0.8,
		PassTimeout:          30 * time.Second,
		ContextWindow:        30 * 24 * time.Hour,
	}
}

// Result summarizes one reasoning run. Observations are handed to the
// learning engine by the caller after processing finishes.
type Result struct {
	Converged    bool
	Passes       int
	Best         *models.Hypothesis
	Observations []CallObservation
}

// passSchedule is the canonical pass order; runs past the schedule fall back
// to deep reasoning.
var passSchedule = []models.PassType{
	models.PassInitialAnalysis,
	models.PassContextEnrichment,
	models.PassDeepReasoning,
	models.PassValidation,
	models.PassArbitration,
}

func passTypeFor(passNumber int) models.PassType {
	if passNumber >= 1 && passNumber <= len(passSchedule) {
		return passSchedule[passNumber-1]
	}
	return models.PassDeepReasoning
}

// Reasoner runs the multi-pass loop over one working memory at a time.
type Reasoner struct {
	router   Router
	searcher ContextSearcher
	prompts  *prompt.Builder
	opts     Options
	logger   *slog.Logger
}

// NewReasoner creates a reasoner. The searcher may be nil, in which case
// context enrichment passes run without retrieval.
func NewReasoner(router Router, searcher ContextSearcher, opts Options, logger *slog.Logger) *Reasoner {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultOptions()
	if opts.MaxPasses <= 0 {
		opts.MaxPasses = def.MaxPasses
	}
	if opts.ConvergenceThreshold <= 0 {
		opts.ConvergenceThreshold = def.ConvergenceThreshold
	}
	if opts.PassTimeout <= 0 {
		opts.PassTimeout = def.PassTimeout
	}
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = def.ContextWindow
	}
	return &Reasoner{
		router:   router,
		searcher: searcher,
		prompts:  prompt.NewBuilder(),
		opts:     opts,
		logger:   logger.With("component", "reasoner"),
	}
}

// Budget narrows one reasoning run below the configured options. The zero
// value leaves them unchanged.
type Budget struct {
	// MaxPasses caps the pass count below Options.MaxPasses when positive.
	MaxPasses int

	// SkipContext disables retrieval on context enrichment passes.
	SkipContext bool
}

// Reason drives passes until the analysis converges or the pass cap is hit.
// On any pass failure the active pass is completed with its current state,
// the memory transitions to complete with the best hypothesis preserved, and
// the error is returned wrapped in ErrReasoning.
func (r *Reasoner) Reason(ctx context.Context, mem *memory.WorkingMemory) (*Result, error) {
	return r.ReasonWithBudget(ctx, mem, Budget{})
}

// ReasonWithBudget runs the pass loop under a reduced budget. Lightly triaged
// events use this to cap passes and skip context retrieval.
func (r *Reasoner) ReasonWithBudget(ctx context.Context, mem *memory.WorkingMemory, budget Budget) (*Result, error) {
	result := &Result{}
	if mem == nil {
		return nil, fmt.Errorf("%w: nil working memory", ErrReasoning)
	}
	if mem.State().Terminal() {
		return nil, fmt.Errorf("%w: memory already %s", ErrReasoning, mem.State())
	}

	maxPasses := r.opts.MaxPasses
	if budget.MaxPasses > 0 && budget.MaxPasses < maxPasses {
		maxPasses = budget.MaxPasses
	}

	for {
		passType := passTypeFor(mem.PassCount() + 1)
		if err := r.runPass(ctx, mem, passType, result, budget.SkipContext); err != nil {
			r.failSafe(mem, result)
			return result, fmt.Errorf("%w: %s pass: %v", ErrReasoning, passType, err)
		}
		if !r.needsMoreReasoning(mem, maxPasses) {
			break
		}
	}

	result.Passes = mem.PassCount()
	result.Best = mem.Best()
	result.Converged = mem.Confidence() >= r.opts.ConvergenceThreshold &&
		len(mem.OpenQuestions()) == 0 && len(mem.Uncertainties()) == 0

	r.logger.Info("reasoning finished",
		"event_id", mem.Event.EventID,
		"passes", result.Passes,
		"confidence", mem.Confidence(),
		"converged", result.Converged)
	return result, nil
}

// needsMoreReasoning implements the convergence decision: stop at the pass
// cap; continue below the confidence threshold; continue while open questions
// or uncertainties remain.
func (r *Reasoner) needsMoreReasoning(mem *memory.WorkingMemory, maxPasses int) bool {
	if mem.PassCount() >= maxPasses {
		return false
	}
	if mem.Confidence() < r.opts.ConvergenceThreshold {
		return true
	}
	return len(mem.OpenQuestions()) > 0 || len(mem.Uncertainties()) > 0
}

// runPass executes one pass: optional context retrieval, one router call,
// and the application of the parsed directives to the memory.
func (r *Reasoner) runPass(ctx context.Context, mem *memory.WorkingMemory, passType models.PassType, result *Result, skipContext bool) error {
	pass, err := mem.StartPass(passType)
	if err != nil {
		return err
	}

	passCtx, cancel := context.WithTimeout(ctx, r.opts.PassTimeout)
	defer cancel()

	if passType == models.PassContextEnrichment && r.searcher != nil && !skipContext {
		if err := r.enrich(passCtx, mem, pass); err != nil {
			r.recordTimeout(pass, passCtx)
			return fmt.Errorf("context search: %w", err)
		}
	}

	system, userPrompt := r.prompts.BuildPassPrompt(passType, mem)
	pass.Prompts = append(pass.Prompts, userPrompt)

	resp, err := r.router.Complete(passCtx, RouterRequest{
		PassType: passType,
		System:   system,
		Prompt:   userPrompt,
	})

	obs := CallObservation{PassType: passType, Success: err == nil}
	if resp != nil {
		obs.Provider = resp.Provider
		obs.Tier = resp.Tier
		obs.Latency = resp.Latency
		obs.CostUSD = resp.CostUSD
	}
	result.Observations = append(result.Observations, obs)

	if err != nil {
		r.recordTimeout(pass, passCtx)
		return fmt.Errorf("router call: %w", err)
	}

	pass.Responses = append(pass.Responses, resp.Text)
	r.apply(mem, pass, ParseResponse(resp.Text))

	if _, err := mem.CompletePass(); err != nil {
		return err
	}
	r.logger.Debug("pass complete",
		"event_id", mem.Event.EventID,
		"pass", pass.PassNumber,
		"pass_type", passType,
		"confidence", mem.Confidence())
	return nil
}

// enrich runs the context search and attaches the retrieved items.
func (r *Reasoner) enrich(ctx context.Context, mem *memory.WorkingMemory, pass *models.ReasoningPass) error {
	query := ContextQuery{
		Entities: mem.Event.Entities,
		Keywords: mem.Event.Keywords,
		Window:   r.opts.ContextWindow,
	}
	pass.ContextQueries = append(pass.ContextQueries, describeQuery(query))

	items, err := r.searcher.Search(ctx, query)
	if err != nil {
		return err
	}
	mem.AttachContext(items...)
	pass.Metadata["context_items"] = len(items)
	return nil
}

// apply folds parsed directives into the memory and the pass record.
func (r *Reasoner) apply(mem *memory.WorkingMemory, pass *models.ReasoningPass, analysis *Analysis) {
	if analysis.Conclusion != "" {
		confidence := mem.Confidence()
		if analysis.HasConfidence() {
			confidence = analysis.Confidence
		}
		id := fmt.Sprintf("h-pass-%d", pass.PassNumber)
		if h, err := models.NewHypothesis(id, analysis.Conclusion, confidence); err == nil {
			// One hypothesis id per pass; replace covers a revised
			// conclusion within the same pass number.
			_ = mem.AddHypothesis(h, true)
		}
	}
	if analysis.HasConfidence() {
		mem.SetConfidence(analysis.Confidence)
	}
	if analysis.Draft != "" {
		mem.SetDraftReply(analysis.Draft)
	}

	pass.Insights = append(pass.Insights, analysis.Insights...)
	for _, q := range analysis.Questions {
		mem.AddOpenQuestion(q)
		pass.QuestionsRaised = append(pass.QuestionsRaised, q)
	}
	for _, q := range analysis.Resolved {
		mem.ResolveOpenQuestion(q)
		mem.ResolveUncertainty(q)
	}
	for _, u := range analysis.Uncertainties {
		mem.AddUncertainty(u)
	}
}

// failSafe completes the active pass with its current state and moves the
// memory to complete, preserving the best hypothesis so far.
func (r *Reasoner) failSafe(mem *memory.WorkingMemory, result *Result) {
	if mem.ActivePass() != nil {
		_, _ = mem.CompletePass()
	}
	_ = mem.Transition(models.StateComplete)
	result.Passes = mem.PassCount()
	result.Best = mem.Best()
}

// recordTimeout marks the pass when its context deadline was the cause.
func (r *Reasoner) recordTimeout(pass *models.ReasoningPass, ctx context.Context) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		pass.Metadata["timeout"] = true
	}
}

func describeQuery(q ContextQuery) string {
	parts := make([]string, 0, len(q.Entities)+len(q.Keywords))
	for _, ent := range q.Entities {
		parts = append(parts, ent.Type+":"+ent.Value)
	}
	parts = append(parts, q.Keywords...)
	return strings.Join(parts, " ")
}
