package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cortexhq/cortex/pkg/memory"
	"github.com/cortexhq/cortex/pkg/models"
)

// ErrLearningEngine wraps unexpected failures out of a learning cycle so
// callers can distinguish them from partial, recoverable outcomes.
var ErrLearningEngine = errors.New("learning engine")

// LearnInput carries everything one learning cycle consumes.
type LearnInput struct {
	Feedback models.UserFeedback
	Memory   *memory.WorkingMemory
	Executed []ExecutedAction

	// Observed AI call for provider tracking.
	Provider string
	Tier     string
	Latency  time.Duration
	CostUSD  float64
	Success  bool

	// Patterns that matched the event during planning.
	MatchedPatternIDs []string
}

// LearningResult is the per-cycle outcome. Partial failures are recorded
// here, not raised.
type LearningResult struct {
	Analysis       *FeedbackAnalysis `json:"analysis"`
	UpdatesApplied int               `json:"updates_applied"`
	UpdatesFailed  int               `json:"updates_failed"`
	PatternsScored int               `json:"patterns_scored"`
	Metadata       map[string]any    `json:"metadata"`
}

// Engine runs one learning pass per processed event across all five
// components.
type Engine struct {
	Feedback   *FeedbackProcessor
	Knowledge  *KnowledgeUpdater
	Patterns   *PatternStore
	Providers  *ProviderTracker
	Calibrator *ConfidenceCalibrator

	logger *slog.Logger
}

// NewEngine assembles the learning engine.
func NewEngine(fp *FeedbackProcessor, ku *KnowledgeUpdater, ps *PatternStore, pt *ProviderTracker, cc *ConfidenceCalibrator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Feedback:   fp,
		Knowledge:  ku,
		Patterns:   ps,
		Providers:  pt,
		Calibrator: cc,
		logger:     logger.With("component", "learning_engine"),
	}
}

// Learn executes one cycle: score the feedback, record the provider call and
// calibration observation, fold outcomes into matched patterns, then apply
// knowledge updates. Recoverable failures land in the result; anything
// unexpected is wrapped in ErrLearningEngine.
func (e *Engine) Learn(ctx context.Context, in LearnInput) (result *LearningResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: panic: %v", ErrLearningEngine, r)
		}
	}()

	if in.Memory == nil {
		return nil, fmt.Errorf("%w: nil working memory", ErrLearningEngine)
	}

	result = &LearningResult{Metadata: map[string]any{}}
	result.Analysis = e.Feedback.Process(in.Feedback, in.Memory, in.Executed)
	confidence := in.Memory.Confidence()

	// Provider and calibration observations are recorded regardless of the
	// trigger filter; they are monitoring signals, not knowledge churn.
	if in.Provider != "" {
		rec := CallRecord{
			Latency:             in.Latency,
			CostUSD:             in.CostUSD,
			Success:             in.Success,
			PredictedConfidence: confidence,
			ActualQuality:       result.Analysis.CorrectnessScore,
		}
		if rerr := e.Providers.RecordCall(in.Provider, in.Tier, rec); rerr != nil {
			result.UpdatesFailed++
			result.Metadata["provider_error"] = rerr.Error()
		}
	}
	if cerr := e.Calibrator.AddObservation(confidence, result.Analysis.CorrectnessScore); cerr != nil {
		result.UpdatesFailed++
		result.Metadata["calibration_error"] = cerr.Error()
	}

	if !result.Analysis.ShouldTriggerLearning {
		e.logger.Debug("perfect confirmation; skipping knowledge updates",
			"event_id", in.Memory.Event.EventID)
		return result, nil
	}

	// Pattern outcomes: the cycle's verdict applies to every pattern that
	// suggested this handling.
	success := result.Analysis.CorrectnessScore >= 0.5
	for _, id := range in.MatchedPatternIDs {
		var perr error
		if success {
			perr = e.Patterns.RecordSuccess(id)
		} else {
			perr = e.Patterns.RecordFailure(id)
		}
		if perr != nil {
			result.UpdatesFailed++
			result.Metadata["pattern_error:"+id] = perr.Error()
			continue
		}
		result.PatternsScored++
	}

	updates := e.Knowledge.Generate(in.Memory, result.Analysis, in.Executed)
	applied, failures := e.Knowledge.Apply(ctx, updates)
	result.UpdatesApplied = applied
	result.UpdatesFailed += len(failures)
	for _, f := range failures {
		result.Metadata["update_error:"+f.UpdateID] = f.Cause
	}

	e.logger.Info("learning cycle complete",
		"event_id", in.Memory.Event.EventID,
		"correctness", result.Analysis.CorrectnessScore,
		"updates_applied", result.UpdatesApplied,
		"updates_failed", result.UpdatesFailed,
		"patterns_scored", result.PatternsScored)

	return result, nil
}
