// Package learning closes the loop after execution: it scores user feedback,
// derives knowledge updates, maintains learned patterns, tracks provider
// quality, and calibrates confidence. All persistent components serialize
// their own state atomically.
package learning

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cortexhq/cortex/pkg/memory"
	"github.com/cortexhq/cortex/pkg/models"
)

// ErrInvalidConfig indicates a learning component configuration violates an
// invariant.
var ErrInvalidConfig = errors.New("invalid learning config")

// ExecutedAction is the slice of an execution record the learning engine
// needs: what ran and whether it worked.
type ExecutedAction struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
}

// FeedbackConfig blends the explicit and implicit feedback components. The
// weights must sum to 1.
type FeedbackConfig struct {
	ExplicitWeight float64 `yaml:"explicit_weight"`
	ImplicitWeight float64 `yaml:"implicit_weight"`
}

// DefaultFeedbackConfig weights explicit signals at 0.7.
func DefaultFeedbackConfig() FeedbackConfig {
	return FeedbackConfig{ExplicitWeight: 0.7, ImplicitWeight: 0.3}
}

// Validate checks the weight-sum invariant.
func (c FeedbackConfig) Validate() error {
	if c.ExplicitWeight < 0 || c.ImplicitWeight < 0 {
		return fmt.Errorf("%w: negative feedback weight", ErrInvalidConfig)
	}
	if math.Abs(c.ExplicitWeight+c.ImplicitWeight-1) > 1e-9 {
		return fmt.Errorf("%w: feedback weights sum to %v, want 1",
			ErrInvalidConfig, c.ExplicitWeight+c.ImplicitWeight)
	}
	return nil
}

// FeedbackAnalysis is the scored interpretation of one piece of feedback.
// Immutable after construction.
type FeedbackAnalysis struct {
	CorrectnessScore      float64  `json:"correctness_score"`
	ActionQualityScore    float64  `json:"action_quality_score"`
	ReasoningQualityScore float64  `json:"reasoning_quality_score"`
	ConfidenceError       float64  `json:"confidence_error"` // in [-1,1]
	SuggestedImprovements []string `json:"suggested_improvements"`
	ShouldTriggerLearning bool     `json:"should_trigger_learning"`

	CreatedAt time.Time `json:"created_at"`
}

// FeedbackProcessor turns raw feedback into a FeedbackAnalysis.
type FeedbackProcessor struct {
	cfg FeedbackConfig
}

// NewFeedbackProcessor validates the config and builds a processor.
func NewFeedbackProcessor(cfg FeedbackConfig) (*FeedbackProcessor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &FeedbackProcessor{cfg: cfg}, nil
}

// Process scores the feedback against the working memory and the executed
// actions.
func (p *FeedbackProcessor) Process(fb models.UserFeedback, mem *memory.WorkingMemory, executed []ExecutedAction) *FeedbackAnalysis {
	explicit := explicitScore(fb)
	implicit := implicitScore(fb)
	correctness := models.Clamp01(p.cfg.ExplicitWeight*explicit + p.cfg.ImplicitWeight*implicit)

	confidence := 0.5
	if mem != nil {
		confidence = mem.Confidence()
	}

	analysis := &FeedbackAnalysis{
		CorrectnessScore:      correctness,
		ActionQualityScore:    actionQuality(fb, executed),
		ReasoningQualityScore: models.Clamp01(0.5*correctness + 0.5*confidence),
		ConfidenceError:       confidence - correctness,
		SuggestedImprovements: improvements(fb),
		CreatedAt:             time.Now().UTC(),
	}
	analysis.ShouldTriggerLearning = shouldTrigger(fb, correctness)
	return analysis
}

// explicitScore reads the user's direct verdict: approval, rating,
// correction, proposed modification.
func explicitScore(fb models.UserFeedback) float64 {
	score := 0.2
	if fb.Approval {
		score = 1.0
	}
	if fb.HasRating() {
		score = (score + models.RatingToScore(fb.Rating)) / 2
	}
	if fb.Correction != "" {
		score -= 0.2
	}
	if fb.Modification != "" {
		score -= 0.1
	}
	return models.Clamp01(score)
}

// implicitScore reads behavioral signals: whether the proposed action ran and
// how quickly the user acted.
func implicitScore(fb models.UserFeedback) float64 {
	score := 0.4
	if fb.ActionExecuted {
		score = 0.8
	}
	switch {
	case fb.TimeToAction < time.Hour:
		score += 0.1
	case fb.TimeToAction > 24*time.Hour:
		score -= 0.1
	}
	return models.Clamp01(score)
}

// actionQuality is the success fraction of executed actions, penalized when
// the user proposed an alternative. Neutral when nothing ran.
func actionQuality(fb models.UserFeedback, executed []ExecutedAction) float64 {
	if len(executed) == 0 {
		return 0.5
	}
	succeeded := 0
	for _, a := range executed {
		if a.Success {
			succeeded++
		}
	}
	quality := float64(succeeded) / float64(len(executed))
	if fb.Modification != "" {
		quality -= 0.3
	}
	return models.Clamp01(quality)
}

func improvements(fb models.UserFeedback) []string {
	out := []string{}
	if fb.Correction != "" {
		out = append(out, fb.Correction)
	}
	if fb.Modification != "" {
		out = append(out, fmt.Sprintf("user preferred action: %s", fb.Modification))
	}
	if fb.HasRating() && fb.Rating <= 2 {
		out = append(out, fmt.Sprintf("low rating (%d/5)", fb.Rating))
	}
	if fb.Comment != "" {
		out = append(out, fb.Comment)
	}
	return out
}

// shouldTrigger filters perfect confirmations: unreserved approval with high
// correctness teaches nothing new and would thrash the stores.
func shouldTrigger(fb models.UserFeedback, correctness float64) bool {
	perfect := fb.Approval &&
		fb.Correction == "" &&
		fb.Modification == "" &&
		(!fb.HasRating() || fb.Rating >= 4) &&
		correctness >= 0.9
	return !perfect
}
