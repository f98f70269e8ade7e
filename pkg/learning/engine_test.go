package learning

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexhq/cortex/pkg/integrations"
	"github.com/cortexhq/cortex/pkg/models"
)

func testEngine(t *testing.T) (*Engine, *integrations.FakeNoteManager) {
	t.Helper()

	fp, err := NewFeedbackProcessor(DefaultFeedbackConfig())
	require.NoError(t, err)

	notes := integrations.NewFakeNoteManager()
	ku := NewKnowledgeUpdater(notes, DefaultKnowledgeConfig(), slog.Default())

	ps, err := NewPatternStore(DefaultPatternStoreConfig(""))
	require.NoError(t, err)

	pt, err := NewProviderTracker(DefaultProviderTrackerConfig(""))
	require.NoError(t, err)

	cc, err := NewConfidenceCalibrator(DefaultCalibratorConfig(""))
	require.NoError(t, err)

	return NewEngine(fp, ku, ps, pt, cc, slog.Default()), notes
}

// A confident auto-archive turns out wrong: the user rejects it and names the
// action they wanted. Every learning component must absorb the outcome.
func TestLearnFromRejectedArchive(t *testing.T) {
	engine, notes := testEngine(t)

	require.NoError(t, engine.Patterns.Add(models.Pattern{
		PatternID:   "p-archive-info",
		PatternType: models.PatternActionSequence,
		Conditions: map[string]any{
			models.CondEventType: string(models.EventTypeActionRequired),
		},
		SuggestedActions: []string{"archive_email"},
		Confidence:       0.9,
		SuccessRate:      1.0,
		Occurrences:      4,
	}))

	mem := learnMemory(t, 0.96)
	fb, err := models.NewFeedback(models.UserFeedback{
		Approval:       false,
		Correction:     "should have created a task instead",
		ActionExecuted: true,
		TimeToAction:   5 * time.Minute,
	})
	require.NoError(t, err)

	result, err := engine.Learn(context.Background(), LearnInput{
		Feedback:          fb,
		Memory:            mem,
		Executed:          []ExecutedAction{{Type: "archive_email", Success: true}},
		Provider:          "anthropic",
		Tier:              "sonnet",
		Latency:           900 * time.Millisecond,
		CostUSD:           0.012,
		Success:           true,
		MatchedPatternIDs: []string{"p-archive-info"},
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Less(t, result.Analysis.CorrectnessScore, 0.5)
	assert.Contains(t, result.Analysis.SuggestedImprovements, "should have created a task instead")
	assert.True(t, result.Analysis.ShouldTriggerLearning)

	// The matched pattern absorbed a failure.
	assert.Equal(t, 1, result.PatternsScored)
	p, ok := engine.Patterns.Get("p-archive-info")
	require.True(t, ok)
	assert.Less(t, p.SuccessRate, 1.0)
	assert.InDelta(t, 0.8, p.SuccessRate, 1e-9) // (1.0*4 + 0) / 5
	assert.Equal(t, 5, p.Occurrences)
	assert.InDelta(t, 0.85, p.Confidence, 1e-9)

	// The provider call was recorded.
	score, ok := engine.Providers.Score("anthropic", "sonnet")
	require.True(t, ok)
	assert.Equal(t, 1, score.TotalCalls)
	assert.InDelta(t, 0.96, score.AvgConfidence, 1e-9)

	// The calibrator saw a confident miss.
	assert.Equal(t, 1, engine.Calibrator.SampleCount())
	obs := engine.Calibrator.bins[engine.Calibrator.binIndex(0.96)]
	require.Len(t, obs, 1)
	assert.LessOrEqual(t, obs[0].Actual, 0.3)

	// Negative feedback makes the event note-worthy.
	assert.Greater(t, result.UpdatesApplied, 0)
	assert.Zero(t, result.UpdatesFailed)
	found := false
	for _, n := range notes.Notes {
		if n.Title == "Decision: Renewal notice" {
			found = true
		}
	}
	assert.True(t, found, "expected a decision note")
}

func TestLearnSkipsKnowledgeOnPerfectConfirmation(t *testing.T) {
	engine, notes := testEngine(t)

	require.NoError(t, engine.Patterns.Add(models.Pattern{
		PatternID:        "p-confirmed",
		PatternType:      models.PatternActionSequence,
		SuggestedActions: []string{"archive_email"},
		Confidence:       0.9,
		SuccessRate:      1.0,
		Occurrences:      4,
	}))

	fb, err := models.NewFeedback(models.UserFeedback{
		Approval:       true,
		Rating:         5,
		ActionExecuted: true,
		TimeToAction:   time.Minute,
	})
	require.NoError(t, err)

	result, err := engine.Learn(context.Background(), LearnInput{
		Feedback:          fb,
		Memory:            learnMemory(t, 0.95),
		Executed:          []ExecutedAction{{Type: "archive_email", Success: true}},
		Provider:          "anthropic",
		Tier:              "haiku",
		Success:           true,
		MatchedPatternIDs: []string{"p-confirmed"},
	})
	require.NoError(t, err)

	assert.False(t, result.Analysis.ShouldTriggerLearning)
	assert.Zero(t, result.PatternsScored)
	assert.Zero(t, result.UpdatesApplied)
	assert.Empty(t, notes.Notes)

	// Pattern statistics are untouched.
	p, ok := engine.Patterns.Get("p-confirmed")
	require.True(t, ok)
	assert.Equal(t, 4, p.Occurrences)
	assert.InDelta(t, 1.0, p.SuccessRate, 1e-9)

	// Monitoring signals are still recorded.
	score, ok := engine.Providers.Score("anthropic", "haiku")
	require.True(t, ok)
	assert.Equal(t, 1, score.TotalCalls)
	assert.Equal(t, 1, engine.Calibrator.SampleCount())
}

func TestLearnRecordsUnknownPatternAsFailure(t *testing.T) {
	engine, _ := testEngine(t)

	fb, err := models.NewFeedback(models.UserFeedback{Approval: false, Correction: "wrong"})
	require.NoError(t, err)

	result, err := engine.Learn(context.Background(), LearnInput{
		Feedback:          fb,
		Memory:            learnMemory(t, 0.5),
		MatchedPatternIDs: []string{"p-ghost"},
	})
	require.NoError(t, err)

	assert.Zero(t, result.PatternsScored)
	assert.GreaterOrEqual(t, result.UpdatesFailed, 1)
	assert.Contains(t, result.Metadata, "pattern_error:p-ghost")
}

func TestLearnNilMemory(t *testing.T) {
	engine, _ := testEngine(t)

	_, err := engine.Learn(context.Background(), LearnInput{})
	assert.ErrorIs(t, err, ErrLearningEngine)
}

func TestLearnRecoversFromPanic(t *testing.T) {
	engine, _ := testEngine(t)
	engine.Feedback = nil // first dereference panics

	result, err := engine.Learn(context.Background(), LearnInput{
		Memory: learnMemory(t, 0.5),
	})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrLearningEngine)
}
