package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexhq/cortex/pkg/models"
)

func testEvent(t *testing.T) models.PerceivedEvent {
	t.Helper()
	now := time.Now().UTC().Add(-time.Minute)
	e, err := models.NewEvent(models.PerceivedEvent{
		EventID:     "evt-mem",
		Source:      models.SourceMail,
		SourceID:    "m-1",
		OccurredAt:  now,
		ReceivedAt:  now,
		PerceivedAt: now,
		Title:       "test",
		Type:        models.EventTypeRequest,
		Urgency:     models.UrgencyMedium,
		FromPerson:  "alice@example.com",
	})
	require.NoError(t, err)
	return e
}

func TestStateMachineForwardOnly(t *testing.T) {
	m := New(testEvent(t))
	assert.Equal(t, models.StateInitialized, m.State())

	require.NoError(t, m.Transition(models.StatePerceiving))
	require.NoError(t, m.Transition(models.StateReasoning))

	// Backwards is rejected.
	assert.ErrorIs(t, m.Transition(models.StatePerceiving), ErrInvalidState)

	// Complete is reachable from any non-terminal state.
	require.NoError(t, m.Transition(models.StateComplete))
	require.NoError(t, m.Transition(models.StateArchived))

	// Archived is final.
	assert.ErrorIs(t, m.Transition(models.StateComplete), ErrInvalidState)
}

func TestArchivedOnlyFromComplete(t *testing.T) {
	m := New(testEvent(t))
	assert.ErrorIs(t, m.Transition(models.StateArchived), ErrInvalidState)
}

func TestHypothesisBestPointer(t *testing.T) {
	m := New(testEvent(t))

	h1, err := models.NewHypothesis("h1", "archive it", 0.6)
	require.NoError(t, err)
	h2, err := models.NewHypothesis("h2", "needs a task", 0.8)
	require.NoError(t, err)

	require.NoError(t, m.AddHypothesis(h1, false))
	assert.Equal(t, "h1", m.Best().ID)

	require.NoError(t, m.AddHypothesis(h2, false))
	assert.Equal(t, "h2", m.Best().ID)

	// Duplicate id without replace is an error.
	dup, err := models.NewHypothesis("h2", "other", 0.1)
	require.NoError(t, err)
	assert.ErrorIs(t, m.AddHypothesis(dup, false), ErrDuplicateHypothesis)

	// With replace the slot is overwritten and best recomputed.
	require.NoError(t, m.AddHypothesis(dup, true))
	assert.Equal(t, "h1", m.Best().ID)
	assert.Equal(t, 2, m.HypothesisCount())
}

func TestHypothesesSorted(t *testing.T) {
	m := New(testEvent(t))
	for _, h := range []struct {
		id   string
		conf float64
	}{{"a", 0.3}, {"b", 0.9}, {"c", 0.5}} {
		hyp, err := models.NewHypothesis(h.id, "d", h.conf)
		require.NoError(t, err)
		require.NoError(t, m.AddHypothesis(hyp, false))
	}
	got := m.Hypotheses()
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
	assert.Equal(t, "a", got[2].ID)
}

func TestPassLifecycle(t *testing.T) {
	m := New(testEvent(t))

	pass, err := m.StartPass(models.PassInitialAnalysis)
	require.NoError(t, err)
	assert.Equal(t, 1, pass.PassNumber)
	assert.Equal(t, models.StateReasoning, m.State())

	// Only one pass in progress at a time.
	_, err = m.StartPass(models.PassDeepReasoning)
	assert.ErrorIs(t, err, ErrPassInProgress)

	m.SetConfidence(0.7)
	done, err := m.CompletePass()
	require.NoError(t, err)
	assert.True(t, done.Completed())
	assert.InDelta(t, 0.7, done.OutputConfidence, 1e-9)
	assert.InDelta(t, 0.7, done.ConfidenceDelta, 1e-9)
	assert.Equal(t, 1, m.PassCount())
	assert.Nil(t, m.ActivePass())

	// Completing again without an active pass fails.
	_, err = m.CompletePass()
	assert.ErrorIs(t, err, ErrNoPassInProgress)

	// Pass numbers are sequential.
	second, err := m.StartPass(models.PassContextEnrichment)
	require.NoError(t, err)
	assert.Equal(t, 2, second.PassNumber)
}

func TestStartPassRejectedInTerminalState(t *testing.T) {
	m := New(testEvent(t))
	require.NoError(t, m.Transition(models.StateComplete))
	_, err := m.StartPass(models.PassInitialAnalysis)
	assert.ErrorIs(t, err, ErrTerminalState)
}

func TestQuestionsDeduplicated(t *testing.T) {
	m := New(testEvent(t))
	m.AddOpenQuestion("who is the owner?")
	m.AddOpenQuestion("who is the owner?")
	m.AddUncertainty("deadline unclear")
	m.AddUncertainty("deadline unclear")

	assert.Len(t, m.OpenQuestions(), 1)
	assert.Len(t, m.Uncertainties(), 1)

	m.ResolveOpenQuestion("who is the owner?")
	m.ResolveUncertainty("deadline unclear")
	assert.Empty(t, m.OpenQuestions())
	assert.Empty(t, m.Uncertainties())
}

func TestConversationDefensiveCopy(t *testing.T) {
	m := New(testEvent(t))
	prior := []models.PerceivedEvent{testEvent(t)}
	m.SetConversation("conv-1", prior)

	// Mutating the caller's slice must not affect the stored copy.
	prior[0].Title = "mutated"
	id, events := m.Conversation()
	assert.Equal(t, "conv-1", id)
	require.Len(t, events, 1)
	assert.Equal(t, "test", events[0].Title)
}

func TestRankedContext(t *testing.T) {
	m := New(testEvent(t))
	m.AttachContext(
		models.ContextItem{Source: "notes", Type: "note", Content: "a", RelevanceScore: 0.2},
		models.ContextItem{Source: "calendar", Type: "event", Content: "b", RelevanceScore: 0.9},
		models.ContextItem{Source: "tasks", Type: "task", Content: "c", RelevanceScore: 0.5},
	)
	ranked := m.RankedContext()
	require.Len(t, ranked, 3)
	assert.Equal(t, "b", ranked[0].Content)
	assert.Equal(t, "c", ranked[1].Content)
	assert.Equal(t, "a", ranked[2].Content)

	// Attachment order preserved in ContextItems.
	assert.Equal(t, "a", m.ContextItems()[0].Content)
}

func TestConfidenceClamped(t *testing.T) {
	m := New(testEvent(t))
	m.SetConfidence(1.4)
	assert.Equal(t, 1.0, m.Confidence())
	m.SetConfidence(-0.2)
	assert.Equal(t, 0.0, m.Confidence())
}
