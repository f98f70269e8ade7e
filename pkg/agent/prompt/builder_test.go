package prompt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexhq/cortex/pkg/memory"
	"github.com/cortexhq/cortex/pkg/models"
)

func promptMemory(t *testing.T) *memory.WorkingMemory {
	t.Helper()
	now := time.Now().UTC().Add(-time.Minute)
	event, err := models.NewEvent(models.PerceivedEvent{
		EventID:     "evt-prompt",
		Source:      models.SourceMail,
		SourceID:    "m-3",
		OccurredAt:  now,
		ReceivedAt:  now,
		PerceivedAt: now,
		Title:       "Invoice overdue",
		Content:     "Invoice 1042 is 10 days overdue.",
		Type:        models.EventTypeActionRequired,
		Urgency:     models.UrgencyHigh,
		FromPerson:  "billing@example.com",
		Keywords:    []string{"invoice", "overdue"},
		Entities: []models.Entity{
			{Type: "organization", Value: "Example Corp", Confidence: 0.8},
		},
	})
	require.NoError(t, err)
	return memory.New(event)
}

func TestBuildPassPromptIncludesEvent(t *testing.T) {
	b := NewBuilder()
	system, user := b.BuildPassPrompt(models.PassInitialAnalysis, promptMemory(t))

	assert.Contains(t, system, "CONCLUSION:")
	assert.Contains(t, system, "CONFIDENCE:")
	assert.Contains(t, user, "Invoice overdue")
	assert.Contains(t, user, "Invoice 1042 is 10 days overdue.")
	assert.Contains(t, user, "organization: Example Corp")
	assert.Contains(t, user, "invoice, overdue")
}

func TestBuildPassPromptMarksBestHypothesis(t *testing.T) {
	mem := promptMemory(t)
	weak, err := models.NewHypothesis("h-1", "spam", 0.3)
	require.NoError(t, err)
	strong, err := models.NewHypothesis("h-2", "real overdue invoice", 0.8)
	require.NoError(t, err)
	require.NoError(t, mem.AddHypothesis(weak, false))
	require.NoError(t, mem.AddHypothesis(strong, false))

	b := NewBuilder()
	_, user := b.BuildPassPrompt(models.PassValidation, mem)
	assert.Contains(t, user, "* h-2 (confidence 0.80)")
	assert.Contains(t, user, "  h-1 (confidence 0.30)")
}

func TestBuildPassPromptRanksAndCapsContext(t *testing.T) {
	mem := promptMemory(t)
	for i := 0; i < 12; i++ {
		mem.AttachContext(models.ContextItem{
			Source:         "notes",
			Type:           "note",
			Content:        "note body",
			RelevanceScore: float64(i) / 12,
			RetrievedAt:    time.Now().UTC(),
		})
	}
	mem.AttachContext(models.ContextItem{
		Source:         "calendar",
		Type:           "event",
		Content:        "payment review meeting",
		RelevanceScore: 0.99,
		RetrievedAt:    time.Now().UTC(),
	})

	b := NewBuilder()
	_, user := b.BuildPassPrompt(models.PassContextEnrichment, mem)
	assert.Contains(t, user, "payment review meeting")

	// Bounded: low-relevance items are cut.
	assert.NotContains(t, user, "relevance 0.00")
}

func TestBuildPassPromptUnknownTypeFallsBack(t *testing.T) {
	b := NewBuilder()
	system, _ := b.BuildPassPrompt(models.PassType("exotic"), promptMemory(t))
	assert.Contains(t, system, "reasoning deeply")
}

func TestBuildPassPromptOpenQuestions(t *testing.T) {
	mem := promptMemory(t)
	mem.AddOpenQuestion("was invoice 1042 already paid")
	mem.AddUncertainty("sender authenticity")

	b := NewBuilder()
	_, user := b.BuildPassPrompt(models.PassDeepReasoning, mem)
	assert.Contains(t, user, "was invoice 1042 already paid")
	assert.Contains(t, user, "(uncertainty) sender authenticity")
}
