package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexhq/cortex/pkg/memory"
	"github.com/cortexhq/cortex/pkg/models"
)

// routerStep scripts one router call.
type routerStep struct {
	text  string
	err   error
	block bool // ignore the script and wait for ctx cancellation
}

// scriptedRouter replays steps in order; the last step repeats once the
// script is exhausted.
type scriptedRouter struct {
	steps []routerStep
	calls []RouterRequest
}

func (r *scriptedRouter) Complete(ctx context.Context, req RouterRequest) (*RouterResponse, error) {
	r.calls = append(r.calls, req)
	idx := len(r.calls) - 1
	if idx >= len(r.steps) {
		idx = len(r.steps) - 1
	}
	step := r.steps[idx]
	if step.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if step.err != nil {
		return nil, step.err
	}
	return &RouterResponse{
		Text:     step.text,
		Provider: "anthropic",
		Tier:     "sonnet",
		Latency:  50 * time.Millisecond,
		CostUSD:  0.002,
	}, nil
}

type fakeSearcher struct {
	items   []models.ContextItem
	err     error
	queries []ContextQuery
}

func (s *fakeSearcher) Search(_ context.Context, q ContextQuery) ([]models.ContextItem, error) {
	s.queries = append(s.queries, q)
	if s.err != nil {
		return nil, s.err
	}
	return s.items, nil
}

func reasonerMemory(t *testing.T) *memory.WorkingMemory {
	t.Helper()
	now := time.Now().UTC().Add(-time.Minute)
	event, err := models.NewEvent(models.PerceivedEvent{
		EventID:     "evt-reason",
		Source:      models.SourceMail,
		SourceID:    "m-9",
		OccurredAt:  now,
		ReceivedAt:  now,
		PerceivedAt: now,
		Title:       "Contract renewal question",
		Type:        models.EventTypeDecisionNeeded,
		Urgency:     models.UrgencyMedium,
		FromPerson:  "vendor@example.com",
		Keywords:    []string{"contract", "renewal"},
		Entities: []models.Entity{
			{Type: "person", Value: "vendor@example.com", Confidence: 0.9},
		},
	})
	require.NoError(t, err)
	return memory.New(event)
}

func TestReasonConvergesOnFirstPass(t *testing.T) {
	router := &scriptedRouter{steps: []routerStep{
		{text: "CONCLUSION: needs a short reply\nCONFIDENCE: 0.9"},
	}}
	r := NewReasoner(router, nil, DefaultOptions(), nil)

	mem := reasonerMemory(t)
	result, err := r.Reason(context.Background(), mem)
	require.NoError(t, err)

	assert.True(t, result.Converged)
	assert.Equal(t, 1, result.Passes)
	require.NotNil(t, result.Best)
	assert.Equal(t, "needs a short reply", result.Best.Description)
	assert.InDelta(t, 0.9, mem.Confidence(), 1e-9)
	assert.Equal(t, models.StateReasoning, mem.State())

	require.Len(t, result.Observations, 1)
	assert.True(t, result.Observations[0].Success)
	assert.Equal(t, models.PassInitialAnalysis, result.Observations[0].PassType)
}

func TestReasonStopsAtExactlyMaxPasses(t *testing.T) {
	// Never converges: confidence stays below the threshold.
	router := &scriptedRouter{steps: []routerStep{
		{text: "CONCLUSION: unclear\nCONFIDENCE: 0.4"},
	}}
	r := NewReasoner(router, nil, DefaultOptions(), nil)

	mem := reasonerMemory(t)
	result, err := r.Reason(context.Background(), mem)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Passes)
	assert.Len(t, router.calls, 5)
	assert.False(t, result.Converged)
	assert.Equal(t, models.StateReasoning, mem.State())

	// The schedule ran in canonical order.
	passes := mem.Passes()
	require.Len(t, passes, 5)
	assert.Equal(t, models.PassInitialAnalysis, passes[0].PassType)
	assert.Equal(t, models.PassContextEnrichment, passes[1].PassType)
	assert.Equal(t, models.PassArbitration, passes[4].PassType)
}

func TestReasonWithBudgetCapsPasses(t *testing.T) {
	// Never converges: confidence stays below the threshold.
	router := &scriptedRouter{steps: []routerStep{
		{text: "CONCLUSION: unclear\nCONFIDENCE: 0.4"},
	}}
	searcher := &fakeSearcher{items: []models.ContextItem{
		{Source: "notes", Type: "note", Content: "old thread", RelevanceScore: 0.5, RetrievedAt: time.Now().UTC()},
	}}
	r := NewReasoner(router, searcher, DefaultOptions(), nil)

	mem := reasonerMemory(t)
	result, err := r.ReasonWithBudget(context.Background(), mem, Budget{MaxPasses: 2, SkipContext: true})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Passes)
	assert.Len(t, router.calls, 2)
	assert.False(t, result.Converged)

	// The enrichment pass still ran, but without retrieval.
	assert.Equal(t, models.PassContextEnrichment, mem.Passes()[1].PassType)
	assert.Empty(t, searcher.queries)
	assert.Empty(t, mem.ContextItems())
}

func TestReasonRecordsDraftReply(t *testing.T) {
	router := &scriptedRouter{steps: []routerStep{
		{text: "CONCLUSION: reply to confirm the meeting\nCONFIDENCE: 0.9\nDRAFT: Confirmed, see you Thursday."},
	}}
	r := NewReasoner(router, nil, DefaultOptions(), nil)

	mem := reasonerMemory(t)
	_, err := r.Reason(context.Background(), mem)
	require.NoError(t, err)
	assert.Equal(t, "Confirmed, see you Thursday.", mem.DraftReply())
}

func TestReasonOpenQuestionsForceContinuation(t *testing.T) {
	router := &scriptedRouter{steps: []routerStep{
		{text: "CONCLUSION: probably renewal approval\nCONFIDENCE: 0.9\nQUESTION: did we already approve this"},
		{text: "CONCLUSION: renewal approval\nCONFIDENCE: 0.92\nRESOLVED: did we already approve this"},
	}}
	searcher := &fakeSearcher{items: []models.ContextItem{
		{Source: "notes", Type: "note", Content: "approved last march", RelevanceScore: 0.8, RetrievedAt: time.Now().UTC()},
	}}
	r := NewReasoner(router, searcher, DefaultOptions(), nil)

	mem := reasonerMemory(t)
	result, err := r.Reason(context.Background(), mem)
	require.NoError(t, err)

	// High confidence alone is not enough while a question is open.
	assert.Equal(t, 2, result.Passes)
	assert.True(t, result.Converged)
	assert.Empty(t, mem.OpenQuestions())

	// The enrichment pass searched and attached context.
	require.Len(t, searcher.queries, 1)
	assert.Len(t, mem.ContextItems(), 1)
	enrichment := mem.Passes()[1]
	require.Len(t, enrichment.ContextQueries, 1)
	assert.Contains(t, enrichment.ContextQueries[0], "person:vendor@example.com")
	assert.Equal(t, 1, enrichment.Metadata["context_items"])
}

func TestReasonRouterErrorFailSafe(t *testing.T) {
	router := &scriptedRouter{steps: []routerStep{
		{text: "CONCLUSION: looks like a renewal\nCONFIDENCE: 0.6"},
		{err: errors.New("router unavailable")},
	}}
	r := NewReasoner(router, nil, DefaultOptions(), nil)

	mem := reasonerMemory(t)
	result, err := r.Reason(context.Background(), mem)
	require.ErrorIs(t, err, ErrReasoning)

	// The failed pass is completed and the memory lands in complete with
	// the best hypothesis preserved.
	assert.Equal(t, models.StateComplete, mem.State())
	assert.Nil(t, mem.ActivePass())
	assert.Equal(t, 2, result.Passes)
	require.NotNil(t, result.Best)
	assert.Equal(t, "looks like a renewal", result.Best.Description)

	require.Len(t, result.Observations, 2)
	assert.True(t, result.Observations[0].Success)
	assert.False(t, result.Observations[1].Success)
}

func TestReasonPassTimeout(t *testing.T) {
	router := &scriptedRouter{steps: []routerStep{{block: true}}}
	opts := DefaultOptions()
	opts.PassTimeout = 20 * time.Millisecond
	r := NewReasoner(router, nil, opts, nil)

	mem := reasonerMemory(t)
	_, err := r.Reason(context.Background(), mem)
	require.ErrorIs(t, err, ErrReasoning)

	assert.Equal(t, models.StateComplete, mem.State())
	passes := mem.Passes()
	require.Len(t, passes, 1)
	assert.Equal(t, true, passes[0].Metadata["timeout"])
}

func TestReasonSearcherErrorFailSafe(t *testing.T) {
	router := &scriptedRouter{steps: []routerStep{
		{text: "CONCLUSION: unclear\nCONFIDENCE: 0.3"},
	}}
	searcher := &fakeSearcher{err: errors.New("index offline")}
	r := NewReasoner(router, searcher, DefaultOptions(), nil)

	mem := reasonerMemory(t)
	_, err := r.Reason(context.Background(), mem)
	require.ErrorIs(t, err, ErrReasoning)
	assert.Equal(t, models.StateComplete, mem.State())
}

func TestReasonRejectsTerminalMemory(t *testing.T) {
	r := NewReasoner(&scriptedRouter{steps: []routerStep{{text: "x"}}}, nil, DefaultOptions(), nil)

	mem := reasonerMemory(t)
	require.NoError(t, mem.Transition(models.StateComplete))

	_, err := r.Reason(context.Background(), mem)
	assert.ErrorIs(t, err, ErrReasoning)
}
