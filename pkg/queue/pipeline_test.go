package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexhq/cortex/pkg/actions"
	"github.com/cortexhq/cortex/pkg/agent"
	"github.com/cortexhq/cortex/pkg/events"
	"github.com/cortexhq/cortex/pkg/integrations"
	"github.com/cortexhq/cortex/pkg/learning"
	"github.com/cortexhq/cortex/pkg/models"
	"github.com/cortexhq/cortex/pkg/orchestrator"
	"github.com/cortexhq/cortex/pkg/perception"
	"github.com/cortexhq/cortex/pkg/planner"
	"github.com/cortexhq/cortex/pkg/store"
)

// scriptedRouter replays responses in order; the last repeats when exhausted.
type scriptedRouter struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
}

func (r *scriptedRouter) Complete(_ context.Context, _ agent.RouterRequest) (*agent.RouterResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	idx := r.calls - 1
	if idx >= len(r.responses) {
		idx = len(r.responses) - 1
	}
	return &agent.RouterResponse{
		Text:     r.responses[idx],
		Provider: "anthropic",
		Tier:     "sonnet",
		Latency:  40 * time.Millisecond,
		CostUSD:  0.001,
	}, nil
}

func (r *scriptedRouter) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// frameRecorder captures broadcasts per channel.
type frameRecorder struct {
	mu     sync.Mutex
	frames map[string][]map[string]any
}

func newFrameRecorder() *frameRecorder {
	return &frameRecorder{frames: make(map[string][]map[string]any)}
}

func (f *frameRecorder) BroadcastToChannel(channel, _ string, message map[string]any, _ ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames[channel] = append(f.frames[channel], message)
}

func (f *frameRecorder) onChannel(channel string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any{}, f.frames[channel]...)
}

type pipelineFixture struct {
	pipeline *Pipeline
	router   *scriptedRouter
	mail     *integrations.FakeMailClient
	queue    *store.QueueStore
	drafts   *store.DraftStore
	frames   *frameRecorder
}

func newPipelineFixture(t *testing.T, router *scriptedRouter, learner *learning.Engine) *pipelineFixture {
	t.Helper()

	mail := integrations.NewFakeMailClient()
	mail.Messages["m-1"] = &integrations.MailMessage{UID: "m-1", Folder: "INBOX"}

	qstore, err := store.NewQueueStore(t.TempDir())
	require.NoError(t, err)
	dstore, err := store.NewDraftStore(t.TempDir())
	require.NoError(t, err)

	frames := newFrameRecorder()
	pipeline, err := NewPipeline(Pipeline{
		Filter:   perception.NewPreFilter(perception.PreFilterConfig{}),
		Reasoner: agent.NewReasoner(router, nil, agent.DefaultOptions(), slog.Default()),
		Factory: &actions.Factory{
			Mail:     mail,
			Tasks:    integrations.NewFakeTaskManager(),
			Calendar: integrations.NewFakeCalendarClient(),
			Drafts:   dstore,
			Folders:  actions.Folders{Archive: "Archive", Trash: "Trash", Reference: "Reference"},
		},
		PlanOpts:     planner.DefaultOptions(),
		Orchestrator: orchestrator.New(orchestrator.DefaultOptions(), slog.Default()),
		Queue:        qstore,
		Learner:      learner,
		Broadcast:    frames,
	}, slog.Default())
	require.NoError(t, err)

	return &pipelineFixture{pipeline: pipeline, router: router, mail: mail, queue: qstore, drafts: dstore, frames: frames}
}

func mailEvent(t *testing.T, title string) models.PerceivedEvent {
	t.Helper()
	now := time.Now().UTC().Add(-time.Minute)
	event, err := models.NewEvent(models.PerceivedEvent{
		EventID:     "evt-1",
		Source:      models.SourceMail,
		SourceID:    "m-1",
		OccurredAt:  now,
		ReceivedAt:  now,
		PerceivedAt: now,
		Title:       title,
		Type:        models.EventTypeInformation,
		Urgency:     models.UrgencyLow,
		FromPerson:  "sender@example.com",
		Metadata:    map[string]any{"account_id": "acct-1"},
	})
	require.NoError(t, err)
	return event
}

func calendarEvent(t *testing.T) models.PerceivedEvent {
	t.Helper()
	now := time.Now().UTC().Add(-time.Minute)
	event, err := models.NewEvent(models.PerceivedEvent{
		EventID:     "evt-cal-1",
		Source:      models.SourceCalendar,
		SourceID:    "ev-1",
		OccurredAt:  now,
		ReceivedAt:  now,
		PerceivedAt: now,
		Title:       "Quarterly planning session",
		Type:        models.EventTypeDecisionNeeded,
		Urgency:     models.UrgencyMedium,
		FromPerson:  "organizer@example.com",
		Metadata:    map[string]any{"account_id": "acct-1"},
	})
	require.NoError(t, err)
	return event
}

func TestPipelineSkipsBulkMail(t *testing.T) {
	router := &scriptedRouter{responses: []string{"CONCLUSION: archive\nCONFIDENCE: 0.9"}}
	fix := newPipelineFixture(t, router, nil)

	outcome, err := fix.pipeline.Process(context.Background(), mailEvent(t, "Weekly digest newsletter - unsubscribe here"))
	require.NoError(t, err)

	assert.Equal(t, perception.DecisionSkip, outcome.Decision)
	assert.Zero(t, router.callCount())
	assert.False(t, outcome.Queued)
	assert.False(t, outcome.Executed)

	pending, err := fix.queue.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPipelineAutoExecutesArchive(t *testing.T) {
	router := &scriptedRouter{responses: []string{"CONCLUSION: archive this notification\nCONFIDENCE: 0.96"}}
	fix := newPipelineFixture(t, router, nil)

	outcome, err := fix.pipeline.Process(context.Background(), mailEvent(t, "Build finished"))
	require.NoError(t, err)

	assert.Equal(t, actions.DispositionArchive, outcome.Disposition)
	assert.Equal(t, models.ModeAuto, outcome.Mode)
	assert.True(t, outcome.Executed)
	assert.False(t, outcome.Queued)
	assert.Equal(t, []string{"m-1->Archive"}, fix.mail.Moves)

	pending, err := fix.queue.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Processing transitions were announced on the events channel.
	stages := []string{}
	for _, frame := range fix.frames.onChannel(events.ChannelEvents) {
		stages = append(stages, frame["stage"].(string))
	}
	assert.Contains(t, stages, "reasoning")
	assert.Contains(t, stages, "executing")
}

func TestPipelineQueuesReviewPlan(t *testing.T) {
	// Converged but below the auto-approve threshold.
	router := &scriptedRouter{responses: []string{"CONCLUSION: archive this notification\nCONFIDENCE: 0.85"}}
	fix := newPipelineFixture(t, router, nil)

	outcome, err := fix.pipeline.Process(context.Background(), mailEvent(t, "Build finished"))
	require.NoError(t, err)

	assert.Equal(t, models.ModeReview, outcome.Mode)
	assert.True(t, outcome.Queued)
	assert.False(t, outcome.Executed)
	assert.Empty(t, fix.mail.Moves)

	item, err := fix.queue.GetItem(context.Background(), outcome.QueueItemID)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", item.EventID)
	assert.Equal(t, models.QueuePending, item.Status)
	assert.Equal(t, models.ModeReview, item.PlanMode)
	assert.Equal(t, []string{"archive_email"}, item.ActionTypes)
	assert.InDelta(t, 0.85, item.Confidence, 1e-9)

	queueFrames := fix.frames.onChannel(events.ChannelQueue)
	require.Len(t, queueFrames, 1)
	assert.Equal(t, events.FrameItemAdded, queueFrames[0]["type"])
	assert.Equal(t, item.ItemID, queueFrames[0]["item_id"])
}

func TestPipelineReviewDispositionQueuesWithoutActions(t *testing.T) {
	router := &scriptedRouter{responses: []string{"CONCLUSION: needs human judgment\nCONFIDENCE: 0.9"}}
	fix := newPipelineFixture(t, router, nil)

	outcome, err := fix.pipeline.Process(context.Background(), mailEvent(t, "Contract question"))
	require.NoError(t, err)

	assert.Equal(t, actions.DispositionReview, outcome.Disposition)
	assert.Equal(t, models.ModeManual, outcome.Mode)
	assert.True(t, outcome.Queued)

	item, err := fix.queue.GetItem(context.Background(), outcome.QueueItemID)
	require.NoError(t, err)
	assert.Empty(t, item.ActionTypes)
	assert.Equal(t, "needs human judgment", item.Summary)
}

func TestPipelineReasoningFailureSurfacesOnQueue(t *testing.T) {
	router := &scriptedRouter{err: errors.New("router unavailable")}
	fix := newPipelineFixture(t, router, nil)

	outcome, err := fix.pipeline.Process(context.Background(), mailEvent(t, "Contract question"))
	require.ErrorIs(t, err, agent.ErrReasoning)

	assert.True(t, outcome.Queued)
	item, qerr := fix.queue.GetItem(context.Background(), outcome.QueueItemID)
	require.NoError(t, qerr)
	assert.Equal(t, "reasoning", item.FailureKind)
	assert.NotEmpty(t, item.FailureMessage)
}

func TestPipelineCalendarDecisionQueuesResponse(t *testing.T) {
	// Even a confident accept stays on the review queue: answering an
	// invitation is visible to the organizer.
	router := &scriptedRouter{responses: []string{"CONCLUSION: accept the invitation\nCONFIDENCE: 0.97"}}
	fix := newPipelineFixture(t, router, nil)

	outcome, err := fix.pipeline.Process(context.Background(), calendarEvent(t))
	require.NoError(t, err)

	assert.Equal(t, actions.DispositionRespond, outcome.Disposition)
	assert.Equal(t, models.ModeReview, outcome.Mode)
	assert.True(t, outcome.Queued)
	assert.False(t, outcome.Executed)

	item, err := fix.queue.GetItem(context.Background(), outcome.QueueItemID)
	require.NoError(t, err)
	assert.Equal(t, []string{"respond_event"}, item.ActionTypes)
	assert.Equal(t, models.ModeReview, item.PlanMode)
}

func TestPipelineReplyWithDraftAutoExecutes(t *testing.T) {
	router := &scriptedRouter{responses: []string{
		"CONCLUSION: reply to confirm the meeting\nCONFIDENCE: 0.97\nDRAFT: Confirmed, see you Thursday.",
	}}
	fix := newPipelineFixture(t, router, nil)

	outcome, err := fix.pipeline.Process(context.Background(), mailEvent(t, "Thursday sync"))
	require.NoError(t, err)

	assert.Equal(t, actions.DispositionReply, outcome.Disposition)
	assert.Equal(t, models.ModeAuto, outcome.Mode)
	assert.True(t, outcome.Executed)
	assert.False(t, outcome.Queued)

	drafts, err := fix.drafts.ListDrafts(context.Background())
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "Confirmed, see you Thursday.", drafts[0].Body)
	assert.Equal(t, []string{"sender@example.com"}, drafts[0].To)
}

func TestPipelineReplyWithoutDraftGoesToReview(t *testing.T) {
	// A reply conclusion with no drafted body cannot be executed; the user
	// writes the reply.
	router := &scriptedRouter{responses: []string{"CONCLUSION: reply to the sender\nCONFIDENCE: 0.97"}}
	fix := newPipelineFixture(t, router, nil)

	outcome, err := fix.pipeline.Process(context.Background(), mailEvent(t, "Thursday sync"))
	require.NoError(t, err)

	assert.Equal(t, actions.DispositionReview, outcome.Disposition)
	assert.Equal(t, models.ModeManual, outcome.Mode)
	assert.True(t, outcome.Queued)
	assert.False(t, outcome.Executed)

	drafts, err := fix.drafts.ListDrafts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestPipelineLightTriageCapsPasses(t *testing.T) {
	// Never converges; a full run would burn all five passes.
	router := &scriptedRouter{responses: []string{"CONCLUSION: unclear\nCONFIDENCE: 0.4"}}
	fix := newPipelineFixture(t, router, nil)

	outcome, err := fix.pipeline.Process(context.Background(), mailEvent(t, "Receipt for your payment"))
	require.NoError(t, err)

	assert.Equal(t, perception.DecisionProcessLight, outcome.Decision)
	assert.Equal(t, lightMaxPasses, outcome.Passes)
	assert.Equal(t, lightMaxPasses, router.callCount())
}

func TestPipelineRetainsMemoryForRecall(t *testing.T) {
	router := &scriptedRouter{responses: []string{"CONCLUSION: archive this notification\nCONFIDENCE: 0.96"}}
	fix := newPipelineFixture(t, router, nil)

	_, err := fix.pipeline.Process(context.Background(), mailEvent(t, "Build finished"))
	require.NoError(t, err)

	mem, ok := fix.pipeline.Recall("evt-1")
	require.True(t, ok)
	assert.Equal(t, "evt-1", mem.Event.EventID)

	_, ok = fix.pipeline.Recall("evt-unknown")
	assert.False(t, ok)
}

func TestPipelineLearnsAfterExecution(t *testing.T) {
	fp, err := learning.NewFeedbackProcessor(learning.DefaultFeedbackConfig())
	require.NoError(t, err)
	ku := learning.NewKnowledgeUpdater(integrations.NewFakeNoteManager(), learning.DefaultKnowledgeConfig(), slog.Default())
	ps, err := learning.NewPatternStore(learning.DefaultPatternStoreConfig(""))
	require.NoError(t, err)
	pt, err := learning.NewProviderTracker(learning.DefaultProviderTrackerConfig(""))
	require.NoError(t, err)
	cc, err := learning.NewConfidenceCalibrator(learning.DefaultCalibratorConfig(""))
	require.NoError(t, err)
	engine := learning.NewEngine(fp, ku, ps, pt, cc, slog.Default())

	router := &scriptedRouter{responses: []string{"CONCLUSION: archive this notification\nCONFIDENCE: 0.96"}}
	fix := newPipelineFixture(t, router, engine)

	outcome, err := fix.pipeline.Process(context.Background(), mailEvent(t, "Build finished"))
	require.NoError(t, err)
	require.True(t, outcome.Executed)

	// The observed router call was recorded for provider tracking.
	score, ok := pt.Score("anthropic", "sonnet")
	require.True(t, ok)
	assert.Equal(t, 1, score.TotalCalls)

	// A clean auto-execution is a perfect confirmation: no knowledge churn.
	require.NotNil(t, outcome.Learning)
	assert.Zero(t, outcome.Learning.PatternsScored)
}
