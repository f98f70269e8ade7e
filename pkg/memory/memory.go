// Package memory implements the per-event working memory: a short-lived
// blackboard holding the driving event, hypotheses, completed reasoning
// passes, retrieved context, and open questions. A working memory is owned by
// exactly one processing worker at a time and is not safe for concurrent use.
package memory

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cortexhq/cortex/pkg/models"
)

// Sentinel errors for working-memory state machine misuse.
var (
	// ErrPassInProgress indicates a pass was started while another is active.
	ErrPassInProgress = errors.New("reasoning pass already in progress")

	// ErrNoPassInProgress indicates a completion without an active pass.
	ErrNoPassInProgress = errors.New("no reasoning pass in progress")

	// ErrTerminalState indicates an operation on a complete or archived memory.
	ErrTerminalState = errors.New("working memory is in a terminal state")

	// ErrDuplicateHypothesis indicates an id collision without replace.
	ErrDuplicateHypothesis = errors.New("hypothesis id already present")

	// ErrInvalidState indicates an illegal state transition.
	ErrInvalidState = errors.New("invalid state transition")
)

// stateOrder defines the forward progression of the lifecycle. Complete is
// reachable from any non-terminal state (fail-safe path); archived only from
// complete.
var stateOrder = map[models.MemoryState]int{
	models.StateInitialized: 0,
	models.StatePerceiving:  1,
	models.StateReasoning:   2,
	models.StatePlanning:    3,
	models.StateExecuting:   4,
	models.StateComplete:    5,
	models.StateArchived:    6,
}

// WorkingMemory is the mutable blackboard for one event's processing cycle.
type WorkingMemory struct {
	Event models.PerceivedEvent

	state models.MemoryState

	hypotheses map[string]*models.Hypothesis
	bestID     string

	passes     []*models.ReasoningPass
	activePass *models.ReasoningPass

	contextItems []models.ContextItem

	openQuestions []string
	uncertainties []string

	// Conversation continuity, defensively copied on set.
	conversationID string
	priorEvents    []models.PerceivedEvent

	// Reply body proposed during reasoning, if any.
	draftReply string

	overallConfidence float64

	CreatedAt time.Time
}

// New creates a working memory for the given event in the initialized state.
func New(event models.PerceivedEvent) *WorkingMemory {
	return &WorkingMemory{
		Event:      event,
		state:      models.StateInitialized,
		hypotheses: make(map[string]*models.Hypothesis),
		CreatedAt:  time.Now().UTC(),
	}
}

// State returns the current lifecycle state.
func (m *WorkingMemory) State() models.MemoryState {
	return m.state
}

// Transition moves the memory to the given state. Forward transitions only;
// complete is reachable from any non-terminal state, archived from complete.
func (m *WorkingMemory) Transition(to models.MemoryState) error {
	if !to.IsValid() {
		return fmt.Errorf("%w: unknown state %q", ErrInvalidState, to)
	}
	if m.state == models.StateArchived {
		return fmt.Errorf("%w: %q -> %q", ErrInvalidState, m.state, to)
	}
	if to == models.StateComplete {
		m.state = to
		return nil
	}
	if to == models.StateArchived {
		if m.state != models.StateComplete {
			return fmt.Errorf("%w: %q -> %q", ErrInvalidState, m.state, to)
		}
		m.state = to
		return nil
	}
	if m.state == models.StateComplete {
		return fmt.Errorf("%w: %q -> %q", ErrInvalidState, m.state, to)
	}
	if stateOrder[to] < stateOrder[m.state] {
		return fmt.Errorf("%w: %q -> %q", ErrInvalidState, m.state, to)
	}
	m.state = to
	return nil
}

// AddHypothesis inserts a hypothesis. A duplicate id is an error unless
// replace is set. The best pointer is recomputed on every insertion.
func (m *WorkingMemory) AddHypothesis(h *models.Hypothesis, replace bool) error {
	if h == nil {
		return fmt.Errorf("%w: nil hypothesis", models.ErrInvalidHypothesis)
	}
	if _, exists := m.hypotheses[h.ID]; exists && !replace {
		return fmt.Errorf("%w: %q", ErrDuplicateHypothesis, h.ID)
	}
	m.hypotheses[h.ID] = h
	m.recomputeBest()
	return nil
}

// Hypothesis returns the hypothesis with the given id, if present.
func (m *WorkingMemory) Hypothesis(id string) (*models.Hypothesis, bool) {
	h, ok := m.hypotheses[id]
	return h, ok
}

// Best returns the highest-confidence hypothesis, or nil when none exist.
func (m *WorkingMemory) Best() *models.Hypothesis {
	if m.bestID == "" {
		return nil
	}
	return m.hypotheses[m.bestID]
}

// HypothesisCount returns the number of stored hypotheses.
func (m *WorkingMemory) HypothesisCount() int {
	return len(m.hypotheses)
}

// Hypotheses returns all hypotheses sorted by descending confidence.
func (m *WorkingMemory) Hypotheses() []*models.Hypothesis {
	out := make([]*models.Hypothesis, 0, len(m.hypotheses))
	for _, h := range m.hypotheses {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *WorkingMemory) recomputeBest() {
	best := ""
	bestConf := -1.0
	for id, h := range m.hypotheses {
		if h.Confidence > bestConf || (h.Confidence == bestConf && id < best) {
			best = id
			bestConf = h.Confidence
		}
	}
	m.bestID = best
}

// StartPass begins a new reasoning pass. Preconditions: the memory is not in
// a terminal state and no pass is in progress. Transitions to reasoning.
func (m *WorkingMemory) StartPass(passType models.PassType) (*models.ReasoningPass, error) {
	if m.state.Terminal() {
		return nil, fmt.Errorf("%w: state %q", ErrTerminalState, m.state)
	}
	if m.activePass != nil {
		return nil, fmt.Errorf("%w: pass %d (%s)", ErrPassInProgress, m.activePass.PassNumber, m.activePass.PassType)
	}
	if err := m.Transition(models.StateReasoning); err != nil {
		return nil, err
	}
	pass := models.NewReasoningPass(len(m.passes)+1, passType, m.overallConfidence, len(m.hypotheses))
	m.activePass = pass
	return pass, nil
}

// CompletePass finishes the active pass, recording outputs and appending it
// to the ordered history. State remains reasoning.
func (m *WorkingMemory) CompletePass() (*models.ReasoningPass, error) {
	if m.activePass == nil {
		return nil, ErrNoPassInProgress
	}
	if m.state != models.StateReasoning {
		return nil, fmt.Errorf("%w: state %q", ErrInvalidState, m.state)
	}
	pass := m.activePass
	pass.Complete(m.overallConfidence, len(m.hypotheses))
	m.passes = append(m.passes, pass)
	m.activePass = nil
	return pass, nil
}

// ActivePass returns the pass currently in progress, if any.
func (m *WorkingMemory) ActivePass() *models.ReasoningPass {
	return m.activePass
}

// Passes returns the ordered list of completed passes.
func (m *WorkingMemory) Passes() []*models.ReasoningPass {
	return m.passes
}

// PassCount returns the number of completed passes.
func (m *WorkingMemory) PassCount() int {
	return len(m.passes)
}

// AttachContext appends retrieved context items.
func (m *WorkingMemory) AttachContext(items ...models.ContextItem) {
	m.contextItems = append(m.contextItems, items...)
}

// ContextItems returns all attached context items in attachment order.
func (m *WorkingMemory) ContextItems() []models.ContextItem {
	return m.contextItems
}

// RankedContext returns context items sorted by descending relevance.
func (m *WorkingMemory) RankedContext() []models.ContextItem {
	out := make([]models.ContextItem, len(m.contextItems))
	copy(out, m.contextItems)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelevanceScore > out[j].RelevanceScore
	})
	return out
}

// AddOpenQuestion appends a question, deduplicated.
func (m *WorkingMemory) AddOpenQuestion(q string) {
	m.openQuestions = appendUnique(m.openQuestions, q)
}

// ResolveOpenQuestion removes a question if present.
func (m *WorkingMemory) ResolveOpenQuestion(q string) {
	m.openQuestions = removeString(m.openQuestions, q)
}

// OpenQuestions returns the current open questions.
func (m *WorkingMemory) OpenQuestions() []string {
	return m.openQuestions
}

// AddUncertainty appends an uncertainty, deduplicated.
func (m *WorkingMemory) AddUncertainty(u string) {
	m.uncertainties = appendUnique(m.uncertainties, u)
}

// ResolveUncertainty removes an uncertainty if present.
func (m *WorkingMemory) ResolveUncertainty(u string) {
	m.uncertainties = removeString(m.uncertainties, u)
}

// Uncertainties returns the current uncertainties.
func (m *WorkingMemory) Uncertainties() []string {
	return m.uncertainties
}

// SetConversation records conversation continuity. Prior events are
// defensively copied.
func (m *WorkingMemory) SetConversation(id string, priorEvents []models.PerceivedEvent) {
	m.conversationID = id
	m.priorEvents = make([]models.PerceivedEvent, len(priorEvents))
	copy(m.priorEvents, priorEvents)
}

// Conversation returns the conversation id and a copy of prior events.
func (m *WorkingMemory) Conversation() (string, []models.PerceivedEvent) {
	out := make([]models.PerceivedEvent, len(m.priorEvents))
	copy(out, m.priorEvents)
	return m.conversationID, out
}

// SetDraftReply records the reply body proposed during reasoning. Later
// drafts replace earlier ones.
func (m *WorkingMemory) SetDraftReply(body string) {
	m.draftReply = body
}

// DraftReply returns the proposed reply body, empty when reasoning offered
// none.
func (m *WorkingMemory) DraftReply() string {
	return m.draftReply
}

// SetConfidence updates the overall confidence, clamped into [0,1].
func (m *WorkingMemory) SetConfidence(c float64) {
	m.overallConfidence = models.Clamp01(c)
}

// Confidence returns the overall confidence.
func (m *WorkingMemory) Confidence() float64 {
	return m.overallConfidence
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, existing := range list {
		if existing != s {
			out = append(out, existing)
		}
	}
	return out
}
