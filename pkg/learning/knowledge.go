package learning

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cortexhq/cortex/pkg/integrations"
	"github.com/cortexhq/cortex/pkg/memory"
	"github.com/cortexhq/cortex/pkg/models"
)

// KnowledgeConfig controls update generation and application.
type KnowledgeConfig struct {
	// MinConfidence gates application: updates below it are skipped unless
	// AutoApply is set.
	MinConfidence float64 `yaml:"min_confidence"`

	// AutoApply applies updates regardless of confidence.
	AutoApply bool `yaml:"auto_apply"`

	// MaxUpdatesPerCycle truncates one Apply batch.
	MaxUpdatesPerCycle int `yaml:"max_updates_per_cycle"`
}

// DefaultKnowledgeConfig gates at 0.6 confidence, 50 updates per cycle.
func DefaultKnowledgeConfig() KnowledgeConfig {
	return KnowledgeConfig{MinConfidence: 0.6, MaxUpdatesPerCycle: 50}
}

// UpdateFailure records one update that could not be applied.
type UpdateFailure struct {
	UpdateID string `json:"update_id"`
	Cause    string `json:"cause"`
}

// maxAppliedIDs bounds the dedup set of already-applied update ids.
const maxAppliedIDs = 4096

// KnowledgeUpdater turns one processed event into deterministic knowledge
// updates and applies them to the external note manager.
type KnowledgeUpdater struct {
	notes  integrations.NoteManager
	cfg    KnowledgeConfig
	logger *slog.Logger

	mu           sync.Mutex
	appliedIDs   map[string]bool
	appliedOrder []string
}

// NewKnowledgeUpdater creates an updater bound to a note manager.
func NewKnowledgeUpdater(notes integrations.NoteManager, cfg KnowledgeConfig, logger *slog.Logger) *KnowledgeUpdater {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxUpdatesPerCycle <= 0 {
		cfg.MaxUpdatesPerCycle = DefaultKnowledgeConfig().MaxUpdatesPerCycle
	}
	return &KnowledgeUpdater{
		notes:      notes,
		cfg:        cfg,
		logger:     logger.With("component", "knowledge_updater"),
		appliedIDs: make(map[string]bool),
	}
}

// Generate derives the update set for one execution: entity adds, a note for
// significant decisions, pairwise co-occurrence relationships, and tags.
// Generation is deterministic apart from the fresh update ids.
func (u *KnowledgeUpdater) Generate(mem *memory.WorkingMemory, analysis *FeedbackAnalysis, executed []ExecutedAction) []models.KnowledgeUpdate {
	event := &mem.Event
	confidence := mem.Confidence()
	if confidence == 0 {
		confidence = 0.5
	}

	var updates []models.KnowledgeUpdate
	add := func(update models.KnowledgeUpdate, err error) {
		if err != nil {
			u.logger.Warn("skipping malformed update", "error", err)
			return
		}
		updates = append(updates, update)
	}

	for _, ent := range event.Entities {
		add(models.NewKnowledgeUpdate(models.UpdateEntityAdded,
			"entity:"+ent.Key(),
			map[string]any{"type": ent.Type, "value": ent.Value, "confidence": ent.Confidence},
			confidence, event.EventID))
	}

	if significant(mem, analysis, executed) {
		add(models.NewKnowledgeUpdate(models.UpdateNoteCreated,
			"note:event:"+event.EventID,
			map[string]any{
				"title":   "Decision: " + event.Title,
				"content": decisionNote(mem, analysis, executed),
			},
			confidence, event.EventID))
	}

	for _, pair := range entityPairs(event.Entities) {
		add(models.NewKnowledgeUpdate(models.UpdateRelationshipCreated,
			"rel:"+pair[0]+"+"+pair[1],
			map[string]any{"from": pair[0], "to": pair[1], "kind": "co_occurrence"},
			confidence, event.EventID))
	}

	add(models.NewKnowledgeUpdate(models.UpdateTagAdded,
		"event:"+event.EventID,
		map[string]any{"tags": eventTags(mem)},
		confidence, event.EventID))

	return updates
}

// significant decides whether the execution deserves its own note: deep
// reasoning, negative feedback, or a multi-action plan.
func significant(mem *memory.WorkingMemory, analysis *FeedbackAnalysis, executed []ExecutedAction) bool {
	if mem.PassCount() > 1 {
		return true
	}
	if analysis != nil && analysis.CorrectnessScore < 0.5 {
		return true
	}
	return len(executed) > 1
}

func decisionNote(mem *memory.WorkingMemory, analysis *FeedbackAnalysis, executed []ExecutedAction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Event: %s\n", mem.Event.Title)
	if best := mem.Best(); best != nil {
		fmt.Fprintf(&b, "Conclusion: %s (confidence %.2f)\n", best.Description, best.Confidence)
	}
	fmt.Fprintf(&b, "Passes: %d\n", mem.PassCount())
	for _, a := range executed {
		fmt.Fprintf(&b, "Action: %s success=%t\n", a.Type, a.Success)
	}
	if analysis != nil {
		fmt.Fprintf(&b, "Correctness: %.2f\n", analysis.CorrectnessScore)
		for _, s := range analysis.SuggestedImprovements {
			fmt.Fprintf(&b, "Improvement: %s\n", s)
		}
	}
	return b.String()
}

// entityPairs returns every unordered pair of distinct entity keys, sorted
// within and across pairs for determinism.
func entityPairs(entities []models.Entity) [][2]string {
	keys := make([]string, 0, len(entities))
	seen := map[string]bool{}
	for _, ent := range entities {
		k := ent.Key()
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var pairs [][2]string
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			pairs = append(pairs, [2]string{keys[i], keys[j]})
		}
	}
	return pairs
}

func eventTags(mem *memory.WorkingMemory) []string {
	tags := []string{
		"type/" + string(mem.Event.Type),
		"urgency/" + string(mem.Event.Urgency),
		"passes/" + passBucket(mem.PassCount()),
		"confidence/" + confidenceBucket(mem.Confidence()),
	}
	return tags
}

func passBucket(n int) string {
	switch {
	case n <= 1:
		return "single"
	case n <= 3:
		return "few"
	default:
		return "many"
	}
}

func confidenceBucket(c float64) string {
	switch {
	case c >= 0.9:
		return "high"
	case c >= 0.6:
		return "medium"
	default:
		return "low"
	}
}

// Apply pushes updates to the note manager: confidence gate, per-cycle cap,
// dedup on update id, type-specific validation. Failures are recorded, never
// fatal.
func (u *KnowledgeUpdater) Apply(ctx context.Context, updates []models.KnowledgeUpdate) (int, []UpdateFailure) {
	if len(updates) > u.cfg.MaxUpdatesPerCycle {
		u.logger.Warn("truncating update batch",
			"batch", len(updates), "cap", u.cfg.MaxUpdatesPerCycle)
		updates = updates[:u.cfg.MaxUpdatesPerCycle]
	}

	applied := 0
	var failures []UpdateFailure
	for _, update := range updates {
		if !u.cfg.AutoApply && update.Confidence < u.cfg.MinConfidence {
			continue
		}
		if u.alreadyApplied(update.UpdateID) {
			continue
		}
		if err := validateUpdate(update); err != nil {
			failures = append(failures, UpdateFailure{UpdateID: update.UpdateID, Cause: err.Error()})
			continue
		}
		if err := u.applyOne(ctx, update); err != nil {
			failures = append(failures, UpdateFailure{UpdateID: update.UpdateID, Cause: err.Error()})
			continue
		}
		u.markApplied(update.UpdateID)
		applied++
	}
	return applied, failures
}

func (u *KnowledgeUpdater) alreadyApplied(id string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.appliedIDs[id]
}

// markApplied records the id, evicting the oldest when the set is full.
func (u *KnowledgeUpdater) markApplied(id string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.appliedOrder) >= maxAppliedIDs {
		oldest := u.appliedOrder[0]
		u.appliedOrder = u.appliedOrder[1:]
		delete(u.appliedIDs, oldest)
	}
	u.appliedIDs[id] = true
	u.appliedOrder = append(u.appliedOrder, id)
}

// validateUpdate checks the type-specific required fields.
func validateUpdate(update models.KnowledgeUpdate) error {
	switch update.Type {
	case models.UpdateEntityAdded:
		if _, ok := update.Changes["value"]; !ok {
			return fmt.Errorf("entity_added update %s missing value", update.UpdateID)
		}
	case models.UpdateNoteCreated:
		if _, ok := update.Changes["title"]; !ok {
			return fmt.Errorf("note_created update %s missing title", update.UpdateID)
		}
		if _, ok := update.Changes["content"]; !ok {
			return fmt.Errorf("note_created update %s missing content", update.UpdateID)
		}
	case models.UpdateRelationshipCreated:
		if _, ok := update.Changes["from"]; !ok {
			return fmt.Errorf("relationship update %s missing from", update.UpdateID)
		}
		if _, ok := update.Changes["to"]; !ok {
			return fmt.Errorf("relationship update %s missing to", update.UpdateID)
		}
	case models.UpdateTagAdded:
		if _, ok := update.Changes["tags"]; !ok {
			return fmt.Errorf("tag_added update %s missing tags", update.UpdateID)
		}
	case models.UpdateNoteUpdated:
		if len(update.Changes) == 0 {
			return fmt.Errorf("note_updated update %s has no changes", update.UpdateID)
		}
	}
	return nil
}

// applyOne performs the external write for a single update.
func (u *KnowledgeUpdater) applyOne(ctx context.Context, update models.KnowledgeUpdate) error {
	switch update.Type {
	case models.UpdateNoteCreated:
		title, _ := update.Changes["title"].(string)
		content, _ := update.Changes["content"].(string)
		_, err := u.notes.CreateNote(ctx, title, content, nil, nil, map[string]any{
			"source":    update.Source,
			"update_id": update.UpdateID,
		})
		return err
	default:
		changes := make(map[string]any, len(update.Changes)+1)
		for k, v := range update.Changes {
			changes[k] = v
		}
		changes["updated_at"] = time.Now().UTC().Format(time.RFC3339)
		return u.notes.UpdateNote(ctx, update.TargetID, changes)
	}
}
