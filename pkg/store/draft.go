package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cortexhq/cortex/pkg/models"
)

// ErrNotFound indicates the requested artifact does not exist.
var ErrNotFound = errors.New("not found")

// DraftStore keeps reply drafts on disk, one JSON file per draft id.
type DraftStore struct {
	mu  sync.RWMutex
	dir string
}

// NewDraftStore creates a store rooted at dir.
func NewDraftStore(dir string) (*DraftStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating draft directory: %w", err)
	}
	return &DraftStore{dir: dir}, nil
}

func (s *DraftStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// SaveDraft writes the draft, replacing any previous version atomically.
func (s *DraftStore) SaveDraft(_ context.Context, draft models.DraftReply) error {
	if draft.DraftID == "" {
		return fmt.Errorf("%w: empty draft_id", models.ErrInvalidArtifact)
	}
	data, err := json.MarshalIndent(draft, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding draft %s: %w", draft.DraftID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return WriteFileAtomic(s.path(draft.DraftID), data)
}

// GetDraft loads one draft by id.
func (s *DraftStore) GetDraft(_ context.Context, id string) (models.DraftReply, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return models.DraftReply{}, fmt.Errorf("draft %s: %w", id, ErrNotFound)
		}
		return models.DraftReply{}, fmt.Errorf("reading draft %s: %w", id, err)
	}

	var draft models.DraftReply
	if err := json.Unmarshal(data, &draft); err != nil {
		return models.DraftReply{}, fmt.Errorf("decoding draft %s: %w", id, err)
	}
	return draft, nil
}

// ListDrafts returns all stored drafts, newest first.
func (s *DraftStore) ListDrafts(ctx context.Context) ([]models.DraftReply, error) {
	s.mu.RLock()
	entries, err := os.ReadDir(s.dir)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("listing drafts: %w", err)
	}

	drafts := make([]models.DraftReply, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		draft, err := s.GetDraft(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		drafts = append(drafts, draft)
	}
	sort.Slice(drafts, func(i, j int) bool {
		return drafts[i].CreatedAt.After(drafts[j].CreatedAt)
	})
	return drafts, nil
}

// EditDraft replaces a pending draft's body, recording history.
func (s *DraftStore) EditDraft(ctx context.Context, id, body string) (models.DraftReply, error) {
	draft, err := s.GetDraft(ctx, id)
	if err != nil {
		return models.DraftReply{}, err
	}
	if err := draft.Edit(body); err != nil {
		return models.DraftReply{}, err
	}
	if err := s.SaveDraft(ctx, draft); err != nil {
		return models.DraftReply{}, err
	}
	return draft, nil
}

// TransitionDraft moves a draft to a terminal status and persists it.
func (s *DraftStore) TransitionDraft(ctx context.Context, id string, to models.DraftStatus) (models.DraftReply, error) {
	draft, err := s.GetDraft(ctx, id)
	if err != nil {
		return models.DraftReply{}, err
	}
	if err := draft.Transition(to); err != nil {
		return models.DraftReply{}, err
	}
	if err := s.SaveDraft(ctx, draft); err != nil {
		return models.DraftReply{}, err
	}
	return draft, nil
}

// DeleteDraft removes a draft's file. Deleting a missing draft is not an
// error.
func (s *DraftStore) DeleteDraft(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting draft %s: %w", id, err)
	}
	return nil
}
