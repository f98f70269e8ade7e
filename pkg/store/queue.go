package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cortexhq/cortex/pkg/models"
)

// QueueStore keeps review-queue items on disk, one JSON file per item id.
type QueueStore struct {
	mu  sync.RWMutex
	dir string
}

// NewQueueStore creates a store rooted at dir.
func NewQueueStore(dir string) (*QueueStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating queue directory: %w", err)
	}
	return &QueueStore{dir: dir}, nil
}

func (s *QueueStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// SaveItem writes the item, replacing any previous version atomically.
func (s *QueueStore) SaveItem(_ context.Context, item models.QueueItem) error {
	if item.ItemID == "" {
		return fmt.Errorf("%w: empty item_id", models.ErrInvalidArtifact)
	}
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding queue item %s: %w", item.ItemID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return WriteFileAtomic(s.path(item.ItemID), data)
}

// GetItem loads one item by id.
func (s *QueueStore) GetItem(_ context.Context, id string) (models.QueueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return models.QueueItem{}, fmt.Errorf("queue item %s: %w", id, ErrNotFound)
		}
		return models.QueueItem{}, fmt.Errorf("reading queue item %s: %w", id, err)
	}

	var item models.QueueItem
	if err := json.Unmarshal(data, &item); err != nil {
		return models.QueueItem{}, fmt.Errorf("decoding queue item %s: %w", id, err)
	}
	return item, nil
}

// ListItems returns stored items, optionally filtered by status, newest
// first.
func (s *QueueStore) ListItems(ctx context.Context, status models.QueueStatus) ([]models.QueueItem, error) {
	s.mu.RLock()
	entries, err := os.ReadDir(s.dir)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("listing queue items: %w", err)
	}

	items := make([]models.QueueItem, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		item, err := s.GetItem(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		if status != "" && item.Status != status {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

// Pending returns items awaiting review whose snooze window, if any, has
// elapsed.
func (s *QueueStore) Pending(ctx context.Context) ([]models.QueueItem, error) {
	items, err := s.ListItems(ctx, models.QueuePending)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	ready := items[:0]
	for _, item := range items {
		if item.SnoozedUntil.IsZero() || !item.SnoozedUntil.After(now) {
			ready = append(ready, item)
		}
	}
	return ready, nil
}

// TransitionItem moves an item to a terminal status and persists it.
func (s *QueueStore) TransitionItem(ctx context.Context, id string, to models.QueueStatus) (models.QueueItem, error) {
	item, err := s.GetItem(ctx, id)
	if err != nil {
		return models.QueueItem{}, err
	}
	if err := item.Transition(to); err != nil {
		return models.QueueItem{}, err
	}
	if err := s.SaveItem(ctx, item); err != nil {
		return models.QueueItem{}, err
	}
	return item, nil
}

// DeleteItem removes an item's file. Deleting a missing item is not an
// error.
func (s *QueueStore) DeleteItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting queue item %s: %w", id, err)
	}
	return nil
}
