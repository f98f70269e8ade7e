package perception

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cortexhq/cortex/pkg/integrations"
	"github.com/cortexhq/cortex/pkg/models"
)

// EventSink receives normalized events for processing.
type EventSink interface {
	Push(event models.PerceivedEvent)
}

// WatcherConfig controls source polling for one account.
type WatcherConfig struct {
	AccountID          string        `yaml:"account_id"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`
}

// DefaultWatcherConfig polls every 30 seconds with 5 seconds of jitter.
func DefaultWatcherConfig(accountID string) WatcherConfig {
	return WatcherConfig{
		AccountID:          accountID,
		PollInterval:       30 * time.Second,
		PollIntervalJitter: 5 * time.Second,
	}
}

// seenCap bounds the dedupe window across poll cycles.
const seenCap = 4096

// Watcher polls the configured source clients, normalizes new records, and
// pushes the resulting events into the sink. Source errors are transient:
// they are logged and the cursor is left unchanged so the next cycle retries.
type Watcher struct {
	cfg      WatcherConfig
	mail     integrations.MailClient
	chat     integrations.ChatClient
	calendar integrations.CalendarClient

	mailNorm *MailNormalizer
	chatNorm *ChatNormalizer
	calNorm  *CalendarNormalizer

	sink   EventSink
	logger *slog.Logger

	mu         sync.Mutex
	mailCursor string
	chatCursor string
	calCursor  string
	seen       map[string]bool
	seenOrder  []string

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWatcher creates a watcher over the non-nil source clients. identity is
// the account's own address, used for self-authored records.
func NewWatcher(cfg WatcherConfig, mail integrations.MailClient, chat integrations.ChatClient, calendar integrations.CalendarClient, identity string, sink EventSink, logger *slog.Logger) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultWatcherConfig(cfg.AccountID).PollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		cfg:      cfg,
		mail:     mail,
		chat:     chat,
		calendar: calendar,
		mailNorm: NewMailNormalizer(identity),
		chatNorm: NewChatNormalizer(identity),
		calNorm:  NewCalendarNormalizer(identity),
		sink:     sink,
		logger:   logger.With("component", "watcher", "account_id", cfg.AccountID),
		seen:     make(map[string]bool),
		stopCh:   make(chan struct{}),
	}
}

// Start begins polling in the background.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
	w.logger.Info("watcher started", "poll_interval", w.cfg.PollInterval)
}

// Stop halts polling and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	w.logger.Info("watcher stopped")
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval()):
			if n, err := w.Poll(ctx); err != nil {
				w.logger.Warn("poll cycle had source errors", "error", err)
			} else if n > 0 {
				w.logger.Info("new events perceived", "count", n)
			}
		}
	}
}

func (w *Watcher) pollInterval() time.Duration {
	base := w.cfg.PollInterval
	jitter := w.cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2*jitter))) - jitter
	if base+offset <= 0 {
		return base
	}
	return base + offset
}

// Poll runs one pass over all sources and returns the number of events
// pushed. The returned error is the last source failure, if any; other
// sources still complete.
func (w *Watcher) Poll(ctx context.Context) (int, error) {
	total := 0
	var lastErr error

	if w.mail != nil {
		n, err := w.pollMail(ctx)
		total += n
		if err != nil {
			lastErr = err
			w.logger.Warn("mail poll failed", "error", err)
		}
	}
	if w.chat != nil {
		n, err := w.pollChat(ctx)
		total += n
		if err != nil {
			lastErr = err
			w.logger.Warn("chat poll failed", "error", err)
		}
	}
	if w.calendar != nil {
		n, err := w.pollCalendar(ctx)
		total += n
		if err != nil {
			lastErr = err
			w.logger.Warn("calendar poll failed", "error", err)
		}
	}
	return total, lastErr
}

func (w *Watcher) pollMail(ctx context.Context) (int, error) {
	w.mu.Lock()
	cursor := w.mailCursor
	w.mu.Unlock()

	messages, next, err := w.mail.ListSince(ctx, w.cfg.AccountID, cursor)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range messages {
		if !w.markSeen("mail:" + messages[i].UID) {
			continue
		}
		event, err := w.mailNorm.Normalize(&messages[i])
		if err != nil {
			w.logger.Warn("dropping unnormalizable mail message", "uid", messages[i].UID, "error", err)
			continue
		}
		w.sink.Push(event)
		count++
	}

	w.mu.Lock()
	w.mailCursor = next
	w.mu.Unlock()
	return count, nil
}

func (w *Watcher) pollChat(ctx context.Context) (int, error) {
	w.mu.Lock()
	cursor := w.chatCursor
	w.mu.Unlock()

	messages, next, err := w.chat.ListSince(ctx, w.cfg.AccountID, cursor)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range messages {
		if !w.markSeen("chat:" + messages[i].MessageID) {
			continue
		}
		event, err := w.chatNorm.Normalize(&messages[i])
		if err != nil {
			w.logger.Warn("dropping unnormalizable chat message", "message_id", messages[i].MessageID, "error", err)
			continue
		}
		w.sink.Push(event)
		count++
	}

	w.mu.Lock()
	w.chatCursor = next
	w.mu.Unlock()
	return count, nil
}

func (w *Watcher) pollCalendar(ctx context.Context) (int, error) {
	w.mu.Lock()
	cursor := w.calCursor
	w.mu.Unlock()

	items, next, err := w.calendar.ListSince(ctx, w.cfg.AccountID, cursor)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range items {
		if !w.markSeen("calendar:" + items[i].EventUID) {
			continue
		}
		event, err := w.calNorm.Normalize(&items[i])
		if err != nil {
			w.logger.Warn("dropping unnormalizable calendar event", "uid", items[i].EventUID, "error", err)
			continue
		}
		w.sink.Push(event)
		count++
	}

	w.mu.Lock()
	w.calCursor = next
	w.mu.Unlock()
	return count, nil
}

// markSeen reports whether the key is new, recording it in the bounded
// dedupe window.
func (w *Watcher) markSeen(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seen[key] {
		return false
	}
	w.seen[key] = true
	w.seenOrder = append(w.seenOrder, key)
	for len(w.seenOrder) > seenCap {
		delete(w.seen, w.seenOrder[0])
		w.seenOrder = w.seenOrder[1:]
	}
	return true
}
