// Package history keeps an optional Postgres record of processed events:
// one session row per event with the decision, confidence, and outcome.
// Without a configured DATABASE_URL the store is disabled and every method
// is a no-op.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Session is the per-event processing record.
type Session struct {
	EventID     string    `json:"event_id"`
	AccountID   string    `json:"account_id"`
	Source      string    `json:"source"`
	Decision    string    `json:"decision"`
	Disposition string    `json:"disposition"`
	PlanMode    string    `json:"plan_mode"`
	Outcome     string    `json:"outcome"`
	Confidence  float64   `json:"confidence"`
	Passes      int       `json:"passes"`
	CreatedAt   time.Time `json:"created_at"`
}

// Querier is the subset of the pgx pool the store uses; tests pass fakes.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store records processed-event sessions. A nil store is disabled.
type Store struct {
	pool   Querier
	logger *slog.Logger
}

// NewStore wraps a pgx querier.
func NewStore(pool Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger.With("component", "history")}
}

// Open connects to the database, applies pending migrations, and returns the
// store. An empty URL disables history: Open returns a nil store.
func Open(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	if databaseURL == "" {
		return nil, nil
	}
	if err := runMigrations(databaseURL); err != nil {
		return nil, fmt.Errorf("history migrations: %w", err)
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting history pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging history database: %w", err)
	}
	return NewStore(pool, logger), nil
}

// Close releases the pool when the store owns one.
func (s *Store) Close() {
	if s == nil {
		return
	}
	if pool, ok := s.pool.(*pgxpool.Pool); ok {
		pool.Close()
	}
}

// Record upserts the session row for one processed event.
func (s *Store) Record(ctx context.Context, session Session) error {
	if s == nil {
		return nil
	}
	if session.EventID == "" {
		return fmt.Errorf("recording session: empty event_id")
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO processed_events
			(event_id, account_id, source, decision, disposition, plan_mode, outcome, confidence, passes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (event_id) DO UPDATE SET
			decision = EXCLUDED.decision,
			disposition = EXCLUDED.disposition,
			plan_mode = EXCLUDED.plan_mode,
			outcome = EXCLUDED.outcome,
			confidence = EXCLUDED.confidence,
			passes = EXCLUDED.passes`,
		session.EventID, session.AccountID, session.Source, session.Decision,
		session.Disposition, session.PlanMode, session.Outcome,
		session.Confidence, session.Passes, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("recording session %s: %w", session.EventID, err)
	}
	return nil
}

// Recent returns the most recently processed sessions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Session, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT event_id, account_id, source, decision, disposition, plan_mode, outcome, confidence, passes, created_at
		FROM processed_events
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.EventID, &sess.AccountID, &sess.Source, &sess.Decision,
			&sess.Disposition, &sess.PlanMode, &sess.Outcome,
			&sess.Confidence, &sess.Passes, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return sessions, nil
}
