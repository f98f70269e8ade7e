package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuerier struct {
	execSQL   string
	execArgs  []any
	execErr   error
	querySQL  string
	queryArgs []any
	queryErr  error
	rows      *fakeRows
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = sql
	f.execArgs = args
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakeQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.querySQL = sql
	f.queryArgs = args
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.rows == nil {
		f.rows = &fakeRows{}
	}
	return f.rows, nil
}

// fakeRows replays canned session rows through the pgx.Rows interface.
type fakeRows struct {
	sessions []Session
	idx      int
	scanErr  error
	rowsErr  error
	closed   bool
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return r.rowsErr }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	return r.idx < len(r.sessions)
}

func (r *fakeRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	sess := r.sessions[r.idx]
	r.idx++
	*(dest[0].(*string)) = sess.EventID
	*(dest[1].(*string)) = sess.AccountID
	*(dest[2].(*string)) = sess.Source
	*(dest[3].(*string)) = sess.Decision
	*(dest[4].(*string)) = sess.Disposition
	*(dest[5].(*string)) = sess.PlanMode
	*(dest[6].(*string)) = sess.Outcome
	*(dest[7].(*float64)) = sess.Confidence
	*(dest[8].(*int)) = sess.Passes
	*(dest[9].(*time.Time)) = sess.CreatedAt
	return nil
}

func TestRecordUpsertsSession(t *testing.T) {
	q := &fakeQuerier{}
	s := NewStore(q, nil)

	created := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	err := s.Record(context.Background(), Session{
		EventID:     "evt-1",
		AccountID:   "acct-1",
		Source:      "mail",
		Decision:    "process",
		Disposition: "archive",
		PlanMode:    "auto",
		Outcome:     "executed",
		Confidence:  0.93,
		Passes:      2,
		CreatedAt:   created,
	})
	require.NoError(t, err)

	assert.Contains(t, q.execSQL, "INSERT INTO processed_events")
	assert.Contains(t, q.execSQL, "ON CONFLICT (event_id) DO UPDATE")
	require.Len(t, q.execArgs, 10)
	assert.Equal(t, "evt-1", q.execArgs[0])
	assert.Equal(t, "archive", q.execArgs[4])
	assert.Equal(t, 0.93, q.execArgs[7])
	assert.Equal(t, created, q.execArgs[9])
}

func TestRecordDefaultsCreatedAt(t *testing.T) {
	q := &fakeQuerier{}
	s := NewStore(q, nil)

	require.NoError(t, s.Record(context.Background(), Session{EventID: "evt-1"}))
	createdAt, ok := q.execArgs[9].(time.Time)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().UTC(), createdAt, time.Minute)
}

func TestRecordRequiresEventID(t *testing.T) {
	s := NewStore(&fakeQuerier{}, nil)
	err := s.Record(context.Background(), Session{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty event_id")
}

func TestRecordWrapsExecError(t *testing.T) {
	q := &fakeQuerier{execErr: errors.New("connection reset")}
	s := NewStore(q, nil)

	err := s.Record(context.Background(), Session{EventID: "evt-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recording session evt-1")
}

func TestRecentReturnsSessionsNewestFirst(t *testing.T) {
	rows := &fakeRows{sessions: []Session{
		{EventID: "evt-2", Source: "chat", Decision: "process", Confidence: 0.8, Passes: 1,
			CreatedAt: time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)},
		{EventID: "evt-1", Source: "mail", Decision: "skip",
			CreatedAt: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)},
	}}
	q := &fakeQuerier{rows: rows}
	s := NewStore(q, nil)

	sessions, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "evt-2", sessions[0].EventID)
	assert.Equal(t, "chat", sessions[0].Source)
	assert.Equal(t, "evt-1", sessions[1].EventID)

	assert.Contains(t, q.querySQL, "ORDER BY created_at DESC")
	assert.Equal(t, []any{10}, q.queryArgs)
	assert.True(t, rows.closed)
}

func TestRecentDefaultsLimit(t *testing.T) {
	q := &fakeQuerier{rows: &fakeRows{}}
	s := NewStore(q, nil)

	_, err := s.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []any{50}, q.queryArgs)
}

func TestRecentSurfacesRowError(t *testing.T) {
	q := &fakeQuerier{rows: &fakeRows{rowsErr: errors.New("broken stream")}}
	s := NewStore(q, nil)

	_, err := s.Recent(context.Background(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing sessions")
}

func TestNilStoreIsDisabled(t *testing.T) {
	var s *Store

	require.NoError(t, s.Record(context.Background(), Session{EventID: "evt-1"}))
	sessions, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Nil(t, sessions)
	s.Close()
}

func TestOpenWithEmptyURLDisablesHistory(t *testing.T) {
	s, err := Open(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Nil(t, s)
}
