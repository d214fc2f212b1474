package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stressvision/stressvision/pkg/models"
)

// ErrSessionOpen is returned by StartSession when a session is already active.
var ErrSessionOpen = fmt.Errorf("a monitoring session is already open")

// ErrNoSession is returned when an operation requires an open session.
var ErrNoSession = fmt.Errorf("no open monitoring session")

// Session is one continuous monitoring run for a single source.
type Session struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Status    string     `json:"status"`
}

// DetectionEvent is one resolved observation, immutable once appended.
// EmployeeID is nil for unknown identities.
type DetectionEvent struct {
	ID          int64          `json:"id"`
	SessionID   string         `json:"session_id"`
	EmployeeID  *string        `json:"employee_id,omitempty"`
	Emotion     models.Emotion `json:"emotion"`
	Stress      bool           `json:"stress"`
	Confidence  float64        `json:"confidence"`
	BoundingBox string         `json:"bounding_box,omitempty"`
	ObservedAt  time.Time      `json:"observed_at"`
}

// EventFilter selects detection events. Start is inclusive, End exclusive.
type EventFilter struct {
	Start       time.Time
	End         time.Time
	EmployeeID  *string
	UnknownOnly bool
	StressOnly  bool
	Emotion     models.Emotion
	SessionID   string
	Limit       int
}

// EventStore provides database access for sessions and detection events.
type EventStore struct {
	db *sql.DB
}

// NewEventStore creates an EventStore backed by the given database.
func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

// StartSession opens a new monitoring session. At most one session may be
// open at a time; a second StartSession fails with ErrSessionOpen.
func (s *EventStore) StartSession(ctx context.Context, source string) (*Session, error) {
	open, err := s.OpenSession(ctx)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionOpen, open.ID)
	}

	sess := &Session{
		ID:        uuid.NewString(),
		Source:    source,
		StartedAt: time.Now().UTC(),
		Status:    "active",
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, source, started_at, status) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.Source, sess.StartedAt, sess.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	return sess, nil
}

// EndSession closes the given session. Idempotent on already-ended sessions
// is not offered; ending twice is an error.
func (s *EventStore) EndSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET ended_at = ?, status = 'ended' WHERE id = ? AND status = 'active'`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %q is not open", id)
	}
	return nil
}

// OpenSession returns the currently active session, or nil, nil if none.
func (s *EventStore) OpenSession(ctx context.Context) (*Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, source, started_at, status FROM sessions WHERE status = 'active' LIMIT 1`,
	).Scan(&sess.ID, &sess.Source, &sess.StartedAt, &sess.Status)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("open session: %w", err)
	}
	return &sess, nil
}

// AppendEvent inserts a detection event and sets its assigned ID.
func (s *EventStore) AppendEvent(ctx context.Context, ev *DetectionEvent) error {
	stress := 0
	if ev.Stress {
		stress = 1
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO detection_events (session_id, employee_id, emotion, stress, confidence, bounding_box, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.SessionID, ev.EmployeeID, string(ev.Emotion), stress, ev.Confidence, ev.BoundingBox, ev.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	ev.ID, err = res.LastInsertId()
	return err
}

// QueryEvents returns events matching the filter, ordered by observed_at
// then insertion order.
func (s *EventStore) QueryEvents(ctx context.Context, f EventFilter) ([]DetectionEvent, error) {
	query := `
		SELECT id, session_id, employee_id, emotion, stress, confidence, bounding_box, observed_at
		FROM detection_events WHERE 1=1`
	var args []any

	if !f.Start.IsZero() {
		query += ` AND observed_at >= ?`
		args = append(args, f.Start)
	}
	if !f.End.IsZero() {
		query += ` AND observed_at < ?`
		args = append(args, f.End)
	}
	switch {
	case f.UnknownOnly:
		query += ` AND employee_id IS NULL`
	case f.EmployeeID != nil:
		query += ` AND employee_id = ?`
		args = append(args, *f.EmployeeID)
	}
	if f.StressOnly {
		query += ` AND stress = 1`
	}
	if f.Emotion != "" {
		query += ` AND emotion = ?`
		args = append(args, string(f.Emotion))
	}
	if f.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, f.SessionID)
	}
	query += ` ORDER BY observed_at, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []DetectionEvent
	for rows.Next() {
		var ev DetectionEvent
		var employeeID sql.NullString
		var boundingBox sql.NullString
		var stress int
		if err := rows.Scan(&ev.ID, &ev.SessionID, &employeeID, &ev.Emotion, &stress,
			&ev.Confidence, &boundingBox, &ev.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		if employeeID.Valid {
			ev.EmployeeID = &employeeID.String
		}
		ev.BoundingBox = boundingBox.String
		ev.Stress = stress != 0
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountEvents returns the number of events matching the filter.
func (s *EventStore) CountEvents(ctx context.Context, f EventFilter) (int64, error) {
	query := `SELECT COUNT(*) FROM detection_events WHERE 1=1`
	var args []any

	if !f.Start.IsZero() {
		query += ` AND observed_at >= ?`
		args = append(args, f.Start)
	}
	if !f.End.IsZero() {
		query += ` AND observed_at < ?`
		args = append(args, f.End)
	}
	switch {
	case f.UnknownOnly:
		query += ` AND employee_id IS NULL`
	case f.EmployeeID != nil:
		query += ` AND employee_id = ?`
		args = append(args, *f.EmployeeID)
	}
	if f.StressOnly {
		query += ` AND stress = 1`
	}
	if f.Emotion != "" {
		query += ` AND emotion = ?`
		args = append(args, string(f.Emotion))
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// DistinctEmployees returns the distinct known employee IDs with at least
// one event in [start, end).
func (s *EventStore) DistinctEmployees(ctx context.Context, start, end time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT employee_id FROM detection_events
		WHERE employee_id IS NOT NULL AND observed_at >= ? AND observed_at < ?
		ORDER BY employee_id`,
		start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("distinct employees: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan employee id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// EmotionCounts returns the number of events per emotion label in
// [start, end).
func (s *EventStore) EmotionCounts(ctx context.Context, start, end time.Time) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT emotion, COUNT(*) FROM detection_events
		WHERE observed_at >= ? AND observed_at < ?
		GROUP BY emotion`,
		start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("emotion counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var emotion string
		var n int64
		if err := rows.Scan(&emotion, &n); err != nil {
			return nil, fmt.Errorf("scan emotion count: %w", err)
		}
		counts[emotion] = n
	}
	return counts, rows.Err()
}

// PruneEvents deletes the oldest events beyond maxEvents and returns the
// number removed.
func (s *EventStore) PruneEvents(ctx context.Context, maxEvents int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM detection_events WHERE id NOT IN (
			SELECT id FROM detection_events ORDER BY id DESC LIMIT ?
		)`,
		maxEvents,
	)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return res.RowsAffected()
}
