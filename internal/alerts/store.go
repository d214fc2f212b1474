package alerts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Alert states. The lifecycle is strictly forward: pending may move to
// acknowledged or straight to resolved, acknowledged may move to resolved,
// and resolved is terminal.
const (
	StatePending      = "pending"
	StateAcknowledged = "acknowledged"
	StateResolved     = "resolved"
)

// Alert types.
const (
	TypeProlongedHighStress = "prolonged_high_stress"
	TypeFatigueDetected     = "fatigue_detected"
	TypeAnomalyDetected     = "anomaly_detected"
)

// Severity levels, fixed at creation from the triggering confidence.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

var (
	// ErrNotFound is returned when no alert has the given ID.
	ErrNotFound = errors.New("alert not found")

	// ErrInvalidTransition is returned for backward or out-of-terminal
	// state changes, and when a concurrent transition won the race.
	ErrInvalidTransition = errors.New("invalid alert state transition")
)

// Alert is one triggered condition. EmployeeID is nil for global anomaly
// alerts. Severity never changes after creation.
type Alert struct {
	ID             string    `json:"id"`
	EmployeeID     *string   `json:"employee_id,omitempty"`
	Type           string    `json:"alert_type"`
	Severity       string    `json:"severity"`
	State          string    `json:"state"`
	Message        string    `json:"message"`
	StressLevel    float64   `json:"stress_level"`
	CreatedAt      time.Time `json:"created_at"`
	StateChangedAt time.Time `json:"state_changed_at"`
	AcknowledgedBy *string   `json:"acknowledged_by,omitempty"`
	ResolvedBy     *string   `json:"resolved_by,omitempty"`
	Notes          string    `json:"notes,omitempty"`
}

// AlertStore provides database access for the alerts module.
type AlertStore struct {
	db *sql.DB
}

// NewAlertStore creates an AlertStore backed by the given database.
func NewAlertStore(db *sql.DB) *AlertStore {
	return &AlertStore{db: db}
}

// Insert writes a new pending alert.
func (s *AlertStore) Insert(ctx context.Context, a *Alert) error {
	if a.State == "" {
		a.State = StatePending
	}
	if a.StateChangedAt.IsZero() {
		a.StateChangedAt = a.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, employee_id, alert_type, severity, state, message, stress_level, created_at, state_changed_at, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.EmployeeID, a.Type, a.Severity, a.State, a.Message, a.StressLevel, a.CreatedAt, a.StateChangedAt, a.Notes,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// Get returns one alert by ID.
func (s *AlertStore) Get(ctx context.Context, id string) (*Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, employee_id, alert_type, severity, state, message, stress_level,
		       created_at, state_changed_at, acknowledged_by, resolved_by, notes
		FROM alerts WHERE id = ?`,
		id,
	)
	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return a, err
}

// List returns alerts, newest first. An empty state returns all states.
func (s *AlertStore) List(ctx context.Context, state string, limit int) ([]Alert, error) {
	query := `
		SELECT id, employee_id, alert_type, severity, state, message, stress_level,
		       created_at, state_changed_at, acknowledged_by, resolved_by, notes
		FROM alerts`
	var args []any
	if state != "" {
		query += ` WHERE state = ?`
		args = append(args, state)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// ListCreatedBetween returns alert IDs created in [start, end), for report
// assembly.
func (s *AlertStore) ListCreatedBetween(ctx context.Context, start, end time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM alerts WHERE created_at >= ? AND created_at < ? ORDER BY created_at, id`,
		start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("list alerts in window: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountByState returns the number of alerts in the given state.
func (s *AlertStore) CountByState(ctx context.Context, state string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts WHERE state = ?`, state).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count alerts: %w", err)
	}
	return count, nil
}

// LastCreated returns the creation time of the most recent alert of the
// given (employee, type) pair, in any state. A nil employeeID matches
// global alerts.
func (s *AlertStore) LastCreated(ctx context.Context, employeeID *string, alertType string) (time.Time, bool, error) {
	query := `SELECT created_at FROM alerts WHERE alert_type = ?`
	args := []any{alertType}
	if employeeID != nil {
		query += ` AND employee_id = ?`
		args = append(args, *employeeID)
	} else {
		query += ` AND employee_id IS NULL`
	}
	query += ` ORDER BY created_at DESC LIMIT 1`

	var created time.Time
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&created)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last created: %w", err)
	}
	return created, true, nil
}

// Transition moves an alert to the target state. The UPDATE carries the
// expected source states in its WHERE clause, so exactly one of two racing
// transitions can win; the loser sees zero rows and gets
// ErrInvalidTransition. An optional note is appended on resolve.
func (s *AlertStore) Transition(ctx context.Context, id, target, actor, note string, now time.Time) error {
	var res sql.Result
	var err error
	switch target {
	case StateAcknowledged:
		res, err = s.db.ExecContext(ctx, `
			UPDATE alerts SET state = ?, acknowledged_by = ?, state_changed_at = ?
			WHERE id = ? AND state = ?`,
			StateAcknowledged, actor, now, id, StatePending,
		)
	case StateResolved:
		res, err = s.db.ExecContext(ctx, `
			UPDATE alerts SET state = ?, resolved_by = ?, state_changed_at = ?,
				notes = CASE WHEN ? = '' THEN notes
				             WHEN notes = '' THEN ?
				             ELSE notes || char(10) || ? END
			WHERE id = ? AND state IN (?, ?)`,
			StateResolved, actor, now, note, note, note, id, StatePending, StateAcknowledged,
		)
	default:
		return fmt.Errorf("%w: no transition to %q", ErrInvalidTransition, target)
	}
	if err != nil {
		return fmt.Errorf("transition alert: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: alert %s cannot move to %s", ErrInvalidTransition, id, target)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*Alert, error) {
	var a Alert
	var employeeID, acknowledgedBy, resolvedBy sql.NullString
	err := row.Scan(&a.ID, &employeeID, &a.Type, &a.Severity, &a.State, &a.Message, &a.StressLevel,
		&a.CreatedAt, &a.StateChangedAt, &acknowledgedBy, &resolvedBy, &a.Notes)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan alert row: %w", err)
	}
	if employeeID.Valid {
		a.EmployeeID = &employeeID.String
	}
	if acknowledgedBy.Valid {
		a.AcknowledgedBy = &acknowledgedBy.String
	}
	if resolvedBy.Valid {
		a.ResolvedBy = &resolvedBy.String
	}
	return &a, nil
}
