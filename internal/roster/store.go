package roster

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Employee is an enrolled person. Never physically deleted while events
// reference it; Deactivate flips the active flag instead.
type Employee struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Department   string    `json:"department,omitempty"`
	Shift        string    `json:"shift,omitempty"`
	ConsentGiven bool      `json:"consent_given"`
	Active       bool      `json:"active"`
	EnrolledAt   time.Time `json:"enrolled_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Enrollment pairs an employee identifier with its stored embedding samples.
type Enrollment struct {
	EmployeeID string
	Samples    [][]float64
}

// RosterStore provides database access for the roster module.
type RosterStore struct {
	db *sql.DB
}

// NewRosterStore creates a RosterStore backed by the given database.
func NewRosterStore(db *sql.DB) *RosterStore {
	return &RosterStore{db: db}
}

// InsertEmployee inserts a new employee row.
func (s *RosterStore) InsertEmployee(ctx context.Context, e *Employee) error {
	consent, active := 0, 1
	if e.ConsentGiven {
		consent = 1
	}
	if !e.Active {
		active = 0
	}
	if e.EnrolledAt.IsZero() {
		e.EnrolledAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO roster_employees (id, name, department, shift, consent_given, active, enrolled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, e.Department, e.Shift, consent, active, e.EnrolledAt,
	)
	if err != nil {
		return fmt.Errorf("insert employee: %w", err)
	}
	return nil
}

// GetEmployee returns an employee by ID. Returns nil, nil if not found.
func (s *RosterStore) GetEmployee(ctx context.Context, id string) (*Employee, error) {
	var e Employee
	var consent, active int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, department, shift, consent_given, active, enrolled_at, created_at, updated_at
		FROM roster_employees WHERE id = ?`,
		id,
	).Scan(&e.ID, &e.Name, &e.Department, &e.Shift, &consent, &active, &e.EnrolledAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get employee: %w", err)
	}
	e.ConsentGiven = consent != 0
	e.Active = active != 0
	return &e, nil
}

// ListEmployees returns employees ordered by name. If activeOnly is set,
// deactivated employees are excluded.
func (s *RosterStore) ListEmployees(ctx context.Context, activeOnly bool) ([]Employee, error) {
	query := `
		SELECT id, name, department, shift, consent_given, active, enrolled_at, created_at, updated_at
		FROM roster_employees`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()

	var employees []Employee
	for rows.Next() {
		var e Employee
		var consent, active int
		if err := rows.Scan(&e.ID, &e.Name, &e.Department, &e.Shift, &consent, &active,
			&e.EnrolledAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan employee row: %w", err)
		}
		e.ConsentGiven = consent != 0
		e.Active = active != 0
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

// Deactivate soft-deletes an employee. Historical events keep referencing
// the row, so rows are never physically removed.
func (s *RosterStore) Deactivate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE roster_employees SET active = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("deactivate employee: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("employee %q not found", id)
	}
	return nil
}

// AppendEmbedding stores one embedding sample for an employee.
func (s *RosterStore) AppendEmbedding(ctx context.Context, employeeID string, vector []float64, quality float64) error {
	if len(vector) == 0 {
		return fmt.Errorf("empty embedding vector")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO roster_embeddings (employee_id, vector, dim, quality)
		VALUES (?, ?, ?, ?)`,
		employeeID, encodeVector(vector), len(vector), quality,
	)
	if err != nil {
		return fmt.Errorf("append embedding: %w", err)
	}
	return nil
}

// ListEnrollments returns all active employees with their embedding samples,
// ordered by employee ID for deterministic resolution.
func (s *RosterStore) ListEnrollments(ctx context.Context) ([]Enrollment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.employee_id, e.vector, e.dim
		FROM roster_embeddings e
		JOIN roster_employees emp ON emp.id = e.employee_id
		WHERE emp.active = 1
		ORDER BY e.employee_id, e.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	var enrollments []Enrollment
	for rows.Next() {
		var employeeID string
		var blob []byte
		var dim int
		if err := rows.Scan(&employeeID, &blob, &dim); err != nil {
			return nil, fmt.Errorf("scan embedding row: %w", err)
		}
		vector, err := decodeVector(blob, dim)
		if err != nil {
			return nil, fmt.Errorf("decode embedding for %s: %w", employeeID, err)
		}
		if n := len(enrollments); n > 0 && enrollments[n-1].EmployeeID == employeeID {
			enrollments[n-1].Samples = append(enrollments[n-1].Samples, vector)
		} else {
			enrollments = append(enrollments, Enrollment{EmployeeID: employeeID, Samples: [][]float64{vector}})
		}
	}
	return enrollments, rows.Err()
}

// encodeVector serializes a float64 vector as little-endian bytes.
func encodeVector(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

// decodeVector deserializes a little-endian float64 vector.
func decodeVector(b []byte, dim int) ([]float64, error) {
	if len(b) != dim*8 {
		return nil, fmt.Errorf("vector blob is %d bytes, want %d for dim %d", len(b), dim*8, dim)
	}
	v := make([]float64, dim)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v, nil
}
