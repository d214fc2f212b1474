package reports

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stressvision/stressvision/internal/stress"
)

// Report is one periodic summary over a contiguous window. Aggregate
// counters are computed once over the whole window; the per-employee
// summaries are informational and never summed back into them.
type Report struct {
	ID                  string           `json:"id"`
	WindowStart         time.Time        `json:"window_start"`
	WindowEnd           time.Time        `json:"window_end"`
	TotalDetections     int64            `json:"total_detections"`
	DistinctEmployees   int              `json:"distinct_employees"`
	StressPct           float64          `json:"stress_pct"`
	EmotionDistribution map[string]int64 `json:"emotion_distribution"`
	AlertIDs            []string         `json:"alert_ids"`
	EmployeeSummaries   []stress.Summary `json:"employee_summaries"`
	GeneratedAt         time.Time        `json:"generated_at"`
}

// ReportStore provides database access for the reports module.
type ReportStore struct {
	db *sql.DB
}

// NewReportStore creates a ReportStore backed by the given database.
func NewReportStore(db *sql.DB) *ReportStore {
	return &ReportStore{db: db}
}

// Insert writes a report row.
func (s *ReportStore) Insert(ctx context.Context, r *Report) error {
	distribution, err := json.Marshal(r.EmotionDistribution)
	if err != nil {
		return fmt.Errorf("marshal emotion distribution: %w", err)
	}
	alertIDs, err := json.Marshal(r.AlertIDs)
	if err != nil {
		return fmt.Errorf("marshal alert ids: %w", err)
	}
	summaries, err := json.Marshal(r.EmployeeSummaries)
	if err != nil {
		return fmt.Errorf("marshal employee summaries: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (id, window_start, window_end, total_detections, distinct_employees,
			stress_pct, emotion_distribution, alert_ids, employee_summaries, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.WindowStart, r.WindowEnd, r.TotalDetections, r.DistinctEmployees,
		r.StressPct, string(distribution), string(alertIDs), string(summaries), r.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// Latest returns the most recent report, or nil, nil when none exist.
func (s *ReportStore) Latest(ctx context.Context) (*Report, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, window_start, window_end, total_detections, distinct_employees,
		       stress_pct, emotion_distribution, alert_ids, employee_summaries, generated_at
		FROM reports ORDER BY window_end DESC LIMIT 1`,
	)
	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// List returns reports newest first.
func (s *ReportStore) List(ctx context.Context, limit int) ([]Report, error) {
	query := `
		SELECT id, window_start, window_end, total_detections, distinct_employees,
		       stress_pct, emotion_distribution, alert_ids, employee_summaries, generated_at
		FROM reports ORDER BY window_end DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

// LatestWindowEnd returns the window_end of the most recent report, used to
// resume the contiguous window cursor across restarts.
func (s *ReportStore) LatestWindowEnd(ctx context.Context) (time.Time, bool, error) {
	var end time.Time
	err := s.db.QueryRowContext(ctx, `SELECT window_end FROM reports ORDER BY window_end DESC LIMIT 1`).Scan(&end)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest window end: %w", err)
	}
	return end, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*Report, error) {
	var r Report
	var distribution, alertIDs, summaries string
	err := row.Scan(&r.ID, &r.WindowStart, &r.WindowEnd, &r.TotalDetections, &r.DistinctEmployees,
		&r.StressPct, &distribution, &alertIDs, &summaries, &r.GeneratedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan report row: %w", err)
	}
	if err := json.Unmarshal([]byte(distribution), &r.EmotionDistribution); err != nil {
		return nil, fmt.Errorf("unmarshal emotion distribution: %w", err)
	}
	if err := json.Unmarshal([]byte(alertIDs), &r.AlertIDs); err != nil {
		return nil, fmt.Errorf("unmarshal alert ids: %w", err)
	}
	if err := json.Unmarshal([]byte(summaries), &r.EmployeeSummaries); err != nil {
		return nil, fmt.Errorf("unmarshal employee summaries: %w", err)
	}
	return &r, nil
}
