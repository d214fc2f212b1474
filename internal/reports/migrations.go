package reports

import (
	"database/sql"

	"github.com/stressvision/stressvision/pkg/plugin"
)

// Migrations returns the reports schema migrations.
func Migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "Create reports table",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS reports (
						id TEXT PRIMARY KEY,
						window_start DATETIME NOT NULL,
						window_end DATETIME NOT NULL,
						total_detections INTEGER NOT NULL,
						distinct_employees INTEGER NOT NULL,
						stress_pct REAL NOT NULL,
						emotion_distribution TEXT NOT NULL DEFAULT '{}',
						alert_ids TEXT NOT NULL DEFAULT '[]',
						employee_summaries TEXT NOT NULL DEFAULT '[]',
						generated_at DATETIME NOT NULL
					);

					CREATE INDEX IF NOT EXISTS idx_reports_window_end ON reports(window_end);
				`)
				return err
			},
		},
	}
}
