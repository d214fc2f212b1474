package eventlog

import (
	"database/sql"

	"github.com/stressvision/stressvision/pkg/plugin"
)

// Migrations returns the eventlog schema migrations. Exported so that
// downstream packages can set up the schema in their own test databases.
func Migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "Create sessions and detection_events tables",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS sessions (
						id TEXT PRIMARY KEY,
						source TEXT NOT NULL,
						started_at DATETIME NOT NULL,
						ended_at DATETIME,
						status TEXT NOT NULL DEFAULT 'active'
					);

					CREATE TABLE IF NOT EXISTS detection_events (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						session_id TEXT NOT NULL,
						employee_id TEXT,
						emotion TEXT NOT NULL,
						stress INTEGER NOT NULL DEFAULT 0,
						confidence REAL NOT NULL,
						bounding_box TEXT,
						observed_at DATETIME NOT NULL,
						FOREIGN KEY (session_id) REFERENCES sessions(id)
					);

					CREATE INDEX IF NOT EXISTS idx_detection_events_employee_time
						ON detection_events(employee_id, observed_at);
					CREATE INDEX IF NOT EXISTS idx_detection_events_session
						ON detection_events(session_id);
					CREATE INDEX IF NOT EXISTS idx_detection_events_observed
						ON detection_events(observed_at);
				`)
				return err
			},
		},
	}
}
