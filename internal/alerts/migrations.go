package alerts

import (
	"database/sql"

	"github.com/stressvision/stressvision/pkg/plugin"
)

// Migrations returns the alerts schema migrations.
func Migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "Create alerts table",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS alerts (
						id TEXT PRIMARY KEY,
						employee_id TEXT,
						alert_type TEXT NOT NULL,
						severity TEXT NOT NULL,
						state TEXT NOT NULL DEFAULT 'pending',
						message TEXT NOT NULL,
						stress_level REAL NOT NULL DEFAULT 0,
						created_at DATETIME NOT NULL,
						state_changed_at DATETIME NOT NULL,
						acknowledged_by TEXT,
						resolved_by TEXT,
						notes TEXT NOT NULL DEFAULT ''
					);

					CREATE INDEX IF NOT EXISTS idx_alerts_state ON alerts(state);
					CREATE INDEX IF NOT EXISTS idx_alerts_employee_type_created
						ON alerts(employee_id, alert_type, created_at);
				`)
				return err
			},
		},
	}
}
