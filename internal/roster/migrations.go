package roster

import (
	"database/sql"

	"github.com/stressvision/stressvision/pkg/plugin"
)

func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create roster tables",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS roster_employees (
						id TEXT PRIMARY KEY,
						name TEXT NOT NULL,
						department TEXT,
						shift TEXT,
						consent_given INTEGER NOT NULL DEFAULT 0,
						active INTEGER NOT NULL DEFAULT 1,
						enrolled_at DATETIME NOT NULL,
						created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,

					`CREATE TABLE IF NOT EXISTS roster_embeddings (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						employee_id TEXT NOT NULL REFERENCES roster_employees(id),
						vector BLOB NOT NULL,
						dim INTEGER NOT NULL,
						quality REAL,
						created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE INDEX IF NOT EXISTS idx_roster_embeddings_employee ON roster_embeddings(employee_id)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
