package database

import (
	"database/sql"
	"fmt"
)

// Migration is one versioned schema step. Migrations are embedded rather than
// read from disk so the binary is self-contained.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// migrations are applied in slice order; versions already recorded in
// schema_migrations are skipped.
var migrations = []Migration{
	{
		Version:     "001",
		Description: "games and slides",
		SQL: `
			CREATE TABLE IF NOT EXISTS games (
				id INTEGER PRIMARY KEY,
				title TEXT NOT NULL DEFAULT '',
				current_slide_id INTEGER,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE TABLE IF NOT EXISTS slides (
				id INTEGER PRIMARY KEY,
				game_id INTEGER NOT NULL,
				position INTEGER NOT NULL DEFAULT 0,
				mode TEXT,
				active INTEGER NOT NULL DEFAULT 1,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_slides_game_active ON slides(game_id, active);
		`,
	},
	{
		Version:     "002",
		Description: "student answers",
		SQL: `
			CREATE TABLE IF NOT EXISTS answers (
				id TEXT PRIMARY KEY,
				game_id INTEGER NOT NULL,
				slide_id INTEGER NOT NULL,
				student_id INTEGER NOT NULL,
				answer_data TEXT NOT NULL,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_answers_slide ON answers(game_id, slide_id);
		`,
	},
}

// ApplyMigrations brings the schema up to date. Each migration runs in its own
// transaction together with its schema_migrations record.
func ApplyMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := appliedVersions(db)
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := applyOne(db, m); err != nil {
			return fmt.Errorf("failed to apply migration %s (%s): %w", m.Version, m.Description, err)
		}
	}
	return nil
}

func appliedVersions(db *sql.DB) (map[string]bool, error) {
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func applyOne(db *sql.DB, m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(m.SQL); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.Version); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
