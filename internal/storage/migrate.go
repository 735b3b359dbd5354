package storage

import (
	"database/sql"
	"fmt"
)

// migrations are applied in order; each entry's index+1 is its version.
// Append only, never edit an applied entry.
var migrations = []string{
	`CREATE TABLE approval_audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at DATETIME NOT NULL,
		event_type TEXT NOT NULL,
		request_id TEXT NOT NULL,
		tool TEXT NOT NULL,
		params TEXT NOT NULL DEFAULT '{}',
		decision TEXT NOT NULL,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		session_id TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX idx_approval_audit_session ON approval_audit(session_id);

	CREATE TABLE tasks (
		name TEXT PRIMARY KEY,
		schedule TEXT NOT NULL,
		provider TEXT NOT NULL DEFAULT '',
		prompt TEXT NOT NULL,
		max_steps INTEGER NOT NULL DEFAULT 0,
		timeout_seconds INTEGER NOT NULL DEFAULT 0,
		enabled INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE task_runs (
		id TEXT PRIMARY KEY,
		task_name TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		status TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX idx_task_runs_task ON task_runs(task_name, started_at);

	CREATE TABLE sessions (
		id TEXT PRIMARY KEY,
		channel TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);`,
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS _migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM _migrations").Scan(&current); err != nil {
		return fmt.Errorf("read version: %w", err)
	}

	for i, stmt := range migrations {
		version := i + 1
		if version <= current {
			continue
		}
		if err := applyMigration(db, version, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", version, err)
		}
	}
	return nil
}

func applyMigration(db *sql.DB, version int, stmt string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(stmt); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO _migrations (version) VALUES (?)", version); err != nil {
		return err
	}
	return tx.Commit()
}
