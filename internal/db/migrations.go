package db

import (
	"fmt"
)

// Migrate runs all database migrations
func (db *DB) Migrate() error {
	// Create migrations table if not exists
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migration001},
		{2, migration002},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to run migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}
	}

	return nil
}

const migration001 = `
-- App settings (key-value store)
CREATE TABLE settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Finished scans
CREATE TABLE scan_runs (
    id INTEGER PRIMARY KEY,
    task_id TEXT UNIQUE NOT NULL,
    scheduled_job_id INTEGER,
    target_path TEXT NOT NULL,
    target_size INTEGER NOT NULL,
    max_depth INTEGER NOT NULL,
    status TEXT NOT NULL,
    started_at DATETIME NOT NULL,
    completed_at DATETIME,
    scanned_count INTEGER DEFAULT 0,
    total_entries INTEGER DEFAULT 0,
    processed_entries INTEGER DEFAULT 0,
    total_cleanable INTEGER DEFAULT 0,
    prompt_tokens INTEGER DEFAULT 0,
    completion_tokens INTEGER DEFAULT 0,
    total_tokens INTEGER DEFAULT 0,
    error_message TEXT
);

CREATE INDEX idx_scan_runs_started_at ON scan_runs(started_at);
CREATE INDEX idx_scan_runs_job ON scan_runs(scheduled_job_id);

-- Recommendations of a scan, in discovery order
CREATE TABLE deletable_items (
    id INTEGER PRIMARY KEY,
    scan_run_id INTEGER NOT NULL REFERENCES scan_runs(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    path TEXT NOT NULL,
    size INTEGER NOT NULL,
    kind TEXT NOT NULL,
    purpose TEXT NOT NULL DEFAULT '',
    reason TEXT NOT NULL DEFAULT '',
    risk TEXT NOT NULL DEFAULT 'low'
);

CREATE INDEX idx_deletable_items_scan_run_id ON deletable_items(scan_run_id);

-- Scheduled scans
CREATE TABLE scheduled_jobs (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    target_path TEXT NOT NULL,
    target_size_gb REAL NOT NULL DEFAULT 1,
    max_depth INTEGER NOT NULL DEFAULT 5,
    cron_expression TEXT NOT NULL,
    enabled BOOLEAN DEFAULT 1,
    last_run_at DATETIME,
    next_run_at DATETIME,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

const migration002 = `
-- Deletions performed through the API (audit log)
CREATE TABLE actions (
    id INTEGER PRIMARY KEY,
    action_type TEXT NOT NULL,
    files_processed INTEGER DEFAULT 0,
    files_failed INTEGER DEFAULT 0,
    bytes_freed INTEGER DEFAULT 0,
    started_at DATETIME NOT NULL,
    completed_at DATETIME
);

CREATE INDEX idx_actions_started_at ON actions(started_at);
`
