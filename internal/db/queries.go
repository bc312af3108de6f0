package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lyallcooper/reclaim/internal/types"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// Settings queries

// GetSettings returns every stored setting.
func (db *DB) GetSettings() (map[string]string, error) {
	rows, err := db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// GetSetting returns one setting and whether it exists.
func (db *DB) GetSetting(key string) (string, bool, error) {
	var v string
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// SetSettings upserts values in one transaction.
func (db *DB) SetSettings(values map[string]string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	for k, v := range values {
		if _, err := tx.Exec(`
			INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to save setting %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// ScanRun queries

const scanRunColumns = `
	r.id, r.task_id, r.scheduled_job_id, r.target_path, r.target_size, r.max_depth, r.status,
	r.started_at, r.completed_at, r.scanned_count, r.total_entries, r.processed_entries,
	r.total_cleanable, r.prompt_tokens, r.completion_tokens, r.total_tokens, r.error_message,
	(SELECT COUNT(*) FROM deletable_items d WHERE d.scan_run_id = r.id)`

// SaveScanRun stores a finished scan and its recommendations.
func (db *DB) SaveScanRun(snap types.Snapshot, jobID *int64) (*ScanRun, error) {
	var errMsg *string
	if snap.Error != "" {
		errMsg = &snap.Error
	}
	completedAt := time.Now()
	if snap.FinishedAt != nil {
		completedAt = *snap.FinishedAt
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}

	result, err := tx.Exec(`
		INSERT INTO scan_runs (task_id, scheduled_job_id, target_path, target_size, max_depth, status,
			started_at, completed_at, scanned_count, total_entries, processed_entries, total_cleanable,
			prompt_tokens, completion_tokens, total_tokens, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, jobID, snap.TargetPath, snap.TargetSize, snap.MaxDepth, string(snap.Status),
		snap.StartedAt, completedAt, snap.ScannedCount, snap.TotalEntries, snap.ProcessedEntries,
		snap.TotalCleanable, snap.TokenUsage.Prompt, snap.TokenUsage.Completion, snap.TokenUsage.Total,
		errMsg,
	)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to insert scan run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	for _, it := range snap.Deletable {
		if _, err := tx.Exec(`
			INSERT INTO deletable_items (scan_run_id, name, path, size, kind, purpose, reason, risk)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, it.Name, it.Path, it.Size, string(it.Kind), it.Purpose, it.Reason, string(it.Risk),
		); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to insert deletable item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return db.GetScanRun(id)
}

// GetScanRun retrieves a scan run by ID
func (db *DB) GetScanRun(id int64) (*ScanRun, error) {
	row := db.QueryRow(`SELECT `+scanRunColumns+` FROM scan_runs r WHERE r.id = ?`, id)
	return scanScanRun(row)
}

// GetScanRunByTaskID retrieves a scan run by its task identifier
func (db *DB) GetScanRunByTaskID(taskID string) (*ScanRun, error) {
	row := db.QueryRow(`SELECT `+scanRunColumns+` FROM scan_runs r WHERE r.task_id = ?`, taskID)
	return scanScanRun(row)
}

// ListScanRuns returns scan runs with pagination, newest first
func (db *DB) ListScanRuns(limit, offset int) ([]*ScanRun, error) {
	rows, err := db.Query(`SELECT `+scanRunColumns+`
		FROM scan_runs r ORDER BY r.started_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*ScanRun
	for rows.Next() {
		r, err := scanScanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetLastRunForJob returns the most recent scan run for a scheduled job
func (db *DB) GetLastRunForJob(jobID int64) (*ScanRun, error) {
	row := db.QueryRow(`SELECT `+scanRunColumns+`
		FROM scan_runs r WHERE r.scheduled_job_id = ? ORDER BY r.started_at DESC LIMIT 1`, jobID)
	return scanScanRun(row)
}

// ListDeletableItems returns the recommendations of a scan run in discovery order
func (db *DB) ListDeletableItems(scanRunID int64) ([]types.DeletableItem, error) {
	rows, err := db.Query(`
		SELECT name, path, size, kind, purpose, reason, risk
		FROM deletable_items WHERE scan_run_id = ? ORDER BY id`, scanRunID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []types.DeletableItem{}
	for rows.Next() {
		var it types.DeletableItem
		var kind, risk string
		if err := rows.Scan(&it.Name, &it.Path, &it.Size, &kind, &it.Purpose, &it.Reason, &risk); err != nil {
			return nil, err
		}
		it.Kind = types.Kind(kind)
		it.Risk = types.Risk(risk)
		items = append(items, it)
	}
	return items, rows.Err()
}

// DeleteScanRun removes a scan run and its items
func (db *DB) DeleteScanRun(id int64) error {
	_, err := db.Exec("DELETE FROM scan_runs WHERE id = ?", id)
	return err
}

func scanScanRun(row rowScanner) (*ScanRun, error) {
	var r ScanRun
	var status string
	var jobID sql.NullInt64
	var completedAt sql.NullTime
	var errorMsg sql.NullString

	err := row.Scan(&r.ID, &r.TaskID, &jobID, &r.TargetPath, &r.TargetSize, &r.MaxDepth, &status,
		&r.StartedAt, &completedAt, &r.ScannedCount, &r.TotalEntries, &r.ProcessedEntries,
		&r.TotalCleanable, &r.TokenUsage.Prompt, &r.TokenUsage.Completion, &r.TokenUsage.Total,
		&errorMsg, &r.DeletableCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	r.Status = types.Status(status)
	if jobID.Valid {
		r.ScheduledJobID = &jobID.Int64
	}
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	if errorMsg.Valid {
		r.ErrorMessage = &errorMsg.String
	}

	return &r, nil
}

// ScheduledJob queries

const jobColumns = `id, name, target_path, target_size_gb, max_depth, cron_expression,
	enabled, last_run_at, next_run_at, created_at`

// CreateScheduledJob creates a new scheduled job
func (db *DB) CreateScheduledJob(job *ScheduledJob) (*ScheduledJob, error) {
	result, err := db.Exec(`
		INSERT INTO scheduled_jobs (name, target_path, target_size_gb, max_depth, cron_expression, enabled, next_run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.Name, job.TargetPath, job.TargetSizeGB, job.MaxDepth, job.CronExpression, job.Enabled, job.NextRunAt,
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetScheduledJob(id)
}

// GetScheduledJob retrieves a scheduled job by ID
func (db *DB) GetScheduledJob(id int64) (*ScheduledJob, error) {
	row := db.QueryRow(`SELECT `+jobColumns+` FROM scheduled_jobs WHERE id = ?`, id)
	return scanScheduledJob(row)
}

// ListScheduledJobs returns all scheduled jobs
func (db *DB) ListScheduledJobs() ([]*ScheduledJob, error) {
	return db.queryJobs(`SELECT ` + jobColumns + ` FROM scheduled_jobs ORDER BY name`)
}

// GetEnabledJobs returns all enabled scheduled jobs
func (db *DB) GetEnabledJobs() ([]*ScheduledJob, error) {
	return db.queryJobs(`SELECT ` + jobColumns + ` FROM scheduled_jobs WHERE enabled = 1 ORDER BY next_run_at`)
}

func (db *DB) queryJobs(query string, args ...any) ([]*ScheduledJob, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*ScheduledJob
	for rows.Next() {
		j, err := scanScheduledJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// UpdateScheduledJob updates a scheduled job
func (db *DB) UpdateScheduledJob(job *ScheduledJob) error {
	_, err := db.Exec(`
		UPDATE scheduled_jobs SET
			name = ?, target_path = ?, target_size_gb = ?, max_depth = ?,
			cron_expression = ?, enabled = ?, next_run_at = ?
		WHERE id = ?`,
		job.Name, job.TargetPath, job.TargetSizeGB, job.MaxDepth,
		job.CronExpression, job.Enabled, job.NextRunAt, job.ID,
	)
	return err
}

// UpdateJobLastRun updates the last run time and next run time
func (db *DB) UpdateJobLastRun(id int64, lastRun, nextRun time.Time) error {
	_, err := db.Exec(`
		UPDATE scheduled_jobs SET last_run_at = ?, next_run_at = ?
		WHERE id = ?`,
		lastRun, nextRun, id,
	)
	return err
}

// SetJobEnabled enables or disables a job
func (db *DB) SetJobEnabled(id int64, enabled bool) error {
	_, err := db.Exec("UPDATE scheduled_jobs SET enabled = ? WHERE id = ?", enabled, id)
	return err
}

// DeleteScheduledJob deletes a scheduled job
func (db *DB) DeleteScheduledJob(id int64) error {
	_, err := db.Exec("DELETE FROM scheduled_jobs WHERE id = ?", id)
	return err
}

func scanScheduledJob(row rowScanner) (*ScheduledJob, error) {
	var j ScheduledJob
	var lastRun, nextRun sql.NullTime

	err := row.Scan(&j.ID, &j.Name, &j.TargetPath, &j.TargetSizeGB, &j.MaxDepth, &j.CronExpression,
		&j.Enabled, &lastRun, &nextRun, &j.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if lastRun.Valid {
		j.LastRunAt = &lastRun.Time
	}
	if nextRun.Valid {
		j.NextRunAt = &nextRun.Time
	}

	return &j, nil
}

// Action queries

// CreateAction records a completed action
func (db *DB) CreateAction(a *Action) (*Action, error) {
	if a.StartedAt.IsZero() {
		a.StartedAt = time.Now()
	}
	result, err := db.Exec(`
		INSERT INTO actions (action_type, files_processed, files_failed, bytes_freed, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(a.ActionType), a.FilesProcessed, a.FilesFailed, a.BytesFreed, a.StartedAt, a.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	a.ID = id
	return a, nil
}

// ListActions returns actions with pagination, newest first
func (db *DB) ListActions(limit, offset int) ([]*Action, error) {
	rows, err := db.Query(`
		SELECT id, action_type, files_processed, files_failed, bytes_freed, started_at, completed_at
		FROM actions ORDER BY started_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*Action
	for rows.Next() {
		var a Action
		var actionType string
		var completedAt sql.NullTime
		if err := rows.Scan(&a.ID, &actionType, &a.FilesProcessed, &a.FilesFailed, &a.BytesFreed,
			&a.StartedAt, &completedAt); err != nil {
			return nil, err
		}
		a.ActionType = ActionType(actionType)
		if completedAt.Valid {
			a.CompletedAt = &completedAt.Time
		}
		actions = append(actions, &a)
	}
	return actions, rows.Err()
}

// Stats queries

// GetStats returns aggregate history statistics
func (db *DB) GetStats() (*Stats, error) {
	var s Stats
	row := db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(total_cleanable), 0), COALESCE(SUM(total_tokens), 0)
		FROM scan_runs`)
	if err := row.Scan(&s.TotalScans, &s.TotalFound, &s.TotalTokens); err != nil {
		return nil, err
	}

	row = db.QueryRow("SELECT COUNT(*) FROM scan_runs WHERE started_at > ?", time.Now().Add(-24*time.Hour))
	if err := row.Scan(&s.RecentScans); err != nil {
		return nil, err
	}

	row = db.QueryRow("SELECT COALESCE(SUM(bytes_freed), 0) FROM actions")
	if err := row.Scan(&s.TotalFreed); err != nil {
		return nil, err
	}
	return &s, nil
}

// CleanupOldData removes data older than the retention period
func (db *DB) CleanupOldData(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	// Items first so cleanup works even without foreign key enforcement
	_, err := db.Exec(`
		DELETE FROM deletable_items WHERE scan_run_id IN (
			SELECT id FROM scan_runs WHERE completed_at < ?)`, cutoff)
	if err != nil {
		return err
	}

	_, err = db.Exec("DELETE FROM scan_runs WHERE completed_at < ?", cutoff)
	if err != nil {
		return err
	}

	_, err = db.Exec("DELETE FROM actions WHERE started_at < ?", cutoff)
	return err
}
