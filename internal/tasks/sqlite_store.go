package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/justmadeid/social-services/internal/database"
	"github.com/justmadeid/social-services/internal/models"
	"github.com/justmadeid/social-services/internal/scraper"
)

// SQLiteStore persists tasks and scrape logs.
type SQLiteStore struct {
	db       *sql.DB
	logger   *slog.Logger
	isMemory bool
	now      func() time.Time
}

// NewSQLiteStore creates the task tables on db if needed.
func NewSQLiteStore(db *sql.DB, isMemory bool, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store := &SQLiteStore{
		db:       db,
		logger:   logger.With("component", "task-store"),
		isMemory: isMemory,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate tasks: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		operation TEXT NOT NULL,
		params_json TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL DEFAULT 'PENDING',
		progress INTEGER NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT '',
		result_json TEXT,
		error_type TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status, created_at);

	CREATE TABLE IF NOT EXISTS scrape_logs (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		operation TEXT NOT NULL,
		parameters TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL,
		result_size INTEGER NOT NULL DEFAULT 0,
		execution_time_seconds REAL NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_scrape_logs_task ON scrape_logs(task_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

const taskColumns = `id, operation, params_json, status, progress, message, result_json,
	error_type, error_message, created_at, started_at, completed_at`

// Create inserts a pending task. ID and CreatedAt are filled in.
func (s *SQLiteStore) Create(ctx context.Context, t *Task) error {
	if t.ID == "" {
		t.ID = ulid.Make().String()
	}
	t.Status = StatusPending
	t.CreatedAt = s.now()
	if len(t.Params) == 0 {
		t.Params = []byte("{}")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, operation, params_json, status, progress, message, created_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)`,
		t.ID, string(t.Operation), string(t.Params), string(t.Status), t.Message, formatTime(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// Get returns the task with the given id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	return t, nil
}

// ClaimPending atomically moves the oldest pending task to PROCESSING and
// returns it. It returns nil, nil when the queue is empty.
func (s *SQLiteStore) ClaimPending(ctx context.Context, message string) (*Task, error) {
	now := formatTime(s.now())
	row := s.db.QueryRowContext(ctx, `
		UPDATE tasks
		SET status = 'PROCESSING', progress = 10, message = ?, started_at = ?
		WHERE id = (
			SELECT id FROM tasks
			WHERE status = 'PENDING'
			ORDER BY created_at ASC, id ASC
			LIMIT 1
		)
		RETURNING `+taskColumns, message, now)

	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}
	return t, nil
}

// UpdateProgress records progress on a processing task. It reports false
// when the task is no longer processing, e.g. after a revoke.
func (s *SQLiteStore) UpdateProgress(ctx context.Context, id string, progress int, message string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET progress = ?, message = ? WHERE id = ? AND status = 'PROCESSING'`,
		progress, message, id)
	if err != nil {
		return false, fmt.Errorf("failed to update task progress: %w", err)
	}
	return affected(res)
}

// Complete stores the result of a processing task. It reports false when the
// task was revoked meanwhile; the result is then discarded.
func (s *SQLiteStore) Complete(ctx context.Context, id string, result []byte, message string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = 'SUCCESS', progress = 100, message = ?, result_json = ?, completed_at = ?
		WHERE id = ? AND status = 'PROCESSING'`,
		message, string(result), formatTime(s.now()), id)
	if err != nil {
		return false, fmt.Errorf("failed to complete task: %w", err)
	}
	return affected(res)
}

// Fail marks a processing task as failed.
func (s *SQLiteStore) Fail(ctx context.Context, id, errorType, errorMessage string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = 'FAILURE', message = ?, error_type = ?, error_message = ?, completed_at = ?
		WHERE id = ? AND status = 'PROCESSING'`,
		"Task failed", errorType, errorMessage, formatTime(s.now()), id)
	if err != nil {
		return false, fmt.Errorf("failed to fail task: %w", err)
	}
	return affected(res)
}

// Revoke marks a pending or processing task as REVOKED.
func (s *SQLiteStore) Revoke(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE tasks SET status = 'REVOKED', message = 'Task revoked', completed_at = ?
		WHERE id = ? AND status IN ('PENDING', 'PROCESSING')
		RETURNING `+taskColumns, formatTime(s.now()), id)

	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrTaskFinished
	}
	if err != nil {
		return nil, fmt.Errorf("failed to revoke task: %w", err)
	}
	return t, nil
}

// FailInterrupted marks tasks left PROCESSING by a previous run as failed.
func (s *SQLiteStore) FailInterrupted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = 'FAILURE', message = 'Task failed', error_type = ?, error_message = ?, completed_at = ?
		WHERE status = 'PROCESSING'`,
		string(scraper.KindScrapingFailed), "interrupted by service restart", formatTime(s.now()))
	if err != nil {
		return 0, fmt.Errorf("failed to fail interrupted tasks: %w", err)
	}
	return res.RowsAffected()
}

// PurgeFinished deletes terminal tasks completed before cutoff, along with
// their scrape logs.
func (s *SQLiteStore) PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	ts := formatTime(cutoff)
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM scrape_logs WHERE task_id IN (
			SELECT id FROM tasks
			WHERE status IN ('SUCCESS', 'FAILURE', 'REVOKED') AND completed_at < ?
		)`, ts); err != nil {
		return 0, fmt.Errorf("failed to purge scrape logs: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
		DELETE FROM tasks WHERE status IN ('SUCCESS', 'FAILURE', 'REVOKED') AND completed_at < ?`, ts)
	if err != nil {
		return 0, fmt.Errorf("failed to purge tasks: %w", err)
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit purge: %w", err)
	}
	committed = true
	return n, nil
}

// InsertScrapeLog records the outcome of a task.
func (s *SQLiteStore) InsertScrapeLog(ctx context.Context, l *ScrapeLog) error {
	if l.ID == "" {
		l.ID = ulid.Make().String()
	}
	l.CreatedAt = s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scrape_logs (id, task_id, operation, parameters, status, result_size,
			execution_time_seconds, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.TaskID, string(l.Operation), l.Parameters, string(l.Status), l.ResultSize,
		l.ExecutionTime, l.ErrorMessage, formatTime(l.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert scrape log: %w", err)
	}
	return nil
}

// ScrapeLogs returns the log rows of a task, oldest first.
func (s *SQLiteStore) ScrapeLogs(ctx context.Context, taskID string) ([]ScrapeLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, operation, parameters, status, result_size,
			execution_time_seconds, error_message, created_at
		FROM scrape_logs WHERE task_id = ? ORDER BY created_at ASC, id ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scrape logs: %w", err)
	}
	defer rows.Close()

	var out []ScrapeLog
	for rows.Next() {
		var (
			l              ScrapeLog
			op, status, ts string
		)
		if err := rows.Scan(&l.ID, &l.TaskID, &op, &l.Parameters, &status, &l.ResultSize,
			&l.ExecutionTime, &l.ErrorMessage, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan scrape log: %w", err)
		}
		l.Operation = models.Operation(op)
		l.Status = Status(status)
		l.CreatedAt, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, l)
	}
	return out, rows.Err()
}

// Close checkpoints the WAL for file databases. The *sql.DB is owned by the caller.
func (s *SQLiteStore) Close() error {
	if !s.isMemory {
		if err := database.Checkpoint(s.db); err != nil {
			s.logger.Warn("failed to checkpoint WAL before close", "error", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		t                      Task
		op, status, params     string
		result                 sql.NullString
		createdAt              string
		startedAt, completedAt sql.NullString
	)
	if err := row.Scan(
		&t.ID, &op, &params, &status, &t.Progress, &t.Message, &result,
		&t.ErrorType, &t.ErrorMessage, &createdAt, &startedAt, &completedAt,
	); err != nil {
		return nil, err
	}

	t.Operation = models.Operation(op)
	t.Status = Status(status)
	t.Params = []byte(params)
	if result.Valid && result.String != "" {
		t.Result = []byte(result.String)
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	t.StartedAt = parseNullTime(startedAt)
	t.CompletedAt = parseNullTime(completedAt)
	return &t, nil
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// formatTime writes fixed-width UTC timestamps so text comparison orders them.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
