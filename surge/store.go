package surge

import (
	"context"
	"database/sql"
	"time"

	"github.com/not-mt/zapd/errors"
	"github.com/not-mt/zapd/resource"
)

// Store handles persistence of zap task records
type Store struct {
	db *sql.DB

	// Injectable clock; claim eligibility compares against it
	now func() time.Time
}

// NewStore creates a new zap task store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

const taskColumns = `uuid, resource_kind, resource_id, correlation_id, state,
	duration, runtime, dispatch, attempts, next_attempt_at,
	claimed_by, last_error, error_code, created_at, updated_at`

// scanTask reads one task row. Works for both *sql.Row and *sql.Rows.
func scanTask(row interface{ Scan(dest ...interface{}) error }) (*Task, error) {
	var t Task
	var kind string
	var nextAttemptAt sql.NullTime
	var claimedBy, lastError, errorCode sql.NullString

	err := row.Scan(
		&t.UUID,
		&kind,
		&t.ResourceID,
		&t.CorrelationID,
		&t.State,
		&t.Duration,
		&t.Runtime,
		&t.Dispatch,
		&t.Attempts,
		&nextAttemptAt,
		&claimedBy,
		&lastError,
		&errorCode,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.ResourceKind = resource.Kind(kind)
	if nextAttemptAt.Valid {
		t.NextAttemptAt = nextAttemptAt.Time
	}
	t.ClaimedBy = claimedBy.String
	t.LastError = lastError.String
	t.ErrorCode = ErrorCode(errorCode.String)
	return &t, nil
}

// nullable maps the empty string to SQL NULL.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Insert persists a new zap task record
func (s *Store) Insert(ctx context.Context, task *Task) error {
	query := `
		INSERT INTO zap_tasks (
			uuid, resource_kind, resource_id, correlation_id, state,
			duration, runtime, dispatch, attempts, next_attempt_at,
			claimed_by, last_error, error_code, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		task.UUID,
		string(task.ResourceKind),
		task.ResourceID,
		task.CorrelationID,
		string(task.State),
		task.Duration,
		task.Runtime,
		string(task.Dispatch),
		task.Attempts,
		task.NextAttemptAt.UTC(),
		nullable(task.ClaimedBy),
		nullable(task.LastError),
		nullable(string(task.ErrorCode)),
		task.CreatedAt.UTC(),
		task.UpdatedAt.UTC(),
	)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "failed to insert zap task"), errors.ErrStoreUnavailable)
	}

	return nil
}

// Update persists every mutable column of an existing task record. The
// executor is the single writer for a claimed task, so a full-row write
// cannot clobber concurrent progress.
func (s *Store) Update(ctx context.Context, task *Task) error {
	query := `
		UPDATE zap_tasks
		SET state = ?,
		    runtime = ?,
		    dispatch = ?,
		    attempts = ?,
		    next_attempt_at = ?,
		    claimed_by = ?,
		    last_error = ?,
		    error_code = ?,
		    updated_at = ?
		WHERE uuid = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		string(task.State),
		task.Runtime,
		string(task.Dispatch),
		task.Attempts,
		task.NextAttemptAt.UTC(),
		nullable(task.ClaimedBy),
		nullable(task.LastError),
		nullable(string(task.ErrorCode)),
		task.UpdatedAt.UTC(),
		task.UUID,
	)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "failed to persist zap task"), errors.ErrStoreUnavailable)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("zap task not found: %s", task.UUID)
	}

	return nil
}

// Get retrieves a task by UUID
func (s *Store) Get(ctx context.Context, taskUUID string) (*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM zap_tasks WHERE uuid = ?`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, taskUUID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("zap task not found: %s", taskUUID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get zap task")
	}

	return task, nil
}

// GetForResource retrieves a task by UUID scoped to one resource. A UUID
// polled under the wrong resource kind or id reads as not found.
func (s *Store) GetForResource(ctx context.Context, kind resource.Kind, resourceID int64, taskUUID string) (*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM zap_tasks
		WHERE uuid = ? AND resource_kind = ? AND resource_id = ?`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, taskUUID, string(kind), resourceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("zap task not found for %s/%d: %s", kind, resourceID, taskUUID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get zap task for resource")
	}

	return task, nil
}

// List returns tasks newest first, optionally filtered by dispatch
func (s *Store) List(ctx context.Context, dispatch *Dispatch, limit int) ([]*Task, error) {
	var query string
	var args []interface{}

	baseQuery := `SELECT ` + taskColumns + ` FROM zap_tasks`
	if dispatch != nil {
		query = baseQuery + ` WHERE dispatch = ? ORDER BY created_at DESC LIMIT ?`
		args = []interface{}{string(*dispatch), limit}
	} else {
		query = baseQuery + ` ORDER BY created_at DESC LIMIT ?`
		args = []interface{}{limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list zap tasks")
	}
	defer rows.Close()

	return collectTasks(rows, "zap tasks")
}

// ListForResource returns the zap history of one resource, newest first
func (s *Store) ListForResource(ctx context.Context, kind resource.Kind, resourceID int64, limit int) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM zap_tasks
		WHERE resource_kind = ? AND resource_id = ?
		ORDER BY created_at DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, string(kind), resourceID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list zap tasks for resource")
	}
	defer rows.Close()

	return collectTasks(rows, "resource zap tasks")
}

// ListOrphans returns claimed tasks, oldest claim first. After a crash
// these are the tasks whose claimant no longer exists.
func (s *Store) ListOrphans(ctx context.Context, limit int) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM zap_tasks
		WHERE dispatch = ?
		ORDER BY updated_at ASC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, string(DispatchClaimed), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list orphaned zap tasks")
	}
	defer rows.Close()

	return collectTasks(rows, "orphaned zap tasks")
}

// collectTasks is a helper that scans multiple tasks from query rows
func collectTasks(rows *sql.Rows, context string) ([]*Task, error) {
	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan zap task")
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error iterating %s", context)
	}

	return tasks, nil
}

// Claim atomically takes the oldest due queued task for one worker.
// Returns nil without error when nothing is claimable, including when a
// concurrent worker wins the same row.
func (s *Store) Claim(ctx context.Context, claimant string) (*Task, error) {
	now := s.now().UTC()

	var taskUUID string
	err := s.db.QueryRowContext(ctx, `
		SELECT uuid FROM zap_tasks
		WHERE dispatch = ? AND next_attempt_at <= ?
		ORDER BY next_attempt_at ASC, created_at ASC
		LIMIT 1`,
		string(DispatchQueued), now,
	).Scan(&taskUUID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find claimable zap task")
	}

	// Guarded flip: only one worker can move the row out of queued
	result, err := s.db.ExecContext(ctx, `
		UPDATE zap_tasks
		SET dispatch = ?, claimed_by = ?, updated_at = ?
		WHERE uuid = ? AND dispatch = ?`,
		string(DispatchClaimed), claimant, now, taskUUID, string(DispatchQueued),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to claim zap task")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return nil, nil // Lost the claim race
	}

	task, err := s.Get(ctx, taskUUID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load claimed zap task")
	}
	return task, nil
}

// MarkApplied records the application marker for a task. Returns true on
// first application; false means a previous attempt already committed
// the force increment and the caller must skip it.
//
// Runs on the caller's Querier so the marker commits or rolls back
// together with the increment it guards.
func (s *Store) MarkApplied(ctx context.Context, q resource.Querier, taskUUID string) (bool, error) {
	result, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO zap_applied (task_uuid, applied_at) VALUES (?, ?)`,
		taskUUID, s.now().UTC(),
	)
	if err != nil {
		return false, errors.Wrap(err, "failed to mark zap applied")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}

	return rows == 1, nil
}

// Stats counts tasks per dispatch value
type Stats struct {
	Queued    int `json:"queued"`
	Claimed   int `json:"claimed"`
	Done      int `json:"done"`
	Abandoned int `json:"abandoned"`
	Total     int `json:"total"`
}

// CountByDispatch returns queue statistics in a single pass
func (s *Store) CountByDispatch(ctx context.Context) (*Stats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT dispatch, COUNT(*) FROM zap_tasks GROUP BY dispatch`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count zap tasks")
	}
	defer rows.Close()

	stats := &Stats{}
	for rows.Next() {
		var dispatch string
		var count int
		if err := rows.Scan(&dispatch, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan dispatch count")
		}

		switch Dispatch(dispatch) {
		case DispatchQueued:
			stats.Queued = count
		case DispatchClaimed:
			stats.Claimed = count
		case DispatchDone:
			stats.Done = count
		case DispatchAbandoned:
			stats.Abandoned = count
		}
		stats.Total += count
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating dispatch counts")
	}

	return stats, nil
}

// PruneSettled removes done and abandoned tasks older than the given
// age, along with their application markers. Returns the number of task
// records removed.
func (s *Store) PruneSettled(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().UTC().Add(-olderThan)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin prune transaction")
	}
	defer tx.Rollback()

	// Markers reference tasks, so they go first
	_, err = tx.ExecContext(ctx, `
		DELETE FROM zap_applied
		WHERE task_uuid IN (
			SELECT uuid FROM zap_tasks
			WHERE dispatch IN (?, ?) AND updated_at < ?
		)`,
		string(DispatchDone), string(DispatchAbandoned), cutoff,
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to prune zap markers")
	}

	result, err := tx.ExecContext(ctx, `
		DELETE FROM zap_tasks
		WHERE dispatch IN (?, ?) AND updated_at < ?`,
		string(DispatchDone), string(DispatchAbandoned), cutoff,
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to prune zap tasks")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit prune transaction")
	}

	return int(rows), nil
}
