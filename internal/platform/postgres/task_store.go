package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tweetscape/indexer/internal/domain"
	"github.com/tweetscape/indexer/internal/platform/logger"
	"github.com/tweetscape/indexer/internal/store"
)

// PostgresTaskStore implements the store.TaskStore interface using PostgreSQL.
type PostgresTaskStore struct {
	db store.DBTX
}

// NewPostgresTaskStore creates a new PostgresTaskStore.
func NewPostgresTaskStore(db store.DBTX) *PostgresTaskStore {
	return &PostgresTaskStore{
		db: db,
	}
}

// Ensure PostgresTaskStore implements store.TaskStore.
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// WithTx returns a new TaskStore instance that uses the provided transaction.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{db: tx}
}

// Save persists a new task to the database.
func (s *PostgresTaskStore) Save(ctx context.Context, task *domain.Task) error {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	accountIDs, err := json.Marshal(task.AccountIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal account IDs: %w", err)
	}

	query := `
		INSERT INTO tasks (id, requester_id, account_ids, kind, status, failure_cause, cursor, resume_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = s.db.ExecContext(ctx, query,
		task.ID,
		task.RequesterID,
		accountIDs,
		task.Kind,
		task.Status,
		task.FailureCause,
		task.Cursor,
		task.ResumeAt,
		task.CreatedAt,
		task.UpdatedAt,
	)

	if err != nil {
		log.Error("failed to save task",
			"task_id", task.ID,
			"error", err)
		return MapError(err)
	}

	return nil
}

// GetByID retrieves a task by its unique ID.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `
		SELECT id, requester_id, account_ids, kind, status, failure_cause, cursor, resume_at, created_at, updated_at
		FROM tasks
		WHERE id = $1
	`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, store.ErrTaskNotFound
		}
		return nil, MapError(err)
	}

	return task, nil
}

// UpdateStatus moves a task to the given status. The legal-transition table
// is enforced with a compare-and-swap on the current status: the update only
// applies while the task is in a status from which the move is legal.
func (s *PostgresTaskStore) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.TaskStatus,
	failureCause string,
) error {
	log := logger.FromContext(ctx)

	sources := domain.TransitionSources(status)
	if len(sources) == 0 {
		return fmt.Errorf("%w: no status may move to %s", store.ErrIllegalTransition, status)
	}

	fromStatuses := make([]string, len(sources))
	for i, s := range sources {
		fromStatuses[i] = string(s)
	}

	query := `
		UPDATE tasks
		SET status = $1, failure_cause = $2, resume_at = NULL, updated_at = $3
		WHERE id = $4 AND status = ANY($5)
	`

	result, err := s.db.ExecContext(ctx, query,
		status,
		failureCause,
		time.Now().UTC(),
		id,
		fromStatuses,
	)
	if err != nil {
		log.Error("failed to update task status",
			"task_id", id,
			"status", status,
			"error", err)
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// Either the task does not exist or its current status does not
		// allow the move. Distinguish the two for the caller.
		var current domain.TaskStatus
		err := s.db.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = $1`, id).
			Scan(&current)
		if err != nil {
			if IsNotFoundError(err) {
				return store.ErrTaskNotFound
			}
			return MapError(err)
		}
		return fmt.Errorf("%w: %s -> %s", store.ErrIllegalTransition, current, status)
	}

	return nil
}

// SetCheckpoint records the durable continuation of a processing task.
func (s *PostgresTaskStore) SetCheckpoint(
	ctx context.Context,
	id uuid.UUID,
	cursor int,
	resumeAt *time.Time,
) error {
	query := `
		UPDATE tasks
		SET cursor = $1, resume_at = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`

	result, err := s.db.ExecContext(ctx, query,
		cursor,
		resumeAt,
		time.Now().UTC(),
		id,
		domain.TaskStatusProcessing,
	)
	if err != nil {
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: task %s is not processing", store.ErrUpdateFailed, id)
	}

	return nil
}

// ListByStatus retrieves all tasks with the given status, oldest first.
func (s *PostgresTaskStore) ListByStatus(
	ctx context.Context,
	status domain.TaskStatus,
) ([]*domain.Task, error) {
	query := `
		SELECT id, requester_id, account_ids, kind, status, failure_cause, cursor, resume_at, created_at, updated_at
		FROM tasks
		WHERE status = $1
		ORDER BY created_at ASC
	`

	return s.queryTasks(ctx, query, status)
}

// ListResumable retrieves processing tasks whose suspension window has passed.
func (s *PostgresTaskStore) ListResumable(
	ctx context.Context,
	now time.Time,
) ([]*domain.Task, error) {
	query := `
		SELECT id, requester_id, account_ids, kind, status, failure_cause, cursor, resume_at, created_at, updated_at
		FROM tasks
		WHERE status = $1 AND resume_at IS NOT NULL AND resume_at <= $2
		ORDER BY resume_at ASC
	`

	return s.queryTasks(ctx, query, domain.TaskStatusProcessing, now)
}

// queryTasks runs a task query and scans the result rows.
func (s *PostgresTaskStore) queryTasks(
	ctx context.Context,
	query string,
	args ...any,
) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, MapError(err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return tasks, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask scans one task row into a domain.Task.
func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task       domain.Task
		accountIDs []byte
		resumeAt   sql.NullTime
	)

	err := row.Scan(
		&task.ID,
		&task.RequesterID,
		&accountIDs,
		&task.Kind,
		&task.Status,
		&task.FailureCause,
		&task.Cursor,
		&resumeAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(accountIDs, &task.AccountIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account IDs: %w", err)
	}

	if resumeAt.Valid {
		t := resumeAt.Time.UTC()
		task.ResumeAt = &t
	}

	return &task, nil
}
