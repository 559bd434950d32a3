// Package service provides application-level services sitting between the
// HTTP API and the stores: submission validation, persistence, and queue
// hand-off for indexing tasks.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tweetscape/indexer/internal/domain"
	"github.com/tweetscape/indexer/internal/store"
	"github.com/tweetscape/indexer/internal/task"
)

// Common sentinel errors for TaskService. The API layer maps these to HTTP
// status codes with errors.Is.
var (
	// ErrTaskNotFound indicates that the requested task does not exist.
	ErrTaskNotFound = errors.New("task not found")
)

// TaskServiceError wraps unexpected errors from the task service with
// context.
type TaskServiceError struct {
	// Operation is the operation that failed (e.g., "submit_task")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for TaskServiceError.
func (e *TaskServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("task service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *TaskServiceError) Unwrap() error {
	return e.Err
}

// TaskService provides task submission and status polling.
type TaskService interface {
	// SubmitTask validates and persists a new indexing task and enqueues
	// it for processing. Domain validation errors are returned unwrapped
	// so the API layer can map them to 400s.
	SubmitTask(
		ctx context.Context,
		requesterID string,
		accountIDs []string,
		kind domain.TaskKind,
	) (*domain.Task, error)

	// GetTask retrieves a task by ID for status polling.
	// Returns ErrTaskNotFound if the task does not exist.
	GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error)
}

// taskServiceImpl implements the TaskService interface
type taskServiceImpl struct {
	db     *sql.DB
	tasks  store.TaskStore
	queue  task.QueueWriter
	logger *slog.Logger
}

// NewTaskService creates a new TaskService.
// It returns an error if any of the required dependencies are nil.
func NewTaskService(
	db *sql.DB,
	tasks store.TaskStore,
	queue task.QueueWriter,
	logger *slog.Logger,
) (TaskService, error) {
	if db == nil {
		return nil, &TaskServiceError{Operation: "create_service", Message: "db cannot be nil"}
	}
	if tasks == nil {
		return nil, &TaskServiceError{Operation: "create_service", Message: "tasks cannot be nil"}
	}
	if queue == nil {
		return nil, &TaskServiceError{Operation: "create_service", Message: "queue cannot be nil"}
	}
	if logger == nil {
		return nil, &TaskServiceError{Operation: "create_service", Message: "logger cannot be nil"}
	}
	return &taskServiceImpl{db: db, tasks: tasks, queue: queue, logger: logger}, nil
}

// SubmitTask validates, persists, and enqueues a new indexing task. The row
// is the source of truth: if the enqueue fails after the save, the task
// stays queued and the runner's monitors re-deliver it.
func (s *taskServiceImpl) SubmitTask(
	ctx context.Context,
	requesterID string,
	accountIDs []string,
	kind domain.TaskKind,
) (*domain.Task, error) {
	if kind == "" {
		kind = domain.TaskKindTimeline
	}

	t, err := domain.NewTask(requesterID, accountIDs, kind)
	if err != nil {
		return nil, err
	}

	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		return s.tasks.WithTx(tx).Save(ctx, t)
	})
	if err != nil {
		return nil, &TaskServiceError{
			Operation: "submit_task",
			Message:   "failed to save task",
			Err:       err,
		}
	}

	if err := s.queue.Enqueue(ctx, t.ID); err != nil {
		s.logger.Warn("task saved but enqueue failed, monitors will re-deliver",
			"task_id", t.ID, "error", err)
	}

	s.logger.Info("task submitted",
		"task_id", t.ID,
		"requester_id", requesterID,
		"kind", t.Kind,
		"accounts", len(accountIDs))

	return t, nil
}

// GetTask retrieves a task by ID for status polling.
func (s *taskServiceImpl) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	t, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, &TaskServiceError{
			Operation: "get_task",
			Message:   "failed to load task",
			Err:       err,
		}
	}
	return t, nil
}
