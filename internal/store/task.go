package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/tweetscape/indexer/internal/domain"
)

// TaskStore defines the interface for task persistence. Tasks are never
// deleted; they are kept for auditing and status polling.
type TaskStore interface {
	// Save persists a new task to the store.
	// Returns validation errors from the domain Task if data is invalid.
	Save(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// UpdateStatus moves a task to the given status, enforcing the legal
	// transition table with a compare-and-swap on the current status.
	// Returns ErrTaskNotFound if the task does not exist and
	// ErrIllegalTransition if the move is not legal.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus, failureCause string) error

	// SetCheckpoint records the durable continuation of a processing task:
	// the index of the next account to process and, when suspended on a
	// rate limit, the earliest time the task may be re-delivered.
	// Returns ErrTaskNotFound if the task does not exist.
	SetCheckpoint(ctx context.Context, id uuid.UUID, cursor int, resumeAt *time.Time) error

	// ListByStatus retrieves all tasks with the given status, oldest first.
	ListByStatus(ctx context.Context, status domain.TaskStatus) ([]*domain.Task, error)

	// ListResumable retrieves processing tasks whose suspension window has
	// passed, i.e. resume_at is set and not after now.
	ListResumable(ctx context.Context, now time.Time) ([]*domain.Task, error)

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	// The transaction is created and managed by the caller.
	WithTx(tx *sql.Tx) TaskStore
}
