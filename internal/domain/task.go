package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the processing state of an indexing task
type TaskStatus string

// Possible task status values
const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusFailed     TaskStatus = "failed"
)

// TaskKind selects which indexing workflow a task runs.
type TaskKind string

// Possible task kinds
const (
	// TaskKindTimeline indexes the timelines of the task's accounts.
	TaskKindTimeline TaskKind = "timeline"

	// TaskKindFollowing indexes the accounts followed by the task's accounts.
	TaskKindFollowing TaskKind = "following"
)

// Common validation errors for Task
var (
	ErrEmptyTaskID       = errors.New("task ID cannot be empty")
	ErrEmptyRequesterID  = errors.New("task requester ID cannot be empty")
	ErrEmptyAccountList  = errors.New("task account list cannot be empty")
	ErrBlankAccountID    = errors.New("task account list contains a blank account ID")
	ErrInvalidTaskStatus = errors.New("invalid task status")
	ErrInvalidTaskKind   = errors.New("invalid task kind")
	ErrIllegalTransition = errors.New("illegal task status transition")
	ErrCursorOutOfBounds = errors.New("task cursor is out of bounds")
)

// taskTransitions is the legal status transition table. Status is monotonic:
// queued -> processing -> {done|failed}. Done and failed are terminal.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusQueued:     {TaskStatusProcessing},
	TaskStatusProcessing: {TaskStatusDone, TaskStatusFailed},
	TaskStatusDone:       {},
	TaskStatusFailed:     {},
}

// CanTransitionTo reports whether moving from s to next is a legal transition.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	for _, allowed := range taskTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionSources returns the statuses from which next can be legally
// reached. Used by stores to guard status updates with a compare-and-swap.
func TransitionSources(next TaskStatus) []TaskStatus {
	var sources []TaskStatus
	for from, allowed := range taskTransitions {
		for _, to := range allowed {
			if to == next {
				sources = append(sources, from)
			}
		}
	}
	return sources
}

// Terminal reports whether s is a terminal status.
func (s TaskStatus) Terminal() bool {
	return len(taskTransitions[s]) == 0
}

// Task represents one graph-population run: a requester donating API quota
// and an ordered list of accounts to index. A task is created queued and is
// mutated only by the workflow instance that owns it; it is never deleted.
//
// Cursor and ResumeAt form the durable continuation: Cursor is the index of
// the next account to process, and a non-nil ResumeAt means the task is
// suspended on a rate limit and must not be re-delivered before that time.
type Task struct {
	ID           uuid.UUID  `json:"id"`
	RequesterID  string     `json:"requester_id"`
	AccountIDs   []string   `json:"account_ids"`
	Kind         TaskKind   `json:"kind"`
	Status       TaskStatus `json:"status"`
	FailureCause string     `json:"failure_cause,omitempty"`
	Cursor       int        `json:"cursor"`
	ResumeAt     *time.Time `json:"resume_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewTask creates a queued Task for the given requester and account list.
// Returns a validation error if the account list is empty or malformed.
func NewTask(requesterID string, accountIDs []string, kind TaskKind) (*Task, error) {
	now := time.Now().UTC()
	task := &Task{
		ID:          uuid.New(),
		RequesterID: requesterID,
		AccountIDs:  accountIDs,
		Kind:        kind,
		Status:      TaskStatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.RequesterID == "" {
		return ErrEmptyRequesterID
	}

	if len(t.AccountIDs) == 0 {
		return ErrEmptyAccountList
	}

	for _, id := range t.AccountIDs {
		if id == "" {
			return ErrBlankAccountID
		}
	}

	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}

	if !isValidTaskKind(t.Kind) {
		return ErrInvalidTaskKind
	}

	if t.Cursor < 0 || t.Cursor > len(t.AccountIDs) {
		return ErrCursorOutOfBounds
	}

	return nil
}

// Transition moves the task to the given status, enforcing the legal
// transition table. Returns ErrIllegalTransition for any other move.
func (t *Task) Transition(next TaskStatus) error {
	if !isValidTaskStatus(next) {
		return ErrInvalidTaskStatus
	}

	if !t.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, t.Status, next)
	}

	t.Status = next
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// isValidTaskStatus checks if the given status is a valid TaskStatus.
func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusQueued, TaskStatusProcessing, TaskStatusDone, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// isValidTaskKind checks if the given kind is a valid TaskKind.
func isValidTaskKind(kind TaskKind) bool {
	switch kind {
	case TaskKindTimeline, TaskKindFollowing:
		return true
	default:
		return false
	}
}
