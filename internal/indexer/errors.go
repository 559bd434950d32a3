// Package indexer implements the core graph-population workflow: the
// per-task state machine, the incremental range tracker, the idempotent
// graph upsert engine, and the rate-limit backoff controller.
package indexer

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for workflow contract violations.
var (
	// ErrInvariantViolation is returned when a range-tracker update would
	// shrink an account's indexed window. Always fatal, never retried.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrUpstreamData marks a malformed item in a fetched batch. The
	// offending item is skipped and logged; batch processing continues.
	ErrUpstreamData = errors.New("malformed upstream item")
)

// Suspension is the durable continuation emitted when a task hits a rate
// limit: the task stays in processing, Cursor names the account subscenario
// to restart, and the task must not be re-delivered before ResumeAt.
// Suspension implements error so it can travel up the workflow call stack,
// but it is an outcome, not a failure.
type Suspension struct {
	TaskID   uuid.UUID
	Cursor   int
	ResumeAt time.Time
}

// Error implements the error interface.
func (s *Suspension) Error() string {
	return fmt.Sprintf(
		"task %s suspended at account %d until %s",
		s.TaskID,
		s.Cursor,
		s.ResumeAt.UTC().Format(time.RFC3339),
	)
}

// AsSuspension extracts a Suspension from an error chain.
func AsSuspension(err error) (*Suspension, bool) {
	var suspension *Suspension
	if errors.As(err, &suspension) {
		return suspension, true
	}
	return nil, false
}
