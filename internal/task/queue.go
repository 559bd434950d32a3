package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Common errors returned by queues
var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

// QueueWriter enqueues process-task signals. The signal carries only the
// task ID; the worker loads the task row when it picks the signal up, so a
// re-delivered signal always sees the task's current state.
// Version: 1.0
type QueueWriter interface {
	// Enqueue adds a task signal to the queue for processing.
	// Returns an error if the queue is full or closed.
	Enqueue(ctx context.Context, taskID uuid.UUID) error

	// Close closes the queue, preventing further submission.
	Close() error
}

// QueueReader provides read-only access to the signal channel, allowing
// workers to consume signals without the ability to enqueue.
// Version: 1.0
type QueueReader interface {
	// GetChannel returns a read-only channel for consuming task signals.
	GetChannel() <-chan uuid.UUID
}

// ChannelQueue implements an in-process buffered queue satisfying both
// QueueReader and QueueWriter.
type ChannelQueue struct {
	signals chan uuid.UUID
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewChannelQueue creates a new in-process queue with the specified buffer
// size.
func NewChannelQueue(size int, logger *slog.Logger) *ChannelQueue {
	return &ChannelQueue{
		signals: make(chan uuid.UUID, size),
		logger:  logger,
	}
}

// Enqueue adds a task signal to the queue for processing.
func (q *ChannelQueue) Enqueue(_ context.Context, taskID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.signals <- taskID:
		q.logger.Debug("task enqueued",
			"task_id", taskID,
			"queue_len", len(q.signals),
			"queue_cap", cap(q.signals))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.signals))
	}
}

// Close closes the queue, preventing further submission.
func (q *ChannelQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.signals)
		q.logger.Info("task queue closed")
	}
	return nil
}

// GetChannel returns a read-only channel for consuming task signals.
func (q *ChannelQueue) GetChannel() <-chan uuid.UUID {
	return q.signals
}
