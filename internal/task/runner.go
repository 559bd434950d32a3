package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tweetscape/indexer/internal/domain"
	"github.com/tweetscape/indexer/internal/indexer"
	"github.com/tweetscape/indexer/internal/platform/logger"
	"github.com/tweetscape/indexer/internal/store"
)

// Processor executes one task. A returned *indexer.Suspension is an outcome,
// not a failure: the task stays in processing and is re-delivered after its
// resume time.
type Processor interface {
	Process(ctx context.Context, task *domain.Task) error
}

// RunnerConfig holds configuration for the task runner
type RunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// ResumeCheckInterval defines how often to scan for suspended tasks
	// whose resume time has passed. If zero, defaults to 30 seconds.
	ResumeCheckInterval time.Duration

	// StuckTaskAge defines how long a non-suspended task can sit in
	// processing state before it's presumed orphaned by a crash and
	// re-delivered
	StuckTaskAge time.Duration

	// StuckTaskCheckInterval defines how often to check for stuck tasks
	// If zero, defaults to 5 minutes
	StuckTaskCheckInterval time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:            2,
		ResumeCheckInterval:    30 * time.Second,
		StuckTaskAge:           30 * time.Minute,
		StuckTaskCheckInterval: 5 * time.Minute,
	}
}

// Runner manages background task processing: a worker pool draining the
// queue, startup recovery of unfinished tasks, a resume monitor re-delivering
// suspended tasks, and a stuck-task monitor re-delivering orphaned ones.
type Runner struct {
	tasks      store.TaskStore
	processor  Processor
	queue      QueueReader
	writer     QueueWriter
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	config     RunnerConfig
	logger     *slog.Logger
}

// NewRunner creates a new Runner
func NewRunner(
	tasks store.TaskStore,
	processor Processor,
	queue QueueReader,
	writer QueueWriter,
	config RunnerConfig,
	log *slog.Logger,
) *Runner {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 2
	}
	if config.ResumeCheckInterval == 0 {
		config.ResumeCheckInterval = 30 * time.Second
	}
	if config.StuckTaskCheckInterval == 0 {
		config.StuckTaskCheckInterval = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		tasks:      tasks,
		processor:  processor,
		queue:      queue,
		writer:     writer,
		ctx:        ctx,
		cancelFunc: cancel,
		config:     config,
		logger:     log,
	}
}

// Start recovers unfinished tasks and begins processing
func (r *Runner) Start() error {
	if err := r.Recover(); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.wg.Add(1)
	go r.resumeMonitor()

	r.wg.Add(1)
	go r.stuckTaskMonitor()

	return nil
}

// Stop gracefully shuts down the runner
func (r *Runner) Stop() {
	r.cancelFunc()
	_ = r.writer.Close()
	r.wg.Wait()
}

// Recover re-delivers tasks left unfinished by a previous run: queued tasks
// that never reached a worker, and processing tasks without a resume time,
// which a crash orphaned mid-run. Suspended tasks are left to the resume
// monitor.
func (r *Runner) Recover() error {
	ctx := context.Background()

	queued, err := r.tasks.ListByStatus(ctx, domain.TaskStatusQueued)
	if err != nil {
		return fmt.Errorf("failed to list queued tasks: %w", err)
	}

	processing, err := r.tasks.ListByStatus(ctx, domain.TaskStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to list processing tasks: %w", err)
	}

	var orphaned []*domain.Task
	for _, t := range processing {
		if t.ResumeAt == nil {
			orphaned = append(orphaned, t)
		}
	}

	r.logger.Info("recovering unfinished tasks",
		"queued_count", len(queued),
		"orphaned_count", len(orphaned),
		"suspended_count", len(processing)-len(orphaned))

	for _, t := range append(queued, orphaned...) {
		if err := r.writer.Enqueue(ctx, t.ID); err != nil {
			r.logger.Error("failed to requeue task", "task_id", t.ID, "error", err)
		}
	}

	return nil
}

// worker drains the queue
func (r *Runner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping worker", "worker_id", id)
			return

		case taskID, ok := <-r.queue.GetChannel():
			if !ok {
				r.logger.Debug("task channel closed, stopping worker", "worker_id", id)
				return
			}
			r.ProcessByID(r.ctx, taskID, id)
		}
	}
}

// ProcessByID loads a task and runs it through the processor, interpreting
// the outcome. Safe under at-least-once delivery: a signal for a finished
// task is a no-op, and a signal for a suspended task not yet due is dropped
// (the resume monitor re-delivers it later).
func (r *Runner) ProcessByID(ctx context.Context, taskID uuid.UUID, workerID int) {
	log := r.logger.With("task_id", taskID, "worker_id", workerID)
	ctx = logger.WithLogger(ctx, log)

	t, err := r.tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			log.Warn("signal for unknown task, dropping")
			return
		}
		log.Error("failed to load task", "error", err)
		return
	}

	if t.Status.Terminal() {
		log.Debug("signal for finished task, dropping", "status", t.Status)
		return
	}

	switch t.Status {
	case domain.TaskStatusQueued:
		if err := r.tasks.UpdateStatus(ctx, t.ID, domain.TaskStatusProcessing, ""); err != nil {
			// Another worker claimed it first.
			log.Warn("failed to claim task", "error", err)
			return
		}
		t.Status = domain.TaskStatusProcessing

	case domain.TaskStatusProcessing:
		if t.ResumeAt != nil {
			if time.Now().Before(*t.ResumeAt) {
				log.Debug("suspended task not yet due, dropping",
					"resume_at", t.ResumeAt.UTC().Format(time.RFC3339))
				return
			}
			// Clear the suspension before resuming so the resume monitor
			// stops re-delivering it.
			if err := r.tasks.SetCheckpoint(ctx, t.ID, t.Cursor, nil); err != nil {
				log.Error("failed to clear suspension", "error", err)
				return
			}
			t.ResumeAt = nil
			log.Info("resuming suspended task", "cursor", t.Cursor)
		}
	}

	log.Info("processing task", "kind", t.Kind, "accounts", len(t.AccountIDs), "cursor", t.Cursor)

	err = r.processor.Process(ctx, t)

	if suspension, ok := indexer.AsSuspension(err); ok {
		// The processor persisted the checkpoint; the task stays in
		// processing until the resume monitor re-delivers it.
		log.Info("task suspended",
			"cursor", suspension.Cursor,
			"resume_at", suspension.ResumeAt.UTC().Format(time.RFC3339))
		return
	}

	if err != nil {
		log.Error("task execution failed", "error", err)
		if updateErr := r.tasks.UpdateStatus(ctx, t.ID, domain.TaskStatusFailed, err.Error()); updateErr != nil {
			log.Error("failed to update task status to failed", "error", updateErr)
		}
		return
	}

	log.Info("task completed successfully")
	if updateErr := r.tasks.UpdateStatus(ctx, t.ID, domain.TaskStatusDone, ""); updateErr != nil {
		log.Error("failed to update task status to done", "error", updateErr)
	}
}

// resumeMonitor periodically re-delivers suspended tasks whose resume time
// has passed. The wait is durable: nothing blocks for the suspension window.
func (r *Runner) resumeMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.ResumeCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			ctx := context.Background()
			due, err := r.tasks.ListResumable(ctx, time.Now())
			if err != nil {
				r.logger.Error("failed to scan for resumable tasks", "error", err)
				continue
			}
			for _, t := range due {
				if err := r.writer.Enqueue(ctx, t.ID); err != nil {
					r.logger.Error("failed to re-deliver suspended task",
						"task_id", t.ID, "error", err)
					continue
				}
				r.logger.Info("re-delivered suspended task", "task_id", t.ID, "cursor", t.Cursor)
			}
		}
	}
}

// stuckTaskMonitor periodically re-delivers non-suspended tasks that have
// sat in processing state for too long, presuming their worker crashed
func (r *Runner) stuckTaskMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckTaskCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			ctx := context.Background()

			// Queued tasks older than one check interval lost their signal
			// (enqueue failed after the row was saved); re-deliver them.
			queued, err := r.tasks.ListByStatus(ctx, domain.TaskStatusQueued)
			if err != nil {
				r.logger.Error("failed to check for dropped tasks", "error", err)
				continue
			}
			queuedCutoff := time.Now().Add(-r.config.StuckTaskCheckInterval)
			for _, t := range queued {
				if t.UpdatedAt.After(queuedCutoff) {
					continue
				}
				if err := r.writer.Enqueue(ctx, t.ID); err != nil {
					r.logger.Error("failed to re-deliver dropped task",
						"task_id", t.ID, "error", err)
				}
			}

			processing, err := r.tasks.ListByStatus(ctx, domain.TaskStatusProcessing)
			if err != nil {
				r.logger.Error("failed to check for stuck tasks", "error", err)
				continue
			}

			cutoff := time.Now().Add(-r.config.StuckTaskAge)
			for _, t := range processing {
				if t.ResumeAt != nil || t.UpdatedAt.After(cutoff) {
					continue
				}
				if err := r.writer.Enqueue(ctx, t.ID); err != nil {
					r.logger.Error("failed to re-deliver stuck task",
						"task_id", t.ID, "error", err)
					continue
				}
				r.logger.Info("re-delivered stuck task",
					"task_id", t.ID, "stuck_since", t.UpdatedAt.UTC().Format(time.RFC3339))
			}
		}
	}
}
