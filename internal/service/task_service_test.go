package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tweetscape/indexer/internal/domain"
	"github.com/tweetscape/indexer/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubTaskStore is a minimal in-memory store.TaskStore for service tests.
type stubTaskStore struct {
	mu      sync.Mutex
	tasks   map[uuid.UUID]*domain.Task
	saveErr error
}

func newStubTaskStore() *stubTaskStore {
	return &stubTaskStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

func (s *stubTaskStore) Save(ctx context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	copied := *task
	s.tasks[task.ID] = &copied
	return nil
}

func (s *stubTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	copied := *task
	return &copied, nil
}

func (s *stubTaskStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus, failureCause string) error {
	return nil
}

func (s *stubTaskStore) SetCheckpoint(ctx context.Context, id uuid.UUID, cursor int, resumeAt *time.Time) error {
	return nil
}

func (s *stubTaskStore) ListByStatus(ctx context.Context, status domain.TaskStatus) ([]*domain.Task, error) {
	return nil, nil
}

func (s *stubTaskStore) ListResumable(ctx context.Context, now time.Time) ([]*domain.Task, error) {
	return nil, nil
}

func (s *stubTaskStore) WithTx(tx *sql.Tx) store.TaskStore { return s }

// stubQueue records enqueued signals and can fail on demand.
type stubQueue struct {
	mu         sync.Mutex
	enqueued   []uuid.UUID
	enqueueErr error
}

func (q *stubQueue) Enqueue(ctx context.Context, taskID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.enqueued = append(q.enqueued, taskID)
	return nil
}

func (q *stubQueue) Close() error { return nil }

// newTxDB backs the service's transaction wrapper. The stub store ignores
// the *sql.Tx, so only Begin/Commit/Rollback reach the mock.
func newTxDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return db, mock
}

func TestNewTaskServiceValidatesDependencies(t *testing.T) {
	t.Parallel()

	db, _ := newTxDB(t)

	_, err := NewTaskService(nil, newStubTaskStore(), &stubQueue{}, testLogger())
	assert.Error(t, err)
	_, err = NewTaskService(db, nil, &stubQueue{}, testLogger())
	assert.Error(t, err)
	_, err = NewTaskService(db, newStubTaskStore(), nil, testLogger())
	assert.Error(t, err)
	_, err = NewTaskService(db, newStubTaskStore(), &stubQueue{}, nil)
	assert.Error(t, err)
	_, err = NewTaskService(db, newStubTaskStore(), &stubQueue{}, testLogger())
	assert.NoError(t, err)
}

func TestSubmitTaskPersistsAndEnqueues(t *testing.T) {
	t.Parallel()

	db, mock := newTxDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	tasks := newStubTaskStore()
	queue := &stubQueue{}
	svc, err := NewTaskService(db, tasks, queue, testLogger())
	require.NoError(t, err)

	task, err := svc.SubmitTask(context.Background(), "req_1", []string{"acct_1"}, "")
	require.NoError(t, err)

	// An empty kind defaults to timeline indexing.
	assert.Equal(t, domain.TaskKindTimeline, task.Kind)
	assert.Equal(t, domain.TaskStatusQueued, task.Status)

	stored, err := tasks.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, stored.ID)
	assert.Equal(t, []uuid.UUID{task.ID}, queue.enqueued)
}

func TestSubmitTaskRejectsInvalidSubmission(t *testing.T) {
	t.Parallel()

	db, _ := newTxDB(t)
	tasks := newStubTaskStore()
	queue := &stubQueue{}
	svc, err := NewTaskService(db, tasks, queue, testLogger())
	require.NoError(t, err)

	_, err = svc.SubmitTask(context.Background(), "req_1", nil, "")
	assert.ErrorIs(t, err, domain.ErrEmptyAccountList)

	_, err = svc.SubmitTask(context.Background(), "", []string{"acct_1"}, "")
	assert.ErrorIs(t, err, domain.ErrEmptyRequesterID)

	_, err = svc.SubmitTask(context.Background(), "req_1", []string{"acct_1"}, "likes")
	assert.ErrorIs(t, err, domain.ErrInvalidTaskKind)

	assert.Empty(t, queue.enqueued)
}

func TestSubmitTaskSaveFailure(t *testing.T) {
	t.Parallel()

	db, mock := newTxDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	tasks := newStubTaskStore()
	tasks.saveErr = errors.New("connection refused")
	svc, err := NewTaskService(db, tasks, &stubQueue{}, testLogger())
	require.NoError(t, err)

	_, err = svc.SubmitTask(context.Background(), "req_1", []string{"acct_1"}, "")
	require.Error(t, err)

	var svcErr *TaskServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "submit_task", svcErr.Operation)
}

func TestSubmitTaskSucceedsWhenEnqueueFails(t *testing.T) {
	t.Parallel()

	// The saved row is the source of truth; a lost signal is re-delivered by
	// the runner's monitors.
	db, mock := newTxDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	tasks := newStubTaskStore()
	queue := &stubQueue{enqueueErr: errors.New("queue full")}
	svc, err := NewTaskService(db, tasks, queue, testLogger())
	require.NoError(t, err)

	task, err := svc.SubmitTask(context.Background(), "req_1", []string{"acct_1"}, "following")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskKindFollowing, task.Kind)

	_, err = tasks.GetByID(context.Background(), task.ID)
	assert.NoError(t, err)
}

func TestGetTask(t *testing.T) {
	t.Parallel()

	db, mock := newTxDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	tasks := newStubTaskStore()
	svc, err := NewTaskService(db, tasks, &stubQueue{}, testLogger())
	require.NoError(t, err)

	task, err := svc.SubmitTask(context.Background(), "req_1", []string{"acct_1"}, "")
	require.NoError(t, err)

	got, err := svc.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)

	_, err = svc.GetTask(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrTaskNotFound)
}
