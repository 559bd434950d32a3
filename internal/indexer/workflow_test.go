package indexer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tweetscape/indexer/internal/domain"
	"github.com/tweetscape/indexer/internal/graph"
	"github.com/tweetscape/indexer/internal/store"
	"github.com/tweetscape/indexer/internal/timeline"
)

// fakeClient scripts the upstream timeline API per test.
type fakeClient struct {
	getAccountInfo func(ctx context.Context, accountRef, token string) (*domain.Account, error)
	getTimeline    func(ctx context.Context, accountID, token string, q timeline.Query) (*domain.Batch, error)
	getFollowing   func(ctx context.Context, accountID, token, pageToken string, pageSize int) ([]domain.Account, string, error)
}

func (c *fakeClient) GetAccountInfo(ctx context.Context, accountRef, token string) (*domain.Account, error) {
	return c.getAccountInfo(ctx, accountRef, token)
}

func (c *fakeClient) GetTimeline(ctx context.Context, accountID, token string, q timeline.Query) (*domain.Batch, error) {
	return c.getTimeline(ctx, accountID, token, q)
}

func (c *fakeClient) GetFollowing(ctx context.Context, accountID, token, pageToken string, pageSize int) ([]domain.Account, string, error) {
	return c.getFollowing(ctx, accountID, token, pageToken, pageSize)
}

// fakeCreds hands out a fixed token and counts refreshes.
type fakeCreds struct {
	mu           sync.Mutex
	token        string
	refreshedTo  string
	refreshCalls int
	refreshErr   error
}

func (c *fakeCreds) AccessToken(ctx context.Context, requesterID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, nil
}

func (c *fakeCreds) Refresh(ctx context.Context, requesterID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshCalls++
	if c.refreshErr != nil {
		return "", c.refreshErr
	}
	c.token = c.refreshedTo
	return c.token, nil
}

// fakeTaskStore is an in-memory store.TaskStore recording checkpoints.
type fakeTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

func (s *fakeTaskStore) Save(ctx context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *task
	s.tasks[task.ID] = &copied
	return nil
}

func (s *fakeTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	copied := *task
	return &copied, nil
}

func (s *fakeTaskStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus, failureCause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	if !task.Status.CanTransitionTo(status) {
		return store.ErrIllegalTransition
	}
	task.Status = status
	task.FailureCause = failureCause
	task.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *fakeTaskStore) SetCheckpoint(ctx context.Context, id uuid.UUID, cursor int, resumeAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	task.Cursor = cursor
	task.ResumeAt = resumeAt
	task.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *fakeTaskStore) ListByStatus(ctx context.Context, status domain.TaskStatus) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Task
	for _, task := range s.tasks {
		if task.Status == status {
			copied := *task
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeTaskStore) ListResumable(ctx context.Context, now time.Time) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Task
	for _, task := range s.tasks {
		if task.Status == domain.TaskStatusProcessing && task.ResumeAt != nil && !task.ResumeAt.After(now) {
			copied := *task
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeTaskStore) WithTx(tx *sql.Tx) store.TaskStore { return s }

// workflowFixture bundles a workflow with every fake it runs on.
type workflowFixture struct {
	workflow *Workflow
	client   *fakeClient
	creds    *fakeCreds
	graph    *graph.MemoryStore
	tasks    *fakeTaskStore
	quota    *QuotaLedger
	now      time.Time
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	client := &fakeClient{}
	creds := &fakeCreds{token: "tok"}
	memory := graph.NewMemoryStore()
	tasks := newFakeTaskStore()
	quota := NewQuotaLedger()

	f := &workflowFixture{
		client: client,
		creds:  creds,
		graph:  memory,
		tasks:  tasks,
		quota:  quota,
		now:    now,
	}
	quota.now = func() time.Time { return f.now }

	engine := NewEngine(memory, fastEngineConfig(), testLogger())
	backoff := BackoffPolicy{
		FallbackDelay: 15 * time.Minute,
		Now:           func() time.Time { return f.now },
	}
	f.workflow = NewWorkflow(client, creds, engine, NewRangeTracker(memory), quota, backoff, tasks, WorkflowConfig{
		PageSize:          100,
		FollowingPageSize: 2,
		MaxFetchAttempts:  3,
		FetchRetryBase:    time.Millisecond,
		BusyRetryDelay:    30 * time.Second,
	})
	return f
}

// newProcessingTask saves a task already claimed by a worker.
func (f *workflowFixture) newProcessingTask(t *testing.T, kind domain.TaskKind, accountIDs ...string) *domain.Task {
	t.Helper()
	task, err := domain.NewTask("req_1", accountIDs, kind)
	require.NoError(t, err)
	require.NoError(t, task.Transition(domain.TaskStatusProcessing))
	require.NoError(t, f.tasks.Save(context.Background(), task))
	return task
}

func postsBatch(authorID string, postIDs ...string) *domain.Batch {
	batch := &domain.Batch{}
	for _, id := range postIDs {
		batch.Posts = append(batch.Posts, domain.Post{ID: id, AuthorID: authorID})
	}
	return batch
}

func scriptedAccount(id string) func(ctx context.Context, accountRef, token string) (*domain.Account, error) {
	return func(ctx context.Context, accountRef, token string) (*domain.Account, error) {
		return &domain.Account{ID: id, Username: "u_" + id}, nil
	}
}

func TestWorkflowIndexesUnindexedAccount(t *testing.T) {
	t.Parallel()

	f := newWorkflowFixture(t)
	f.client.getAccountInfo = scriptedAccount("acct_1")

	var queries []timeline.Query
	f.client.getTimeline = func(ctx context.Context, accountID, token string, q timeline.Query) (*domain.Batch, error) {
		queries = append(queries, q)
		return postsBatch("acct_1", "120", "100", "139"), nil
	}

	task := f.newProcessingTask(t, domain.TaskKindTimeline, "acct_1")
	require.NoError(t, f.workflow.Process(context.Background(), task))

	// First contact takes the newest page unbounded.
	require.Len(t, queries, 1)
	assert.Equal(t, timeline.DirectionNewer, queries[0].Direction)
	assert.Empty(t, queries[0].BoundaryID)

	r, ok, err := f.graph.AccountRange(context.Background(), "acct_1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.IndexedRange{OldestID: "100", NewestID: "139"}, r)

	assert.Equal(t, 3, f.graph.NodeCount(domain.LabelPost))
	assert.True(t, f.graph.HasEdge(domain.RelPosted, "acct_1", "120"))

	stored, err := f.tasks.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Cursor)
	assert.Nil(t, stored.ResumeAt)
}

func TestWorkflowCatchesUpNewerSide(t *testing.T) {
	t.Parallel()

	f := newWorkflowFixture(t)
	ctx := context.Background()
	require.NoError(t, f.graph.SetAccountRange(ctx, "acct_1", domain.IndexedRange{OldestID: "100", NewestID: "139"}))

	f.client.getAccountInfo = scriptedAccount("acct_1")
	var queries []timeline.Query
	f.client.getTimeline = func(ctx context.Context, accountID, token string, q timeline.Query) (*domain.Batch, error) {
		queries = append(queries, q)
		require.Equal(t, timeline.DirectionNewer, q.Direction)
		require.Equal(t, "139", q.BoundaryID)
		if q.UntilID != "" {
			return &domain.Batch{}, nil
		}
		return postsBatch("acct_1", "140", "159"), nil
	}

	task := f.newProcessingTask(t, domain.TaskKindTimeline, "acct_1")
	require.NoError(t, f.workflow.Process(ctx, task))

	// One page of new posts, then the empty page that closes the gap.
	require.Len(t, queries, 2)
	assert.Equal(t, "140", queries[1].UntilID)
	r, _, err := f.graph.AccountRange(ctx, "acct_1")
	require.NoError(t, err)
	assert.Equal(t, domain.IndexedRange{OldestID: "100", NewestID: "159"}, r)
}

func TestWorkflowDrainsMultiPageNewerGap(t *testing.T) {
	t.Parallel()

	f := newWorkflowFixture(t)
	ctx := context.Background()
	require.NoError(t, f.graph.SetAccountRange(ctx, "acct_1", domain.IndexedRange{OldestID: "100", NewestID: "139"}))

	// Three pages of posts newer than 139, served newest first the way the
	// upstream does, each capped from above by the previous page's oldest ID.
	f.client.getAccountInfo = scriptedAccount("acct_1")
	var queries []timeline.Query
	f.client.getTimeline = func(ctx context.Context, accountID, token string, q timeline.Query) (*domain.Batch, error) {
		queries = append(queries, q)
		require.Equal(t, timeline.DirectionNewer, q.Direction)
		require.Equal(t, "139", q.BoundaryID)
		switch q.UntilID {
		case "":
			return postsBatch("acct_1", "200", "199", "198"), nil
		case "198":
			return postsBatch("acct_1", "170", "160"), nil
		case "160":
			return postsBatch("acct_1", "150", "140"), nil
		case "140":
			return &domain.Batch{}, nil
		default:
			return nil, fmt.Errorf("unexpected until_id %q", q.UntilID)
		}
	}

	task := f.newProcessingTask(t, domain.TaskKindTimeline, "acct_1")
	require.NoError(t, f.workflow.Process(ctx, task))
	require.Len(t, queries, 4)

	// Every post in the gap landed in the graph before the window moved, so
	// nothing between the old and new bound is stranded outside it.
	for _, id := range []string{"140", "150", "160", "170", "198", "199", "200"} {
		assert.True(t, f.graph.HasEdge(domain.RelPosted, "acct_1", id), "post %s missing", id)
	}
	r, _, err := f.graph.AccountRange(ctx, "acct_1")
	require.NoError(t, err)
	assert.Equal(t, domain.IndexedRange{OldestID: "100", NewestID: "200"}, r)
}

func TestWorkflowNewerDrainFailureKeepsWindow(t *testing.T) {
	t.Parallel()

	f := newWorkflowFixture(t)
	ctx := context.Background()
	require.NoError(t, f.graph.SetAccountRange(ctx, "acct_1", domain.IndexedRange{OldestID: "100", NewestID: "139"}))

	f.client.getAccountInfo = scriptedAccount("acct_1")
	boom := errors.New("upstream hiccup")
	f.client.getTimeline = func(ctx context.Context, accountID, token string, q timeline.Query) (*domain.Batch, error) {
		if q.UntilID != "" {
			return nil, boom
		}
		return postsBatch("acct_1", "200", "199"), nil
	}

	task := f.newProcessingTask(t, domain.TaskKindTimeline, "acct_1")
	err := f.workflow.Process(ctx, task)
	require.ErrorIs(t, err, boom)

	// The first page is merged but the window has not moved: a retry walks
	// the same gap again instead of leaving 140..198 unreachable.
	r, _, rangeErr := f.graph.AccountRange(ctx, "acct_1")
	require.NoError(t, rangeErr)
	assert.Equal(t, domain.IndexedRange{OldestID: "100", NewestID: "139"}, r)
}

func TestWorkflowSeedsSinglePostAccount(t *testing.T) {
	t.Parallel()

	f := newWorkflowFixture(t)
	ctx := context.Background()
	f.client.getAccountInfo = scriptedAccount("acct_1")
	f.client.getTimeline = func(ctx context.Context, accountID, token string, q timeline.Query) (*domain.Batch, error) {
		return postsBatch("acct_1", "100"), nil
	}

	// An account whose first page holds exactly one post starts with a
	// degenerate window where both bounds are that post.
	task := f.newProcessingTask(t, domain.TaskKindTimeline, "acct_1")
	require.NoError(t, f.workflow.Process(ctx, task))

	r, ok, err := f.graph.AccountRange(ctx, "acct_1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.IndexedRange{OldestID: "100", NewestID: "100"}, r)
}

func TestWorkflowBackfillsOlderSideWhenCaughtUp(t *testing.T) {
	t.Parallel()

	f := newWorkflowFixture(t)
	ctx := context.Background()
	require.NoError(t, f.graph.SetAccountRange(ctx, "acct_1", domain.IndexedRange{OldestID: "100", NewestID: "139"}))

	f.client.getAccountInfo = scriptedAccount("acct_1")
	f.client.getTimeline = func(ctx context.Context, accountID, token string, q timeline.Query) (*domain.Batch, error) {
		switch q.Direction {
		case timeline.DirectionNewer:
			require.Equal(t, "139", q.BoundaryID)
			return &domain.Batch{}, nil
		default:
			require.Equal(t, "100", q.BoundaryID)
			return postsBatch("acct_1", "99", "80"), nil
		}
	}

	task := f.newProcessingTask(t, domain.TaskKindTimeline, "acct_1")
	require.NoError(t, f.workflow.Process(ctx, task))

	r, _, err := f.graph.AccountRange(ctx, "acct_1")
	require.NoError(t, err)
	assert.Equal(t, domain.IndexedRange{OldestID: "80", NewestID: "139"}, r)
}

func TestWorkflowFullyIndexedAccountIsNoOp(t *testing.T) {
	t.Parallel()

	f := newWorkflowFixture(t)
	ctx := context.Background()
	want := domain.IndexedRange{OldestID: "100", NewestID: "139"}
	require.NoError(t, f.graph.SetAccountRange(ctx, "acct_1", want))

	f.client.getAccountInfo = scriptedAccount("acct_1")
	f.client.getTimeline = func(ctx context.Context, accountID, token string, q timeline.Query) (*domain.Batch, error) {
		return &domain.Batch{}, nil
	}

	task := f.newProcessingTask(t, domain.TaskKindTimeline, "acct_1")
	require.NoError(t, f.workflow.Process(ctx, task))

	r, _, err := f.graph.AccountRange(ctx, "acct_1")
	require.NoError(t, err)
	assert.Equal(t, want, r)
	assert.Equal(t, 0, f.graph.NodeCount(domain.LabelPost))
}

func TestWorkflowRateLimitSuspendsAndResumes(t *testing.T) {
	t.Parallel()

	f := newWorkflowFixture(t)
	ctx := context.Background()
	resetAt := f.now.Add(10 * time.Minute)

	infoCalls := make(map[string]int)
	limited := true
	f.client.getAccountInfo = func(ctx context.Context, accountRef, token string) (*domain.Account, error) {
		infoCalls[accountRef]++
		if accountRef == "acct_2" && limited {
			return nil, &timeline.RateLimitError{ResetAt: resetAt}
		}
		return &domain.Account{ID: accountRef}, nil
	}
	f.client.getTimeline = func(ctx context.Context, accountID, token string, q timeline.Query) (*domain.Batch, error) {
		return postsBatch(accountID, accountID+"00"), nil
	}

	task := f.newProcessingTask(t, domain.TaskKindTimeline, "acct_1", "acct_2")
	err := f.workflow.Process(ctx, task)

	suspension, ok := AsSuspension(err)
	require.True(t, ok, "expected a suspension, got %v", err)
	assert.Equal(t, task.ID, suspension.TaskID)
	assert.Equal(t, 1, suspension.Cursor)
	assert.Equal(t, resetAt, suspension.ResumeAt)

	// The continuation is durable and the task is still processing.
	stored, getErr := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.TaskStatusProcessing, stored.Status)
	assert.Equal(t, 1, stored.Cursor)
	require.NotNil(t, stored.ResumeAt)
	assert.Equal(t, resetAt, *stored.ResumeAt)

	// The requester's quota window is closed until the reset time.
	ok, until := f.quota.Acquire("req_1")
	assert.False(t, ok)
	assert.Equal(t, resetAt, until)

	// Resume after the window reopens: the runner clears the suspension and
	// re-delivers.
	f.now = resetAt.Add(time.Second)
	limited = false
	require.NoError(t, f.tasks.SetCheckpoint(ctx, task.ID, stored.Cursor, nil))
	resumed, getErr := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, getErr)
	require.NoError(t, f.workflow.Process(ctx, resumed))

	// Finished accounts are never replayed.
	assert.Equal(t, 1, infoCalls["acct_1"])
	assert.Equal(t, 2, infoCalls["acct_2"])

	final, getErr := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, getErr)
	assert.Equal(t, 2, final.Cursor)
}

func TestWorkflowBusyQuotaSuspendsBriefly(t *testing.T) {
	t.Parallel()

	f := newWorkflowFixture(t)
	ctx := context.Background()

	// Another task for the same requester holds the slot.
	ok, _ := f.quota.Acquire("req_1")
	require.True(t, ok)

	task := f.newProcessingTask(t, domain.TaskKindTimeline, "acct_1")
	before := time.Now()
	err := f.workflow.Process(ctx, task)
	after := time.Now()

	suspension, ok := AsSuspension(err)
	require.True(t, ok, "expected a suspension, got %v", err)
	assert.Equal(t, 0, suspension.Cursor)
	assert.False(t, suspension.ResumeAt.Before(before.Add(30*time.Second)))
	assert.False(t, suspension.ResumeAt.After(after.Add(30*time.Second)))
}

func TestWorkflowRefreshesRejectedToken(t *testing.T) {
	t.Parallel()

	f := newWorkflowFixture(t)
	f.creds.token = "stale"
	f.creds.refreshedTo = "fresh"

	f.client.getAccountInfo = func(ctx context.Context, accountRef, token string) (*domain.Account, error) {
		if token != "fresh" {
			return nil, timeline.ErrUnauthorized
		}
		return &domain.Account{ID: "acct_1"}, nil
	}
	f.client.getTimeline = func(ctx context.Context, accountID, token string, q timeline.Query) (*domain.Batch, error) {
		return postsBatch("acct_1", "100"), nil
	}

	task := f.newProcessingTask(t, domain.TaskKindTimeline, "acct_1")
	require.NoError(t, f.workflow.Process(context.Background(), task))
	assert.Equal(t, 1, f.creds.refreshCalls)
}

func TestWorkflowFailsOnUnusableCredential(t *testing.T) {
	t.Parallel()

	f := newWorkflowFixture(t)
	f.creds.token = "stale"
	f.creds.refreshedTo = "still-stale"

	f.client.getAccountInfo = func(ctx context.Context, accountRef, token string) (*domain.Account, error) {
		return nil, timeline.ErrUnauthorized
	}

	task := f.newProcessingTask(t, domain.TaskKindTimeline, "acct_1")
	err := f.workflow.Process(context.Background(), task)
	assert.ErrorIs(t, err, timeline.ErrCredential)

	_, isSuspension := AsSuspension(err)
	assert.False(t, isSuspension)
}

func TestWorkflowRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	f := newWorkflowFixture(t)
	f.client.getAccountInfo = scriptedAccount("acct_1")

	calls := 0
	f.client.getTimeline = func(ctx context.Context, accountID, token string, q timeline.Query) (*domain.Batch, error) {
		calls++
		if calls == 1 {
			return nil, fmt.Errorf("%w: connection reset", timeline.ErrTransient)
		}
		return postsBatch("acct_1", "100"), nil
	}

	task := f.newProcessingTask(t, domain.TaskKindTimeline, "acct_1")
	require.NoError(t, f.workflow.Process(context.Background(), task))
	assert.Equal(t, 2, calls)
}

func TestWorkflowFailsAfterTransientRetriesExhausted(t *testing.T) {
	t.Parallel()

	f := newWorkflowFixture(t)
	f.client.getAccountInfo = scriptedAccount("acct_1")

	calls := 0
	f.client.getTimeline = func(ctx context.Context, accountID, token string, q timeline.Query) (*domain.Batch, error) {
		calls++
		return nil, fmt.Errorf("%w: upstream 503", timeline.ErrTransient)
	}

	task := f.newProcessingTask(t, domain.TaskKindTimeline, "acct_1")
	err := f.workflow.Process(context.Background(), task)
	assert.ErrorIs(t, err, timeline.ErrTransient)
	assert.Equal(t, 3, calls)
}

func TestWorkflowWidensOnlyAfterGraphWrite(t *testing.T) {
	t.Parallel()

	f := newWorkflowFixture(t)
	ctx := context.Background()
	f.client.getAccountInfo = scriptedAccount("acct_1")

	boom := errors.New("neo4j unavailable")
	f.client.getTimeline = func(ctx context.Context, accountID, token string, q timeline.Query) (*domain.Batch, error) {
		// Fail every graph write from here on; the window must not move.
		f.graph.FailWrites(100, boom)
		return postsBatch("acct_1", "100", "139"), nil
	}

	task := f.newProcessingTask(t, domain.TaskKindTimeline, "acct_1")
	err := f.workflow.Process(ctx, task)
	require.ErrorIs(t, err, boom)

	_, ok, rangeErr := f.graph.AccountRange(ctx, "acct_1")
	require.NoError(t, rangeErr)
	assert.False(t, ok)
}

func TestWorkflowIndexesFollowing(t *testing.T) {
	t.Parallel()

	f := newWorkflowFixture(t)
	ctx := context.Background()

	// A stale edge from an earlier sync; acct_9 has been unfollowed since.
	require.NoError(t, f.graph.UpsertEdges(ctx, followsSpec, []graph.Edge{
		{FromKey: "acct_1", ToKey: "acct_9"},
	}))

	f.client.getAccountInfo = scriptedAccount("acct_1")
	f.client.getFollowing = func(ctx context.Context, accountID, token, pageToken string, pageSize int) ([]domain.Account, string, error) {
		require.Equal(t, "acct_1", accountID)
		switch pageToken {
		case "":
			return []domain.Account{{ID: "acct_2"}, {ID: "acct_3"}}, "page2", nil
		case "page2":
			return []domain.Account{{ID: "acct_4"}}, "", nil
		default:
			return nil, "", fmt.Errorf("unexpected page token %q", pageToken)
		}
	}

	task := f.newProcessingTask(t, domain.TaskKindFollowing, "acct_1")
	require.NoError(t, f.workflow.Process(ctx, task))

	assert.Equal(t, 3, f.graph.EdgeCount(domain.RelFollows))
	assert.True(t, f.graph.HasEdge(domain.RelFollows, "acct_1", "acct_2"))
	assert.True(t, f.graph.HasEdge(domain.RelFollows, "acct_1", "acct_3"))
	assert.True(t, f.graph.HasEdge(domain.RelFollows, "acct_1", "acct_4"))
	assert.False(t, f.graph.HasEdge(domain.RelFollows, "acct_1", "acct_9"))
}
