package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/tweetscape/indexer/internal/domain"
	"github.com/tweetscape/indexer/internal/platform/logger"
	"github.com/tweetscape/indexer/internal/store"
	"github.com/tweetscape/indexer/internal/timeline"
)

// WorkflowConfig holds tuning knobs for the processing workflow.
type WorkflowConfig struct {
	// PageSize bounds how many posts one timeline fetch returns.
	PageSize int

	// FollowingPageSize bounds how many accounts one following fetch
	// returns.
	FollowingPageSize int

	// MaxFetchAttempts bounds retries of a transiently failing upstream
	// call before the error escalates to the owning task.
	MaxFetchAttempts int

	// FetchRetryBase is the base delay of the exponential backoff between
	// upstream call attempts.
	FetchRetryBase time.Duration

	// BusyRetryDelay is how long a task waits when another task for the
	// same requester currently holds the quota slot.
	BusyRetryDelay time.Duration
}

// DefaultWorkflowConfig returns a WorkflowConfig with reasonable defaults.
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		PageSize:          100,
		FollowingPageSize: 1000,
		MaxFetchAttempts:  3,
		FetchRetryBase:    time.Second,
		BusyRetryDelay:    30 * time.Second,
	}
}

// Workflow processes one task: sequentially, for each named account, it
// resolves the requester's credential, fetches account metadata and one
// timeline page, merges the page into the graph, and widens the account's
// indexed window.
//
// A rate-limited account suspends the whole task: the account cursor and a
// resume time are persisted on the task row, Process returns a Suspension,
// and a later invocation restarts that account's subscenario from the top.
type Workflow struct {
	client  timeline.Client
	creds   timeline.CredentialSource
	engine  *Engine
	tracker *RangeTracker
	quota   *QuotaLedger
	backoff BackoffPolicy
	tasks   store.TaskStore
	config  WorkflowConfig
}

// NewWorkflow creates a Workflow over the given capabilities.
func NewWorkflow(
	client timeline.Client,
	creds timeline.CredentialSource,
	engine *Engine,
	tracker *RangeTracker,
	quota *QuotaLedger,
	backoff BackoffPolicy,
	tasks store.TaskStore,
	config WorkflowConfig,
) *Workflow {
	if config.PageSize <= 0 {
		config.PageSize = 100
	}
	if config.FollowingPageSize <= 0 {
		config.FollowingPageSize = 1000
	}
	if config.MaxFetchAttempts <= 0 {
		config.MaxFetchAttempts = 3
	}
	if config.FetchRetryBase <= 0 {
		config.FetchRetryBase = time.Second
	}
	if config.BusyRetryDelay <= 0 {
		config.BusyRetryDelay = 30 * time.Second
	}
	return &Workflow{
		client:  client,
		creds:   creds,
		engine:  engine,
		tracker: tracker,
		quota:   quota,
		backoff: backoff,
		tasks:   tasks,
		config:  config,
	}
}

// Process runs the task from its persisted account cursor. It returns nil
// when every account completed, a *Suspension when the requester's quota ran
// out mid-task, and any other error when the task must fail.
func (w *Workflow) Process(ctx context.Context, task *domain.Task) error {
	log := logger.FromContext(ctx).With("task_id", task.ID, "requester_id", task.RequesterID)

	ok, until := w.quota.Acquire(task.RequesterID)
	if !ok {
		if until.IsZero() {
			// Another task is spending this requester's quota right now.
			until = time.Now().Add(w.config.BusyRetryDelay)
		}
		return w.suspend(ctx, task, task.Cursor, until)
	}
	defer w.quota.Release(task.RequesterID)

	for i := task.Cursor; i < len(task.AccountIDs); i++ {
		accountRef := task.AccountIDs[i]
		log.Info("processing account",
			"account", accountRef, "cursor", i, "total", len(task.AccountIDs))

		var err error
		switch task.Kind {
		case domain.TaskKindFollowing:
			err = w.indexFollowing(ctx, task.RequesterID, accountRef)
		default:
			err = w.indexTimeline(ctx, task.RequesterID, accountRef)
		}

		var rle *timeline.RateLimitError
		if errors.As(err, &rle) {
			resumeAt := w.backoff.ResumeTime(err)
			w.quota.MarkExhausted(task.RequesterID, resumeAt)
			return w.suspend(ctx, task, i, resumeAt)
		}
		if err != nil {
			return fmt.Errorf("account %s: %w", accountRef, err)
		}

		// Advance the durable cursor so a crash never replays a finished
		// account.
		if err := w.tasks.SetCheckpoint(ctx, task.ID, i+1, nil); err != nil {
			return fmt.Errorf("persisting account cursor: %w", err)
		}
		task.Cursor = i + 1
	}

	return nil
}

// suspend persists the durable continuation and returns the suspension
// outcome.
func (w *Workflow) suspend(ctx context.Context, task *domain.Task, cursor int, resumeAt time.Time) error {
	logger.FromContext(ctx).Info("suspending task",
		"task_id", task.ID, "cursor", cursor, "resume_at", resumeAt.UTC().Format(time.RFC3339))
	if err := w.tasks.SetCheckpoint(ctx, task.ID, cursor, &resumeAt); err != nil {
		return fmt.Errorf("persisting suspension checkpoint: %w", err)
	}
	return &Suspension{TaskID: task.ID, Cursor: cursor, ResumeAt: resumeAt}
}

// indexTimeline runs the per-account subscenario: resolve credential, fetch
// and upsert account metadata, then extend the indexed window. New accounts
// are seeded from their newest page; indexed accounts drain the newer side
// of the window first and backfill one older page once caught up.
func (w *Workflow) indexTimeline(ctx context.Context, requesterID, accountRef string) error {
	log := logger.FromContext(ctx)

	var account *domain.Account
	err := w.call(ctx, requesterID, func(ctx context.Context, token string) error {
		var err error
		account, err = w.client.GetAccountInfo(ctx, accountRef, token)
		return err
	})
	if err != nil {
		return fmt.Errorf("fetching account info: %w", err)
	}

	if err := w.engine.UpsertAccounts(ctx, []domain.Account{*account}); err != nil {
		return fmt.Errorf("upserting account: %w", err)
	}

	r, indexed, err := w.tracker.Get(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("reading indexed range: %w", err)
	}

	if !indexed {
		// First contact: take the newest page and seed the window from it.
		batch, err := w.fetchPage(ctx, requesterID, account.ID, timeline.Query{
			Direction: timeline.DirectionNewer,
			PageSize:  w.config.PageSize,
		})
		if err != nil {
			return err
		}
		if batch.Empty() {
			log.Info("account has no posts", "account_id", account.ID)
			return nil
		}
		if err := w.engine.Apply(ctx, batch); err != nil {
			return err
		}
		oldest, newest := pageBounds(batch.Posts)
		if oldest == "" {
			return nil
		}
		_, err = w.tracker.Seed(ctx, account.ID, oldest, newest)
		return err
	}

	// Catch up on the newer side first. Newer-side pages arrive newest
	// first, so walk down toward the window until the gap is closed,
	// merging every page. The window widens only after the whole gap is in
	// the graph: a failure mid-walk refetches the same posts on resume
	// instead of stranding them outside the window.
	var gapNewest string
	upper := ""
	for {
		batch, err := w.fetchPage(ctx, requesterID, account.ID, timeline.Query{
			Direction:  timeline.DirectionNewer,
			BoundaryID: r.NewestID,
			UntilID:    upper,
			PageSize:   w.config.PageSize,
		})
		if err != nil {
			return err
		}
		if batch.Empty() {
			break
		}
		if err := w.engine.Apply(ctx, batch); err != nil {
			return err
		}
		oldest, newest := pageBounds(batch.Posts)
		if oldest == "" {
			break
		}
		if gapNewest == "" {
			gapNewest = newest
		}
		upper = oldest
	}
	if gapNewest != "" {
		_, err := w.tracker.ExtendNewer(ctx, account.ID, gapNewest)
		return err
	}

	batch, err := w.fetchPage(ctx, requesterID, account.ID, timeline.Query{
		Direction:  timeline.DirectionOlder,
		BoundaryID: r.OldestID,
		PageSize:   w.config.PageSize,
	})
	if err != nil {
		return err
	}
	if batch.Empty() {
		log.Info("account fully indexed", "account_id", account.ID)
		return nil
	}
	if err := w.engine.Apply(ctx, batch); err != nil {
		return err
	}
	oldest, _ := pageBounds(batch.Posts)
	if oldest == "" {
		return nil
	}
	_, err = w.tracker.ExtendOlder(ctx, account.ID, oldest)
	return err
}

// fetchPage fetches one timeline page through the credential and retry
// wrappers.
func (w *Workflow) fetchPage(
	ctx context.Context,
	requesterID, accountID string,
	q timeline.Query,
) (*domain.Batch, error) {
	var batch *domain.Batch
	err := w.call(ctx, requesterID, func(ctx context.Context, token string) error {
		var err error
		batch, err = w.client.GetTimeline(ctx, accountID, token, q)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching timeline page: %w", err)
	}
	return batch, nil
}

// call resolves the requester's access token and runs fn with transient
// retries. A rejected token is refreshed once and the call retried; a second
// rejection means the stored credential is unusable.
func (w *Workflow) call(
	ctx context.Context,
	requesterID string,
	fn func(ctx context.Context, token string) error,
) error {
	token, err := w.creds.AccessToken(ctx, requesterID)
	if err != nil {
		return err
	}

	err = w.withTransientRetry(ctx, func(ctx context.Context) error {
		return fn(ctx, token)
	})
	if !errors.Is(err, timeline.ErrUnauthorized) {
		return err
	}

	token, err = w.creds.Refresh(ctx, requesterID)
	if err != nil {
		return err
	}
	err = w.withTransientRetry(ctx, func(ctx context.Context) error {
		return fn(ctx, token)
	})
	if errors.Is(err, timeline.ErrUnauthorized) {
		return fmt.Errorf("%w: token rejected after refresh for requester %s",
			timeline.ErrCredential, requesterID)
	}
	return err
}

// withTransientRetry retries fn with bounded exponential backoff while it
// fails transiently. Rate-limit, auth, and data errors pass through
// untouched.
func (w *Workflow) withTransientRetry(ctx context.Context, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(
		uint64(w.config.MaxFetchAttempts-1),
		retry.NewExponential(w.config.FetchRetryBase),
	)
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if errors.Is(err, timeline.ErrTransient) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// pageBounds returns the oldest and newest post IDs in a page.
func pageBounds(posts []domain.Post) (oldest, newest string) {
	for _, post := range posts {
		if post.ID == "" {
			continue
		}
		if oldest == "" || domain.ComparePostIDs(post.ID, oldest) < 0 {
			oldest = post.ID
		}
		if newest == "" || domain.ComparePostIDs(post.ID, newest) > 0 {
			newest = post.ID
		}
	}
	return oldest, newest
}
