package indexer

import (
	"context"
	"fmt"

	"github.com/tweetscape/indexer/internal/domain"
	"github.com/tweetscape/indexer/internal/platform/logger"
)

// indexFollowing syncs one account's outgoing follow edges: it fetches the
// full following list page by page, merges every followed account as a node,
// then replaces the account's outgoing FOLLOWS edges with the fresh set.
// Unlike timelines, a follow list is a snapshot, so stale edges are deleted.
func (w *Workflow) indexFollowing(ctx context.Context, requesterID, accountRef string) error {
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

	var following []domain.Account
	pageToken := ""
	for {
		var page []domain.Account
		err := w.call(ctx, requesterID, func(ctx context.Context, token string) error {
			var err error
			page, pageToken, err = w.client.GetFollowing(
				ctx, account.ID, token, pageToken, w.config.FollowingPageSize)
			return err
		})
		if err != nil {
			return fmt.Errorf("fetching following page: %w", err)
		}
		following = append(following, page...)
		if pageToken == "" {
			break
		}
	}

	if err := w.engine.UpsertAccounts(ctx, following); err != nil {
		return fmt.Errorf("upserting followed accounts: %w", err)
	}

	// Replace, not merge: unfollowed accounts must lose their edge.
	deleted, err := w.engine.store.DeleteOutgoingEdges(ctx, followsSpec, account.ID)
	if err != nil {
		return fmt.Errorf("clearing follow edges: %w", err)
	}

	targetIDs := make([]string, 0, len(following))
	for _, followed := range following {
		if followed.ID == "" {
			log.Warn("skipping followed account without ID",
				"error", ErrUpstreamData, "username", followed.Username)
			continue
		}
		targetIDs = append(targetIDs, followed.ID)
	}
	if err := w.engine.UpsertFollows(ctx, account.ID, targetIDs); err != nil {
		return fmt.Errorf("writing follow edges: %w", err)
	}

	log.Info("synced following",
		"account_id", account.ID, "following", len(targetIDs), "removed", deleted)
	return nil
}
