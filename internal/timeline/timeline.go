// Package timeline provides the upstream timeline-API capability: fetching
// account metadata, timeline pages, and following lists on behalf of a
// requester's borrowed credential.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tweetscape/indexer/internal/domain"
)

// Sentinel errors for upstream failures.
var (
	// ErrTransient is returned for network hiccups and upstream 5xx
	// responses. Callers retry with bounded backoff before escalating.
	ErrTransient = errors.New("transient upstream error")

	// ErrUnauthorized is returned when the upstream rejects the access
	// token. Callers refresh the token once and retry.
	ErrUnauthorized = errors.New("upstream rejected access token")

	// ErrCredential is returned when no usable access token can be
	// obtained for a requester. This fails the owning task immediately.
	ErrCredential = errors.New("credential unavailable")

	// ErrNotFound is returned when the requested account does not exist
	// upstream.
	ErrNotFound = errors.New("account not found upstream")
)

// RateLimitError reports quota exhaustion. ResetAt is the upstream-provided
// reset time; it is zero when the upstream did not provide one, in which case
// callers fall back to a fixed delay.
type RateLimitError struct {
	ResetAt time.Time
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.ResetAt.IsZero() {
		return "rate limit exhausted"
	}
	return fmt.Sprintf("rate limit exhausted until %s", e.ResetAt.UTC().Format(time.RFC3339))
}

// Direction selects which side of an account's indexed window a timeline
// request extends.
type Direction string

// Timeline request directions
const (
	// DirectionNewer requests the page immediately newer than the boundary.
	DirectionNewer Direction = "newer"

	// DirectionOlder requests the page immediately older than the boundary.
	DirectionOlder Direction = "older"
)

// Query bounds one timeline page request. An empty BoundaryID requests the
// newest page regardless of Direction. UntilID additionally caps a newer-side
// request from above (exclusive), letting callers page down through a gap
// that spans more than one page.
type Query struct {
	Direction  Direction
	BoundaryID string
	UntilID    string
	PageSize   int
}

// Client is the upstream timeline-API capability.
type Client interface {
	// GetAccountInfo fetches an account's metadata by ID or username.
	GetAccountInfo(ctx context.Context, accountRef, token string) (*domain.Account, error)

	// GetTimeline fetches one timeline page for an account, bounded by the
	// query. The returned batch carries the account's posts plus every
	// included referenced object.
	GetTimeline(ctx context.Context, accountID, token string, q Query) (*domain.Batch, error)

	// GetFollowing fetches one page of accounts the given account follows.
	// The second return value is the pagination token of the next page, or
	// empty when exhausted.
	GetFollowing(ctx context.Context, accountID, token, pageToken string, pageSize int) ([]domain.Account, string, error)
}
