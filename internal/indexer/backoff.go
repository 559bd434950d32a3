package indexer

import (
	"errors"
	"time"

	"github.com/tweetscape/indexer/internal/timeline"
)

// BackoffPolicy converts provider rate-limit responses into resume times.
type BackoffPolicy struct {
	// FallbackDelay applies when the provider does not say when the quota
	// window resets.
	FallbackDelay time.Duration

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

// DefaultBackoffPolicy returns the standard policy: trust the provider's
// reset time, fall back to 15 minutes.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		FallbackDelay: 15 * time.Minute,
		Now:           time.Now,
	}
}

// ResumeTime computes when work may resume after the given rate-limit error.
// The provider's reset time wins when present and in the future; otherwise
// the fallback delay applies.
func (p BackoffPolicy) ResumeTime(err error) time.Time {
	now := p.now()
	var rle *timeline.RateLimitError
	if errors.As(err, &rle) && !rle.ResetAt.IsZero() && rle.ResetAt.After(now) {
		return rle.ResetAt
	}
	return now.Add(p.FallbackDelay)
}

func (p BackoffPolicy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
