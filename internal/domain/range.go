package domain

import (
	"errors"
	"strings"
)

// Range invariant errors
var (
	ErrEmptyPostID   = errors.New("post ID cannot be empty")
	ErrRangeNotOlder = errors.New("boundary is not older than the current oldest seen ID")
	ErrRangeNotNewer = errors.New("boundary is not newer than the current newest seen ID")
)

// IndexedRange is the contiguous window of post IDs already ingested for one
// account. The window only widens over the account's lifetime: OldestID can
// only decrease and NewestID can only increase.
type IndexedRange struct {
	OldestID string `json:"oldest_id"`
	NewestID string `json:"newest_id"`
}

// ComparePostIDs orders two post IDs by numeric magnitude. Post IDs are
// decimal strings (snowflakes), so a shorter ID is always smaller and IDs of
// equal length compare lexicographically. Returns -1, 0, or 1.
func ComparePostIDs(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// ExtendOlder widens the range downward to cover boundaryID.
// Fails if boundaryID is not strictly older than the current OldestID.
func (r *IndexedRange) ExtendOlder(boundaryID string) error {
	if boundaryID == "" {
		return ErrEmptyPostID
	}

	if ComparePostIDs(boundaryID, r.OldestID) >= 0 {
		return ErrRangeNotOlder
	}

	r.OldestID = boundaryID
	return nil
}

// ExtendNewer widens the range upward to cover boundaryID.
// Fails if boundaryID is not strictly newer than the current NewestID.
func (r *IndexedRange) ExtendNewer(boundaryID string) error {
	if boundaryID == "" {
		return ErrEmptyPostID
	}

	if ComparePostIDs(boundaryID, r.NewestID) <= 0 {
		return ErrRangeNotNewer
	}

	r.NewestID = boundaryID
	return nil
}
