// Package graph defines the capability interface the indexer requires from a
// key-addressed graph store, along with the neo4j-backed and in-memory
// implementations. All writes are merge-or-create: re-applying the same input
// never creates a duplicate node or edge.
package graph

import (
	"context"
	"errors"

	"github.com/tweetscape/indexer/internal/domain"
)

// ErrWrite is returned when a write to the graph store fails. Write failures
// are retryable; exhausting retries escalates to the owning task.
var ErrWrite = errors.New("graph write failed")

// ErrUnknownLabel is returned when a node label has no registered key
// property. This is a programming-contract violation.
var ErrUnknownLabel = errors.New("unknown node label")

// Properties is the property bag of a node or edge.
type Properties map[string]any

// Node is one node payload: its identity key plus mutable properties.
// Properties are upserted last-write-wins; the key never changes.
type Node struct {
	Key   string
	Props Properties
}

// Edge is one directed edge payload. The edge's identity is
// (FromKey, ToKey, RelSpec.Type); Props are optional edge properties.
type Edge struct {
	FromKey string
	ToKey   string
	Props   Properties
}

// RelSpec describes an edge type together with the labels of its endpoints,
// so stores can merge-create missing endpoint nodes by their key property.
type RelSpec struct {
	Type      domain.RelType
	FromLabel domain.Label
	ToLabel   domain.Label
}

// keyProperties maps each node label to its canonical identity property.
var keyProperties = map[domain.Label]string{
	domain.LabelAccount:    "id",
	domain.LabelPost:       "id",
	domain.LabelMedia:      "media_key",
	domain.LabelLink:       "url",
	domain.LabelAnnotation: "key",
	domain.LabelDomain:     "id",
	domain.LabelEntity:     "id",
	domain.LabelHashtag:    "tag",
	domain.LabelCashtag:    "tag",
}

// KeyProperty returns the identity property name for the given label.
func KeyProperty(label domain.Label) (string, error) {
	prop, ok := keyProperties[label]
	if !ok {
		return "", ErrUnknownLabel
	}
	return prop, nil
}

// Store is the graph store capability required by the indexer.
type Store interface {
	// UpsertNodes merge-creates the given nodes under one label. Existing
	// nodes have their properties overwritten last-write-wins; nodes are
	// never duplicated or deleted.
	UpsertNodes(ctx context.Context, label domain.Label, nodes []Node) error

	// UpsertEdges merge-creates the given edges, merge-creating missing
	// endpoint nodes by their key property. Re-creating an existing edge
	// is a no-op beyond updating its properties.
	UpsertEdges(ctx context.Context, spec RelSpec, edges []Edge) error

	// DeleteOutgoingEdges removes every edge of the given type leaving
	// fromKey and returns the number removed. Used only by the following
	// sync; the upsert engine never deletes.
	DeleteOutgoingEdges(ctx context.Context, spec RelSpec, fromKey string) (int, error)

	// AccountRange reads the indexed post-ID window stored on an account
	// node. The second return value is false while the account is
	// unindexed.
	AccountRange(ctx context.Context, accountID string) (domain.IndexedRange, bool, error)

	// SetAccountRange stores the indexed post-ID window on an account node,
	// merge-creating the node if needed. Callers serialize per-account
	// updates; see indexer.RangeTracker.
	SetAccountRange(ctx context.Context, accountID string, r domain.IndexedRange) error
}
