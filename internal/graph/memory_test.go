package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tweetscape/indexer/internal/domain"
)

func TestMemoryStoreUpsertNodesMerges(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.UpsertNodes(ctx, domain.LabelAccount, []Node{
		{Key: "acct_1", Props: Properties{"id": "acct_1", "username": "alice"}},
	}))
	require.NoError(t, s.UpsertNodes(ctx, domain.LabelAccount, []Node{
		{Key: "acct_1", Props: Properties{"id": "acct_1", "name": "Alice"}},
	}))

	assert.Equal(t, 1, s.NodeCount(domain.LabelAccount))

	props, ok := s.NodeProps(domain.LabelAccount, "acct_1")
	require.True(t, ok)
	// Later writes merge with, not replace, earlier properties.
	assert.Equal(t, "alice", props["username"])
	assert.Equal(t, "Alice", props["name"])
}

func TestMemoryStoreUpsertNodesRejectsUnknownLabel(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	err := s.UpsertNodes(context.Background(), domain.Label("Planet"), []Node{{Key: "earth"}})
	assert.ErrorIs(t, err, ErrUnknownLabel)
}

func TestMemoryStoreUpsertEdges(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	spec := RelSpec{Type: domain.RelPosted, FromLabel: domain.LabelAccount, ToLabel: domain.LabelPost}

	require.NoError(t, s.UpsertEdges(ctx, spec, []Edge{{FromKey: "acct_1", ToKey: "100"}}))

	// Endpoints are merge-created as stubs.
	assert.Equal(t, 1, s.NodeCount(domain.LabelAccount))
	assert.Equal(t, 1, s.NodeCount(domain.LabelPost))
	assert.True(t, s.HasEdge(domain.RelPosted, "acct_1", "100"))

	// Re-creating the identical edge is a no-op.
	require.NoError(t, s.UpsertEdges(ctx, spec, []Edge{{FromKey: "acct_1", ToKey: "100"}}))
	assert.Equal(t, 1, s.EdgeCount(domain.RelPosted))
}

func TestMemoryStoreDeleteOutgoingEdges(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	spec := RelSpec{Type: domain.RelFollows, FromLabel: domain.LabelAccount, ToLabel: domain.LabelAccount}

	require.NoError(t, s.UpsertEdges(ctx, spec, []Edge{
		{FromKey: "acct_1", ToKey: "acct_2"},
		{FromKey: "acct_1", ToKey: "acct_3"},
		{FromKey: "acct_2", ToKey: "acct_1"},
	}))

	removed, err := s.DeleteOutgoingEdges(ctx, spec, "acct_1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	// Only acct_1's outgoing edges are gone.
	assert.False(t, s.HasEdge(domain.RelFollows, "acct_1", "acct_2"))
	assert.True(t, s.HasEdge(domain.RelFollows, "acct_2", "acct_1"))
}

func TestMemoryStoreAccountRange(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	_, ok, err := s.AccountRange(ctx, "acct_1")
	require.NoError(t, err)
	assert.False(t, ok)

	want := domain.IndexedRange{OldestID: "100", NewestID: "139"}
	require.NoError(t, s.SetAccountRange(ctx, "acct_1", want))

	got, ok, err := s.AccountRange(ctx, "acct_1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	// Storing a range materializes the account node.
	assert.Equal(t, 1, s.NodeCount(domain.LabelAccount))
}

func TestMemoryStoreFailureInjection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	boom := errors.New("disk on fire")
	s.FailWrites(2, boom)

	err := s.UpsertNodes(ctx, domain.LabelAccount, []Node{{Key: "a"}})
	assert.ErrorIs(t, err, boom)
	err = s.UpsertNodes(ctx, domain.LabelAccount, []Node{{Key: "a"}})
	assert.ErrorIs(t, err, boom)

	// Third write succeeds, and the failed writes left no partial state.
	require.NoError(t, s.UpsertNodes(ctx, domain.LabelAccount, []Node{{Key: "a"}}))
	assert.Equal(t, 1, s.NodeCount(domain.LabelAccount))
}

func TestKeyProperty(t *testing.T) {
	t.Parallel()

	tests := []struct {
		label domain.Label
		key   string
	}{
		{domain.LabelAccount, "id"},
		{domain.LabelPost, "id"},
		{domain.LabelMedia, "media_key"},
		{domain.LabelLink, "url"},
		{domain.LabelAnnotation, "key"},
		{domain.LabelHashtag, "tag"},
		{domain.LabelCashtag, "tag"},
	}
	for _, tc := range tests {
		got, err := KeyProperty(tc.label)
		require.NoError(t, err)
		assert.Equal(t, tc.key, got)
	}

	_, err := KeyProperty(domain.Label("Planet"))
	assert.ErrorIs(t, err, ErrUnknownLabel)
}
