package graph

import (
	"context"
	"sync"

	"github.com/tweetscape/indexer/internal/domain"
)

// nodeRef addresses a node by label and identity key.
type nodeRef struct {
	label domain.Label
	key   string
}

// edgeRef addresses an edge by its identity triple.
type edgeRef struct {
	relType domain.RelType
	from    string
	to      string
}

// MemoryStore is an in-memory Store used by tests and local runs. It applies
// the same merge semantics as the neo4j store and can inject write failures.
type MemoryStore struct {
	mu     sync.Mutex
	nodes  map[nodeRef]Properties
	edges  map[edgeRef]Properties
	ranges map[string]domain.IndexedRange

	failuresLeft int
	failure      error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:  make(map[nodeRef]Properties),
		edges:  make(map[edgeRef]Properties),
		ranges: make(map[string]domain.IndexedRange),
	}
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// FailWrites makes the next n write calls fail with err. Used by tests to
// exercise chunk retry behavior.
func (s *MemoryStore) FailWrites(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failuresLeft = n
	s.failure = err
}

// takeFailure consumes one injected failure, if any. Caller holds the lock.
func (s *MemoryStore) takeFailure() error {
	if s.failuresLeft > 0 {
		s.failuresLeft--
		return s.failure
	}
	return nil
}

// UpsertNodes merge-creates the given nodes under one label.
func (s *MemoryStore) UpsertNodes(ctx context.Context, label domain.Label, nodes []Node) error {
	if _, err := KeyProperty(label); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(); err != nil {
		return err
	}

	for _, node := range nodes {
		ref := nodeRef{label: label, key: node.Key}
		existing, ok := s.nodes[ref]
		if !ok {
			existing = Properties{}
			s.nodes[ref] = existing
		}
		for k, v := range node.Props {
			existing[k] = v
		}
	}

	return nil
}

// UpsertEdges merge-creates the given edges and any missing endpoint nodes.
func (s *MemoryStore) UpsertEdges(ctx context.Context, spec RelSpec, edges []Edge) error {
	if _, err := KeyProperty(spec.FromLabel); err != nil {
		return err
	}
	if _, err := KeyProperty(spec.ToLabel); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(); err != nil {
		return err
	}

	for _, edge := range edges {
		s.mergeNode(nodeRef{label: spec.FromLabel, key: edge.FromKey})
		s.mergeNode(nodeRef{label: spec.ToLabel, key: edge.ToKey})

		ref := edgeRef{relType: spec.Type, from: edge.FromKey, to: edge.ToKey}
		existing, ok := s.edges[ref]
		if !ok {
			existing = Properties{}
			s.edges[ref] = existing
		}
		for k, v := range edge.Props {
			existing[k] = v
		}
	}

	return nil
}

// mergeNode creates an empty node if absent. Caller holds the lock.
func (s *MemoryStore) mergeNode(ref nodeRef) {
	if _, ok := s.nodes[ref]; !ok {
		s.nodes[ref] = Properties{}
	}
}

// DeleteOutgoingEdges removes every edge of the given type leaving fromKey.
func (s *MemoryStore) DeleteOutgoingEdges(
	ctx context.Context,
	spec RelSpec,
	fromKey string,
) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(); err != nil {
		return 0, err
	}

	removed := 0
	for ref := range s.edges {
		if ref.relType == spec.Type && ref.from == fromKey {
			delete(s.edges, ref)
			removed++
		}
	}

	return removed, nil
}

// AccountRange reads the indexed post-ID window of an account.
func (s *MemoryStore) AccountRange(
	ctx context.Context,
	accountID string,
) (domain.IndexedRange, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.ranges[accountID]
	return r, ok, nil
}

// SetAccountRange stores the indexed post-ID window of an account.
func (s *MemoryStore) SetAccountRange(
	ctx context.Context,
	accountID string,
	r domain.IndexedRange,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(); err != nil {
		return err
	}

	s.mergeNode(nodeRef{label: domain.LabelAccount, key: accountID})
	s.ranges[accountID] = r
	return nil
}

// NodeCount returns the number of stored nodes with the given label.
func (s *MemoryStore) NodeCount(label domain.Label) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for ref := range s.nodes {
		if ref.label == label {
			count++
		}
	}
	return count
}

// EdgeCount returns the number of stored edges with the given type.
func (s *MemoryStore) EdgeCount(relType domain.RelType) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for ref := range s.edges {
		if ref.relType == relType {
			count++
		}
	}
	return count
}

// NodeProps returns a copy of the properties of one node, and whether the
// node exists.
func (s *MemoryStore) NodeProps(label domain.Label, key string) (Properties, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	props, ok := s.nodes[nodeRef{label: label, key: key}]
	if !ok {
		return nil, false
	}
	copied := make(Properties, len(props))
	for k, v := range props {
		copied[k] = v
	}
	return copied, true
}

// HasEdge reports whether an edge with the given identity triple exists.
func (s *MemoryStore) HasEdge(relType domain.RelType, from, to string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.edges[edgeRef{relType: relType, from: from, to: to}]
	return ok
}

// Snapshot returns copies of the node and edge sets for equality assertions.
func (s *MemoryStore) Snapshot() (map[nodeRef]Properties, map[edgeRef]Properties) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes := make(map[nodeRef]Properties, len(s.nodes))
	for ref, props := range s.nodes {
		copied := make(Properties, len(props))
		for k, v := range props {
			copied[k] = v
		}
		nodes[ref] = copied
	}

	edges := make(map[edgeRef]Properties, len(s.edges))
	for ref, props := range s.edges {
		copied := make(Properties, len(props))
		for k, v := range props {
			copied[k] = v
		}
		edges[ref] = copied
	}

	return nodes, edges
}
