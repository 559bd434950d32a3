package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/tweetscape/indexer/internal/domain"
	"github.com/tweetscape/indexer/internal/platform/logger"
)

// Neo4jStore implements Store against a neo4j database. Labels and
// relationship types come from the closed sets in the domain package and are
// interpolated into Cypher; property values are always passed as parameters.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
}

// NewNeo4jStore creates a Neo4jStore over an open driver.
func NewNeo4jStore(driver neo4j.DriverWithContext) *Neo4jStore {
	return &Neo4jStore{
		driver: driver,
	}
}

// Ensure Neo4jStore implements Store.
var _ Store = (*Neo4jStore)(nil)

// UpsertNodes merge-creates the given nodes under one label.
func (s *Neo4jStore) UpsertNodes(ctx context.Context, label domain.Label, nodes []Node) error {
	if len(nodes) == 0 {
		return nil
	}

	keyProp, err := KeyProperty(label)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(
		"UNWIND $nodes AS n\n"+
			"MERGE (x:`%s` {`%s`: n.key})\n"+
			"SET x += n.props",
		label, keyProp,
	)

	params := make([]map[string]any, len(nodes))
	for i, node := range nodes {
		params[i] = map[string]any{
			"key":   node.Key,
			"props": map[string]any(node.Props),
		}
	}

	return s.write(ctx, query, map[string]any{"nodes": params})
}

// UpsertEdges merge-creates the given edges, merge-creating missing endpoint
// nodes by their key property.
func (s *Neo4jStore) UpsertEdges(ctx context.Context, spec RelSpec, edges []Edge) error {
	if len(edges) == 0 {
		return nil
	}

	fromProp, err := KeyProperty(spec.FromLabel)
	if err != nil {
		return err
	}
	toProp, err := KeyProperty(spec.ToLabel)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(
		"UNWIND $edges AS e\n"+
			"MERGE (from:`%s` {`%s`: e.from})\n"+
			"MERGE (to:`%s` {`%s`: e.to})\n"+
			"MERGE (from)-[r:`%s`]->(to)\n"+
			"SET r += e.props",
		spec.FromLabel, fromProp,
		spec.ToLabel, toProp,
		spec.Type,
	)

	params := make([]map[string]any, len(edges))
	for i, edge := range edges {
		props := edge.Props
		if props == nil {
			props = Properties{}
		}
		params[i] = map[string]any{
			"from":  edge.FromKey,
			"to":    edge.ToKey,
			"props": map[string]any(props),
		}
	}

	return s.write(ctx, query, map[string]any{"edges": params})
}

// DeleteOutgoingEdges removes every edge of the given type leaving fromKey.
func (s *Neo4jStore) DeleteOutgoingEdges(
	ctx context.Context,
	spec RelSpec,
	fromKey string,
) (int, error) {
	fromProp, err := KeyProperty(spec.FromLabel)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(
		"MATCH (from:`%s` {`%s`: $fromKey})-[r:`%s`]->()\n"+
			"DELETE r\n"+
			"RETURN count(r) AS removed",
		spec.FromLabel, fromProp, spec.Type,
	)

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer func() { _ = session.Close(ctx) }()

	removed, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]any{"fromKey": fromKey})
		if err != nil {
			return 0, err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return 0, err
		}
		count, _ := record.Get("removed")
		n, _ := count.(int64)
		return int(n), nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: delete %s edges: %v", ErrWrite, spec.Type, err)
	}

	return removed.(int), nil
}

// AccountRange reads the indexed post-ID window stored on an account node.
func (s *Neo4jStore) AccountRange(
	ctx context.Context,
	accountID string,
) (domain.IndexedRange, bool, error) {
	query := fmt.Sprintf(
		"MATCH (a:`%s` {id: $id})\n"+
			"RETURN a.earliestPostId AS oldest, a.latestPostId AS newest",
		domain.LabelAccount,
	)

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer func() { _ = session.Close(ctx) }()

	value, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]any{"id": accountID})
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, nil
		}
		oldest, _ := records[0].Get("oldest")
		newest, _ := records[0].Get("newest")
		oldestID, _ := oldest.(string)
		newestID, _ := newest.(string)
		if oldestID == "" || newestID == "" {
			return nil, nil
		}
		return domain.IndexedRange{OldestID: oldestID, NewestID: newestID}, nil
	})
	if err != nil {
		return domain.IndexedRange{}, false, fmt.Errorf("failed to read account range: %w", err)
	}

	if value == nil {
		return domain.IndexedRange{}, false, nil
	}

	return value.(domain.IndexedRange), true, nil
}

// SetAccountRange stores the indexed post-ID window on an account node.
func (s *Neo4jStore) SetAccountRange(
	ctx context.Context,
	accountID string,
	r domain.IndexedRange,
) error {
	query := fmt.Sprintf(
		"MERGE (a:`%s` {id: $id})\n"+
			"SET a.earliestPostId = $oldest, a.latestPostId = $newest",
		domain.LabelAccount,
	)

	return s.write(ctx, query, map[string]any{
		"id":     accountID,
		"oldest": r.OldestID,
		"newest": r.NewestID,
	})
}

// write runs a Cypher statement inside a managed write transaction.
func (s *Neo4jStore) write(ctx context.Context, query string, params map[string]any) error {
	log := logger.FromContext(ctx)

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer func() { _ = session.Close(ctx) }()

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return nil, result.Err()
	})
	if err != nil {
		log.Error("graph write failed", "error", err)
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	return nil
}
