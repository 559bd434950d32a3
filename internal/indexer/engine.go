package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/tweetscape/indexer/internal/domain"
	"github.com/tweetscape/indexer/internal/graph"
)

// EngineConfig holds tuning knobs for the upsert engine.
type EngineConfig struct {
	// ChunkSize bounds how many nodes or edges go to the store in one
	// write. Each chunk is an independent unit: a failed chunk never
	// corrupts state written by prior chunks.
	ChunkSize int

	// MaxWriteAttempts bounds how often a failed chunk write is retried
	// before the error escalates to the owning task.
	MaxWriteAttempts int

	// WriteRetryBase is the base delay of the exponential backoff between
	// chunk write attempts.
	WriteRetryBase time.Duration
}

// DefaultEngineConfig returns an EngineConfig with reasonable defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ChunkSize:        100,
		MaxWriteAttempts: 3,
		WriteRetryBase:   500 * time.Millisecond,
	}
}

// Engine merges fetched batches into the graph store. It is write-only:
// nodes and edges are merge-created in a fixed order (referenced nodes, then
// posts, then relationships) so intra-batch references resolve regardless of
// arrival order, and re-applying a batch is a no-op beyond the first apply.
type Engine struct {
	store  graph.Store
	config EngineConfig
	logger *slog.Logger
}

// NewEngine creates an Engine over the given graph store.
func NewEngine(store graph.Store, config EngineConfig, logger *slog.Logger) *Engine {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 100
	}
	if config.MaxWriteAttempts <= 0 {
		config.MaxWriteAttempts = 3
	}
	if config.WriteRetryBase <= 0 {
		config.WriteRetryBase = 500 * time.Millisecond
	}
	return &Engine{
		store:  store,
		config: config,
		logger: logger.With("component", "upsert_engine"),
	}
}

// Apply merges one fetched batch and all its included referenced objects
// into the graph.
func (e *Engine) Apply(ctx context.Context, batch *domain.Batch) error {
	if batch == nil || batch.Empty() {
		return nil
	}

	posts := make([]domain.Post, 0, len(batch.IncludedPosts)+len(batch.Posts))
	posts = append(posts, batch.IncludedPosts...)
	posts = append(posts, batch.Posts...)

	plan := buildPlan(posts, batch.IncludedAccounts, batch.IncludedMedia, e.logger)

	// Referenced nodes first, then posts, then edges. The order of node
	// kinds is fixed so repeated applies touch the store identically.
	nodeOrder := []domain.Label{
		domain.LabelAccount,
		domain.LabelMedia,
		domain.LabelLink,
		domain.LabelAnnotation,
		domain.LabelDomain,
		domain.LabelEntity,
		domain.LabelHashtag,
		domain.LabelCashtag,
		domain.LabelPost,
	}
	for _, label := range nodeOrder {
		if err := e.writeNodes(ctx, label, plan.nodes[label]); err != nil {
			return err
		}
	}

	for _, spec := range edgeOrder {
		if err := e.writeEdges(ctx, spec, plan.edges[spec.Type]); err != nil {
			return err
		}
		if spec.ToLabel == domain.LabelHashtag {
			// TAG edges split by target label; cashtags right after hashtags.
			if err := e.writeEdges(ctx, cashtagSpec, plan.cashtagEdges); err != nil {
				return err
			}
		}
	}

	return nil
}

// UpsertAccounts merges account nodes outside a timeline batch (account
// metadata refreshes and following pages).
func (e *Engine) UpsertAccounts(ctx context.Context, accounts []domain.Account) error {
	nodes := make([]graph.Node, 0, len(accounts))
	for _, account := range accounts {
		if account.ID == "" {
			e.logger.Warn("skipping account without ID",
				"error", ErrUpstreamData,
				"username", account.Username)
			continue
		}
		nodes = append(nodes, accountNode(account))
	}
	return e.writeNodes(ctx, domain.LabelAccount, nodes)
}

// UpsertFollows merge-creates FOLLOWS edges from one account to the given
// targets.
func (e *Engine) UpsertFollows(ctx context.Context, accountID string, targetIDs []string) error {
	edges := make([]graph.Edge, 0, len(targetIDs))
	for _, target := range targetIDs {
		if target == "" {
			continue
		}
		edges = append(edges, graph.Edge{FromKey: accountID, ToKey: target})
	}
	return e.writeEdges(ctx, followsSpec, edges)
}

// writeNodes upserts nodes in chunks, retrying each chunk with bounded
// exponential backoff before escalating.
func (e *Engine) writeNodes(ctx context.Context, label domain.Label, nodes []graph.Node) error {
	for _, batch := range chunk(dedupeNodes(nodes), e.config.ChunkSize) {
		batch := batch
		err := e.withWriteRetry(ctx, func(ctx context.Context) error {
			return e.store.UpsertNodes(ctx, label, batch)
		})
		if err != nil {
			return fmt.Errorf("upserting %s nodes: %w", label, err)
		}
	}
	return nil
}

// writeEdges upserts edges in chunks with the same retry policy as nodes.
func (e *Engine) writeEdges(ctx context.Context, spec graph.RelSpec, edges []graph.Edge) error {
	for _, batch := range chunk(dedupeEdges(edges), e.config.ChunkSize) {
		batch := batch
		err := e.withWriteRetry(ctx, func(ctx context.Context) error {
			return e.store.UpsertEdges(ctx, spec, batch)
		})
		if err != nil {
			return fmt.Errorf("upserting %s edges: %w", spec.Type, err)
		}
	}
	return nil
}

// withWriteRetry runs one chunk write with bounded exponential backoff.
func (e *Engine) withWriteRetry(ctx context.Context, write func(context.Context) error) error {
	backoff := retry.WithMaxRetries(
		uint64(e.config.MaxWriteAttempts-1),
		retry.NewExponential(e.config.WriteRetryBase),
	)
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := write(ctx); err != nil {
			e.logger.Warn("chunk write failed, will retry", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}

// chunk splits items into slices of at most size elements.
func chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	var chunks [][]T
	for size < len(items) {
		items, chunks = items[size:], append(chunks, items[:size:size])
	}
	return append(chunks, items)
}

// dedupeNodes collapses repeated keys into one node, merging properties with
// later values winning. A referenced-post stub must never erase the full node
// collected earlier in the same batch.
func dedupeNodes(nodes []graph.Node) []graph.Node {
	if len(nodes) < 2 {
		return nodes
	}
	seen := make(map[string]int, len(nodes))
	out := make([]graph.Node, 0, len(nodes))
	for _, node := range nodes {
		if i, ok := seen[node.Key]; ok {
			merged := make(graph.Properties, len(out[i].Props)+len(node.Props))
			for k, v := range out[i].Props {
				merged[k] = v
			}
			for k, v := range node.Props {
				merged[k] = v
			}
			out[i] = graph.Node{Key: node.Key, Props: merged}
			continue
		}
		seen[node.Key] = len(out)
		out = append(out, node)
	}
	return out
}

// dedupeEdges drops repeated (from, to) pairs, keeping the last occurrence.
func dedupeEdges(edges []graph.Edge) []graph.Edge {
	if len(edges) < 2 {
		return edges
	}
	type pair struct{ from, to string }
	seen := make(map[pair]int, len(edges))
	out := make([]graph.Edge, 0, len(edges))
	for _, edge := range edges {
		p := pair{from: edge.FromKey, to: edge.ToKey}
		if i, ok := seen[p]; ok {
			out[i] = edge
			continue
		}
		seen[p] = len(out)
		out = append(out, edge)
	}
	return out
}
