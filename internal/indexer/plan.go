package indexer

import (
	"fmt"
	"log/slog"

	"github.com/tweetscape/indexer/internal/domain"
	"github.com/tweetscape/indexer/internal/graph"
)

// relFor resolves the edge type for an included-object kind from the domain
// table. The kind set is closed, so a miss is a programming error.
func relFor(kind domain.IncludedKind) domain.RelType {
	rel, ok := domain.RelationForKind(kind)
	if !ok {
		panic(fmt.Sprintf("no relation for included kind %q", kind))
	}
	return rel
}

// edgeOrder fixes the order in which relationship kinds are written, so a
// replayed batch issues the same sequence of writes. Authorship has no
// included kind; every other edge type comes from the domain table.
var edgeOrder = []graph.RelSpec{
	{Type: domain.RelPosted, FromLabel: domain.LabelAccount, ToLabel: domain.LabelPost},
	{Type: relFor(domain.IncludedAccount), FromLabel: domain.LabelPost, ToLabel: domain.LabelAccount},
	{Type: relFor(domain.IncludedLink), FromLabel: domain.LabelPost, ToLabel: domain.LabelLink},
	{Type: relFor(domain.IncludedAnnotation), FromLabel: domain.LabelPost, ToLabel: domain.LabelAnnotation},
	{Type: relFor(domain.IncludedDomain), FromLabel: domain.LabelPost, ToLabel: domain.LabelDomain},
	{Type: relFor(domain.IncludedEntity), FromLabel: domain.LabelPost, ToLabel: domain.LabelEntity},
	{Type: relFor(domain.IncludedHashtag), FromLabel: domain.LabelPost, ToLabel: domain.LabelHashtag},
	{Type: relFor(domain.IncludedMedia), FromLabel: domain.LabelPost, ToLabel: domain.LabelMedia},
	{Type: relFor(domain.IncludedPost), FromLabel: domain.LabelPost, ToLabel: domain.LabelPost},
}

// followsSpec describes the follow edge written by following indexing.
var followsSpec = graph.RelSpec{
	Type:      domain.RelFollows,
	FromLabel: domain.LabelAccount,
	ToLabel:   domain.LabelAccount,
}

// cashtagSpec covers cashtag edges, which share the TAG type with hashtags
// but target a different node label.
var cashtagSpec = graph.RelSpec{
	Type:      relFor(domain.IncludedCashtag),
	FromLabel: domain.LabelPost,
	ToLabel:   domain.LabelCashtag,
}

// writePlan is the flattened form of a batch: node lists per label and edge
// lists per relationship type, ready for chunked upserting.
type writePlan struct {
	nodes        map[domain.Label][]graph.Node
	edges        map[domain.RelType][]graph.Edge
	cashtagEdges []graph.Edge
}

// buildPlan walks every post in the batch and collects the nodes and edges
// it implies. Malformed items (objects missing their identity key) are
// skipped and logged; they never abort the batch.
func buildPlan(posts []domain.Post, accounts []domain.Account, media []domain.Media, logger *slog.Logger) *writePlan {
	p := &writePlan{
		nodes: make(map[domain.Label][]graph.Node),
		edges: make(map[domain.RelType][]graph.Edge),
	}

	for _, account := range accounts {
		if account.ID == "" {
			logger.Warn("skipping included account without ID",
				"error", ErrUpstreamData,
				"username", account.Username)
			continue
		}
		p.addNode(domain.LabelAccount, accountNode(account))
	}

	for _, m := range media {
		if m.Key == "" {
			logger.Warn("skipping included media without key", "error", ErrUpstreamData)
			continue
		}
		p.addNode(domain.LabelMedia, mediaNode(m))
	}

	for _, post := range posts {
		if post.ID == "" {
			logger.Warn("skipping post without ID", "error", ErrUpstreamData)
			continue
		}
		p.addPost(post, logger)
	}

	return p
}

func (p *writePlan) addNode(label domain.Label, node graph.Node) {
	p.nodes[label] = append(p.nodes[label], node)
}

func (p *writePlan) addEdge(rel domain.RelType, edge graph.Edge) {
	p.edges[rel] = append(p.edges[rel], edge)
}

// addPost collects the post node, the stub nodes for every object it
// references, and the edges tying them together.
func (p *writePlan) addPost(post domain.Post, logger *slog.Logger) {
	p.addNode(domain.LabelPost, postNode(post))

	if post.AuthorID != "" {
		p.addEdge(domain.RelPosted, graph.Edge{FromKey: post.AuthorID, ToKey: post.ID})
	}

	for _, mention := range post.Mentions {
		if mention.AccountID == "" {
			// Mentions resolve by account ID, not handle; a mention the
			// provider failed to hydrate cannot be linked.
			logger.Warn("skipping mention without account ID",
				"error", ErrUpstreamData,
				"post_id", post.ID,
				"username", mention.Username)
			continue
		}
		p.addEdge(relFor(domain.IncludedAccount), graph.Edge{FromKey: post.ID, ToKey: mention.AccountID})
	}

	for _, link := range post.Links {
		if link.URL == "" {
			logger.Warn("skipping link without URL", "error", ErrUpstreamData, "post_id", post.ID)
			continue
		}
		p.addNode(domain.LabelLink, graph.Node{Key: link.URL, Props: graph.Properties{
			"url":          link.URL,
			"expanded_url": link.ExpandedURL,
			"display_url":  link.DisplayURL,
		}})
		p.addEdge(relFor(domain.IncludedLink), graph.Edge{FromKey: post.ID, ToKey: link.URL})
	}

	for _, ann := range post.Annotations {
		if ann.NormalizedText == "" {
			logger.Warn("skipping annotation without text", "error", ErrUpstreamData, "post_id", post.ID)
			continue
		}
		key := ann.Key()
		p.addNode(domain.LabelAnnotation, graph.Node{Key: key, Props: graph.Properties{
			"key":             key,
			"type":            ann.Type,
			"normalized_text": ann.NormalizedText,
			"probability":     ann.Probability,
		}})
		p.addEdge(relFor(domain.IncludedAnnotation), graph.Edge{FromKey: post.ID, ToKey: key})
	}

	for _, cxt := range post.Contexts {
		if cxt.Domain.ID != "" {
			p.addNode(domain.LabelDomain, graph.Node{Key: cxt.Domain.ID, Props: graph.Properties{
				"id":          cxt.Domain.ID,
				"name":        cxt.Domain.Name,
				"description": cxt.Domain.Description,
			}})
			p.addEdge(relFor(domain.IncludedDomain), graph.Edge{FromKey: post.ID, ToKey: cxt.Domain.ID})
		}
		if cxt.Entity.ID != "" {
			p.addNode(domain.LabelEntity, graph.Node{Key: cxt.Entity.ID, Props: graph.Properties{
				"id":          cxt.Entity.ID,
				"name":        cxt.Entity.Name,
				"description": cxt.Entity.Description,
			}})
			p.addEdge(relFor(domain.IncludedEntity), graph.Edge{FromKey: post.ID, ToKey: cxt.Entity.ID})
		}
	}

	for _, tag := range post.Hashtags {
		if tag == "" {
			continue
		}
		p.addNode(domain.LabelHashtag, graph.Node{Key: tag, Props: graph.Properties{"tag": tag}})
		p.addEdge(relFor(domain.IncludedHashtag), graph.Edge{FromKey: post.ID, ToKey: tag})
	}

	for _, tag := range post.Cashtags {
		if tag == "" {
			continue
		}
		p.addNode(domain.LabelCashtag, graph.Node{Key: tag, Props: graph.Properties{"tag": tag}})
		p.cashtagEdges = append(p.cashtagEdges, graph.Edge{FromKey: post.ID, ToKey: tag})
	}

	for _, key := range post.MediaKeys {
		if key == "" {
			continue
		}
		p.addEdge(relFor(domain.IncludedMedia), graph.Edge{FromKey: post.ID, ToKey: key})
	}

	for _, ref := range post.References {
		if ref.PostID == "" {
			logger.Warn("skipping post reference without target ID",
				"error", ErrUpstreamData, "post_id", post.ID)
			continue
		}
		// The target may not be in this batch; merge a stub so the edge
		// always has both endpoints.
		p.addNode(domain.LabelPost, graph.Node{Key: ref.PostID, Props: graph.Properties{
			"id": ref.PostID,
		}})
		p.addEdge(relFor(domain.IncludedPost), graph.Edge{
			FromKey: post.ID,
			ToKey:   ref.PostID,
			Props:   graph.Properties{"type": ref.Type},
		})
	}
}

func accountNode(account domain.Account) graph.Node {
	return graph.Node{Key: account.ID, Props: graph.Properties{
		"id":                account.ID,
		"username":          account.Username,
		"name":              account.Name,
		"description":       account.Description,
		"profile_image_url": account.ProfileImageURL,
		"url":               account.URL,
		"verified":          account.Verified,
		"created_at":        account.CreatedAt,
		"followers_count":   account.FollowersCount,
		"following_count":   account.FollowingCount,
		"tweet_count":       account.PostCount,
		"listed_count":      account.ListedCount,
	}}
}

func mediaNode(m domain.Media) graph.Node {
	props := graph.Properties{
		"media_key": m.Key,
		"type":      m.Type,
	}
	if m.URL != "" {
		props["url"] = m.URL
	}
	if m.PreviewImageURL != "" {
		props["preview_image_url"] = m.PreviewImageURL
	}
	if m.AltText != "" {
		props["alt_text"] = m.AltText
	}
	if m.Width > 0 {
		props["width"] = m.Width
	}
	if m.Height > 0 {
		props["height"] = m.Height
	}
	if m.DurationMS > 0 {
		props["duration_ms"] = m.DurationMS
	}
	return graph.Node{Key: m.Key, Props: props}
}

func postNode(post domain.Post) graph.Node {
	return graph.Node{Key: post.ID, Props: graph.Properties{
		"id":                  post.ID,
		"author_id":           post.AuthorID,
		"text":                post.Text,
		"lang":                post.Lang,
		"conversation_id":     post.ConversationID,
		"created_at":          post.CreatedAt,
		"reply_settings":      post.ReplySettings,
		"in_reply_to_user_id": post.InReplyToUserID,
		"possibly_sensitive":  post.PossiblySensitive,
		"retweet_count":       post.RetweetCount,
		"reply_count":         post.ReplyCount,
		"like_count":          post.LikeCount,
		"quote_count":         post.QuoteCount,
	}}
}
