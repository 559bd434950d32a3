package domain

// Label identifies a node type in the graph.
type Label string

// Graph node labels
const (
	LabelAccount    Label = "User"
	LabelPost       Label = "Tweet"
	LabelMedia      Label = "Media"
	LabelLink       Label = "Link"
	LabelAnnotation Label = "Annotation"
	LabelDomain     Label = "Domain"
	LabelEntity     Label = "Entity"
	LabelHashtag    Label = "Hashtag"
	LabelCashtag    Label = "Cashtag"
)

// RelType identifies a directed, typed edge in the graph. An edge's identity
// is the triple (fromKey, toKey, type); re-creating an existing edge is a
// no-op.
type RelType string

// Graph relationship types
const (
	RelPosted     RelType = "POSTED"     // Account -> Post
	RelMentioned  RelType = "MENTIONED"  // Post -> Account
	RelLinked     RelType = "LINKED"     // Post -> Link
	RelAnnotated  RelType = "ANNOTATED"  // Post -> Annotation
	RelCategory   RelType = "CATEGORY"   // Post -> Domain
	RelIncluded   RelType = "INCLUDED"   // Post -> Entity
	RelTag        RelType = "TAG"        // Post -> Hashtag|Cashtag
	RelAttached   RelType = "ATTACHED"   // Post -> Media
	RelReferenced RelType = "REFERENCED" // Post -> Post
	RelFollows    RelType = "FOLLOWS"    // Account -> Account
)

// IncludedKind is the closed set of object kinds that can accompany a post
// in a fetched page.
type IncludedKind string

// Included object kinds
const (
	IncludedAccount    IncludedKind = "account"
	IncludedPost       IncludedKind = "post"
	IncludedMedia      IncludedKind = "media"
	IncludedLink       IncludedKind = "link"
	IncludedAnnotation IncludedKind = "annotation"
	IncludedDomain     IncludedKind = "domain"
	IncludedEntity     IncludedKind = "entity"
	IncludedHashtag    IncludedKind = "hashtag"
	IncludedCashtag    IncludedKind = "cashtag"
)

// kindRelations maps each included-object kind to the edge type connecting a
// post to an object of that kind.
var kindRelations = map[IncludedKind]RelType{
	IncludedAccount:    RelMentioned,
	IncludedPost:       RelReferenced,
	IncludedMedia:      RelAttached,
	IncludedLink:       RelLinked,
	IncludedAnnotation: RelAnnotated,
	IncludedDomain:     RelCategory,
	IncludedEntity:     RelIncluded,
	IncludedHashtag:    RelTag,
	IncludedCashtag:    RelTag,
}

// RelationForKind returns the edge type connecting a post to an included
// object of the given kind. The second return value is false for unknown
// kinds.
func RelationForKind(kind IncludedKind) (RelType, bool) {
	rel, ok := kindRelations[kind]
	return rel, ok
}

// Account is a provider account. Identity is the provider-assigned ID;
// all other properties are mutable and upserted last-write-wins.
type Account struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	ProfileImageURL string `json:"profile_image_url"`
	URL             string `json:"url"`
	Verified        bool   `json:"verified"`
	CreatedAt       string `json:"created_at"`
	FollowersCount  int    `json:"followers_count"`
	FollowingCount  int    `json:"following_count"`
	PostCount       int    `json:"post_count"`
	ListedCount     int    `json:"listed_count"`
}

// Mention is a reference to an account inside a post's text.
type Mention struct {
	AccountID string `json:"account_id"`
	Username  string `json:"username"`
}

// Link is a URL carried by a post. Identity is the (shortened) URL.
type Link struct {
	URL         string `json:"url"`
	ExpandedURL string `json:"expanded_url"`
	DisplayURL  string `json:"display_url"`
}

// Annotation is a recognized entity span in a post's text. Identity is the
// (type, normalized text) pair; probability is a mutable property.
type Annotation struct {
	Type           string  `json:"type"`
	NormalizedText string  `json:"normalized_text"`
	Probability    float64 `json:"probability"`
}

// Key returns the annotation's natural identity key.
func (a Annotation) Key() string {
	return a.Type + "|" + a.NormalizedText
}

// ContextDomain is a provider-assigned topical domain.
type ContextDomain struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ContextEntity is a provider-assigned topical entity.
type ContextEntity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ContextAnnotation pairs a topical entity with its domain.
type ContextAnnotation struct {
	Domain ContextDomain `json:"domain"`
	Entity ContextEntity `json:"entity"`
}

// Media is an attachment. Identity is the provider media key.
type Media struct {
	Key             string `json:"media_key"`
	Type            string `json:"type"`
	URL             string `json:"url"`
	PreviewImageURL string `json:"preview_image_url"`
	AltText         string `json:"alt_text"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	DurationMS      int    `json:"duration_ms"`
}

// PostReference points from one post to another (quote, reply, retweet).
type PostReference struct {
	PostID string `json:"post_id"`
	Type   string `json:"type"`
}

// Post is a single post ("Tweet"). Identity is the provider-assigned ID;
// content is immutable and created once.
type Post struct {
	ID                string              `json:"id"`
	AuthorID          string              `json:"author_id"`
	Text              string              `json:"text"`
	Lang              string              `json:"lang"`
	ConversationID    string              `json:"conversation_id"`
	CreatedAt         string              `json:"created_at"`
	ReplySettings     string              `json:"reply_settings"`
	InReplyToUserID   string              `json:"in_reply_to_user_id"`
	PossiblySensitive bool                `json:"possibly_sensitive"`
	RetweetCount      int                 `json:"retweet_count"`
	ReplyCount        int                 `json:"reply_count"`
	LikeCount         int                 `json:"like_count"`
	QuoteCount        int                 `json:"quote_count"`
	Mentions          []Mention           `json:"mentions,omitempty"`
	Links             []Link              `json:"links,omitempty"`
	Annotations       []Annotation        `json:"annotations,omitempty"`
	Contexts          []ContextAnnotation `json:"context_annotations,omitempty"`
	Hashtags          []string            `json:"hashtags,omitempty"`
	Cashtags          []string            `json:"cashtags,omitempty"`
	MediaKeys         []string            `json:"media_keys,omitempty"`
	References        []PostReference     `json:"references,omitempty"`
}

// Batch is one fetched timeline page: the account's posts plus every
// referenced object the provider included alongside them.
type Batch struct {
	Posts            []Post    `json:"posts"`
	IncludedPosts    []Post    `json:"included_posts,omitempty"`
	IncludedAccounts []Account `json:"included_accounts,omitempty"`
	IncludedMedia    []Media   `json:"included_media,omitempty"`
}

// Empty reports whether the batch carries no posts at all.
func (b *Batch) Empty() bool {
	return len(b.Posts) == 0 && len(b.IncludedPosts) == 0
}
