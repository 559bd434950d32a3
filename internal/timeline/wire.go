package timeline

import "github.com/tweetscape/indexer/internal/domain"

// Wire types mirror the upstream JSON shapes. They exist only to decode
// responses; everything downstream works with domain types.

type wireUser struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	ProfileImageURL string `json:"profile_image_url"`
	URL             string `json:"url"`
	Verified        bool   `json:"verified"`
	CreatedAt       string `json:"created_at"`
	PublicMetrics   struct {
		FollowersCount int `json:"followers_count"`
		FollowingCount int `json:"following_count"`
		TweetCount     int `json:"tweet_count"`
		ListedCount    int `json:"listed_count"`
	} `json:"public_metrics"`
}

func (u wireUser) toDomain() domain.Account {
	return domain.Account{
		ID:              u.ID,
		Username:        u.Username,
		Name:            u.Name,
		Description:     u.Description,
		ProfileImageURL: u.ProfileImageURL,
		URL:             u.URL,
		Verified:        u.Verified,
		CreatedAt:       u.CreatedAt,
		FollowersCount:  u.PublicMetrics.FollowersCount,
		FollowingCount:  u.PublicMetrics.FollowingCount,
		PostCount:       u.PublicMetrics.TweetCount,
		ListedCount:     u.PublicMetrics.ListedCount,
	}
}

type wireMedia struct {
	MediaKey        string `json:"media_key"`
	Type            string `json:"type"`
	URL             string `json:"url"`
	PreviewImageURL string `json:"preview_image_url"`
	AltText         string `json:"alt_text"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	DurationMS      int    `json:"duration_ms"`
}

func (m wireMedia) toDomain() domain.Media {
	return domain.Media{
		Key:             m.MediaKey,
		Type:            m.Type,
		URL:             m.URL,
		PreviewImageURL: m.PreviewImageURL,
		AltText:         m.AltText,
		Width:           m.Width,
		Height:          m.Height,
		DurationMS:      m.DurationMS,
	}
}

type wireTweet struct {
	ID                string `json:"id"`
	Text              string `json:"text"`
	AuthorID          string `json:"author_id"`
	Lang              string `json:"lang"`
	ConversationID    string `json:"conversation_id"`
	CreatedAt         string `json:"created_at"`
	ReplySettings     string `json:"reply_settings"`
	InReplyToUserID   string `json:"in_reply_to_user_id"`
	PossiblySensitive bool   `json:"possibly_sensitive"`
	PublicMetrics     struct {
		RetweetCount int `json:"retweet_count"`
		ReplyCount   int `json:"reply_count"`
		LikeCount    int `json:"like_count"`
		QuoteCount   int `json:"quote_count"`
	} `json:"public_metrics"`
	Entities struct {
		Mentions []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"mentions"`
		URLs []struct {
			URL         string `json:"url"`
			ExpandedURL string `json:"expanded_url"`
			DisplayURL  string `json:"display_url"`
		} `json:"urls"`
		Annotations []struct {
			Type           string  `json:"type"`
			NormalizedText string  `json:"normalized_text"`
			Probability    float64 `json:"probability"`
		} `json:"annotations"`
		Hashtags []struct {
			Tag string `json:"tag"`
		} `json:"hashtags"`
		Cashtags []struct {
			Tag string `json:"tag"`
		} `json:"cashtags"`
	} `json:"entities"`
	ContextAnnotations []struct {
		Domain struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"domain"`
		Entity struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"entity"`
	} `json:"context_annotations"`
	Attachments struct {
		MediaKeys []string `json:"media_keys"`
	} `json:"attachments"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
}

func (t wireTweet) toDomain() domain.Post {
	post := domain.Post{
		ID:                t.ID,
		AuthorID:          t.AuthorID,
		Text:              t.Text,
		Lang:              t.Lang,
		ConversationID:    t.ConversationID,
		CreatedAt:         t.CreatedAt,
		ReplySettings:     t.ReplySettings,
		InReplyToUserID:   t.InReplyToUserID,
		PossiblySensitive: t.PossiblySensitive,
		RetweetCount:      t.PublicMetrics.RetweetCount,
		ReplyCount:        t.PublicMetrics.ReplyCount,
		LikeCount:         t.PublicMetrics.LikeCount,
		QuoteCount:        t.PublicMetrics.QuoteCount,
		MediaKeys:         t.Attachments.MediaKeys,
	}

	for _, mention := range t.Entities.Mentions {
		post.Mentions = append(post.Mentions, domain.Mention{
			AccountID: mention.ID,
			Username:  mention.Username,
		})
	}

	for _, link := range t.Entities.URLs {
		post.Links = append(post.Links, domain.Link{
			URL:         link.URL,
			ExpandedURL: link.ExpandedURL,
			DisplayURL:  link.DisplayURL,
		})
	}

	for _, annotation := range t.Entities.Annotations {
		post.Annotations = append(post.Annotations, domain.Annotation{
			Type:           annotation.Type,
			NormalizedText: annotation.NormalizedText,
			Probability:    annotation.Probability,
		})
	}

	for _, tag := range t.Entities.Hashtags {
		post.Hashtags = append(post.Hashtags, tag.Tag)
	}

	for _, tag := range t.Entities.Cashtags {
		post.Cashtags = append(post.Cashtags, tag.Tag)
	}

	for _, context := range t.ContextAnnotations {
		post.Contexts = append(post.Contexts, domain.ContextAnnotation{
			Domain: domain.ContextDomain(context.Domain),
			Entity: domain.ContextEntity(context.Entity),
		})
	}

	for _, ref := range t.ReferencedTweets {
		post.References = append(post.References, domain.PostReference{
			PostID: ref.ID,
			Type:   ref.Type,
		})
	}

	return post
}

type wireTimeline struct {
	Data     []wireTweet `json:"data"`
	Includes struct {
		Users  []wireUser  `json:"users"`
		Tweets []wireTweet `json:"tweets"`
		Media  []wireMedia `json:"media"`
	} `json:"includes"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NewestID    string `json:"newest_id"`
		OldestID    string `json:"oldest_id"`
	} `json:"meta"`
}

func (t *wireTimeline) toBatch() *domain.Batch {
	batch := &domain.Batch{}

	for _, tweet := range t.Data {
		batch.Posts = append(batch.Posts, tweet.toDomain())
	}
	for _, tweet := range t.Includes.Tweets {
		batch.IncludedPosts = append(batch.IncludedPosts, tweet.toDomain())
	}
	for _, user := range t.Includes.Users {
		batch.IncludedAccounts = append(batch.IncludedAccounts, user.toDomain())
	}
	for _, media := range t.Includes.Media {
		batch.IncludedMedia = append(batch.IncludedMedia, media.toDomain())
	}

	return batch
}
