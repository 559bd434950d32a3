package timeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tweetscape/indexer/internal/domain"
	"github.com/tweetscape/indexer/internal/platform/logger"
)

// DefaultBaseURL is the upstream API root.
const DefaultBaseURL = "https://api.twitter.com/2"

// tweetFields, userFields, and mediaFields mirror the expansions the graph
// model needs; trimming them silently drops relationships.
const (
	tweetExpansions = "author_id,in_reply_to_user_id,referenced_tweets.id," +
		"referenced_tweets.id.author_id,entities.mentions.username,attachments.media_keys"
	tweetFields = "attachments,author_id,context_annotations,conversation_id,created_at," +
		"entities,id,in_reply_to_user_id,lang,public_metrics,text,possibly_sensitive," +
		"referenced_tweets,reply_settings"
	userFields = "created_at,description,id,name,profile_image_url,public_metrics,url," +
		"username,verified"
	mediaFields = "alt_text,duration_ms,height,media_key,preview_image_url,type,url,width"
)

// HTTPClient implements Client over the upstream REST API.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates an HTTPClient. A nil httpClient uses a client with a
// 30-second timeout; an empty baseURL uses DefaultBaseURL.
func NewHTTPClient(baseURL string, httpClient *http.Client) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// Ensure HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

// GetAccountInfo fetches an account's metadata by ID.
func (c *HTTPClient) GetAccountInfo(
	ctx context.Context,
	accountRef, token string,
) (*domain.Account, error) {
	query := url.Values{}
	query.Set("user.fields", userFields)

	var response struct {
		Data *wireUser `json:"data"`
	}
	path := fmt.Sprintf("/users/%s", url.PathEscape(accountRef))
	if err := c.get(ctx, path, query, token, &response); err != nil {
		return nil, err
	}

	if response.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, accountRef)
	}

	account := response.Data.toDomain()
	return &account, nil
}

// GetTimeline fetches one timeline page for an account.
func (c *HTTPClient) GetTimeline(
	ctx context.Context,
	accountID, token string,
	q Query,
) (*domain.Batch, error) {
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	query := url.Values{}
	query.Set("max_results", strconv.Itoa(pageSize))
	query.Set("expansions", tweetExpansions)
	query.Set("tweet.fields", tweetFields)
	query.Set("user.fields", userFields)
	query.Set("media.fields", mediaFields)

	if q.BoundaryID != "" {
		switch q.Direction {
		case DirectionNewer:
			query.Set("since_id", q.BoundaryID)
			if q.UntilID != "" {
				query.Set("until_id", q.UntilID)
			}
		case DirectionOlder:
			query.Set("until_id", q.BoundaryID)
		default:
			return nil, fmt.Errorf("unknown timeline direction %q", q.Direction)
		}
	}

	var response wireTimeline
	path := fmt.Sprintf("/users/%s/tweets", url.PathEscape(accountID))
	if err := c.get(ctx, path, query, token, &response); err != nil {
		return nil, err
	}

	return response.toBatch(), nil
}

// GetFollowing fetches one page of accounts the given account follows.
func (c *HTTPClient) GetFollowing(
	ctx context.Context,
	accountID, token, pageToken string,
	pageSize int,
) ([]domain.Account, string, error) {
	if pageSize <= 0 {
		pageSize = 1000
	}

	query := url.Values{}
	query.Set("max_results", strconv.Itoa(pageSize))
	query.Set("user.fields", userFields)
	if pageToken != "" {
		query.Set("pagination_token", pageToken)
	}

	var response struct {
		Data []wireUser `json:"data"`
		Meta struct {
			NextToken string `json:"next_token"`
		} `json:"meta"`
	}
	path := fmt.Sprintf("/users/%s/following", url.PathEscape(accountID))
	if err := c.get(ctx, path, query, token, &response); err != nil {
		return nil, "", err
	}

	accounts := make([]domain.Account, len(response.Data))
	for i, user := range response.Data {
		accounts[i] = user.toDomain()
	}

	return accounts, response.Meta.NextToken, nil
}

// get performs an authorized GET and decodes the JSON body, mapping upstream
// failures onto the package's error taxonomy.
func (c *HTTPClient) get(
	ctx context.Context,
	path string,
	query url.Values,
	token string,
	out any,
) error {
	log := logger.FromContext(ctx)

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{ResetAt: parseRateLimitReset(resp.Header)}
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: upstream returned %d", ErrTransient, resp.StatusCode)
	default:
		return fmt.Errorf("upstream returned unexpected status %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Error("failed to decode upstream response", "path", path, "error", err)
		return fmt.Errorf("%w: decoding response: %v", ErrTransient, err)
	}

	return nil
}

// parseRateLimitReset reads the upstream reset timestamp header. Returns the
// zero time when the header is absent or malformed.
func parseRateLimitReset(header http.Header) time.Time {
	raw := header.Get("x-rate-limit-reset")
	if raw == "" {
		return time.Time{}
	}
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(seconds, 0).UTC()
}
