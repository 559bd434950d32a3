package timeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tweetscape/indexer/internal/platform/logger"
	"github.com/tweetscape/indexer/internal/store"
)

// DefaultTokenURL is the upstream OAuth token endpoint.
const DefaultTokenURL = "https://api.twitter.com/2/oauth2/token"

// CredentialSource resolves the access token donated by a requester.
type CredentialSource interface {
	// AccessToken returns the requester's current access token.
	// Returns ErrCredential when no usable token exists.
	AccessToken(ctx context.Context, requesterID string) (string, error)

	// Refresh exchanges the requester's refresh token for a new access
	// token, persists it, and returns it. Returns ErrCredential when the
	// refresh token is out of sync and the requester must log in again.
	Refresh(ctx context.Context, requesterID string) (string, error)
}

// CredentialBroker implements CredentialSource over the token store and the
// upstream OAuth refresh grant.
type CredentialBroker struct {
	tokens       store.TokenStore
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// NewCredentialBroker creates a CredentialBroker. An empty tokenURL uses
// DefaultTokenURL; a nil httpClient uses a client with a 15-second timeout.
func NewCredentialBroker(
	tokens store.TokenStore,
	tokenURL, clientID, clientSecret string,
	httpClient *http.Client,
) *CredentialBroker {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &CredentialBroker{
		tokens:       tokens,
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
	}
}

// Ensure CredentialBroker implements CredentialSource.
var _ CredentialSource = (*CredentialBroker)(nil)

// AccessToken returns the requester's current access token.
func (b *CredentialBroker) AccessToken(ctx context.Context, requesterID string) (string, error) {
	token, err := b.tokens.GetToken(ctx, requesterID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return "", fmt.Errorf("%w: no token for requester %s", ErrCredential, requesterID)
		}
		return "", fmt.Errorf("failed to load token for requester %s: %w", requesterID, err)
	}
	return token.AccessToken, nil
}

// Refresh exchanges the requester's refresh token for a new access token and
// persists the new pair.
func (b *CredentialBroker) Refresh(ctx context.Context, requesterID string) (string, error) {
	log := logger.FromContext(ctx)

	token, err := b.tokens.GetToken(ctx, requesterID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return "", fmt.Errorf("%w: no token for requester %s", ErrCredential, requesterID)
		}
		return "", fmt.Errorf("failed to load token for requester %s: %w", requesterID, err)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", token.RefreshToken)
	form.Set("client_id", b.clientID)

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		b.tokenURL,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return "", fmt.Errorf("failed to build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(b.clientID, b.clientSecret)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusBadRequest:
		// The refresh token is out of sync; the requester has to log in
		// again through the web app to mint a fresh pair.
		return "", fmt.Errorf("%w: refresh token out of sync for requester %s", ErrCredential, requesterID)
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: token endpoint returned %d", ErrTransient, resp.StatusCode)
	default:
		return "", fmt.Errorf("%w: token endpoint returned %d", ErrCredential, resp.StatusCode)
	}

	var refreshed struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&refreshed); err != nil {
		return "", fmt.Errorf("%w: decoding token response: %v", ErrTransient, err)
	}

	token.AccessToken = refreshed.AccessToken
	token.RefreshToken = refreshed.RefreshToken
	token.ExpiresIn = refreshed.ExpiresIn
	token.UpdatedAt = time.Now().UTC()

	if err := b.tokens.SaveToken(ctx, token); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	log.Info("refreshed access token", "requester_id", requesterID)
	return token.AccessToken, nil
}
