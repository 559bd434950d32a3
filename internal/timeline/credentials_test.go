package timeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tweetscape/indexer/internal/domain"
	"github.com/tweetscape/indexer/internal/store"
)

// stubTokenStore is an in-memory store.TokenStore.
type stubTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*domain.AccessToken
}

func newStubTokenStore() *stubTokenStore {
	return &stubTokenStore{tokens: make(map[string]*domain.AccessToken)}
}

func (s *stubTokenStore) GetToken(ctx context.Context, accountID string) (*domain.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[accountID]
	if !ok {
		return nil, store.ErrTokenNotFound
	}
	copied := *token
	return &copied, nil
}

func (s *stubTokenStore) SaveToken(ctx context.Context, token *domain.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *token
	s.tokens[token.AccountID] = &copied
	return nil
}

func seedToken(tokens *stubTokenStore, requesterID, access, refresh string) {
	_ = tokens.SaveToken(context.Background(), &domain.AccessToken{
		AccountID:    requesterID,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    7200,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	})
}

func TestCredentialBrokerAccessToken(t *testing.T) {
	t.Parallel()

	tokens := newStubTokenStore()
	seedToken(tokens, "req_1", "tok", "refresh")
	broker := NewCredentialBroker(tokens, "http://unused", "client", "secret", nil)

	got, err := broker.AccessToken(context.Background(), "req_1")
	require.NoError(t, err)
	assert.Equal(t, "tok", got)

	_, err = broker.AccessToken(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrCredential)
}

func TestCredentialBrokerRefresh(t *testing.T) {
	t.Parallel()

	tokens := newStubTokenStore()
	seedToken(tokens, "req_1", "stale", "refresh-1")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.FormValue("grant_type"))
		assert.Equal(t, "refresh-1", r.FormValue("refresh_token"))
		assert.Equal(t, "client", r.FormValue("client_id"))

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "client", user)
		assert.Equal(t, "secret", pass)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "fresh",
			"refresh_token": "refresh-2",
			"expires_in":    7200,
		})
	}))
	defer server.Close()

	broker := NewCredentialBroker(tokens, server.URL, "client", "secret", server.Client())

	got, err := broker.Refresh(context.Background(), "req_1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", got)

	// The rotated pair is persisted.
	stored, err := tokens.GetToken(context.Background(), "req_1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", stored.AccessToken)
	assert.Equal(t, "refresh-2", stored.RefreshToken)
}

func TestCredentialBrokerRefreshOutOfSync(t *testing.T) {
	t.Parallel()

	tokens := newStubTokenStore()
	seedToken(tokens, "req_1", "stale", "revoked")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	broker := NewCredentialBroker(tokens, server.URL, "client", "secret", server.Client())

	_, err := broker.Refresh(context.Background(), "req_1")
	assert.ErrorIs(t, err, ErrCredential)
}

func TestCredentialBrokerRefreshUpstreamOutage(t *testing.T) {
	t.Parallel()

	tokens := newStubTokenStore()
	seedToken(tokens, "req_1", "stale", "refresh-1")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	broker := NewCredentialBroker(tokens, server.URL, "client", "secret", server.Client())

	_, err := broker.Refresh(context.Background(), "req_1")
	assert.ErrorIs(t, err, ErrTransient)
}
