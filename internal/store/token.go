package store

import (
	"context"

	"github.com/tweetscape/indexer/internal/domain"
)

// TokenStore defines the interface for access-token persistence. Tokens are
// written by the OAuth handshake of the web front-end; the indexer only reads
// them and writes back refreshed values.
type TokenStore interface {
	// GetToken retrieves the access token of the given account.
	// Returns ErrTokenNotFound if no token is stored for the account.
	GetToken(ctx context.Context, accountID string) (*domain.AccessToken, error)

	// SaveToken writes back a refreshed access token for its account.
	// Returns ErrTokenNotFound if no token row exists for the account.
	SaveToken(ctx context.Context, token *domain.AccessToken) error
}
