package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/tweetscape/indexer/internal/domain"
	"github.com/tweetscape/indexer/internal/platform/logger"
	"github.com/tweetscape/indexer/internal/store"
)

// PostgresTokenStore implements the store.TokenStore interface using
// PostgreSQL. The tokens table is owned by the web front-end's OAuth
// handshake; the indexer reads tokens and writes back refreshed values.
type PostgresTokenStore struct {
	db store.DBTX
}

// NewPostgresTokenStore creates a new PostgresTokenStore.
func NewPostgresTokenStore(db store.DBTX) *PostgresTokenStore {
	return &PostgresTokenStore{
		db: db,
	}
}

// Ensure PostgresTokenStore implements store.TokenStore.
var _ store.TokenStore = (*PostgresTokenStore)(nil)

// GetToken retrieves the access token of the given account.
func (s *PostgresTokenStore) GetToken(
	ctx context.Context,
	accountID string,
) (*domain.AccessToken, error) {
	query := `
		SELECT user_id, access_token, refresh_token, expires_in, created_at, updated_at
		FROM tokens
		WHERE user_id = $1
	`

	var token domain.AccessToken
	err := s.db.QueryRowContext(ctx, query, accountID).Scan(
		&token.AccountID,
		&token.AccessToken,
		&token.RefreshToken,
		&token.ExpiresIn,
		&token.CreatedAt,
		&token.UpdatedAt,
	)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, store.ErrTokenNotFound
		}
		return nil, MapError(err)
	}

	return &token, nil
}

// SaveToken writes back a refreshed access token for its account.
func (s *PostgresTokenStore) SaveToken(ctx context.Context, token *domain.AccessToken) error {
	log := logger.FromContext(ctx)

	if err := token.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		UPDATE tokens
		SET access_token = $1, refresh_token = $2, expires_in = $3, updated_at = $4
		WHERE user_id = $5
	`

	result, err := s.db.ExecContext(ctx, query,
		token.AccessToken,
		token.RefreshToken,
		token.ExpiresIn,
		time.Now().UTC(),
		token.AccountID,
	)
	if err != nil {
		log.Error("failed to save token",
			"account_id", token.AccountID,
			"error", err)
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return store.ErrTokenNotFound
	}

	return nil
}
