package domain

import (
	"errors"
	"time"
)

// AccessToken validation errors
var (
	ErrEmptyTokenAccountID = errors.New("token account ID cannot be empty")
	ErrEmptyAccessToken    = errors.New("access token value cannot be empty")
)

// AccessToken is the OAuth token pair of one account. The indexer borrows it
// to make upstream calls on the requester's quota and writes back refreshed
// values; it never creates tokens.
type AccessToken struct {
	AccountID    string    `json:"account_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int       `json:"expires_in"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validate checks if the AccessToken has valid data.
func (t *AccessToken) Validate() error {
	if t.AccountID == "" {
		return ErrEmptyTokenAccountID
	}

	if t.AccessToken == "" {
		return ErrEmptyAccessToken
	}

	return nil
}
