// Package service defines interfaces for core, stateless domain logic.
// These services encapsulate business rules that don't naturally fit within a single entity.
package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// TokenKind distinguishes the two credentials the codec mints. Verification is
// kind-aware so an access token can never be replayed as a refresh token or
// vice versa.
type TokenKind string

const (
	// AccessToken is the short-lived stateless credential.
	AccessToken TokenKind = "access"
	// RefreshToken is the long-lived credential tracked by the session store.
	RefreshToken TokenKind = "refresh"
)

// Verification failure modes. Expiry is reported distinctly because the
// session layer treats an expired refresh token as a benign outcome rather
// than an authentication failure.
var (
	// ErrTokenInvalid covers malformed tokens, bad signatures and kind mismatches.
	ErrTokenInvalid = errors.New("token is invalid")
	// ErrTokenExpired is returned when a structurally valid token is past its expiry.
	ErrTokenExpired = errors.New("token has expired")
)

// TokenClaims is the verified content of a token.
type TokenClaims struct {
	UserID   uuid.UUID // Subject of the token.
	Email    string    // Email of the subject at mint time.
	Kind     TokenKind // Which credential this is.
	IssuedAt time.Time // When the token was minted.
}

// TokenCodec mints and verifies the service's signed tokens.
// This abstracts the details of token creation from the use cases.
type TokenCodec interface {
	// IssueAccessToken creates a short-lived access token for the user.
	IssueAccessToken(userID uuid.UUID, email string) (string, error)

	// IssueRefreshToken creates a long-lived refresh token for the user.
	IssueRefreshToken(userID uuid.UUID, email string) (string, error)

	// Verify checks signature, expiry and kind. It returns ErrTokenExpired for
	// a well-formed token past its expiry and ErrTokenInvalid for everything
	// else that fails.
	Verify(tokenString string, kind TokenKind) (*TokenClaims, error)

	// HashToken produces the storage digest for a raw token. The raw value
	// never reaches persistence; only this digest does.
	HashToken(tokenString string) string

	// AccessTokenTTL returns the configured lifetime of access tokens.
	AccessTokenTTL() time.Duration

	// RefreshTokenTTL returns the configured lifetime of refresh tokens.
	RefreshTokenTTL() time.Duration
}
