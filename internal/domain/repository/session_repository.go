package repository

import (
	"context"

	"gatekeeper/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Domain-specific errors for session persistence.
var (
	// ErrRefreshTokenNotFound is returned when a refresh token is not found.
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	// ErrRotationHistoryNotFound is returned when a user has no recorded rotation.
	ErrRotationHistoryNotFound = errors.New("rotation history not found")
)

// RefreshTokenRepository manages the per-user set of active refresh tokens.
// Each record is one session; multi-device login means multiple records per user.
type RefreshTokenRepository interface {
	// CreateRefreshToken persists a new refresh token, representing a user session.
	CreateRefreshToken(ctx context.Context, token *entity.RefreshToken) error

	// FindRefreshTokenByHash retrieves a refresh token record by its securely stored hash.
	FindRefreshTokenByHash(ctx context.Context, tokenHash string) (*entity.RefreshToken, error)

	// FindRefreshTokensByUserID retrieves all refresh tokens for a specific user.
	// This allows users to see all their active sessions across different devices.
	FindRefreshTokensByUserID(ctx context.Context, userID uuid.UUID) ([]*entity.RefreshToken, error)

	// ClaimRefreshTokenByHash atomically removes the record with the given hash
	// and reports whether this caller removed it. Under concurrent rotation of
	// the same token exactly one caller observes true; the others must treat the
	// token as already retired.
	ClaimRefreshTokenByHash(ctx context.Context, tokenHash string) (bool, error)

	// DeleteRefreshTokensByUserID removes all refresh tokens for a specific user.
	// This is the storage half of revoke-all.
	DeleteRefreshTokensByUserID(ctx context.Context, userID uuid.UUID) error

	// DeleteExpiredRefreshTokens removes all expired refresh tokens.
	// This should be called periodically for cleanup.
	DeleteExpiredRefreshTokens(ctx context.Context) error

	// CountActiveSessionsByUserID returns the number of non-expired sessions for a user.
	CountActiveSessionsByUserID(ctx context.Context, userID uuid.UUID) (int, error)
}

// RotationHistoryRepository manages the single-slot record of each user's most
// recent rotation. The slot backs the grace window for duplicate in-flight
// refreshes; anything older than the latest rotation is irrelevant.
type RotationHistoryRepository interface {
	// GetRotationHistory retrieves the user's rotation slot, or
	// ErrRotationHistoryNotFound when no rotation has been recorded.
	GetRotationHistory(ctx context.Context, userID uuid.UUID) (*entity.RotationHistory, error)

	// ReplaceRotationHistory overwrites the user's rotation slot with the given record.
	ReplaceRotationHistory(ctx context.Context, history *entity.RotationHistory) error

	// ClearRotationHistory removes the user's rotation slot, if any.
	ClearRotationHistory(ctx context.Context, userID uuid.UUID) error
}
