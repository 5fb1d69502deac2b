package usecase

import (
	"context"

	"gatekeeper/internal/domain/entity"

	"github.com/google/uuid"
)

// SessionUsecase is the session lifecycle core: it owns the per-user active
// set of refresh tokens and the rotation protocol, including reuse detection.
type SessionUsecase interface {
	// IssueSession mints a fresh token pair for the user and adds the refresh
	// token to their active set. Used by login and registration.
	IssueSession(ctx context.Context, user *entity.User) (*entity.TokenPair, error)

	// Rotate exchanges a presented refresh token for a new token pair and
	// returns the token's subject alongside. The presented token is consumed;
	// presenting it again outside the grace window revokes every session the
	// user has.
	Rotate(ctx context.Context, presentedToken string) (*entity.TokenPair, *entity.User, error)

	// Revoke removes the session behind the presented token, if any.
	// Revoking an unknown or already-revoked token is not an error.
	Revoke(ctx context.Context, presentedToken string) error

	// RevokeAll removes every session for the user, including rotation history.
	RevokeAll(ctx context.Context, userID uuid.UUID) error

	// ActiveSessions lists the user's non-expired sessions.
	ActiveSessions(ctx context.Context, userID uuid.UUID) ([]*entity.SessionInfo, error)
}
