package usecase

import (
	"context"

	"gatekeeper/internal/domain/entity"

	"github.com/google/uuid"
)

// UpdateProfileInput defines the mutable profile fields.
type UpdateProfileInput struct {
	Name string
}

// ChangePasswordInput defines the data required to change a password.
type ChangePasswordInput struct {
	CurrentPassword string
	NewPassword     string
}

// AccountUsecase defines the interface for operations on an authenticated account.
type AccountUsecase interface {
	// GetProfile retrieves the user's profile.
	GetProfile(ctx context.Context, userID uuid.UUID) (*entity.User, error)

	// UpdateProfile updates the user's profile fields.
	UpdateProfile(ctx context.Context, userID uuid.UUID, input UpdateProfileInput) (*entity.User, error)

	// ChangePassword verifies the current password, sets the new one, and
	// revokes every session so stolen refresh tokens die with the old password.
	ChangePassword(ctx context.Context, userID uuid.UUID, input ChangePasswordInput) error

	// DeleteAccount verifies the password and removes the user together with
	// all their sessions.
	DeleteAccount(ctx context.Context, userID uuid.UUID, password string) error
}
