// Package repository defines the interfaces for the persistence layer.
// These interfaces act as a contract between the domain/application layers and the infrastructure layer.
package repository

import (
	"context"

	"gatekeeper/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Domain-specific errors for user persistence.
var (
	// ErrUserNotFound is returned when a user is not found.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailExists is returned when attempting to create a user with an email that already exists.
	ErrEmailExists = errors.New("email already exists")
)

// UserRepository defines the interface for user credential operations.
type UserRepository interface {
	// CreateUser persists a new user. The email must be unique; a duplicate
	// surfaces as ErrEmailExists.
	CreateUser(ctx context.Context, user *entity.User) error

	// GetUserByID retrieves a user by their unique ID.
	GetUserByID(ctx context.Context, id uuid.UUID) (*entity.User, error)

	// GetUserByEmail retrieves a user by their normalized email address.
	GetUserByEmail(ctx context.Context, email string) (*entity.User, error)

	// UpdateUser updates a user's mutable profile fields.
	UpdateUser(ctx context.Context, user *entity.User) error

	// UpdatePassword replaces the user's stored password hash.
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error

	// DeleteUser removes the user record.
	DeleteUser(ctx context.Context, id uuid.UUID) error
}
