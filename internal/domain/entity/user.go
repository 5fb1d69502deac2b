// Package entity contains the core business objects of the project,
// each representing a unique, identifiable concept within the domain.
package entity

import (
	"time"

	"github.com/google/uuid"
)

// User is the core identity record. There is a single user type; roles and
// multi-provider credentials are deliberately out of scope.
type User struct {
	ID           uuid.UUID `json:"id"`    // The unique identifier for the user.
	Email        string    `json:"email"` // Normalized (lowercased, trimmed) login identifier, unique.
	Name         string    `json:"name"`  // The user's display name.
	PasswordHash string    `json:"-"`     // bcrypt hash; owned by the credential store, never serialized.
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
