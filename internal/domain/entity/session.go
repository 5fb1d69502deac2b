// Package entity contains the core business objects of the project,
// each representing a unique, identifiable concept within the domain.
package entity

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is one currently-honorable long-lived credential — a member of
// the user's active set. The raw signed token is never stored; TokenHash is a
// SHA-256 hash of it, so the set is keyed by value without keeping the value.
type RefreshToken struct {
	ID         uuid.UUID // The unique ID for this specific refresh token record.
	UserID     uuid.UUID // Links this session to the User it belongs to.
	TokenHash  string    // SHA-256 hash of the raw refresh token, base64url-encoded.
	IssuedAt   time.Time // When this credential was minted.
	LastUsedAt time.Time // Last time the credential was presented for rotation.
	ExpiresAt  time.Time // Absolute expiry; entries past this are pruned.
}

// RotationHistory is the single per-user record of the most recent rotation.
// It exists so a duplicate in-flight refresh that races a rotation can be told
// apart from replay of a stolen token: within the grace window the retired
// token is still answered with the credential that replaced it.
//
// History is single-slot on purpose. Only the latest rotation's grace window
// matters; keeping more would widen the replay surface.
type RotationHistory struct {
	UserID           uuid.UUID // One slot per user.
	RetiredHash      string    // Hash of the token that was rotated out.
	ReplacementToken string    // The raw refresh token minted by that rotation.
	RetiredAt        time.Time // When the rotation happened; anchors the grace window.
}

// TokenPair is what a successful authentication or rotation yields: a
// short-lived stateless access token and a long-lived tracked refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// SessionInfo is the caller-facing view of an active session.
type SessionInfo struct {
	ID         uuid.UUID `json:"id"`
	IssuedAt   time.Time `json:"issuedAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}
