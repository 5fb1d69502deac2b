// Package auth provides concrete implementations for authentication-related domain services.
package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"gatekeeper/config"
	"gatekeeper/internal/domain/service"
	"gatekeeper/internal/errors"
)

// jwtCodec is a concrete implementation of the TokenCodec interface using the JWT standard.
type jwtCodec struct {
	accessSecret  string        // Secret key for signing access tokens.
	refreshSecret string        // Secret key for signing refresh tokens.
	accessTTL     time.Duration // Time-to-live for access tokens.
	refreshTTL    time.Duration // Time-to-live for refresh tokens.
}

// NewJWTCodec is the constructor for jwtCodec.
// It takes configuration values to create a new token codec instance.
func NewJWTCodec(cfg *config.Config) (service.TokenCodec, error) {
	if cfg.SecretKey.Access == "" || cfg.SecretKey.Refresh == "" {
		return nil, errors.New("jwt secrets must be provided")
	}

	return &jwtCodec{
		accessSecret:  cfg.SecretKey.Access,
		refreshSecret: cfg.SecretKey.Refresh,
		accessTTL:     cfg.Auth.AccessTokenTTL,
		refreshTTL:    cfg.Auth.RefreshTokenTTL,
	}, nil
}

// IssueAccessToken creates a short-lived access token for the user.
func (c *jwtCodec) IssueAccessToken(userID uuid.UUID, email string) (string, error) {
	return c.issueToken(userID, email, c.accessTTL, c.accessSecret, service.AccessToken)
}

// IssueRefreshToken creates a long-lived refresh token for the user.
func (c *jwtCodec) IssueRefreshToken(userID uuid.UUID, email string) (string, error) {
	return c.issueToken(userID, email, c.refreshTTL, c.refreshSecret, service.RefreshToken)
}

// Verify checks signature, expiry and kind, and extracts the claims.
func (c *jwtCodec) Verify(tokenString string, kind service.TokenKind) (*service.TokenClaims, error) {
	secret := c.accessSecret
	if kind == service.RefreshToken {
		secret = c.refreshSecret
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		// Ensure the signing method is what we expect.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}

		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, service.ErrTokenExpired
		}

		return nil, service.ErrTokenInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, service.ErrTokenInvalid
	}

	tokenType, _ := claims["type"].(string)
	if service.TokenKind(tokenType) != kind {
		return nil, service.ErrTokenInvalid
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return nil, service.ErrTokenInvalid
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, service.ErrTokenInvalid
	}

	issuedAt, err := claims.GetIssuedAt()
	if err != nil || issuedAt == nil {
		return nil, service.ErrTokenInvalid
	}

	email, _ := claims["email"].(string)

	return &service.TokenClaims{
		UserID:   userID,
		Email:    email,
		Kind:     kind,
		IssuedAt: issuedAt.Time,
	}, nil
}

// HashToken produces the SHA-256 digest of a raw token, base64url-encoded.
// Stored tokens are only ever compared by this digest.
func (c *jwtCodec) HashToken(tokenString string) string {
	sum := sha256.Sum256([]byte(tokenString))

	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// AccessTokenTTL returns the configured lifetime of access tokens.
func (c *jwtCodec) AccessTokenTTL() time.Duration {
	return c.accessTTL
}

// RefreshTokenTTL returns the configured lifetime of refresh tokens.
func (c *jwtCodec) RefreshTokenTTL() time.Duration {
	return c.refreshTTL
}

// issueToken is a private helper to create a JWT with specific claims.
// Each token carries a unique jti so two tokens minted for the same user in
// the same second still hash to different values.
func (c *jwtCodec) issueToken(userID uuid.UUID, email string, ttl time.Duration, secret string, kind service.TokenKind) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID.String(),     // Subject (who the token is for)
		"email": email,               // Subject's email at mint time
		"iat":   now.Unix(),          // Issued At
		"exp":   now.Add(ttl).Unix(), // Expiration Time
		"jti":   uuid.NewString(),    // Unique token ID
		"type":  string(kind),        // Type of token (access or refresh)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}

	return signed, nil
}
