package auth

import (
	"testing"
	"time"

	"gatekeeper/config"
	"gatekeeper/internal/domain/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func testConfig(accessTTL, refreshTTL time.Duration) *config.Config {
	cfg := &config.Config{
		Auth: &config.AuthConfig{
			AccessTokenTTL:  accessTTL,
			RefreshTokenTTL: refreshTTL,
		},
	}
	cfg.SecretKey.Access = "test_access_secret_key_very_long_for_testing"
	cfg.SecretKey.Refresh = "test_refresh_secret_key_very_long_for_testing"

	return cfg
}

func TestJWTCodec_IssueAndVerifyTokens(t *testing.T) {
	codec, err := NewJWTCodec(testConfig(15*time.Minute, 7*24*time.Hour))
	assert.NoError(t, err)
	assert.NotNil(t, codec)

	userID := uuid.New()

	accessToken, err := codec.IssueAccessToken(userID, "alice@example.com")
	assert.NoError(t, err)
	assert.NotEmpty(t, accessToken)

	refreshToken, err := codec.IssueRefreshToken(userID, "alice@example.com")
	assert.NoError(t, err)
	assert.NotEmpty(t, refreshToken)

	// Validate access token
	accessClaims, err := codec.Verify(accessToken, service.AccessToken)
	assert.NoError(t, err)
	assert.NotNil(t, accessClaims)
	assert.Equal(t, userID, accessClaims.UserID)
	assert.Equal(t, "alice@example.com", accessClaims.Email)
	assert.Equal(t, service.AccessToken, accessClaims.Kind)

	// Validate refresh token
	refreshClaims, err := codec.Verify(refreshToken, service.RefreshToken)
	assert.NoError(t, err)
	assert.NotNil(t, refreshClaims)
	assert.Equal(t, userID, refreshClaims.UserID)
	assert.Equal(t, "alice@example.com", refreshClaims.Email)
	assert.Equal(t, service.RefreshToken, refreshClaims.Kind)
}

func TestJWTCodec_KindMismatch(t *testing.T) {
	codec, err := NewJWTCodec(testConfig(15*time.Minute, 7*24*time.Hour))
	assert.NoError(t, err)

	userID := uuid.New()

	accessToken, err := codec.IssueAccessToken(userID, "alice@example.com")
	assert.NoError(t, err)

	// An access token must never pass refresh verification: the secrets and
	// the type claim both differ.
	claims, err := codec.Verify(accessToken, service.RefreshToken)
	assert.ErrorIs(t, err, service.ErrTokenInvalid)
	assert.Nil(t, claims)
}

func TestJWTCodec_InvalidToken(t *testing.T) {
	codec, err := NewJWTCodec(testConfig(15*time.Minute, 7*24*time.Hour))
	assert.NoError(t, err)

	claims, err := codec.Verify("clearly-not-a-jwt-token-format", service.AccessToken)
	assert.ErrorIs(t, err, service.ErrTokenInvalid)
	assert.Nil(t, claims)
}

func TestJWTCodec_ExpiredToken(t *testing.T) {
	// A negative TTL mints a token that is already expired.
	codec, err := NewJWTCodec(testConfig(-time.Minute, -time.Minute))
	assert.NoError(t, err)

	refreshToken, err := codec.IssueRefreshToken(uuid.New(), "alice@example.com")
	assert.NoError(t, err)

	claims, err := codec.Verify(refreshToken, service.RefreshToken)
	assert.ErrorIs(t, err, service.ErrTokenExpired)
	assert.Nil(t, claims)
}

func TestJWTCodec_EmptySecrets(t *testing.T) {
	cfg := testConfig(15*time.Minute, 7*24*time.Hour)
	cfg.SecretKey.Access = ""
	cfg.SecretKey.Refresh = ""

	codec, err := NewJWTCodec(cfg)
	assert.Error(t, err)
	assert.Nil(t, codec)
	assert.Contains(t, err.Error(), "jwt secrets must be provided")
}

func TestJWTCodec_UniqueRefreshTokens(t *testing.T) {
	codec, err := NewJWTCodec(testConfig(15*time.Minute, 7*24*time.Hour))
	assert.NoError(t, err)

	userID := uuid.New()

	// Two tokens minted back to back in the same second must still differ,
	// otherwise the stored hashes would collide.
	first, err := codec.IssueRefreshToken(userID, "alice@example.com")
	assert.NoError(t, err)
	second, err := codec.IssueRefreshToken(userID, "alice@example.com")
	assert.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.NotEqual(t, codec.HashToken(first), codec.HashToken(second))
}

func TestJWTCodec_HashTokenDeterministic(t *testing.T) {
	codec, err := NewJWTCodec(testConfig(15*time.Minute, 7*24*time.Hour))
	assert.NoError(t, err)

	token, err := codec.IssueRefreshToken(uuid.New(), "alice@example.com")
	assert.NoError(t, err)

	assert.Equal(t, codec.HashToken(token), codec.HashToken(token))
	assert.NotEqual(t, token, codec.HashToken(token))
}

func TestJWTCodec_TTLAccessors(t *testing.T) {
	codec, err := NewJWTCodec(testConfig(15*time.Minute, 7*24*time.Hour))
	assert.NoError(t, err)

	assert.Equal(t, 15*time.Minute, codec.AccessTokenTTL())
	assert.Equal(t, 7*24*time.Hour, codec.RefreshTokenTTL())
}
