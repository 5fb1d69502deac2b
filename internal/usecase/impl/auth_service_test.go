package impl

import (
	"context"
	"testing"

	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/service"
	"gatekeeper/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_Register_Success(t *testing.T) {
	env := defaultTestEnv(t)
	ctx := context.Background()

	out, err := env.auth.Register(ctx, usecase.RegisterInput{
		Name:     "Alice",
		Email:    "  Alice@Example.COM ",
		Password: "correct horse battery staple",
	})
	require.NoError(t, err)
	require.NotNil(t, out)

	// Email is normalized before storage.
	assert.Equal(t, "alice@example.com", out.User.Email)
	assert.NotEmpty(t, out.AccessToken)
	assert.NotEmpty(t, out.RefreshToken)

	// The issued tokens verify against their respective kinds and carry the
	// subject's identity.
	accessClaims, err := env.codec.Verify(out.AccessToken, service.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, out.User.ID, accessClaims.UserID)
	assert.Equal(t, "alice@example.com", accessClaims.Email)

	refreshClaims, err := env.codec.Verify(out.RefreshToken, service.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, out.User.ID, refreshClaims.UserID)
	assert.Equal(t, "alice@example.com", refreshClaims.Email)

	// Exactly one session exists for the fresh account.
	count, err := env.store.CountActiveSessionsByUserID(ctx, out.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	env := defaultTestEnv(t)
	ctx := context.Background()
	env.registerUser(t, "alice@example.com")

	out, err := env.auth.Register(ctx, usecase.RegisterInput{
		Name:     "Impostor",
		Email:    "ALICE@example.com",
		Password: "a different password!",
	})
	assert.ErrorIs(t, err, domainerrors.ErrEmailTaken)
	assert.Nil(t, out)
}

func TestAuthService_Register_WeakPassword(t *testing.T) {
	env := defaultTestEnv(t)

	out, err := env.auth.Register(context.Background(), usecase.RegisterInput{
		Name:     "Alice",
		Email:    "alice@example.com",
		Password: "short",
	})
	assert.ErrorIs(t, err, domainerrors.ErrValidationFailed)
	assert.Nil(t, out)
}

func TestAuthService_Login_Success(t *testing.T) {
	env := defaultTestEnv(t)
	ctx := context.Background()
	registered := env.registerUser(t, "alice@example.com")

	out, err := env.auth.Login(ctx, usecase.LoginInput{
		Email:    "alice@example.com",
		Password: "correct horse battery staple",
	})
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, out.User.ID)

	// Login does not disturb the registration session: two devices, two entries.
	count, err := env.store.CountActiveSessionsByUserID(ctx, out.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	env := defaultTestEnv(t)
	ctx := context.Background()
	registered := env.registerUser(t, "alice@example.com")

	out, err := env.auth.Login(ctx, usecase.LoginInput{
		Email:    "alice@example.com",
		Password: "not the password",
	})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)
	assert.Nil(t, out)

	// A failed login leaves the session set untouched.
	count, err := env.store.CountActiveSessionsByUserID(ctx, registered.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAuthService_Login_UnknownEmail(t *testing.T) {
	env := defaultTestEnv(t)

	out, err := env.auth.Login(context.Background(), usecase.LoginInput{
		Email:    "nobody@example.com",
		Password: "whatever password",
	})

	// Indistinguishable from a wrong password.
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)
	assert.Nil(t, out)
}

func TestAuthService_Refresh_DelegatesToRotation(t *testing.T) {
	env := defaultTestEnv(t)
	ctx := context.Background()
	out := env.registerUser(t, "alice@example.com")

	refreshed, err := env.auth.Refresh(ctx, out.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.NotEqual(t, out.RefreshToken, refreshed.RefreshToken)

	// The rotation output identifies the account the tokens belong to.
	require.NotNil(t, refreshed.User)
	assert.Equal(t, out.User.ID, refreshed.User.ID)
	assert.Equal(t, out.User.Email, refreshed.User.Email)
}

func TestAuthService_Logout_NeverFails(t *testing.T) {
	env := defaultTestEnv(t)
	ctx := context.Background()
	out := env.registerUser(t, "alice@example.com")

	require.NoError(t, env.auth.Logout(ctx, out.RefreshToken))

	count, err := env.store.CountActiveSessionsByUserID(ctx, out.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Logging out again, or with garbage, still succeeds.
	require.NoError(t, env.auth.Logout(ctx, out.RefreshToken))
	require.NoError(t, env.auth.Logout(ctx, "not-a-token"))
}
