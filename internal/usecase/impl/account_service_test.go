package impl

import (
	"context"
	"testing"

	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/usecase"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountService_GetProfile(t *testing.T) {
	env := defaultTestEnv(t)
	ctx := context.Background()
	out := env.registerUser(t, "alice@example.com")

	profile, err := env.accounts.GetProfile(ctx, out.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", profile.Email)

	_, err = env.accounts.GetProfile(ctx, uuid.New())
	assert.ErrorIs(t, err, domainerrors.ErrUserNotFound)
}

func TestAccountService_UpdateProfile(t *testing.T) {
	env := defaultTestEnv(t)
	ctx := context.Background()
	out := env.registerUser(t, "alice@example.com")

	updated, err := env.accounts.UpdateProfile(ctx, out.User.ID, usecase.UpdateProfileInput{
		Name: "  Alice Cooper ",
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice Cooper", updated.Name)

	profile, err := env.accounts.GetProfile(ctx, out.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice Cooper", profile.Name)
}

func TestAccountService_ChangePassword_WrongCurrent(t *testing.T) {
	env := defaultTestEnv(t)
	ctx := context.Background()
	out := env.registerUser(t, "alice@example.com")

	err := env.accounts.ChangePassword(ctx, out.User.ID, usecase.ChangePasswordInput{
		CurrentPassword: "not the password",
		NewPassword:     "an entirely new password",
	})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)

	// The session survives a rejected change.
	count, err := env.store.CountActiveSessionsByUserID(ctx, out.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAccountService_ChangePassword_RevokesSessions(t *testing.T) {
	env := defaultTestEnv(t)
	ctx := context.Background()
	out := env.registerUser(t, "alice@example.com")

	err := env.accounts.ChangePassword(ctx, out.User.ID, usecase.ChangePasswordInput{
		CurrentPassword: "correct horse battery staple",
		NewPassword:     "an entirely new password",
	})
	require.NoError(t, err)

	// Every session died with the old password.
	count, err := env.store.CountActiveSessionsByUserID(ctx, out.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// The refresh token issued before the change is now replay fodder, not a
	// working credential.
	_, _, err = env.sessions.Rotate(ctx, out.RefreshToken)
	assert.Error(t, err)

	// The new password works, the old one does not.
	_, err = env.auth.Login(ctx, usecase.LoginInput{
		Email:    "alice@example.com",
		Password: "correct horse battery staple",
	})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)

	_, err = env.auth.Login(ctx, usecase.LoginInput{
		Email:    "alice@example.com",
		Password: "an entirely new password",
	})
	assert.NoError(t, err)
}

func TestAccountService_DeleteAccount(t *testing.T) {
	env := defaultTestEnv(t)
	ctx := context.Background()
	out := env.registerUser(t, "alice@example.com")

	err := env.accounts.DeleteAccount(ctx, out.User.ID, "wrong password here")
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)

	err = env.accounts.DeleteAccount(ctx, out.User.ID, "correct horse battery staple")
	require.NoError(t, err)

	_, err = env.accounts.GetProfile(ctx, out.User.ID)
	assert.ErrorIs(t, err, domainerrors.ErrUserNotFound)

	count, err := env.store.CountActiveSessionsByUserID(ctx, out.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// The email frees up for a fresh registration.
	_, err = env.auth.Register(ctx, usecase.RegisterInput{
		Name:     "Alice Again",
		Email:    "alice@example.com",
		Password: "correct horse battery staple",
	})
	assert.NoError(t, err)
}
