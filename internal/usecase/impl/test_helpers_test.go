package impl

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"gatekeeper/config"
	"gatekeeper/internal/domain/service"
	infraauth "gatekeeper/internal/infra/auth"
	"gatekeeper/internal/infra/persistence/memory"
	"gatekeeper/internal/usecase"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// testEnv wires the services against the in-memory store with a real codec
// and hasher, so tests exercise the actual rotation protocol end to end.
type testEnv struct {
	store    *memory.Store
	codec    service.TokenCodec
	hasher   service.PasswordHasher
	sessions usecase.SessionUsecase
	auth     usecase.AuthUsecase
	accounts usecase.AccountUsecase
}

func newTestEnv(t *testing.T, refreshTTL, grace time.Duration) *testEnv {
	t.Helper()

	return newTestEnvWithConfig(t, &config.Config{
		Auth: &config.AuthConfig{
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: refreshTTL,
			RotationGrace:   grace,
			BcryptCost:      bcrypt.MinCost,
		},
	})
}

func newTestEnvWithConfig(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()

	cfg.SecretKey.Access = "test_access_secret_key_very_long_for_testing"
	cfg.SecretKey.Refresh = "test_refresh_secret_key_very_long_for_testing"

	codec, err := infraauth.NewJWTCodec(cfg)
	require.NoError(t, err)

	store := memory.NewStore()
	hasher := infraauth.NewBcryptHasher(cfg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sessions := NewSessionService(SessionServiceParams{
		TxManager:        store,
		RefreshTokenRepo: store,
		Codec:            codec,
		Config:           cfg,
		Logger:           logger,
	})

	auth := NewAuthService(AuthServiceParams{
		TxManager: store,
		UserRepo:  store,
		Hasher:    hasher,
		Sessions:  sessions,
		Config:    cfg,
		Logger:    logger,
	})

	accounts := NewAccountService(AccountServiceParams{
		TxManager: store,
		UserRepo:  store,
		Hasher:    hasher,
		Sessions:  sessions,
		Logger:    logger,
	})

	return &testEnv{
		store:    store,
		codec:    codec,
		hasher:   hasher,
		sessions: sessions,
		auth:     auth,
		accounts: accounts,
	}
}

func defaultTestEnv(t *testing.T) *testEnv {
	t.Helper()

	return newTestEnv(t, 7*24*time.Hour, 30*time.Second)
}

// registerUser creates an account through the real registration flow and
// returns its issued credentials.
func (env *testEnv) registerUser(t *testing.T, email string) *usecase.AuthOutput {
	t.Helper()

	out, err := env.auth.Register(context.Background(), usecase.RegisterInput{
		Name:     "Test User",
		Email:    email,
		Password: "correct horse battery staple",
	})
	require.NoError(t, err)
	require.NotNil(t, out)

	return out
}
