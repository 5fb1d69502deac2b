package impl

import (
	"context"
	"sync"
	"testing"
	"time"

	"gatekeeper/config"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestSessionService_Rotate_ConsumesPresentedToken(t *testing.T) {
	env := defaultTestEnv(t)
	ctx := context.Background()
	out := env.registerUser(t, "alice@example.com")

	pair, subject, err := env.sessions.Rotate(ctx, out.RefreshToken)
	require.NoError(t, err)
	require.NotNil(t, pair)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEqual(t, out.RefreshToken, pair.RefreshToken)

	// The rotation reports the token's subject alongside the new pair.
	require.NotNil(t, subject)
	assert.Equal(t, out.User.ID, subject.ID)
	assert.Equal(t, out.User.Email, subject.Email)

	// Minted tokens identify their subject by ID and email.
	claims, err := env.codec.Verify(pair.AccessToken, service.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, out.User.ID, claims.UserID)
	assert.Equal(t, out.User.Email, claims.Email)

	// The old token left the active set, the new one entered it.
	count, err := env.store.CountActiveSessionsByUserID(ctx, out.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = env.store.FindRefreshTokenByHash(ctx, env.codec.HashToken(out.RefreshToken))
	assert.Error(t, err)

	_, err = env.store.FindRefreshTokenByHash(ctx, env.codec.HashToken(pair.RefreshToken))
	assert.NoError(t, err)
}

func TestSessionService_Rotate_GraceWindowDuplicate(t *testing.T) {
	env := defaultTestEnv(t)
	ctx := context.Background()
	out := env.registerUser(t, "alice@example.com")

	first, _, err := env.sessions.Rotate(ctx, out.RefreshToken)
	require.NoError(t, err)

	// The same retired token presented again within the grace window must
	// succeed and hand back the credential the first rotation minted.
	second, _, err := env.sessions.Rotate(ctx, out.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, first.RefreshToken, second.RefreshToken)
	assert.NotEmpty(t, second.AccessToken)

	// Exactly one active entry remains; the duplicate did not fork the session.
	count, err := env.store.CountActiveSessionsByUserID(ctx, out.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSessionService_Rotate_ReuseOutsideGraceRevokesEverything(t *testing.T) {
	env := defaultTestEnv(t)
	ctx := context.Background()
	out := env.registerUser(t, "alice@example.com")

	// A second device logs in; its session must also die on reuse detection.
	otherPair, err := env.sessions.IssueSession(ctx, out.User)
	require.NoError(t, err)

	_, _, err = env.sessions.Rotate(ctx, out.RefreshToken)
	require.NoError(t, err)

	// Push the rotation outside the grace window, then replay the old token.
	env.store.BackdateRotationHistory(out.User.ID, time.Minute)

	pair, _, err := env.sessions.Rotate(ctx, out.RefreshToken)
	assert.ErrorIs(t, err, domainerrors.ErrSecurityViolation)
	assert.Nil(t, pair)

	// The revocation must survive the failed rotation: the store rolls back
	// transactions whose callback errors, so an empty active set here proves
	// the deletes were committed rather than reported and discarded.
	count, err := env.store.CountActiveSessionsByUserID(ctx, out.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// The untouched second-device token is gone too.
	_, err = env.store.FindRefreshTokenByHash(ctx, env.codec.HashToken(otherPair.RefreshToken))
	assert.Error(t, err)

	// The rotation slot is wiped as well, so the grace window cannot be
	// replayed after the violation.
	_, err = env.store.GetRotationHistory(ctx, out.User.ID)
	assert.Error(t, err)
}

func TestSessionService_Rotate_TwoGenerationsOldTokenIsReuse(t *testing.T) {
	env := defaultTestEnv(t)
	ctx := context.Background()
	out := env.registerUser(t, "alice@example.com")

	gen1, _, err := env.sessions.Rotate(ctx, out.RefreshToken)
	require.NoError(t, err)

	_, _, err = env.sessions.Rotate(ctx, gen1.RefreshToken)
	require.NoError(t, err)

	// The rotation slot now remembers gen1, not the original token. Even
	// though the original rotation was seconds ago, a token two generations
	// back is replay, not a grace duplicate.
	pair, _, err := env.sessions.Rotate(ctx, out.RefreshToken)
	assert.ErrorIs(t, err, domainerrors.ErrSecurityViolation)
	assert.Nil(t, pair)
}

func TestSessionService_Rotate_ExpiredTokenIsBenign(t *testing.T) {
	// Millisecond refresh TTL so the session ages out immediately.
	env := newTestEnv(t, time.Millisecond, 30*time.Second)
	ctx := context.Background()
	out := env.registerUser(t, "alice@example.com")

	// A second user must be unaffected by the stale presentation.
	other := env.registerUser(t, "bob@example.com")

	time.Sleep(5 * time.Millisecond)

	pair, _, err := env.sessions.Rotate(ctx, out.RefreshToken)
	assert.ErrorIs(t, err, domainerrors.ErrSessionExpired)
	assert.Nil(t, pair)

	// Benign staleness: nothing was revoked, the other user's entry is intact.
	tokens, err := env.store.FindRefreshTokensByUserID(ctx, other.User.ID)
	require.NoError(t, err)
	assert.Len(t, tokens, 1)
}

func TestSessionService_Rotate_GarbageToken(t *testing.T) {
	env := defaultTestEnv(t)

	pair, _, err := env.sessions.Rotate(context.Background(), "clearly-not-a-jwt")
	assert.ErrorIs(t, err, domainerrors.ErrUnauthenticated)
	assert.Nil(t, pair)
}

func TestSessionService_Rotate_AccessTokenRejected(t *testing.T) {
	env := defaultTestEnv(t)
	out := env.registerUser(t, "alice@example.com")

	// An access token is signed with a different secret and kind; it must
	// never pass as a refresh token.
	pair, _, err := env.sessions.Rotate(context.Background(), out.AccessToken)
	assert.ErrorIs(t, err, domainerrors.ErrUnauthenticated)
	assert.Nil(t, pair)
}

func TestSessionService_Rotate_DeletedSubject(t *testing.T) {
	env := defaultTestEnv(t)
	ctx := context.Background()
	out := env.registerUser(t, "alice@example.com")

	require.NoError(t, env.store.DeleteUser(ctx, out.User.ID))

	pair, _, err := env.sessions.Rotate(ctx, out.RefreshToken)
	assert.ErrorIs(t, err, domainerrors.ErrUnauthenticated)
	assert.Nil(t, pair)
}

func TestSessionService_Rotate_ConcurrentDuplicates(t *testing.T) {
	env := defaultTestEnv(t)
	ctx := context.Background()
	out := env.registerUser(t, "alice@example.com")

	// Two in-flight refreshes race on the same token. The claim-by-delete
	// decides a winner; the loser lands in the grace window. Both must succeed.
	var wg sync.WaitGroup
	results := make([]*service.TokenClaims, 2)
	errs := make([]error, 2)
	tokens := make([]string, 2)

	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pair, _, err := env.sessions.Rotate(ctx, out.RefreshToken)
			errs[i] = err
			if pair != nil {
				tokens[i] = pair.RefreshToken
				results[i], _ = env.codec.Verify(pair.RefreshToken, service.RefreshToken)
			}
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, tokens[0], tokens[1])
	require.NotNil(t, results[0])
	assert.Equal(t, out.User.ID, results[0].UserID)

	count, err := env.store.CountActiveSessionsByUserID(ctx, out.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSessionService_IssueSession_SupportsMultipleDevices(t *testing.T) {
	env := defaultTestEnv(t)
	ctx := context.Background()
	out := env.registerUser(t, "alice@example.com")

	_, err := env.sessions.IssueSession(ctx, out.User)
	require.NoError(t, err)
	_, err = env.sessions.IssueSession(ctx, out.User)
	require.NoError(t, err)

	count, err := env.store.CountActiveSessionsByUserID(ctx, out.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSessionService_IssueSession_CapEvictsOldest(t *testing.T) {
	env := newTestEnvWithConfig(t, &config.Config{
		Auth: &config.AuthConfig{
			AccessTokenTTL:    15 * time.Minute,
			RefreshTokenTTL:   7 * 24 * time.Hour,
			RotationGrace:     30 * time.Second,
			BcryptCost:        bcrypt.MinCost,
			MaxActiveSessions: 2,
		},
	})
	ctx := context.Background()
	out := env.registerUser(t, "alice@example.com")

	second, err := env.sessions.IssueSession(ctx, out.User)
	require.NoError(t, err)

	// The cap is 2, so a third device pushes out the registration session.
	_, err = env.sessions.IssueSession(ctx, out.User)
	require.NoError(t, err)

	count, err := env.store.CountActiveSessionsByUserID(ctx, out.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = env.store.FindRefreshTokenByHash(ctx, env.codec.HashToken(out.RefreshToken))
	assert.Error(t, err)

	_, err = env.store.FindRefreshTokenByHash(ctx, env.codec.HashToken(second.RefreshToken))
	assert.NoError(t, err)
}

func TestSessionService_Revoke_Idempotent(t *testing.T) {
	env := defaultTestEnv(t)
	ctx := context.Background()
	out := env.registerUser(t, "alice@example.com")

	require.NoError(t, env.sessions.Revoke(ctx, out.RefreshToken))
	// Revoking the same token again is a no-op, not an error.
	require.NoError(t, env.sessions.Revoke(ctx, out.RefreshToken))

	count, err := env.store.CountActiveSessionsByUserID(ctx, out.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSessionService_RevokedTokenCannotRotate(t *testing.T) {
	env := defaultTestEnv(t)
	ctx := context.Background()
	out := env.registerUser(t, "alice@example.com")

	require.NoError(t, env.sessions.Revoke(ctx, out.RefreshToken))

	// The token is structurally valid but no longer tracked, and there is no
	// rotation slot for it: this reads as replay.
	pair, _, err := env.sessions.Rotate(ctx, out.RefreshToken)
	assert.ErrorIs(t, err, domainerrors.ErrSecurityViolation)
	assert.Nil(t, pair)
}

func TestSessionService_RevokeAll(t *testing.T) {
	env := defaultTestEnv(t)
	ctx := context.Background()
	out := env.registerUser(t, "alice@example.com")

	_, err := env.sessions.IssueSession(ctx, out.User)
	require.NoError(t, err)

	require.NoError(t, env.sessions.RevokeAll(ctx, out.User.ID))

	sessions, err := env.sessions.ActiveSessions(ctx, out.User.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestSessionService_ActiveSessions_SkipsExpired(t *testing.T) {
	env := defaultTestEnv(t)
	ctx := context.Background()
	out := env.registerUser(t, "alice@example.com")

	pair, err := env.sessions.IssueSession(ctx, out.User)
	require.NoError(t, err)

	// Age one of the two sessions past its expiry.
	env.store.BackdateRefreshToken(env.codec.HashToken(pair.RefreshToken), 8*24*time.Hour)

	sessions, err := env.sessions.ActiveSessions(ctx, out.User.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.NotEqual(t, uuid.Nil, sessions[0].ID)
	assert.True(t, sessions[0].ExpiresAt.After(time.Now()))
}
