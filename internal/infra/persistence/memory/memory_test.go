package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gatekeeper/internal/domain/entity"
	"gatekeeper/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimRefreshTokenByHash_SingleWinner(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.CreateRefreshToken(ctx, &entity.RefreshToken{
		UserID:    uuid.New(),
		TokenHash: "contested-hash",
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	// Many goroutines race to claim the same hash; the delete is atomic, so
	// exactly one of them may win.
	const racers = 32
	var wg sync.WaitGroup
	wins := make([]bool, racers)

	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := store.ClaimRefreshTokenByHash(ctx, "contested-hash")
			require.NoError(t, err)
			wins[i] = claimed
		}()
	}
	wg.Wait()

	winners := 0
	for _, won := range wins {
		if won {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestExecute_SerializesTransactions(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	userID := uuid.New()

	// Two transactions append to the same user's active set concurrently. With
	// Execute serialized, both writes land and neither is lost.
	var wg sync.WaitGroup
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
				repo := repoFactory.NewRefreshTokenRepository()

				return repo.CreateRefreshToken(ctx, &entity.RefreshToken{
					UserID:    userID,
					TokenHash: "hash-" + string(rune('a'+i)),
					IssuedAt:  time.Now(),
					ExpiresAt: time.Now().Add(time.Hour),
				})
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	tokens, err := store.FindRefreshTokensByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, tokens, 2)
}

func TestExecute_RollsBackOnError(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, store.CreateRefreshToken(ctx, &entity.RefreshToken{
		UserID:    userID,
		TokenHash: "pre-existing",
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	// A transaction that writes, deletes and then errors must leave no trace,
	// matching the rollback the database-backed manager performs.
	boom := errors.New("boom")
	err := store.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		repo := repoFactory.NewRefreshTokenRepository()

		if err := repo.CreateRefreshToken(ctx, &entity.RefreshToken{
			UserID:    userID,
			TokenHash: "written-then-rolled-back",
			IssuedAt:  time.Now(),
			ExpiresAt: time.Now().Add(time.Hour),
		}); err != nil {
			return err
		}
		if err := repo.DeleteRefreshTokensByUserID(ctx, userID); err != nil {
			return err
		}

		return boom
	})
	require.ErrorIs(t, err, boom)

	// The pre-existing entry survived and the aborted write did not.
	_, err = store.FindRefreshTokenByHash(ctx, "pre-existing")
	assert.NoError(t, err)
	_, err = store.FindRefreshTokenByHash(ctx, "written-then-rolled-back")
	assert.ErrorIs(t, err, repository.ErrRefreshTokenNotFound)
}
