// Package impl contains the implementation of the application's business logic.
package impl

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"gatekeeper/config"
	deliverycontext "gatekeeper/internal/delivery/context"
	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/repository"
	"gatekeeper/internal/domain/service"
	"gatekeeper/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// sessionService implements the SessionUsecase interface. It owns the
// rotation protocol: every refresh token is single-use, a retired token is
// answered within a short grace window, and any use beyond that window is
// treated as theft and revokes the whole account.
type sessionService struct {
	txManager        repository.TransactionManager
	refreshTokenRepo repository.RefreshTokenRepository
	codec            service.TokenCodec
	grace            time.Duration
	maxActive        int // 0 means unlimited
	logger           *slog.Logger
}

// SessionServiceParams holds dependencies for sessionService, injected by Fx.
type SessionServiceParams struct {
	fx.In

	TxManager        repository.TransactionManager
	RefreshTokenRepo repository.RefreshTokenRepository
	Codec            service.TokenCodec
	Config           *config.Config
	Logger           *slog.Logger
}

// NewSessionService is the constructor for sessionService.
func NewSessionService(params SessionServiceParams) usecase.SessionUsecase {
	grace := 30 * time.Second
	maxActive := 0
	if params.Config != nil && params.Config.Auth != nil {
		if params.Config.Auth.RotationGrace > 0 {
			grace = params.Config.Auth.RotationGrace
		}
		if params.Config.Auth.MaxActiveSessions > 0 {
			maxActive = params.Config.Auth.MaxActiveSessions
		}
	}

	return &sessionService{
		txManager:        params.TxManager,
		refreshTokenRepo: params.RefreshTokenRepo,
		codec:            params.Codec,
		grace:            grace,
		maxActive:        maxActive,
		logger:           params.Logger,
	}
}

// log returns a request-scoped logger if available, otherwise falls back to the service's logger.
func (srv *sessionService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// IssueSession mints a fresh token pair for the user and adds the refresh
// token to their active set. Any leftover rotation slot belongs to a previous
// session generation and is cleared.
func (srv *sessionService) IssueSession(ctx context.Context, user *entity.User) (*entity.TokenPair, error) {
	pair, refreshHash, err := srv.mintPair(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	err = srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		refreshRepo := repoFactory.NewRefreshTokenRepository()
		historyRepo := repoFactory.NewRotationHistoryRepository()

		if err := srv.evictOverCap(ctx, refreshRepo, user.ID); err != nil {
			return err
		}

		if err := srv.appendActiveEntry(ctx, refreshRepo, user.ID, refreshHash); err != nil {
			return err
		}

		if err := historyRepo.ClearRotationHistory(ctx, user.ID); err != nil {
			return errors.Wrap(err, "failed to clear rotation history")
		}

		return nil
	})
	if err != nil {
		srv.log(ctx).Error("Failed to issue session", slog.Any("error", err), slog.Any("userID", user.ID))

		return nil, errors.Wrap(err, "failed to issue session")
	}
	srv.log(ctx).Debug("Issued new session", slog.Any("userID", user.ID))

	return pair, nil
}

// Rotate exchanges a presented refresh token for a new token pair.
//
// Outcomes, in order of evaluation:
//   - expired signature            -> SessionExpired (benign, nothing revoked)
//   - bad token or unknown subject -> Unauthenticated
//   - token claimed from the active set -> normal rotation
//   - token matches the rotation slot within the grace window -> the stored
//     replacement pair is returned again, so a duplicate in-flight refresh
//     does not fork the session
//   - token older than the refresh TTL -> SessionExpired
//   - anything else is replay of a consumed token -> revoke every session,
//     SecurityViolation
func (srv *sessionService) Rotate(ctx context.Context, presentedToken string) (*entity.TokenPair, *entity.User, error) {
	claims, err := srv.codec.Verify(presentedToken, service.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrTokenExpired) {
			return nil, nil, errors.Wrap(domainerrors.ErrSessionExpired, "refresh token past its lifetime")
		}

		return nil, nil, errors.Wrap(domainerrors.ErrUnauthenticated, "refresh token failed verification")
	}

	presentedHash := srv.codec.HashToken(presentedToken)

	var (
		pair          *entity.TokenPair
		user          *entity.User
		reuseDetected bool
	)

	err = srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		userRepo := repoFactory.NewUserRepository()
		refreshRepo := repoFactory.NewRefreshTokenRepository()
		historyRepo := repoFactory.NewRotationHistoryRepository()

		// The subject must still exist; a token for a deleted account is just
		// an invalid credential, not a security event.
		subject, err := userRepo.GetUserByID(ctx, claims.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return errors.Wrap(domainerrors.ErrUnauthenticated, "refresh token subject no longer exists")
			}

			return errors.Wrap(err, "failed to load refresh token subject")
		}
		user = subject

		// Claim-by-delete decides concurrent rotations of the same token:
		// exactly one caller gets claimed=true.
		claimed, err := refreshRepo.ClaimRefreshTokenByHash(ctx, presentedHash)
		if err != nil {
			return errors.Wrap(err, "failed to claim refresh token")
		}

		if claimed {
			pair, err = srv.performRotation(ctx, refreshRepo, historyRepo, subject, presentedHash)

			return err
		}

		pair, err = srv.resolveUnclaimedToken(ctx, refreshRepo, historyRepo, subject, presentedHash, claims.IssuedAt)
		if err != nil && errors.Is(err, domainerrors.ErrSecurityViolation) {
			// The mass revocation must outlive this transaction. Returning the
			// error here would make the manager roll the deletes back, so the
			// transaction commits clean and the violation is reported after.
			reuseDetected = true

			return nil
		}

		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if reuseDetected {
		return nil, nil, errors.Wrap(domainerrors.ErrSecurityViolation, "refresh token reuse detected")
	}

	return pair, user, nil
}

// performRotation replaces the claimed token with a fresh pair and records
// the rotation in the user's history slot.
func (srv *sessionService) performRotation(
	ctx context.Context,
	refreshRepo repository.RefreshTokenRepository,
	historyRepo repository.RotationHistoryRepository,
	user *entity.User,
	retiredHash string,
) (*entity.TokenPair, error) {
	// Piggyback expired-entry cleanup on rotation instead of a background job.
	if err := refreshRepo.DeleteExpiredRefreshTokens(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to prune expired refresh tokens")
	}

	pair, refreshHash, err := srv.mintPair(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	if err := srv.appendActiveEntry(ctx, refreshRepo, user.ID, refreshHash); err != nil {
		return nil, err
	}

	// The slot keeps the minted refresh token so a duplicate in-flight refresh
	// within the grace window receives the same credential instead of forking
	// the session.
	history := &entity.RotationHistory{
		UserID:           user.ID,
		RetiredHash:      retiredHash,
		ReplacementToken: pair.RefreshToken,
		RetiredAt:        time.Now(),
	}
	if err := historyRepo.ReplaceRotationHistory(ctx, history); err != nil {
		return nil, errors.Wrap(err, "failed to record rotation history")
	}

	srv.log(ctx).Debug("Rotated refresh token", slog.Any("userID", user.ID))

	return pair, nil
}

// resolveUnclaimedToken classifies a structurally valid refresh token that is
// no longer in the active set: grace-window duplicate, stale session, or replay.
func (srv *sessionService) resolveUnclaimedToken(
	ctx context.Context,
	refreshRepo repository.RefreshTokenRepository,
	historyRepo repository.RotationHistoryRepository,
	user *entity.User,
	presentedHash string,
	issuedAt time.Time,
) (*entity.TokenPair, error) {
	history, err := historyRepo.GetRotationHistory(ctx, user.ID)
	if err != nil && !errors.Is(err, repository.ErrRotationHistoryNotFound) {
		return nil, errors.Wrap(err, "failed to load rotation history")
	}

	if history != nil && history.RetiredHash == presentedHash && time.Since(history.RetiredAt) <= srv.grace {
		// Duplicate of the rotation that just happened. Answer it with the
		// credential that rotation minted; the active set is left untouched,
		// so both callers end up holding the same single entry.
		accessToken, err := srv.codec.IssueAccessToken(user.ID, user.Email)
		if err != nil {
			return nil, errors.Wrap(err, "failed to issue access token")
		}
		srv.log(ctx).Debug("Answered duplicate rotation within grace window", slog.Any("userID", user.ID))

		return &entity.TokenPair{
			AccessToken:  accessToken,
			RefreshToken: history.ReplacementToken,
		}, nil
	}

	// A token older than the refresh TTL fell out of the active set through
	// expiry pruning; treat it as benign staleness.
	if !issuedAt.IsZero() && time.Since(issuedAt) >= srv.codec.RefreshTokenTTL() {
		return nil, errors.Wrap(domainerrors.ErrSessionExpired, "refresh token past its lifetime")
	}

	// Replay of a consumed token. Someone other than the legitimate holder has
	// it, and there is no way to tell which party is the thief, so every
	// session for the user is revoked.
	srv.log(ctx).Warn("Refresh token reuse detected, revoking all sessions", slog.Any("userID", user.ID))

	if err := refreshRepo.DeleteRefreshTokensByUserID(ctx, user.ID); err != nil {
		return nil, errors.Wrap(err, "failed to revoke sessions after reuse detection")
	}
	if err := historyRepo.ClearRotationHistory(ctx, user.ID); err != nil {
		return nil, errors.Wrap(err, "failed to clear rotation history after reuse detection")
	}

	return nil, errors.Wrap(domainerrors.ErrSecurityViolation, "refresh token reuse detected")
}

// Revoke removes the session behind the presented token, if any. Invalid and
// unknown tokens are ignored so logout is always safe to call.
func (srv *sessionService) Revoke(ctx context.Context, presentedToken string) error {
	if _, err := srv.codec.Verify(presentedToken, service.RefreshToken); err != nil {
		// Even if the token is invalid, proceed to delete it by hash.
		srv.log(ctx).Warn("Revoking with invalid token", slog.Any("error", err))
	}

	tokenHash := srv.codec.HashToken(presentedToken)

	// Single operation - use direct repository instance
	if _, err := srv.refreshTokenRepo.ClaimRefreshTokenByHash(ctx, tokenHash); err != nil {
		srv.log(ctx).Error("Failed to delete refresh token", slog.Any("error", err))

		return errors.Wrap(err, "failed to delete refresh token")
	}

	return nil
}

// RevokeAll removes every session for the user, including the rotation slot.
func (srv *sessionService) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		refreshRepo := repoFactory.NewRefreshTokenRepository()
		historyRepo := repoFactory.NewRotationHistoryRepository()

		if err := refreshRepo.DeleteRefreshTokensByUserID(ctx, userID); err != nil {
			return errors.Wrap(err, "failed to delete refresh tokens")
		}

		if err := historyRepo.ClearRotationHistory(ctx, userID); err != nil {
			return errors.Wrap(err, "failed to clear rotation history")
		}

		return nil
	})
	if err != nil {
		srv.log(ctx).Error("Failed to revoke all sessions", slog.Any("error", err), slog.Any("userID", userID))

		return errors.Wrap(err, "failed to revoke all sessions")
	}
	srv.log(ctx).Info("Revoked all sessions", slog.Any("userID", userID))

	return nil
}

// ActiveSessions lists the user's non-expired sessions.
func (srv *sessionService) ActiveSessions(ctx context.Context, userID uuid.UUID) ([]*entity.SessionInfo, error) {
	tokens, err := srv.refreshTokenRepo.FindRefreshTokensByUserID(ctx, userID)
	if err != nil {
		srv.log(ctx).Error("Failed to list sessions", slog.Any("error", err), slog.Any("userID", userID))

		return nil, errors.Wrap(err, "failed to list sessions")
	}

	now := time.Now()
	sessions := make([]*entity.SessionInfo, 0, len(tokens))
	for _, token := range tokens {
		if token.ExpiresAt.Before(now) {
			continue
		}
		sessions = append(sessions, &entity.SessionInfo{
			ID:         token.ID,
			IssuedAt:   token.IssuedAt,
			LastUsedAt: token.LastUsedAt,
			ExpiresAt:  token.ExpiresAt,
		})
	}

	return sessions, nil
}

// mintPair issues a fresh access/refresh pair and returns the refresh token's
// storage hash alongside.
func (srv *sessionService) mintPair(userID uuid.UUID, email string) (*entity.TokenPair, string, error) {
	accessToken, err := srv.codec.IssueAccessToken(userID, email)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to issue access token")
	}

	refreshToken, err := srv.codec.IssueRefreshToken(userID, email)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to issue refresh token")
	}

	return &entity.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, srv.codec.HashToken(refreshToken), nil
}

// evictOverCap makes room for one more session when a cap is configured, by
// dropping the user's oldest entries first.
func (srv *sessionService) evictOverCap(
	ctx context.Context,
	refreshRepo repository.RefreshTokenRepository,
	userID uuid.UUID,
) error {
	if srv.maxActive <= 0 {
		return nil
	}

	count, err := refreshRepo.CountActiveSessionsByUserID(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "failed to count sessions for cap check")
	}
	if count < srv.maxActive {
		return nil
	}

	tokens, err := refreshRepo.FindRefreshTokensByUserID(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "failed to list sessions for cap check")
	}

	now := time.Now()
	active := make([]*entity.RefreshToken, 0, len(tokens))
	for _, token := range tokens {
		if token.ExpiresAt.After(now) {
			active = append(active, token)
		}
	}
	if len(active) < srv.maxActive {
		return nil
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].IssuedAt.Before(active[j].IssuedAt)
	})

	evict := len(active) - srv.maxActive + 1
	for _, token := range active[:evict] {
		if _, err := refreshRepo.ClaimRefreshTokenByHash(ctx, token.TokenHash); err != nil {
			return errors.Wrap(err, "failed to evict oldest session")
		}
	}
	srv.log(ctx).Info("Evicted oldest sessions over cap",
		slog.Any("userID", userID), slog.Int("evicted", evict))

	return nil
}

// appendActiveEntry stores a new refresh token record for the user.
func (srv *sessionService) appendActiveEntry(
	ctx context.Context,
	refreshRepo repository.RefreshTokenRepository,
	userID uuid.UUID,
	tokenHash string,
) error {
	now := time.Now()
	entry := &entity.RefreshToken{
		UserID:     userID,
		TokenHash:  tokenHash,
		IssuedAt:   now,
		LastUsedAt: now,
		ExpiresAt:  now.Add(srv.codec.RefreshTokenTTL()),
	}

	if err := refreshRepo.CreateRefreshToken(ctx, entry); err != nil {
		return errors.Wrap(err, "failed to store refresh token")
	}

	return nil
}
