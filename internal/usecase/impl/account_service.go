package impl

import (
	"context"
	"log/slog"
	"strings"

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

// accountService implements the AccountUsecase interface.
type accountService struct {
	txManager repository.TransactionManager
	userRepo  repository.UserRepository
	hasher    service.PasswordHasher
	sessions  usecase.SessionUsecase
	minLen    int
	maxLen    int
	logger    *slog.Logger
}

// AccountServiceParams holds dependencies for accountService, injected by Fx.
type AccountServiceParams struct {
	fx.In

	TxManager repository.TransactionManager
	UserRepo  repository.UserRepository
	Hasher    service.PasswordHasher
	Sessions  usecase.SessionUsecase
	Config    *config.Config `optional:"true"`
	Logger    *slog.Logger
}

// NewAccountService is the constructor for accountService.
func NewAccountService(params AccountServiceParams) usecase.AccountUsecase {
	minLen, maxLen := passwordBounds(params.Config)

	return &accountService{
		txManager: params.TxManager,
		userRepo:  params.UserRepo,
		hasher:    params.Hasher,
		sessions:  params.Sessions,
		minLen:    minLen,
		maxLen:    maxLen,
		logger:    params.Logger,
	}
}

// log returns a request-scoped logger if available, otherwise falls back to the service's logger.
func (srv *accountService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// GetProfile retrieves the user's profile.
func (srv *accountService) GetProfile(ctx context.Context, userID uuid.UUID) (*entity.User, error) {
	user, err := srv.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, errors.Wrap(domainerrors.ErrUserNotFound, "profile not found")
		}

		return nil, errors.Wrap(err, "failed to load profile")
	}

	return user, nil
}

// UpdateProfile updates the user's profile fields.
func (srv *accountService) UpdateProfile(ctx context.Context, userID uuid.UUID, input usecase.UpdateProfileInput) (*entity.User, error) {
	var updated *entity.User

	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		userRepo := repoFactory.NewUserRepository()

		user, err := userRepo.GetUserByID(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return errors.Wrap(domainerrors.ErrUserNotFound, "profile not found")
			}

			return errors.Wrap(err, "failed to load user for update")
		}

		user.Name = strings.TrimSpace(input.Name)

		if err := userRepo.UpdateUser(ctx, user); err != nil {
			return errors.Wrap(err, "failed to update user")
		}
		updated = user

		return nil
	})
	if err != nil {
		srv.log(ctx).Error("Failed to update profile", slog.Any("error", err), slog.Any("userID", userID))

		return nil, err
	}
	srv.log(ctx).Debug("Updated profile", slog.Any("userID", userID))

	return updated, nil
}

// ChangePassword verifies the current password, stores the new hash, then
// revokes every session. A stolen refresh token must not survive a password
// change.
func (srv *accountService) ChangePassword(ctx context.Context, userID uuid.UUID, input usecase.ChangePasswordInput) error {
	user, err := srv.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return errors.Wrap(domainerrors.ErrUserNotFound, "account not found")
		}

		return errors.Wrap(err, "failed to load user for password change")
	}

	if !srv.hasher.Check(input.CurrentPassword, user.PasswordHash) {
		srv.log(ctx).Warn("Password change rejected", slog.Any("userID", userID))

		return errors.Wrap(domainerrors.ErrInvalidCredentials, "current password mismatch")
	}

	// The new password passes the same policy registration enforces.
	if len(input.NewPassword) < srv.minLen {
		return errors.Wrap(domainerrors.ErrValidationFailed, "new password too short")
	}
	if len(input.NewPassword) > srv.maxLen {
		return errors.Wrap(domainerrors.ErrValidationFailed, "new password too long")
	}

	newHash, err := srv.hasher.Hash(input.NewPassword)
	if err != nil {
		return errors.Wrap(err, "failed to hash new password")
	}

	if err := srv.userRepo.UpdatePassword(ctx, userID, newHash); err != nil {
		return errors.Wrap(err, "failed to store new password")
	}

	if err := srv.sessions.RevokeAll(ctx, userID); err != nil {
		return errors.Wrap(err, "failed to revoke sessions after password change")
	}
	srv.log(ctx).Info("Password changed", slog.Any("userID", userID))

	return nil
}

// DeleteAccount verifies the password and removes the user together with all
// their sessions.
func (srv *accountService) DeleteAccount(ctx context.Context, userID uuid.UUID, password string) error {
	user, err := srv.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return errors.Wrap(domainerrors.ErrUserNotFound, "account not found")
		}

		return errors.Wrap(err, "failed to load user for deletion")
	}

	if !srv.hasher.Check(password, user.PasswordHash) {
		srv.log(ctx).Warn("Account deletion rejected", slog.Any("userID", userID))

		return errors.Wrap(domainerrors.ErrInvalidCredentials, "password mismatch")
	}

	err = srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		userRepo := repoFactory.NewUserRepository()
		refreshRepo := repoFactory.NewRefreshTokenRepository()
		historyRepo := repoFactory.NewRotationHistoryRepository()

		if err := refreshRepo.DeleteRefreshTokensByUserID(ctx, userID); err != nil {
			return errors.Wrap(err, "failed to delete refresh tokens")
		}
		if err := historyRepo.ClearRotationHistory(ctx, userID); err != nil {
			return errors.Wrap(err, "failed to clear rotation history")
		}
		if err := userRepo.DeleteUser(ctx, userID); err != nil {
			return errors.Wrap(err, "failed to delete user")
		}

		return nil
	})
	if err != nil {
		srv.log(ctx).Error("Failed to delete account", slog.Any("error", err), slog.Any("userID", userID))

		return err
	}
	srv.log(ctx).Info("Account deleted", slog.Any("userID", userID))

	return nil
}
