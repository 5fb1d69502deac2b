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

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// authService implements the AuthUsecase interface. It owns credentials
// (email + password) and delegates session lifecycle to the session core.
type authService struct {
	txManager repository.TransactionManager
	userRepo  repository.UserRepository
	hasher    service.PasswordHasher
	sessions  usecase.SessionUsecase
	minLen    int
	maxLen    int
	logger    *slog.Logger
}

// AuthServiceParams holds dependencies for authService, injected by Fx.
type AuthServiceParams struct {
	fx.In

	TxManager repository.TransactionManager
	UserRepo  repository.UserRepository
	Hasher    service.PasswordHasher
	Sessions  usecase.SessionUsecase
	Config    *config.Config
	Logger    *slog.Logger
}

// NewAuthService is the constructor for authService. It receives all dependencies as interfaces.
func NewAuthService(params AuthServiceParams) usecase.AuthUsecase {
	minLen, maxLen := passwordBounds(params.Config)

	return &authService{
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
func (srv *authService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// Register creates a new account and issues its first session.
func (srv *authService) Register(ctx context.Context, input usecase.RegisterInput) (*usecase.AuthOutput, error) {
	email := normalizeEmail(input.Email)
	srv.log(ctx).Info("Starting registration", slog.String("email", email))

	if err := srv.validatePassword(input.Password); err != nil {
		return nil, err
	}

	// bcrypt is CPU-bound; hash before entering the transaction.
	passwordHash, err := srv.hasher.Hash(input.Password)
	if err != nil {
		srv.log(ctx).Error("Failed to hash password during registration", slog.Any("error", err))

		return nil, errors.Wrap(err, "failed to hash password during registration")
	}

	newUser := &entity.User{
		Name:         strings.TrimSpace(input.Name),
		Email:        email,
		PasswordHash: passwordHash,
	}

	err = srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		userRepo := repoFactory.NewUserRepository()

		if err := userRepo.CreateUser(ctx, newUser); err != nil {
			if errors.Is(err, repository.ErrEmailExists) {
				return errors.Wrap(domainerrors.ErrEmailTaken, "email already registered")
			}

			return errors.Wrap(err, "failed to create user during registration")
		}

		return nil
	})
	if err != nil {
		srv.log(ctx).Warn("Registration failed", slog.String("email", email), slog.Any("error", err))

		return nil, err
	}

	pair, err := srv.sessions.IssueSession(ctx, newUser)
	if err != nil {
		return nil, errors.Wrap(err, "failed to issue session after registration")
	}
	srv.log(ctx).Debug("Registration completed", slog.Any("userID", newUser.ID))

	return &usecase.AuthOutput{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         newUser,
	}, nil
}

// Login verifies credentials and issues a new session. Existing sessions on
// other devices are untouched.
func (srv *authService) Login(ctx context.Context, input usecase.LoginInput) (*usecase.AuthOutput, error) {
	email := normalizeEmail(input.Email)
	srv.log(ctx).Debug("Starting login", slog.String("email", email))

	user, err := srv.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			srv.log(ctx).Warn("Login failed", slog.String("email", email))

			// Same error as a wrong password, to avoid user enumeration.
			return nil, errors.Wrap(domainerrors.ErrInvalidCredentials, "login failed")
		}

		return nil, errors.Wrap(err, "failed to load user for login")
	}

	// Check password outside any transaction (bcrypt is CPU-bound).
	if !srv.hasher.Check(input.Password, user.PasswordHash) {
		srv.log(ctx).Warn("Login failed", slog.String("email", email))

		return nil, errors.Wrap(domainerrors.ErrInvalidCredentials, "login failed")
	}

	pair, err := srv.sessions.IssueSession(ctx, user)
	if err != nil {
		return nil, errors.Wrap(err, "failed to issue session during login")
	}
	srv.log(ctx).Debug("User logged in", slog.Any("userID", user.ID))

	return &usecase.AuthOutput{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         user,
	}, nil
}

// Refresh rotates the presented refresh token into a new token pair.
func (srv *authService) Refresh(ctx context.Context, refreshToken string) (*usecase.RefreshOutput, error) {
	pair, user, err := srv.sessions.Rotate(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	return &usecase.RefreshOutput{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         user,
	}, nil
}

// Logout revokes the session behind the presented refresh token. Failures are
// logged but never surfaced: from the client's point of view logout always
// succeeds.
func (srv *authService) Logout(ctx context.Context, refreshToken string) error {
	if err := srv.sessions.Revoke(ctx, refreshToken); err != nil {
		srv.log(ctx).Error("Logout revocation failed", slog.Any("error", err))
	}

	return nil
}

// validatePassword enforces configured length bounds.
func (srv *authService) validatePassword(password string) error {
	if len(password) < srv.minLen {
		return errors.Wrap(domainerrors.ErrValidationFailed, "password too short")
	}
	if len(password) > srv.maxLen {
		return errors.Wrap(domainerrors.ErrValidationFailed, "password too long")
	}

	return nil
}

// normalizeEmail lowercases and trims the login identifier so lookups and the
// unique constraint agree on one canonical form.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// passwordBounds resolves the password length policy from configuration.
// bcrypt silently truncates beyond 72 bytes, so that is the hard ceiling.
func passwordBounds(cfg *config.Config) (minLen, maxLen int) {
	minLen, maxLen = 8, 72
	if cfg != nil && cfg.PasswordStrength != nil {
		if cfg.PasswordStrength.MinLength > 0 {
			minLen = cfg.PasswordStrength.MinLength
		}
		if cfg.PasswordStrength.MaxLength > 0 && cfg.PasswordStrength.MaxLength <= 72 {
			maxLen = cfg.PasswordStrength.MaxLength
		}
	}

	return minLen, maxLen
}
