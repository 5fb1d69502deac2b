package postgres

import (
	"context"
	"time"

	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/repository"
	"gatekeeper/internal/infra/persistence/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// refreshTokenRepository implements the domain.RefreshTokenRepository interface.
type refreshTokenRepository struct {
	db *gorm.DB
}

// NewRefreshTokenRepository is the constructor for refreshTokenRepository.
func NewRefreshTokenRepository(db *gorm.DB) repository.RefreshTokenRepository {
	return &refreshTokenRepository{db: db}
}

// CreateRefreshToken persists a new refresh token, representing a user session.
func (repo *refreshTokenRepository) CreateRefreshToken(ctx context.Context, token *entity.RefreshToken) error {
	tokenM := fromRefreshTokenDomain(token)
	if tokenM.ID == uuid.Nil {
		tokenM.ID = uuid.New()
	}

	if err := repo.db.WithContext(ctx).Create(tokenM).Error; err != nil {
		if isUniqueConstraintViolation(err) {
			return domainerrors.NewDatabaseExecuteError(err, "refresh token hash already exists")
		}
		if isForeignKeyConstraintViolation(err) {
			return domainerrors.NewDatabaseExecuteError(err, "invalid user reference")
		}

		return domainerrors.NewDatabaseExecuteError(err, "failed to create refresh token")
	}

	token.ID = tokenM.ID

	return nil
}

// FindRefreshTokenByHash retrieves a refresh token record by its securely stored hash.
func (repo *refreshTokenRepository) FindRefreshTokenByHash(ctx context.Context, tokenHash string) (*entity.RefreshToken, error) {
	var tokenM model.RefreshTokenModel

	err := repo.db.WithContext(ctx).
		Where("token_hash = ?", tokenHash).
		First(&tokenM).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRefreshTokenNotFound
		}

		return nil, errors.WithStack(err)
	}

	return toRefreshTokenDomain(&tokenM), nil
}

// FindRefreshTokensByUserID retrieves all refresh tokens for a specific user,
// newest first.
func (repo *refreshTokenRepository) FindRefreshTokensByUserID(ctx context.Context, userID uuid.UUID) ([]*entity.RefreshToken, error) {
	var tokenModels []*model.RefreshTokenModel

	err := repo.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("issued_at DESC").
		Find(&tokenModels).Error
	if err != nil {
		return nil, errors.WithStack(err)
	}

	tokens := make([]*entity.RefreshToken, 0, len(tokenModels))
	for _, tokenM := range tokenModels {
		tokens = append(tokens, toRefreshTokenDomain(tokenM))
	}

	return tokens, nil
}

// ClaimRefreshTokenByHash atomically removes the record with the given hash.
// The rows-affected count decides concurrent rotations of the same token:
// exactly one caller sees true.
func (repo *refreshTokenRepository) ClaimRefreshTokenByHash(ctx context.Context, tokenHash string) (bool, error) {
	result := repo.db.WithContext(ctx).
		Where("token_hash = ?", tokenHash).
		Delete(&model.RefreshTokenModel{})
	if result.Error != nil {
		return false, errors.WithStack(result.Error)
	}

	return result.RowsAffected > 0, nil
}

// DeleteRefreshTokensByUserID removes all refresh tokens for a specific user.
func (repo *refreshTokenRepository) DeleteRefreshTokensByUserID(ctx context.Context, userID uuid.UUID) error {
	if err := repo.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&model.RefreshTokenModel{}).Error; err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// DeleteExpiredRefreshTokens removes all expired refresh tokens from the database.
func (repo *refreshTokenRepository) DeleteExpiredRefreshTokens(ctx context.Context) error {
	if err := repo.db.WithContext(ctx).
		Where("expires_at < ?", time.Now()).
		Delete(&model.RefreshTokenModel{}).Error; err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// CountActiveSessionsByUserID returns the number of active (non-expired) sessions for a user.
func (repo *refreshTokenRepository) CountActiveSessionsByUserID(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int64

	err := repo.db.WithContext(ctx).
		Model(&model.RefreshTokenModel{}).
		Where("user_id = ? AND expires_at > ?", userID, time.Now()).
		Count(&count).Error
	if err != nil {
		return 0, errors.WithStack(err)
	}

	return int(count), nil
}

// rotationHistoryRepository implements the domain.RotationHistoryRepository interface.
type rotationHistoryRepository struct {
	db *gorm.DB
}

// NewRotationHistoryRepository is the constructor for rotationHistoryRepository.
func NewRotationHistoryRepository(db *gorm.DB) repository.RotationHistoryRepository {
	return &rotationHistoryRepository{db: db}
}

// GetRotationHistory retrieves the user's rotation slot.
func (repo *rotationHistoryRepository) GetRotationHistory(ctx context.Context, userID uuid.UUID) (*entity.RotationHistory, error) {
	var historyM model.RotationHistoryModel

	err := repo.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&historyM).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRotationHistoryNotFound
		}

		return nil, errors.WithStack(err)
	}

	return toRotationHistoryDomain(&historyM), nil
}

// ReplaceRotationHistory overwrites the user's rotation slot with the given record.
// The user ID is the primary key, so this is an upsert.
func (repo *rotationHistoryRepository) ReplaceRotationHistory(ctx context.Context, history *entity.RotationHistory) error {
	historyM := fromRotationHistoryDomain(history)

	err := repo.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(historyM).Error
	if err != nil {
		return domainerrors.NewDatabaseExecuteError(err, "failed to replace rotation history")
	}

	return nil
}

// ClearRotationHistory removes the user's rotation slot, if any.
func (repo *rotationHistoryRepository) ClearRotationHistory(ctx context.Context, userID uuid.UUID) error {
	if err := repo.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&model.RotationHistoryModel{}).Error; err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// --- Mapper Functions ---

// toRefreshTokenDomain converts a GORM RefreshTokenModel to a domain RefreshToken entity.
func toRefreshTokenDomain(data *model.RefreshTokenModel) *entity.RefreshToken {
	if data == nil {
		return nil
	}

	return &entity.RefreshToken{
		ID:         data.ID,
		UserID:     data.UserID,
		TokenHash:  data.TokenHash,
		IssuedAt:   data.IssuedAt,
		LastUsedAt: data.LastUsedAt,
		ExpiresAt:  data.ExpiresAt,
	}
}

// fromRefreshTokenDomain converts a domain RefreshToken entity to a GORM RefreshTokenModel.
func fromRefreshTokenDomain(data *entity.RefreshToken) *model.RefreshTokenModel {
	if data == nil {
		return nil
	}

	return &model.RefreshTokenModel{
		ID:         data.ID,
		UserID:     data.UserID,
		TokenHash:  data.TokenHash,
		IssuedAt:   data.IssuedAt,
		LastUsedAt: data.LastUsedAt,
		ExpiresAt:  data.ExpiresAt,
	}
}

// toRotationHistoryDomain converts a GORM RotationHistoryModel to a domain RotationHistory entity.
func toRotationHistoryDomain(data *model.RotationHistoryModel) *entity.RotationHistory {
	if data == nil {
		return nil
	}

	return &entity.RotationHistory{
		UserID:           data.UserID,
		RetiredHash:      data.RetiredHash,
		ReplacementToken: data.ReplacementToken,
		RetiredAt:        data.RetiredAt,
	}
}

// fromRotationHistoryDomain converts a domain RotationHistory entity to a GORM RotationHistoryModel.
func fromRotationHistoryDomain(data *entity.RotationHistory) *model.RotationHistoryModel {
	if data == nil {
		return nil
	}

	return &model.RotationHistoryModel{
		UserID:           data.UserID,
		RetiredHash:      data.RetiredHash,
		ReplacementToken: data.ReplacementToken,
		RetiredAt:        data.RetiredAt,
	}
}
