package model

import (
	"time"

	"github.com/google/uuid"
)

// RefreshTokenModel mirrors the 'refresh_tokens' table. One row per active session;
// the raw token is never stored, only its hash.
type RefreshTokenModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index"`
	TokenHash  string    `gorm:"type:varchar(255);unique;not null"`
	IssuedAt   time.Time `gorm:"not null"`
	LastUsedAt time.Time `gorm:"not null"`
	ExpiresAt  time.Time `gorm:"not null;index"`
}

// TableName explicitly sets the table name for GORM.
func (RefreshTokenModel) TableName() string {
	return "refresh_tokens"
}

// RotationHistoryModel mirrors the 'rotation_history' table. The user ID is the
// primary key, which makes the table single-slot per user by construction.
type RotationHistoryModel struct {
	UserID           uuid.UUID `gorm:"type:uuid;primary_key"`
	RetiredHash      string    `gorm:"type:varchar(255);not null;index"`
	ReplacementToken string    `gorm:"type:text;not null"`
	RetiredAt        time.Time `gorm:"not null"`
}

// TableName explicitly sets the table name for GORM.
func (RotationHistoryModel) TableName() string {
	return "rotation_history"
}
