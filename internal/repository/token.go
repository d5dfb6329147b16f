package repository

import (
	"context"
	"time"

	"whisperbox/internal/models"

	"gorm.io/gorm"
)

// TokenRepository defines persistence operations for refresh-token sessions.
type TokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	// DeleteMatching removes the live session matching (userID, hash) in a
	// single statement and reports how many rows were removed. A zero count
	// on rotation means the token was already spent or never issued.
	DeleteMatching(ctx context.Context, userID uint, hash string) (int64, error)
	DeleteAllForUser(ctx context.Context, userID uint) (int64, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type tokenRepository struct {
	db *gorm.DB
}

// NewTokenRepository returns a new TokenRepository implementation.
func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{db: db}
}

func (r *tokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *tokenRepository) DeleteMatching(ctx context.Context, userID uint, hash string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND token_hash = ? AND expires_at > ?", userID, hash, time.Now()).
		Delete(&models.RefreshToken{})
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	return res.RowsAffected, nil
}

func (r *tokenRepository) DeleteAllForUser(ctx context.Context, userID uint) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.RefreshToken{})
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteExpired prunes sessions past their expiry. Called opportunistically;
// correctness never depends on it because DeleteMatching is expiry-guarded.
func (r *tokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ?", time.Now()).
		Delete(&models.RefreshToken{})
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	return res.RowsAffected, nil
}
