// Package repository implements the data access layer for the application.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"whisperbox/internal/cache"
	"whisperbox/internal/models"

	"gorm.io/gorm"
)

// UserRepository defines persistence operations for users.
// Lookup methods return (nil, nil) when no row matches; domain errors are the
// service layer's job.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id uint, hash string) error
	Freeze(ctx context.Context, targetID, actorID uint, adminOverride bool) (bool, error)
	Restore(ctx context.Context, targetID, actorID uint) (bool, error)
	HardDelete(ctx context.Context, targetID uint) (bool, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(user.Email)
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("Email already exists")
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Save(user).Error; err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidateProfile(ctx, user.ID)
	return nil
}

// UpdatePassword replaces the password hash and clears the reset-flow fields
// in a single statement.
func (r *userRepository) UpdatePassword(ctx context.Context, id uint, hash string) error {
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		Updates(map[string]any{
			"password":                hash,
			"password_reset_code":     "",
			"password_reset_expires":  nil,
			"password_reset_verified": false,
		}).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// Freeze marks the target user deleted by the given actor. Without
// adminOverride the update is guarded on the row not already being frozen;
// the returned bool reports whether a row actually changed.
func (r *userRepository) Freeze(ctx context.Context, targetID, actorID uint, adminOverride bool) (bool, error) {
	now := time.Now()

	tx := r.db.WithContext(ctx).Model(&models.User{})
	if adminOverride {
		tx = tx.Where("id = ?", targetID)
	} else {
		tx = tx.Where("id = ? AND is_deleted = ?", targetID, false)
	}

	res := tx.Updates(map[string]any{
		"is_deleted":  true,
		"deleted_by":  actorID,
		"deleted_at":  now,
		"restored_by": nil,
		"restored_at": nil,
	})
	if res.Error != nil {
		return false, models.NewInternalError(res.Error)
	}
	cache.InvalidateProfile(ctx, targetID)
	return res.RowsAffected > 0, nil
}

// Restore reactivates a frozen user. Guarded on the row being frozen.
func (r *userRepository) Restore(ctx context.Context, targetID, actorID uint) (bool, error) {
	now := time.Now()

	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND is_deleted = ?", targetID, true).
		Updates(map[string]any{
			"is_deleted":  false,
			"restored_by": actorID,
			"restored_at": now,
			"deleted_by":  nil,
			"deleted_at":  nil,
		})
	if res.Error != nil {
		return false, models.NewInternalError(res.Error)
	}
	cache.InvalidateProfile(ctx, targetID)
	return res.RowsAffected > 0, nil
}

// HardDelete removes a user row permanently. Only frozen accounts qualify.
func (r *userRepository) HardDelete(ctx context.Context, targetID uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND is_deleted = ?", targetID, true).
		Delete(&models.User{})
	if res.Error != nil {
		return false, models.NewInternalError(res.Error)
	}
	cache.InvalidateProfile(ctx, targetID)
	return res.RowsAffected > 0, nil
}

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	// PostgreSQL unique violation SQLSTATE 23505
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "23505")
}
