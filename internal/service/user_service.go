package service

import (
	"context"
	"fmt"
	"image"
	"os"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"golang.org/x/crypto/bcrypt"

	"whisperbox/internal/cache"
	"whisperbox/internal/config"
	"whisperbox/internal/models"
	"whisperbox/internal/repository"
	"whisperbox/internal/storage"
	"whisperbox/internal/validation"
)

// Messages returned by the freeze operation, depending on who froze whom.
const (
	MsgAccountDeactivated = "Account deactivated successfully"
	MsgUserBanned         = "User banned successfully"
)

const avatarFolder = "avatars"

// ProfileUpdate carries the mutable profile fields. Nil means unchanged.
type ProfileUpdate struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Gender    *string `json:"gender"`
	Phone     *string `json:"phone"`
}

// UserService implements profile and account lifecycle operations.
type UserService struct {
	cfg      *config.Config
	users    repository.UserRepository
	messages repository.MessageRepository
	tokens   *TokenService
	store    storage.ObjectStore
}

// NewUserService creates a UserService.
func NewUserService(cfg *config.Config, users repository.UserRepository, messages repository.MessageRepository, tokens *TokenService, store storage.ObjectStore) *UserService {
	return &UserService{
		cfg:      cfg,
		users:    users,
		messages: messages,
		tokens:   tokens,
		store:    store,
	}
}

// GetOwnProfile returns the caller's full profile.
func (s *UserService) GetOwnProfile(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.IsDeleted {
		return nil, models.NewNotFoundError("User not found")
	}
	return user, nil
}

// GetPublicProfile returns the restricted projection of another user's
// profile, served through the cache.
func (s *UserService) GetPublicProfile(ctx context.Context, targetID uint) (*models.PublicProfile, error) {
	var profile models.PublicProfile
	err := cache.Aside(ctx, cache.ProfileKey(targetID), &profile, cache.ProfileTTL, func() error {
		user, err := s.users.GetByID(ctx, targetID)
		if err != nil {
			return err
		}
		if user == nil || user.IsDeleted || !user.IsConfirmed {
			return models.NewNotFoundError("User not found")
		}
		profile = user.Public()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateProfile applies the provided profile changes.
func (s *UserService) UpdateProfile(ctx context.Context, userID uint, update ProfileUpdate) (*models.User, error) {
	user, err := s.GetOwnProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if update.FirstName != nil {
		if err := validation.ValidateName("firstName", *update.FirstName); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		user.FirstName = strings.TrimSpace(*update.FirstName)
	}
	if update.LastName != nil {
		if err := validation.ValidateName("lastName", *update.LastName); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		user.LastName = strings.TrimSpace(*update.LastName)
	}
	if update.Gender != nil {
		if *update.Gender != models.GenderMale && *update.Gender != models.GenderFemale {
			return nil, models.NewValidationError("gender must be Male or Female")
		}
		user.Gender = *update.Gender
	}
	if update.Phone != nil {
		user.Phone = strings.TrimSpace(*update.Phone)
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// UpdatePassword verifies the old password, stores the new hash and revokes
// every session so stolen refresh tokens die with the old password.
func (s *UserService) UpdatePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error {
	user, err := s.GetOwnProfile(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(oldPassword)) != nil {
		return models.NewUnauthorizedError("Current password is incorrect")
	}
	if err := validation.ValidatePassword(newPassword); err != nil {
		return models.NewValidationError(err.Error())
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), passwordHashCost)
	if err != nil {
		return models.NewInternalError(err)
	}
	if err := s.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return err
	}
	return s.tokens.RevokeAllForUser(ctx, userID)
}

// Freeze deactivates an account. Users may freeze themselves; admins may
// freeze anyone. The returned message reflects which of the two happened.
func (s *UserService) Freeze(ctx context.Context, actor *models.User, targetID uint) (string, error) {
	if targetID != actor.ID && actor.Role != models.RoleAdmin {
		return "", models.NewForbiddenError("Not allowed to freeze this account")
	}

	adminOverride := actor.Role == models.RoleAdmin && targetID != actor.ID
	changed, err := s.users.Freeze(ctx, targetID, actor.ID, adminOverride)
	if err != nil {
		return "", err
	}
	if !changed {
		return "", models.NewNotFoundError("User not found or already frozen")
	}

	if err := s.tokens.RevokeAllForUser(ctx, targetID); err != nil {
		return "", err
	}

	if targetID == actor.ID {
		return MsgAccountDeactivated, nil
	}
	return MsgUserBanned, nil
}

// Restore reactivates a frozen account. Users restore their own, admins
// restore anyone. An admin ban stays in place against self-restore at login;
// this endpoint is how an admin lifts it.
func (s *UserService) Restore(ctx context.Context, actor *models.User, targetID uint) error {
	if targetID != actor.ID && actor.Role != models.RoleAdmin {
		return models.NewForbiddenError("Not allowed to restore this account")
	}

	if actor.Role != models.RoleAdmin {
		target, err := s.users.GetByID(ctx, targetID)
		if err != nil {
			return err
		}
		if target == nil {
			return models.NewNotFoundError("User not found")
		}
		if target.State() == models.StateBanned {
			return models.NewForbiddenError("Account was banned by an administrator")
		}
	}

	changed, err := s.users.Restore(ctx, targetID, actor.ID)
	if err != nil {
		return err
	}
	if !changed {
		return models.NewNotFoundError("User not found or not frozen")
	}
	return nil
}

// Delete permanently removes a frozen account together with every message it
// sent or received. Only frozen accounts can be deleted.
func (s *UserService) Delete(ctx context.Context, actor *models.User, targetID uint) error {
	if targetID != actor.ID && actor.Role != models.RoleAdmin {
		return models.NewForbiddenError("Not allowed to delete this account")
	}

	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return err
	}
	if target == nil {
		return models.NewNotFoundError("User not found")
	}
	if !target.IsDeleted {
		return models.NewValidationError("Account must be frozen before deletion")
	}

	deleted, err := s.users.HardDelete(ctx, targetID)
	if err != nil {
		return err
	}
	if !deleted {
		return models.NewNotFoundError("User not found")
	}

	if _, err := s.messages.DeleteAllForUser(ctx, targetID); err != nil {
		return err
	}
	if err := s.tokens.RevokeAllForUser(ctx, targetID); err != nil {
		return err
	}

	if target.AvatarKey != "" {
		_ = s.store.Delete(ctx, target.AvatarKey)
	}
	return nil
}

// UploadAvatar validates the image at localPath, stores it and swaps it in
// as the user's avatar. The previous stored avatar is removed. The caller
// owns the temp file; it is removed here on every path.
func (s *UserService) UploadAvatar(ctx context.Context, userID uint, localPath string) (*models.User, error) {
	defer os.Remove(localPath)

	user, err := s.GetOwnProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	contentType, err := sniffImageType(localPath)
	if err != nil {
		return nil, err
	}

	if info, err := os.Stat(localPath); err == nil {
		maxBytes := int64(s.cfg.AvatarMaxSizeMB) << 20
		if info.Size() > maxBytes {
			return nil, models.NewValidationError(fmt.Sprintf("image must not exceed %d MB", s.cfg.AvatarMaxSizeMB))
		}
	}

	url, key, err := s.store.Upload(ctx, localPath, avatarFolder, contentType)
	if err != nil {
		return nil, models.NewDependencyError("Could not store avatar", err)
	}

	oldKey := user.AvatarKey
	user.AvatarURL = url
	user.AvatarKey = key
	if err := s.users.Update(ctx, user); err != nil {
		_ = s.store.Delete(ctx, key)
		return nil, err
	}

	if oldKey != "" {
		_ = s.store.Delete(ctx, oldKey)
	}
	return user, nil
}

// sniffImageType decodes the image header and maps the detected format to a
// content type. Extensions and client-sent types are not trusted.
func sniffImageType(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	defer f.Close()

	_, format, err := image.DecodeConfig(f)
	if err != nil {
		return "", models.NewValidationError("file is not a supported image")
	}

	switch format {
	case "png":
		return "image/png", nil
	case "jpeg":
		return "image/jpeg", nil
	case "gif":
		return "image/gif", nil
	case "webp":
		return "image/webp", nil
	default:
		return "", models.NewValidationError("file is not a supported image")
	}
}
