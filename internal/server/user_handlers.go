package server

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"whisperbox/internal/models"
	"whisperbox/internal/service"
)

// GetMyProfile handles GET /api/users/profile/me
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	user, err := s.userService.GetOwnProfile(c.UserContext(), userID)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	return c.JSON(fiber.Map{
		"user":     user,
		"fullName": user.FullName(),
	})
}

// GetPublicProfile handles GET /api/users/profile/:userId
func (s *Server) GetPublicProfile(c *fiber.Ctx) error {
	targetID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	profile, err := s.userService.GetPublicProfile(c.UserContext(), targetID)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	return c.JSON(fiber.Map{"user": profile})
}

// UpdateProfile handles PATCH /api/users/profile
func (s *Server) UpdateProfile(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var req service.ProfileUpdate
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c,
			models.NewValidationError("Invalid request body"))
	}

	user, err := s.userService.UpdateProfile(c.UserContext(), userID, req)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	return c.JSON(fiber.Map{"user": user})
}

// UpdatePassword handles PATCH /api/users/update-password
func (s *Server) UpdatePassword(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var req struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c,
			models.NewValidationError("Invalid request body"))
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		return models.RespondWithError(c,
			models.NewValidationError("oldPassword and newPassword are required"))
	}

	if err := s.userService.UpdatePassword(c.UserContext(), userID, req.OldPassword, req.NewPassword); err != nil {
		return models.RespondWithError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Password updated successfully, please log in again"})
}

// UploadAvatar handles PATCH /api/users/profile-pic
func (s *Server) UploadAvatar(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	fileHeader, err := c.FormFile("image")
	if err != nil {
		return models.RespondWithError(c,
			models.NewValidationError("image file is required"))
	}

	maxBytes := int64(s.config.AvatarMaxSizeMB) << 20
	if fileHeader.Size > maxBytes {
		return models.RespondWithError(c,
			models.NewValidationError(fmt.Sprintf("image must not exceed %d MB", s.config.AvatarMaxSizeMB)))
	}

	// Spool to a temp file; the service validates, uploads and removes it.
	tmpPath := filepath.Join(os.TempDir(), "avatar-"+uuid.NewString()+filepath.Ext(fileHeader.Filename))
	if err := c.SaveFile(fileHeader, tmpPath); err != nil {
		return models.RespondWithError(c, models.NewInternalError(err))
	}

	user, err := s.userService.UploadAvatar(c.UserContext(), userID, tmpPath)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	return c.JSON(fiber.Map{"user": user})
}

// FreezeAccount handles PATCH /api/users/freeze-account and
// PATCH /api/users/freeze-account/:userId
func (s *Server) FreezeAccount(c *fiber.Ctx) error {
	actor := currentUser(c)

	targetID := actor.ID
	if c.Params("userId") != "" {
		id, err := s.parseID(c, "userId")
		if err != nil {
			return nil
		}
		targetID = id
	}

	message, err := s.userService.Freeze(c.UserContext(), actor, targetID)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	return c.JSON(fiber.Map{"message": message})
}

// RestoreAccount handles PATCH /api/users/restore-account/:userId
func (s *Server) RestoreAccount(c *fiber.Ctx) error {
	actor := currentUser(c)

	targetID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	if err := s.userService.Restore(c.UserContext(), actor, targetID); err != nil {
		return models.RespondWithError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Account restored successfully"})
}

// DeleteAccount handles DELETE /api/users/delete-account/:userId
func (s *Server) DeleteAccount(c *fiber.Ctx) error {
	actor := currentUser(c)

	targetID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	if err := s.userService.Delete(c.UserContext(), actor, targetID); err != nil {
		return models.RespondWithError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Account deleted permanently"})
}
