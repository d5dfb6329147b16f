package server

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"whisperbox/internal/middleware"
	"whisperbox/internal/models"
)

// bearerToken extracts the token from the Authorization header.
func bearerToken(c *fiber.Ctx) string {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// authenticate verifies the access token and loads the account behind it.
// Tokens for removed, frozen or unconfirmed accounts are rejected even when
// the signature is still valid.
func (s *Server) authenticate(c *fiber.Ctx) (*models.User, error) {
	tokenString := bearerToken(c)
	if tokenString == "" {
		return nil, models.NewUnauthorizedError("Authorization required")
	}

	claims, err := s.tokenService.VerifyAccessToken(tokenString)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByID(c.UserContext(), claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.IsDeleted {
		return nil, models.NewUnauthorizedError("Account is not active")
	}
	if !user.IsConfirmed {
		return nil, models.NewUnauthorizedError("Please confirm your email first")
	}
	return user, nil
}

func setAuthLocals(c *fiber.Ctx, user *models.User) {
	c.Locals("user", user)
	c.Locals("userID", user.ID)
	ctx := context.WithValue(c.UserContext(), middleware.UserIDKey, user.ID)
	c.SetUserContext(ctx)
}

// AuthRequired returns the authentication middleware.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := s.authenticate(c)
		if err != nil {
			return models.RespondWithError(c, err)
		}
		setAuthLocals(c, user)
		return c.Next()
	}
}

// OptionalAuth authenticates when credentials are present but lets the
// request through anonymously when they are not. A present-but-invalid token
// is still an error so clients never silently lose their identity.
func (s *Server) OptionalAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if bearerToken(c) == "" {
			return c.Next()
		}
		user, err := s.authenticate(c)
		if err != nil {
			return models.RespondWithError(c, err)
		}
		setAuthLocals(c, user)
		return c.Next()
	}
}

// RequireRole rejects callers whose role is not in the allow list. Must be
// placed after AuthRequired.
func (s *Server) RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := currentUser(c)
		if user == nil {
			return models.RespondWithError(c,
				models.NewUnauthorizedError("Authorization required"))
		}
		for _, role := range roles {
			if user.Role == role {
				return c.Next()
			}
		}
		return models.RespondWithError(c,
			models.NewForbiddenError("Insufficient privileges"))
	}
}

// currentUser returns the authenticated user from locals, nil when the
// request is anonymous.
func currentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals("user").(*models.User)
	return user
}
