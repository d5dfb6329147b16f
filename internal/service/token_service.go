// Package service contains the business logic of the application.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"whisperbox/internal/config"
	"whisperbox/internal/models"
	"whisperbox/internal/repository"
)

// SecretKind selects one of the four independent signing keys, the cross
// product of role and token kind.
type SecretKind int

const (
	SecretUserAccess SecretKind = iota
	SecretUserRefresh
	SecretAdminAccess
	SecretAdminRefresh
)

// Claims is the JWT payload for both access and refresh tokens.
type Claims struct {
	UserID uint        `json:"uid"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues, verifies and rotates JWTs.
type TokenService struct {
	cfg    *config.Config
	tokens repository.TokenRepository
}

// NewTokenService creates a TokenService.
func NewTokenService(cfg *config.Config, tokens repository.TokenRepository) *TokenService {
	return &TokenService{cfg: cfg, tokens: tokens}
}

// secretFor returns the signing key for a role and token kind. Unknown roles
// fall back to the user keys; callers validate roles before issuing.
func (s *TokenService) secretFor(role models.Role, refresh bool) []byte {
	if role == models.RoleAdmin {
		if refresh {
			return []byte(s.cfg.RefreshSecretAdmin)
		}
		return []byte(s.cfg.AccessSecretAdmin)
	}
	if refresh {
		return []byte(s.cfg.RefreshSecretUser)
	}
	return []byte(s.cfg.AccessSecretUser)
}

// IssueAccessToken signs a short-lived access token for the user.
func (s *TokenService) IssueAccessToken(user *models.User) (string, error) {
	return s.sign(user, false, s.cfg.AccessTokenTTL)
}

// IssueRefreshToken signs a refresh token and records its hash so it can be
// spent exactly once.
func (s *TokenService) IssueRefreshToken(ctx context.Context, user *models.User) (string, error) {
	token, err := s.sign(user, true, s.cfg.RefreshTokenTTL)
	if err != nil {
		return "", err
	}

	record := &models.RefreshToken{
		UserID:    user.ID,
		TokenHash: hashToken(token),
		ExpiresAt: time.Now().Add(s.cfg.RefreshTokenTTL),
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return "", err
	}
	return token, nil
}

func (s *TokenService) sign(user *models.User, refresh bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretFor(user.Role, refresh))
	if err != nil {
		return "", models.NewInternalError(fmt.Errorf("signing token: %w", err))
	}
	return signed, nil
}

// PeekRole reads the role claim without verifying the signature. The caller
// uses it only to pick which key to verify with; nothing is trusted until
// VerifyToken succeeds with that key.
func (s *TokenService) PeekRole(tokenString string) (models.Role, error) {
	var claims Claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, &claims); err != nil {
		return "", models.NewUnauthorizedError("Invalid token")
	}
	if !claims.Role.Valid() || claims.UserID == 0 {
		return "", models.NewUnauthorizedError("Invalid token")
	}
	return claims.Role, nil
}

// VerifyAccessToken validates an access token signature and expiry and
// returns its claims.
func (s *TokenService) VerifyAccessToken(tokenString string) (*Claims, error) {
	role, err := s.PeekRole(tokenString)
	if err != nil {
		return nil, err
	}
	return s.verify(tokenString, s.secretFor(role, false))
}

func (s *TokenService) verify(tokenString string, secret []byte) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, models.NewUnauthorizedError("Token expired")
		}
		return nil, models.NewUnauthorizedError("Invalid token")
	}
	if !claims.Role.Valid() || claims.UserID == 0 {
		return nil, models.NewUnauthorizedError("Invalid token")
	}
	return &claims, nil
}

// VerifyAndRotateRefreshToken validates a refresh token and spends its
// session in one guarded delete. A valid signature whose session row is gone
// means the token was already used; every session for that user is revoked.
func (s *TokenService) VerifyAndRotateRefreshToken(ctx context.Context, tokenString string) (*Claims, error) {
	role, err := s.PeekRole(tokenString)
	if err != nil {
		return nil, err
	}

	claims, err := s.verify(tokenString, s.secretFor(role, true))
	if err != nil {
		return nil, err
	}

	removed, err := s.tokens.DeleteMatching(ctx, claims.UserID, hashToken(tokenString))
	if err != nil {
		return nil, err
	}
	if removed == 0 {
		// Reuse of a spent token. Assume the credential leaked and force
		// re-authentication everywhere.
		_, _ = s.tokens.DeleteAllForUser(ctx, claims.UserID)
		return nil, models.NewUnauthorizedError("Refresh token has been revoked")
	}
	return claims, nil
}

// RevokeRefreshToken removes the session for one refresh token. Idempotent:
// revoking an unknown or spent token succeeds.
func (s *TokenService) RevokeRefreshToken(ctx context.Context, tokenString string) error {
	role, err := s.PeekRole(tokenString)
	if err != nil {
		return err
	}
	claims, err := s.verify(tokenString, s.secretFor(role, true))
	if err != nil {
		return err
	}
	_, err = s.tokens.DeleteMatching(ctx, claims.UserID, hashToken(tokenString))
	return err
}

// RevokeAllForUser ends every refresh session of the user.
func (s *TokenService) RevokeAllForUser(ctx context.Context, userID uint) error {
	_, err := s.tokens.DeleteAllForUser(ctx, userID)
	return err
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
