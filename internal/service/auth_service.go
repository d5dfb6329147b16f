package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"whisperbox/internal/config"
	"whisperbox/internal/email"
	"whisperbox/internal/identity"
	"whisperbox/internal/middleware"
	"whisperbox/internal/models"
	"whisperbox/internal/repository"
	"whisperbox/internal/validation"
)

const (
	passwordHashCost = bcrypt.DefaultCost
	// OTP codes are short-lived and low-entropy, so they get a stronger
	// hash than passwords.
	otpHashCost = 12
)

// SignupInput carries the fields needed to register an account.
type SignupInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Gender    string `json:"gender"`
	Phone     string `json:"phone"`
}

// TokenPair is an access/refresh credential pair issued on login.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AuthService implements signup, email confirmation, password reset and the
// login flows.
type AuthService struct {
	cfg      *config.Config
	users    repository.UserRepository
	tokens   *TokenService
	mailer   email.Mailer
	verifier identity.Verifier
}

// NewAuthService creates an AuthService.
func NewAuthService(cfg *config.Config, users repository.UserRepository, tokens *TokenService, mailer email.Mailer, verifier identity.Verifier) *AuthService {
	return &AuthService{
		cfg:      cfg,
		users:    users,
		tokens:   tokens,
		mailer:   mailer,
		verifier: verifier,
	}
}

// Signup registers an unconfirmed account and emails a confirmation code.
// Registration is all-or-nothing: if the email cannot be delivered the
// account row is removed so the address can retry from scratch.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (*models.User, error) {
	if err := validation.ValidateName("firstName", input.FirstName); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateName("lastName", input.LastName); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateEmail(input.Email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(input.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if input.Gender != "" && input.Gender != models.GenderMale && input.Gender != models.GenderFemale {
		return nil, models.NewValidationError("gender must be Male or Female")
	}

	existing, err := s.users.GetByEmail(ctx, input.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewConflictError("Email already exists")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(input.Password), passwordHashCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	code, codeHash, err := s.newOTP()
	if err != nil {
		return nil, err
	}
	expires := time.Now().Add(s.cfg.OTPTTL)

	user := &models.User{
		FirstName:  strings.TrimSpace(input.FirstName),
		LastName:   strings.TrimSpace(input.LastName),
		Email:      input.Email,
		Password:   string(passwordHash),
		Gender:     input.Gender,
		Phone:      input.Phone,
		Role:       models.RoleUser,
		OTPCode:    codeHash,
		OTPExpires: &expires,
		AvatarURL:  s.cfg.DefaultAvatarURL,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	subject := "Confirm your email"
	body := email.OTPEmail(subject, user.FirstName, code, int(s.cfg.OTPTTL.Minutes()))
	if err := s.mailer.Send(ctx, user.Email, subject, body); err != nil {
		s.rollbackSignup(ctx, user.ID)
		return nil, models.NewDependencyError("Could not send confirmation email", err)
	}

	return user, nil
}

// rollbackSignup removes a just-created account whose confirmation email
// never went out. HardDelete only touches frozen rows, so the row is frozen
// first.
func (s *AuthService) rollbackSignup(ctx context.Context, userID uint) {
	if _, err := s.users.Freeze(ctx, userID, userID, false); err != nil {
		middleware.Logger.ErrorContext(ctx, "failed to roll back unconfirmed signup",
			slog.Uint64("user_id", uint64(userID)), slog.Any("error", err))
		return
	}
	if _, err := s.users.HardDelete(ctx, userID); err != nil {
		middleware.Logger.ErrorContext(ctx, "failed to roll back unconfirmed signup",
			slog.Uint64("user_id", uint64(userID)), slog.Any("error", err))
	}
}

// ConfirmEmail checks a signup confirmation code and activates the account.
func (s *AuthService) ConfirmEmail(ctx context.Context, emailAddr, code string) error {
	if err := validation.ValidateOTPCode(code); err != nil {
		return models.NewValidationError(err.Error())
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		return err
	}
	if user == nil {
		return models.NewNotFoundError("User not found")
	}
	if user.IsConfirmed {
		return models.NewConflictError("Email is already confirmed")
	}
	if user.OTPAttempts >= s.cfg.OTPMaxAttempts {
		return models.NewRateLimitedError("Too many attempts, please request a new code")
	}
	if user.OTPCode == "" || user.OTPExpires == nil || time.Now().After(*user.OTPExpires) {
		return models.NewValidationError("Code has expired, please request a new one")
	}

	if bcrypt.CompareHashAndPassword([]byte(user.OTPCode), []byte(code)) != nil {
		user.OTPAttempts++
		if err := s.users.Update(ctx, user); err != nil {
			return err
		}
		left := s.cfg.OTPMaxAttempts - user.OTPAttempts
		return models.NewUnauthorizedError(fmt.Sprintf("Invalid code, %d attempts left", left))
	}

	user.IsConfirmed = true
	user.OTPCode = ""
	user.OTPExpires = nil
	user.OTPAttempts = 0
	return s.users.Update(ctx, user)
}

// ResendCode issues a fresh confirmation code for an unconfirmed account.
func (s *AuthService) ResendCode(ctx context.Context, emailAddr string) error {
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		return err
	}
	if user == nil {
		return models.NewNotFoundError("User not found")
	}
	if user.IsConfirmed {
		return models.NewConflictError("Email is already confirmed")
	}

	code, codeHash, err := s.newOTP()
	if err != nil {
		return err
	}
	expires := time.Now().Add(s.cfg.OTPTTL)
	user.OTPCode = codeHash
	user.OTPExpires = &expires
	user.OTPAttempts = 0
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}

	subject := "Confirm your email"
	body := email.OTPEmail(subject, user.FirstName, code, int(s.cfg.OTPTTL.Minutes()))
	if err := s.mailer.Send(ctx, user.Email, subject, body); err != nil {
		return models.NewDependencyError("Could not send confirmation email", err)
	}
	return nil
}

// Login checks credentials and issues a token pair. A self-frozen account is
// restored transparently; a banned account is refused outright. Credential
// failures are indistinguishable so the endpoint leaks no account existence.
func (s *AuthService) Login(ctx context.Context, emailAddr, password string) (*models.User, *TokenPair, error) {
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, models.NewUnauthorizedError("Invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, nil, models.NewUnauthorizedError("Invalid credentials")
	}

	switch user.State() {
	case models.StatePendingConfirmation:
		// Indistinguishable from a bad password so the endpoint confirms
		// nothing about the account.
		return nil, nil, models.NewUnauthorizedError("Invalid credentials")
	case models.StateBanned:
		return nil, nil, models.NewForbiddenError("Account is banned")
	case models.StateSelfFrozen:
		if _, err := s.users.Restore(ctx, user.ID, user.ID); err != nil {
			return nil, nil, err
		}
		user.IsDeleted = false
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Refresh rotates a refresh token and returns a fresh pair. The account must
// still be live at rotation time.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.VerifyAndRotateRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.IsDeleted {
		return nil, models.NewForbiddenError("Account is not active")
	}

	return s.issuePair(ctx, user)
}

// ForgotPassword emails a password reset code. If the code cannot be
// delivered the stored reset state is cleared so a stale code never lingers.
func (s *AuthService) ForgotPassword(ctx context.Context, emailAddr string) error {
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		return err
	}
	if user == nil || user.IsDeleted {
		return models.NewNotFoundError("Email not found or account is not active")
	}

	code, codeHash, err := s.newOTP()
	if err != nil {
		return err
	}
	expires := time.Now().Add(s.cfg.OTPTTL)
	user.PasswordResetCode = codeHash
	user.PasswordResetExpires = &expires
	user.PasswordResetVerified = false
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}

	subject := "Reset your password"
	body := email.OTPEmail(subject, user.FirstName, code, int(s.cfg.OTPTTL.Minutes()))
	if err := s.mailer.Send(ctx, user.Email, subject, body); err != nil {
		user.PasswordResetCode = ""
		user.PasswordResetExpires = nil
		if updateErr := s.users.Update(ctx, user); updateErr != nil {
			middleware.Logger.ErrorContext(ctx, "failed to clear reset code after delivery failure",
				slog.Uint64("user_id", uint64(user.ID)), slog.Any("error", updateErr))
		}
		return models.NewDependencyError("Could not send password reset email", err)
	}
	return nil
}

// ResetPassword consumes a reset code, replaces the password and revokes all
// sessions.
func (s *AuthService) ResetPassword(ctx context.Context, emailAddr, code, newPassword string) error {
	if err := validation.ValidateOTPCode(code); err != nil {
		return models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(newPassword); err != nil {
		return models.NewValidationError(err.Error())
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		return err
	}
	if user == nil || user.IsDeleted {
		return models.NewNotFoundError("Email not found or account is not active")
	}
	if user.PasswordResetCode == "" || user.PasswordResetExpires == nil || time.Now().After(*user.PasswordResetExpires) {
		return models.NewValidationError("Code has expired, please request a new one")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordResetCode), []byte(code)) != nil {
		return models.NewUnauthorizedError("Invalid code")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), passwordHashCost)
	if err != nil {
		return models.NewInternalError(err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return err
	}
	return s.tokens.RevokeAllForUser(ctx, user.ID)
}

// Logout revokes one refresh session.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.tokens.RevokeRefreshToken(ctx, refreshToken)
}

// LogoutAll revokes every refresh session of the user.
func (s *AuthService) LogoutAll(ctx context.Context, userID uint) error {
	return s.tokens.RevokeAllForUser(ctx, userID)
}

// LoginWithGoogle verifies a Google ID token and signs the holder in,
// creating or linking an account as needed. Google-created accounts are
// confirmed immediately since Google already verified the address.
func (s *AuthService) LoginWithGoogle(ctx context.Context, idToken string) (*models.User, *TokenPair, error) {
	profile, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, nil, models.NewUnauthorizedError("Invalid Google token")
	}

	user, err := s.users.GetByEmail(ctx, profile.Email)
	if err != nil {
		return nil, nil, err
	}

	if user == nil {
		user, err = s.createGoogleUser(ctx, profile)
		if err != nil {
			return nil, nil, err
		}
	} else {
		switch user.State() {
		case models.StateBanned:
			return nil, nil, models.NewForbiddenError("Account is banned")
		case models.StateSelfFrozen:
			if _, err := s.users.Restore(ctx, user.ID, user.ID); err != nil {
				return nil, nil, err
			}
			user.IsDeleted = false
		}
		changed := false
		if user.GoogleID == nil {
			sub := profile.Subject
			user.GoogleID = &sub
			changed = true
		}
		if !user.IsConfirmed {
			user.IsConfirmed = true
			user.OTPCode = ""
			user.OTPExpires = nil
			user.OTPAttempts = 0
			changed = true
		}
		if changed {
			if err := s.users.Update(ctx, user); err != nil {
				return nil, nil, err
			}
		}
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

func (s *AuthService) createGoogleUser(ctx context.Context, profile *identity.Profile) (*models.User, error) {
	// Password login stays possible through the reset flow; the initial
	// password is random and never disclosed.
	random := make([]byte, 32)
	if _, err := rand.Read(random); err != nil {
		return nil, models.NewInternalError(err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(random)), passwordHashCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	first := profile.GivenName
	last := profile.FamilyName
	if first == "" {
		first = profile.Name
	}
	if first == "" {
		first = "Google"
	}
	if last == "" {
		last = "User"
	}

	avatar := profile.Picture
	if avatar == "" {
		avatar = s.cfg.DefaultAvatarURL
	}

	sub := profile.Subject
	user := &models.User{
		FirstName:   first,
		LastName:    last,
		Email:       profile.Email,
		Password:    string(hash),
		Role:        models.RoleUser,
		IsConfirmed: true,
		AvatarURL:   avatar,
		GoogleID:    &sub,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) issuePair(ctx context.Context, user *models.User) (*TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefreshToken(ctx, user)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// newOTP generates a 6-digit code and its bcrypt hash.
func (s *AuthService) newOTP() (code, hash string, err error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", "", models.NewInternalError(err)
	}
	code = fmt.Sprintf("%06d", n.Int64())

	h, err := bcrypt.GenerateFromPassword([]byte(code), otpHashCost)
	if err != nil {
		return "", "", models.NewInternalError(err)
	}
	return code, string(h), nil
}
