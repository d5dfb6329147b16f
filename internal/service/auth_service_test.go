package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"whisperbox/internal/identity"
	"whisperbox/internal/models"
)

func newAuthService(users *userRepoStub, mailer *mailerStub, verifier *verifierStub) *AuthService {
	cfg := testConfig()
	tokens := NewTokenService(cfg, newMemoryTokenRepo())
	return NewAuthService(cfg, users, tokens, mailer, verifier)
}

func hashOf(t *testing.T, plain string, cost int) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	require.NoError(t, err)
	return string(h)
}

func validSignup() SignupInput {
	return SignupInput{
		FirstName: "Jamie",
		LastName:  "Rivera",
		Email:     "jamie@example.com",
		Password:  "Sup3rSecret",
		Gender:    models.GenderFemale,
	}
}

func TestAuthService_Signup(t *testing.T) {
	t.Parallel()

	t.Run("creates unconfirmed user and sends code", func(t *testing.T) {
		t.Parallel()
		users := noopUserRepo()
		var created *models.User
		users.createFn = func(_ context.Context, u *models.User) error {
			u.ID = 1
			created = u
			return nil
		}
		mailer := &mailerStub{}
		svc := newAuthService(users, mailer, &verifierStub{})

		user, err := svc.Signup(context.Background(), validSignup())
		require.NoError(t, err)
		require.NotNil(t, created)
		assert.False(t, user.IsConfirmed)
		assert.NotEmpty(t, created.OTPCode, "OTP hash must be stored")
		assert.NotEqual(t, "Sup3rSecret", created.Password, "password must be hashed")
		assert.Equal(t, []string{"jamie@example.com"}, mailer.sent)
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		t.Parallel()
		users := noopUserRepo()
		users.getByEmailFn = func(context.Context, string) (*models.User, error) {
			return &models.User{ID: 2}, nil
		}
		svc := newAuthService(users, &mailerStub{}, &verifierStub{})

		_, err := svc.Signup(context.Background(), validSignup())
		assertAppErrorCode(t, err, "CONFLICT")
	})

	t.Run("rolls back the account when email delivery fails", func(t *testing.T) {
		t.Parallel()
		users := noopUserRepo()
		frozen := false
		deleted := false
		users.freezeFn = func(context.Context, uint, uint, bool) (bool, error) {
			frozen = true
			return true, nil
		}
		users.hardDeleteFn = func(context.Context, uint) (bool, error) {
			deleted = true
			return true, nil
		}
		mailer := &mailerStub{err: errors.New("smtp down")}
		svc := newAuthService(users, mailer, &verifierStub{})

		_, err := svc.Signup(context.Background(), validSignup())
		assertAppErrorCode(t, err, "DEPENDENCY_ERROR")
		assert.True(t, frozen && deleted, "failed signup must remove the row")
	})

	t.Run("validates input", func(t *testing.T) {
		t.Parallel()
		svc := newAuthService(noopUserRepo(), &mailerStub{}, &verifierStub{})
		for _, mutate := range []func(*SignupInput){
			func(in *SignupInput) { in.FirstName = "x" },
			func(in *SignupInput) { in.Email = "not-an-email" },
			func(in *SignupInput) { in.Password = "short" },
			func(in *SignupInput) { in.Gender = "Other" },
		} {
			in := validSignup()
			mutate(&in)
			_, err := svc.Signup(context.Background(), in)
			assertAppErrorCode(t, err, "VALIDATION_ERROR")
		}
	})
}

func TestAuthService_ConfirmEmail(t *testing.T) {
	t.Parallel()

	pendingUser := func(t *testing.T, code string) *models.User {
		expires := time.Now().Add(2 * time.Minute)
		return &models.User{
			ID:         1,
			Email:      "jamie@example.com",
			OTPCode:    hashOf(t, code, otpHashCost),
			OTPExpires: &expires,
		}
	}

	t.Run("correct code confirms and clears OTP state", func(t *testing.T) {
		t.Parallel()
		users := noopUserRepo()
		user := pendingUser(t, "123456")
		users.getByEmailFn = func(context.Context, string) (*models.User, error) { return user, nil }
		var saved *models.User
		users.updateFn = func(_ context.Context, u *models.User) error { saved = u; return nil }
		svc := newAuthService(users, &mailerStub{}, &verifierStub{})

		require.NoError(t, svc.ConfirmEmail(context.Background(), user.Email, "123456"))
		require.NotNil(t, saved)
		assert.True(t, saved.IsConfirmed)
		assert.Empty(t, saved.OTPCode)
		assert.Nil(t, saved.OTPExpires)
	})

	t.Run("wrong code burns one attempt", func(t *testing.T) {
		t.Parallel()
		users := noopUserRepo()
		user := pendingUser(t, "123456")
		users.getByEmailFn = func(context.Context, string) (*models.User, error) { return user, nil }
		svc := newAuthService(users, &mailerStub{}, &verifierStub{})

		err := svc.ConfirmEmail(context.Background(), user.Email, "654321")
		assertAppErrorCode(t, err, "UNAUTHORIZED")
		assert.Equal(t, 1, user.OTPAttempts)
		assert.Contains(t, err.Error(), "2 attempts left")
	})

	t.Run("attempt budget exhausted", func(t *testing.T) {
		t.Parallel()
		users := noopUserRepo()
		user := pendingUser(t, "123456")
		user.OTPAttempts = 3
		users.getByEmailFn = func(context.Context, string) (*models.User, error) { return user, nil }
		svc := newAuthService(users, &mailerStub{}, &verifierStub{})

		err := svc.ConfirmEmail(context.Background(), user.Email, "123456")
		assertAppErrorCode(t, err, "RATE_LIMITED")
	})

	t.Run("expired code", func(t *testing.T) {
		t.Parallel()
		users := noopUserRepo()
		user := pendingUser(t, "123456")
		past := time.Now().Add(-time.Minute)
		user.OTPExpires = &past
		users.getByEmailFn = func(context.Context, string) (*models.User, error) { return user, nil }
		svc := newAuthService(users, &mailerStub{}, &verifierStub{})

		err := svc.ConfirmEmail(context.Background(), user.Email, "123456")
		assertAppErrorCode(t, err, "VALIDATION_ERROR")
	})

	t.Run("already confirmed", func(t *testing.T) {
		t.Parallel()
		users := noopUserRepo()
		users.getByEmailFn = func(context.Context, string) (*models.User, error) {
			return &models.User{ID: 1, IsConfirmed: true}, nil
		}
		svc := newAuthService(users, &mailerStub{}, &verifierStub{})

		err := svc.ConfirmEmail(context.Background(), "jamie@example.com", "123456")
		assertAppErrorCode(t, err, "CONFLICT")
	})

	t.Run("unknown user", func(t *testing.T) {
		t.Parallel()
		svc := newAuthService(noopUserRepo(), &mailerStub{}, &verifierStub{})
		err := svc.ConfirmEmail(context.Background(), "ghost@example.com", "123456")
		assertAppErrorCode(t, err, "NOT_FOUND")
	})
}

func TestAuthService_Login(t *testing.T) {
	t.Parallel()

	activeUser := func(t *testing.T) *models.User {
		return &models.User{
			ID:          1,
			Email:       "jamie@example.com",
			Password:    hashOf(t, "Sup3rSecret", passwordHashCost),
			Role:        models.RoleUser,
			IsConfirmed: true,
		}
	}

	t.Run("valid credentials issue a token pair", func(t *testing.T) {
		t.Parallel()
		users := noopUserRepo()
		users.getByEmailFn = func(context.Context, string) (*models.User, error) { return activeUser(t), nil }
		svc := newAuthService(users, &mailerStub{}, &verifierStub{})

		user, pair, err := svc.Login(context.Background(), "jamie@example.com", "Sup3rSecret")
		require.NoError(t, err)
		assert.Equal(t, uint(1), user.ID)
		assert.NotEmpty(t, pair.AccessToken)
		assert.NotEmpty(t, pair.RefreshToken)
	})

	t.Run("unknown email and wrong password are indistinguishable", func(t *testing.T) {
		t.Parallel()
		users := noopUserRepo()
		svc := newAuthService(users, &mailerStub{}, &verifierStub{})
		_, _, err1 := svc.Login(context.Background(), "ghost@example.com", "whatever")

		users2 := noopUserRepo()
		users2.getByEmailFn = func(context.Context, string) (*models.User, error) { return activeUser(t), nil }
		svc2 := newAuthService(users2, &mailerStub{}, &verifierStub{})
		_, _, err2 := svc2.Login(context.Background(), "jamie@example.com", "wrongpass")

		assert.Equal(t, err1.Error(), err2.Error())
	})

	t.Run("unconfirmed account cannot log in", func(t *testing.T) {
		t.Parallel()
		users := noopUserRepo()
		user := activeUser(t)
		user.IsConfirmed = false
		users.getByEmailFn = func(context.Context, string) (*models.User, error) { return user, nil }
		svc := newAuthService(users, &mailerStub{}, &verifierStub{})

		_, _, err := svc.Login(context.Background(), user.Email, "Sup3rSecret")
		assertAppErrorCode(t, err, "UNAUTHORIZED")
		assert.Contains(t, err.Error(), "Invalid credentials")
	})

	t.Run("self-frozen account is restored on login", func(t *testing.T) {
		t.Parallel()
		users := noopUserRepo()
		user := activeUser(t)
		user.IsDeleted = true
		self := user.ID
		user.DeletedBy = &self
		users.getByEmailFn = func(context.Context, string) (*models.User, error) { return user, nil }
		restored := false
		users.restoreFn = func(_ context.Context, targetID, actorID uint) (bool, error) {
			restored = targetID == user.ID && actorID == user.ID
			return true, nil
		}
		svc := newAuthService(users, &mailerStub{}, &verifierStub{})

		_, pair, err := svc.Login(context.Background(), user.Email, "Sup3rSecret")
		require.NoError(t, err)
		assert.True(t, restored)
		assert.NotEmpty(t, pair.AccessToken)
	})

	t.Run("admin-banned account is refused", func(t *testing.T) {
		t.Parallel()
		users := noopUserRepo()
		user := activeUser(t)
		user.IsDeleted = true
		admin := uint(99)
		user.DeletedBy = &admin
		users.getByEmailFn = func(context.Context, string) (*models.User, error) { return user, nil }
		svc := newAuthService(users, &mailerStub{}, &verifierStub{})

		_, _, err := svc.Login(context.Background(), user.Email, "Sup3rSecret")
		assertAppErrorCode(t, err, "FORBIDDEN")
	})
}

func TestAuthService_Refresh_RejectsFrozenAccount(t *testing.T) {
	t.Parallel()

	users := noopUserRepo()
	user := &models.User{ID: 5, Role: models.RoleUser, IsConfirmed: true}
	users.getByEmailFn = func(context.Context, string) (*models.User, error) { return user, nil }
	users.getByIDFn = func(context.Context, uint) (*models.User, error) {
		frozen := *user
		frozen.IsDeleted = true
		return &frozen, nil
	}
	svc := newAuthService(users, &mailerStub{}, &verifierStub{})

	refresh, err := svc.tokens.IssueRefreshToken(context.Background(), user)
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), refresh)
	assertAppErrorCode(t, err, "FORBIDDEN")
}

func TestAuthService_PasswordReset(t *testing.T) {
	t.Parallel()

	t.Run("forgot password rejects unknown addresses", func(t *testing.T) {
		t.Parallel()
		mailer := &mailerStub{}
		svc := newAuthService(noopUserRepo(), mailer, &verifierStub{})
		err := svc.ForgotPassword(context.Background(), "ghost@example.com")
		assertAppErrorCode(t, err, "NOT_FOUND")
		assert.Contains(t, err.Error(), "Email not found or account is not active")
		assert.Empty(t, mailer.sent)
	})

	t.Run("forgot password rejects deleted accounts", func(t *testing.T) {
		t.Parallel()
		users := noopUserRepo()
		users.getByEmailFn = func(context.Context, string) (*models.User, error) {
			return &models.User{ID: 1, Email: "gone@example.com", IsDeleted: true}, nil
		}
		mailer := &mailerStub{}
		svc := newAuthService(users, mailer, &verifierStub{})
		assertAppErrorCode(t, svc.ForgotPassword(context.Background(), "gone@example.com"), "NOT_FOUND")
		assert.Empty(t, mailer.sent)
	})

	t.Run("forgot password clears the code when delivery fails", func(t *testing.T) {
		t.Parallel()
		users := noopUserRepo()
		user := &models.User{ID: 1, Email: "jamie@example.com", IsConfirmed: true}
		users.getByEmailFn = func(context.Context, string) (*models.User, error) { return user, nil }
		var saved []models.User
		users.updateFn = func(_ context.Context, u *models.User) error {
			saved = append(saved, *u)
			return nil
		}
		svc := newAuthService(users, &mailerStub{err: errors.New("smtp down")}, &verifierStub{})

		err := svc.ForgotPassword(context.Background(), user.Email)
		assertAppErrorCode(t, err, "DEPENDENCY_ERROR")
		require.Len(t, saved, 2)
		assert.NotEmpty(t, saved[0].PasswordResetCode)
		assert.Empty(t, saved[1].PasswordResetCode)
		assert.Nil(t, saved[1].PasswordResetExpires)
	})

	t.Run("reset rejects deleted accounts", func(t *testing.T) {
		t.Parallel()
		users := noopUserRepo()
		expires := time.Now().Add(2 * time.Minute)
		users.getByEmailFn = func(context.Context, string) (*models.User, error) {
			return &models.User{
				ID:                   1,
				Email:                "gone@example.com",
				PasswordResetCode:    hashOf(t, "123456", otpHashCost),
				PasswordResetExpires: &expires,
				IsDeleted:            true,
			}, nil
		}
		svc := newAuthService(users, &mailerStub{}, &verifierStub{})
		err := svc.ResetPassword(context.Background(), "gone@example.com", "123456", "N3wPassword")
		assertAppErrorCode(t, err, "NOT_FOUND")
	})

	t.Run("reset with valid code replaces password and revokes sessions", func(t *testing.T) {
		t.Parallel()
		users := noopUserRepo()
		expires := time.Now().Add(2 * time.Minute)
		user := &models.User{
			ID:                   1,
			Email:                "jamie@example.com",
			PasswordResetCode:    hashOf(t, "123456", otpHashCost),
			PasswordResetExpires: &expires,
			IsConfirmed:          true,
			Role:                 models.RoleUser,
		}
		users.getByEmailFn = func(context.Context, string) (*models.User, error) { return user, nil }
		var newHash string
		users.updatePasswordFn = func(_ context.Context, _ uint, hash string) error {
			newHash = hash
			return nil
		}
		svc := newAuthService(users, &mailerStub{}, &verifierStub{})

		refresh, err := svc.tokens.IssueRefreshToken(context.Background(), user)
		require.NoError(t, err)

		require.NoError(t, svc.ResetPassword(context.Background(), user.Email, "123456", "N3wPassword"))
		require.NoError(t, bcrypt.CompareHashAndPassword([]byte(newHash), []byte("N3wPassword")))

		_, err = svc.tokens.VerifyAndRotateRefreshToken(context.Background(), refresh)
		require.Error(t, err, "old sessions must die with the old password")
	})

	t.Run("reset with wrong code fails", func(t *testing.T) {
		t.Parallel()
		users := noopUserRepo()
		expires := time.Now().Add(2 * time.Minute)
		user := &models.User{
			ID:                   1,
			Email:                "jamie@example.com",
			PasswordResetCode:    hashOf(t, "123456", otpHashCost),
			PasswordResetExpires: &expires,
		}
		users.getByEmailFn = func(context.Context, string) (*models.User, error) { return user, nil }
		svc := newAuthService(users, &mailerStub{}, &verifierStub{})

		err := svc.ResetPassword(context.Background(), user.Email, "000000", "N3wPassword")
		assertAppErrorCode(t, err, "UNAUTHORIZED")
	})
}

func TestAuthService_LoginWithGoogle(t *testing.T) {
	t.Parallel()

	profile := &identity.Profile{
		Subject:    "google-sub-123",
		Email:      "jamie@example.com",
		GivenName:  "Jamie",
		FamilyName: "Rivera",
	}

	t.Run("creates a confirmed account for a new email", func(t *testing.T) {
		t.Parallel()
		users := noopUserRepo()
		var created *models.User
		users.createFn = func(_ context.Context, u *models.User) error {
			u.ID = 8
			created = u
			return nil
		}
		svc := newAuthService(users, &mailerStub{}, &verifierStub{profile: profile})

		user, pair, err := svc.LoginWithGoogle(context.Background(), "id-token")
		require.NoError(t, err)
		require.NotNil(t, created)
		assert.True(t, user.IsConfirmed)
		require.NotNil(t, user.GoogleID)
		assert.Equal(t, "google-sub-123", *user.GoogleID)
		assert.NotEmpty(t, pair.AccessToken)
	})

	t.Run("links and confirms an existing unconfirmed account", func(t *testing.T) {
		t.Parallel()
		users := noopUserRepo()
		existing := &models.User{ID: 3, Email: profile.Email, Role: models.RoleUser}
		users.getByEmailFn = func(context.Context, string) (*models.User, error) { return existing, nil }
		var saved *models.User
		users.updateFn = func(_ context.Context, u *models.User) error { saved = u; return nil }
		svc := newAuthService(users, &mailerStub{}, &verifierStub{profile: profile})

		user, _, err := svc.LoginWithGoogle(context.Background(), "id-token")
		require.NoError(t, err)
		require.NotNil(t, saved)
		assert.True(t, user.IsConfirmed)
		require.NotNil(t, user.GoogleID)
	})

	t.Run("invalid provider token", func(t *testing.T) {
		t.Parallel()
		svc := newAuthService(noopUserRepo(), &mailerStub{}, &verifierStub{err: errors.New("bad token")})
		_, _, err := svc.LoginWithGoogle(context.Background(), "garbage")
		assertAppErrorCode(t, err, "UNAUTHORIZED")
	})

	t.Run("banned account cannot use google login", func(t *testing.T) {
		t.Parallel()
		users := noopUserRepo()
		admin := uint(99)
		users.getByEmailFn = func(context.Context, string) (*models.User, error) {
			return &models.User{ID: 3, Email: profile.Email, IsDeleted: true, DeletedBy: &admin, IsConfirmed: true}, nil
		}
		svc := newAuthService(users, &mailerStub{}, &verifierStub{profile: profile})

		_, _, err := svc.LoginWithGoogle(context.Background(), "id-token")
		assertAppErrorCode(t, err, "FORBIDDEN")
	})
}
