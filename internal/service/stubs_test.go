package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"whisperbox/internal/config"
	"whisperbox/internal/identity"
	"whisperbox/internal/models"
)

type userRepoStub struct {
	getByIDFn        func(context.Context, uint) (*models.User, error)
	getByEmailFn     func(context.Context, string) (*models.User, error)
	createFn         func(context.Context, *models.User) error
	updateFn         func(context.Context, *models.User) error
	updatePasswordFn func(context.Context, uint, string) error
	freezeFn         func(context.Context, uint, uint, bool) (bool, error)
	restoreFn        func(context.Context, uint, uint) (bool, error)
	hardDeleteFn     func(context.Context, uint) (bool, error)
}

func (s *userRepoStub) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return s.getByIDFn(ctx, id)
}
func (s *userRepoStub) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getByEmailFn(ctx, email)
}
func (s *userRepoStub) Create(ctx context.Context, user *models.User) error {
	return s.createFn(ctx, user)
}
func (s *userRepoStub) Update(ctx context.Context, user *models.User) error {
	return s.updateFn(ctx, user)
}
func (s *userRepoStub) UpdatePassword(ctx context.Context, id uint, hash string) error {
	return s.updatePasswordFn(ctx, id, hash)
}
func (s *userRepoStub) Freeze(ctx context.Context, targetID, actorID uint, adminOverride bool) (bool, error) {
	return s.freezeFn(ctx, targetID, actorID, adminOverride)
}
func (s *userRepoStub) Restore(ctx context.Context, targetID, actorID uint) (bool, error) {
	return s.restoreFn(ctx, targetID, actorID)
}
func (s *userRepoStub) HardDelete(ctx context.Context, targetID uint) (bool, error) {
	return s.hardDeleteFn(ctx, targetID)
}

func noopUserRepo() *userRepoStub {
	return &userRepoStub{
		getByIDFn:        func(context.Context, uint) (*models.User, error) { return nil, nil },
		getByEmailFn:     func(context.Context, string) (*models.User, error) { return nil, nil },
		createFn:         func(_ context.Context, u *models.User) error { u.ID = 1; return nil },
		updateFn:         func(context.Context, *models.User) error { return nil },
		updatePasswordFn: func(context.Context, uint, string) error { return nil },
		freezeFn:         func(context.Context, uint, uint, bool) (bool, error) { return true, nil },
		restoreFn:        func(context.Context, uint, uint) (bool, error) { return true, nil },
		hardDeleteFn:     func(context.Context, uint) (bool, error) { return true, nil },
	}
}

type tokenRepoStub struct {
	createFn           func(context.Context, *models.RefreshToken) error
	deleteMatchingFn   func(context.Context, uint, string) (int64, error)
	deleteAllForUserFn func(context.Context, uint) (int64, error)
	deleteExpiredFn    func(context.Context) (int64, error)
}

func (s *tokenRepoStub) Create(ctx context.Context, token *models.RefreshToken) error {
	return s.createFn(ctx, token)
}
func (s *tokenRepoStub) DeleteMatching(ctx context.Context, userID uint, hash string) (int64, error) {
	return s.deleteMatchingFn(ctx, userID, hash)
}
func (s *tokenRepoStub) DeleteAllForUser(ctx context.Context, userID uint) (int64, error) {
	return s.deleteAllForUserFn(ctx, userID)
}
func (s *tokenRepoStub) DeleteExpired(ctx context.Context) (int64, error) {
	return s.deleteExpiredFn(ctx)
}

func noopTokenRepo() *tokenRepoStub {
	return &tokenRepoStub{
		createFn:           func(context.Context, *models.RefreshToken) error { return nil },
		deleteMatchingFn:   func(context.Context, uint, string) (int64, error) { return 1, nil },
		deleteAllForUserFn: func(context.Context, uint) (int64, error) { return 0, nil },
		deleteExpiredFn:    func(context.Context) (int64, error) { return 0, nil },
	}
}

// memoryTokenRepo behaves like the real table: hashes live until spent.
type memoryTokenRepo struct {
	hashes map[string]uint
}

func newMemoryTokenRepo() *memoryTokenRepo {
	return &memoryTokenRepo{hashes: make(map[string]uint)}
}

func (m *memoryTokenRepo) Create(_ context.Context, token *models.RefreshToken) error {
	m.hashes[token.TokenHash] = token.UserID
	return nil
}
func (m *memoryTokenRepo) DeleteMatching(_ context.Context, userID uint, hash string) (int64, error) {
	if owner, ok := m.hashes[hash]; ok && owner == userID {
		delete(m.hashes, hash)
		return 1, nil
	}
	return 0, nil
}
func (m *memoryTokenRepo) DeleteAllForUser(_ context.Context, userID uint) (int64, error) {
	var n int64
	for hash, owner := range m.hashes {
		if owner == userID {
			delete(m.hashes, hash)
			n++
		}
	}
	return n, nil
}
func (m *memoryTokenRepo) DeleteExpired(context.Context) (int64, error) { return 0, nil }

type messageRepoStub struct {
	createFn           func(context.Context, *models.Message) error
	getByIDFn          func(context.Context, uint) (*models.Message, error)
	updateFn           func(context.Context, *models.Message) error
	listInboxFn        func(context.Context, uint, int, int) ([]models.Message, int64, error)
	deleteAllForUserFn func(context.Context, uint) (int64, error)
}

func (s *messageRepoStub) Create(ctx context.Context, message *models.Message) error {
	return s.createFn(ctx, message)
}
func (s *messageRepoStub) GetByID(ctx context.Context, id uint) (*models.Message, error) {
	return s.getByIDFn(ctx, id)
}
func (s *messageRepoStub) Update(ctx context.Context, message *models.Message) error {
	return s.updateFn(ctx, message)
}
func (s *messageRepoStub) ListInbox(ctx context.Context, receiverID uint, limit, offset int) ([]models.Message, int64, error) {
	return s.listInboxFn(ctx, receiverID, limit, offset)
}
func (s *messageRepoStub) DeleteAllForUser(ctx context.Context, userID uint) (int64, error) {
	return s.deleteAllForUserFn(ctx, userID)
}

func noopMessageRepo() *messageRepoStub {
	return &messageRepoStub{
		createFn:  func(_ context.Context, m *models.Message) error { m.ID = 1; return nil },
		getByIDFn: func(context.Context, uint) (*models.Message, error) { return nil, nil },
		updateFn:  func(context.Context, *models.Message) error { return nil },
		listInboxFn: func(context.Context, uint, int, int) ([]models.Message, int64, error) {
			return nil, 0, nil
		},
		deleteAllForUserFn: func(context.Context, uint) (int64, error) { return 0, nil },
	}
}

// mailerStub records sent mail and optionally fails.
type mailerStub struct {
	sent []string
	err  error
}

func (m *mailerStub) Send(_ context.Context, to, _, _ string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, to)
	return nil
}

type verifierStub struct {
	profile *identity.Profile
	err     error
}

func (v *verifierStub) Verify(context.Context, string) (*identity.Profile, error) {
	return v.profile, v.err
}

type storeStub struct {
	uploadFn func(context.Context, string, string, string) (string, string, error)
	deleted  []string
}

func (s *storeStub) Upload(ctx context.Context, localPath, folder, contentType string) (string, string, error) {
	if s.uploadFn != nil {
		return s.uploadFn(ctx, localPath, folder, contentType)
	}
	return "https://cdn.example.com/" + folder + "/obj", folder + "/obj", nil
}
func (s *storeStub) Delete(_ context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Port:               "8460",
		Env:                "test",
		AccessSecretUser:   "test-access-user-secret",
		AccessSecretAdmin:  "test-access-admin-secret",
		RefreshSecretUser:  "test-refresh-user-secret",
		RefreshSecretAdmin: "test-refresh-admin-secret",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    7 * 24 * time.Hour,
		OTPTTL:             2 * time.Minute,
		OTPMaxAttempts:     3,
		AvatarMaxSizeMB:    10,
		DefaultAvatarURL:   "/static/default-avatar.png",
	}
}

func assertAppErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *models.AppError
	if !errors.As(err, &appErr) || appErr.Code != code {
		t.Fatalf("expected %s app error, got %#v", code, err)
	}
}
