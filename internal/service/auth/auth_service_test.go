package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"anoncart/internal/model"
	"anoncart/internal/utils"
	pkgutils "anoncart/pkg/utils"
)

// MockUserRepository mock user repository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	if args.Error(0) == nil {
		user.ID = 42
	}
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) UpdateLastLogin(ctx context.Context, userID uint64, ip string) error {
	return m.Called(ctx, userID, ip).Error(0)
}

func (m *MockUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

type fakeMerger struct {
	calls  int
	result *model.MergeResult
}

func (f *fakeMerger) Merge(_ context.Context, _ uint64, _ string) *model.MergeResult {
	f.calls++
	return f.result
}

type fakeRecorder struct {
	registrations []string
	logins        []string
}

func (f *fakeRecorder) RecordUserRegistration(status string) {
	f.registrations = append(f.registrations, status)
}

func (f *fakeRecorder) RecordUserLogin(status string) {
	f.logins = append(f.logins, status)
}

type fixture struct {
	svc      AuthService
	repo     *MockUserRepository
	merger   *fakeMerger
	recorder *fakeRecorder
	mr       *miniredis.Miniredis
	jwt      *utils.JWTManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	f := &fixture{
		repo:     new(MockUserRepository),
		merger:   &fakeMerger{result: &model.MergeResult{Success: true, Message: model.MergeMessageMerged}},
		recorder: &fakeRecorder{},
		mr:       mr,
		jwt:      utils.NewJWTManager("account-secret", "anoncart-test", time.Hour, 24*time.Hour),
	}
	f.svc = NewAuthService(f.repo, f.jwt, client, f.merger, f.recorder)
	return f
}

func testUser(t *testing.T, password string) *model.User {
	t.Helper()
	hash, err := hashPassword(password)
	require.NoError(t, err)
	return &model.User{ID: 7, Username: "alice", PasswordHash: hash, Status: model.UserStatusNormal}
}

func TestRegister(t *testing.T) {
	t.Run("creates user with hashed password", func(t *testing.T) {
		f := newFixture(t)
		f.repo.On("ExistsByUsername", mock.Anything, "alice").Return(false, nil)
		f.repo.On("Create", mock.Anything, mock.MatchedBy(func(u *model.User) bool {
			return u.Username == "alice" && u.Email == nil && verifyPassword("secret1", u.PasswordHash)
		})).Return(nil)

		user, err := f.svc.Register(context.Background(), &RegisterRequest{Username: "alice", Password: "secret1"})
		require.NoError(t, err)
		assert.Equal(t, uint64(42), user.ID)
		assert.Equal(t, []string{"success"}, f.recorder.registrations)
		f.repo.AssertExpectations(t)
	})

	t.Run("duplicate username", func(t *testing.T) {
		f := newFixture(t)
		f.repo.On("ExistsByUsername", mock.Anything, "alice").Return(true, nil)

		_, err := f.svc.Register(context.Background(), &RegisterRequest{Username: "alice", Password: "secret1"})
		assert.ErrorIs(t, err, pkgutils.ErrUserExists)
		f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("storage failure", func(t *testing.T) {
		f := newFixture(t)
		f.repo.On("ExistsByUsername", mock.Anything, "alice").Return(false, errors.New("connection refused"))

		_, err := f.svc.Register(context.Background(), &RegisterRequest{Username: "alice", Password: "secret1"})
		assert.ErrorIs(t, err, pkgutils.ErrDatabaseError)
	})
}

func TestLogin(t *testing.T) {
	t.Run("issues tokens and stores session", func(t *testing.T) {
		f := newFixture(t)
		f.repo.On("GetByUsername", mock.Anything, "alice").Return(testUser(t, "secret1"), nil)
		f.repo.On("UpdateLastLogin", mock.Anything, uint64(7), "10.0.0.1").Return(nil)

		resp, err := f.svc.Login(context.Background(), &LoginRequest{Username: "alice", Password: "secret1"}, "10.0.0.1")
		require.NoError(t, err)
		assert.NotEmpty(t, resp.AccessToken)
		assert.NotEmpty(t, resp.RefreshToken)
		assert.Equal(t, "Bearer", resp.TokenType)
		assert.Equal(t, int64(3600), resp.ExpiresIn)
		assert.Nil(t, resp.AnonymousMerge)
		assert.Equal(t, 0, f.merger.calls)

		stored, err := f.mr.Get("auth:token:7")
		require.NoError(t, err)
		assert.Equal(t, resp.AccessToken, stored)
		assert.Equal(t, []string{"success"}, f.recorder.logins)
	})

	t.Run("merges anonymous session", func(t *testing.T) {
		f := newFixture(t)
		f.repo.On("GetByUsername", mock.Anything, "alice").Return(testUser(t, "secret1"), nil)
		f.repo.On("UpdateLastLogin", mock.Anything, uint64(7), "").Return(nil)

		resp, err := f.svc.Login(context.Background(), &LoginRequest{
			Username: "alice", Password: "secret1", AnonymousToken: "anon-token",
		}, "")
		require.NoError(t, err)
		assert.Equal(t, 1, f.merger.calls)
		require.NotNil(t, resp.AnonymousMerge)
		assert.True(t, resp.AnonymousMerge.Success)
	})

	t.Run("failed merge does not fail login", func(t *testing.T) {
		f := newFixture(t)
		f.merger.result = &model.MergeResult{Message: model.MergeMessageFailed, Status: model.MergeStatusFailed}
		f.repo.On("GetByUsername", mock.Anything, "alice").Return(testUser(t, "secret1"), nil)
		f.repo.On("UpdateLastLogin", mock.Anything, uint64(7), "").Return(nil)

		resp, err := f.svc.Login(context.Background(), &LoginRequest{
			Username: "alice", Password: "secret1", AnonymousToken: "anon-token",
		}, "")
		require.NoError(t, err)
		assert.NotEmpty(t, resp.AccessToken)
		assert.False(t, resp.AnonymousMerge.Success)
	})

	t.Run("wrong password counts attempts", func(t *testing.T) {
		f := newFixture(t)
		f.repo.On("GetByUsername", mock.Anything, "alice").Return(testUser(t, "secret1"), nil)

		_, err := f.svc.Login(context.Background(), &LoginRequest{Username: "alice", Password: "wrong", AnonymousToken: "anon-token"}, "")
		assert.ErrorIs(t, err, pkgutils.ErrInvalidPassword)
		assert.Equal(t, 0, f.merger.calls)

		attempts, err := f.mr.Get("auth:login_attempts:alice")
		require.NoError(t, err)
		assert.Equal(t, "1", attempts)
	})

	t.Run("unknown user reads as bad credentials", func(t *testing.T) {
		f := newFixture(t)
		f.repo.On("GetByUsername", mock.Anything, "bob").Return(nil, pkgutils.ErrUserNotFound)

		_, err := f.svc.Login(context.Background(), &LoginRequest{Username: "bob", Password: "secret1"}, "")
		assert.ErrorIs(t, err, pkgutils.ErrInvalidPassword)
	})

	t.Run("locked after too many failures", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.mr.Set("auth:login_attempts:alice", "5"))

		_, err := f.svc.Login(context.Background(), &LoginRequest{Username: "alice", Password: "secret1"}, "")
		assert.Equal(t, pkgutils.CodeRateLimit, pkgutils.GetErrorCode(err))
		f.repo.AssertNotCalled(t, "GetByUsername", mock.Anything, mock.Anything)
	})

	t.Run("disabled account", func(t *testing.T) {
		f := newFixture(t)
		user := testUser(t, "secret1")
		user.Status = model.UserStatusDisabled
		f.repo.On("GetByUsername", mock.Anything, "alice").Return(user, nil)

		_, err := f.svc.Login(context.Background(), &LoginRequest{Username: "alice", Password: "secret1"}, "")
		assert.Equal(t, pkgutils.CodeForbidden, pkgutils.GetErrorCode(err))
	})
}

func TestValidateTokenAndLogout(t *testing.T) {
	f := newFixture(t)
	f.repo.On("GetByUsername", mock.Anything, "alice").Return(testUser(t, "secret1"), nil)
	f.repo.On("UpdateLastLogin", mock.Anything, uint64(7), "").Return(nil)

	ctx := context.Background()
	resp, err := f.svc.Login(ctx, &LoginRequest{Username: "alice", Password: "secret1"}, "")
	require.NoError(t, err)

	claims, err := f.svc.ValidateToken(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), claims.UserID)

	_, err = f.svc.ValidateToken(ctx, resp.RefreshToken)
	assert.ErrorIs(t, err, pkgutils.ErrInvalidToken)

	require.NoError(t, f.svc.Logout(ctx, 7, resp.AccessToken))
	assert.True(t, f.mr.Exists("auth:blacklist:"+claims.ID))

	_, err = f.svc.ValidateToken(ctx, resp.AccessToken)
	assert.ErrorIs(t, err, pkgutils.ErrInvalidToken)
}

func TestRefreshToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	refresh, err := f.jwt.GenerateRefreshToken(7, "alice")
	require.NoError(t, err)

	resp, err := f.svc.RefreshToken(ctx, refresh)
	require.NoError(t, err)
	assert.Equal(t, refresh, resp.RefreshToken)

	claims, err := f.svc.ValidateToken(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)

	access, err := f.jwt.GenerateAccessToken(7, "alice")
	require.NoError(t, err)
	_, err = f.svc.RefreshToken(ctx, access)
	assert.ErrorIs(t, err, pkgutils.ErrInvalidToken)
}
