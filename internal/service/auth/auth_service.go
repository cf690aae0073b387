package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"anoncart/internal/model"
	"anoncart/internal/repository"
	"anoncart/internal/service/merge"
	"anoncart/internal/utils"
	"anoncart/pkg/log"
	pkgutils "anoncart/pkg/utils"
)

const (
	maxLoginAttempts = 5
	loginLockout     = 30 * time.Minute
)

// RegisterRequest register request
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=20"`
	Email    string `json:"email" binding:"omitempty,email"`
	Password string `json:"password" binding:"required,min=6,max=64"`
}

// LoginRequest login request. AnonymousToken, when present, is merged into
// the account right after a successful login.
type LoginRequest struct {
	Username       string `json:"username" binding:"required"`
	Password       string `json:"password" binding:"required"`
	AnonymousToken string `json:"anonymous_token"`
}

// RefreshRequest refresh request
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// TokenResponse token response
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// LoginResponse login response
type LoginResponse struct {
	TokenResponse
	User           *model.User        `json:"user"`
	AnonymousMerge *model.MergeResult `json:"anonymous_merge,omitempty"`
}

// Recorder receives account outcomes
type Recorder interface {
	RecordUserRegistration(status string)
	RecordUserLogin(status string)
}

// AuthService authentication service interface
type AuthService interface {
	// Register user
	Register(ctx context.Context, req *RegisterRequest) (*model.User, error)

	// Login user, merging the anonymous session if one is supplied
	Login(ctx context.Context, req *LoginRequest, ip string) (*LoginResponse, error)

	// Logout user
	Logout(ctx context.Context, userID uint64, token string) error

	// Validate access token
	ValidateToken(ctx context.Context, token string) (*utils.JWTClaims, error)

	// Refresh token
	RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error)
}

// authService authentication service implementation
type authService struct {
	userRepo   repository.UserRepository
	jwtManager *utils.JWTManager
	redis      redis.Cmdable
	merger     merge.Service
	recorder   Recorder
}

// NewAuthService creates an authentication service; recorder may be nil
func NewAuthService(
	userRepo repository.UserRepository,
	jwtManager *utils.JWTManager,
	redis redis.Cmdable,
	merger merge.Service,
	recorder Recorder,
) AuthService {
	return &authService{
		userRepo:   userRepo,
		jwtManager: jwtManager,
		redis:      redis,
		merger:     merger,
		recorder:   recorder,
	}
}

// Register registers a user
func (s *authService) Register(ctx context.Context, req *RegisterRequest) (*model.User, error) {
	exists, err := s.userRepo.ExistsByUsername(ctx, req.Username)
	if err != nil {
		log.WithError(err).Error("check username failed")
		s.recordRegistration("error")
		return nil, pkgutils.WrapError(err, pkgutils.ErrDatabaseError)
	}
	if exists {
		s.recordRegistration("exists")
		return nil, pkgutils.ErrUserExists
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		log.WithError(err).Error("hash password failed")
		s.recordRegistration("error")
		return nil, pkgutils.WrapError(err, pkgutils.ErrInternalError)
	}

	var email *string
	if req.Email != "" {
		email = &req.Email
	}
	user := &model.User{
		Username:     req.Username,
		Email:        email,
		PasswordHash: passwordHash,
		Status:       model.UserStatusNormal,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		log.WithError(err).Error("create user failed")
		s.recordRegistration("error")
		return nil, pkgutils.WrapError(err, pkgutils.ErrDatabaseError)
	}

	s.recordRegistration("success")
	log.WithFields(map[string]interface{}{
		"user_id":  user.ID,
		"username": user.Username,
	}).Info("user registered")
	return user, nil
}

// Login logs in a user
func (s *authService) Login(ctx context.Context, req *LoginRequest, ip string) (*LoginResponse, error) {
	if err := s.checkLoginAttempts(ctx, req.Username); err != nil {
		s.recordLogin("locked")
		return nil, err
	}

	user, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, pkgutils.ErrUserNotFound) {
			s.recordLoginFailure(ctx, req.Username)
			s.recordLogin("invalid_credentials")
			return nil, pkgutils.ErrInvalidPassword
		}
		s.recordLogin("error")
		return nil, pkgutils.WrapError(err, pkgutils.ErrDatabaseError)
	}

	if !verifyPassword(req.Password, user.PasswordHash) {
		s.recordLoginFailure(ctx, req.Username)
		s.recordLogin("invalid_credentials")
		return nil, pkgutils.ErrInvalidPassword
	}

	if !user.IsActive() {
		s.recordLogin("disabled")
		return nil, pkgutils.NewError(pkgutils.CodeForbidden, "account disabled")
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		s.recordLogin("error")
		return nil, err
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, ip); err != nil {
		log.WithError(err).Warn("update last login failed")
	}
	s.clearLoginFailures(ctx, req.Username)

	resp := &LoginResponse{
		TokenResponse: *tokens,
		User:          user,
	}

	// a failed merge is reported alongside the tokens, never as a failed login
	if req.AnonymousToken != "" && s.merger != nil {
		resp.AnonymousMerge = s.merger.Merge(ctx, user.ID, req.AnonymousToken)
	}

	s.recordLogin("success")
	log.WithFields(map[string]interface{}{
		"user_id":  user.ID,
		"username": user.Username,
		"ip":       ip,
		"merged":   resp.AnonymousMerge != nil && resp.AnonymousMerge.Success,
	}).Info("user logged in")
	return resp, nil
}

// Logout revokes the access token until it would have expired
func (s *authService) Logout(ctx context.Context, userID uint64, token string) error {
	if err := s.redis.Del(ctx, tokenKey(userID)).Err(); err != nil {
		return pkgutils.WrapError(err, pkgutils.ErrRedisError)
	}

	claims, err := s.jwtManager.ValidateToken(token)
	if err == nil && claims.ID != "" && claims.ExpiresAt != nil {
		if ttl := time.Until(claims.ExpiresAt.Time); ttl > 0 {
			if err := s.redis.Set(ctx, blacklistKey(claims.ID), "1", ttl).Err(); err != nil {
				return pkgutils.WrapError(err, pkgutils.ErrRedisError)
			}
		}
	}

	log.WithField("user_id", userID).Info("user logged out")
	return nil
}

// ValidateToken validates an access token against the blacklist and the
// current session
func (s *authService) ValidateToken(ctx context.Context, token string) (*utils.JWTClaims, error) {
	claims, err := s.jwtManager.ValidateAccessToken(token)
	if err != nil {
		return nil, pkgutils.WrapError(err, pkgutils.ErrInvalidToken)
	}

	exists, err := s.redis.Exists(ctx, blacklistKey(claims.ID)).Result()
	if err != nil {
		return nil, pkgutils.WrapError(err, pkgutils.ErrRedisError)
	}
	if exists > 0 {
		return nil, pkgutils.ErrInvalidToken
	}

	storedToken, err := s.redis.Get(ctx, tokenKey(claims.UserID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, pkgutils.ErrInvalidToken
		}
		return nil, pkgutils.WrapError(err, pkgutils.ErrRedisError)
	}
	if storedToken != token {
		return nil, pkgutils.ErrInvalidToken
	}

	return claims, nil
}

// RefreshToken issues a new access token from a refresh token
func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	accessToken, err := s.jwtManager.RefreshAccessToken(refreshToken)
	if err != nil {
		return nil, pkgutils.WrapError(err, pkgutils.ErrInvalidToken)
	}

	claims, err := s.jwtManager.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, pkgutils.WrapError(err, pkgutils.ErrInternalError)
	}

	if err := s.redis.Set(ctx, tokenKey(claims.UserID), accessToken, s.jwtManager.AccessExpire()).Err(); err != nil {
		return nil, pkgutils.WrapError(err, pkgutils.ErrRedisError)
	}

	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtManager.AccessExpire().Seconds()),
		TokenType:    "Bearer",
	}, nil
}

func (s *authService) issueTokens(ctx context.Context, user *model.User) (*TokenResponse, error) {
	accessToken, err := s.jwtManager.GenerateAccessToken(user.ID, user.Username)
	if err != nil {
		log.WithError(err).Error("generate access token failed")
		return nil, pkgutils.WrapError(err, pkgutils.ErrInternalError)
	}

	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.ID, user.Username)
	if err != nil {
		log.WithError(err).Error("generate refresh token failed")
		return nil, pkgutils.WrapError(err, pkgutils.ErrInternalError)
	}

	if err := s.redis.Set(ctx, tokenKey(user.ID), accessToken, s.jwtManager.AccessExpire()).Err(); err != nil {
		log.WithError(err).Error("store access token failed")
		return nil, pkgutils.WrapError(err, pkgutils.ErrRedisError)
	}

	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtManager.AccessExpire().Seconds()),
		TokenType:    "Bearer",
	}, nil
}

func tokenKey(userID uint64) string {
	return fmt.Sprintf("auth:token:%d", userID)
}

func blacklistKey(jti string) string {
	return fmt.Sprintf("auth:blacklist:%s", jti)
}

func loginAttemptsKey(username string) string {
	return fmt.Sprintf("auth:login_attempts:%s", username)
}

// hashPassword hashes a password
func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// verifyPassword verifies a password
func verifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// checkLoginAttempts checks login attempts
func (s *authService) checkLoginAttempts(ctx context.Context, username string) error {
	attempts, err := s.redis.Get(ctx, loginAttemptsKey(username)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		log.WithError(err).Warn("read login attempts failed")
		return nil
	}

	if attempts >= maxLoginAttempts {
		return pkgutils.NewError(pkgutils.CodeRateLimit, "login failed too many times, please try again in 30 minutes")
	}
	return nil
}

// recordLoginFailure records a login failure
func (s *authService) recordLoginFailure(ctx context.Context, username string) {
	key := loginAttemptsKey(username)
	pipe := s.redis.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, loginLockout)
	if _, err := pipe.Exec(ctx); err != nil {
		log.WithError(err).Warn("record login failure failed")
	}
}

// clearLoginFailures clears login failures
func (s *authService) clearLoginFailures(ctx context.Context, username string) {
	s.redis.Del(ctx, loginAttemptsKey(username))
}

func (s *authService) recordRegistration(status string) {
	if s.recorder != nil {
		s.recorder.RecordUserRegistration(status)
	}
}

func (s *authService) recordLogin(status string) {
	if s.recorder != nil {
		s.recorder.RecordUserLogin(status)
	}
}
