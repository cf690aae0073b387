package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"anoncart/internal/utils"
	"anoncart/pkg/log"
	pkgutils "anoncart/pkg/utils"
)

const (
	// AuthorizationHeader authorization header name
	AuthorizationHeader = "Authorization"
	// BearerPrefix bearer prefix
	BearerPrefix = "Bearer "
	// DefaultAnonymousHeader header carrying the anonymous credential
	DefaultAnonymousHeader = "X-Anonymous-Token"

	// UserIDKey account id in the gin context
	UserIDKey = "user_id"
	// UsernameKey username in the gin context
	UsernameKey = "username"
	// TokenKey raw account token in the gin context
	TokenKey = "token"
	// AnonymousIDKey anonymous id in the gin context
	AnonymousIDKey = "anon_id"
)

// TokenValidator resolves an account access token
type TokenValidator func(ctx context.Context, token string) (*utils.JWTClaims, error)

// AnonymousValidator resolves an anonymous credential to its anonymous id
type AnonymousValidator interface {
	Validate(token string) (string, bool)
}

// RejectionRecorder receives rejected anonymous credentials
type RejectionRecorder interface {
	RecordSessionRejected(reason string)
}

// Auth account authentication middleware
func Auth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			pkgutils.Error(c, pkgutils.CodeUnauthorized, "Missing or malformed authorization header")
			c.Abort()
			return
		}

		claims, err := validator(c.Request.Context(), token)
		if err != nil {
			log.WithFields(map[string]interface{}{
				"path":  c.Request.URL.Path,
				"ip":    c.ClientIP(),
				"error": err.Error(),
			}).Debug("account token rejected")
			pkgutils.Error(c, pkgutils.CodeUnauthorized, "Invalid token")
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(UsernameKey, claims.Username)
		c.Set(TokenKey, token)
		c.Next()
	}
}

// AnonymousAuth anonymous session middleware. An empty header name falls back
// to DefaultAnonymousHeader; recorder may be nil.
func AnonymousAuth(header string, validator AnonymousValidator, recorder RejectionRecorder) gin.HandlerFunc {
	if header == "" {
		header = DefaultAnonymousHeader
	}

	reject := func(c *gin.Context, reason, message string) {
		if recorder != nil {
			recorder.RecordSessionRejected(reason)
		}
		pkgutils.Error(c, pkgutils.CodeUnauthorized, message)
		c.Abort()
	}

	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(header))
		if token == "" {
			reject(c, "missing", "Missing anonymous session token")
			return
		}

		anonID, ok := validator.Validate(token)
		if !ok {
			reject(c, "invalid", "Invalid anonymous session token")
			return
		}

		c.Set(AnonymousIDKey, anonID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader(AuthorizationHeader)
	if !strings.HasPrefix(authHeader, BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, BearerPrefix))
	return token, token != ""
}

// GetUserID account id from context
func GetUserID(c *gin.Context) (uint64, bool) {
	v, exists := c.Get(UserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok && id != 0
}

// GetToken raw account token from context
func GetToken(c *gin.Context) (string, bool) {
	v, exists := c.Get(TokenKey)
	if !exists {
		return "", false
	}
	token, ok := v.(string)
	return token, ok
}

// GetAnonymousID anonymous id from context
func GetAnonymousID(c *gin.Context) (string, bool) {
	v, exists := c.Get(AnonymousIDKey)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
