package middleware

import (
	"github.com/gin-gonic/gin"

	"anoncart/pkg/limiter"
	"anoncart/pkg/log"
	"anoncart/pkg/utils"
)

// KeyFunc derives the rate limit key of a request
type KeyFunc func(c *gin.Context) string

// ClientIPKey limits per client IP
func ClientIPKey(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// RateLimit rate limiting middleware. Limiter errors let the request through.
func RateLimit(l limiter.RateLimiter, keyFunc KeyFunc) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = ClientIPKey
	}

	return func(c *gin.Context) {
		key := keyFunc(c)

		allowed, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			log.WithError(err).WithField("key", key).Warn("rate limiter unavailable")
			c.Next()
			return
		}

		if !allowed {
			log.WithFields(map[string]interface{}{
				"key":    key,
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
				"ip":     c.ClientIP(),
			}).Warn("Rate limit exceeded")

			c.Header("Retry-After", "1")
			utils.Error(c, utils.CodeRateLimit, "Too many requests")
			c.Abort()
			return
		}

		c.Next()
	}
}
