package middleware

import (
	"golang.org/x/time/rate"

	"github.com/GoPolymarket/dexgate/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

// RateLimitMiddleware applies one shared token bucket to the API. A nil limiter disables it.
func RateLimitMiddleware(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		if !limiter.Allow() {
			c.Header("Retry-After", "1")
			abortWith(c, apperrors.New(apperrors.ErrRateLimited, "rate limit exceeded", nil))
			return
		}
		c.Next()
	}
}

// NewLimiter returns nil when qps is not positive.
func NewLimiter(qps float64, burst int) *rate.Limiter {
	if qps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = int(qps) + 1
	}
	return rate.NewLimiter(rate.Limit(qps), burst)
}
