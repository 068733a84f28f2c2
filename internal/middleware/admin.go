package middleware

import (
	"crypto/subtle"

	"github.com/GoPolymarket/dexgate/internal/config"
	"github.com/GoPolymarket/dexgate/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

const HeaderAdminKey = "X-Admin-Key"

// AdminMiddleware guards operator endpoints. Without a configured key every request is refused.
func AdminMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg == nil || cfg.Auth.AdminKey == "" {
			abortWith(c, apperrors.New(apperrors.ErrAuthFailed, "admin key not configured", nil))
			return
		}
		got := c.GetHeader(HeaderAdminKey)
		if subtle.ConstantTimeCompare([]byte(got), []byte(cfg.Auth.AdminKey)) != 1 {
			abortWith(c, apperrors.New(apperrors.ErrAuthFailed, "invalid admin key", nil))
			return
		}
		c.Next()
	}
}
