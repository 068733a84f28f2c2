package middleware

import (
	"log/slog"

	"github.com/GoPolymarket/dexgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/dexgate/internal/pkg/logger"
	"github.com/gin-gonic/gin"
)

// ErrorHandler renders the last handler error as an AppError. Gate rejections are expected
// outcomes and log at Info; only server faults log at Error.
func ErrorHandler() gin.HandlerFunc {
	log := logger.Component("http")
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		appErr := apperrors.Wrap(c.Errors.Last().Err)

		attrs := []any{
			"request_id", RequestID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"code", appErr.Type,
			"client_ip", c.ClientIP(),
		}
		if len(appErr.Reasons) > 0 {
			attrs = append(attrs, "reasons", appErr.Reasons)
		}

		level := logLevel(appErr)
		if level == slog.LevelError {
			attrs = append(attrs, "error", appErr.Error())
		}
		log.Log(c.Request.Context(), level, appErr.Message, attrs...)

		if !c.Writer.Written() {
			c.JSON(appErr.HTTPStatus, appErr)
		}
	}
}

// logLevel maps gate decisions that refuse a trade to Info, other client errors to Warn and
// server faults to Error.
func logLevel(appErr *apperrors.AppError) slog.Level {
	switch appErr.Type {
	case apperrors.ErrScreeningFailed, apperrors.ErrAlreadyInFlight, apperrors.ErrTradingDisabled:
		return slog.LevelInfo
	}
	if appErr.HTTPStatus >= 500 {
		return slog.LevelError
	}
	return slog.LevelWarn
}

// abortWith stops the chain and renders appErr directly. Used by guards that run before
// ErrorHandler would see the error.
func abortWith(c *gin.Context, appErr *apperrors.AppError) {
	c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
}
