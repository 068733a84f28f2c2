package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/GoPolymarket/dexgate/internal/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ContextRequestID = "request_id"
	HeaderRequestID  = "X-Request-ID"

	maxLoggedBody = 4 << 10
)

// bodyLogWriter captures the response body for the access log.
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyLogWriter) Write(b []byte) (int, error) {
	if w.body.Len() < maxLoggedBody {
		w.body.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

// AccessLogMiddleware assigns a request id and writes one structured line per request.
// Bodies of mutating endpoints are logged with credentials redacted.
func AccessLogMiddleware() gin.HandlerFunc {
	log := logger.Component("http")
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(HeaderRequestID)
		if _, err := uuid.Parse(reqID); err != nil {
			reqID = uuid.NewString()
		}
		c.Set(ContextRequestID, reqID)
		c.Header(HeaderRequestID, reqID)

		var reqBody []byte
		if c.Request.Body != nil && c.Request.Method != "GET" {
			reqBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(reqBody))
		}

		blw := &bodyLogWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		attrs := []any{
			"request_id", reqID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if isLoggedPath(c.Request.URL.Path) {
			attrs = append(attrs,
				"request_body", redactBody(reqBody),
				"response_body", redactBody(blw.body.Bytes()),
			)
		}
		level := slog.LevelInfo
		if c.Writer.Status() >= 500 {
			level = slog.LevelWarn
		}
		log.Log(c.Request.Context(), level, "request", attrs...)
	}
}

// RequestID returns the id assigned by AccessLogMiddleware, or "" outside of it.
func RequestID(c *gin.Context) string {
	return c.GetString(ContextRequestID)
}

func isLoggedPath(path string) bool {
	return strings.HasPrefix(path, "/v1/trades") || strings.HasPrefix(path, "/v1/trading")
}

func redactBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return "[redacted]"
	}
	redactValue(&data)
	out, err := json.Marshal(data)
	if err != nil {
		return "[redacted]"
	}
	return string(out)
}

func redactValue(v *any) {
	switch raw := (*v).(type) {
	case map[string]any:
		for key, val := range raw {
			if isSensitiveKey(key) {
				raw[key] = "***"
				continue
			}
			vv := val
			redactValue(&vv)
			raw[key] = vv
		}
	case []any:
		for i, val := range raw {
			vv := val
			redactValue(&vv)
			raw[i] = vv
		}
	}
}

func isSensitiveKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "admin_key",
		"private_key",
		"api_key",
		"api_secret",
		"password",
		"signature",
		"mnemonic":
		return true
	default:
		return false
	}
}
