package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestLogger logs one structured line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"durationMs", time.Since(start).Milliseconds(),
		}
		if userID := c.GetString(ContextUserID); userID != "" {
			attrs = append(attrs, "userId", userID)
		}

		if c.Writer.Status() >= 500 {
			slog.Error("Request failed.", attrs...)
		} else {
			slog.Info("Request handled.", attrs...)
		}
	}
}
