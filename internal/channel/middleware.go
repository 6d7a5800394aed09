package channel

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// requestLogger logs every request with a request id, its status class and
// its duration.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Header(requestIDHeader, rid)

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"request_id", rid,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start),
		}
		if outcome, ok := c.Get("outcome"); ok {
			attrs = append(attrs, "outcome", outcome)
		}

		switch {
		case status >= 500:
			logger.Error("http request failed", attrs...)
		case status >= 400:
			logger.Warn("http request rejected", attrs...)
		default:
			logger.Info("http request served", attrs...)
		}
	}
}
