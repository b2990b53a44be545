package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"fleetledger/pkg/logger"
)

// Logger writes one access line per request. Health checks are not logged;
// 4xx are warnings and 5xx errors.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/health/") {
			c.Next()
			return
		}
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		kv := []any{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"query", c.Request.URL.RawQuery,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		l := log.WithContext(c.Request.Context())
		switch {
		case status >= 500:
			l.Errorw("http request", append(kv, "error", c.Errors.String())...)
		case status >= 400:
			l.Warnw("http request", kv...)
		default:
			l.Infow("http request", kv...)
		}
	}
}
