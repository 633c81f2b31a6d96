package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"supercv-backend/internal/shared/telemetry"
)

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Request.Method, "OPTIONS") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		fields := map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"route":       c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": float64(time.Since(start).Microseconds()) / 1000.0,
			"account_id":  AccountIDFromContext(c),
			"client_ip":   c.ClientIP(),
		}
		if anon, ok := c.Get(anonymousKey); ok {
			fields["is_anonymous"] = anon
		}
		if id := c.GetString("analysisId"); id != "" {
			fields["analysis_id"] = id
		}
		if transition := c.GetString("statusTransition"); transition != "" {
			fields["status_transition"] = transition
		}
		telemetry.Info("request.complete", fields)
	}
}
