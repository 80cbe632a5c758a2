package middleware

import (
	"net/http"
	"time"

	"github.com/Miasufee/connect-sub000/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UserIDKey is the gin context key the auth middleware stores the caller's ID under
const UserIDKey = "user_id"

var probePaths = map[string]bool{
	"/health": true,
	"/ready":  true,
}

// Logger writes one access line per request. Only the path is logged, never the
// query string or body, since codes and tokens travel there. Probe hits are
// logged at debug level.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("request_id", GetRequestID(c)),
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if userID := c.GetString(UserIDKey); userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case probePaths[c.Request.URL.Path]:
			log.Debug("probe", fields...)
		case status >= http.StatusInternalServerError:
			log.Error("request failed", fields...)
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			log.Warn("request rejected", fields...)
		case status == http.StatusTooManyRequests:
			log.Warn("request throttled", fields...)
		case status >= http.StatusBadRequest:
			log.Info("bad request", fields...)
		default:
			log.Info("request completed", fields...)
		}
	}
}
