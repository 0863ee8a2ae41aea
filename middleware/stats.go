package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// UsageRecorder receives per-request usage data
type UsageRecorder interface {
	TrackVisitor(ip string)
	RecordRequest(latency time.Duration, failed bool)
}

// untracked paths are served but not counted as usage
var untracked = map[string]bool{
	"/api/health":     true,
	"/api/statistics": true,
}

// RequestLogger logs every request and records API usage. A nil recorder
// only logs.
func RequestLogger(log logrus.FieldLogger, usage UsageRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ip := c.ClientIP()

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		path := c.Request.URL.Path

		entry := log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    path,
			"status":  status,
			"latency": latency.String(),
			"ip":      ip,
		})
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Debug("request served")
		}

		if usage == nil || !strings.HasPrefix(path, "/api/") || untracked[path] {
			return
		}
		usage.TrackVisitor(ip)
		usage.RecordRequest(latency, status >= http.StatusInternalServerError)
	}
}
