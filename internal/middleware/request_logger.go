package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/treechain/backend/internal/logger"
	"github.com/treechain/backend/internal/observability"
)

// RequestLogger logs each request and records HTTP metrics by route
// template, so ids in paths do not inflate label cardinality.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		observability.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(status)).Inc()
		observability.HTTPResponseTime.WithLabelValues(c.Request.Method, path).Observe(elapsed.Seconds())

		kv := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration", elapsed,
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			kv = append(kv, "errors", c.Errors.String())
		}
		switch {
		case status >= 500:
			log.Error("request failed", kv...)
		case status >= 400:
			log.Warn("request rejected", kv...)
		default:
			log.Debug("request served", kv...)
		}
	}
}
