package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"waterheater-panel/config"
)

func MetricsMiddleware(m *config.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		m.HTTPRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(status)).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
		if status >= 400 {
			m.HTTPErrors.WithLabelValues(c.Request.Method, path, strconv.Itoa(status)).Inc()
		}
	}
}
