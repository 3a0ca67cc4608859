package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"objectstore/pkg/metrics"
)

// MetricsMiddleware records traffic, latency, and error series for
// every request this node's gin router handles.
func MetricsMiddleware(nodeID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		metrics.ActiveConnections.WithLabelValues(nodeID).Inc()
		defer metrics.ActiveConnections.WithLabelValues(nodeID).Dec()

		c.Next()

		duration := time.Since(start).Seconds()
		method := c.Request.Method
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		statusCode := strconv.Itoa(c.Writer.Status())

		metrics.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode, nodeID).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, endpoint, nodeID).Observe(duration)

		if c.Writer.Status() >= 400 {
			metrics.HTTPErrorsTotal.WithLabelValues(method, endpoint, statusCode, errorType(c.Writer.Status()), nodeID).Inc()
		}
	}
}

func errorType(statusCode int) string {
	switch {
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	default:
		return "unknown"
	}
}
