package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/winchesHe/devproxy/pkg/metrics"
)

type MetricsMiddleware struct {
	logger *logrus.Logger
}

func NewMetricsMiddleware(logger *logrus.Logger) *MetricsMiddleware {
	return &MetricsMiddleware{
		logger: logger,
	}
}

func (m *MetricsMiddleware) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		if metrics.Config.EnableLatency {
			duration := float64(time.Since(start).Milliseconds())
			metrics.RequestLatency.WithLabelValues("total").Observe(duration)
		}

		status := metrics.GetStatusClass(c.Writer.Status())
		metrics.RequestTotal.WithLabelValues(c.Request.Method, status).Inc()

		m.logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   time.Since(start).String(),
			"request_id": c.GetString(RequestIDContextKey),
		}).Debug("Request served")
	}
}

// RequestID tags every request with an id, reusing the client's
// X-Request-ID when present. The header is forwarded upstream as is.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			c.Request.Header.Set(RequestIDHeader, id)
		}
		c.Set(RequestIDContextKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}
