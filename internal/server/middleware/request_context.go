package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github/martinmaurice/llmgate/pkg/metrics"
)

const (
	ReqArrivalTimeContextValueKey = "reqArrivalTime"
	RequestIDContextKey           = "requestId"

	requestIDHeader = "X-Request-Id"
	maxRequestIDLen = 128
)

// RequestContextMiddleware stamps the arrival time and request id, then logs
// and measures the request once it is served.
func RequestContextMiddleware(recorder *metrics.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		arrival := time.Now()
		c.Set(ReqArrivalTimeContextValueKey, arrival)

		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		c.Set(RequestIDContextKey, id)
		c.Header(requestIDHeader, id)

		c.Next()

		latency := time.Since(arrival)
		status := c.Writer.Status()
		slog.Info("request served",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", latency,
			"request_id", id,
			"account_id", AccountID(c),
			"authenticated", IsAuthenticated(c),
		)
		if recorder != nil {
			recorder.ObserveHTTP(c.Request.Method, c.FullPath(), status, latency)
		}
	}
}

func RequestID(c *gin.Context) string {
	return c.GetString(RequestIDContextKey)
}
