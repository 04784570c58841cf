package middleware

import (
	"github.com/gin-gonic/gin"

	"github/martinmaurice/llmgate/internal/gateway"
	"github/martinmaurice/llmgate/internal/server/respond"
	"github/martinmaurice/llmgate/pkg/metrics"
	"github/martinmaurice/llmgate/pkg/rate_limiter"
)

const (
	DefaultRateLimitersId = "default"
	UsageRateLimitersId   = "usage"
)

// RateLimitMiddleware admits requests by client ip against one limiter group.
func RateLimitMiddleware(servicer rate_limiter.Servicer, rateLimitersId string, recorder *metrics.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, d, err := servicer.CheckRateLimit(c.ClientIP(), rateLimitersId)
		if err != nil {
			respond.Error(c, err)
			return
		}
		if d.Allowed {
			c.Next()
			return
		}

		if recorder != nil {
			recorder.ObserveRateLimited(rateLimitersId)
		}
		respond.Error(c, &gateway.RateLimitedError{RetryAfter: d.RetryAfter})
	}
}
