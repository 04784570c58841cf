package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github/martinmaurice/llmgate/internal/server/respond"
)

// Recovery turns a panic into a generic 500. The stack only goes to the log.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic while serving request",
					"request_id", RequestID(c),
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				respond.Error(c, fmt.Errorf("panic: %v", rec))
			}
		}()
		c.Next()
	}
}
