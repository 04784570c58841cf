package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github/martinmaurice/llmgate/internal/server/middleware"
	"github/martinmaurice/llmgate/internal/server/respond"
	"github/martinmaurice/llmgate/pkg/chat"
)

type chatForwarder interface {
	Forward(ctx context.Context, clientKey, accountID string, req chat.Request, timeout time.Duration) (chat.Response, error)
}

// ChatHandler decodes the body and hands it to the gateway. A body that is not
// JSON never reaches the rate limiter.
func ChatHandler(f chatForwarder, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req chat.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.MalformedRequest(c, err)
			return
		}

		resp, err := f.Forward(c.Request.Context(), c.ClientIP(), middleware.AccountID(c), req, timeout)
		if err != nil {
			respond.Error(c, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}
