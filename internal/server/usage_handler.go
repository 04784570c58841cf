package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github/martinmaurice/llmgate/internal/server/middleware"
	"github/martinmaurice/llmgate/internal/server/respond"
	"github/martinmaurice/llmgate/pkg/ledger"
)

type quotaGetter interface {
	GetQuota(ctx context.Context, accountID string) (ledger.Quota, error)
}

func UsageHandler(q quotaGetter) gin.HandlerFunc {
	return func(c *gin.Context) {
		quota, err := q.GetQuota(c.Request.Context(), middleware.AccountID(c))
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, quota)
	}
}
