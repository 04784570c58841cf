package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github/martinmaurice/llmgate/internal/server/middleware"
)

type healthResponseDTO struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func healthHandler(ctx *gin.Context) {
	logger := slog.With("handler", "health")
	reqArrivalTime, exists := ctx.Get(middleware.ReqArrivalTimeContextValueKey)
	if exists {
		queueTime := time.Since(reqArrivalTime.(time.Time)).Microseconds()
		logger.Debug("Queue Time (µs)", "queueTime", queueTime)
	}

	ctx.JSON(http.StatusOK, healthResponseDTO{Status: "ok", Timestamp: time.Now().UTC()})
}
