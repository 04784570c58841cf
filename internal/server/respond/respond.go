package respond

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github/martinmaurice/llmgate/internal/gateway"
	"github/martinmaurice/llmgate/pkg/auth"
	"github/martinmaurice/llmgate/pkg/chat"
	"github/martinmaurice/llmgate/pkg/ledger"
)

const MalformedRequestKind = "MalformedRequest"

type ErrorResponse struct {
	Error          string `json:"error"`
	Kind           string `json:"kind,omitempty"`
	RetryAfter     int    `json:"retryAfter,omitempty"`
	UpstreamStatus int    `json:"upstreamStatus,omitempty"`
	UpstreamBody   string `json:"upstreamBody,omitempty"`
}

// Error is the single place where errors become HTTP statuses.
func Error(c *gin.Context, err error) {
	status, body := toResponse(err)
	if ra := body.RetryAfter; ra > 0 {
		c.Header("Retry-After", strconv.Itoa(ra))
	}

	logger := slog.With("path", c.Request.URL.Path, "method", c.Request.Method, "status", status, "request_id", c.GetString("requestId"))
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	} else {
		logger.Info("request rejected", "error", err)
	}

	c.AbortWithStatusJSON(status, body)
}

// MalformedRequest answers a body that could not be decoded at all.
func MalformedRequest(c *gin.Context, err error) {
	slog.Info("malformed request body", "path", c.Request.URL.Path, "error", err)
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Error: "request body is not valid JSON for this endpoint",
		Kind:  MalformedRequestKind,
	})
}

func toResponse(err error) (int, ErrorResponse) {
	var (
		validation  *chat.ValidationError
		rateLimited *gateway.RateLimitedError
		upstreamErr *gateway.UpstreamError
	)

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, ErrorResponse{Error: validation.Message, Kind: string(validation.Kind)}
	case errors.As(err, &rateLimited):
		return http.StatusTooManyRequests, ErrorResponse{
			Error:      "too many requests",
			RetryAfter: RetryAfterSeconds(rateLimited.RetryAfter),
		}
	case errors.Is(err, gateway.ErrQuotaExceeded):
		return http.StatusPaymentRequired, ErrorResponse{Error: "request quota exceeded for this account"}
	case errors.As(err, &upstreamErr):
		return http.StatusBadGateway, ErrorResponse{
			Error:          "upstream provider rejected the request",
			UpstreamStatus: upstreamErr.Status,
			UpstreamBody:   upstreamErr.Body,
		}
	case errors.Is(err, gateway.ErrTimeout):
		return http.StatusGatewayTimeout, ErrorResponse{Error: "upstream provider did not answer in time"}
	case errors.Is(err, gateway.ErrNetwork):
		return http.StatusInternalServerError, ErrorResponse{Error: "could not reach upstream provider"}
	case errors.Is(err, gateway.ErrConfiguration):
		return http.StatusInternalServerError, ErrorResponse{Error: "gateway is not configured"}
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized, ErrorResponse{Error: err.Error()}
	case errors.Is(err, ledger.ErrInvalidAccountID):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error()}
	case errors.Is(err, ledger.ErrAccountNotFound):
		return http.StatusNotFound, ErrorResponse{Error: err.Error()}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal server error"}
	}
}

// RetryAfterSeconds rounds up to whole seconds, never below one.
func RetryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
