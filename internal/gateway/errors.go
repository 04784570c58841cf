package gateway

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrQuotaExceeded = errors.New("request quota exceeded")
	ErrTimeout       = errors.New("upstream request timed out")
	ErrNetwork       = errors.New("could not reach upstream provider")
	ErrConfiguration = errors.New("gateway is missing required configuration")
)

type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// UpstreamError is a provider side rejection, forwarded as is.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream provider returned status %d", e.Status)
}
