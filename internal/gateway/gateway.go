package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github/martinmaurice/llmgate/pkg/chat"
	"github/martinmaurice/llmgate/pkg/ledger"
	"github/martinmaurice/llmgate/pkg/metrics"
	"github/martinmaurice/llmgate/pkg/rate_limiter"
	"github/martinmaurice/llmgate/pkg/upstream"
)

const (
	DefaultTimeout = 120 * time.Second

	consumeTimeout = 5 * time.Second
	rateLimitGroup = "default"
)

type Ledger interface {
	CanConsume(ctx context.Context, accountID string) (bool, error)
	Consume(ctx context.Context, accountID string) (ledger.Quota, error)
}

type Options struct {
	Limiter  rate_limiter.Admitter
	Ledger   Ledger
	Upstream upstream.Client // nil when the provider is not configured
	Provider string
	Limits   chat.Limits
	Timeout  time.Duration
	Metrics  *metrics.Recorder
}

type Gateway struct {
	limiter  rate_limiter.Admitter
	ledger   Ledger
	upstream upstream.Client
	provider string
	limits   chat.Limits
	timeout  time.Duration
	metrics  *metrics.Recorder
}

func New(opts Options) *Gateway {
	g := &Gateway{
		limiter:  opts.Limiter,
		ledger:   opts.Ledger,
		upstream: opts.Upstream,
		provider: opts.Provider,
		limits:   opts.Limits,
		timeout:  opts.Timeout,
		metrics:  opts.Metrics,
	}
	if g.limiter == nil {
		g.limiter = rate_limiter.Unlimited{}
	}
	if g.timeout <= 0 {
		g.timeout = DefaultTimeout
	}
	if g.metrics == nil {
		g.metrics = metrics.New()
	}
	return g
}

// Forward runs one chat request through rate limiting, quota check,
// validation and the upstream call. Usage is consumed only after the
// upstream call succeeded. A zero timeout uses the gateway default.
func (g *Gateway) Forward(ctx context.Context, clientKey, accountID string, req chat.Request, timeout time.Duration) (chat.Response, error) {
	resp, err := g.forward(ctx, clientKey, accountID, req, timeout)
	g.metrics.ObserveGatewayOutcome(outcomeOf(err))
	return resp, err
}

func (g *Gateway) forward(ctx context.Context, clientKey, accountID string, req chat.Request, timeout time.Duration) (chat.Response, error) {
	if g.upstream == nil {
		return chat.Response{}, ErrConfiguration
	}

	d, err := g.limiter.Admit(clientKey)
	if err != nil {
		return chat.Response{}, fmt.Errorf("admit: %w", err)
	}
	if !d.Allowed {
		g.metrics.ObserveRateLimited(rateLimitGroup)
		return chat.Response{}, &RateLimitedError{RetryAfter: d.RetryAfter}
	}

	ok, err := g.ledger.CanConsume(ctx, accountID)
	if err != nil {
		return chat.Response{}, fmt.Errorf("check quota: %w", err)
	}
	if !ok {
		slog.Info("quota exceeded", "account_id", accountID)
		return chat.Response{}, ErrQuotaExceeded
	}

	validated, err := chat.Validate(req, g.limits)
	if err != nil {
		return chat.Response{}, err
	}

	resp, err := g.call(ctx, validated, timeout)
	if err != nil {
		return chat.Response{}, err
	}

	g.consume(ctx, accountID)
	return resp, nil
}

// call ignores the caller's cancellation, only the timeout ends the upstream
// call.
func (g *Gateway) call(ctx context.Context, req chat.ValidatedRequest, timeout time.Duration) (chat.Response, error) {
	if timeout <= 0 {
		timeout = g.timeout
	}
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.upstream.Complete(callCtx, req)
	err = mapUpstreamError(callCtx, err)
	g.metrics.ObserveUpstream(g.provider, outcomeOf(err), time.Since(start))

	if err != nil {
		slog.Warn("upstream call failed", "provider", g.provider, "model", req.Model(), "error", err)
		return chat.Response{}, err
	}
	return resp, nil
}

func (g *Gateway) consume(ctx context.Context, accountID string) {
	consumeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), consumeTimeout)
	defer cancel()

	if _, err := g.ledger.Consume(consumeCtx, accountID); err != nil {
		g.metrics.ObserveLedgerWriteFailure()
		slog.Error("could not record usage after a successful upstream call", "account_id", accountID, "error", err)
	}
}

func mapUpstreamError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	var httpErr *upstream.HTTPError
	switch {
	case errors.As(err, &httpErr):
		return &UpstreamError{Status: httpErr.Status, Body: httpErr.Body}
	case errors.Is(err, upstream.ErrTimeout), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, upstream.ErrInvalidResponse):
		return &UpstreamError{Status: http.StatusBadGateway, Body: err.Error()}
	default:
		return ErrNetwork
	}
}

func outcomeOf(err error) string {
	var (
		rateLimited *RateLimitedError
		upstreamErr *UpstreamError
		validation  *chat.ValidationError
	)
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &rateLimited):
		return "rate_limited"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.As(err, &validation):
		return "validation_error"
	case errors.As(err, &upstreamErr):
		return "upstream_error"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrNetwork):
		return "network_error"
	case errors.Is(err, ErrConfiguration):
		return "configuration_error"
	default:
		return "error"
	}
}
