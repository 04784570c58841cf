package rate_limiter

import (
	"fmt"
	"log/slog"

	"github/martinmaurice/llmgate/pkg/config"
)

type Servicer interface {
	CheckRateLimit(key string, rateLimitersId string) (string, Decision, error)
}

type Client struct {
	rateStorage  Storer
	rateLimiters map[string]RateLimiter
}

func New(rateLimiters map[string]config.RateLimiterConfig, storage Storer) *Client {
	c := &Client{
		rateStorage:  storage,
		rateLimiters: make(map[string]RateLimiter, len(rateLimiters)),
	}
	for id, rlCfg := range rateLimiters {
		c.rateLimiters[id] = c.newRateLimiter(rlCfg)
	}
	return c
}

func (c *Client) newRateLimiter(rateLimiterConfig config.RateLimiterConfig) RateLimiter {
	return NewFixedWindow(c.rateStorage, &FixedWindow{
		MaxRequests: rateLimiterConfig.MaxRequests,
		Window:      rateLimiterConfig.Window,
	})
}

// CheckRateLimit admits key against the limiter registered under
// rateLimitersId. Unknown ids and empty keys are always allowed. A storage
// failure is returned as an error with a zero decision.
func (c *Client) CheckRateLimit(key, rateLimitersId string) (string, Decision, error) {
	if key == "" || rateLimitersId == "" {
		return "", Decision{Allowed: true}, nil
	}

	rl, ok := c.rateLimiters[rateLimitersId]
	if !ok {
		return "", Decision{Allowed: true}, nil
	}

	finalKey := fmt.Sprintf("%s:%s", rateLimitersId, key)
	d, err := rl.Admit(finalKey)
	if err != nil {
		slog.Error("unexpected rate limiter error", "key", finalKey, "error", err)
		return finalKey, Decision{}, fmt.Errorf("rate limiter %s: %w", rateLimitersId, err)
	}

	if !d.Allowed {
		slog.Info("Request not allowed", "key", finalKey, "retry_after", d.RetryAfter)
	}
	return finalKey, d, nil
}

// Group binds the client to one limiter id.
func (c *Client) Group(rateLimitersId string) Admitter {
	return group{client: c, id: rateLimitersId}
}

type group struct {
	client *Client
	id     string
}

func (g group) Admit(key string) (Decision, error) {
	_, d, err := g.client.CheckRateLimit(key, g.id)
	return d, err
}

// Unlimited admits everything. Used when rate limiting is disabled.
type Unlimited struct{}

func (Unlimited) Admit(string) (Decision, error) {
	return Decision{Allowed: true}, nil
}
