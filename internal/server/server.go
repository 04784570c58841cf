package server

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github/martinmaurice/llmgate/internal/server/middleware"
	"github/martinmaurice/llmgate/pkg/metrics"
	"github/martinmaurice/llmgate/pkg/rate_limiter"
)

const (
	DefaultGracefulShutdownTimeout = 10 * time.Second
	DefaultMetricsPath             = "/metrics"
)

type Config struct {
	port                  string
	readTimeoutInSeconds  time.Duration
	writeTimeoutInSeconds time.Duration
	maxHeaderBytes        int
	handler               *gin.Engine
	forwarder             chatForwarder
	quotas                quotaGetter
	servicer              rate_limiter.Servicer
	metrics               *metrics.Recorder
	metricsPath           string
	disableRateLimiter    bool
	authTokenSecret       string
	upstreamTimeout       time.Duration
	trustedProxies        []string
}

type Option func(config *Config)

func WithDisableRateLimiter(value bool) Option {
	return func(config *Config) {
		config.disableRateLimiter = value
	}
}

// WithMetrics exposes the recorder registry on path. An empty path keeps the
// endpoint disabled while still recording.
func WithMetrics(recorder *metrics.Recorder, path string) Option {
	return func(config *Config) {
		config.metrics = recorder
		config.metricsPath = path
	}
}

func WithAuthTokenSecret(secret string) Option {
	return func(config *Config) {
		config.authTokenSecret = secret
	}
}

func WithUpstreamTimeout(timeout time.Duration) Option {
	return func(config *Config) {
		config.upstreamTimeout = timeout
	}
}

// WithTrustedProxies lists the proxies (IPs or CIDRs) whose X-Forwarded-For
// and X-Real-IP headers are believed. Without it the client ip is the peer
// address.
func WithTrustedProxies(proxies []string) Option {
	return func(config *Config) {
		config.trustedProxies = proxies
	}
}

func WithAddress(port string, readTimeout, writeTimeout time.Duration, maxHeaderBytes int) Option {
	return func(config *Config) {
		config.port = port
		config.readTimeoutInSeconds = readTimeout
		config.writeTimeoutInSeconds = writeTimeout
		config.maxHeaderBytes = maxHeaderBytes
	}
}

func NewServer(forwarder chatForwarder, quotas quotaGetter, servicer rate_limiter.Servicer, opts ...Option) *Config {
	c := &Config{
		port:                  ":8080",
		readTimeoutInSeconds:  10 * time.Second,
		writeTimeoutInSeconds: 130 * time.Second,
		maxHeaderBytes:        http.DefaultMaxHeaderBytes,
		handler:               gin.New(),
		forwarder:             forwarder,
		quotas:                quotas,
		servicer:              servicer,
		disableRateLimiter:    false,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.metrics == nil {
		c.metrics = metrics.New()
	}

	if err := c.handler.SetTrustedProxies(c.trustedProxies); err != nil {
		slog.Error("invalid trusted proxies, trusting none", "proxies", c.trustedProxies, "error", err)
		_ = c.handler.SetTrustedProxies(nil)
	}

	c.routes()
	return c
}

func (s *Config) routes() {
	s.handler.Use(middleware.RequestContextMiddleware(s.metrics), middleware.Recovery())

	s.handler.GET("/health", healthHandler)
	if s.metricsPath != "" {
		s.handler.GET(s.metricsPath, s.metrics.Handler())
	}

	api := s.handler.Group("/api", middleware.AuthenticationMiddleware(s.authTokenSecret))
	api.POST("/chat", ChatHandler(s.forwarder, s.upstreamTimeout))

	usage := []gin.HandlerFunc{UsageHandler(s.quotas)}
	if !s.disableRateLimiter {
		usage = append([]gin.HandlerFunc{
			middleware.RateLimitMiddleware(s.servicer, middleware.UsageRateLimitersId, s.metrics),
		}, usage...)
	}
	api.GET("/usage", usage...)

	s.handler.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
}

// Handler exposes the engine, mostly for tests.
func (s *Config) Handler() http.Handler {
	return s.handler
}

func (s *Config) Run() {
	srv := &http.Server{
		Addr:           s.port,
		Handler:        s.handler,
		ReadTimeout:    s.readTimeoutInSeconds,
		WriteTimeout:   s.writeTimeoutInSeconds,
		MaxHeaderBytes: s.maxHeaderBytes,
	}

	go func() {
		slog.Info("listening", "addr", s.port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Could not listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop // block until interrupt signal
	slog.Info("shutting down the server...")

	ctx, cancel := context.WithTimeout(context.Background(), DefaultGracefulShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown :%v", err)
	}

	slog.Info("Server exited gracefully")
}
