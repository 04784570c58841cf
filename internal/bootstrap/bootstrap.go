package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver
	"github.com/redis/go-redis/v9"

	"github/martinmaurice/llmgate/internal/gateway"
	"github/martinmaurice/llmgate/pkg/chat"
	"github/martinmaurice/llmgate/pkg/config"
	"github/martinmaurice/llmgate/pkg/enum"
	"github/martinmaurice/llmgate/pkg/env"
	"github/martinmaurice/llmgate/pkg/ledger"
	"github/martinmaurice/llmgate/pkg/metrics"
	"github/martinmaurice/llmgate/pkg/rate_limiter"
	"github/martinmaurice/llmgate/pkg/upstream"
)

const (
	pingTimeout   = 5 * time.Second
	sweepInterval = time.Minute
)

var ErrConfiguration = errors.New("configuration error")

var openDB = sql.Open

type Options struct {
	DisableRateLimiter bool
	Migrate            bool
}

// App holds everything the HTTP server needs. Close releases the backing
// store connections and stops the limiter sweeper.
type App struct {
	Gateway *gateway.Gateway
	Ledger  *ledger.Service
	Limiter *rate_limiter.Client
	Metrics *metrics.Recorder

	closers []func() error
}

func New(ctx context.Context, spec *env.Specification, cfg *config.Config, opts Options) (*App, error) {
	if err := CheckTimeouts(spec); err != nil {
		return nil, err
	}

	cfg.WithRateLimitOverride(spec.RateLimitWindow, spec.RateLimitMax)

	store, closeStore, err := NewLedgerStore(ctx, cfg.Ledger.Backend, spec, opts.Migrate)
	if err != nil {
		return nil, err
	}

	limiter, closeLimiter, err := NewRateLimiter(ctx, cfg.RateLimitStorage, cfg.RateLimiters, spec)
	if err != nil {
		_ = closeStore()
		return nil, err
	}

	app := &App{
		Ledger:  ledger.NewService(store, cfg.Ledger),
		Limiter: limiter,
		Metrics: metrics.New(),
		closers: []func() error{closeLimiter, closeStore},
	}

	var admitter rate_limiter.Admitter = app.Limiter.Group(config.DefaultRateLimiterKey)
	if opts.DisableRateLimiter {
		slog.Warn("rate limiter is disabled")
		admitter = rate_limiter.Unlimited{}
	}

	app.Gateway = gateway.New(gateway.Options{
		Limiter:  admitter,
		Ledger:   app.Ledger,
		Upstream: NewUpstream(cfg.Upstream, spec),
		Provider: cfg.Upstream.Provider.String(),
		Limits:   LimitsOf(cfg.Upstream),
		Timeout:  spec.UpstreamTimeout,
		Metrics:  app.Metrics,
	})

	return app, nil
}

// CheckTimeouts rejects a server write timeout that would cut a response off
// before the upstream call is allowed to finish. A zero write timeout means
// no limit; a zero upstream timeout means gateway.DefaultTimeout.
func CheckTimeouts(spec *env.Specification) error {
	if spec.ServerWriteTimeoutInSecond <= 0 {
		return nil
	}

	upstreamTimeout := spec.UpstreamTimeout
	if upstreamTimeout <= 0 {
		upstreamTimeout = gateway.DefaultTimeout
	}

	if spec.ServerWriteTimeoutInSecond <= upstreamTimeout {
		return fmt.Errorf("%w: APP_SERVER_WRITE_TIMEOUT_IN_SECOND (%s) must exceed APP_UPSTREAM_TIMEOUT (%s)",
			ErrConfiguration, spec.ServerWriteTimeoutInSecond, upstreamTimeout)
	}
	return nil
}

func (a *App) Close() error {
	var errs []error
	for _, closeFn := range a.closers {
		errs = append(errs, closeFn())
	}
	return errors.Join(errs...)
}

// LimitsOf maps the upstream config onto validation limits. The anthropic
// adapter lifts system messages out of the list, so it needs at least one
// other message.
func LimitsOf(cfg config.UpstreamConfig) chat.Limits {
	return chat.Limits{
		DefaultModel:        cfg.DefaultModel,
		AllowedModels:       cfg.AllowedModels,
		DefaultMaxTokens:    cfg.DefaultMaxTokens,
		MaxTokensCeiling:    cfg.MaxTokensCeiling,
		RequireConversation: cfg.Provider == enum.Anthropic,
	}
}

// NewUpstream returns nil when no API key is configured. The gateway then
// answers every chat request with a configuration error.
func NewUpstream(cfg config.UpstreamConfig, spec *env.Specification) upstream.Client {
	if strings.TrimSpace(spec.UpstreamApiKey) == "" {
		slog.Warn("upstream api key is not set, chat requests will fail", "provider", cfg.Provider.String())
		return nil
	}
	return upstream.New(upstream.Options{
		Provider: cfg.Provider,
		BaseURL:  spec.UpstreamBaseUrl,
		APIKey:   spec.UpstreamApiKey,
	})
}

// NewRateLimiter builds the limiter on the configured storage. In memory,
// idle windows are swept until the returned close func is called.
func NewRateLimiter(ctx context.Context, backend enum.StorageBackend, limiters map[string]config.RateLimiterConfig, spec *env.Specification) (*rate_limiter.Client, func() error, error) {
	if backend == enum.RedisBackend {
		rc, err := NewRedis(ctx, spec)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("rate limiter storage ready", "storage", backend.String())
		return rate_limiter.New(limiters, rate_limiter.NewRedisStorage(rc)), rc.Close, nil
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	storage := rate_limiter.NewMemoryStorage()
	storage.StartSweeper(sweepCtx, sweepInterval)
	return rate_limiter.New(limiters, storage), func() error { stopSweeper(); return nil }, nil
}

// NewLedgerStore connects the configured backing store. The returned close
// func is never nil.
func NewLedgerStore(ctx context.Context, backend enum.StorageBackend, spec *env.Specification, migrate bool) (ledger.Store, func() error, error) {
	noop := func() error { return nil }

	switch backend {
	case enum.RedisBackend:
		rc, err := NewRedis(ctx, spec)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("ledger backend ready", "backend", backend.String())
		return ledger.NewRedisStore(rc), rc.Close, nil
	case enum.PostgresBackend:
		db, err := OpenPostgres(ctx, spec.DatabaseUrl)
		if err != nil {
			return nil, nil, err
		}
		if migrate {
			if err := ledger.RunMigrations(ctx, db); err != nil {
				db.Close()
				return nil, nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		slog.Info("ledger backend ready", "backend", backend.String())
		return ledger.NewPostgresStore(db), db.Close, nil
	default:
		slog.Warn("ledger uses the memory backend, usage is lost on restart")
		return ledger.NewMemoryStore(), noop, nil
	}
}

func NewRedis(ctx context.Context, spec *env.Specification) (*redis.Client, error) {
	if strings.TrimSpace(spec.RedisAddr) == "" {
		return nil, fmt.Errorf("%w: APP_REDIS_ADDR is required for the redis ledger backend", ErrConfiguration)
	}

	rc := redis.NewClient(&redis.Options{
		Addr:     spec.RedisAddr,
		Password: spec.RedisPassword,
		DB:       spec.RedisDb,
		PoolSize: spec.RedisPoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		rc.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rc, nil
}

// OpenPostgres opens a pgx backed *sql.DB and verifies connectivity.
func OpenPostgres(ctx context.Context, databaseURL string) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("%w: APP_DATABASE_URL is required for the postgres ledger backend", ErrConfiguration)
	}

	db, err := openDB("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(2 * time.Minute)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
