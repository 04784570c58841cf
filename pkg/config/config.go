package config

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github/martinmaurice/llmgate/pkg/enum"
	"github/martinmaurice/llmgate/pkg/env"
)

const (
	DefaultRateLimiterKey = "default"
	DefaultTier           = "free"

	defaultMaxTokens = 1024
)

var (
	FileReadErr                  = errors.New("could not read config file")
	RawConfigStructValidationErr = errors.New("invalid config")
)

type rateLimiterRawConfig struct {
	WindowSeconds int `mapstructure:"window_seconds" validate:"gt=0"`
	MaxRequests   int `mapstructure:"max_requests" validate:"gt=0"`
}

type tierRawConfig struct {
	RequestsLimit int64 `mapstructure:"requests_limit" validate:"gt=0"`
}

type rawConfig struct {
	RateLimits *struct {
		Storage string                          `validate:"omitempty,oneof=memory redis"`
		Default *rateLimiterRawConfig           `validate:"required"`
		Items   map[string]rateLimiterRawConfig `validate:"omitempty,dive"`
	} `mapstructure:"rate_limits" validate:"required"`
	Ledger *struct {
		Backend     string                   `validate:"omitempty,oneof=memory redis postgres"`
		DefaultTier string                   `mapstructure:"default_tier"`
		Tiers       map[string]tierRawConfig `validate:"required,min=1,dive"`
	} `validate:"required"`
	Upstream *struct {
		Provider         string   `validate:"omitempty,oneof=anthropic openai"`
		DefaultModel     string   `mapstructure:"default_model" validate:"required"`
		AllowedModels    []string `mapstructure:"allowed_models" validate:"omitempty,dive,required"`
		DefaultMaxTokens int      `mapstructure:"default_max_tokens" validate:"gte=0"`
		MaxTokensCeiling int      `mapstructure:"max_tokens_ceiling" validate:"gt=0"`
	} `validate:"required"`
	Metrics *struct {
		Enabled *bool
		Path    string
	}
}

type RateLimiterConfig struct {
	ID          string
	Window      time.Duration
	MaxRequests int
}

type LedgerConfig struct {
	Backend     enum.StorageBackend
	DefaultTier string
	Tiers       map[string]int64 // tier name -> requests limit
}

type UpstreamConfig struct {
	Provider         enum.Provider
	DefaultModel     string
	AllowedModels    []string
	DefaultMaxTokens int
	MaxTokensCeiling int
}

type MetricConfig struct {
	Enabled bool
	Path    string
}

type Config struct {
	RateLimitStorage enum.StorageBackend // memory or redis
	RateLimiters     map[string]RateLimiterConfig
	Ledger           LedgerConfig
	Upstream         UpstreamConfig
	Metrics          MetricConfig
}

// DefaultLimit returns the requests limit of the default tier.
func (l LedgerConfig) DefaultLimit() int64 {
	return l.Tiers[l.DefaultTier]
}

// WithRateLimitOverride replaces the default limiter window and/or count when
// the given values are positive.
func (c *Config) WithRateLimitOverride(window time.Duration, maxRequests int) {
	rl := c.RateLimiters[DefaultRateLimiterKey]
	if window > 0 {
		rl.Window = window
	}
	if maxRequests > 0 {
		rl.MaxRequests = maxRequests
	}
	c.RateLimiters[DefaultRateLimiterKey] = rl
}

func parseBackend(backend string) enum.StorageBackend {
	switch backend {
	case "redis":
		return enum.RedisBackend
	case "postgres":
		return enum.PostgresBackend
	default:
		return enum.MemoryBackend
	}
}

func parseProvider(provider string) enum.Provider {
	switch provider {
	case "openai":
		return enum.OpenAI
	default:
		return enum.Anthropic
	}
}

func parseRateLimiterConfig(id string, rlCfg rateLimiterRawConfig) RateLimiterConfig {
	return RateLimiterConfig{
		ID:          id,
		Window:      time.Duration(rlCfg.WindowSeconds) * time.Second,
		MaxRequests: rlCfg.MaxRequests,
	}
}

func parseMetricConfig(rc *rawConfig) (*MetricConfig, error) {
	metrics := MetricConfig{
		Enabled: true,
		Path:    "/metrics",
	}

	if rc.Metrics != nil {
		if rc.Metrics.Path == "" {
			return nil, fmt.Errorf("%w: metrics path could not be empty", RawConfigStructValidationErr)
		}

		metrics.Path = rc.Metrics.Path

		if rc.Metrics.Enabled != nil {
			metrics.Enabled = *rc.Metrics.Enabled
		}
	}

	return &metrics, nil
}

func parseLedgerConfig(rc *rawConfig) (*LedgerConfig, error) {
	ledger := LedgerConfig{
		Backend:     parseBackend(rc.Ledger.Backend),
		DefaultTier: rc.Ledger.DefaultTier,
		Tiers:       make(map[string]int64, len(rc.Ledger.Tiers)),
	}
	if ledger.DefaultTier == "" {
		ledger.DefaultTier = DefaultTier
	}

	for name, tier := range rc.Ledger.Tiers {
		ledger.Tiers[name] = tier.RequestsLimit
	}

	if _, ok := ledger.Tiers[ledger.DefaultTier]; !ok {
		return nil, fmt.Errorf("%w: default tier %q is not declared in ledger.tiers", RawConfigStructValidationErr, ledger.DefaultTier)
	}

	return &ledger, nil
}

func parseUpstreamConfig(rc *rawConfig) (*UpstreamConfig, error) {
	upstream := UpstreamConfig{
		Provider:         parseProvider(rc.Upstream.Provider),
		DefaultModel:     rc.Upstream.DefaultModel,
		AllowedModels:    rc.Upstream.AllowedModels,
		DefaultMaxTokens: rc.Upstream.DefaultMaxTokens,
		MaxTokensCeiling: rc.Upstream.MaxTokensCeiling,
	}

	if upstream.DefaultMaxTokens == 0 {
		upstream.DefaultMaxTokens = min(defaultMaxTokens, upstream.MaxTokensCeiling)
	}

	if upstream.DefaultMaxTokens > upstream.MaxTokensCeiling {
		return nil, fmt.Errorf("%w: upstream default_max_tokens must not exceed max_tokens_ceiling", RawConfigStructValidationErr)
	}

	return &upstream, nil
}

func parseRawConfig(rc *rawConfig) (*Config, error) {
	if err := validator.New().Struct(rc); err != nil {
		return nil, fmt.Errorf("%w: %v", RawConfigStructValidationErr, err)
	}

	rateLimitersMap := map[string]RateLimiterConfig{
		DefaultRateLimiterKey: parseRateLimiterConfig(DefaultRateLimiterKey, *rc.RateLimits.Default),
	}
	for k, rateLimiterCfg := range rc.RateLimits.Items {
		rateLimitersMap[k] = parseRateLimiterConfig(k, rateLimiterCfg)
	}

	ledger, err := parseLedgerConfig(rc)
	if err != nil {
		return nil, err
	}

	upstream, err := parseUpstreamConfig(rc)
	if err != nil {
		return nil, err
	}

	metric, err := parseMetricConfig(rc)
	if err != nil {
		return nil, err
	}

	return &Config{
		RateLimitStorage: parseBackend(rc.RateLimits.Storage),
		RateLimiters:     rateLimitersMap,
		Ledger:           *ledger,
		Upstream:         *upstream,
		Metrics:          *metric,
	}, nil
}

var (
	once           sync.Once
	configInstance *Config
)

func newConfig(path string) (*Config, error) {
	slog.Info("loading config", "path", path)
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: %v", FileReadErr, err)
	}

	var rc rawConfig
	if err := v.Unmarshal(&rc); err != nil {
		return nil, fmt.Errorf("%w: unable to decode raw config: %v", RawConfigStructValidationErr, err)
	}

	return parseRawConfig(&rc)
}

// Load reads and validates the YAML config at path.
func Load(path string) (*Config, error) {
	return newConfig(path)
}

func GetConfig() *Config {
	once.Do(func() {
		var err error
		configInstance, err = newConfig(env.GetEnv().ConfigFile)
		if err != nil {
			log.Fatalf("Could not create new config err: %v", err)
		}
	})
	return configInstance
}
