package config

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/martinmaurice/llmgate/pkg/enum"
)

func resetConfigForTests() {
	once = sync.Once{}
	configInstance = nil
}

func setRequiredEnvVars(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("APP_VERSION", "1")
	t.Setenv("APP_CONFIG_FILE", "./testdata/config.yaml")
}

func TestGetConfig_IsSingletonAndConcurrentSafe(t *testing.T) {
	setRequiredEnvVars(t)
	goroutine := 100

	wg := sync.WaitGroup{}
	instances := make(chan *Config, goroutine)

	for i := 0; i < goroutine; i++ {
		wg.Go(func() {
			instances <- GetConfig()
		})
	}

	wg.Wait()
	close(instances)

	var first *Config
	for instance := range instances {
		if first == nil {
			first = instance
			continue
		}
		require.Same(t, first, instance)
	}

	resetConfigForTests()
}

func TestGetConfig(t *testing.T) {
	var (
		configOk = `
rate_limits:
  storage: redis
  default:
    window_seconds: 900
    max_requests: 100

  items:
    usage:
      window_seconds: 60
      max_requests: 30

ledger:
  backend: redis
  default_tier: free
  tiers:
    free:
      requests_limit: 50
    pro:
      requests_limit: 1000

upstream:
  provider: openai
  default_model: gpt-4o-mini
  allowed_models: [gpt-4o-mini, gpt-4o]
  default_max_tokens: 512
  max_tokens_ceiling: 4096

metrics:
  enabled: true
  path: "/metrics"
`
		configWithoutRateLimitsSection = `
ledger:
  tiers:
    free:
      requests_limit: 50
upstream:
  default_model: claude-3-5-sonnet-20240620
  max_tokens_ceiling: 4096
`
		configMissingRateLimitsDefault = `
rate_limits:
  items:
    usage:
      window_seconds: 60
      max_requests: 30
ledger:
  tiers:
    free:
      requests_limit: 50
upstream:
  default_model: claude-3-5-sonnet-20240620
  max_tokens_ceiling: 4096
`
		configMinimal = `
rate_limits:
  default:
    window_seconds: 900
    max_requests: 100
ledger:
  tiers:
    free:
      requests_limit: 50
upstream:
  default_model: claude-3-5-sonnet-20240620
  max_tokens_ceiling: 512
metrics:
  enabled: false
  path: "/the-metrics"
`
		configWithUnknownBackend = `
rate_limits:
  default:
    window_seconds: 900
    max_requests: 100
ledger:
  backend: firestore
  tiers:
    free:
      requests_limit: 50
upstream:
  default_model: claude-3-5-sonnet-20240620
  max_tokens_ceiling: 4096
`
		configWithPostgresRateStorage = `
rate_limits:
  storage: postgres
  default:
    window_seconds: 900
    max_requests: 100
ledger:
  tiers:
    free:
      requests_limit: 50
upstream:
  default_model: claude-3-5-sonnet-20240620
  max_tokens_ceiling: 4096
`
		configWithUndeclaredDefaultTier = `
rate_limits:
  default:
    window_seconds: 900
    max_requests: 100
ledger:
  default_tier: basic
  tiers:
    free:
      requests_limit: 50
upstream:
  default_model: claude-3-5-sonnet-20240620
  max_tokens_ceiling: 4096
`
		configWithZeroWindow = `
rate_limits:
  default:
    window_seconds: 0
    max_requests: 100
ledger:
  tiers:
    free:
      requests_limit: 50
upstream:
  default_model: claude-3-5-sonnet-20240620
  max_tokens_ceiling: 4096
`
		configWithDefaultMaxTokensAboveCeiling = `
rate_limits:
  default:
    window_seconds: 900
    max_requests: 100
ledger:
  tiers:
    free:
      requests_limit: 50
upstream:
  default_model: claude-3-5-sonnet-20240620
  default_max_tokens: 8192
  max_tokens_ceiling: 4096
`
	)

	tests := []struct {
		name              string
		configFileContent string
		expectedConfig    *Config
		wantError         bool
		expectedError     error
	}{
		{
			name:          "Config file content is empty",
			wantError:     true,
			expectedError: RawConfigStructValidationErr,
		},
		{
			name:              "Config file is ok",
			configFileContent: configOk,
			expectedConfig: &Config{
				RateLimitStorage: enum.RedisBackend,
				RateLimiters: map[string]RateLimiterConfig{
					"default": {ID: "default", Window: 15 * time.Minute, MaxRequests: 100},
					"usage":   {ID: "usage", Window: time.Minute, MaxRequests: 30},
				},
				Ledger: LedgerConfig{
					Backend:     enum.RedisBackend,
					DefaultTier: "free",
					Tiers:       map[string]int64{"free": 50, "pro": 1000},
				},
				Upstream: UpstreamConfig{
					Provider:         enum.OpenAI,
					DefaultModel:     "gpt-4o-mini",
					AllowedModels:    []string{"gpt-4o-mini", "gpt-4o"},
					DefaultMaxTokens: 512,
					MaxTokensCeiling: 4096,
				},
				Metrics: MetricConfig{
					Enabled: true,
					Path:    "/metrics",
				},
			},
		},
		{
			name:              "missing rate_limits section",
			configFileContent: configWithoutRateLimitsSection,
			wantError:         true,
			expectedError:     RawConfigStructValidationErr,
		},
		{
			name:              "missing rate_limits.default",
			configFileContent: configMissingRateLimitsDefault,
			wantError:         true,
			expectedError:     RawConfigStructValidationErr,
		},
		{
			name:              "minimal config uses defaults",
			configFileContent: configMinimal,
			expectedConfig: &Config{
				RateLimiters: map[string]RateLimiterConfig{
					"default": {ID: "default", Window: 15 * time.Minute, MaxRequests: 100},
				},
				Ledger: LedgerConfig{
					Backend:     enum.MemoryBackend,
					DefaultTier: "free",
					Tiers:       map[string]int64{"free": 50},
				},
				Upstream: UpstreamConfig{
					Provider:         enum.Anthropic,
					DefaultModel:     "claude-3-5-sonnet-20240620",
					DefaultMaxTokens: 512,
					MaxTokensCeiling: 512,
				},
				Metrics: MetricConfig{
					Enabled: false,
					Path:    "/the-metrics",
				},
			},
		},
		{
			name:              "config using unknown ledger backend",
			configFileContent: configWithUnknownBackend,
			wantError:         true,
			expectedError:     RawConfigStructValidationErr,
		},
		{
			name:              "rate limits cannot be stored in postgres",
			configFileContent: configWithPostgresRateStorage,
			wantError:         true,
			expectedError:     RawConfigStructValidationErr,
		},
		{
			name:              "default tier is not declared",
			configFileContent: configWithUndeclaredDefaultTier,
			wantError:         true,
			expectedError:     RawConfigStructValidationErr,
		},
		{
			name:              "window must be positive",
			configFileContent: configWithZeroWindow,
			wantError:         true,
			expectedError:     RawConfigStructValidationErr,
		},
		{
			name:              "default max tokens above ceiling",
			configFileContent: configWithDefaultMaxTokensAboveCeiling,
			wantError:         true,
			expectedError:     RawConfigStructValidationErr,
		},
	}

	t.Run("config file path is wrong", func(t *testing.T) {
		_, err := newConfig("wrong_file_path.yaml")
		require.ErrorIs(t, err, FileReadErr)
	})

	setConfig := func(t *testing.T, content []byte) string {
		f, err := os.CreateTemp("", "test_config_*.yaml")
		require.NoError(t, err)
		_, err = f.Write(content)
		require.NoError(t, err)
		require.NoError(t, f.Close())
		return f.Name()
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configFileName := setConfig(t, []byte(tt.configFileContent))
			defer os.Remove(configFileName)

			cfg, err := newConfig(configFileName)
			if tt.wantError {
				require.Errorf(t, err, "should raise an error")
			}
			if tt.expectedError != nil {
				require.ErrorIs(t, err, tt.expectedError)
			}

			if tt.expectedConfig != nil {
				require.NoError(t, err)
				assert.Equal(t, tt.expectedConfig, cfg)
			}
		})
	}
}

func TestConfig_WithRateLimitOverride(t *testing.T) {
	cfg := &Config{
		RateLimiters: map[string]RateLimiterConfig{
			DefaultRateLimiterKey: {ID: DefaultRateLimiterKey, Window: 15 * time.Minute, MaxRequests: 100},
		},
	}

	cfg.WithRateLimitOverride(0, 0)
	assert.Equal(t, 15*time.Minute, cfg.RateLimiters[DefaultRateLimiterKey].Window)
	assert.Equal(t, 100, cfg.RateLimiters[DefaultRateLimiterKey].MaxRequests)

	cfg.WithRateLimitOverride(time.Minute, 5)
	assert.Equal(t, time.Minute, cfg.RateLimiters[DefaultRateLimiterKey].Window)
	assert.Equal(t, 5, cfg.RateLimiters[DefaultRateLimiterKey].MaxRequests)
}

func TestLedgerConfig_DefaultLimit(t *testing.T) {
	l := LedgerConfig{DefaultTier: "free", Tiers: map[string]int64{"free": 50, "pro": 1000}}
	assert.Equal(t, int64(50), l.DefaultLimit())
}
