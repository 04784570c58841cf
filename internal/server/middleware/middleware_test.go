package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/martinmaurice/llmgate/pkg/auth"
	"github/martinmaurice/llmgate/pkg/config"
	"github/martinmaurice/llmgate/pkg/metrics"
	"github/martinmaurice/llmgate/pkg/rate_limiter"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func accountEcho(c *gin.Context) {
	c.String(http.StatusOK, "%s %t", AccountID(c), IsAuthenticated(c))
}

func TestAuthenticationMiddleware(t *testing.T) {
	const secret = "s3cret"
	valid, err := auth.IssueToken("acc-1", secret, time.Hour)
	require.NoError(t, err)
	expired, err := auth.IssueToken("acc-1", secret, -time.Hour)
	require.NoError(t, err)

	tests := []struct {
		id          string
		secret      string
		headers     map[string]string
		wantStatus  int
		wantAccount string
	}{
		{
			id:          "header identity without secret",
			headers:     map[string]string{"X-Account-ID": "acc-7"},
			wantStatus:  http.StatusOK,
			wantAccount: "acc-7 true",
		},
		{
			id:          "anonymous without secret",
			wantStatus:  http.StatusOK,
			wantAccount: "anonymous:192.0.2.1 false",
		},
		{
			id:          "valid token",
			secret:      secret,
			headers:     map[string]string{"Authorization": "Bearer " + valid},
			wantStatus:  http.StatusOK,
			wantAccount: "acc-1 true",
		},
		{
			id:          "header identity ignored with secret",
			secret:      secret,
			headers:     map[string]string{"X-Account-ID": "acc-7"},
			wantStatus:  http.StatusOK,
			wantAccount: "anonymous:192.0.2.1 false",
		},
		{
			id:         "expired token",
			secret:     secret,
			headers:    map[string]string{"Authorization": "Bearer " + expired},
			wantStatus: http.StatusUnauthorized,
		},
		{
			id:         "not a bearer token",
			secret:     secret,
			headers:    map[string]string{"Authorization": "Basic Zm9vOmJhcg=="},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			r := gin.New()
			r.GET("/whoami", AuthenticationMiddleware(tt.secret), accountEcho)

			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantAccount, w.Body.String())
			}
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiters := map[string]config.RateLimiterConfig{
		UsageRateLimitersId: {ID: UsageRateLimitersId, Window: time.Minute, MaxRequests: 2},
	}
	client := rate_limiter.New(limiters, rate_limiter.NewMemoryStorage())

	r := gin.New()
	r.GET("/api/usage", RateLimitMiddleware(client, UsageRateLimitersId, metrics.New()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for range 3 {
		last = httptest.NewRecorder()
		r.ServeHTTP(last, httptest.NewRequest(http.MethodGet, "/api/usage", nil))
		codes = append(codes, last.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.NotEmpty(t, last.Header().Get("Retry-After"))
	assert.Contains(t, last.Body.String(), `"retryAfter":60`)
}

type brokenStorage struct{}

func (brokenStorage) CheckAndUpdateFixedWindow(string, int, time.Duration) (rate_limiter.Decision, error) {
	return rate_limiter.Decision{}, errors.New("dial tcp: connection refused")
}

func TestRateLimitMiddleware_StorageFailure(t *testing.T) {
	limiters := map[string]config.RateLimiterConfig{
		UsageRateLimitersId: {ID: UsageRateLimitersId, Window: time.Minute, MaxRequests: 2},
	}
	client := rate_limiter.New(limiters, brokenStorage{})

	handlerCalled := false
	r := gin.New()
	r.GET("/api/usage", RateLimitMiddleware(client, UsageRateLimitersId, metrics.New()), func(c *gin.Context) {
		handlerCalled = true
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/usage", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
	assert.False(t, handlerCalled)
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(RequestContextMiddleware(nil), Recovery())
	r.GET("/boom", func(c *gin.Context) {
		panic("secret internal state")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
	assert.NotContains(t, w.Body.String(), "secret")
}

func TestRequestContextMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestContextMiddleware(metrics.New()))
	r.GET("/id", func(c *gin.Context) {
		_, ok := c.Get(ReqArrivalTimeContextValueKey)
		assert.True(t, ok)
		c.String(http.StatusOK, RequestID(c))
	})

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/id", nil))
		assert.Len(t, w.Body.String(), 36)
		assert.Equal(t, w.Body.String(), w.Header().Get("X-Request-Id"))
	})

	t.Run("echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/id", nil)
		req.Header.Set("X-Request-Id", "abc-123")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, "abc-123", w.Body.String())
		assert.Equal(t, "abc-123", w.Header().Get("X-Request-Id"))
	})
}

func TestRequestContextMiddleware_AccessLog(t *testing.T) {
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })

	tests := []struct {
		name              string
		headers           map[string]string
		wantAccount       string
		wantAuthenticated bool
	}{
		{name: "account header", headers: map[string]string{"X-Account-ID": "acc-7"}, wantAccount: "acc-7", wantAuthenticated: true},
		{name: "anonymous", wantAccount: "anonymous:192.0.2.1"},
	}

	r := gin.New()
	r.Use(RequestContextMiddleware(nil), AuthenticationMiddleware(""))
	r.GET("/whoami", accountEcho)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			r.ServeHTTP(httptest.NewRecorder(), req)

			var entry struct {
				Msg           string `json:"msg"`
				AccountID     string `json:"account_id"`
				Authenticated bool   `json:"authenticated"`
			}
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, "request served", entry.Msg)
			assert.Equal(t, tt.wantAccount, entry.AccountID)
			assert.Equal(t, tt.wantAuthenticated, entry.Authenticated)
		})
	}
}
