package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "llmgate"

// Recorder owns its registry so that several instances can coexist in tests.
type Recorder struct {
	registry *prometheus.Registry

	gatewayOutcomes     *prometheus.CounterVec
	upstreamDuration    *prometheus.HistogramVec
	rateLimited         *prometheus.CounterVec
	ledgerWriteFailures prometheus.Counter
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		gatewayOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Chat requests handled by the gateway, by outcome.",
		}, []string{"outcome"}),
		upstreamDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Latency of upstream provider calls.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"provider", "outcome"}),
		rateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests denied by a rate limiter group.",
		}, []string{"limiter"}),
		ledgerWriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_write_failures_total",
			Help:      "Usage increments lost after a successful upstream call.",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (r *Recorder) ObserveGatewayOutcome(outcome string) {
	r.gatewayOutcomes.WithLabelValues(outcome).Inc()
}

func (r *Recorder) ObserveUpstream(provider, outcome string, elapsed time.Duration) {
	r.upstreamDuration.WithLabelValues(provider, outcome).Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveRateLimited(limiter string) {
	r.rateLimited.WithLabelValues(limiter).Inc()
}

func (r *Recorder) ObserveLedgerWriteFailure() {
	r.ledgerWriteFailures.Inc()
}

func (r *Recorder) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
}
