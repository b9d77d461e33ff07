package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the API process.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	WebhookDeliveries *prometheus.CounterVec
	CallLogUpserts    *prometheus.CounterVec
	ProviderRequests  *prometheus.CounterVec
	StatsCache        *prometheus.CounterVec
	LoginAttempts     *prometheus.CounterVec
}

// New registers every collector on reg. Tests pass a fresh prometheus.NewRegistry().
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		WebhookDeliveries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_deliveries_total",
				Help: "Webhook deliveries by processing outcome",
			},
			[]string{"outcome"}, // processed, partial, write_failed, rejected, body_too_large
		),
		CallLogUpserts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "call_log_upserts_total",
				Help: "Call log writes from ingestion",
			},
			[]string{"result"}, // created, updated
		),
		ProviderRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "provider_requests_total",
				Help: "Outbound voice provider API requests",
			},
			[]string{"operation", "result"},
		),
		StatsCache: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_stats_cache_total",
				Help: "Dashboard stats cache lookups",
			},
			[]string{"result"}, // hit, miss, error
		),
		LoginAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "login_attempts_total",
				Help: "Dashboard login attempts",
			},
			[]string{"status"},
		),
	}
}

// Middleware records request count and latency keyed by the route pattern.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordWebhook(outcome string) {
	if m == nil {
		return
	}
	m.WebhookDeliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordUpsert(created bool) {
	if m == nil {
		return
	}
	result := "updated"
	if created {
		result = "created"
	}
	m.CallLogUpserts.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordProviderRequest(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ProviderRequests.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) RecordStatsCache(result string) {
	if m == nil {
		return
	}
	m.StatsCache.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordLoginAttempt(success bool) {
	if m == nil {
		return
	}
	status := "failed"
	if success {
		status = "success"
	}
	m.LoginAttempts.WithLabelValues(status).Inc()
}
