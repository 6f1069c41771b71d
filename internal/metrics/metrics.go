package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapgate_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zapgate_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapgate_webhook_events_total",
			Help: "Webhook sub-events processed by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	dispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapgate_dispatches_total",
			Help: "Outbound dispatch attempts by source and result",
		},
		[]string{"source", "result"},
	)

	quotaBlocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapgate_quota_blocks_total",
			Help: "Operations blocked by an exhausted daily quota",
		},
		[]string{"metric"},
	)

	schedulerAdvances = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapgate_scheduler_advances_total",
			Help: "Campaign contact state advances by outcome",
		},
		[]string{"outcome"},
	)

	schedulerTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "zapgate_scheduler_tick_duration_seconds",
			Help:    "Campaign scheduler tick latency distribution",
			Buckets: []float64{.01, .05, .1, .5, 1, 2, 5},
		},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapgate_rate_limit_rejections_total",
			Help: "Management API requests rejected by rate limiter",
		},
		[]string{"tenant_id"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordWebhookEvent records one processed webhook sub-event.
func RecordWebhookEvent(kind, outcome string) {
	webhookEvents.WithLabelValues(kind, outcome).Inc()
}

// RecordDispatch records one outbound dispatch attempt.
func RecordDispatch(source, result string) {
	dispatches.WithLabelValues(source, result).Inc()
}

// RecordQuotaBlock records an operation stopped by a daily quota.
func RecordQuotaBlock(metric string) {
	quotaBlocks.WithLabelValues(metric).Inc()
}

// RecordSchedulerAdvance records one campaign-contact state advance.
func RecordSchedulerAdvance(outcome string) {
	schedulerAdvances.WithLabelValues(outcome).Inc()
}

// ObserveSchedulerTick records how long a full scheduler tick took.
func ObserveSchedulerTick(duration time.Duration) {
	schedulerTickDuration.Observe(duration.Seconds())
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection(tenantID string) {
	rateLimitRejections.WithLabelValues(tenantID).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
