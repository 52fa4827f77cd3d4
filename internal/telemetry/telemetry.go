// Package telemetry provides Prometheus instrumentation for the trading
// control plane. Construction style (promauto vars, Middleware/Handler
// pattern, a statusWriter wrapping http.ResponseWriter to capture status
// codes) is adapted from internal/metrics/metrics.go; metric
// *names* and label sets are drawn from
// original_source/backend/common/metrics.py, the authoritative domain
// metric catalog this rewrite targets instead of the prior H3/LMSR
// names.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AppInfo carries build version/environment as a fixed-value info gauge.
	AppInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "app_info",
		Help: "Application build metadata",
	}, []string{"version", "environment"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path_template", "status_code"})

	HTTPRequestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
	}, []string{"method", "path_template"})

	HTTPRequestsInProgress = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "http_requests_in_progress",
		Help: "HTTP requests currently in progress",
	}, []string{"method"})

	JobRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "celery_task_total",
		Help: "Total scheduled job executions",
	}, []string{"task_name", "status"})

	JobDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "celery_task_duration_seconds",
		Help:    "Scheduled job duration in seconds",
		Buckets: []float64{0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0, 120.0, 300.0},
	}, []string{"task_name"})

	TradingCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_cycles_total",
		Help: "Total trading cycle outcomes",
	}, []string{"outcome"})

	TradesExecutedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trades_executed_total",
		Help: "Total trades executed or queued",
	}, []string{"mode", "city"})

	TradesRiskBlockedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trades_risk_blocked_total",
		Help: "Trades blocked by the risk manager",
	}, []string{"reason"})

	WSConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections_active",
		Help: "Active WebSocket connections",
	})

	WSMessagesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_messages_sent_total",
		Help: "WebSocket messages sent to clients",
	}, []string{"event_type"})

	WSEventsReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_events_received_total",
		Help: "Events received from the Redis event bus",
	}, []string{"event_type"})

	TradingCycleStepDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trading_cycle_step_duration_seconds",
		Help:    "Duration of individual trading cycle steps",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
	}, []string{"step"})

	TradingCycleTotalDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trading_cycle_total_duration_seconds",
		Help:    "Total trading cycle duration end to end",
		Buckets: []float64{0.5, 1.0, 2.5, 5.0, 10.0, 15.0, 30.0, 60.0},
	})

	WeatherFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_fetches_total",
		Help: "Weather data fetch attempts",
	}, []string{"source", "city", "outcome"})
)

// SetAppInfo records the running build's version and environment. Call
// once at startup.
func SetAppInfo(version, environment string) {
	AppInfo.WithLabelValues(version, environment).Set(1)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records per-request HTTP metrics. pathTemplate should be the
// route pattern (e.g. "/api/v1/trades/{id}"), not the raw URL, to avoid
// unbounded label cardinality from path parameters.
func Middleware(pathTemplate func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := pathTemplate(r)
			HTTPRequestsInProgress.WithLabelValues(r.Method).Inc()
			defer HTTPRequestsInProgress.WithLabelValues(r.Method).Dec()

			start := time.Now()
			wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			duration := time.Since(start).Seconds()

			HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
			HTTPRequestDurationSeconds.WithLabelValues(r.Method, path).Observe(duration)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
