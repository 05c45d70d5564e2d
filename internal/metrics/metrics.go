// Package metrics registers the prometheus collectors shared by the
// supervisor and dispatcher processes, grounded on the teacher's
// internal/middleware/metrics.go HTTP-metrics pattern and generalized
// to this domain's slot/queue/dispatch surface (SPEC_FULL.md §2
// Observability).
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics, shared by the verified-event sink.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodecore_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nodecore_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Supervisor metrics.
	SlotsManaged = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nodecore_slots_managed",
			Help: "Number of slots currently under supervision",
		},
	)

	SlotPhase = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nodecore_slot_phase",
			Help: "1 if slot_id is currently reporting phase, 0 otherwise",
		},
		[]string{"slot_id", "phase"},
	)

	SlotRestartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodecore_slot_restarts_total",
			Help: "Total number of worker restarts by slot and reason",
		},
		[]string{"slot_id", "reason"},
	)

	SlotAlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodecore_slot_alerts_total",
			Help: "Total number of alerts sent by slot and reason",
		},
		[]string{"slot_id", "reason"},
	)

	HeartbeatAgeSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nodecore_heartbeat_age_seconds",
			Help: "Age of the most recent heartbeat observed for slot_id",
		},
		[]string{"slot_id"},
	)

	// Dispatcher metrics.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nodecore_queue_depth",
			Help: "Number of undelivered records remaining in a channel queue",
		},
		[]string{"channel"},
	)

	DispatchOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodecore_dispatch_outcomes_total",
			Help: "Total dispatch attempts by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	DispatchLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nodecore_dispatch_latency_seconds",
			Help:    "Time spent delivering a record to a channel transport",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodecore_rate_limited_total",
			Help: "Total records held back by the per-slot rate gate",
		},
		[]string{"channel", "slot_id"},
	)
)

// HTTPMiddleware records request count and latency for the verified-event sink.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := routePattern(r)
		duration := time.Since(start).Seconds()
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.status = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}
