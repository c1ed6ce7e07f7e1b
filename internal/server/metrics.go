package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler is the "handler" label used to partition metrics by the
// logical endpoint name rather than the raw URL path.
const labelHandler = "handler"

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// generateRequestsTotal counts completed /api/generate requests,
	// partitioned by outcome: "ok", "timeout", "error" or "bad_request".
	generateRequestsTotal *prometheus.CounterVec

	// generateDurationSeconds records the wall-clock duration of each
	// /api/generate request.
	generateDurationSeconds *prometheus.HistogramVec

	// generateInFlight is the number of generations currently running.
	generateInFlight prometheus.Gauge

	// reindexTotal counts /api/reindex requests by outcome.
	reindexTotal *prometheus.CounterVec

	// indexChunks is the chunk count of the last successful reindex.
	indexChunks prometheus.Gauge

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		generateRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cvgen",
			Subsystem: "generate",
			Name:      "requests_total",
			Help:      "Total number of /api/generate requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		generateDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cvgen",
			Subsystem: "generate",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/generate requests.",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),

		generateInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "cvgen",
			Subsystem: "generate",
			Name:      "in_flight",
			Help:      "Number of /api/generate requests currently running.",
		}),

		reindexTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cvgen",
			Subsystem: "reindex",
			Name:      "requests_total",
			Help:      "Total number of /api/reindex requests, partitioned by outcome.",
		}, []string{"outcome"}),

		indexChunks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "cvgen",
			Subsystem: "index",
			Name:      "chunks",
			Help:      "Number of chunks in the index after the last successful reindex.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cvgen",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cvgen",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// instrument records request count and latency for next under the given
// handler label.
func (s *Server) instrument(handler string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw, ok := w.(*responseWriter)
		if !ok {
			rw = &responseWriter{ResponseWriter: w, status: http.StatusOK}
		}
		start := time.Now()
		next.ServeHTTP(rw, r)
		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, handler, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, handler).Observe(time.Since(start).Seconds())
	})
}
