package server

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Engine metrics
	sessionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "velo_sessions_open",
			Help: "Number of live sessions in the pool",
		},
	)

	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velo_commands_total",
			Help: "Total commands executed through the API",
		},
		[]string{"outcome"},
	)

	commandDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "velo_command_duration_seconds",
			Help:    "Command execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	attachedTerminals = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "velo_attached_terminals",
			Help: "Number of live WebSocket terminal attachments",
		},
	)

	transferBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velo_transfer_bytes_total",
			Help: "Total bytes moved through the transfer endpoints",
		},
		[]string{"direction"},
	)

	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velo_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "velo_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "velo_http_in_flight_requests",
			Help: "HTTP requests currently being served",
		},
	)
)

// metricsHandler returns the Prometheus scrape handler
func metricsHandler() http.Handler {
	return promhttp.Handler()
}

// recordCommand records one API command execution
func recordCommand(outcome string, elapsed time.Duration) {
	commandsTotal.WithLabelValues(outcome).Inc()
	commandDuration.Observe(elapsed.Seconds())
}

// recordTransfer records bytes moved by an upload or download
func recordTransfer(direction string, n int64) {
	transferBytes.WithLabelValues(direction).Add(float64(n))
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack keeps the WebSocket upgrade working behind the wrapper
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// metricsMiddleware records request count and duration for every
// route. The path label uses the matched route pattern, not the raw
// URL, so session ids do not explode the cardinality.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpInFlight.Inc()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		httpInFlight.Dec()

		path := r.Pattern
		if path == "" {
			path = r.URL.Path
		}
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
