package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "prism",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests handled by the gateway, by method and status class.",
	}, []string{"method", "status_class"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "prism",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
)

// MetricsHandler exposes the Prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// WithMetrics records request counts and latencies.
// Labels are deliberately low-cardinality: method and status class only,
// never raw paths.
func WithMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		lrw := &loggingResponseWriter{
			ResponseWriter: w,
			status:         http.StatusOK,
		}

		next.ServeHTTP(lrw, r)

		method := strings.ToUpper(r.Method)
		httpRequestsTotal.WithLabelValues(method, statusClass(lrw.status)).Inc()
		httpRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	})
}
