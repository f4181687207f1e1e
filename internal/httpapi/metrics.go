package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the HTTP surface's Prometheus collectors, mirroring the
// per-package NewMetrics(reg) shape internal/store and internal/controller
// already use.
type Metrics struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
}

// NewMetrics registers the HTTP surface's collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "rise_http_request_duration_seconds",
			Help: "Duration of HTTP requests by route and status.",
		}, []string{"route", "method", "status"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rise_http_requests_total",
			Help: "Count of HTTP requests by route, method, and status.",
		}, []string{"route", "method", "status"}),
	}
	reg.MustRegister(m.RequestDuration, m.RequestsTotal)
	return m
}

func (m *Metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		status := strconv.Itoa(rw.status)
		route := routePattern(r)
		m.RequestDuration.WithLabelValues(route, r.Method, status).Observe(time.Since(start).Seconds())
		m.RequestsTotal.WithLabelValues(route, r.Method, status).Inc()
	})
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
		return rc.RoutePattern()
	}
	return r.URL.Path
}
