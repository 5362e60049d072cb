// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values for AnonymizeRequests.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	AnonymizeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veil_anonymize_requests_total",
		Help: "Anonymization requests processed, by outcome",
	}, []string{"outcome"})

	OperatorApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veil_operator_applied_total",
		Help: "Anonymization requests by requested operator",
	}, []string{"operator"})

	EntitiesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veil_entities_detected_total",
		Help: "Entities detected, by entity type",
	}, []string{"entity_type"})

	AuditDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veil_audit_dropped_total",
		Help: "Audit log entries that could not be written",
	})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "veil_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// UnmatchedRoute labels requests that matched no route.
const UnmatchedRoute = "unmatched"

// Middleware observes request latency labelled by chi route pattern. Requests
// that match no route share the UnmatchedRoute label, so neither path
// parameters nor unknown paths add series.
func Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			RequestDuration.WithLabelValues(routeLabel(r)).Observe(time.Since(start).Seconds())
		})
	}
}

func routeLabel(r *http.Request) string {
	if ctx := chi.RouteContext(r.Context()); ctx != nil && ctx.RoutePattern() != "" {
		return ctx.RoutePattern()
	}
	return UnmatchedRoute
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
