package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		},
		[]string{"class"},
	)
	BruteForceBlockedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "security_bruteforce_blocked_total",
			Help: "Requests rejected by the brute-force guard.",
		},
	)
	CSRFRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_csrf_rejected_total",
			Help: "Mutating requests rejected by anti-forgery validation.",
		},
		[]string{"reason"},
	)
	AuditRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_records_total",
			Help: "Activity records written, by action and outcome.",
		},
		[]string{"action", "outcome"},
	)
	AuditWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Activity record writes that failed and were dropped.",
		},
	)
)

func Register(registry *prometheus.Registry) {
	registry.MustRegister(
		RequestCount,
		RequestDuration,
		RateLimitedTotal,
		BruteForceBlockedTotal,
		CSRFRejectedTotal,
		AuditRecordsTotal,
		AuditWriteFailures,
	)
}

func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
