package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "catalog"

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	RepositoryOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "repository_operations_total", Help: "Repository operations by schema, operation and outcome."},
		[]string{"schema", "operation", "outcome"},
	)
	RepositoryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "repository_operation_duration_seconds", Help: "Repository operation latency.", Buckets: prometheus.DefBuckets},
		[]string{"schema", "operation"},
	)
	ErrorResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "error_responses_total", Help: "Error responses by error kind and status code."},
		[]string{"kind", "status"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(RepositoryOperations)
	reg.MustRegister(RepositoryDuration)
	reg.MustRegister(ErrorResponses)
}
