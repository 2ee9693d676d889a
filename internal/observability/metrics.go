// Package observability provides metrics and tracing.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "confessions_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "confessions_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// Submissions counts accepted and failed confession submissions.
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "confessions_submissions_total",
		Help: "Confession submissions by result",
	}, []string{"result"})

	// Transitions counts moderation actions by resulting status and outcome.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "confessions_transitions_total",
		Help: "Moderation transitions by target status and result",
	}, []string{"status", "result"})

	// LikeToggles counts like toggles by direction and outcome.
	LikeToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "confessions_like_toggles_total",
		Help: "Like toggles by direction and result",
	}, []string{"direction", "result"})

	// RemoteRetries counts store calls retried after a transient failure.
	RemoteRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "confessions_remote_retries_total",
		Help: "Store calls retried by operation",
	}, []string{"operation"})

	// RefreshDuration observes full refresh latency.
	RefreshDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "confessions_refresh_duration_seconds",
		Help:    "Duration of full state refreshes",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	// PartitionSize is the number of confessions held per status.
	PartitionSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "confessions_partition_size",
		Help: "Confessions held locally per status",
	}, []string{"status"})

	// SyncEvents counts lifecycle events exchanged between instances.
	SyncEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "confessions_sync_events_total",
		Help: "Lifecycle events published or received",
	}, []string{"direction", "type"})
)

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Result maps err onto a result label.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
