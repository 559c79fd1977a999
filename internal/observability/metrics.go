package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reasons a child reference is skipped during traversal
const (
	ReasonMissing   = "missing"
	ReasonCycle     = "cycle"
	ReasonLookupErr = "lookup_error"
)

var (
	MalformedChildRefs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tree_malformed_child_refs_total",
			Help: "Child references skipped during traversal, by reason",
		},
		[]string{"reason"},
	)

	NodeLookups = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tree_node_lookups_total",
			Help: "Node store lookups issued by the traversal engine",
		},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "node_query_duration_seconds",
			Help:    "Duration of node query operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "outcome"},
	)

	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Background jobs processed, by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPResponseTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Outcome labels an operation result for QueryDuration and JobsProcessed
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
