package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP surface metrics.
var (
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gradehall_api_requests_total",
		Help: "Total HTTP requests served, by method, endpoint and status.",
	}, []string{"method", "endpoint", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gradehall_api_request_duration_seconds",
		Help:    "HTTP request latency distribution.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gradehall_api_active_connections",
		Help: "In-flight HTTP requests.",
	})
)

// Calendar materializer metrics.
var (
	SchedulerTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gradehall_scheduler_ticks_total",
		Help: "Materializer ticks, by outcome.",
	}, []string{"outcome"})

	SchedulerTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gradehall_scheduler_tick_duration_seconds",
		Help:    "Duration of one materializer tick.",
		Buckets: prometheus.DefBuckets,
	})

	SchedulerDaysMaterialized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gradehall_scheduler_days_materialized_total",
		Help: "Calendar days created from the weekly template.",
	})
)

// Plan application metrics.
var (
	PlansAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gradehall_plans_applied_total",
		Help: "Exam and holiday plans applied to the calendar.",
	}, []string{"kind"})

	GridCompositionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gradehall_grid_compositions_total",
		Help: "Weekly grid compositions, by cache outcome.",
	}, []string{"source"})
)

// Leader election metrics.
var (
	LeaderElectionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gradehall_leader_election_status",
		Help: "1 when this instance holds the scheduler lease.",
	}, []string{"instance"})

	LeaderElectionChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gradehall_leader_election_changes_total",
		Help: "Leadership acquisitions and losses.",
	}, []string{"instance", "change"})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
