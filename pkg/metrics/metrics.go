// Package metrics exposes Prometheus counters for the oracle node. Metrics
// live in a dedicated registry served by Handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "oracle"

var (
	// Registry holds every metric of this package plus the Go runtime collectors.
	Registry = prometheus.NewRegistry()

	Registrations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Total number of successful oracle registrations by kind.",
		},
		[]string{"kind"},
	)
	Unregistrations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unregistrations_total",
			Help:      "Total number of oracle unregistrations by kind.",
		},
		[]string{"kind"},
	)
	TasksRequested = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_requested_total",
			Help:      "Total number of tasks requested.",
		},
	)
	TasksCompleted = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_completed_total",
			Help:      "Total number of tasks finalized.",
		},
	)
	TasksPending = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_pending",
			Help:      "Number of tasks requested but not yet completed.",
		},
	)
	Responses = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Total number of accepted generator responses.",
		},
	)
	Validations = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Total number of accepted validator score vectors.",
		},
	)
	IneligibleGenerations = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ineligible_generations_total",
			Help:      "Total number of generations whose fee was forfeited at finalization.",
		},
	)
	Rejected = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_calls_total",
			Help:      "Total number of rejected calls by operation and reason.",
		},
		[]string{"op", "reason"},
	)
	Withdrawals = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawals_total",
			Help:      "Total number of escrow withdrawals by status.",
		},
		[]string{"status"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
