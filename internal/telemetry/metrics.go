// Package telemetry holds the scheduler's Prometheus metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// --- Dispatcher metrics ---

	// MessagesDispatched counts messages handled by the action dispatcher,
	// by action and outcome.
	MessagesDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smtlab",
			Subsystem: "dispatcher",
			Name:      "messages_total",
			Help:      "Total scheduler-queue messages dispatched, by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	// HandlerDuration tracks handler execution time.
	HandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "smtlab",
			Subsystem: "dispatcher",
			Name:      "handler_duration_seconds",
			Help:      "Duration of scheduling handler invocations",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"action"},
	)

	// --- Scheduling metrics ---

	// BatchesEmitted counts schedule_instances messages produced by schedule.
	BatchesEmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "smtlab",
			Subsystem: "scheduler",
			Name:      "batches_total",
			Help:      "Total schedule_instances batches emitted by schedule",
		},
	)

	// InstancesScheduled counts instances partitioned into batches.
	InstancesScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "smtlab",
			Subsystem: "scheduler",
			Name:      "instances_total",
			Help:      "Total instances partitioned into schedule_instances batches",
		},
	)

	// RunsDispatched counts run messages enqueued to a worker queue.
	RunsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smtlab",
			Subsystem: "scheduler",
			Name:      "runs_dispatched_total",
			Help:      "Total run messages enqueued to a worker queue",
		},
		[]string{"queue"},
	)

	// --- Validation metrics ---

	// ValidationsScheduled counts validate messages enqueued by the
	// validation decision engine.
	ValidationsScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "smtlab",
			Subsystem: "validation",
			Name:      "scheduled_total",
			Help:      "Total validate messages enqueued by schedule_validation",
		},
	)

	// ValidationShortCircuits counts schedule_validation calls that exit
	// early, by reason.
	ValidationShortCircuits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smtlab",
			Subsystem: "validation",
			Name:      "short_circuits_total",
			Help:      "Total schedule_validation calls that exited without enqueueing, by reason",
		},
		[]string{"reason"},
	)

	// --- API client metrics ---

	// APIRequestsTotal counts outbound control-API requests.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smtlab",
			Subsystem: "apiclient",
			Name:      "requests_total",
			Help:      "Total requests issued to the control API, by method, resource and outcome",
		},
		[]string{"method", "resource", "outcome"},
	)

	// APIRetries counts retry attempts made by the HTTP client.
	APIRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smtlab",
			Subsystem: "apiclient",
			Name:      "retries_total",
			Help:      "Total retry attempts made against the control API",
		},
		[]string{"resource"},
	)

	// CircuitBreakerState reports breaker state (0=closed,1=half-open,2=open) per endpoint group.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "smtlab",
			Subsystem: "apiclient",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per endpoint group (0=closed,1=half-open,2=open)",
		},
		[]string{"endpoint_group"},
	)

	// --- Queue / pool metrics ---

	// QueueBackoffExponent reports the current backoff exponent per worker.
	QueueBackoffExponent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "smtlab",
			Subsystem: "pool",
			Name:      "backoff_exponent",
			Help:      "Current empty-poll backoff exponent, per worker",
		},
		[]string{"worker"},
	)

	// PollsTotal counts scheduler-queue poll cycles, by worker and result.
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smtlab",
			Subsystem: "pool",
			Name:      "polls_total",
			Help:      "Total scheduler-queue poll cycles, by worker and whether a message was returned",
		},
		[]string{"worker", "result"},
	)
)
