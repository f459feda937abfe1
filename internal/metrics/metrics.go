// Package metrics provides Prometheus metrics for namedq.
// It tracks named queue traffic, blocking waits, and relay throughput
// so operators can see which queues back up and which routes stall.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "namedq"
)

// Queue metrics track operations on named queues in this process.
var (
	// MessagesSentTotal counts messages successfully enqueued.
	MessagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Total number of messages sent to a named queue",
		},
		[]string{"queue"},
	)

	// MessagesReceivedTotal counts messages dequeued by receive or try-receive.
	MessagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of messages received from a named queue",
		},
		[]string{"queue"},
	)

	// OperationErrorsTotal counts failed queue operations by reason.
	OperationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Total number of failed named queue operations",
		},
		[]string{"queue", "operation", "reason"}, // reason: too_large, invalid_priority, removed, closed, canceled, other
	)

	// BlockedSeconds measures how long a send or receive waited on the queue.
	// Only operations that had to wait are observed.
	BlockedSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "blocked_seconds",
			Help:      "Time a send or receive spent blocked on a named queue in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"queue", "operation"},
	)

	// QueueDepth tracks the last observed number of messages in a queue.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Last observed number of messages held by a named queue",
		},
		[]string{"queue"},
	)

	// QueuesDestroyedTotal counts successful destroy calls issued by this process.
	QueuesDestroyedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queues_destroyed_total",
			Help:      "Total number of named queues removed by this process",
		},
		[]string{"queue"},
	)
)

// Relay metrics track messages bridged between named queues and the bus.
var (
	// RelayForwardedTotal counts messages forwarded by a route.
	RelayForwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_forwarded_total",
			Help:      "Total number of messages forwarded by a relay route",
		},
		[]string{"route", "direction"},
	)

	// RelayFailuresTotal counts relay failures by pipeline stage.
	RelayFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_failures_total",
			Help:      "Total number of relay failures",
		},
		[]string{"route", "stage"}, // stage: publish, archive, state, rejected
	)

	// RelayForwardLatency measures time to forward one message, including archive and state writes.
	RelayForwardLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_forward_latency_seconds",
			Help:      "Time to forward a single message through a relay route in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"route"},
	)

	// RelayReopensTotal counts routes re-attaching to a queue after it was removed.
	RelayReopensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_reopens_total",
			Help:      "Total number of times a relay route re-opened a removed named queue",
		},
		[]string{"route"},
	)
)

// Storage metrics track relay state and archive operations.
var (
	// StorageOperationLatency measures latency of storage operations.
	StorageOperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_latency_seconds",
			Help:      "Latency of storage operations in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"store", "operation"}, // store: postgres, redis; operation: read, write
	)

	// StorageOperationsTotal counts storage operations.
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operations_total",
			Help:      "Total number of storage operations",
		},
		[]string{"store", "operation", "status"}, // status: success, failure
	)
)
