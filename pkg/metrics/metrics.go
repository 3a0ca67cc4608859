// Package metrics holds the Prometheus series this node exposes at
// /metrics. Series are grouped the way the teacher codebase grouped
// them: traffic, latency, errors, saturation, then the domain-specific
// block for replication itself.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Traffic
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests handled by this node.",
	}, []string{"method", "endpoint", "status_code", "node_id"})

	BytesTransferredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bytes_transferred_total",
		Help: "Total bytes moved by object operations.",
	}, []string{"operation", "node_id"})
)

// Latency
var (
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method", "endpoint", "node_id"})

	StoreOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "store_operation_duration_seconds",
		Help:    "Local object store operation duration in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"operation", "node_id"})

	ReplicationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "replication_request_duration_seconds",
		Help:    "Time from Replicate() call to the single reply being sent.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method", "outcome"})
)

// Errors
var (
	HTTPErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_errors_total",
		Help: "Total HTTP error responses.",
	}, []string{"method", "endpoint", "status_code", "error_type", "node_id"})

	StoreErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_errors_total",
		Help: "Total local object store operation errors.",
	}, []string{"operation", "node_id"})
)

// Saturation
var (
	ActiveConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "active_connections",
		Help: "Number of in-flight HTTP requests on this node.",
	}, []string{"node_id"})

	NodeAvailability = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "node_availability",
		Help: "Reachability of a peer node as seen by this node (0=down, 1=up).",
	}, []string{"peer"})

	CPUUsagePercent = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cpu_usage_percent",
		Help: "Host CPU utilization percent, sampled periodically.",
	}, []string{"node_id"})

	MemoryUsedBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "memory_used_bytes",
		Help: "Host memory in use, sampled periodically.",
	}, []string{"node_id"})

	DiskUsedBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "disk_used_bytes",
		Help: "Data directory filesystem usage, sampled periodically.",
	}, []string{"node_id"})
)

// Replication is this node's own instrumentation of the coordinator.
var (
	ReplicationAcksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "replication_acks_total",
		Help: "Total per-replica Ack outcomes observed by coordinators.",
	})

	ReplicationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replication_failures_total",
		Help: "Total per-replica Fail outcomes observed by coordinators.",
	}, []string{"cause"})

	ReplicationQuorumFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "replication_quorum_failures_total",
		Help: "Total requests that ended in a quorum-failure reply.",
	})

	ReplicationTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "replication_timeouts_total",
		Help: "Total requests that ended in a timeout reply.",
	})

	RepairEnqueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repair_enqueued_total",
		Help: "Total repair tuples enqueued for later reconciliation.",
	}, []string{"kind"})

	RepairDrainedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repair_drained_total",
		Help: "Total repair tuples consumed by the background drain loop.",
	}, []string{"kind"})
)
