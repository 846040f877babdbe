package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Gateway metrics
var (
	GatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total number of outbound calls executed, by quota class and outcome.",
		},
		[]string{"class", "outcome"},
	)

	GatewayRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_retries_total",
			Help: "Total number of requeued calls, by retry reason.",
		},
		[]string{"reason"},
	)

	GatewayQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_queue_depth",
			Help: "Number of calls waiting in or executing from the gateway queue.",
		},
	)

	GatewayWindowUsed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_window_used",
			Help: "Calls counted inside the current sliding window, by quota class.",
		},
		[]string{"class"},
	)
)

// Sync metrics
var (
	SyncRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Total number of sync runs, by mode and status.",
		},
		[]string{"mode", "status"},
	)

	SyncItemsMergedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_items_merged_total",
			Help: "Total number of history items merged into the master record, by kind.",
		},
		[]string{"kind"},
	)

	InvalidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invalidations_total",
			Help: "Total number of cache invalidations, by path (targeted or coarse).",
		},
		[]string{"path"},
	)
)

// Broadcast metrics
var (
	BroadcastSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcast_subscribers",
			Help: "Number of currently connected live-channel subscribers.",
		},
	)

	BroadcastFramesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_frames_total",
			Help: "Total number of frames fanned out over the live channel.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		GatewayRequestsTotal,
		GatewayRetriesTotal,
		GatewayQueueDepth,
		GatewayWindowUsed,
		SyncRunsTotal,
		SyncItemsMergedTotal,
		InvalidationsTotal,
		BroadcastSubscribers,
		BroadcastFramesTotal,
	)
}
