// Package metrics holds the process-local Prometheus registry and the
// instruments exported by the batching pipeline.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var registry = prometheus.NewRegistry()

func GetRegistry() *prometheus.Registry {
	return registry
}

var (
	BatchesFinalized = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "packrat",
		Subsystem: "aggregator",
		Name:      "batches_finalized_total",
		Help:      "Finalized batches delivered to the archive handler.",
	}, []string{"kind"}) // kind: media_group, conversation, singleton

	BatchFinalizeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "packrat",
		Subsystem: "aggregator",
		Name:      "finalize_errors_total",
		Help:      "Handler errors swallowed during batch finalization.",
	})

	OpenBatches = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "packrat",
		Subsystem: "aggregator",
		Name:      "open_batches",
		Help:      "Open conversation batches.",
	})

	OpenMediaGroups = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "packrat",
		Subsystem: "aggregator",
		Name:      "open_media_groups",
		Help:      "Open media-group batches.",
	})

	LiveTimers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "packrat",
		Subsystem: "aggregator",
		Name:      "live_timers",
		Help:      "Pending batch idle timers.",
	})

	CachedLocks = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "packrat",
		Subsystem: "aggregator",
		Name:      "cached_locks",
		Help:      "Entries in the bounded per-conversation lock pool.",
	})

	PendingForwardWaits = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "packrat",
		Subsystem: "detector",
		Name:      "pending_waits",
		Help:      "Pending forward-wait entries.",
	})

	ForwardsDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "packrat",
		Subsystem: "detector",
		Name:      "forwards_detected_total",
		Help:      "Plain texts reclassified as pre-forward comments.",
	})
)

func init() {
	registry.MustRegister(
		BatchesFinalized,
		BatchFinalizeErrors,
		OpenBatches,
		OpenMediaGroups,
		LiveTimers,
		CachedLocks,
		PendingForwardWaits,
		ForwardsDetected,
	)
}
