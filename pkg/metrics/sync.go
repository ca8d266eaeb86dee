package metrics

import "github.com/prometheus/client_golang/prometheus"

// Inventory and synchronization metrics.

var (
	// StockMutations counts stock changes by ledger action and outcome
	// ("applied" | "rejected").
	StockMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kirana",
			Subsystem: "stock",
			Name:      "mutations_total",
			Help:      "Total stock mutations by ledger action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	// SyncRuns counts warehouse reconciliation runs by result.
	SyncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kirana",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total warehouse sync runs.",
		},
		[]string{"result"}, // "success" | "failed"
	)

	// SyncProducts counts per-product outcomes inside reconciliation runs.
	SyncProducts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kirana",
			Subsystem: "sync",
			Name:      "products_total",
			Help:      "Per-product sync outcomes.",
		},
		[]string{"outcome"}, // "created" | "updated" | "unchanged" | "failed" | "deactivated"
	)

	// SyncDuration tracks how long a warehouse reconciliation takes.
	SyncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kirana",
		Subsystem: "sync",
		Name:      "duration_seconds",
		Help:      "Duration of warehouse sync runs in seconds.",
		Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	// OutboundPushes counts outbound stock pushes by result.
	OutboundPushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kirana",
			Subsystem: "sync",
			Name:      "outbound_pushes_total",
			Help:      "Total outbound stock pushes.",
		},
		[]string{"result"},
	)

	// RetryAttempts counts retry requeues and executions of sync records.
	RetryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kirana",
			Subsystem: "sync",
			Name:      "retry_attempts_total",
			Help:      "Total retry attempts on sync records.",
		},
		[]string{"result"},
	)
)

func init() {
	DefaultRegistry.MustRegister(
		StockMutations,
		SyncRuns,
		SyncProducts,
		SyncDuration,
		OutboundPushes,
		RetryAttempts,
	)
}
