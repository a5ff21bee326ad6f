// Package metrics exposes the engine's Prometheus collectors, mirroring
// the teacher's erigon-lib/kv "db_commit_seconds{phase=...}" style summaries
// (ported to client_golang; see SPEC_FULL.md §C).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups every collector this core registers. Each Store owns its
// own Metrics instance; callers that run multiple stores in one process
// should register each with a distinct Registerer to avoid name collisions.
type Metrics struct {
	TablesCreated prometheus.Counter
	TablesDropped prometheus.Counter

	TxBegun      prometheus.Counter
	TxCommitted  prometheus.Counter
	TxAborted    prometheus.Counter
	TxConflicts  prometheus.Counter
	ActiveTxns   prometheus.Gauge
	ActiveSessions prometheus.Gauge

	CommitLatency prometheus.Histogram
}

// New constructs a Metrics with all collectors instantiated but not
// registered to any Registerer; call Register to attach them.
func New() *Metrics {
	return &Metrics{
		TablesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "graphkv_tables_created_total",
			Help: "Tables created via CreateTable, counting only first-time creations.",
		}),
		TablesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "graphkv_tables_dropped_total",
			Help: "Tables removed via DropTable.",
		}),
		TxBegun: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "graphkv_tx_begun_total",
			Help: "Transactions allocated through BeginTx/BeginTxOpts; internal auto-commit transactions are not counted.",
		}),
		TxCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "graphkv_tx_committed_total",
			Help: "Transactions that committed successfully.",
		}),
		TxAborted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "graphkv_tx_aborted_total",
			Help: "Transactions aborted, by caller request or by a failed commit.",
		}),
		TxConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "graphkv_tx_conflicts_total",
			Help: "Commit attempts that failed snapshot-isolation validation.",
		}),
		ActiveTxns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "graphkv_active_tx",
			Help: "Currently active transactions.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "graphkv_active_sessions",
			Help: "Currently open sessions across the pool.",
		}),
		CommitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "graphkv_commit_seconds",
			Help:    "Wall-clock time spent validating and publishing a commit.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Register attaches every collector in m to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.TablesCreated, m.TablesDropped,
		m.TxBegun, m.TxCommitted, m.TxAborted, m.TxConflicts,
		m.ActiveTxns, m.ActiveSessions, m.CommitLatency,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
