// Package metrics collects Prometheus instrumentation for the settlement
// engine. All collectors live on one struct so wiring stays explicit; Nop
// returns a set registered nowhere for tests and metric-less deployments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "seaport"

type Metrics struct {
	// Settlements counts finished settlement requests by entry path and
	// outcome ("success", "rollback", "error")
	Settlements *prometheus.CounterVec

	// Transfers counts dispatched executions by item class
	Transfers *prometheus.CounterVec

	// ChannelBatches counts accumulator flushes to conduits
	ChannelBatches prometheus.Counter

	// Rollbacks counts settlements that restored fill status
	Rollbacks prometheus.Counter

	// PendingSettlements gauges parked probabilistic settlements
	PendingSettlements prometheus.Gauge

	// SettlementSeconds observes wall time per settlement call by path
	SettlementSeconds *prometheus.HistogramVec
}

// New creates the collector set and registers it with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Settlements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Finished settlement requests by path and outcome.",
		}, []string{"path", "outcome"}),
		Transfers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Dispatched executions by item class.",
		}, []string{"class"}),
		ChannelBatches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_batches_total",
			Help:      "Accumulator batches flushed to transfer channels.",
		}),
		Rollbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollbacks_total",
			Help:      "Settlements that restored pre-call fill status.",
		}),
		PendingSettlements: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_settlements",
			Help:      "Probabilistic settlements parked awaiting randomness.",
		}),
		SettlementSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_seconds",
			Help:      "Wall time per settlement call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),
	}
}

// Nop returns collectors bound to a private registry, for callers that do
// not scrape
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}
