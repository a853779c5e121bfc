// Package metrics holds the Prometheus instruments of the sync pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics of the sync orchestrator.
type Metrics struct {
	SyncRuns          *prometheus.CounterVec   // by outcome
	PhaseDuration     *prometheus.HistogramVec // by phase
	FetchRetries      *prometheus.CounterVec   // by operation
	PartialFailures   *prometheus.CounterVec   // by scope
	TradesAggregated  prometheus.Counter
	TradesAdmitted    prometheus.Counter
	TradesRejected    prometheus.Counter
	ReconciliationPct prometheus.Gauge
	RemainingSymbols  prometheus.Gauge
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SyncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesync_runs_total",
			Help: "Finished sync runs by outcome.",
		}, []string{"outcome"}),
		PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradesync_phase_duration_seconds",
			Help:    "Duration of each sync phase.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"phase"}),
		FetchRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesync_fetch_retries_total",
			Help: "Rate-limited exchange calls retried, by operation.",
		}, []string{"operation"}),
		PartialFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesync_partial_failures_total",
			Help: "Recovered failures by scope.",
		}, []string{"scope"}),
		TradesAggregated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradesync_trades_aggregated_total",
			Help: "Trades produced by the aggregator.",
		}),
		TradesAdmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradesync_trades_admitted_total",
			Help: "Trades that passed validation.",
		}),
		TradesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradesync_trades_rejected_total",
			Help: "Trades rejected by critical validation errors.",
		}),
		ReconciliationPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradesync_reconciliation_difference_percent",
			Help: "Difference between aggregated and matched ledger P&L of the last run.",
		}),
		RemainingSymbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradesync_checkpoint_remaining_symbols",
			Help: "Symbols still to fetch in the current checkpoint.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.SyncRuns, m.PhaseDuration, m.FetchRetries, m.PartialFailures,
			m.TradesAggregated, m.TradesAdmitted, m.TradesRejected,
			m.ReconciliationPct, m.RemainingSymbols,
		)
	}
	return m
}
