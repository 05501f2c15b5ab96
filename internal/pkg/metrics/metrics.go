// Package metrics holds the prometheus collectors for ledger activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	LedgerEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_entries_total",
			Help: "Ledger entries written, by kind",
		},
		[]string{"kind"},
	)
	LedgerCredits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_credits_moved_total",
			Help: "Absolute credits moved by ledger entries, by kind",
		},
		[]string{"kind"},
	)
	LedgerRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_rejections_total",
			Help: "Balance mutations rejected, by reason",
		},
		[]string{"reason"},
	)
	LedgerReplays = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_replays_total",
			Help: "Idempotent replays that returned a prior entry, by kind",
		},
		[]string{"kind"},
	)
	WagersSettled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wagers_settled_total",
			Help: "Wagers that reached the settled state, by game and result",
		},
		[]string{"game", "result"},
	)
	WithdrawalDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "withdrawal_decisions_total",
			Help: "Withdrawal decisions applied, by action",
		},
		[]string{"action"},
	)
	ReconcileExceptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliation_exceptions_total",
			Help: "Reconciliation exceptions, by transition (recorded, resolved, failed)",
		},
		[]string{"status"},
	)
	ReconcileOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reconciliation_exceptions_open",
			Help: "Open reconciliation exceptions seen by the last sweep",
		},
	)
	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "balance_stream_connections",
			Help: "Open balance stream WebSocket connections on this instance",
		},
	)
	WSEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balance_stream_events_total",
			Help: "Balance events pushed to WebSocket clients, by outcome (sent, dropped)",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(LedgerEntries)
	prometheus.MustRegister(LedgerCredits)
	prometheus.MustRegister(LedgerRejections)
	prometheus.MustRegister(LedgerReplays)
	prometheus.MustRegister(WagersSettled)
	prometheus.MustRegister(WithdrawalDecisions)
	prometheus.MustRegister(ReconcileExceptions)
	prometheus.MustRegister(ReconcileOpen)
	prometheus.MustRegister(WSConnections)
	prometheus.MustRegister(WSEvents)
}
