package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics tracks the outcome of boost ledger operations. Each mutating
// operation resolves to exactly one of: applied, replayed (idempotent noop),
// rejected (insufficient balance), or failed (infrastructure error).
type LedgerMetrics struct {
	applied  *prometheus.CounterVec
	replayed *prometheus.CounterVec
	rejected *prometheus.CounterVec
	failed   *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger operation metrics on the provided
// registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	applied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_applied_total",
		Help:      "Ledger operations that applied a new change.",
	}, []string{"op"})
	replayed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_replayed_total",
		Help:      "Ledger operations absorbed as idempotent replays.",
	}, []string{"op"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_rejected_total",
		Help:      "Ledger operations rejected for insufficient balance.",
	}, []string{"op"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_failed_total",
		Help:      "Ledger operations that failed on infrastructure errors.",
	}, []string{"op"})
	reg.MustRegister(applied, replayed, rejected, failed)
	return &LedgerMetrics{
		applied:  applied,
		replayed: replayed,
		rejected: rejected,
		failed:   failed,
	}
}

// IncApplied increments the applied counter for the named operation.
func (m *LedgerMetrics) IncApplied(op string) {
	if m == nil || m.applied == nil {
		return
	}
	m.applied.WithLabelValues(normalizeLabel(op)).Inc()
}

// IncReplayed increments the replay counter for the named operation.
func (m *LedgerMetrics) IncReplayed(op string) {
	if m == nil || m.replayed == nil {
		return
	}
	m.replayed.WithLabelValues(normalizeLabel(op)).Inc()
}

// IncRejected increments the insufficient-balance counter for the named
// operation.
func (m *LedgerMetrics) IncRejected(op string) {
	if m == nil || m.rejected == nil {
		return
	}
	m.rejected.WithLabelValues(normalizeLabel(op)).Inc()
}

// IncFailed increments the failure counter for the named operation.
func (m *LedgerMetrics) IncFailed(op string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(op)).Inc()
}
