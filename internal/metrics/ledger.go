package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics records ledger mutations and their outcomes.
type LedgerMetrics struct {
	invoices  *prometheus.CounterVec
	returns   *prometheus.CounterVec
	refunds   prometheus.Counter
	closed    prometheus.Counter
	restored  prometheus.Counter
	conflicts *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewLedgerMetrics registers the ledger collectors on reg. A nil registerer
// yields a collector set whose methods are no-ops.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	m := &LedgerMetrics{
		invoices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_invoices_created_total",
			Help: "Invoices committed, by payment method.",
		}, []string{"payment_method"}),
		returns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_returns_processed_total",
			Help: "Returns committed, by partition of the source invoice.",
		}, []string{"partition"}),
		refunds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_refund_amount_total",
			Help: "Sum of refunded money.",
		}),
		closed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_days_closed_total",
			Help: "Business days archived.",
		}),
		restored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_days_restored_total",
			Help: "Archived days moved back to the live ledger.",
		}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_commit_conflicts_total",
			Help: "Commits rejected because another writer committed first.",
		}, []string{"operation"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_operation_failures_total",
			Help: "Ledger operations that returned an error.",
		}, []string{"operation"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Duration of ledger operations in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	reg.MustRegister(m.invoices, m.returns, m.refunds, m.closed, m.restored, m.conflicts, m.failures, m.duration)
	return m
}

func (m *LedgerMetrics) IncInvoice(paymentMethod string) {
	if m == nil || m.invoices == nil {
		return
	}
	m.invoices.WithLabelValues(normalizeLabel(paymentMethod)).Inc()
}

func (m *LedgerMetrics) IncReturn(partition string, refund float64) {
	if m == nil || m.returns == nil {
		return
	}
	m.returns.WithLabelValues(normalizeLabel(partition)).Inc()
	if refund > 0 {
		m.refunds.Add(refund)
	}
}

func (m *LedgerMetrics) IncDayClosed() {
	if m == nil || m.closed == nil {
		return
	}
	m.closed.Inc()
}

func (m *LedgerMetrics) IncDayRestored() {
	if m == nil || m.restored == nil {
		return
	}
	m.restored.Inc()
}

func (m *LedgerMetrics) IncConflict(operation string) {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *LedgerMetrics) IncFailure(operation string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *LedgerMetrics) ObserveDuration(operation string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(operation)).Observe(d.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
