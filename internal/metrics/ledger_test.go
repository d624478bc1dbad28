package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestLedgerMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg)

	m.IncInvoice("cash")
	m.IncInvoice("cash")
	m.IncReturn("archived", 12.5)
	m.IncConflict("create_invoice")
	m.IncFailure("")
	m.IncDayClosed()
	m.ObserveDuration("close_day", 150*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	checks := []struct {
		name, label, value string
		want               float64
	}{
		{"ledger_invoices_created_total", "payment_method", "cash", 2},
		{"ledger_returns_processed_total", "partition", "archived", 1},
		{"ledger_commit_conflicts_total", "operation", "create_invoice", 1},
		{"ledger_operation_failures_total", "operation", "unknown", 1},
	}
	for _, c := range checks {
		got, err := fetchCounterValue(mfs, c.name, c.label, c.value)
		if err != nil {
			t.Fatalf("fetch %s: %v", c.name, err)
		}
		if got != c.want {
			t.Fatalf("%s expected %f, got %f", c.name, c.want, got)
		}
	}

	if got := fetchPlainCounter(mfs, "ledger_refund_amount_total"); got != 12.5 {
		t.Fatalf("expected refund sum 12.5, got %f", got)
	}
	if got := fetchPlainCounter(mfs, "ledger_days_closed_total"); got != 1 {
		t.Fatalf("expected one closed day, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "ledger_operation_duration_seconds", "operation", "close_day"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestNilLedgerMetricsIsSafe(t *testing.T) {
	var m *LedgerMetrics
	m.IncInvoice("cash")
	m.IncReturn("live", 1)
	m.ObserveDuration("x", time.Second)

	unregistered := NewLedgerMetrics(nil)
	unregistered.IncDayRestored()
	unregistered.IncConflict("x")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchPlainCounter(mfs []*dto.MetricFamily, name string) float64 {
	mf := findMetricFamily(mfs, name)
	if mf == nil || len(mf.GetMetric()) == 0 {
		return -1
	}
	return mf.GetMetric()[0].GetCounter().GetValue()
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
