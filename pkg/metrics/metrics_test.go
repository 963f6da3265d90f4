package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveVerdictIncrementsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveVerdict("Allow", "", nil)
	m.ObserveVerdict("Block", "hash_mismatch", nil)
	m.ObserveVerdict("Review", "", []string{"split_vote", "high_gas_usage"})

	if got := testutil.ToFloat64(m.VerdictsTotal.WithLabelValues("Allow")); got != 1 {
		t.Errorf("expected 1 Allow verdict, got %v", got)
	}
	if got := testutil.ToFloat64(m.VerdictsTotal.WithLabelValues("Block")); got != 1 {
		t.Errorf("expected 1 Block verdict, got %v", got)
	}
	if got := testutil.ToFloat64(m.BlockReasons.WithLabelValues("hash_mismatch")); got != 1 {
		t.Errorf("expected 1 hash_mismatch reason, got %v", got)
	}
	if got := testutil.ToFloat64(m.ReviewFlags.WithLabelValues("split_vote")); got != 1 {
		t.Errorf("expected 1 split_vote flag, got %v", got)
	}
	if got := testutil.ToFloat64(m.ReviewFlags.WithLabelValues("high_gas_usage")); got != 1 {
		t.Errorf("expected 1 high_gas_usage flag, got %v", got)
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	// None of these should panic on a nil receiver.
	m.ObserveVerdict("Allow", "", nil)
	m.ObserveDrift("minor")
	m.ObserveFirewall("safe", "input")
	m.ObserveGasUtilization(0.5)
	m.ObserveContextEviction(3)
	m.ObserveMonitorHalt()
}

func TestObserveDriftAndFirewall(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveDrift("minor")
	m.ObserveDrift("minor")
	m.ObserveFirewall("blocked", "output")

	if got := testutil.ToFloat64(m.DriftLevels.WithLabelValues("minor")); got != 2 {
		t.Errorf("expected 2 minor drift observations, got %v", got)
	}
	if got := testutil.ToFloat64(m.FirewallOutcomes.WithLabelValues("blocked", "output")); got != 1 {
		t.Errorf("expected 1 blocked/output observation, got %v", got)
	}
}

func TestObserveContextEvictionAndHalt(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveContextEviction(5)
	m.ObserveContextEviction(0)
	m.ObserveMonitorHalt()

	if got := testutil.ToFloat64(m.ContextEvictions); got != 5 {
		t.Errorf("expected 5 evictions, got %v", got)
	}
	if got := testutil.ToFloat64(m.MonitorHalts); got != 1 {
		t.Errorf("expected 1 halt, got %v", got)
	}
}
