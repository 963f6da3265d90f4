// Package metrics exposes Sentinel's verdict and resource telemetry
// as Prometheus collectors: verdict, drift, and firewall counters plus
// a gas-utilization histogram, updated by the facade on every call.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the facade updates per call. A
// single Metrics is meant to be registered once per process and
// shared across all Sentinel instances that process calls — unlike
// the Sentinel facade itself, which is per-request/per-instance.
type Metrics struct {
	VerdictsTotal    *prometheus.CounterVec
	BlockReasons     *prometheus.CounterVec
	ReviewFlags      *prometheus.CounterVec
	DriftLevels      *prometheus.CounterVec
	FirewallOutcomes *prometheus.CounterVec
	GasUtilization   prometheus.Histogram
	ContextEvictions prometheus.Counter
	MonitorHalts     prometheus.Counter
}

// New creates and registers the collectors against reg. Passing
// prometheus.NewRegistry() (rather than the global DefaultRegisterer)
// keeps metrics isolated per Sentinel deployment, matching the
// facade's own no-shared-global-state discipline.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		VerdictsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "verdicts_total",
			Help:      "Total verdicts produced by the facade, labeled by kind (allow, block, review).",
		}, []string{"kind"}),

		BlockReasons: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "block_reasons_total",
			Help:      "Total Block verdicts, labeled by reason kind.",
		}, []string{"reason"}),

		ReviewFlags: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "review_flags_total",
			Help:      "Total Review flags raised, labeled by flag kind.",
		}, []string{"flag"}),

		DriftLevels: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "drift_levels_total",
			Help:      "Total drift reports produced by the registry, labeled by severity level.",
		}, []string{"level"}),

		FirewallOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "firewall_outcomes_total",
			Help:      "Total semantic firewall scan outcomes, labeled by outcome (safe, flagged, blocked) and surface (input, output).",
		}, []string{"outcome", "surface"}),

		GasUtilization: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sentinel",
			Name:      "gas_utilization_ratio",
			Help:      "Gas utilization ratio observed once each monitored step has begun and its gas is charged.",
			Buckets:   []float64{0.1, 0.25, 0.5, 0.65, 0.8, 0.9, 0.95, 1.0},
		}),

		ContextEvictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "context_evictions_total",
			Help:      "Total context frames evicted from the monitor's context store.",
		}),

		MonitorHalts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "monitor_halts_total",
			Help:      "Total times a monitor instance transitioned to halted (cycle detected).",
		}),
	}
}

// ObserveVerdict records a single pipeline verdict's kind, and any
// block reason or review flags it carries.
func (m *Metrics) ObserveVerdict(kind string, reasonKind string, flagKinds []string) {
	if m == nil {
		return
	}
	m.VerdictsTotal.WithLabelValues(kind).Inc()
	if reasonKind != "" {
		m.BlockReasons.WithLabelValues(reasonKind).Inc()
	}
	for _, f := range flagKinds {
		m.ReviewFlags.WithLabelValues(f).Inc()
	}
}

// ObserveDrift records a drift report's severity level.
func (m *Metrics) ObserveDrift(level string) {
	if m == nil {
		return
	}
	m.DriftLevels.WithLabelValues(level).Inc()
}

// ObserveFirewall records a scan outcome for a given surface ("input"
// or "output").
func (m *Metrics) ObserveFirewall(outcome, surface string) {
	if m == nil {
		return
	}
	m.FirewallOutcomes.WithLabelValues(outcome, surface).Inc()
}

// ObserveGasUtilization records the monitor's gas utilization ratio
// once a step has begun and its gas has been charged.
func (m *Metrics) ObserveGasUtilization(ratio float64) {
	if m == nil {
		return
	}
	m.GasUtilization.Observe(ratio)
}

// ObserveContextEviction increments the context-eviction counter by n.
func (m *Metrics) ObserveContextEviction(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ContextEvictions.Add(float64(n))
}

// ObserveMonitorHalt increments the monitor-halt counter.
func (m *Metrics) ObserveMonitorHalt() {
	if m == nil {
		return
	}
	m.MonitorHalts.Inc()
}
