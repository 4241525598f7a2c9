package goPortal

import (
	"time"

	"github.com/MrEthical07/goPortal/internal/metrics"
)

// MetricID identifies one client counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginValidation
	MetricSecondFactorRequired
	MetricSecondFactorSuccess
	MetricSecondFactorFailure
	MetricChallengeExpired
	MetricTwoFactorSetupRequested
	MetricTwoFactorSetupFailed
	MetricTwoFactorEnabled
	MetricTwoFactorDisabled
	MetricTwoFactorVerificationFailure
	MetricSessionCommitted
	MetricSessionCleared
	MetricSessionExpired
	MetricSessionRestored
	MetricStaleResponseDiscarded
	MetricAdminProbeFailure
	MetricProfileUpdated
	MetricBackendCallFailure
	// MetricBackendLatency is the only metric with a latency histogram.
	MetricBackendLatency
	metricIDCount
)

// MetricsSnapshot is a point-in-time copy of the client counters.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// Metrics wraps the counter table.
type Metrics struct {
	reg *metrics.Registry
}

// NewMetrics returns a counter table configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{reg: metrics.New(metrics.Config{
		Enabled:                 cfg.Enabled,
		EnableLatencyHistograms: cfg.EnableLatencyHistograms,
	}, int(metricIDCount), int(MetricBackendLatency))}
}

// Enabled reports whether counters record.
func (m *Metrics) Enabled() bool {
	return m != nil && m.reg.Enabled()
}

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil {
		return
	}
	m.reg.Inc(int(id))
}

// Observe records a backend call duration.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil {
		return
	}
	m.reg.Observe(int(id), d)
}

// Value returns the current value of id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil {
		return 0
	}
	return m.reg.Value(int(id))
}

// Snapshot copies every counter.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}, Histograms: map[MetricID][]uint64{}}
	}
	raw := m.reg.Snapshot()
	out := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, len(raw.Counters)),
		Histograms: make(map[MetricID][]uint64, len(raw.Histograms)),
	}
	for id, v := range raw.Counters {
		out.Counters[MetricID(id)] = v
	}
	for id, b := range raw.Histograms {
		out.Histograms[MetricID(id)] = b
	}
	return out
}

// metricInc adapts the table to the int IDs used by the flows.
func (m *Metrics) metricInc(id int) {
	if id < 0 {
		return
	}
	m.Inc(MetricID(id))
}
