// Package metrics exposes Prometheus counters for draws and the reveal sequence.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	draws            *prometheus.CounterVec
	recordsDiscarded *prometheus.CounterVec
	triggersIgnored  prometheus.Counter
	phaseTransitions *prometheus.CounterVec
	persistFailures  prometheus.Counter
	activeSessions   prometheus.Gauge
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		draws: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chest_draws_total",
			Help: "Weighted draws performed, by prize id.",
		}, []string{"prize"}),
		recordsDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chest_records_discarded_total",
			Help: "Stored draw records treated as absent, by reason.",
		}, []string{"reason"}),
		triggersIgnored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chest_triggers_ignored_total",
			Help: "Open requests ignored because the chest was busy or settled.",
		}),
		phaseTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chest_phase_transitions_total",
			Help: "Reveal sequence phase changes, by phase entered.",
		}, []string{"phase"}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chest_persist_failures_total",
			Help: "Draw records that could not be written.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chest_active_sessions",
			Help: "Player sessions currently held in memory.",
		}),
	}
	reg.MustRegister(m.draws, m.recordsDiscarded, m.triggersIgnored, m.phaseTransitions, m.persistFailures, m.activeSessions)
	return m
}

func (m *Metrics) Draw(prizeID string) {
	if m == nil {
		return
	}
	m.draws.WithLabelValues(prizeID).Inc()
}

func (m *Metrics) RecordDiscarded(reason string) {
	if m == nil {
		return
	}
	m.recordsDiscarded.WithLabelValues(reason).Inc()
}

func (m *Metrics) TriggerIgnored() {
	if m == nil {
		return
	}
	m.triggersIgnored.Inc()
}

func (m *Metrics) PhaseEntered(phase string) {
	if m == nil {
		return
	}
	m.phaseTransitions.WithLabelValues(phase).Inc()
}

func (m *Metrics) PersistFailed() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}
