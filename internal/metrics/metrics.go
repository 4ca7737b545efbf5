// Package metrics exposes rule scheduling counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	rulesAdded       prometheus.Counter
	rulesRemoved     prometheus.Counter
	transitions      *prometheus.CounterVec
	reconcileCancels prometheus.Counter
	migrations       *prometheus.CounterVec
	documentWrites   *prometheus.CounterVec
	managedRules     prometheus.Gauge
}

// New registers collectors under namespace. A nil reg gets a fresh registry.
func New(namespace string, reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		gatherer: reg,
		rulesAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_added_total",
			Help:      "Managed rules added",
		}),
		rulesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_removed_total",
			Help:      "Managed rules removed from the document",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Rule state transitions applied to the document",
		}, []string{"state"}),
		reconcileCancels: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_cancelled_total",
			Help:      "Jobs cancelled because their rule left the document",
		}),
		migrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_total",
			Help:      "Version upgrades by outcome",
		}, []string{"result"}),
		documentWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "document_writes_total",
			Help:      "Document updates by outcome",
		}, []string{"result"}),
		managedRules: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "managed_rules",
			Help:      "Rules with at least one scheduled job",
		}),
	}

	reg.MustRegister(
		m.rulesAdded,
		m.rulesRemoved,
		m.transitions,
		m.reconcileCancels,
		m.migrations,
		m.documentWrites,
		m.managedRules,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) RuleAdded() {
	if m != nil {
		m.rulesAdded.Inc()
	}
}

func (m *Metrics) RulesRemoved(n int) {
	if m != nil && n > 0 {
		m.rulesRemoved.Add(float64(n))
	}
}

func (m *Metrics) Transition(state string) {
	if m != nil {
		m.transitions.WithLabelValues(state).Inc()
	}
}

func (m *Metrics) ReconcileCancelled(n int) {
	if m != nil && n > 0 {
		m.reconcileCancels.Add(float64(n))
	}
}

func (m *Metrics) Migration(result string) {
	if m != nil {
		m.migrations.WithLabelValues(result).Inc()
	}
}

// DocumentWrite counts an update attempt; err nil means success.
func (m *Metrics) DocumentWrite(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.documentWrites.WithLabelValues(result).Inc()
}

func (m *Metrics) SetManagedRules(n int) {
	if m != nil {
		m.managedRules.Set(float64(n))
	}
}
