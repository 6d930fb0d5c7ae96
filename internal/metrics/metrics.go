// Package metrics defines the Prometheus collectors exported by policyguard.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Verdict labels for DecisionsTotal.
const (
	VerdictAllow           = "allow"
	VerdictDeny            = "deny"
	VerdictRequireApproval = "require_approval"
)

type Metrics struct {
	DecisionsTotal    *prometheus.CounterVec
	DecisionDuration  prometheus.Histogram
	IncidentsTotal    *prometheus.CounterVec
	SuspensionsTotal  prometheus.Counter
	OperationsTotal   *prometheus.CounterVec
	StorageErrorTotal *prometheus.CounterVec
}

// New registers collectors on reg. A nil reg gets a private registry that is
// never exported, which keeps tests free of global state.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		DecisionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "policyguard_decisions_total",
			Help: "Validation decisions by verdict and deciding step.",
		}, []string{"verdict", "step"}),

		DecisionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "policyguard_decision_duration_seconds",
			Help:    "Time to evaluate, audit and record one validation.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}),

		IncidentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "policyguard_incidents_total",
			Help: "Incidents recorded by source and severity.",
		}, []string{"source", "severity"}),

		SuspensionsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "policyguard_agent_suspensions_total",
			Help: "Agents suspended by critical incidents.",
		}),

		OperationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "policyguard_operations_total",
			Help: "Dispatched operations by name and outcome.",
		}, []string{"operation", "outcome"}),

		StorageErrorTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "policyguard_storage_errors_total",
			Help: "Storage failures by collection.",
		}, []string{"collection"}),
	}
}

func (m *Metrics) ObserveDecision(verdict, step string, took time.Duration) {
	m.DecisionsTotal.WithLabelValues(verdict, step).Inc()
	m.DecisionDuration.Observe(took.Seconds())
}

func (m *Metrics) ObserveIncident(source, severity string, suspended bool) {
	m.IncidentsTotal.WithLabelValues(source, severity).Inc()
	if suspended {
		m.SuspensionsTotal.Inc()
	}
}

func (m *Metrics) ObserveOperation(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.OperationsTotal.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) ObserveStorageError(collection string) {
	m.StorageErrorTotal.WithLabelValues(collection).Inc()
}
