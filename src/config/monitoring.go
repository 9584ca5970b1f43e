package config

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	RunsTotal       *prometheus.CounterVec
	GateFailures    *prometheus.CounterVec
	CommitConflicts prometheus.Counter
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freighter",
			Name:      "runs_total",
			Help:      "Delivery runs by terminal outcome.",
		}, []string{"outcome"}),
		GateFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freighter",
			Name:      "gate_failures_total",
			Help:      "Failing quality gate results by gate name.",
		}, []string{"gate"}),
		CommitConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "freighter",
			Name:      "commit_conflicts_total",
			Help:      "Manifest pushes rejected due to concurrent updates.",
		}),
	}

	registry.MustRegister(metrics.RunsTotal, metrics.GateFailures, metrics.CommitConflicts)

	return metrics
}
