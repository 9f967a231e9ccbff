package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the event orchestrator.
type Metrics struct {
	EventsTotal         *prometheus.CounterVec
	MergeDecisionsTotal *prometheus.CounterVec
	BranchErrorsTotal   prometheus.Counter
	SwitchDuration      prometheus.Histogram
}

// NewMetrics creates the orchestrator metrics and registers them with reg.
// A nil registerer falls back to the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "branchd_indexing_events_total",
				Help: "Total number of indexing events processed",
			},
			[]string{"mode", "status"},
		),
		MergeDecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "branchd_merge_decisions_total",
				Help: "Total number of merge decisions by outcome",
			},
			[]string{"decision"},
		),
		BranchErrorsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "branchd_branch_errors_total",
				Help: "Total number of branches forced into the ERROR state",
			},
		),
		SwitchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "branchd_shadow_switch_duration_seconds",
				Help:    "Duration of shadow index atomic switches",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}
