package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OutcomeMetrics counts terminal submission outcomes.
type OutcomeMetrics struct {
	outcomes *prometheus.CounterVec
}

// NewOutcomeMetrics creates the outcome counter and registers it with reg.
func NewOutcomeMetrics(reg prometheus.Registerer) (*OutcomeMetrics, error) {
	m := &OutcomeMetrics{
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paired_write_outcomes_total",
				Help: "Total number of record submissions by terminal outcome.",
			},
			[]string{"kind", "stage"},
		),
	}
	if err := reg.Register(m.outcomes); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *OutcomeMetrics) observe(o Outcome) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(string(o.Kind), string(o.Stage)).Inc()
}
