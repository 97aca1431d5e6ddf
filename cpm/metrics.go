package cpm

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by Predict.
type Metrics struct {
	Runs          *prometheus.CounterVec
	Folds         *prometheus.CounterVec
	SelectedEdges prometheus.Histogram
	Duration      prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neurocpm",
			Subsystem: "cpm",
			Name:      "runs_total",
			Help:      "Leave-one-out runs by outcome.",
		}, []string{"status"}),
		Folds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neurocpm",
			Subsystem: "cpm",
			Name:      "folds_total",
			Help:      "Completed folds by outcome (fitted or fallback).",
		}, []string{"outcome"}),
		SelectedEdges: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "neurocpm",
			Subsystem: "cpm",
			Name:      "selected_edges",
			Help:      "Number of edges selected per fold.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "neurocpm",
			Subsystem: "cpm",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a leave-one-out run.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.Runs, m.Folds, m.SelectedEdges, m.Duration} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) observeFold(selected int, fallback bool) {
	if m == nil {
		return
	}
	outcome := "fitted"
	if fallback {
		outcome = "fallback"
	}
	m.Folds.WithLabelValues(outcome).Inc()
	m.SelectedEdges.Observe(float64(selected))
}

func (m *Metrics) observeRun(seconds float64, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Runs.WithLabelValues(status).Inc()
	m.Duration.Observe(seconds)
}
