package supervisor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldline_supervisor_sweeps_total",
			Help: "Supervisor sweeps by outcome.",
		},
		[]string{"outcome"},
	)
	sweepErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldline_supervisor_sweep_errors_total",
			Help: "Per-project sweep failures by step.",
		},
		[]string{"step"},
	)
	pausesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldline_supervisor_pauses_total",
		Help: "Projects paused for review by the supervisor.",
	})
	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fieldline_supervisor_sweep_duration_seconds",
		Help:    "Duration of completed supervisor sweeps.",
		Buckets: prometheus.DefBuckets,
	})
)
