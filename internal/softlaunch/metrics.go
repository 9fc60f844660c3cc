package softlaunch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldline_softlaunch_retries_total",
			Help: "Soft-launch remote calls retried after a failed attempt, by operation.",
		},
		[]string{"op"},
	)
	exhaustedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldline_softlaunch_exhausted_total",
			Help: "Soft-launch operations that gave up after exhausting retries, by operation.",
		},
		[]string{"op"},
	)
)
