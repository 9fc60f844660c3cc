package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldline_notification_send_total",
			Help: "Notification deliveries by channel and status.",
		},
		[]string{"channel", "status"},
	)
	sendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldline_notification_send_duration_seconds",
			Help:    "Duration of notification deliveries by channel.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"channel"},
	)
	rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldline_notification_rate_limited_total",
		Help: "Lifecycle events dropped by the per-project rate limiter.",
	})
)
