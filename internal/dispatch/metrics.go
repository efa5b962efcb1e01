package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetmail_dispatch_results_total",
		Help: "Terminal dispatch outcomes by status and reason.",
	}, []string{"status", "reason"})

	dispatchAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meetmail_dispatch_transport_attempts_total",
		Help: "Total transport submit attempts, including retries.",
	})

	dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meetmail_dispatch_duration_seconds",
		Help:    "End-to-end dispatch duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})
)
