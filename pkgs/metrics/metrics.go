package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SubmissionsTotal counts publish attempts by terminal outcome
	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "superpage_submissions_total",
			Help: "Total number of prediction submissions by outcome",
		},
		[]string{"outcome"},
	)

	// ValidationFailures counts submissions rejected before broadcast
	ValidationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "superpage_validation_failures_total",
			Help: "Total number of submissions rejected by validation",
		},
		[]string{"stage"},
	)

	// InFlightSubmissions tracks transactions awaiting confirmation
	InFlightSubmissions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "superpage_inflight_submissions",
			Help: "Number of transactions currently awaiting confirmation",
		},
	)

	// ConfirmationDuration observes time from broadcast to terminal status
	ConfirmationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "superpage_confirmation_duration_seconds",
			Help:    "Time from broadcast to terminal transaction status",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(SubmissionsTotal)
	prometheus.MustRegister(ValidationFailures)
	prometheus.MustRegister(InFlightSubmissions)
	prometheus.MustRegister(ConfirmationDuration)
}
