package services

import "github.com/prometheus/client_golang/prometheus"

// Outcome labels for generationsTotal.
const (
	outcomeAccepted = "accepted"
	outcomeFallback = "fallback"
)

var (
	// generationsTotal counts finished generations by terminal state.
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fortune_generations_total",
			Help: "Finished generations by outcome (accepted, fallback).",
		},
		[]string{"outcome"},
	)

	// attemptsHist records how many candidates a generation synthesized.
	attemptsHist = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fortune_attempts",
			Help:    "Candidates synthesized per generation.",
			Buckets: []float64{1, 2, 3, 5, 8, 13},
		},
	)

	// purgedTotal counts records removed by retention cleanup.
	purgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fortune_purged_records_total",
			Help: "Message records removed by retention cleanup.",
		},
	)
)

func init() {
	prometheus.MustRegister(generationsTotal, attemptsHist, purgedTotal)
}
