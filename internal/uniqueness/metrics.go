package uniqueness

import "github.com/prometheus/client_golang/prometheus"

var (
	// cacheHits counts candidates rejected by the local cache without a
	// store round trip.
	cacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fortune_cache_hits_total",
			Help: "Candidates rejected by the local fast-path cache.",
		},
	)

	// storeErrors counts store failures that were absorbed by a safe
	// default, by operation (exists, count, insert).
	storeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fortune_store_errors_total",
			Help: "Uniqueness store failures absorbed by a safe default.",
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(cacheHits, storeErrors)
}
