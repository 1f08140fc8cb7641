// Package metrics holds the prometheus collectors for login attempts and
// face comparisons.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Comparison outcomes.
const (
	OutcomeMatch   = "match"
	OutcomeNoMatch = "no_match"
	OutcomeError   = "error"
)

// ComparisonBuckets covers fast embedding lookups up to cold model loads.
var ComparisonBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}

var (
	// LoginAttemptsTotal counts /login requests by result status.
	LoginAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facelogin_login_attempts_total",
			Help: "Login attempts",
		},
		[]string{"status"},
	)

	// ComparisonsTotal counts verifier calls by outcome.
	ComparisonsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facelogin_comparisons_total",
			Help: "Face comparisons",
		},
		[]string{"outcome"},
	)

	// ComparisonDuration records verifier latency in seconds.
	ComparisonDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "facelogin_comparison_duration_seconds",
			Help:    "Face comparison duration",
			Buckets: ComparisonBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		LoginAttemptsTotal,
		ComparisonsTotal,
		ComparisonDuration,
	)
}

// ObserveComparison records one verifier call.
func ObserveComparison(outcome string, elapsed time.Duration) {
	ComparisonsTotal.WithLabelValues(outcome).Inc()
	ComparisonDuration.Observe(elapsed.Seconds())
}

// ObserveLogin records one login attempt.
func ObserveLogin(status string) {
	LoginAttemptsTotal.WithLabelValues(status).Inc()
}
