package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "attendance"

var (
	// ScanAttempts counts match attempts by outcome (matched, unknown, no_face, error).
	ScanAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scan_attempts_total",
		Help:      "Face match attempts made by scan sessions.",
	}, []string{"outcome"})

	// CheckIns counts ledger writes by status (recorded, already_present).
	CheckIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkins_total",
		Help:      "Check-in attempts by ledger result.",
	}, []string{"status"})

	// ExtractDuration observes embedding extraction latency.
	ExtractDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "extract_duration_seconds",
		Help:      "Latency of descriptor extraction calls.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"result"})

	// EnrolledUsers tracks the size of the enrollment store.
	EnrolledUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "enrolled_users",
		Help:      "Number of enrolled users.",
	})

	// SessionTransitions counts scan session state changes.
	SessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_transitions_total",
		Help:      "Scan session state transitions by target state.",
	}, []string{"state"})
)
