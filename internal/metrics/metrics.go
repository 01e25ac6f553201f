// Package metrics registers the Prometheus metrics for the verification
// engine. Exposed by the worker on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the verification engine.
type Metrics struct {
	// Attempt metrics
	AttemptsStarted  *prometheus.CounterVec
	AttemptsFinished *prometheus.CounterVec

	// Scoring metrics
	PointsAwarded *prometheus.CounterVec
	LevelChanges  *prometheus.CounterVec

	// QR metrics
	QRConsumptions *prometheus.CounterVec

	// Saga metrics
	CompensationsRan *prometheus.CounterVec

	// Store metrics
	StoreWriteDuration *prometheus.HistogramVec
}

// New creates and registers all verification metrics.
func New() *Metrics {
	return &Metrics{
		AttemptsStarted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verification_attempts_started_total",
				Help: "Verification attempts started, by method",
			},
			[]string{"method"},
		),

		AttemptsFinished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verification_attempts_finished_total",
				Help: "Verification attempts finished, by method and outcome",
			},
			[]string{"method", "outcome"}, // outcome: completed, timeout, rejected, ...
		),

		PointsAwarded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verification_points_awarded_total",
				Help: "Trust points awarded, by method",
			},
			[]string{"method"},
		),

		LevelChanges: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verification_level_changes_total",
				Help: "Trust level transitions, by direction",
			},
			[]string{"direction"}, // direction: upgrade, downgrade
		),

		QRConsumptions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verification_qr_consumptions_total",
				Help: "QR token consumption attempts, by outcome",
			},
			[]string{"outcome"},
		),

		CompensationsRan: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verification_compensations_total",
				Help: "Saga compensation steps executed, by inverse",
			},
			[]string{"inverse"}, // inverse: invalidate_qr_tokens, revoke_confirmations, retract_completion
		),

		StoreWriteDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "verification_store_write_seconds",
				Help:    "Duration of verification store writes",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}
