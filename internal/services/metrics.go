package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// Turn pipeline metrics
	TurnsProcessed prometheus.Counter
	TurnLatency    prometheus.Histogram
	DegradedTurns  *prometheus.CounterVec

	// Extraction metrics
	ExtractionRequests prometheus.Counter
	ExtractionErrors   *prometheus.CounterVec
	ExtractionLatency  prometheus.Histogram

	// Curation metrics
	ObservationsStored   prometheus.Counter
	AchievementsUnlocked prometheus.Counter

	// Engagement metrics (refreshed by the snapshot job)
	StreaksAtRisk prometheus.Gauge
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics
func InitMetrics() *Metrics {
	metrics := &Metrics{
		TurnsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reverie_turns_processed_total",
			Help: "Total number of completed turns processed",
		}),

		TurnLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "reverie_turn_duration_seconds",
			Help:    "Turn pipeline latency in seconds (extraction included)",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),

		DegradedTurns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "reverie_turns_degraded_total",
			Help: "Turns where a pipeline stage failed after retry",
		}, []string{"stage"}),

		ExtractionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reverie_extraction_requests_total",
			Help: "Total number of observation extraction calls",
		}),

		ExtractionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "reverie_extraction_errors_total",
			Help: "Extraction failures by reason",
		}, []string{"reason"}), // "request", "status", "parse", "timeout"

		ExtractionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "reverie_extraction_duration_seconds",
			Help:    "External extraction call latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),

		ObservationsStored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reverie_observations_stored_total",
			Help: "Total number of validated observations appended",
		}),

		AchievementsUnlocked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reverie_achievements_unlocked_total",
			Help: "Total number of first-time achievement unlocks",
		}),

		StreaksAtRisk: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "reverie_streaks_at_risk",
			Help: "Users with an active streak and no interaction yet today",
		}),
	}

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	return globalMetrics
}

// RecordTurn records a processed turn and its latency
func (m *Metrics) RecordTurn(seconds float64) {
	if m == nil {
		return
	}
	m.TurnsProcessed.Inc()
	m.TurnLatency.Observe(seconds)
}

// RecordDegraded records a pipeline stage that failed after retry
func (m *Metrics) RecordDegraded(stage string) {
	if m == nil {
		return
	}
	m.DegradedTurns.WithLabelValues(stage).Inc()
}

// RecordExtraction records an extraction attempt and its latency
func (m *Metrics) RecordExtraction(seconds float64) {
	if m == nil {
		return
	}
	m.ExtractionRequests.Inc()
	m.ExtractionLatency.Observe(seconds)
}

// RecordExtractionError records an extraction failure by reason
func (m *Metrics) RecordExtractionError(reason string) {
	if m == nil {
		return
	}
	m.ExtractionErrors.WithLabelValues(reason).Inc()
}

// RecordObservations records appended observations
func (m *Metrics) RecordObservations(n int) {
	if m == nil {
		return
	}
	m.ObservationsStored.Add(float64(n))
}

// RecordUnlocks records first-time achievement unlocks
func (m *Metrics) RecordUnlocks(n int) {
	if m == nil {
		return
	}
	m.AchievementsUnlocked.Add(float64(n))
}
