// Package monitoring exposes the Prometheus metrics for the challenge
// lifecycle.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the verification engine
type Metrics struct {
	// Challenge lifecycle metrics
	ChallengesIssued *prometheus.CounterVec
	SolveAttempts    *prometheus.CounterVec
	SolveDuration    *prometheus.HistogramVec

	// Timing analysis metrics
	TimingZones *prometheus.CounterVec

	// PoMI metrics
	ModelFamilies  *prometheus.CounterVec
	PomiConfidence *prometheus.HistogramVec

	// Token metrics
	TokensIssued   *prometheus.CounterVec
	TokensVerified *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Challenge Issued Counter
		ChallengesIssued: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentauth_challenges_issued_total",
				Help: "Total number of challenges issued",
			},
			[]string{"type", "difficulty"},
		),

		// Solve Attempt Counter
		SolveAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentauth_solve_attempts_total",
				Help: "Total number of solve attempts by outcome",
			},
			[]string{"type", "difficulty", "result"}, // result: success or the failure reason
		),

		// Solve Duration Histogram
		SolveDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentauth_solve_duration_seconds",
				Help:    "Wall time between challenge issuance and solve submission",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"type", "difficulty"},
		),

		// Timing Zone Counter
		TimingZones: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentauth_timing_zones_total",
				Help: "Solve attempts by timing zone classification",
			},
			[]string{"zone"}, // zone: too_fast, ai_zone, suspicious, human, timeout
		),

		// Model Family Counter
		ModelFamilies: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentauth_model_families_total",
				Help: "PoMI model family identifications",
			},
			[]string{"family"},
		),

		// PoMI Confidence Histogram
		PomiConfidence: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentauth_pomi_confidence",
				Help:    "Posterior confidence of model family identifications",
				Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
			},
			[]string{"family"},
		),

		// Token Issued Counter
		TokensIssued: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentauth_tokens_issued_total",
				Help: "Total number of capability tokens issued",
			},
			[]string{"model_family"},
		),

		// Token Verified Counter
		TokensVerified: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentauth_tokens_verified_total",
				Help: "Total number of token verification calls",
			},
			[]string{"valid"}, // valid: true, false
		),
	}
}

// RecordChallengeIssued records a new challenge
func (m *Metrics) RecordChallengeIssued(challengeType, difficulty string) {
	m.ChallengesIssued.WithLabelValues(challengeType, difficulty).Inc()
}

// RecordSolve records a solve attempt outcome and its duration
func (m *Metrics) RecordSolve(challengeType, difficulty, result string, durationSeconds float64) {
	m.SolveAttempts.WithLabelValues(challengeType, difficulty, result).Inc()
	m.SolveDuration.WithLabelValues(challengeType, difficulty).Observe(durationSeconds)
}

// RecordTimingZone records a timing zone classification
func (m *Metrics) RecordTimingZone(zone string) {
	m.TimingZones.WithLabelValues(zone).Inc()
}

// RecordModelIdentification records a PoMI verdict
func (m *Metrics) RecordModelIdentification(family string, confidence float64) {
	m.ModelFamilies.WithLabelValues(family).Inc()
	m.PomiConfidence.WithLabelValues(family).Observe(confidence)
}

// RecordTokenIssued records a newly signed capability token
func (m *Metrics) RecordTokenIssued(modelFamily string) {
	m.TokensIssued.WithLabelValues(modelFamily).Inc()
}

// RecordTokenVerified records a verification call
func (m *Metrics) RecordTokenVerified(valid bool) {
	label := "false"
	if valid {
		label = "true"
	}
	m.TokensVerified.WithLabelValues(label).Inc()
}
