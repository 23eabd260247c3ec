// Package timing classifies solve latency into behavioral zones and detects
// timing anomalies across a session.
package timing

import "github.com/agentauth/agentauth/internal/challenge"

// Zone is the behavioral band an elapsed time falls into.
type Zone string

const (
	ZoneTooFast    Zone = "too_fast"
	ZoneAI         Zone = "ai_zone"
	ZoneSuspicious Zone = "suspicious"
	ZoneHuman      Zone = "human"
	ZoneTimeout    Zone = "timeout"
)

// Baseline holds the zone boundaries and the expected latency distribution
// for one challenge type at one difficulty. All values are milliseconds.
type Baseline struct {
	ChallengeType string               `json:"challenge_type" yaml:"challenge_type"`
	Difficulty    challenge.Difficulty `json:"difficulty" yaml:"difficulty"`
	MeanMs        float64              `json:"mean_ms" yaml:"mean_ms"`
	StdMs         float64              `json:"std_ms" yaml:"std_ms"`
	TooFastMs     float64              `json:"too_fast_ms" yaml:"too_fast_ms"`
	AILowerMs     float64              `json:"ai_lower_ms" yaml:"ai_lower_ms"`
	AIUpperMs     float64              `json:"ai_upper_ms" yaml:"ai_upper_ms"`
	HumanMs       float64              `json:"human_ms" yaml:"human_ms"`
	TimeoutMs     float64              `json:"timeout_ms" yaml:"timeout_ms"`
}

// Analysis is the verdict for a single solve latency.
type Analysis struct {
	ElapsedMs  float64 `json:"elapsed_ms"`
	Zone       string  `json:"zone"`
	Confidence float64 `json:"confidence"`
	ZScore     float64 `json:"z_score"`
	Penalty    float64 `json:"penalty"`
	Details    string  `json:"details"`
}

// PatternAnalysis summarizes per-step timing behavior within one solve.
type PatternAnalysis struct {
	VarianceCoefficient float64 `json:"variance_coefficient"`
	Trend               string  `json:"trend"`
	RoundNumberRatio    float64 `json:"round_number_ratio"`
	Verdict             string  `json:"verdict"`
}

// SessionAnomaly flags suspicious cross-challenge timing behavior.
type SessionAnomaly struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// Config overrides the analyzer defaults; zero values keep the built-ins.
type Config struct {
	Baselines        []Baseline `yaml:"baselines"`
	DefaultTooFastMs float64    `yaml:"default_too_fast_ms"`
	DefaultAILowerMs float64    `yaml:"default_ai_lower_ms"`
	DefaultAIUpperMs float64    `yaml:"default_ai_upper_ms"`
	DefaultHumanMs   float64    `yaml:"default_human_ms"`
	DefaultTimeoutMs float64    `yaml:"default_timeout_ms"`
}
