package engine

import (
	"github.com/agentauth/agentauth/internal/challenge"
	"github.com/agentauth/agentauth/internal/pomi"
	"github.com/agentauth/agentauth/internal/timing"
	"github.com/agentauth/agentauth/internal/token"
)

// Fail reasons returned in SolveResult.Reason (snake_case, stable API).
const (
	FailWrongAnswer = "wrong_answer"
	FailExpired     = "expired"
	FailAlreadyUsed = "already_used"
	FailInvalidHMAC = "invalid_hmac"
	FailTooFast     = "too_fast"
	FailTooSlow     = "too_slow"
	FailTimeout     = "timeout"
	FailRateLimited = "rate_limited"
)

// InitOptions override the engine defaults for one challenge.
type InitOptions struct {
	Difficulty *challenge.Difficulty `json:"difficulty,omitempty"`
	Dimensions []challenge.Dimension `json:"dimensions,omitempty"`
}

// InitResult is the public response to a challenge init. ChallengeType and
// Difficulty are kept off the wire; clients learn them from the fetch.
type InitResult struct {
	ID           string `json:"id"`
	SessionToken string `json:"session_token"`
	ExpiresAt    int64  `json:"expires_at"`
	TTLSeconds   int64  `json:"ttl_seconds"`

	ChallengeType string               `json:"-"`
	Difficulty    challenge.Difficulty `json:"-"`
}

// FetchResult is the public view of a stored challenge. The payload context
// is stripped before it leaves the engine.
type FetchResult struct {
	ID         string                `json:"id"`
	Payload    challenge.Payload     `json:"payload"`
	Difficulty challenge.Difficulty  `json:"difficulty"`
	Dimensions []challenge.Dimension `json:"dimensions"`
	CreatedAt  int64                 `json:"created_at"`
	ExpiresAt  int64                 `json:"expires_at"`
}

// SolveMetadata is optional self-reported client identity.
type SolveMetadata struct {
	Model     string `json:"model,omitempty"`
	Framework string `json:"framework,omitempty"`
}

// SolveInput is the submission body for a solve attempt.
type SolveInput struct {
	Answer          string            `json:"answer"`
	HMAC            string            `json:"hmac"`
	CanaryResponses map[string]string `json:"canary_responses,omitempty"`
	Metadata        *SolveMetadata    `json:"metadata,omitempty"`
	ClientRTTMs     float64           `json:"client_rtt_ms,omitempty"`
	StepTimings     []float64         `json:"step_timings,omitempty"`
}

// SolveResult is the full verdict for a solve attempt. ChallengeType and
// Difficulty label metrics and events but stay off the wire.
type SolveResult struct {
	ChallengeType string               `json:"-"`
	Difficulty    challenge.Difficulty `json:"-"`

	Success          bool                      `json:"success"`
	Score            token.CapabilityScore     `json:"score"`
	Token            string                    `json:"token,omitempty"`
	Reason           string                    `json:"reason,omitempty"`
	ModelIdentity    *pomi.ModelIdentification `json:"model_identity,omitempty"`
	TimingAnalysis   *timing.Analysis          `json:"timing_analysis,omitempty"`
	PatternAnalysis  *timing.PatternAnalysis   `json:"pattern_analysis,omitempty"`
	SessionAnomalies []timing.SessionAnomaly   `json:"session_anomalies,omitempty"`
}

// VerifyTokenResult is the public response to a token verification.
type VerifyTokenResult struct {
	Valid        bool                   `json:"valid"`
	Capabilities *token.CapabilityScore `json:"capabilities,omitempty"`
	ModelFamily  string                 `json:"model_family,omitempty"`
	IssuedAt     int64                  `json:"issued_at,omitempty"`
	ExpiresAt    int64                  `json:"expires_at,omitempty"`
}
