package sdk

import "encoding/json"

// Challenge difficulty levels accepted by InitChallenge.
const (
	DifficultyEasy        = "easy"
	DifficultyMedium      = "medium"
	DifficultyHard        = "hard"
	DifficultyAdversarial = "adversarial"
)

// Failure reasons returned in SolveResponse.Reason.
const (
	ReasonWrongAnswer = "wrong_answer"
	ReasonExpired     = "expired"
	ReasonInvalidHMAC = "invalid_hmac"
	ReasonTooFast     = "too_fast"
	ReasonTimeout     = "timeout"
	ReasonRateLimited = "rate_limited"
)

// InitOptions selects the challenge to issue. Empty fields use the server
// defaults.
type InitOptions struct {
	Difficulty string   `json:"difficulty,omitempty"`
	Dimensions []string `json:"dimensions,omitempty"`
}

// InitResponse is the handle for a freshly issued challenge.
type InitResponse struct {
	ID           string `json:"id"`
	SessionToken string `json:"session_token"`
	ExpiresAt    int64  `json:"expires_at"`
	TTLSeconds   int64  `json:"ttl_seconds"`
}

// Payload is the task the agent has to complete. Canary side tasks, when
// present, arrive embedded in the instructions.
type Payload struct {
	Type         string `json:"type"`
	Instructions string `json:"instructions"`
	Data         string `json:"data"`
	Steps        int    `json:"steps"`
}

// Challenge is the public view returned by FetchChallenge.
type Challenge struct {
	ID         string   `json:"id"`
	Payload    Payload  `json:"payload"`
	Difficulty string   `json:"difficulty"`
	Dimensions []string `json:"dimensions"`
	CreatedAt  int64    `json:"created_at"`
	ExpiresAt  int64    `json:"expires_at"`
}

// SolveExtras carries the optional parts of a solve submission.
type SolveExtras struct {
	CanaryResponses map[string]string `json:"canary_responses,omitempty"`
	ClientRTTMs     float64           `json:"client_rtt_ms,omitempty"`
	StepTimings     []float64         `json:"step_timings,omitempty"`
}

type solveRequest struct {
	Answer          string            `json:"answer"`
	HMAC            string            `json:"hmac"`
	CanaryResponses map[string]string `json:"canary_responses,omitempty"`
	Metadata        *solveMetadata    `json:"metadata,omitempty"`
	ClientRTTMs     float64           `json:"client_rtt_ms,omitempty"`
	StepTimings     []float64         `json:"step_timings,omitempty"`
}

type solveMetadata struct {
	Model     string `json:"model,omitempty"`
	Framework string `json:"framework,omitempty"`
}

// CapabilityScore is the five-dimension verdict.
type CapabilityScore struct {
	Reasoning   float64 `json:"reasoning"`
	Execution   float64 `json:"execution"`
	Autonomy    float64 `json:"autonomy"`
	Speed       float64 `json:"speed"`
	Consistency float64 `json:"consistency"`
}

// SolveResponse is the verdict for a solve attempt. ModelIdentity and the
// analysis blocks are passed through opaquely; most integrations only need
// Success, Token, and Reason.
type SolveResponse struct {
	Success        bool            `json:"success"`
	Score          CapabilityScore `json:"score"`
	Token          string          `json:"token,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	ModelIdentity  json.RawMessage `json:"model_identity,omitempty"`
	TimingAnalysis json.RawMessage `json:"timing_analysis,omitempty"`
}

// VerifyResponse is the answer to a token verification call.
type VerifyResponse struct {
	Valid        bool             `json:"valid"`
	Capabilities *CapabilityScore `json:"capabilities,omitempty"`
	ModelFamily  string           `json:"model_family,omitempty"`
	IssuedAt     int64            `json:"issued_at,omitempty"`
	ExpiresAt    int64            `json:"expires_at,omitempty"`
}
