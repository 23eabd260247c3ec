// Package challenge defines the challenge data model, the driver contract,
// and the four built-in challenge drivers.
package challenge

import "encoding/json"

// Difficulty governs data size, step count, bug count, and canary pool.
type Difficulty string

const (
	DifficultyEasy        Difficulty = "easy"
	DifficultyMedium      Difficulty = "medium"
	DifficultyHard        Difficulty = "hard"
	DifficultyAdversarial Difficulty = "adversarial"
)

// Dimension tags the capability a driver exercises. Driver selection picks
// the drivers whose tag sets best cover the requested dimensions.
type Dimension string

const (
	DimensionReasoning Dimension = "reasoning"
	DimensionExecution Dimension = "execution"
	DimensionMemory    Dimension = "memory"
	DimensionAmbiguity Dimension = "ambiguity"
)

// Payload is the challenge handed to the solver. Context carries private
// state (expected intermediates, canary ids, bug lists) and is stripped
// before the payload leaves the server.
type Payload struct {
	Type         string          `json:"type"`
	Instructions string          `json:"instructions"`
	Data         string          `json:"data"` // base64 of the raw input bytes
	Steps        int             `json:"steps"`
	Context      json.RawMessage `json:"context,omitempty"`
}

// DefaultMaxAttempts is carried on every record. The single-use delete on
// solve makes it informational today.
const DefaultMaxAttempts = 3

// Record is the server-side challenge state, created by init, read by fetch
// and solve, deleted on the first solve attempt.
type Record struct {
	ID                string          `json:"id"`
	Type              string          `json:"type"`
	Difficulty        Difficulty      `json:"difficulty"`
	Dimensions        []Dimension     `json:"dimensions"`
	Payload           Payload         `json:"payload"`
	AnswerHash        string          `json:"answer_hash"`
	SessionToken      string          `json:"session_token"`
	CreatedAt         int64           `json:"created_at"` // unix seconds
	CreatedAtServerMs int64           `json:"created_at_server_ms"`
	ExpiresAt         int64           `json:"expires_at"` // unix seconds
	Attempts          int             `json:"attempts"`
	MaxAttempts       int             `json:"max_attempts"`
	Canaries          json.RawMessage `json:"canaries,omitempty"` // injected canaries, present iff PoMI was on at init
}

// HasDimension reports whether dims contains dim.
func HasDimension(dims []Dimension, dim Dimension) bool {
	for _, d := range dims {
		if d == dim {
			return true
		}
	}
	return false
}
