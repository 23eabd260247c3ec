package challenge

import "github.com/agentauth/agentauth/internal/crypto"

// Driver generates challenge instances and verifies submitted answers.
// Drivers keep no mutable state between calls; difficulty is the only
// configuration input.
type Driver interface {
	// Name returns the stable challenge type name, e.g. "crypto-nl".
	Name() string
	// Dimensions returns the capability dimensions this driver exercises.
	Dimensions() []Dimension
	// EstimatedHumanTimeMs and EstimatedAITimeMs are nominal solve-time
	// estimates used for documentation and baseline tuning.
	EstimatedHumanTimeMs() int64
	EstimatedAITimeMs() int64
	// Generate creates a challenge payload and the hash of the expected
	// answer. The stored hash is SHA-256 over the hex-encoded answer string,
	// never over the answer bytes.
	Generate(difficulty Difficulty) (*Payload, string, error)
	// Verify recomputes the double hash from the submitted answer and
	// compares it to answerHash in constant time.
	Verify(answerHash, submitted string) (bool, error)
}

// VerifyAnswerHash is the shared driver verification: hash the submitted
// string and constant-time compare against the stored answer hash.
func VerifyAnswerHash(answerHash, submitted string) bool {
	return crypto.TimingSafeEqual(answerHash, crypto.SHA256Hex([]byte(submitted)))
}
