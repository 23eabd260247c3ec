package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentauth/agentauth/internal/token"
)

func signedToken(t *testing.T, secret string, score token.CapabilityScore) string {
	t.Helper()
	signed, err := token.NewBroker(secret).Sign(&token.SignInput{
		Sub:          "ch_test",
		Capabilities: score,
		ModelFamily:  "claude-3-class",
		ChallengeIDs: []string{"ch_test"},
	}, 3600)
	require.NoError(t, err)
	return signed
}

func strongScore() token.CapabilityScore {
	return token.CapabilityScore{
		Reasoning: 0.9, Execution: 0.95, Autonomy: 0.9, Speed: 0.95, Consistency: 0.9,
	}
}

func TestVerifyRequest_Success(t *testing.T) {
	tok := signedToken(t, "secret", strongScore())

	result, gerr := VerifyRequest(tok, &Config{Secret: "secret"})
	require.Nil(t, gerr)
	require.NotNil(t, result)

	assert.Equal(t, "verified", result.Headers[HeaderStatus])
	assert.Equal(t, "0.92", result.Headers[HeaderScore])
	assert.Equal(t, "claude-3-class", result.Headers[HeaderModelFamily])
	assert.Equal(t, "ch_test", result.Headers[HeaderChallengeID])
	assert.Equal(t, "1", result.Headers[HeaderVersion])
	assert.Contains(t, result.Headers[HeaderCapabilities], "reasoning=0.9")
	assert.NotEmpty(t, result.Headers[HeaderTokenExpires])
}

func TestVerifyRequest_InsufficientScore(t *testing.T) {
	weak := token.CapabilityScore{
		Reasoning: 0.5, Execution: 0.5, Autonomy: 0.5, Speed: 0.5, Consistency: 0.5,
	}
	tok := signedToken(t, "secret", weak)

	result, gerr := VerifyRequest(tok, &Config{Secret: "secret"})
	assert.Nil(t, result)
	require.NotNil(t, gerr)
	assert.Equal(t, 403, gerr.StatusCode)
	assert.Equal(t, "insufficient_score", gerr.ErrorType)
}

func TestVerifyRequest_CustomMinScore(t *testing.T) {
	tok := signedToken(t, "secret", strongScore())

	// 0.92 average clears the default but not a stricter threshold.
	_, gerr := VerifyRequest(tok, &Config{Secret: "secret", MinScore: 0.95})
	require.NotNil(t, gerr)
	assert.Equal(t, 403, gerr.StatusCode)
}

func TestVerifyRequest_InvalidToken(t *testing.T) {
	result, gerr := VerifyRequest("garbage", &Config{Secret: "secret"})
	assert.Nil(t, result)
	require.NotNil(t, gerr)
	assert.Equal(t, 401, gerr.StatusCode)

	// Signed with a different secret.
	tok := signedToken(t, "other-secret", strongScore())
	_, gerr = VerifyRequest(tok, &Config{Secret: "secret"})
	require.NotNil(t, gerr)
	assert.Equal(t, 401, gerr.StatusCode)
	assert.Equal(t, "invalid_signature", gerr.ErrorType)
}

func TestCapabilities_FormatParseRoundTrip(t *testing.T) {
	header := FormatCapabilities(strongScore())
	parsed := ParseCapabilities(header)

	assert.InDelta(t, 0.9, parsed["reasoning"], 1e-9)
	assert.InDelta(t, 0.95, parsed["execution"], 1e-9)
	assert.Len(t, parsed, 5)

	assert.Empty(t, ParseCapabilities(""))
	assert.Empty(t, ParseCapabilities("not-a-pair"))
}
