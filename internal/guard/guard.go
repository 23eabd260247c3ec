// Package guard is the stateless verification helper for boundary code that
// sits in front of protected resources.
package guard

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/agentauth/agentauth/internal/token"
)

// Response header names emitted on verified downstream requests.
const (
	HeaderStatus         = "AgentAuth-Status"
	HeaderScore          = "AgentAuth-Score"
	HeaderModelFamily    = "AgentAuth-Model-Family"
	HeaderPoMIConfidence = "AgentAuth-PoMI-Confidence"
	HeaderCapabilities   = "AgentAuth-Capabilities"
	HeaderVersion        = "AgentAuth-Version"
	HeaderChallengeID    = "AgentAuth-Challenge-Id"
	HeaderTokenExpires   = "AgentAuth-Token-Expires"
)

// Config holds the guard settings.
type Config struct {
	Secret   string
	MinScore float64 // default 0.7 if zero
}

// Result holds the verified claims and the headers to attach to the
// response.
type Result struct {
	Claims  *token.Claims
	Headers map[string]string
}

// Error is a guard rejection with its HTTP status.
type Error struct {
	StatusCode int
	Message    string
	ErrorType  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("agentauth guard error [%d]: %s", e.StatusCode, e.Message)
}

// VerifyRequest verifies a bearer token and enforces the minimum average
// capability score. Invalid tokens are 401, insufficient scores 403.
func VerifyRequest(tokenString string, config *Config) (*Result, *Error) {
	minScore := config.MinScore
	if minScore == 0 {
		minScore = 0.7
	}

	claims, err := token.NewBroker(config.Secret).Verify(tokenString)
	if err != nil {
		return nil, &Error{StatusCode: 401, Message: err.Error(), ErrorType: errorType(err)}
	}

	avg := claims.Capabilities.Average()
	if avg < minScore {
		return nil, &Error{
			StatusCode: 403,
			Message:    fmt.Sprintf("insufficient capability score: %.2f < %.2f", avg, minScore),
			ErrorType:  "insufficient_score",
		}
	}

	headers := map[string]string{
		HeaderStatus:       "verified",
		HeaderScore:        fmt.Sprintf("%.2f", avg),
		HeaderModelFamily:  claims.ModelFamily,
		HeaderCapabilities: FormatCapabilities(claims.Capabilities),
		HeaderVersion:      claims.AgentAuthVersion,
		HeaderTokenExpires: fmt.Sprintf("%d", claims.ExpiresAt.Unix()),
	}
	if len(claims.ChallengeIDs) > 0 {
		headers[HeaderChallengeID] = claims.ChallengeIDs[0]
	}

	return &Result{Claims: claims, Headers: headers}, nil
}

func errorType(err error) string {
	switch {
	case errors.Is(err, token.ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, token.ErrInvalidIssuer):
		return "invalid_issuer"
	case errors.Is(err, token.ErrInvalidSignature):
		return "invalid_signature"
	}
	return "invalid_token"
}

// FormatCapabilities renders a score as comma-joined key=value pairs, e.g.
// "reasoning=0.9,execution=0.85,autonomy=0.8,speed=0.75,consistency=0.88".
func FormatCapabilities(score token.CapabilityScore) string {
	return fmt.Sprintf(
		"reasoning=%g,execution=%g,autonomy=%g,speed=%g,consistency=%g",
		score.Reasoning, score.Execution, score.Autonomy, score.Speed, score.Consistency,
	)
}

// ParseCapabilities is the inverse of FormatCapabilities; malformed pairs
// are skipped.
func ParseCapabilities(header string) map[string]float64 {
	result := make(map[string]float64)
	if header == "" {
		return result
	}
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		val, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if err != nil {
			continue
		}
		result[strings.TrimSpace(kv[0])] = val
	}
	return result
}
