// Package token issues and verifies the HS256 capability tokens handed out
// after a successful solve.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// Issuer is the fixed iss claim on every token.
	Issuer = "agentauth"
	// Version is the agentauth_version claim value.
	Version = "1"
	// DefaultTTLSeconds is applied when Sign is called with ttl 0.
	DefaultTTLSeconds = 3600
)

// Verification failures are distinguishable so the guard can report the
// precise reason.
var (
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrTokenExpired     = errors.New("token expired")
	ErrInvalidIssuer    = errors.New("invalid token issuer")
)

// CapabilityScore is the five-dimension capability assessment carried in the
// token. All values are in [0, 1] rounded to three decimals.
type CapabilityScore struct {
	Reasoning   float64 `json:"reasoning"`
	Execution   float64 `json:"execution"`
	Autonomy    float64 `json:"autonomy"`
	Speed       float64 `json:"speed"`
	Consistency float64 `json:"consistency"`
}

// Average returns the mean of the five dimensions.
func (s CapabilityScore) Average() float64 {
	return (s.Reasoning + s.Execution + s.Autonomy + s.Speed + s.Consistency) / 5
}

// Claims is the full AgentAuth claim set.
type Claims struct {
	jwt.RegisteredClaims
	Capabilities     CapabilityScore `json:"capabilities"`
	ModelFamily      string          `json:"model_family"`
	ChallengeIDs     []string        `json:"challenge_ids"`
	AgentAuthVersion string          `json:"agentauth_version"`
}

// SignInput carries the verdict fields for a new token.
type SignInput struct {
	Sub          string
	Capabilities CapabilityScore
	ModelFamily  string
	ChallengeIDs []string
}

// Broker signs and verifies capability tokens with a shared HS256 secret.
type Broker struct {
	secret []byte
}

// NewBroker creates a broker for the given secret.
func NewBroker(secret string) *Broker {
	return &Broker{secret: []byte(secret)}
}

// Sign issues a token for the given verdict. ttlSeconds 0 means the default
// one hour.
func (b *Broker) Sign(input *SignInput, ttlSeconds int64) (string, error) {
	if ttlSeconds == 0 {
		ttlSeconds = DefaultTTLSeconds
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   input.Sub,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttlSeconds) * time.Second)),
			ID:        newJTI(),
		},
		Capabilities:     input.Capabilities,
		ModelFamily:      input.ModelFamily,
		ChallengeIDs:     input.ChallengeIDs,
		AgentAuthVersion: Version,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify validates the signature, expiry, and issuer, returning the decoded
// claims. Errors wrap one of the package sentinels.
func (b *Broker) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return b.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, fmt.Errorf("%w: %v", ErrInvalidIssuer, err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		}
	}
	return claims, nil
}

// DecodeUnchecked parses claims without verifying the signature or expiry.
// For inspection tooling only; never trust the result for authorization.
func DecodeUnchecked(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser()
	_, _, err := parser.ParseUnverified(tokenString, claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return claims, nil
}

// newJTI is a UUIDv4 with the dashes stripped, giving 32 hex chars.
func newJTI() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
