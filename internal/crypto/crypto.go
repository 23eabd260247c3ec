// Package crypto provides the hashing, HMAC, and random-identifier
// primitives shared by the challenge engine and the token broker.
package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// SHA256Hex computes the SHA-256 digest of data as a lowercase hex string.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SHA256Bytes computes the SHA-256 digest of data as raw bytes.
func SHA256Bytes(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// HMACSHA256Hex computes HMAC-SHA256 of message under key and returns the
// lowercase hex encoding. Used for answer binding: the solver proves it holds
// the session token by signing its answer with it.
func HMACSHA256Hex(message, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// HMACSHA256Bytes computes HMAC-SHA256 over raw bytes, returning raw bytes.
func HMACSHA256Bytes(key, message []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return mac.Sum(nil)
}

// TimingSafeEqual compares two strings in constant time. Inputs of different
// length compare unequal immediately; length is not a secret here.
func TimingSafeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// RandomBytes returns length cryptographically secure random bytes.
// crypto/rand failure is unrecoverable for an auth service, so it panics.
func RandomBytes(length int) []byte {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		panic("agentauth: crypto/rand failed: " + err.Error())
	}
	return buf
}

// ToHex encodes bytes as a lowercase hex string.
func ToHex(data []byte) string {
	return hex.EncodeToString(data)
}

// FromHex decodes a hex string to bytes.
func FromHex(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// GenerateChallengeID mints a challenge id of the form "ch_" + 32 hex chars.
func GenerateChallengeID() string {
	return "ch_" + hex.EncodeToString(RandomBytes(16))
}

// GenerateSessionToken mints a session token of the form "st_" + 48 hex chars.
func GenerateSessionToken() string {
	return "st_" + hex.EncodeToString(RandomBytes(24))
}
