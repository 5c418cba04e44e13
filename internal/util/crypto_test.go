package util

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCryptoRandomBytes(t *testing.T) {
	a, err := CryptoRandomBytes(32)
	require.NoError(t, err)
	assert.Len(t, a, 32)

	b, err := CryptoRandomBytes(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCryptoRandomString(t *testing.T) {
	for _, length := range []int{1, 16, 31, 40, 64} {
		s, err := CryptoRandomString(length)
		require.NoError(t, err)
		assert.Len(t, s, length)
	}

	a, err := CryptoRandomString(40)
	require.NoError(t, err)
	b, err := CryptoRandomString(40)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCryptoRandomURLString(t *testing.T) {
	s, err := CryptoRandomURLString(32)
	require.NoError(t, err)

	decoded, err := base64.RawURLEncoding.DecodeString(s)
	require.NoError(t, err)
	assert.Len(t, decoded, 32)
}

func TestHashToken(t *testing.T) {
	hash := HashToken("my-token", "my-salt")
	assert.Len(t, hash, 100) // 50 bytes hex encoded

	// Deterministic for the same inputs
	assert.Equal(t, hash, HashToken("my-token", "my-salt"))

	// Sensitive to both token and salt
	assert.NotEqual(t, hash, HashToken("other-token", "my-salt"))
	assert.NotEqual(t, hash, HashToken("my-token", "other-salt"))
}

func TestSHA256Hex(t *testing.T) {
	// Known vector for the empty string
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		SHA256Hex(""),
	)
	assert.Equal(t, SHA256Hex("state-token"), SHA256Hex("state-token"))
	assert.NotEqual(t, SHA256Hex("a"), SHA256Hex("b"))
}

func TestPKCEChallengeS256(t *testing.T) {
	// Vector from RFC 7636 appendix B
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	assert.Equal(t,
		"E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		PKCEChallengeS256(verifier),
	)
}
