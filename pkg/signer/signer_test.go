package signer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACSigner_SignVerifyRoundTrip(t *testing.T) {
	s := New("secret-key")
	sig := s.Sign("t.mp3?format=wav")
	require.NotEmpty(t, sig)
	assert.True(t, s.Verify("t.mp3?format=wav", sig))
}

func TestHMACSigner_RejectsWrongSignature(t *testing.T) {
	s := New("secret-key")
	assert.False(t, s.Verify("t.mp3", "not-a-real-signature"))
}

func TestHMACSigner_RejectsSignatureFromDifferentSecret(t *testing.T) {
	a := New("secret-a")
	b := New("secret-b")
	sig := a.Sign("t.mp3")
	assert.False(t, b.Verify("t.mp3", sig))
}

func TestHMACSigner_RejectsSignatureForDifferentPath(t *testing.T) {
	s := New("secret-key")
	sig := s.Sign("t.mp3")
	assert.False(t, s.Verify("other.mp3", sig))
}

func TestHMACSigner_SignatureIsURLSafe(t *testing.T) {
	s := New("secret-key")
	sig := s.Sign("path/with/segments.mp3?a=b")
	for _, c := range sig {
		assert.NotEqual(t, '/', c, "signature must be usable as a path segment")
		assert.NotEqual(t, '+', c)
		assert.NotEqual(t, '=', c)
	}
}
