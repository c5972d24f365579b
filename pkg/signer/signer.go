// Package signer implements the optional signed-URL contract from spec
// section 6: sign(path) -> a prefix segment inserted between the scheme/host
// and the path, which the dispatcher verifies before further processing.
//
// Grounded on the original implementation's `Signer` trait
// (to_signed_string: "{sign(path)}/{path}") for the path-segment shape, and
// on the teacher's internal/auth/auth.go HMAC-SHA signing idiom
// (jwt.SigningMethodHMAC) for the "keyed digest, constant-time compare"
// verification pattern -- adapted from JWT token signing to bare-path
// signing since spec's Signer contract is a plain sign(path)->string, not a
// token format, and no ecosystem library in the pack addresses that
// narrower shape.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// Signer produces and verifies signatures over a logical path, per the
// contract in spec section 6. Key management (where the secret comes from,
// rotation) is external; this package only implements the sign/verify
// primitive.
type Signer interface {
	// Sign returns the prefix segment to insert between the scheme/host and
	// path for a signed URL.
	Sign(path string) string
	// Verify reports whether sig is a valid signature for path.
	Verify(path, sig string) bool
}

// HMACSigner implements Signer with HMAC-SHA256 over the path, rendered as
// URL-safe unpadded base64 -- safe to use directly as a path segment.
type HMACSigner struct {
	secret []byte
}

// New constructs an HMACSigner with the given secret. An empty secret is
// accepted and used as the HMAC key as-is; cmd/freqmoda builds a signer
// whenever Settings.Signer.Enabled is set, without checking the secret.
func New(secret string) *HMACSigner {
	return &HMACSigner{secret: []byte(secret)}
}

func (s *HMACSigner) Sign(path string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(path))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature over path and compares it to sig in
// constant time, so the comparison itself cannot leak timing information
// about the expected signature.
func (s *HMACSigner) Verify(path, sig string) bool {
	want := s.Sign(path)
	return subtle.ConstantTimeCompare([]byte(want), []byte(sig)) == 1
}
