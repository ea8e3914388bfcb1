// Package pkce implements the Proof Key for Code Exchange extension to
// OAuth 2.0 (RFC 7636). It produces code verifier / challenge pairs using
// the S256 transformation.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
)

// MethodS256 is the only challenge method this package produces.
const MethodS256 = "S256"

// verifierBytes is the number of random bytes behind a code verifier.
// 96 bytes encode to 128 base64url characters, the RFC 7636 maximum.
const verifierBytes = 96

// Challenge holds a generated verifier/challenge pair. The verifier is the
// client secret sent at token-exchange time; the challenge is its SHA-256
// digest sent with the authorization request.
type Challenge struct {
	Verifier  string
	Challenge string
	Method    string
}

// Generator produces verifier/challenge pairs from an injected random
// source so tests can substitute a deterministic or failing reader.
type Generator struct {
	rand io.Reader
}

// New creates a Generator backed by crypto/rand.
func New() *Generator {
	return &Generator{rand: rand.Reader}
}

// NewWithRand creates a Generator backed by the given random source.
func NewWithRand(r io.Reader) *Generator {
	return &Generator{rand: r}
}

// RandomString returns n random bytes encoded as unpadded URL-safe base64.
// The output contains none of '+', '/' or '='.
func (g *Generator) RandomString(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("random string length must be positive, got %d", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(g.rand, b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return Encode(b), nil
}

// Generate creates a fresh verifier and derives its S256 challenge.
func (g *Generator) Generate() (*Challenge, error) {
	verifier, err := g.RandomString(verifierBytes)
	if err != nil {
		return nil, fmt.Errorf("generating code verifier: %w", err)
	}
	return &Challenge{
		Verifier:  verifier,
		Challenge: challengeFor(verifier),
		Method:    MethodS256,
	}, nil
}

// Verify reports whether challenge is the S256 challenge for verifier.
// The authorization server performs the authoritative check; this exists
// for self-tests only.
func (g *Generator) Verify(verifier, challenge string) bool {
	if verifier == "" || challenge == "" {
		return false
	}
	want := challengeFor(verifier)
	return subtle.ConstantTimeCompare([]byte(want), []byte(challenge)) == 1
}

// Encode returns unpadded URL-safe base64 for b.
func Encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func challengeFor(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return Encode(sum[:])
}
