// Package token decodes JWT payloads and evaluates expiry and claim
// predicates. Decoding is non-authoritative: signatures are never checked,
// so callers must not treat a decoded payload as proof of authenticity.
package token

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// now is swapped out by tests that need a fixed clock.
var now = time.Now

// Claims is the decoded payload of a JWT. Registered claims get typed
// accessors; anything else stays reachable through the map.
type Claims map[string]any

// Decode splits raw into its three segments, base64url-decodes the payload
// and parses it as a claims map. The signature segment is ignored.
func Decode(raw string) (Claims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid token format: expected 3 segments, got %d", len(parts))
	}
	if parts[1] == "" {
		return nil, fmt.Errorf("invalid token format: empty payload segment")
	}

	payload, err := base64URLDecode(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decoding token payload: %w", err)
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("parsing token payload: %w", err)
	}
	return claims, nil
}

// base64URLDecode re-adds the padding JWTs omit before decoding.
func base64URLDecode(s string) ([]byte, error) {
	switch len(s) % 4 {
	case 2:
		s += "=="
	case 3:
		s += "="
	}
	return base64.URLEncoding.DecodeString(s)
}

// Subject returns the sub claim, empty when absent.
func (c Claims) Subject() string { return c.str("sub") }

// Issuer returns the iss claim, empty when absent.
func (c Claims) Issuer() string { return c.str("iss") }

// Email returns the email claim, empty when absent.
func (c Claims) Email() string { return c.str("email") }

// JTI returns the jti claim, empty when absent.
func (c Claims) JTI() string { return c.str("jti") }

// ExpiresAt returns the exp claim as a time; ok is false when absent or
// not numeric.
func (c Claims) ExpiresAt() (time.Time, bool) { return c.unixTime("exp") }

// IssuedAt returns the iat claim as a time.
func (c Claims) IssuedAt() (time.Time, bool) { return c.unixTime("iat") }

// NotBefore returns the nbf claim as a time.
func (c Claims) NotBefore() (time.Time, bool) { return c.unixTime("nbf") }

// Audience returns the aud claim normalized to a slice. A bare string
// audience is treated as a singleton set.
func (c Claims) Audience() []string {
	switch v := c["aud"].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func (c Claims) str(key string) string {
	s, _ := c[key].(string)
	return s
}

func (c Claims) unixTime(key string) (time.Time, bool) {
	// json.Unmarshal into any yields float64 for all numbers.
	f, ok := c[key].(float64)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(int64(f), 0), true
}

// IsExpired reports whether raw is expired, treating the check fail-safe:
// a token that cannot be decoded, or that carries no exp claim, counts as
// expired. buffer shifts the deadline earlier so callers can treat
// nearly-expired tokens as unusable.
func IsExpired(raw string, buffer time.Duration) bool {
	claims, err := Decode(raw)
	if err != nil {
		return true
	}
	return claims.Expired(buffer)
}

// Expired is IsExpired for an already-decoded payload.
func (c Claims) Expired(buffer time.Duration) bool {
	exp, ok := c.ExpiresAt()
	if !ok {
		return true
	}
	return !now().Before(exp.Add(-buffer))
}

// Expiration returns the exp claim; ok is false on decode failure or a
// missing claim. Never returns an error.
func Expiration(raw string) (time.Time, bool) {
	claims, err := Decode(raw)
	if err != nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt()
}

// TimeUntilExpiration returns how long raw remains valid, clamped at zero.
// Decode failures and missing exp claims yield zero.
func TimeUntilExpiration(raw string) time.Duration {
	exp, ok := Expiration(raw)
	if !ok {
		return 0
	}
	remaining := exp.Sub(now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ValidateOptions selects the predicates Validate applies.
type ValidateOptions struct {
	CheckExpiry    bool
	RequiredClaims []string
	Issuer         string
	Audience       string
}

// Validate decodes raw once and short-circuits through the requested
// checks: expiry, required-claims presence, issuer equality, audience
// membership. Any failure, including a decode failure, yields false.
func Validate(raw string, opts ValidateOptions) bool {
	claims, err := Decode(raw)
	if err != nil {
		return false
	}

	if opts.CheckExpiry && claims.Expired(0) {
		return false
	}
	for _, name := range opts.RequiredClaims {
		if _, ok := claims[name]; !ok {
			return false
		}
	}
	if opts.Issuer != "" && claims.Issuer() != opts.Issuer {
		return false
	}
	if opts.Audience != "" {
		found := false
		for _, aud := range claims.Audience() {
			if aud == opts.Audience {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
