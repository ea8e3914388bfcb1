// Package store holds the current OAuth token set. Three interchangeable
// implementations share one contract: an in-memory store and key-value
// stores over session-scoped or durable media.
package store

import (
	"errors"
	"time"

	"golang.org/x/oauth2"
)

// DefaultKey is the key persisted token records live under when the caller
// does not configure one.
const DefaultKey = "aieng_auth_tokens"

// ErrStorage marks failures of the underlying storage medium.
var ErrStorage = errors.New("storage error")

// now is swapped out by tests that need a fixed clock.
var now = time.Now

// Tokens is the token set returned by a code exchange or refresh. It is
// replaced wholesale on refresh and cleared wholesale on logout; partial
// updates never happen.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	Scope        string    `json:"scope,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
}

// Clone returns an independent copy.
func (t *Tokens) Clone() *Tokens {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// OAuth2Token adapts the record for golang.org/x/oauth2 consumers. Expiry
// is derived from the store-stamped issue time.
func (t *Tokens) OAuth2Token() *oauth2.Token {
	if t == nil {
		return nil
	}
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
	}
	if !t.IssuedAt.IsZero() && t.ExpiresIn > 0 {
		tok.Expiry = t.IssuedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	return tok
}

// Store is the token-holding contract. SetTokens stamps IssuedAt with the
// current wall-clock time, overwriting any caller-supplied value, and keeps
// an independent copy. GetTokens returns an independent copy; mutating it
// never affects stored state. GetTokens returns (nil, nil) when no record
// exists.
type Store interface {
	SetTokens(t *Tokens) error
	GetTokens() (*Tokens, error)
	ClearTokens() error
}
