package auth

import (
	"time"

	"github.com/VectorInstitute/aieng-auth/internal/store"
	"github.com/VectorInstitute/aieng-auth/internal/token"
)

// DefaultRefreshBuffer is how far before expiry ShouldRefresh starts
// recommending a proactive refresh.
const DefaultRefreshBuffer = 5 * time.Minute

// Manager is a thin facade over exactly one token store. It answers the
// lifecycle questions: is the current token valid, how long until it
// expires, should it be refreshed now.
type Manager struct {
	store store.Store
}

// NewManager creates a Manager over s.
func NewManager(s store.Store) *Manager {
	return &Manager{store: s}
}

// SetTokens stores a new token set.
func (m *Manager) SetTokens(t *store.Tokens) error {
	return m.store.SetTokens(t)
}

// GetTokens returns the current token set, nil when absent.
func (m *Manager) GetTokens() (*store.Tokens, error) {
	return m.store.GetTokens()
}

// ClearTokens drops the current token set.
func (m *Manager) ClearTokens() error {
	return m.store.ClearTokens()
}

// AccessToken returns the current access token, empty when absent.
func (m *Manager) AccessToken() string {
	t, err := m.store.GetTokens()
	if err != nil || t == nil {
		return ""
	}
	return t.AccessToken
}

// RefreshToken returns the current refresh token, empty when absent.
func (m *Manager) RefreshToken() string {
	t, err := m.store.GetTokens()
	if err != nil || t == nil {
		return ""
	}
	return t.RefreshToken
}

// IDToken returns the current ID token, empty when absent.
func (m *Manager) IDToken() string {
	t, err := m.store.GetTokens()
	if err != nil || t == nil {
		return ""
	}
	return t.IDToken
}

// HasTokens reports whether a stored record with a non-empty access token
// exists.
func (m *Manager) HasTokens() bool {
	return m.AccessToken() != ""
}

// IsTokenValid reports whether an access token exists and is not expired
// within buffer.
func (m *Manager) IsTokenValid(buffer time.Duration) bool {
	access := m.AccessToken()
	if access == "" {
		return false
	}
	return !token.IsExpired(access, buffer)
}

// TimeUntilExpiration returns how long the current access token remains
// valid; zero when no token is stored.
func (m *Manager) TimeUntilExpiration() time.Duration {
	access := m.AccessToken()
	if access == "" {
		return 0
	}
	return token.TimeUntilExpiration(access)
}

// ShouldRefresh reports whether the access token is inside the refresh
// window: still alive but expiring within buffer. An already-expired token
// does not trigger this path; expiry is handled by the error path instead.
// A non-positive buffer falls back to DefaultRefreshBuffer.
func (m *Manager) ShouldRefresh(buffer time.Duration) bool {
	if buffer <= 0 {
		buffer = DefaultRefreshBuffer
	}
	remaining := m.TimeUntilExpiration()
	return remaining > 0 && remaining <= buffer
}
