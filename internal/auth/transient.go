package auth

import (
	"fmt"
	"sync"

	"github.com/VectorInstitute/aieng-auth/internal/store"
)

// Transient-state keys written at Login and consumed at HandleCallback.
const (
	verifierKey = "pkce_verifier"
	stateKey    = "oauth_state"
)

// TransientStore holds the short-lived per-login values: the PKCE verifier
// and the CSRF state nonce. Entries are written by Login, read by
// HandleCallback and deleted only after the whole callback pipeline has
// succeeded.
type TransientStore interface {
	Set(key, value string) error
	Get(key string) (value string, ok bool, err error)
	Delete(key string) error
}

// InMemoryTransientStore is a mutex-guarded map TransientStore.
type InMemoryTransientStore struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewInMemoryTransientStore creates an empty InMemoryTransientStore.
func NewInMemoryTransientStore() *InMemoryTransientStore {
	return &InMemoryTransientStore{entries: make(map[string]string)}
}

// Set stores value under key, overwriting any in-flight entry.
func (s *InMemoryTransientStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = value
	return nil
}

// Get returns the value for key, reporting presence.
func (s *InMemoryTransientStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[key]
	return v, ok, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *InMemoryTransientStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// MediumTransientStore adapts a store.Medium into a TransientStore so
// transient state can live in the same session-scoped medium as tokens.
type MediumTransientStore struct {
	medium store.Medium
}

// NewMediumTransientStore wraps medium. A nil medium is rejected.
func NewMediumTransientStore(medium store.Medium) (*MediumTransientStore, error) {
	if medium == nil {
		return nil, fmt.Errorf("%w: transient storage medium is unavailable", store.ErrStorage)
	}
	return &MediumTransientStore{medium: medium}, nil
}

// Set stores value under key.
func (s *MediumTransientStore) Set(key, value string) error {
	return s.medium.Set(key, value)
}

// Get returns the value for key, reporting presence.
func (s *MediumTransientStore) Get(key string) (string, bool, error) {
	return s.medium.Get(key)
}

// Delete removes key.
func (s *MediumTransientStore) Delete(key string) error {
	return s.medium.Remove(key)
}
