package store

import "sync"

// MemoryStore keeps the token set in process-local memory. Its lifetime is
// the store instance; nothing ever touches an external medium.
type MemoryStore struct {
	mu     sync.Mutex
	tokens *Tokens
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// SetTokens stores an independent copy of t, stamping IssuedAt.
func (s *MemoryStore) SetTokens(t *Tokens) error {
	c := t.Clone()
	if c != nil {
		c.IssuedAt = now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = c
	return nil
}

// GetTokens returns a copy of the stored token set, or nil when empty.
func (s *MemoryStore) GetTokens() (*Tokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens.Clone(), nil
}

// ClearTokens drops the stored token set.
func (s *MemoryStore) ClearTokens() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = nil
	return nil
}
