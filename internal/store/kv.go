package store

import (
	"encoding/json"
	"fmt"
	"log"
)

// KVStore persists the token record as JSON under a single key of a
// Medium. The session and durable store variants are both KVStores; only
// the medium behind them differs.
type KVStore struct {
	medium Medium
	key    string
	logger *log.Logger
}

// KVOption configures a KVStore.
type KVOption func(*KVStore)

// WithKey overrides the storage key, DefaultKey otherwise.
func WithKey(key string) KVOption {
	return func(s *KVStore) { s.key = key }
}

// WithLogger sets the logger used when a corrupt record is healed.
func WithLogger(l *log.Logger) KVOption {
	return func(s *KVStore) { s.logger = l }
}

// NewKVStore creates a store over medium. A nil medium fails with
// ErrStorage so callers learn about an unavailable medium at construction
// time rather than on first use.
func NewKVStore(medium Medium, opts ...KVOption) (*KVStore, error) {
	if medium == nil {
		return nil, fmt.Errorf("%w: storage medium is unavailable", ErrStorage)
	}
	s := &KVStore{
		medium: medium,
		key:    DefaultKey,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SetTokens serializes t under the store key, stamping IssuedAt.
func (s *KVStore) SetTokens(t *Tokens) error {
	c := t.Clone()
	if c == nil {
		return s.ClearTokens()
	}
	c.IssuedAt = now()

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("%w: serializing tokens: %v", ErrStorage, err)
	}
	if err := s.medium.Set(s.key, string(data)); err != nil {
		return fmt.Errorf("%w: writing tokens: %v", ErrStorage, err)
	}
	return nil
}

// GetTokens reads and parses the stored record. An unparsable record is
// logged, removed, and reported as absent so one corrupt write cannot wedge
// every later read.
func (s *KVStore) GetTokens() (*Tokens, error) {
	raw, ok, err := s.medium.Get(s.key)
	if err != nil {
		return nil, fmt.Errorf("%w: reading tokens: %v", ErrStorage, err)
	}
	if !ok {
		return nil, nil
	}

	var t Tokens
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		s.logger.Printf("store: clearing corrupt token record under %q: %v", s.key, err)
		if rmErr := s.medium.Remove(s.key); rmErr != nil {
			return nil, fmt.Errorf("%w: clearing corrupt tokens: %v", ErrStorage, rmErr)
		}
		return nil, nil
	}
	return &t, nil
}

// ClearTokens removes the stored record.
func (s *KVStore) ClearTokens() error {
	if err := s.medium.Remove(s.key); err != nil {
		return fmt.Errorf("%w: clearing tokens: %v", ErrStorage, err)
	}
	return nil
}
