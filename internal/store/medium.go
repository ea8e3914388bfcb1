package store

import "sync"

// Medium is the key-value surface a KVStore persists through: session
// storage, a database table, or anything with get/set/remove semantics.
// Get returns ("", false, nil) when the key is absent.
type Medium interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
}

// MapMedium is a mutex-guarded map Medium with session-storage semantics:
// entries survive as long as the medium value itself does, and several
// stores constructed over the same MapMedium share state.
type MapMedium struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewMapMedium creates an empty MapMedium.
func NewMapMedium() *MapMedium {
	return &MapMedium{entries: make(map[string]string)}
}

// Get returns the value for key, reporting presence.
func (m *MapMedium) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

// Set writes value under key.
func (m *MapMedium) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (m *MapMedium) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
