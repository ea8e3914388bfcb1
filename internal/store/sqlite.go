package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteMedium is a durable Medium backed by a single key-value table.
// Records survive process restarts; two media opened on the same database
// file observe each other's writes.
type SQLiteMedium struct {
	db   *sql.DB
	path string
}

// NewSQLiteMedium opens (creating if needed) the database at path and
// ensures the kv table exists.
func NewSQLiteMedium(path string) (*SQLiteMedium, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: database path cannot be empty", ErrStorage)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", ErrStorage, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: connecting to database: %v", ErrStorage, err)
	}

	const schema = `CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating kv table: %v", ErrStorage, err)
	}

	return &SQLiteMedium{db: db, path: path}, nil
}

// Get returns the value stored under key.
func (m *SQLiteMedium) Get(key string) (string, bool, error) {
	var value string
	err := m.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set writes value under key, replacing any existing record.
func (m *SQLiteMedium) Set(key, value string) error {
	_, err := m.db.Exec(`INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)`, key, value)
	return err
}

// Remove deletes key. Removing an absent key is not an error.
func (m *SQLiteMedium) Remove(key string) error {
	_, err := m.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return err
}

// Close releases the database handle.
func (m *SQLiteMedium) Close() error {
	return m.db.Close()
}
