package cache

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// Store is a sqlite-backed cache of compiled chunks. A row is keyed by the
// script's absolute path plus its content hash, so editing a script
// naturally invalidates its entry.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenStore opens (creating if needed) the cache database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: set busy_timeout: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS chunks (
		path TEXT NOT NULL,
		hash TEXT NOT NULL,
		data BLOB NOT NULL,
		PRIMARY KEY (path, hash)
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: create table: %w", err)
	}
	return &Store{db: db}, nil
}

// Get returns the cached blob for path at the given content hash.
func (s *Store) Get(path, hash string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data []byte
	err := s.db.QueryRow(
		"SELECT data FROM chunks WHERE path = ? AND hash = ?",
		path, hash,
	).Scan(&data)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Put stores a blob for path, replacing stale entries for earlier hashes.
func (s *Store) Put(path, hash string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("cache: begin: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM chunks WHERE path = ?", path); err != nil {
		tx.Rollback()
		return fmt.Errorf("cache: evict %s: %w", path, err)
	}
	if _, err := tx.Exec(
		"INSERT INTO chunks (path, hash, data) VALUES (?, ?, ?)",
		path, hash, data,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("cache: insert %s: %w", path, err)
	}
	return tx.Commit()
}

// Close releases the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
