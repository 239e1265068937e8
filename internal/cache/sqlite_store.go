package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/thornforge/buildcore/internal/asset"
)

const schemaCacheEntries = `
CREATE TABLE IF NOT EXISTS cache_entries (
    key TEXT PRIMARY KEY,
    file_path TEXT NOT NULL,
    entry BLOB NOT NULL,
    updated_at TEXT NOT NULL
);
`

// SQLiteStore is the persistent tier for Cache, backed by a single SQLite
// database file. It uses one connection; cache writes are infrequent
// relative to the asset store's blob traffic, so no writer/reader split is
// needed here.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if necessary) the SQLite cache database
// at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cache: create directory %s: %w", dir, err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: ping %s: %w", path, err)
	}
	if _, err := db.Exec(schemaCacheEntries); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetEntry implements cache.PersistentStore.
func (s *SQLiteStore) GetEntry(key string) (*asset.CacheEntry, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT entry FROM cache_entries WHERE key = ?`, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: query %s: %w", key, err)
	}
	entry, err := unmarshalEntry(data)
	if err != nil {
		// Treat corrupt rows as a miss (spec §7 CacheCorrupt), not fatal.
		return nil, nil
	}
	return entry, nil
}

// SetEntry implements cache.PersistentStore.
func (s *SQLiteStore) SetEntry(key string, entry *asset.CacheEntry) error {
	data, err := marshalEntry(entry)
	if err != nil {
		return fmt.Errorf("cache: marshal entry %s: %w", key, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO cache_entries (key, file_path, entry, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET entry = excluded.entry, updated_at = excluded.updated_at`,
		key, entry.FilePath, data,
	)
	if err != nil {
		return fmt.Errorf("cache: write %s: %w", key, err)
	}
	return nil
}

// DeleteAll removes every cache entry and returns the number removed. The
// CLI's cache-clear command does not use it; it deletes the cache database
// file instead.
func (s *SQLiteStore) DeleteAll() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM cache_entries`)
	if err != nil {
		return 0, fmt.Errorf("cache: delete all: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of persisted cache entries.
func (s *SQLiteStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM cache_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("cache: count: %w", err)
	}
	return n, nil
}
