// Package assetstore owns intermediate Asset records: it commits content,
// source maps, and AST artifacts to a content-addressed backing store and
// re-reads them on demand (spec §4.2).
package assetstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/thornforge/buildcore/internal/asset"
	"github.com/thornforge/buildcore/internal/fingerprint"
)

const schemaBlobs = `
CREATE TABLE IF NOT EXISTS blobs (
    key TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    content BLOB NOT NULL,
    created_at TEXT NOT NULL
);
`

// Store is a SQLite-backed content-addressed asset store. It follows the
// teacher's two-connection pattern: a single writer connection serializes
// writes, a separate reader pool serves concurrent reads.
type Store struct {
	writer *sql.DB
	reader *sql.DB
	path   string

	mu         sync.Mutex
	inFlight   map[string]chan struct{} // coalesces concurrent commits of the same key
	closeOnce  sync.Once
}

// Open creates or opens a Store backed by the SQLite database at path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("assetstore: create directory %s: %w", dir, err)
	}

	writerDSN := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	writer, err := sql.Open("sqlite", writerDSN)
	if err != nil {
		return nil, fmt.Errorf("assetstore: open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)

	if err := writer.Ping(); err != nil {
		writer.Close()
		return nil, fmt.Errorf("assetstore: ping writer: %w", err)
	}

	readerDSN := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=query_only(ON)"
	reader, err := sql.Open("sqlite", readerDSN)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("assetstore: open reader: %w", err)
	}
	reader.SetMaxOpenConns(4)
	reader.SetMaxIdleConns(4)

	if err := reader.Ping(); err != nil {
		writer.Close()
		reader.Close()
		return nil, fmt.Errorf("assetstore: ping reader: %w", err)
	}

	if _, err := writer.Exec(schemaBlobs); err != nil {
		writer.Close()
		reader.Close()
		return nil, fmt.Errorf("assetstore: create schema: %w", err)
	}

	return &Store{
		writer:   writer,
		reader:   reader,
		path:     path,
		inFlight: make(map[string]chan struct{}),
	}, nil
}

// Close closes both underlying connections. Safe to call multiple times.
func (s *Store) Close() error {
	var firstErr error
	s.closeOnce.Do(func() {
		if err := s.writer.Close(); err != nil {
			firstErr = err
		}
		if err := s.reader.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	return firstErr
}

// kind tags for the three artifact classes an asset may commit.
const (
	kindContent = "content"
	kindMap     = "map"
	kindAST     = "ast"
)

func blobKey(kind, key string) string { return kind + ":" + key }

// Commit writes an asset's content, source map, and AST (if present) under
// content-derived keys. Commit is idempotent on content hash: re-committing
// identical bytes under the same key is a no-op after the first write.
// Concurrent commits of the same key are coalesced so only one write hits
// the database.
func (s *Store) Commit(a *asset.Asset) error {
	if a.Hash == "" {
		return fmt.Errorf("assetstore: commit %s: asset has no hash", a.FilePath)
	}

	done, first := s.claim(a.Hash)
	if !first {
		<-done
		return nil
	}
	defer close(done)

	content, err := a.Content.Bytes()
	if err != nil {
		return fmt.Errorf("assetstore: commit %s: %w", a.FilePath, err)
	}
	if err := s.putBlob(kindContent, a.Hash, content); err != nil {
		return err
	}

	if len(a.Map) > 0 {
		mapKey := fingerprint.FingerprintBytes(a.Map)
		if err := s.putBlob(kindMap, mapKey, a.Map); err != nil {
			return err
		}
	}

	if a.AST != nil {
		// AST payloads are opaque to the store; the producing transformer
		// is responsible for serializing a.AST.Value before commit if it
		// needs durability across processes. Here we persist a marker so
		// readback can detect "asset had an AST" even though the value
		// itself is process-local.
		if err := s.putBlob(kindAST, a.Hash, []byte(a.AST.ProducerID)); err != nil {
			return err
		}
	}

	log.Debug().Str("hash", a.Hash).Str("file", a.FilePath).Msg("assetstore: committed")
	return nil
}

// claim registers this goroutine as the committer for key, or returns the
// in-flight channel to wait on if another goroutine already claimed it.
func (s *Store) claim(key string) (done chan struct{}, first bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.inFlight[key]; ok {
		return ch, false
	}
	ch := make(chan struct{})
	s.inFlight[key] = ch
	go func() {
		<-ch
		s.mu.Lock()
		delete(s.inFlight, key)
		s.mu.Unlock()
	}()
	return ch, true
}

func (s *Store) putBlob(kind, key string, content []byte) error {
	_, err := s.writer.Exec(`
		INSERT INTO blobs (key, kind, content, created_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(key) DO NOTHING`,
		blobKey(kind, key), kind, content,
	)
	if err != nil {
		return fmt.Errorf("assetstore: write blob %s/%s: %w", kind, key, err)
	}
	return nil
}

// Read retrieves the content bytes stored under key (a content hash).
// Readback errors are surfaced as cache-miss (ErrNotFound), never fatal,
// per spec §4.2.
func (s *Store) Read(key string) ([]byte, error) {
	return s.readKind(kindContent, key)
}

// ReadMap retrieves a previously committed source map by its own hash.
func (s *Store) ReadMap(key string) ([]byte, error) {
	return s.readKind(kindMap, key)
}

func (s *Store) readKind(kind, key string) ([]byte, error) {
	var content []byte
	err := s.reader.QueryRow(`SELECT content FROM blobs WHERE key = ?`, blobKey(kind, key)).Scan(&content)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("assetstore: read %s/%s: %w", kind, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("assetstore: read %s/%s: %w: %w", kind, key, ErrNotFound, err)
	}
	return content, nil
}

// CheckConnectedFiles re-hashes every declared connected file and returns
// true iff every recorded hash still matches the file on disk (spec §4.2,
// §4.3). A missing file counts as a mismatch, not an error.
func (s *Store) CheckConnectedFiles(files []asset.ConnectedFile) (bool, error) {
	for _, f := range files {
		current, err := fingerprint.FingerprintFile(f.FilePath)
		if err != nil {
			// Deleted or unreadable: treat as invalidated, not fatal.
			return false, nil
		}
		if current != f.Hash {
			return false, nil
		}
	}
	return true, nil
}
