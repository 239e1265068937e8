// Package cache maps request fingerprints to CacheEntry records (spec
// §4.3). It mirrors the teacher's two-tier design: an in-memory LRU in
// front of a persistent backing store, with validity re-checked against
// each entry's connected files on every hit.
package cache

import (
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/thornforge/buildcore/internal/asset"
)

// ConnectedFileChecker re-hashes an asset's connected files and reports
// whether every one still matches. Implemented by assetstore.Store.
type ConnectedFileChecker interface {
	CheckConnectedFiles(files []asset.ConnectedFile) (bool, error)
}

// PersistentStore is the durable backing tier. A concrete SQLite-backed
// implementation lives in this package as *SQLiteStore.
type PersistentStore interface {
	GetEntry(key string) (*asset.CacheEntry, error)
	SetEntry(key string, entry *asset.CacheEntry) error
}

// Cache maps a request fingerprint key to a CacheEntry, backed by an
// in-memory LRU tier and an optional persistent tier. Inline-code requests
// are never served from or written to the cache (spec §4.3); callers
// enforce that by not calling Get/Set for such requests — Cache itself is
// agnostic to request shape.
type Cache struct {
	memory  *lru.Cache[string, *asset.CacheEntry]
	persist PersistentStore
	files   ConnectedFileChecker
}

// New creates a Cache with the given maximum number of in-memory entries
// (default 1000 if non-positive), an optional persistent store, and the
// connected-file checker used to validate retrieved entries.
func New(maxMemoryEntries int, persist PersistentStore, files ConnectedFileChecker) (*Cache, error) {
	if maxMemoryEntries <= 0 {
		maxMemoryEntries = 1000
	}
	mem, err := lru.New[string, *asset.CacheEntry](maxMemoryEntries)
	if err != nil {
		return nil, fmt.Errorf("cache: creating LRU: %w", err)
	}
	return &Cache{memory: mem, persist: persist, files: files}, nil
}

// Get retrieves the CacheEntry for key, returning (nil, nil) on a miss.
// A retrieved entry is only returned once checkCachedAssets confirms every
// one of its assets' connected files still matches (spec §4.3); a stale
// entry is evicted from memory and treated as a miss, not an error.
func (c *Cache) Get(key string) (*asset.CacheEntry, error) {
	if entry, ok := c.memory.Get(key); ok {
		valid, err := c.checkCachedAssets(entry)
		if err != nil {
			return nil, err
		}
		if valid {
			return entry, nil
		}
		c.memory.Remove(key)
		return nil, nil
	}

	if c.persist == nil {
		return nil, nil
	}
	entry, err := c.persist.GetEntry(key)
	if err != nil {
		// CacheCorrupt / readback errors are a miss, not fatal (spec §7).
		log.Debug().Err(err).Str("key", key).Msg("cache: persistent lookup miss")
		return nil, nil
	}
	if entry == nil {
		return nil, nil
	}
	valid, err := c.checkCachedAssets(entry)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, nil
	}
	c.memory.Add(key, entry)
	return entry, nil
}

// checkCachedAssets validates every asset in entry (both the current and,
// when present, the pre-post-process set) against its recorded connected
// files.
func (c *Cache) checkCachedAssets(entry *asset.CacheEntry) (bool, error) {
	assets := make([]*asset.Asset, 0, len(entry.Assets)+len(entry.InitialAssets))
	assets = append(assets, entry.Assets...)
	assets = append(assets, entry.InitialAssets...)
	for _, a := range assets {
		ok, err := c.files.CheckConnectedFiles(a.ConnectedFiles)
		if err != nil {
			return false, fmt.Errorf("cache: check connected files for %s: %w", a.FilePath, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Set stores entry under key in both tiers, replacing any prior entry
// atomically (spec §3 "Lifecycles": cache entries are replaced atomically
// on re-run).
func (c *Cache) Set(key string, entry *asset.CacheEntry) error {
	c.memory.Add(key, entry)
	if c.persist != nil {
		if err := c.persist.SetEntry(key, entry); err != nil {
			return fmt.Errorf("cache: persist entry %s: %w", key, err)
		}
	}
	return nil
}

// Invalidate evicts key from the in-memory tier only; the persistent tier
// is left untouched and will be re-validated (and potentially overwritten)
// on the next Set.
func (c *Cache) Invalidate(key string) {
	c.memory.Remove(key)
}

// marshalEntry/unmarshalEntry are used by PersistentStore implementations
// that serialize entries as JSON blobs (e.g. SQLiteStore).
func marshalEntry(entry *asset.CacheEntry) ([]byte, error) {
	return json.Marshal(entry)
}

func unmarshalEntry(data []byte) (*asset.CacheEntry, error) {
	var entry asset.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}
