package cache

import (
	"path/filepath"
	"testing"

	"github.com/thornforge/buildcore/internal/asset"
)

type fakeFileChecker struct {
	valid bool
}

func (f *fakeFileChecker) CheckConnectedFiles(files []asset.ConnectedFile) (bool, error) {
	return f.valid, nil
}

func TestCacheGetSetRoundTrip(t *testing.T) {
	checker := &fakeFileChecker{valid: true}
	c, err := New(10, nil, checker)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	entry := &asset.CacheEntry{FilePath: "a.js", Assets: []*asset.Asset{{FilePath: "a.js", Hash: "h1"}}}
	if err := c.Set("k1", entry); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := c.Get("k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Assets[0].Hash != "h1" {
		t.Fatalf("unexpected entry: %+v", got)
	}
}

func TestCacheMissWhenConnectedFilesInvalid(t *testing.T) {
	checker := &fakeFileChecker{valid: false}
	c, err := New(10, nil, checker)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	entry := &asset.CacheEntry{FilePath: "a.js", Assets: []*asset.Asset{
		{FilePath: "a.js", ConnectedFiles: []asset.ConnectedFile{{FilePath: "b.txt", Hash: "h"}}},
	}}
	c.Set("k1", entry)

	got, err := c.Get("k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatal("expected cache miss when connected files are invalid")
	}
}

func TestCachePersistentTierFallback(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenSQLiteStore(filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	checker := &fakeFileChecker{valid: true}
	c, err := New(10, store, checker)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	entry := &asset.CacheEntry{FilePath: "a.js", Assets: []*asset.Asset{{FilePath: "a.js", Hash: "h1"}}}
	if err := c.Set("k1", entry); err != nil {
		t.Fatalf("set: %v", err)
	}

	// Force a miss at the memory tier and confirm it falls back to SQLite.
	c.Invalidate("k1")
	got, err := c.Get("k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Assets[0].Hash != "h1" {
		t.Fatalf("expected persistent-tier hit, got %+v", got)
	}
}

func TestKeyDeterministic(t *testing.T) {
	k1, err := Key("a.js", asset.Env{Context: "browser"})
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	k2, err := Key("a.js", asset.Env{Context: "browser"})
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	if k1 != k2 {
		t.Fatal("expected deterministic key for identical inputs")
	}

	k3, _ := Key("a.js", asset.Env{Context: "node"})
	if k1 == k3 {
		t.Fatal("expected different key for different env")
	}
}
