// Package asset defines the data model shared by every other buildcore
// package: the environment key, the internal Asset record, transformer
// results, and the content sum type that lets an asset's bytes live either
// fully in memory or behind a lazy stream.
package asset

import (
	"fmt"
	"io"
	"time"

	"github.com/thornforge/buildcore/internal/fingerprint"
)

// Env is an opaque, hashable description of the target environment (e.g.
// engines, context). Two requests with different environments are
// unrelated even if every other field matches.
type Env struct {
	Context    string            `json:"context"`
	Engines    map[string]string `json:"engines,omitempty"`
	IsLibrary  bool              `json:"isLibrary,omitempty"`
	OutputMode string            `json:"outputMode,omitempty"`
}

// Key returns a stable string key for use as a map key or fingerprint
// input component.
func (e Env) Key() (string, error) {
	return fingerprint.Fingerprint(e)
}

// IsZero reports whether e is the zero Env. Env embeds a map field, so it
// cannot be compared with ==; callers that need an emptiness check (e.g.
// "did this TransformerResult declare its own env?") use this instead.
func (e Env) IsZero() bool {
	return e.Context == "" && len(e.Engines) == 0 && !e.IsLibrary && e.OutputMode == ""
}

// ConnectedFile is a file whose content influences an asset; the pair
// (filePath, hash) lets the owning store re-hash it on demand to detect
// invalidation (spec §4.2 checkConnectedFiles).
type ConnectedFile struct {
	FilePath string `json:"filePath"`
	Hash     string `json:"hash"`
}

// Stats records lightweight bookkeeping about how an asset was produced.
type Stats struct {
	Size int64         `json:"size"`
	Time time.Duration `json:"time"`
}

// StreamOpener lazily opens a byte stream for content that was not (or
// should not be) buffered fully in memory. It must support being invoked
// more than once: each call opens a fresh, independent reader, since
// content is immutable once committed but may be re-read many times.
type StreamOpener func() (io.ReadCloser, error)

// Content is the sum type Buffer(bytes) | Stream(pathOrFactory) described
// in spec §9. Exactly one of the two representations is populated.
type Content struct {
	buf    []byte
	open   StreamOpener
	isFile bool // true when open derives from a concrete file path
	path   string
}

// NewBufferContent wraps an in-memory byte slice.
func NewBufferContent(b []byte) Content {
	return Content{buf: b}
}

// NewStreamContent wraps a lazy stream opener. path, if non-empty, records
// the originating file path for diagnostics; it is not required for
// correctness.
func NewStreamContent(path string, open StreamOpener) Content {
	return Content{open: open, isFile: path != "", path: path}
}

// IsBuffer reports whether the content is held fully in memory.
func (c Content) IsBuffer() bool { return c.open == nil }

// IsStream reports whether the content is a lazy stream.
func (c Content) IsStream() bool { return c.open != nil }

// Path returns the originating file path for stream content, or "".
func (c Content) Path() string { return c.path }

// Bytes materializes the content fully into memory, opening and draining
// the stream if necessary. Buffer content returns its slice directly
// without copying.
func (c Content) Bytes() ([]byte, error) {
	if c.IsBuffer() {
		return c.buf, nil
	}
	r, err := c.open()
	if err != nil {
		return nil, fmt.Errorf("asset: open stream: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Reader returns a fresh io.ReadCloser over the content regardless of its
// underlying representation.
func (c Content) Reader() (io.ReadCloser, error) {
	if c.IsBuffer() {
		return io.NopCloser(newByteReader(c.buf)), nil
	}
	return c.open()
}

func newByteReader(b []byte) io.Reader {
	return &sliceReader{b: b}
}

type sliceReader struct {
	b   []byte
	pos int
}

func (s *sliceReader) Read(p []byte) (int, error) {
	if s.pos >= len(s.b) {
		return 0, io.EOF
	}
	n := copy(p, s.b[s.pos:])
	s.pos += n
	return n, nil
}

// AST is an opaque handle to a parsed intermediate representation owned by
// whichever transformer last produced it. The core never inspects its
// contents; it only tracks which transformer produced it so canReuseAST
// can be consulted.
type AST struct {
	ProducerID string
	Value      interface{}
}

// TransformerResult is the payload a transformer emits per produced asset
// (spec §3).
type TransformerResult struct {
	Type            string
	Content         Content
	AST             *AST
	Map             []byte
	Dependencies    []string
	ConnectedFiles  []ConnectedFile
	Env             Env
	IsIsolated      bool
	Meta            map[string]interface{}
}

// Asset is the internal, content-addressed artifact produced by a
// transformer (spec §3 "Asset (internal)").
type Asset struct {
	IDBase         string
	ID             string
	FilePath       string
	Type           string
	Env            Env
	Content        Content
	Hash           string
	AST            *AST
	Map            []byte
	Stats          Stats
	SideEffects    bool
	Dependencies   []string
	ConnectedFiles []ConnectedFile
	Meta           map[string]interface{}
}

// Rehash recomputes Hash from the current Content and stores it. Per the
// invariant in spec §3, Hash must always be a pure function of Content;
// callers that mutate Content must call Rehash before the asset is
// considered stable.
func (a *Asset) Rehash() error {
	b, err := a.Content.Bytes()
	if err != nil {
		return fmt.Errorf("asset: rehash %s: %w", a.FilePath, err)
	}
	a.Hash = fingerprint.FingerprintBytes(b)
	a.Stats.Size = int64(len(b))
	return nil
}

// CacheEntry is the persisted result of a successful asset request (spec
// §3). InitialAssets is present only when a post-processing step rewrote
// the pipeline's outputs, recording the pre-post-process assets so a future
// cache check can match either representation.
type CacheEntry struct {
	FilePath      string   `json:"filePath"`
	Env           Env      `json:"env"`
	Hash          string   `json:"hash"`
	Assets        []*Asset `json:"assets"`
	InitialAssets []*Asset `json:"initialAssets,omitempty"`
}

// ConfigRequestResult is the result of resolving configuration for a file
// (spec §3).
type ConfigRequestResult struct {
	ResolvedPath             string            `json:"resolvedPath,omitempty"`
	IncludedFiles            []string          `json:"includedFiles"`
	WatchGlob                string            `json:"watchGlob,omitempty"`
	ShouldInvalidateOnStartup bool             `json:"shouldInvalidateOnStartup"`
	DevDeps                  map[string]string `json:"devDeps,omitempty"` // module specifier -> version stamp
}

// AssetRequestInput is the public request shape accepted by the Asset
// Request Driver (spec §3).
type AssetRequestInput struct {
	FilePath    string
	Env         Env
	Code        *string // non-nil for inline code blobs
	SideEffects *bool
	OptionsRef  interface{} // excluded from request identity
}

// IdentityFingerprint computes the content-derived identity key fragment
// for this input, excluding OptionsRef as required by spec §3.
func (in AssetRequestInput) IdentityFingerprint() (string, error) {
	type identity struct {
		FilePath    string  `json:"filePath"`
		Env         Env     `json:"env"`
		Code        *string `json:"code,omitempty"`
		SideEffects *bool   `json:"sideEffects,omitempty"`
	}
	return fingerprint.Fingerprint(identity{
		FilePath:    in.FilePath,
		Env:         in.Env,
		Code:        in.Code,
		SideEffects: in.SideEffects,
	})
}

// IDBase returns the content hash for inline-code inputs, or the file path
// for file inputs — the rule from spec §9 "Inline-code identity".
func (in AssetRequestInput) IDBase() string {
	if in.Code != nil {
		return fingerprint.FingerprintString(*in.Code)
	}
	return in.FilePath
}
