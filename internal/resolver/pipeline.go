// Package resolver answers the two lookups the pipeline runner depends on
// (spec §6 "Consumed from collaborators"): resolving a file path to its
// ordered transformer pipeline, and resolving a dependency specifier to a
// concrete file path.
package resolver

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/thornforge/buildcore/internal/transform"
)

// Registry maps file extensions to transformer pipelines and interns the
// resulting Handles, grounded on the same map-plus-priority-fallback shape
// as a routing table: declare pipelines once, look them up by key, and
// never construct a new Handle for an already-registered transformer.
// Because ResolvePipeline always returns the identical slice/handle
// pointers for a given extension, two resolutions of the same logical
// pipeline are reference-equal, which is the shallow-equality contract
// spec §9 "Shallow pipeline equality" requires of the runner.
type Registry struct {
	mu       sync.RWMutex
	byExt    map[string][]*transform.Handle
	handles  map[string]*transform.Handle // transformer id -> interned handle
	fallback []*transform.Handle
}

// NewRegistry creates an empty Registry. Use Register to declare pipelines
// before the first ResolvePipeline call.
func NewRegistry() *Registry {
	return &Registry{
		byExt:   make(map[string][]*transform.Handle),
		handles: make(map[string]*transform.Handle),
	}
}

// Register declares the ordered pipeline of transformers for every
// extension in exts (each without its leading dot, e.g. "js", "ts").
// Transformers are interned by id: registering the same id twice returns
// the original Handle rather than constructing a second one, so pipelines
// sharing a transformer stay reference-comparable.
func (r *Registry) Register(exts []string, transformers ...transform.Transformer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pipeline := make([]*transform.Handle, 0, len(transformers))
	for _, t := range transformers {
		pipeline = append(pipeline, r.intern(t))
	}
	for _, ext := range exts {
		r.byExt[normalizeExt(ext)] = pipeline
	}
}

// RegisterFallback declares the pipeline used for extensions with no
// explicit registration (e.g. a generic "raw asset" passthrough).
func (r *Registry) RegisterFallback(transformers ...transform.Transformer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pipeline := make([]*transform.Handle, 0, len(transformers))
	for _, t := range transformers {
		pipeline = append(pipeline, r.intern(t))
	}
	r.fallback = pipeline
}

// intern must be called with r.mu held.
func (r *Registry) intern(t transform.Transformer) *transform.Handle {
	id := t.Name()
	if h, ok := r.handles[id]; ok {
		return h
	}
	h := &transform.Handle{ID: id, Transformer: t}
	r.handles[id] = h
	return h
}

// ResolvePipeline implements transform.PipelineResolver. It never returns a
// zero-length pipeline for a path with no registration and no fallback;
// that case is a configuration error in the caller, surfaced as
// ErrNoPipeline (spec §4.5 "Empty pipelines are a programming error").
func (r *Registry) ResolvePipeline(filePath string) ([]*transform.Handle, error) {
	ext := normalizeExt(strings.TrimPrefix(filepath.Ext(filePath), "."))

	r.mu.RLock()
	defer r.mu.RUnlock()

	if pipeline, ok := r.byExt[ext]; ok {
		return pipeline, nil
	}
	if len(r.fallback) > 0 {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("resolver: %w: no pipeline registered for %q (ext %q)", ErrNoPipeline, filePath, ext)
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
