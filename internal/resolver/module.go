package resolver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/thornforge/buildcore/internal/asset"
	"github.com/thornforge/buildcore/internal/transform"
)

// FS is the minimal filesystem surface Resolver needs, letting callers
// substitute the configured `inputFS` (spec §6 "Configuration options
// recognized") in place of the real disk.
type FS interface {
	Stat(path string) (os.FileInfo, error)
}

// osFS is the default FS backed by the real filesystem.
type osFS struct{}

func (osFS) Stat(path string) (os.FileInfo, error) { return os.Stat(path) }

// Resolver resolves a dependency specifier from a source file to a
// concrete file path (spec §6 "Resolver: resolve(env, moduleSpecifier,
// sourcePath) -> filePath").
type Resolver struct {
	fs          FS
	extensions  []string // probed in order for extensionless specifiers
	nodeModules string   // directory name searched when walking up for bare specifiers
}

// NewResolver creates a Resolver over fs, probing candidateExts (without
// leading dots) in order for extensionless specifiers.
func NewResolver(fs FS, candidateExts []string) *Resolver {
	if fs == nil {
		fs = osFS{}
	}
	return &Resolver{fs: fs, extensions: candidateExts, nodeModules: "node_modules"}
}

// Resolve locates moduleSpecifier relative to sourcePath. Relative and
// absolute specifiers are probed directly (and with each candidate
// extension, and as directory index files); bare specifiers are searched
// in node_modules directories walking up from sourcePath's directory, the
// way Node's CommonJS resolution algorithm does. env is accepted for
// interface symmetry with the spec's collaborator contract; this
// implementation does not yet vary resolution by environment.
func (r *Resolver) Resolve(env asset.Env, moduleSpecifier, sourcePath string) (string, error) {
	if isRelativeOrAbsolute(moduleSpecifier) {
		base := moduleSpecifier
		if !filepath.IsAbs(base) {
			base = filepath.Join(filepath.Dir(sourcePath), moduleSpecifier)
		}
		if found, ok := r.probe(base); ok {
			return found, nil
		}
		return "", fmt.Errorf("resolver: %w: %q from %q", ErrModuleNotFound, moduleSpecifier, sourcePath)
	}

	for dir := filepath.Dir(sourcePath); ; {
		candidate := filepath.Join(dir, r.nodeModules, moduleSpecifier)
		if found, ok := r.probe(candidate); ok {
			return found, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("resolver: %w: %q from %q", ErrModuleNotFound, moduleSpecifier, sourcePath)
}

// probe tries base as a literal file, then base+ext for each configured
// extension, then base/index+ext (directory-index resolution).
func (r *Resolver) probe(base string) (string, bool) {
	if info, err := r.fs.Stat(base); err == nil && !info.IsDir() {
		return base, true
	}
	for _, ext := range r.extensions {
		candidate := base + "." + ext
		if info, err := r.fs.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	for _, ext := range r.extensions {
		candidate := filepath.Join(base, "index."+ext)
		if info, err := r.fs.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

func isRelativeOrAbsolute(specifier string) bool {
	return strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../") || filepath.IsAbs(specifier)
}

// AsResolveFunc adapts Resolve to transform.ResolveFunc's simpler
// (from, to) -> filePath shape for a single asset request's fixed
// environment (spec §4.5(a)).
func (r *Resolver) AsResolveFunc(env asset.Env) transform.ResolveFunc {
	return func(from, to string) (string, error) {
		return r.Resolve(env, to, from)
	}
}
