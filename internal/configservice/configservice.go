// Package configservice resolves the configuration governing a source
// file: which config file applies, what other files its result depends
// on, and the declared dev-dependency versions that should drive version
// sub-requests (spec §3 "ConfigRequestResult", §4.6 step 2).
package configservice

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/thornforge/buildcore/internal/asset"
)

// FS is the filesystem surface ConfigService needs: stat for upward
// directory search, read for parsing the file once found.
type FS interface {
	Stat(path string) (os.FileInfo, error)
	ReadFile(path string) ([]byte, error)
}

type osFS struct{}

func (osFS) Stat(path string) (os.FileInfo, error)  { return os.Stat(path) }
func (osFS) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

// packageManifest is the subset of package.json fields configservice
// reads. Unknown fields are ignored by encoding/json, not an error.
type packageManifest struct {
	DevDependencies map[string]string `json:"devDependencies"`
	Dependencies    map[string]string `json:"dependencies"`
}

// ConfigService resolves the nearest manifest file above a given source
// path, the way Node tooling locates the package.json governing a file.
type ConfigService struct {
	fs           FS
	manifestName string
}

// New creates a ConfigService that searches for manifestName (typically
// "package.json") starting at each resolved file's directory and walking
// up to the filesystem root.
func New(fs FS, manifestName string) *ConfigService {
	if fs == nil {
		fs = osFS{}
	}
	if manifestName == "" {
		manifestName = "package.json"
	}
	return &ConfigService{fs: fs, manifestName: manifestName}
}

// Resolve produces the ConfigRequestResult for filePath (spec §3). When no
// manifest is found, the result carries ShouldInvalidateOnStartup=true and
// a WatchGlob at the nearest searched directory, so a manifest created
// later is picked up without requiring a fresh process.
func (c *ConfigService) Resolve(filePath string) (asset.ConfigRequestResult, error) {
	dir := filepath.Dir(filePath)
	firstSearched := dir

	for {
		candidate := filepath.Join(dir, c.manifestName)
		info, err := c.fs.Stat(candidate)
		if err == nil && !info.IsDir() {
			return c.readManifest(candidate)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return asset.ConfigRequestResult{
		IncludedFiles:             nil,
		WatchGlob:                 filepath.Join(firstSearched, c.manifestName),
		ShouldInvalidateOnStartup: true,
	}, nil
}

func (c *ConfigService) readManifest(path string) (asset.ConfigRequestResult, error) {
	data, err := c.fs.ReadFile(path)
	if err != nil {
		return asset.ConfigRequestResult{}, fmt.Errorf("configservice: reading %s: %w", path, err)
	}

	var manifest packageManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		// A malformed manifest is not fatal to the whole build: treat it
		// as "found but contributes no dev-deps", matching the driver's
		// general posture that config resolution failures degrade rather
		// than abort (spec §7 propagation policy is about transformer
		// hooks, not this best-effort metadata).
		return asset.ConfigRequestResult{
			ResolvedPath:              path,
			IncludedFiles:             []string{path},
			ShouldInvalidateOnStartup: false,
		}, nil
	}

	devDeps := make(map[string]string, len(manifest.DevDependencies))
	for name, version := range manifest.DevDependencies {
		devDeps[name] = version
	}

	return asset.ConfigRequestResult{
		ResolvedPath:              path,
		IncludedFiles:             []string{path},
		ShouldInvalidateOnStartup: false,
		DevDeps:                   devDeps,
	}, nil
}
