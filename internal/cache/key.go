package cache

import (
	"fmt"

	"github.com/thornforge/buildcore/internal/asset"
	"github.com/thornforge/buildcore/internal/fingerprint"
)

// Key computes the deterministic cache key for a file-backed asset request:
// fingerprint(filePath + env), per spec §6 "Persisted state". Inline-code
// requests must never call this — see asset.AssetRequestInput.IDBase for
// why filePath alone is insufficient for those.
func Key(filePath string, env asset.Env) (string, error) {
	type keyed struct {
		FilePath string   `json:"filePath"`
		Env      asset.Env `json:"env"`
	}
	fp, err := fingerprint.Fingerprint(keyed{FilePath: filePath, Env: env})
	if err != nil {
		return "", fmt.Errorf("cache: key: %w", err)
	}
	return fp, nil
}
