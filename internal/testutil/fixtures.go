package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/thornforge/buildcore/internal/asset"
)

// SamplePackageManifest returns a minimal package.json body declaring the
// given dev-dependencies, suitable for configservice resolution tests.
func SamplePackageManifest(devDeps map[string]string) []byte {
	manifest := map[string]interface{}{
		"name":            "fixture-project",
		"version":         "1.0.0",
		"devDependencies": devDeps,
	}
	data, _ := json.Marshal(manifest)
	return data
}

// SampleJSAsset returns a small CommonJS source body importing n sibling
// modules, for exercising dependency collection and resolution.
func SampleJSAsset(n int) []byte {
	var body string
	for i := 0; i < n; i++ {
		body += fmt.Sprintf("const m%d = require('./mod%d');\n", i, i)
	}
	body += "module.exports = { ok: true };\n"
	return []byte(body)
}

// SampleESMAsset returns a small ES module source body with n named
// imports, for exercising the ESM resolution path.
func SampleESMAsset(n int) []byte {
	var body string
	for i := 0; i < n; i++ {
		body += fmt.Sprintf("import mod%d from './mod%d';\n", i, i)
	}
	body += "export default { ok: true };\n"
	return []byte(body)
}

// SampleAssetRequestInput builds an AssetRequestInput for filePath with a
// default browser Env, for driving the Asset Request Driver in tests.
func SampleAssetRequestInput(filePath string) asset.AssetRequestInput {
	return asset.AssetRequestInput{
		FilePath: filePath,
		Env: asset.Env{
			Context:    "browser",
			OutputMode: "esmodule",
		},
	}
}

// SampleConfigRequestResult builds a ConfigRequestResult as configservice
// would for a manifest at resolvedPath declaring devDeps.
func SampleConfigRequestResult(resolvedPath string, devDeps map[string]string) asset.ConfigRequestResult {
	return asset.ConfigRequestResult{
		ResolvedPath:  resolvedPath,
		IncludedFiles: []string{resolvedPath},
		DevDeps:       devDeps,
	}
}
