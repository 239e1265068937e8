// Package transformers provides the built-in transformer chains wired into
// the default resolver.Registry: a JS/TS dependency-collector transformer
// and a raw-asset passthrough fallback. Grounded on the teacher's
// internal/compress.RulesMiddleware — a regexp-driven text-rule engine
// gated by Name()/config — retargeted from "compress message text" to
// "collect module specifiers from source text".
package transformers

import (
	"context"
	"regexp"

	"github.com/thornforge/buildcore/internal/asset"
	"github.com/thornforge/buildcore/internal/transform"
)

// requireRe matches CommonJS require("x") / require('x') calls.
var requireRe = regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`)

// importRe matches ES module import ... from "x" / "x" side-effect imports.
var importRe = regexp.MustCompile(`import\s+(?:[^'"]*\sfrom\s+)?['"]([^'"]+)['"]`)

// exportFromRe matches `export ... from "x"` re-export specifiers.
var exportFromRe = regexp.MustCompile(`export\s+(?:\*|\{[^}]*\})\s+from\s+['"]([^'"]+)['"]`)

// JSTransformer is the default pipeline for .js/.jsx/.ts/.tsx/.mjs/.cjs
// extensions (spec §6 "Resolver: resolve(env, moduleSpecifier, sourcePath)").
// It does not parse a real AST; it collects dependency specifiers with the
// same regexp-over-text approach the teacher uses for compression rules,
// and passes the source content through unchanged.
type JSTransformer struct{}

// NewJSTransformer creates a JSTransformer.
func NewJSTransformer() *JSTransformer { return &JSTransformer{} }

func (t *JSTransformer) Name() string { return "js" }

func (t *JSTransformer) Transform(ctx context.Context, a *asset.Asset, cfg interface{}) ([]transform.Result, error) {
	src, err := a.Content.Bytes()
	if err != nil {
		return nil, err
	}

	deps := collectSpecifiers(src)

	return []transform.Result{transform.Emitted(asset.TransformerResult{
		Type:         a.Type,
		Content:      asset.NewBufferContent(src),
		Dependencies: deps,
		Env:          a.Env,
	})}, nil
}

// collectSpecifiers scans src for require()/import/export-from specifiers,
// de-duplicating while preserving first-seen order.
func collectSpecifiers(src []byte) []string {
	seen := make(map[string]bool)
	var deps []string

	add := func(matches [][]byte) {
		for _, m := range matches {
			spec := string(m)
			if !seen[spec] {
				seen[spec] = true
				deps = append(deps, spec)
			}
		}
	}

	add(firstSubmatches(requireRe, src))
	add(firstSubmatches(importRe, src))
	add(firstSubmatches(exportFromRe, src))

	return deps
}

func firstSubmatches(re *regexp.Regexp, src []byte) [][]byte {
	all := re.FindAllSubmatch(src, -1)
	out := make([][]byte, 0, len(all))
	for _, m := range all {
		if len(m) > 1 {
			out = append(out, m[1])
		}
	}
	return out
}
