// Package transform implements the pipeline runner (spec §4.5): it applies
// an ordered transformer chain to an input asset, handling config loading,
// AST reuse/reconciliation, pipeline jumps on type change, lazy generate,
// and post-processing.
package transform

import (
	"context"

	"github.com/thornforge/buildcore/internal/asset"
)

// Options is the subset of global process options a transformer hook may
// need (spec §6 "Configuration options recognized").
type Options struct {
	ProjectRoot string
	CacheDir    string
	Data        map[string]interface{}
}

// ResolveFunc resolves a module specifier relative to a source file,
// backed by the resolver subsystem (spec §4.5(a)).
type ResolveFunc func(from, to string) (string, error)

// GenerateFunc materializes an asset's content and source map from
// whatever AST its producing transformer holds. A nil GenerateFunc means
// the producing transformer offered no generate hook.
type GenerateFunc func() (asset.Content, []byte, error)

// Result is the tagged variant a Transformer's Transform hook returns for
// each produced child: either a fresh TransformerResult, or a mutable view
// onto an existing Asset that the core normalizes at the pipeline boundary
// (spec §9 "Variant-typed transformer results"). Exactly one field is set.
type Result struct {
	Emitted *asset.TransformerResult
	View    *asset.Asset
}

// Emitted wraps a TransformerResult produced fresh by a transformer.
func Emitted(r asset.TransformerResult) Result { return Result{Emitted: &r} }

// View wraps a mutable asset view a transformer chose to hand back
// directly instead of constructing a TransformerResult.
func View(a *asset.Asset) Result { return Result{View: a} }

func (r Result) normalize() asset.TransformerResult {
	if r.Emitted != nil {
		return *r.Emitted
	}
	v := r.View
	return asset.TransformerResult{
		Type:           v.Type,
		Content:        v.Content,
		AST:            v.AST,
		Map:            v.Map,
		Dependencies:   v.Dependencies,
		ConnectedFiles: v.ConnectedFiles,
		Env:            v.Env,
		Meta:           v.Meta,
	}
}

// Transformer is the only hook every plugin must implement. The remaining
// hooks (GetConfig, CanReuseAST, Parse, Generate, PostProcess) are optional
// and detected via the interfaces below, following the same pattern as
// io.Reader/io.WriterTo-style capability detection — a transformer
// implements only the subset it needs.
type Transformer interface {
	Name() string
	Transform(ctx context.Context, a *asset.Asset, cfg interface{}) ([]Result, error)
}

// ConfigLoader is implemented by transformers that read their own
// configuration from the project (spec §4.5(a)).
type ConfigLoader interface {
	GetConfig(ctx context.Context, a *asset.Asset, options Options, resolve ResolveFunc) (interface{}, error)
}

// ASTReuser is implemented by transformers that can consume an AST
// produced by the previous step in the chain without a round-trip through
// generate (spec §4.5(b)).
type ASTReuser interface {
	CanReuseAST(a *asset.AST) bool
}

// Parser is implemented by transformers that can produce an AST from raw
// content.
type Parser interface {
	Parse(ctx context.Context, a *asset.Asset, cfg interface{}) (*asset.AST, error)
}

// Generator is implemented by transformers that can materialize content
// and a source map from their own AST.
type Generator interface {
	Generate(ctx context.Context, a *asset.Asset, cfg interface{}) (asset.Content, []byte, error)
}

// PostProcessor is implemented by transformers that want to see every
// asset produced by their own step before it is returned (spec §4.5(e)).
type PostProcessor interface {
	PostProcess(ctx context.Context, assets []*asset.Asset, cfg interface{}, options Options, resolve ResolveFunc) ([]*asset.Asset, error)
}

// ConnectedFileChecker re-validates an asset's connected files. Satisfied
// structurally by assetstore.Store.
type ConnectedFileChecker interface {
	CheckConnectedFiles(files []asset.ConnectedFile) (bool, error)
}

// Handle is a stable, interned reference to a configured Transformer
// instance. Pipelines are compared by shallow (reference) equality on
// Handles, per spec §9 "Shallow pipeline equality" — resolver.Registry
// is responsible for interning handles so that two resolutions of the same
// logical pipeline yield pointer-equal slices of the same Handles.
type Handle struct {
	ID          string
	Transformer Transformer
}

// PipelineResolver resolves a file path's ordered transformer chain,
// backed by the resolver subsystem (spec §6 "Config service").
type PipelineResolver interface {
	ResolvePipeline(filePath string) ([]*Handle, error)
}

// shallowEqual reports whether two pipelines reference the identical
// sequence of Handles.
func shallowEqual(a, b []*Handle) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
