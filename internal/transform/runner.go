package transform

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/thornforge/buildcore/internal/asset"
	"github.com/thornforge/buildcore/internal/fingerprint"
)

// Runner applies a resolved transformer pipeline to an input asset,
// recursing into child assets produced at each step (spec §4.5).
type Runner struct {
	resolver PipelineResolver
	options  Options
	resolve  ResolveFunc
	files    ConnectedFileChecker
}

// New creates a Runner. resolver recomputes a pipeline when a produced
// asset's type differs from its input's; resolve backs transformer
// GetConfig/PostProcess hooks; files validates cache-reused assets.
func New(resolver PipelineResolver, options Options, resolve ResolveFunc, files ConnectedFileChecker) *Runner {
	return &Runner{resolver: resolver, options: options, resolve: resolve, files: files}
}

// Run executes pipeline against input, returning the finalized assets and,
// if any step's postProcess rewrote its output, the pre-post-process
// assets as initialAssets (spec §3 "CacheEntry.initialAssets").
// cacheEntry, when non-nil, lets per-child results short-circuit via
// content-hash match against a prior run.
func (r *Runner) Run(ctx context.Context, input *asset.Asset, pipeline []*Handle, cacheEntry *asset.CacheEntry) (assets []*asset.Asset, initialAssets []*asset.Asset, err error) {
	return r.runStep(ctx, input, pipeline, nil, cacheEntry)
}

// runStep implements one call frame of the recursive pipeline walk
// described in spec §9 "Recursive pipeline walk": each call owns exactly
// one transformer (pipeline[0]) and returns the fully-finalized set of
// assets descending from it, already passed through its postProcess hook
// if it declares one. Go's growable goroutine stacks make ordinary
// recursion safe here; pipeline/type-chain depth in practice never
// approaches a level where an explicit heap-allocated stack would matter,
// and recursion keeps each step's postProcess scope trivially correct.
func (r *Runner) runStep(ctx context.Context, a *asset.Asset, pipeline []*Handle, previousGenerate GenerateFunc, cacheEntry *asset.CacheEntry) ([]*asset.Asset, []*asset.Asset, error) {
	if len(pipeline) == 0 {
		return nil, nil, ErrEmptyPipeline
	}
	head := pipeline[0]
	transformer := head.Transformer

	cfg, err := r.loadConfig(ctx, transformer, a)
	if err != nil {
		return nil, nil, fmt.Errorf("transform: %s: getConfig: %w", transformer.Name(), err)
	}

	if err := r.reconcileAST(ctx, transformer, a, cfg, previousGenerate); err != nil {
		return nil, nil, err
	}

	results, err := transformer.Transform(ctx, a, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("transform: %s: transform: %w", transformer.Name(), err)
	}

	var finals, initials []*asset.Asset
	for i, res := range results {
		tr := res.normalize()
		child, err := buildChildAsset(a, tr, i)
		if err != nil {
			return nil, nil, fmt.Errorf("transform: %s: building child %d: %w", transformer.Name(), i, err)
		}

		if cacheEntry != nil {
			reused, ok, err := tryCacheReuse(cacheEntry, child, r.files)
			if err != nil {
				return nil, nil, fmt.Errorf("transform: cache reuse check: %w", err)
			}
			if ok {
				finals = append(finals, reused)
				continue
			}
		}

		nextPipeline := pipeline
		if tr.Type != a.Type {
			hypothetical := withExt(a.FilePath, tr.Type)
			np, err := r.resolver.ResolvePipeline(hypothetical)
			if err != nil {
				return nil, nil, fmt.Errorf("transform: resolving pipeline for %s: %w", hypothetical, err)
			}
			nextPipeline = np
		}

		genClosure := r.makeGenerate(ctx, transformer, child, cfg)

		var childFinals, childInitials []*asset.Asset
		if shallowEqual(nextPipeline, pipeline) {
			if len(pipeline) == 1 {
				finalized, err := r.finalize(ctx, child, transformer, cfg)
				if err != nil {
					return nil, nil, err
				}
				childFinals = []*asset.Asset{finalized}
			} else {
				childFinals, childInitials, err = r.runStep(ctx, child, pipeline[1:], genClosure, cacheEntry)
				if err != nil {
					return nil, nil, err
				}
			}
		} else {
			childFinals, childInitials, err = r.runStep(ctx, child, nextPipeline, genClosure, cacheEntry)
			if err != nil {
				return nil, nil, err
			}
		}
		finals = append(finals, childFinals...)
		initials = append(initials, childInitials...)
	}

	if pp, ok := transformer.(PostProcessor); ok {
		preProcess := finals
		ppOut, err := pp.PostProcess(ctx, finals, cfg, r.options, r.resolve)
		if err != nil {
			return nil, nil, fmt.Errorf("transform: %s: postProcess: %w", transformer.Name(), err)
		}
		if ppOut != nil {
			initials = append(initials, preProcess...)
			finals = ppOut
		}
	}

	return finals, initials, nil
}

func (r *Runner) loadConfig(ctx context.Context, transformer Transformer, a *asset.Asset) (interface{}, error) {
	cl, ok := transformer.(ConfigLoader)
	if !ok {
		return nil, nil
	}
	return cl.GetConfig(ctx, a, r.options, r.resolve)
}

// reconcileAST implements spec §4.5(b). The two conditions run in
// sequence, not as an if/else: a transformer that forces a drop of the
// incoming AST is immediately eligible to parse its own fresh one in the
// same step.
func (r *Runner) reconcileAST(ctx context.Context, transformer Transformer, a *asset.Asset, cfg interface{}, previousGenerate GenerateFunc) error {
	if a.AST != nil {
		reusable := false
		if reuser, ok := transformer.(ASTReuser); ok {
			reusable = reuser.CanReuseAST(a.AST)
		}
		if !reusable {
			if previousGenerate == nil {
				return ErrMissingGenerate
			}
			content, mapBytes, err := previousGenerate()
			if err != nil {
				return fmt.Errorf("transform: materializing content before %s: %w", transformer.Name(), err)
			}
			a.Content = content
			a.Map = mapBytes
			a.AST = nil
			if err := a.Rehash(); err != nil {
				return fmt.Errorf("transform: rehashing %s: %w", a.FilePath, err)
			}
		}
	}

	if a.AST == nil {
		if parser, ok := transformer.(Parser); ok {
			ast, err := parser.Parse(ctx, a, cfg)
			if err != nil {
				return fmt.Errorf("transform: %s: parse: %w", transformer.Name(), err)
			}
			a.AST = ast
		}
	}
	return nil
}

// finalize materializes content for a terminal child asset if it still
// carries an AST (spec §4.5(d)(3), "lazy generate").
func (r *Runner) finalize(ctx context.Context, a *asset.Asset, transformer Transformer, cfg interface{}) (*asset.Asset, error) {
	if a.AST == nil {
		return a, nil
	}
	gen, ok := transformer.(Generator)
	if !ok {
		return nil, ErrMissingGenerate
	}
	content, mapBytes, err := gen.Generate(ctx, a, cfg)
	if err != nil {
		return nil, fmt.Errorf("transform: %s: generate: %w", transformer.Name(), err)
	}
	a.Content = content
	a.Map = mapBytes
	a.AST = nil
	if err := a.Rehash(); err != nil {
		return nil, fmt.Errorf("transform: rehashing %s: %w", a.FilePath, err)
	}
	return a, nil
}

// makeGenerate builds the GenerateFunc passed down as previousGenerate to
// the next step, or nil if transformer offers no generate hook.
func (r *Runner) makeGenerate(ctx context.Context, transformer Transformer, a *asset.Asset, cfg interface{}) GenerateFunc {
	gen, ok := transformer.(Generator)
	if !ok {
		return nil
	}
	return func() (asset.Content, []byte, error) {
		return gen.Generate(ctx, a, cfg)
	}
}

// buildChildAsset constructs the child asset for one TransformerResult,
// salted by its index among sibling results so distinct results sharing
// the same idBase still get distinct ids (spec §3 "idBase").
func buildChildAsset(parent *asset.Asset, tr asset.TransformerResult, salt int) (*asset.Asset, error) {
	env := tr.Env
	if env.IsZero() {
		env = parent.Env
	}
	child := &asset.Asset{
		IDBase:         parent.IDBase,
		FilePath:       parent.FilePath,
		Type:           tr.Type,
		Env:            env,
		Content:        tr.Content,
		AST:            tr.AST,
		Map:            tr.Map,
		Dependencies:   tr.Dependencies,
		ConnectedFiles: tr.ConnectedFiles,
		SideEffects:    parent.SideEffects,
		Meta:           tr.Meta,
	}

	id, err := fingerprint.Fingerprint(struct {
		IDBase string `json:"idBase"`
		Salt   int    `json:"salt"`
		Type   string `json:"type"`
	}{child.IDBase, salt, child.Type})
	if err != nil {
		return nil, fmt.Errorf("asset id: %w", err)
	}
	child.ID = id

	if err := child.Rehash(); err != nil {
		return nil, err
	}
	return child, nil
}

// tryCacheReuse implements spec §4.5(d)(1).
func tryCacheReuse(entry *asset.CacheEntry, child *asset.Asset, files ConnectedFileChecker) (*asset.Asset, bool, error) {
	candidates := entry.InitialAssets
	if len(candidates) == 0 {
		candidates = entry.Assets
	}
	for _, cand := range candidates {
		if cand.Hash != child.Hash {
			continue
		}
		ok, err := files.CheckConnectedFiles(cand.ConnectedFiles)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return cand, true, nil
		}
	}
	return nil, false, nil
}

// withExt returns path with its extension replaced by newType, used to
// resolve a hypothetical pipeline for a type-changed child (spec §4.5(d)(2)).
func withExt(path, newType string) string {
	trimmed := strings.TrimSuffix(path, filepath.Ext(path))
	return trimmed + "." + newType
}
