// Package driver implements the Asset Request Driver (spec §4.6): the
// public entry point that resolves configuration, invokes the pipeline
// runner either in-process or via a worker farm, and registers every
// invalidation edge the request graph needs to replay the build correctly
// on the next change. It is the integration point tying together the
// request graph, cache, asset store, resolver, and configuration service.
package driver

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thornforge/buildcore/internal/asset"
	"github.com/thornforge/buildcore/internal/assetstore"
	"github.com/thornforge/buildcore/internal/cache"
	"github.com/thornforge/buildcore/internal/configservice"
	"github.com/thornforge/buildcore/internal/fingerprint"
	"github.com/thornforge/buildcore/internal/requestgraph"
	"github.com/thornforge/buildcore/internal/resolver"
	"github.com/thornforge/buildcore/internal/transform"
)

// Farm dispatches a pipeline run to an out-of-process worker instead of
// running it in the current goroutine (spec §4.6 step 3, §5 "Shared
// resources": "the worker farm is the only component that escapes the main
// process"). Inputs must be structurally serializable; a Farm
// implementation that shells out or calls over the network enforces that
// itself. A nil Farm means every request runs in-process.
type Farm interface {
	RunTransform(ctx context.Context, configCachePath string, input asset.AssetRequestInput) (RunResult, error)
}

// RunResult is what either in-process execution or a Farm dispatch
// produces: the asset result plus any config sub-requests discovered while
// producing it (spec §4.6 step 3: "Both yield { assets, configRequests }").
type RunResult struct {
	Assets        []*asset.Asset
	InitialAssets []*asset.Asset
	ConfigRequest *asset.ConfigRequestResult
}

// Options mirrors spec §6 "Configuration options recognized".
type Options struct {
	Cache       bool   // opt in to cache lookup/storage
	CacheDir    string
	LockFile    string // when set, drives version-request invalidation
	ProjectRoot string
}

// Driver is the Asset Request Driver. It owns no long-lived request state
// itself; every field is a collaborator wired together once at startup.
type Driver struct {
	graph         *requestgraph.Graph
	configService *configservice.ConfigService
	cache         *cache.Cache
	store         *assetstore.Store
	pipelines     *resolver.Registry
	modules       *resolver.Resolver
	farm          Farm
	options       Options
}

// New wires a Driver from its collaborators. farm may be nil to always run
// in-process.
func New(graph *requestgraph.Graph, configService *configservice.ConfigService, ch *cache.Cache, store *assetstore.Store, pipelines *resolver.Registry, modules *resolver.Resolver, farm Farm, options Options) *Driver {
	return &Driver{
		graph:         graph,
		configService: configService,
		cache:         ch,
		store:         store,
		pipelines:     pipelines,
		modules:       modules,
		farm:          farm,
		options:       options,
	}
}

// SetFarm wires (or rewires) the Farm a Driver dispatches through after
// construction. This two-phase setup lets a Farm's own RunTransformFunc be
// bound to this same Driver's RunInProcess, which would otherwise be a
// construction-order cycle (the Farm needs the Driver to exist first).
func (d *Driver) SetFarm(farm Farm) {
	d.farm = farm
}

// RunInProcess executes the pipeline runner directly, bypassing whatever
// Farm is configured (spec §4.5). Its signature matches
// farm.RunTransformFunc, so a worker farm can wrap this in-process
// execution with its circuit-breaker/rate-limit/retry policy until a real
// out-of-process transport exists (see internal/farm's doc comment).
func (d *Driver) RunInProcess(ctx context.Context, configCachePath string, input asset.AssetRequestInput) (RunResult, error) {
	return d.runInProcess(ctx, input)
}

// RunAssetRequest is the public entry (spec §6 "runAssetRequest(input) ->
// Promise<Assets>"), driven as an asset_request node of the request graph.
func (d *Driver) RunAssetRequest(ctx context.Context, input asset.AssetRequestInput) ([]*asset.Asset, error) {
	reqID, err := assetRequestID(input)
	if err != nil {
		return nil, fmt.Errorf("driver: computing request id: %w", err)
	}

	result, err := d.graph.RunRequest(requestgraph.Request{
		ID: reqID,
		Run: func(api *requestgraph.API) (interface{}, error) {
			return d.runAssetRequest(ctx, api, input)
		},
	})
	if err != nil {
		return nil, err
	}
	return result.([]*asset.Asset), nil
}

func assetRequestID(input asset.AssetRequestInput) (string, error) {
	fp, err := input.IdentityFingerprint()
	if err != nil {
		return "", err
	}
	return "asset_request:" + fp, nil
}

// runAssetRequest implements spec §4.6 steps 1-8 inside the request
// graph's Run callback, so invalidation edges registered via api are
// committed atomically with the request's success.
func (d *Driver) runAssetRequest(ctx context.Context, api *requestgraph.API, input asset.AssetRequestInput) ([]*asset.Asset, error) {
	started := time.Now()

	// Step 1: register update-invalidation on the source file itself,
	// unless this is an inline-code request with no backing file.
	if input.Code == nil {
		realPath, err := realpath(input.FilePath)
		if err != nil {
			return nil, fmt.Errorf("driver: realpath %s: %w", input.FilePath, err)
		}
		api.InvalidateOnFileUpdate(realPath)
		input.FilePath = realPath
	}

	// Step 2: resolve configuration via a config_request child node.
	configResult, cachePath, err := d.resolveConfig(api, input)
	if err != nil {
		return nil, err
	}

	// Cache lookup, skipped for inline code (spec §4.3, §8 "boundary
	// behaviors") and when the caller opted out.
	var cacheKey string
	useCache := d.options.Cache && d.cache != nil && input.Code == nil
	if useCache {
		cacheKey, err = cache.Key(input.FilePath, input.Env)
		if err != nil {
			return nil, fmt.Errorf("driver: cache key: %w", err)
		}
		if entry, err := d.cache.Get(cacheKey); err != nil {
			return nil, fmt.Errorf("driver: cache lookup: %w", err)
		} else if entry != nil {
			log.Debug().Str("filePath", input.FilePath).Msg("driver: cache hit")
			return entry.Assets, nil
		}
	}

	// Step 3: run the pipeline, in-process or via the worker farm.
	run, err := d.dispatch(ctx, cachePath, input)
	if err != nil {
		return nil, err
	}

	// Step 4: per-asset connected-file invalidation.
	for _, a := range run.Assets {
		for _, cf := range a.ConnectedFiles {
			api.InvalidateOnFileUpdate(cf.FilePath)
			api.InvalidateOnFileDelete(cf.FilePath)
		}
	}

	// Step 5: register the config sub-request's own node (already done by
	// resolveConfig as a child of this request); nothing further here
	// beyond what dispatch's own ConfigRequest (if any) contributes.
	if run.ConfigRequest != nil {
		configResult = *run.ConfigRequest
	}

	// Step 6: version_request children for declared dev-dependencies.
	if err := d.registerVersionRequests(api, configResult); err != nil {
		return nil, err
	}

	// Step 7: stats.time bookkeeping.
	elapsed := time.Since(started)
	for _, a := range run.Assets {
		a.Stats.Time = elapsed
	}

	if useCache {
		entry := &asset.CacheEntry{
			FilePath:      input.FilePath,
			Env:           input.Env,
			Hash:          entryHash(run.Assets),
			Assets:        run.Assets,
			InitialAssets: run.InitialAssets,
		}
		if err := d.cache.Set(cacheKey, entry); err != nil {
			return nil, fmt.Errorf("driver: cache store: %w", err)
		}
	}

	if d.store != nil {
		for _, a := range run.Assets {
			if err := d.store.Commit(a); err != nil {
				return nil, fmt.Errorf("driver: committing asset %s: %w", a.FilePath, err)
			}
		}
	}

	// Step 8.
	return run.Assets, nil
}

// resolveConfig runs the config_request child node (spec §4.6 step 2) and
// returns its result plus a serializable cache path suitable for a farm
// dispatch.
func (d *Driver) resolveConfig(api *requestgraph.API, input asset.AssetRequestInput) (asset.ConfigRequestResult, string, error) {
	configID := "config_request:" + input.FilePath

	v, err := api.RunRequest(requestgraph.Request{
		ID: configID,
		Run: func(childAPI *requestgraph.API) (interface{}, error) {
			result, err := d.configService.Resolve(input.FilePath)
			if err != nil {
				return nil, err
			}
			installConfigInvalidation(childAPI, result)
			return result, nil
		},
	})
	if err != nil {
		return asset.ConfigRequestResult{}, "", fmt.Errorf("driver: config request for %s: %w", input.FilePath, err)
	}

	result := v.(asset.ConfigRequestResult)

	cachePath := result.ResolvedPath
	if cachePath == "" {
		cachePath = filepath.Join(d.options.CacheDir, "no-config")
	}
	return result, cachePath, nil
}

// installConfigInvalidation installs the config_request node's own
// invalidation edges, derived from resolvedPath, includedFiles, watchGlob,
// and shouldInvalidateOnStartup (spec §4.6 step 5). The open question
// about api.invalidateOnFileUpdate being called twice (once here, once
// implicitly via includedFiles containing resolvedPath) is accepted as
// harmless: edges are a set (spec §9 "Open questions").
func installConfigInvalidation(api *requestgraph.API, result asset.ConfigRequestResult) {
	if result.ResolvedPath != "" {
		api.InvalidateOnFileUpdate(result.ResolvedPath)
		api.InvalidateOnFileDelete(result.ResolvedPath)
	}
	for _, f := range result.IncludedFiles {
		api.InvalidateOnFileUpdate(f)
		api.InvalidateOnFileDelete(f)
	}
	if result.WatchGlob != "" {
		api.InvalidateOnFileCreate(result.WatchGlob)
	}
	if result.ShouldInvalidateOnStartup {
		api.InvalidateOnStartup()
	}
}

// registerVersionRequests installs a version_request child per declared
// dev-dependency (spec §4.6 step 6). resolveFrom uses the resolved config
// path, a known coarse approximation the spec leaves as an open question
// rather than walking to the nearest package boundary (spec §9 "Open
// questions").
func (d *Driver) registerVersionRequests(api *requestgraph.API, configResult asset.ConfigRequestResult) error {
	if len(configResult.DevDeps) == 0 {
		return nil
	}
	for moduleSpecifier, version := range configResult.DevDeps {
		id := "version_request:" + moduleSpecifier + "@" + version
		_, err := api.RunRequest(requestgraph.Request{
			ID: id,
			Run: func(childAPI *requestgraph.API) (interface{}, error) {
				if d.options.LockFile != "" {
					childAPI.InvalidateOnFileUpdate(d.options.LockFile)
				}
				return version, nil
			},
		})
		if err != nil {
			return fmt.Errorf("driver: version request for %s: %w", moduleSpecifier, err)
		}
	}
	return nil
}

// dispatch runs the pipeline either in-process or through the farm (spec
// §4.6 step 3).
func (d *Driver) dispatch(ctx context.Context, cachePath string, input asset.AssetRequestInput) (RunResult, error) {
	if d.farm != nil {
		return d.farm.RunTransform(ctx, cachePath, input)
	}
	return d.runInProcess(ctx, input)
}

// runInProcess executes the pipeline runner directly (spec §4.5).
func (d *Driver) runInProcess(ctx context.Context, input asset.AssetRequestInput) (RunResult, error) {
	root, err := d.buildRootAsset(input)
	if err != nil {
		return RunResult{}, err
	}

	pipeline, err := d.pipelines.ResolvePipeline(input.FilePath)
	if err != nil {
		return RunResult{}, fmt.Errorf("driver: resolving pipeline: %w", err)
	}

	var cacheEntry *asset.CacheEntry
	if d.options.Cache && d.cache != nil && input.Code == nil {
		key, err := cache.Key(input.FilePath, input.Env)
		if err == nil {
			if entry, _ := d.cache.Get(key); entry != nil {
				cacheEntry = entry
			}
		}
	}

	resolveFunc := d.modules.AsResolveFunc(input.Env)
	runner := transform.New(d.pipelines, transform.Options{
		ProjectRoot: d.options.ProjectRoot,
		CacheDir:    d.options.CacheDir,
	}, resolveFunc, d.store)

	assets, initials, err := runner.Run(ctx, root, pipeline, cacheEntry)
	if err != nil {
		return RunResult{}, fmt.Errorf("driver: pipeline run for %s: %w", input.FilePath, err)
	}

	return RunResult{Assets: assets, InitialAssets: initials}, nil
}

// buildRootAsset loads input's content (from disk, buffering up to 5 MiB
// before falling back to a stream, per spec §5 "Buffering policy"; from
// the supplied inline code otherwise) and constructs the Asset the
// pipeline's first step consumes.
func (d *Driver) buildRootAsset(input asset.AssetRequestInput) (*asset.Asset, error) {
	var content asset.Content
	var hash string
	var size int64

	if input.Code != nil {
		content = asset.NewBufferContent([]byte(*input.Code))
		hash = fingerprint.FingerprintString(*input.Code)
		size = int64(len(*input.Code))
	} else {
		f, err := os.Open(input.FilePath)
		if err != nil {
			return nil, fmt.Errorf("driver: open %s: %w", input.FilePath, err)
		}

		var buffered []byte
		overflowed := false
		digest, n, err := fingerprint.HashStream(f, func(chunk []byte) {
			if overflowed {
				return
			}
			if int64(len(buffered))+int64(len(chunk)) > fingerprint.StreamBufferThreshold {
				overflowed = true
				buffered = nil
				return
			}
			buffered = append(buffered, chunk...)
		})
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("driver: hashing %s: %w", input.FilePath, err)
		}
		hash = digest
		size = n

		if !overflowed {
			content = asset.NewBufferContent(buffered)
		} else {
			path := input.FilePath
			content = asset.NewStreamContent(path, func() (io.ReadCloser, error) {
				return os.Open(path)
			})
		}
	}

	sideEffects := true
	if input.SideEffects != nil {
		sideEffects = *input.SideEffects
	}

	root := &asset.Asset{
		IDBase:      input.IDBase(),
		FilePath:    input.FilePath,
		Type:        fileExt(input.FilePath),
		Env:         input.Env,
		Content:     content,
		Hash:        hash,
		SideEffects: sideEffects,
	}
	root.Stats.Size = size

	id, err := fingerprint.Fingerprint(struct {
		IDBase string `json:"idBase"`
		Type   string `json:"type"`
	}{root.IDBase, root.Type})
	if err != nil {
		return nil, fmt.Errorf("driver: root asset id: %w", err)
	}
	root.ID = id
	return root, nil
}

func fileExt(path string) string {
	ext := filepath.Ext(path)
	if len(ext) > 0 {
		return ext[1:]
	}
	return ""
}

func realpath(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", err
	}
	return resolved, nil
}

func entryHash(assets []*asset.Asset) string {
	hashes := make([]string, len(assets))
	for i, a := range assets {
		hashes[i] = a.Hash
	}
	fp, err := fingerprint.Fingerprint(hashes)
	if err != nil {
		return ""
	}
	return fp
}
