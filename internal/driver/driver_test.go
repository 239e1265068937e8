package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/thornforge/buildcore/internal/asset"
	"github.com/thornforge/buildcore/internal/configservice"
	"github.com/thornforge/buildcore/internal/requestgraph"
	"github.com/thornforge/buildcore/internal/resolver"
	"github.com/thornforge/buildcore/internal/transform"
)

// shoutTransformer appends "!" to its input content, leaving the asset
// type unchanged so the runner never triggers a pipeline jump.
type shoutTransformer struct {
	calls int
}

func (t *shoutTransformer) Name() string { return "shout" }

func (t *shoutTransformer) Transform(ctx context.Context, a *asset.Asset, cfg interface{}) ([]transform.Result, error) {
	t.calls++
	b, err := a.Content.Bytes()
	if err != nil {
		return nil, err
	}
	return []transform.Result{transform.Emitted(asset.TransformerResult{
		Type:    a.Type,
		Content: asset.NewBufferContent(append(append([]byte{}, b...), '!')),
	})}, nil
}

func newDriver(t *testing.T, dir string, tr *shoutTransformer) *Driver {
	t.Helper()
	registry := resolver.NewRegistry()
	registry.Register([]string{"txt"}, tr)
	modules := resolver.NewResolver(nil, []string{"txt"})
	configService := configservice.New(nil, "package.json")
	graph := requestgraph.New()
	return New(graph, configService, nil, nil, registry, modules, nil, Options{
		ProjectRoot: dir,
		CacheDir:    dir,
	})
}

func TestRunAssetRequestInProcessPipeline(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(target, []byte("hello"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	tr := &shoutTransformer{}
	d := newDriver(t, dir, tr)

	assets, err := d.RunAssetRequest(context.Background(), asset.AssetRequestInput{FilePath: target})
	if err != nil {
		t.Fatalf("RunAssetRequest: %v", err)
	}
	if len(assets) != 1 {
		t.Fatalf("expected 1 asset, got %d", len(assets))
	}
	got, err := assets[0].Content.Bytes()
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	if string(got) != "hello!" {
		t.Fatalf("unexpected content: %q", got)
	}
	if tr.calls != 1 {
		t.Fatalf("expected transformer called once, got %d", tr.calls)
	}
}

func TestRunAssetRequestMemoizesAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(target, []byte("hello"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	tr := &shoutTransformer{}
	d := newDriver(t, dir, tr)

	input := asset.AssetRequestInput{FilePath: target}
	if _, err := d.RunAssetRequest(context.Background(), input); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := d.RunAssetRequest(context.Background(), input); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if tr.calls != 1 {
		t.Fatalf("expected request-graph memoization to prevent a second transform, got %d calls", tr.calls)
	}
}

func TestRunAssetRequestInlineCodeSkipsFileInvalidation(t *testing.T) {
	dir := t.TempDir()
	tr := &shoutTransformer{}
	d := newDriver(t, dir, tr)

	code := "inline-source"
	assets, err := d.RunAssetRequest(context.Background(), asset.AssetRequestInput{
		FilePath: filepath.Join(dir, "virtual.txt"),
		Code:     &code,
	})
	if err != nil {
		t.Fatalf("RunAssetRequest: %v", err)
	}
	if len(assets) != 1 {
		t.Fatalf("expected 1 asset, got %d", len(assets))
	}
	got, _ := assets[0].Content.Bytes()
	if string(got) != "inline-source!" {
		t.Fatalf("unexpected content: %q", got)
	}
}
