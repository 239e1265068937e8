package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/thornforge/buildcore/internal/asset"
	"github.com/thornforge/buildcore/internal/transform"
)

type stubTransformer struct{ id string }

func (s stubTransformer) Name() string { return s.id }
func (s stubTransformer) Transform(ctx context.Context, a *asset.Asset, cfg interface{}) ([]transform.Result, error) {
	return nil, nil
}

func TestResolvePipelineReturnsInternedSlice(t *testing.T) {
	babel := stubTransformer{"babel"}
	terser := stubTransformer{"terser"}

	reg := NewRegistry()
	reg.Register([]string{"js", "mjs"}, babel, terser)

	p1, err := reg.ResolvePipeline("a.js")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	p2, err := reg.ResolvePipeline("b.js")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(p1) != 2 {
		t.Fatalf("expected 2-step pipeline, got %d", len(p1))
	}
	if p1[0] != p2[0] || p1[1] != p2[1] {
		t.Fatal("expected reference-equal handles across resolutions of the same extension")
	}

	p3, err := reg.ResolvePipeline("c.mjs")
	if err != nil {
		t.Fatalf("resolve mjs: %v", err)
	}
	if p1[0] != p3[0] {
		t.Fatal("expected the same interned handle across extensions sharing a transformer")
	}
}

func TestResolvePipelineNoMatchErrors(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.ResolvePipeline("a.unknown")
	if !errors.Is(err, ErrNoPipeline) {
		t.Fatalf("expected ErrNoPipeline, got %v", err)
	}
}

func TestResolvePipelineFallback(t *testing.T) {
	raw := stubTransformer{"raw"}
	reg := NewRegistry()
	reg.RegisterFallback(raw)

	p, err := reg.ResolvePipeline("a.bin")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(p) != 1 || p[0].ID != "raw" {
		t.Fatalf("expected fallback pipeline, got %+v", p)
	}
}
