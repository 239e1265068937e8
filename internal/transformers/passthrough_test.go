package transformers

import (
	"context"
	"testing"

	"github.com/thornforge/buildcore/internal/asset"
)

func TestPassthroughTransformer_EmitsUnchangedContent(t *testing.T) {
	src := `{"ok":true}`
	a := &asset.Asset{Type: "json", Content: asset.NewBufferContent([]byte(src))}

	tr := NewPassthroughTransformer()
	results, err := tr.Transform(context.Background(), a, nil)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	got, err := results[0].Emitted.Content.Bytes()
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	if string(got) != src {
		t.Fatalf("content changed: got %q, want %q", got, src)
	}
	if len(results[0].Emitted.Dependencies) != 0 {
		t.Fatalf("expected no dependencies, got %v", results[0].Emitted.Dependencies)
	}
}
