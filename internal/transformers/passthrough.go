package transformers

import (
	"context"

	"github.com/thornforge/buildcore/internal/asset"
	"github.com/thornforge/buildcore/internal/transform"
)

// PassthroughTransformer is the fallback pipeline for extensions with no
// explicit registration (e.g. .css, .json, .svg): it emits the asset's
// content unchanged, the same "rule disabled, content unmodified" path the
// teacher's RulesMiddleware takes when no compression rule is enabled
// (compress.RulesMiddleware.applyRules with every flag false).
type PassthroughTransformer struct{}

// NewPassthroughTransformer creates a PassthroughTransformer.
func NewPassthroughTransformer() *PassthroughTransformer { return &PassthroughTransformer{} }

func (t *PassthroughTransformer) Name() string { return "passthrough" }

func (t *PassthroughTransformer) Transform(ctx context.Context, a *asset.Asset, cfg interface{}) ([]transform.Result, error) {
	src, err := a.Content.Bytes()
	if err != nil {
		return nil, err
	}
	return []transform.Result{transform.Emitted(asset.TransformerResult{
		Type:    a.Type,
		Content: asset.NewBufferContent(src),
		Env:     a.Env,
	})}, nil
}
