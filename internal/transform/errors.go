package transform

import "errors"

// ErrEmptyPipeline is returned when a pipeline resolution yields zero
// transformers. Per spec §4.5 this is always a programming error in the
// resolver, never a valid runtime state.
var ErrEmptyPipeline = errors.New("transform: empty pipeline")

// ErrMissingGenerate is returned when an asset carries an AST that the
// current transformer cannot reuse, its producer offered no generate
// hook, and the pipeline therefore has no way to materialize code
// (spec §7 "TransformerMissingGenerate").
var ErrMissingGenerate = errors.New("transform: asset has an AST but no generate hook is available to materialize it")

// ErrResolveFailed wraps a dependency resolution failure surfaced through
// ResolveFunc (spec §7 "ResolveFailed").
type ErrResolveFailed struct {
	From string
	To   string
	Err  error
}

func (e *ErrResolveFailed) Error() string {
	return "transform: resolve " + e.To + " from " + e.From + ": " + e.Err.Error()
}

func (e *ErrResolveFailed) Unwrap() error { return e.Err }
