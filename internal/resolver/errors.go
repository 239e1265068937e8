package resolver

import "errors"

// ErrNoPipeline is wrapped into ResolvePipeline's error when a file has no
// registered extension mapping and no fallback is configured.
var ErrNoPipeline = errors.New("no pipeline")

// ErrModuleNotFound is returned by Resolve when a dependency specifier
// cannot be located on disk, surfaced to callers as spec §7's
// "ResolveFailed".
var ErrModuleNotFound = errors.New("module not found")
