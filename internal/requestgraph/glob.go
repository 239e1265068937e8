package requestgraph

import "path/filepath"

// globMatch reports whether path matches pattern using shell-style glob
// semantics. An invalid pattern never matches rather than erroring, since
// patterns here are registered by transformer authors and a malformed one
// must not take down the whole graph.
func globMatch(pattern, path string) bool {
	ok, err := filepath.Match(pattern, path)
	return err == nil && ok
}
