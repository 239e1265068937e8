package requestgraph

// RunFunc is the work a request performs when it is (re)executed. It
// receives an API scoped to this request's node and returns the value to
// memoize, or an error that leaves the node unresolved (spec §4.4, §7).
type RunFunc func(api *API) (interface{}, error)

// Request is a keyed, memoized unit of work: asset, config, or
// dep-version (spec GLOSSARY "Request").
type Request struct {
	ID  string
	Run RunFunc
}

// API is the surface passed into a request's Run function (spec §4.4
// "Public contract"). Edges registered through the InvalidateOn* methods
// are only committed to the node if Run returns without error; a failed
// run's partial edges are discarded (spec §5 "Ordering guarantees").
type API struct {
	graph *Graph
	node  *node
	chain []string
}

// InvalidateOnFileUpdate registers an edge that marks this node dirty when
// path's content changes.
func (a *API) InvalidateOnFileUpdate(path string) {
	a.node.addPendingEdge(Edge{Kind: EdgeFileUpdate, Path: path})
}

// InvalidateOnFileDelete registers an edge that marks this node dirty when
// path is removed.
func (a *API) InvalidateOnFileDelete(path string) {
	a.node.addPendingEdge(Edge{Kind: EdgeFileDelete, Path: path})
}

// InvalidateOnFileCreate registers an edge that marks this node dirty when
// a new file matching glob appears.
func (a *API) InvalidateOnFileCreate(glob string) {
	a.node.addPendingEdge(Edge{Kind: EdgeFileCreateGlob, Path: glob})
}

// InvalidateOnStartup registers an edge that unconditionally marks this
// node dirty on the next process startup.
func (a *API) InvalidateOnStartup() {
	a.node.addPendingEdge(Edge{Kind: EdgeStartup})
}

// RunRequest invokes req as a child of the request currently executing,
// sharing this graph's memoization, dedup, and cycle detection. The child
// is recorded against the parent node so a future parent re-run starts
// from a clean child set (spec §4.4 "child requests it transitively
// invoked").
func (a *API) RunRequest(req Request) (interface{}, error) {
	a.node.addChild(req.ID)
	return a.graph.runRequest(req, a.chain)
}
