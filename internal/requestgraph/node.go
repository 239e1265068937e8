package requestgraph

import "sync"

// node is one request-graph entry, keyed by its request id (spec §4.4).
type node struct {
	id string

	mu       sync.Mutex
	resolved bool
	result   interface{}
	edges    map[Edge]struct{}
	children map[string]struct{}
	dirty    bool

	// pending* accumulate edges/children registered by the Run currently
	// in flight for this node. Exactly one Run executes per node at a
	// time (enforced by the graph's singleflight group), so no locking
	// is needed around them beyond what protects the commit itself.
	pendingEdges    map[Edge]struct{}
	pendingChildren map[string]struct{}
}

func newNode(id string) *node {
	return &node{
		id:       id,
		edges:    make(map[Edge]struct{}),
		children: make(map[string]struct{}),
	}
}

func (n *node) beginRun() {
	n.pendingEdges = make(map[Edge]struct{})
	n.pendingChildren = make(map[string]struct{})
}

func (n *node) addPendingEdge(e Edge) {
	if n.pendingEdges == nil {
		n.pendingEdges = make(map[Edge]struct{})
	}
	n.pendingEdges[e] = struct{}{}
}

func (n *node) addChild(id string) {
	if n.pendingChildren == nil {
		n.pendingChildren = make(map[string]struct{})
	}
	n.pendingChildren[id] = struct{}{}
}

// commitSuccess atomically replaces the node's committed edges/children
// with the pending set and stores result (spec §5 "edges registered by a
// request are observed atomically with its success").
func (n *node) commitSuccess(result interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.edges = n.pendingEdges
	n.children = n.pendingChildren
	n.pendingEdges = nil
	n.pendingChildren = nil
	n.result = result
	n.resolved = true
	n.dirty = false
}

// discardPending drops a failed run's partial edges/children without
// touching any previously committed result (spec §7 "Propagation
// policy").
func (n *node) discardPending() {
	n.pendingEdges = nil
	n.pendingChildren = nil
}

// snapshot returns the last committed result under lock.
func (n *node) snapshot() (result interface{}, resolved bool, dirty bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.result, n.resolved, n.dirty
}

// markDirtyIfMatches marks the node dirty when any committed edge matches
// ev. Returns true if the node transitioned to dirty.
func (n *node) markDirtyIfMatches(ev FileEvent) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.dirty {
		return false
	}
	for e := range n.edges {
		if e.matches(ev) {
			n.dirty = true
			return true
		}
	}
	return false
}

// markStartupDirty marks the node dirty if it carries an EdgeStartup edge.
func (n *node) markStartupDirty() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.dirty {
		return false
	}
	for e := range n.edges {
		if e.Kind == EdgeStartup {
			n.dirty = true
			return true
		}
	}
	return false
}

// invalidate forces the node dirty regardless of its edges (used to
// cascade invalidation to ancestors).
func (n *node) invalidate() {
	n.mu.Lock()
	n.dirty = true
	n.mu.Unlock()
}

func (n *node) childIDs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]string, 0, len(n.children))
	for id := range n.children {
		ids = append(ids, id)
	}
	return ids
}
