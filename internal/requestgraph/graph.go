// Package requestgraph implements the scheduler described in spec §4.4: a
// set of memoized request nodes keyed by id, each carrying invalidation
// edges and a child-request set, executed through runRequest with
// in-flight deduplication and cycle detection.
package requestgraph

import (
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Graph is the process-wide request scheduler.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*node
	sf    singleflight.Group
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*node)}
}

func (g *Graph) getOrCreate(id string) *node {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		n = newNode(id)
		g.nodes[id] = n
	}
	return n
}

// RunRequest is the public top-level entry point (spec §6 "Exposed to
// collaborators").
func (g *Graph) RunRequest(req Request) (interface{}, error) {
	return g.runRequest(req, nil)
}

// runRequest is the shared implementation used both for top-level calls
// and for API.RunRequest child calls; chain holds the ids of every
// ancestor currently executing, used for cycle detection.
func (g *Graph) runRequest(req Request, chain []string) (interface{}, error) {
	for _, ancestor := range chain {
		if ancestor == req.ID {
			return nil, &CycleError{ID: req.ID, Chain: chain}
		}
	}

	n := g.getOrCreate(req.ID)

	if result, resolved, dirty := n.snapshot(); resolved && !dirty {
		return result, nil
	}

	childChain := append(append([]string{}, chain...), req.ID)

	v, err, shared := g.sf.Do(req.ID, func() (interface{}, error) {
		// Re-check under the singleflight leader's exclusivity: another
		// goroutine may have resolved this node while we waited to become
		// leader.
		if result, resolved, dirty := n.snapshot(); resolved && !dirty {
			return result, nil
		}

		n.beginRun()
		api := &API{graph: g, node: n, chain: childChain}
		result, runErr := req.Run(api)
		if runErr != nil {
			n.discardPending()
			log.Debug().Err(runErr).Str("request", req.ID).Msg("requestgraph: run failed")
			return nil, runErr
		}
		n.commitSuccess(result)
		return result, nil
	})
	if shared {
		log.Trace().Str("request", req.ID).Msg("requestgraph: deduplicated concurrent run")
	}
	return v, err
}

// Invalidate consumes a filesystem-change journal, marking every node whose
// edges match as dirty, then cascading dirtiness to every transitive
// ancestor (spec §4.4 "Invalidation semantics").
func (g *Graph) Invalidate(events []FileEvent) {
	g.mu.RLock()
	nodes := make([]*node, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, n)
	}
	g.mu.RUnlock()

	dirty := make(map[string]bool)
	for _, n := range nodes {
		for _, ev := range events {
			if n.markDirtyIfMatches(ev) {
				dirty[n.id] = true
				break
			}
		}
	}
	g.propagateDirty(nodes, dirty)
}

// InvalidateOnStartup marks every node carrying an EdgeStartup edge dirty,
// then cascades to ancestors. Call once per process start before the first
// top-level build.
func (g *Graph) InvalidateOnStartup() {
	g.mu.RLock()
	nodes := make([]*node, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, n)
	}
	g.mu.RUnlock()

	dirty := make(map[string]bool)
	for _, n := range nodes {
		if n.markStartupDirty() {
			dirty[n.id] = true
		}
	}
	g.propagateDirty(nodes, dirty)
}

// propagateDirty marks every transitive ancestor of the nodes named in
// dirty as dirty too ("a dirty node and all its ancestors are
// re-executed").
func (g *Graph) propagateDirty(nodes []*node, dirty map[string]bool) {
	if len(dirty) == 0 {
		return
	}

	parents := make(map[string][]string) // child id -> parent ids
	byID := make(map[string]*node, len(nodes))
	for _, n := range nodes {
		byID[n.id] = n
		for _, child := range n.childIDs() {
			parents[child] = append(parents[child], n.id)
		}
	}

	queue := make([]string, 0, len(dirty))
	for id := range dirty {
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, parentID := range parents[id] {
			if dirty[parentID] {
				continue
			}
			dirty[parentID] = true
			if n, ok := byID[parentID]; ok {
				n.invalidate()
			}
			queue = append(queue, parentID)
		}
	}
}

// Reset drops every node, discarding all memoized results and edges.
func (g *Graph) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = make(map[string]*node)
}

// Len reports the number of tracked nodes, for diagnostics.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}
