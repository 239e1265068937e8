package requestgraph

// EdgeKind identifies the kind of filesystem change that invalidates a node.
type EdgeKind int

const (
	// EdgeFileUpdate invalidates when the named file's content changes.
	EdgeFileUpdate EdgeKind = iota
	// EdgeFileDelete invalidates when the named file is removed.
	EdgeFileDelete
	// EdgeFileCreateGlob invalidates when a new file matching the glob is created.
	EdgeFileCreateGlob
	// EdgeStartup invalidates unconditionally on every process startup.
	EdgeStartup
)

// Edge is one invalidation condition registered by a request's Run function.
type Edge struct {
	Kind EdgeKind
	Path string // file path for EdgeFileUpdate/EdgeFileDelete, glob pattern for EdgeFileCreateGlob
}

// FileEvent is one entry from the filesystem-change journal consumed at the
// start of a build (spec §4.4 "Invalidation semantics").
type FileEvent struct {
	Kind EdgeKind // EdgeFileUpdate or EdgeFileDelete
	Path string
}

// matches reports whether event e should mark a node carrying edge as dirty.
func (e Edge) matches(ev FileEvent) bool {
	switch e.Kind {
	case EdgeFileUpdate:
		return ev.Kind == EdgeFileUpdate && ev.Path == e.Path
	case EdgeFileDelete:
		return ev.Kind == EdgeFileDelete && ev.Path == e.Path
	case EdgeFileCreateGlob:
		// A create event is modeled as a file-update whose path happens to be
		// newly created; the glob is matched here against that concrete
		// path with globMatch.
		return ev.Kind == EdgeFileUpdate && globMatch(e.Path, ev.Path)
	default:
		return false
	}
}
