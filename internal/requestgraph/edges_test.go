package requestgraph

import "testing"

func TestEdgeMatchesFileCreateGlob(t *testing.T) {
	e := Edge{Kind: EdgeFileCreateGlob, Path: "src/*.js"}
	if !e.matches(FileEvent{Kind: EdgeFileUpdate, Path: "src/a.js"}) {
		t.Fatal("expected glob to match newly created file")
	}
	if e.matches(FileEvent{Kind: EdgeFileUpdate, Path: "src/nested/a.js"}) {
		t.Fatal("glob should not match across path separators")
	}
}

func TestEdgeMatchesFileUpdateAndDelete(t *testing.T) {
	update := Edge{Kind: EdgeFileUpdate, Path: "a.js"}
	if !update.matches(FileEvent{Kind: EdgeFileUpdate, Path: "a.js"}) {
		t.Fatal("expected update edge to match update event")
	}
	if update.matches(FileEvent{Kind: EdgeFileDelete, Path: "a.js"}) {
		t.Fatal("update edge should not match delete event")
	}

	del := Edge{Kind: EdgeFileDelete, Path: "a.js"}
	if !del.matches(FileEvent{Kind: EdgeFileDelete, Path: "a.js"}) {
		t.Fatal("expected delete edge to match delete event")
	}
}
