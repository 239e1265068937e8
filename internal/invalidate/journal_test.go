package invalidate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/thornforge/buildcore/internal/requestgraph"
)

func TestJournalRecordsFileUpdate(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	j, err := NewJournal([]string{dir})
	if err != nil {
		t.Fatalf("new journal: %v", err)
	}
	defer j.Close()

	if err := os.WriteFile(target, []byte("y"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	events := waitForEvents(t, j, requestgraph.EdgeFileUpdate, target)
	found := false
	for _, ev := range events {
		if ev.Kind == requestgraph.EdgeFileUpdate && filepath.Clean(ev.Path) == filepath.Clean(target) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a file-update event for %s, got %+v", target, events)
	}
}

func TestJournalRecordsFileDelete(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	j, err := NewJournal([]string{dir})
	if err != nil {
		t.Fatalf("new journal: %v", err)
	}
	defer j.Close()

	if err := os.Remove(target); err != nil {
		t.Fatalf("remove: %v", err)
	}

	events := waitForEvents(t, j, requestgraph.EdgeFileDelete, target)
	found := false
	for _, ev := range events {
		if ev.Kind == requestgraph.EdgeFileDelete && filepath.Clean(ev.Path) == filepath.Clean(target) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a file-delete event for %s, got %+v", target, events)
	}
}

func TestJournalDrainClearsBuffer(t *testing.T) {
	dir := t.TempDir()
	j, err := NewJournal([]string{dir})
	if err != nil {
		t.Fatalf("new journal: %v", err)
	}
	defer j.Close()

	target := filepath.Join(dir, "b.txt")
	if err := os.WriteFile(target, []byte("z"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitForEvents(t, j, requestgraph.EdgeFileUpdate, target)

	if drained := j.Drain(); len(drained) == 0 {
		t.Fatal("expected non-empty drain")
	}
	if second := j.Drain(); len(second) != 0 {
		t.Fatalf("expected empty drain after previous Drain, got %+v", second)
	}
}

// waitForEvents polls Drain until it observes at least one event of kind
// for path, or fails the test after a short timeout. It re-buffers
// whatever it drained so the caller can still inspect it.
func waitForEvents(t *testing.T, j *Journal, kind requestgraph.EdgeKind, path string) []requestgraph.FileEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var all []requestgraph.FileEvent
	for time.Now().Before(deadline) {
		all = append(all, j.Drain()...)
		for _, ev := range all {
			if ev.Kind == kind && filepath.Clean(ev.Path) == filepath.Clean(path) {
				return all
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for event kind=%v path=%s", kind, path)
	return nil
}
