// Package invalidate turns raw filesystem notifications into the
// file-update/file-delete edges the request graph consumes at the start
// of each build (spec §4.4 "Invalidation semantics"). It is the daemon's
// adaptation of the teacher's config hot-reload watcher: instead of
// reloading one config file, it journals every change under the watched
// roots for the graph to consume in a batch.
package invalidate

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/thornforge/buildcore/internal/requestgraph"
)

// Journal accumulates filesystem-change events until Drain is called.
type Journal struct {
	fsWatcher *fsnotify.Watcher

	mu      sync.Mutex
	pending []requestgraph.FileEvent
	done    chan struct{}
}

// NewJournal starts watching every directory under each of roots,
// recursively, for create/write/remove/rename events.
func NewJournal(roots []string) (*Journal, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("invalidate: creating watcher: %w", err)
	}

	for _, root := range roots {
		if err := addRecursive(fsw, root); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("invalidate: watching %s: %w", root, err)
		}
	}

	j := &Journal{fsWatcher: fsw, done: make(chan struct{})}
	go j.loop()
	return j, nil
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// A directory that vanished mid-walk is not fatal to startup;
			// skip it and keep watching the rest of the tree.
			return nil
		}
		if info.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}

func statDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

func (j *Journal) loop() {
	for {
		select {
		case <-j.done:
			return
		case event, ok := <-j.fsWatcher.Events:
			if !ok {
				return
			}
			j.record(event)
		case err, ok := <-j.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("invalidate: watcher error")
		}
	}
}

func (j *Journal) record(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		j.push(requestgraph.FileEvent{Kind: requestgraph.EdgeFileDelete, Path: path})
	case event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Chmod) != 0:
		j.push(requestgraph.FileEvent{Kind: requestgraph.EdgeFileUpdate, Path: path})
		if event.Op&fsnotify.Create != 0 {
			if isDir, err := statDir(path); err == nil && isDir {
				// A newly created directory must be watched too, so files
				// written into it later are still observed.
				if err := j.fsWatcher.Add(path); err != nil {
					log.Warn().Err(err).Str("path", path).Msg("invalidate: failed to watch new directory")
				}
			}
		}
	}
}

func (j *Journal) push(ev requestgraph.FileEvent) {
	j.mu.Lock()
	j.pending = append(j.pending, ev)
	j.mu.Unlock()
}

// Drain returns every event recorded since the last Drain and clears the
// buffer.
func (j *Journal) Drain() []requestgraph.FileEvent {
	j.mu.Lock()
	defer j.mu.Unlock()
	events := j.pending
	j.pending = nil
	return events
}

// Close stops the journal and releases the underlying fsnotify watcher.
func (j *Journal) Close() error {
	close(j.done)
	return j.fsWatcher.Close()
}
