// Package watch reports source changes for translate --watch.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Op is a bit set of change kinds.
type Op uint8

const (
	OpCreate Op = 1 << iota
	OpWrite
	OpRemove
	OpRename
	OpChmod
)

// Event is one change to a watched path.
type Event struct {
	Path string
	Op   Op
}

func opOf(o fsnotify.Op) Op {
	var op Op
	if o&fsnotify.Create != 0 {
		op |= OpCreate
	}
	if o&fsnotify.Write != 0 {
		op |= OpWrite
	}
	if o&fsnotify.Remove != 0 {
		op |= OpRemove
	}
	if o&fsnotify.Rename != 0 {
		op |= OpRename
	}
	if o&fsnotify.Chmod != 0 {
		op |= OpChmod
	}
	return op
}

// DefaultDebounce is the quiet period before a batch is delivered.
const DefaultDebounce = 150 * time.Millisecond

// Watcher follows files and directories. Files are watched through their
// parent directory so that editors replacing a file by rename keep
// being tracked.
type Watcher struct {
	w     *fsnotify.Watcher
	files map[string]bool
	dirs  map[string]bool
}

// New watches paths, which may be files or directories.
func New(paths ...string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	fw := &Watcher{w: w, files: make(map[string]bool), dirs: make(map[string]bool)}
	added := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			w.Close()
			return nil, err
		}
		dir := abs
		if fi, err := os.Stat(abs); err == nil && fi.IsDir() {
			fw.dirs[abs] = true
		} else {
			fw.files[abs] = true
			dir = filepath.Dir(abs)
		}
		if added[dir] {
			continue
		}
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, err
		}
		added[dir] = true
	}
	return fw, nil
}

// Close stops watching.
func (fw *Watcher) Close() error { return fw.w.Close() }

func (fw *Watcher) wants(path string) bool {
	if fw.files[path] {
		return true
	}
	return fw.dirs[filepath.Dir(path)]
}

// Run delivers batches of changed paths to onChange until ctx is done.
// Changes closer together than debounce are coalesced into one sorted
// batch. It returns nil on cancellation and the watcher's error
// otherwise.
func (fw *Watcher) Run(ctx context.Context, debounce time.Duration, onChange func([]string)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	pending := make(map[string]Op)
	timer := time.NewTimer(debounce)
	timer.Stop()
	flush := func() {
		if len(pending) == 0 {
			return
		}
		batch := make([]string, 0, len(pending))
		for p := range pending {
			batch = append(batch, p)
		}
		sort.Strings(batch)
		clear(pending)
		onChange(batch)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.w.Events:
			if !ok {
				return nil
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil || !fw.wants(abs) {
				continue
			}
			op := opOf(ev.Op)
			if op == OpChmod {
				continue
			}
			pending[abs] |= op
			timer.Reset(debounce)
		case err, ok := <-fw.w.Errors:
			if !ok {
				return nil
			}
			return err
		case <-timer.C:
			flush()
		}
	}
}

// Run watches paths and calls onChange for each debounced batch.
func Run(ctx context.Context, paths []string, onChange func([]string)) error {
	w, err := New(paths...)
	if err != nil {
		return err
	}
	defer w.Close()
	return w.Run(ctx, DefaultDebounce, onChange)
}
