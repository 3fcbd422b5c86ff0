// Package watch requests collection rescans when images appear or disappear
// in the watched folders.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bryanchriswhite/refviewer/internal/collection"
	"github.com/bryanchriswhite/refviewer/internal/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// DefaultDebounce merges bursts of events (a copy of many files) into one rescan
const DefaultDebounce = 300 * time.Millisecond

// Option configures a Watcher
type Option func(*Watcher)

// WithDebounce sets the quiet period before a rescan is requested
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithClock sets the clock used for debouncing
func WithClock(clock clockwork.Clock) Option {
	return func(w *Watcher) {
		if clock != nil {
			w.clock = clock
		}
	}
}

// Watcher monitors folders with fsnotify and calls onChange, debounced,
// when the set of images in them may have changed. A folder that does not
// exist is noticed through its parent so recreating it requests a rescan.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	onChange  func()
	debounce  time.Duration
	clock     clockwork.Clock
	log       *zerolog.Logger

	mu          sync.Mutex
	want        map[string]bool
	directories map[string]bool
	parents     map[string]bool // watched only to see a missing folder come back
	pending     clockwork.Timer
	stopChan    chan struct{}
	running     bool
}

// New creates a watcher. onChange is called from a timer goroutine.
func New(onChange func(), opts ...Option) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		fsWatcher:   fsWatcher,
		onChange:    onChange,
		debounce:    DefaultDebounce,
		clock:       clockwork.NewRealClock(),
		log:         logger.WithComponent("watch"),
		want:        make(map[string]bool),
		directories: make(map[string]bool),
		parents:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Sync makes the watched set equal to folders. Folders that cannot be watched
// are logged and retried on the next Sync; until then their parent directory
// is watched for the folder reappearing.
func (w *Watcher) Sync(folders []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.want = make(map[string]bool, len(folders))
	for _, folder := range folders {
		w.want[filepath.Clean(folder)] = true
	}

	for dir := range w.directories {
		if w.want[dir] {
			continue
		}
		w.unwatch(dir)
		delete(w.directories, dir)
	}

	missing := make(map[string]bool)
	for dir := range w.want {
		if w.directories[dir] {
			continue
		}
		if err := w.fsWatcher.Add(dir); err != nil {
			w.log.Warn().Err(err).Str("folder", dir).Msg("Failed to watch folder")
			missing[filepath.Dir(dir)] = true
			continue
		}
		delete(w.parents, dir)
		w.directories[dir] = true
		w.log.Debug().Str("folder", dir).Msg("Watching folder")
	}

	for parent := range w.parents {
		if missing[parent] {
			continue
		}
		if !w.directories[parent] {
			w.unwatch(parent)
		}
		delete(w.parents, parent)
	}
	for parent := range missing {
		if w.parents[parent] || w.directories[parent] {
			continue
		}
		if err := w.fsWatcher.Add(parent); err != nil {
			w.log.Debug().Err(err).Str("folder", parent).Msg("Failed to watch parent of missing folder")
			continue
		}
		w.parents[parent] = true
	}
}

func (w *Watcher) unwatch(dir string) {
	if err := w.fsWatcher.Remove(dir); err != nil {
		w.log.Debug().Err(err).Str("folder", dir).Msg("Failed to unwatch folder")
	}
}

// Directories returns the watched folders, sorted
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	dirs := make([]string, 0, len(w.directories))
	for dir := range w.directories {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}

// Start begins processing fsnotify events
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.stopChan = make(chan struct{})

	go w.loop(w.stopChan)
	w.log.Debug().Dur("debounce", w.debounce).Msg("Watcher started")
	return nil
}

func (w *Watcher) loop(stop <-chan struct{}) {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("fsnotify watcher error")

		case <-stop:
			return
		}
	}
}

// handle schedules a rescan for events that can change the image list
func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return
	}
	name := filepath.Clean(event.Name)

	w.mu.Lock()
	watched := w.directories[name]
	if watched && !event.Op.Has(fsnotify.Create) {
		// fsnotify drops the watch of a removed directory; the next Sync adds it again
		delete(w.directories, name)
	}
	parent := filepath.Dir(name)
	viaParent := w.parents[parent] && !w.directories[parent]
	wanted := w.want[name]
	w.mu.Unlock()

	if viaParent && !wanted {
		return
	}
	if !watched && !wanted && !collection.IsImage(name) && !isDir(name) {
		return
	}

	w.log.Debug().Str("path", name).Str("op", event.Op.String()).Msg("Folder changed")
	w.schedule()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending == nil {
		w.pending = w.clock.AfterFunc(w.debounce, w.fire)
		return
	}
	w.pending.Reset(w.debounce)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	w.pending = nil
	w.mu.Unlock()

	if w.onChange != nil {
		w.onChange()
	}
}

// Stop halts event processing and closes the fsnotify watcher
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending != nil {
		w.pending.Stop()
		w.pending = nil
	}
	if w.running {
		close(w.stopChan)
		w.running = false
	}
	if err := w.fsWatcher.Close(); err != nil {
		w.log.Debug().Err(err).Msg("Error closing fsnotify watcher")
	}
}
