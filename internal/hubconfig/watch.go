package hubconfig

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/giantswarm/mcphub/pkg/logging"
)

// DefaultStabilityWindow is how long the watcher waits after the last
// filesystem event before re-running Load, coalescing rapid successive
// writes (e.g. an editor's write-then-rename) into one reload.
const DefaultStabilityWindow = 200 * time.Millisecond

// ChangeHandler is invoked with the result of a re-load triggered by a
// file change.
type ChangeHandler func(*LoadResult)

// Watcher observes a Store's backing file and re-runs Load on change,
// coalescing rapid changes with a short stability window. File-watch
// errors are reported through the handler's subsystem logger but never
// stop the watcher.
type Watcher struct {
	store   *Store
	onEvent ChangeHandler
	window  time.Duration

	mu        sync.Mutex
	fsWatcher *fsnotify.Watcher
	timer     *time.Timer
	stopCh    chan struct{}
	running   bool
}

// NewWatcher creates a Watcher for store, which must be file-backed.
func NewWatcher(store *Store, window time.Duration, onEvent ChangeHandler) *Watcher {
	if window <= 0 {
		window = DefaultStabilityWindow
	}
	return &Watcher{store: store, onEvent: onEvent, window: window}
}

// Start begins watching. It is idempotent.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.store.Path()); err != nil {
		fw.Close()
		return err
	}

	w.fsWatcher = fw
	w.stopCh = make(chan struct{})
	w.running = true

	events, errs := fw.Events, fw.Errors
	go w.loop(events, errs)

	return nil
}

// Stop tears down the watcher and its debounce timer.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.stopCh)
	if w.fsWatcher != nil {
		w.fsWatcher.Close()
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.running = false
}

func (w *Watcher) loop(events chan fsnotify.Event, errs chan error) {
	for {
		select {
		case <-w.stopCh:
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			w.scheduleReload()
		case err, ok := <-errs:
			if !ok {
				return
			}
			logging.Warn("hubconfig.Watcher", "file watch error: %v", err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.window, w.reload)
}

func (w *Watcher) reload() {
	result, err := w.store.Load()
	if err != nil {
		LogUnhandledError("hubconfig.Watcher", err)
		return
	}
	if w.onEvent != nil {
		w.onEvent(result)
	}
}
