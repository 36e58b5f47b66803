package supervisor

import (
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/giantswarm/mcphub/internal/hubconfig"
	"github.com/giantswarm/mcphub/pkg/logging"
)

// devDebounce coalesces bursts of file events (a build tool touching many
// files at once) into a single restart.
const devDebounce = 300 * time.Millisecond

// devWatcher restarts a stdio supervisor's connection whenever a file under
// dev.cwd matches one of dev.watch's globs, following the same
// fsnotify-plus-debounce-timer shape as the config store's watcher.
type devWatcher struct {
	dev     *hubconfig.DevConfig
	onFire  func()

	mu      sync.Mutex
	fs      *fsnotify.Watcher
	timer   *time.Timer
	stopCh  chan struct{}
	running bool
}

func newDevWatcher(dev *hubconfig.DevConfig, onFire func()) *devWatcher {
	return &devWatcher{dev: dev, onFire: onFire}
}

func (w *devWatcher) start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := addRecursive(fs, w.dev.Cwd); err != nil {
		fs.Close()
		return err
	}

	w.fs = fs
	w.stopCh = make(chan struct{})
	w.running = true

	events, errs := fs.Events, fs.Errors
	go w.loop(events, errs)
	return nil
}

func (w *devWatcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.stopCh)
	w.fs.Close()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.running = false
}

func (w *devWatcher) loop(events chan fsnotify.Event, errs chan error) {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if w.matches(event.Name) {
				w.debounce()
			}
		case err, ok := <-errs:
			if !ok {
				return
			}
			logging.Warn("supervisor.devWatcher", "watch error: %v", err)
		}
	}
}

func (w *devWatcher) matches(absPath string) bool {
	rel, err := filepath.Rel(w.dev.Cwd, absPath)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range w.dev.Watch {
		if matchGlob(pattern, rel) {
			return true
		}
	}
	return false
}

func (w *devWatcher) debounce() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(devDebounce, w.onFire)
}

// addRecursive walks root and registers every directory with fs, since
// fsnotify does not watch subdirectories on its own. Hidden directories
// (names starting with ".") below root are skipped.
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
