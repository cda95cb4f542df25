package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kernelctl/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

// ManifestWatcher signals when manifest files change. Bursts of events are
// collapsed into one signal after a quiet period.
type ManifestWatcher struct {
	fsWatcher *fsnotify.Watcher
	files     map[string]bool // explicit manifest files; directories match by extension
	dirs      map[string]bool
	debounce  time.Duration
	onChange  chan struct{}
	done      chan struct{}
}

// NewManifestWatcher watches paths, each a manifest file or a directory of
// manifests.
func NewManifestWatcher(paths []string, debounce time.Duration) (*ManifestWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	w := &ManifestWatcher{
		fsWatcher: fsw,
		files:     make(map[string]bool),
		dirs:      make(map[string]bool),
		debounce:  debounce,
		onChange:  make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fsw.Close()
			return nil, err
		}
		dir := abs
		if info, err := os.Stat(abs); err == nil && !info.IsDir() {
			w.files[abs] = true
			dir = filepath.Dir(abs)
		} else {
			w.dirs[abs] = true
		}
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watching directory %s: %w", dir, err)
		}
	}
	return w, nil
}

// Start begins watching. The returned channel receives a value after each
// burst of relevant changes.
func (w *ManifestWatcher) Start() <-chan struct{} {
	go w.loop()
	return w.onChange
}

// Stop terminates the watcher.
func (w *ManifestWatcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

func (w *ManifestWatcher) loop() {
	var timer *time.Timer
	timerC := func() <-chan time.Time {
		if timer != nil {
			return timer.C
		}
		return nil
	}

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.isRelevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerC():
			timer = nil
			select {
			case w.onChange <- struct{}{}:
			default:
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logging.Warn("Watcher", "File watch error: %v", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func (w *ManifestWatcher) isRelevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	name, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	if w.files[name] {
		return true
	}
	if !w.dirs[filepath.Dir(name)] {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// Watch reloads and re-applies manifests on every change until ctx ends.
// Failed reloads are logged and leave the running resources untouched.
func (a *Application) Watch(ctx context.Context) error {
	kc := a.config.KernelConfig
	w, err := NewManifestWatcher(kc.Manifests.Paths, a.debounce)
	if err != nil {
		return err
	}
	defer w.Stop()

	changes := w.Start()
	logging.Info("Watcher", "Watching %s for manifest changes", strings.Join(kc.Manifests.Paths, ", "))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			logging.Info("Watcher", "Manifests changed, re-applying")
			if err := a.Apply(ctx); err != nil {
				logging.Error("Watcher", err, "Failed to re-apply manifests")
			}
		}
	}
}
