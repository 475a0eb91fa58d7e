package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"evai/internal/logging"
)

// Watcher hot-reloads configuration when the file changes on disk.
// Consumers read the active snapshot through Current; a swapped snapshot
// never mutates one already handed out.
type Watcher struct {
	path    string
	mu      sync.RWMutex
	current *Config
	onSwap  []func(*Config)
}

// NewWatcher creates a watcher seeded with an initial load of path.
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Watcher{path: path, current: cfg}, nil
}

// Current returns the active configuration snapshot.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnSwap registers a callback invoked with each new snapshot.
func (w *Watcher) OnSwap(fn func(*Config)) {
	w.mu.Lock()
	w.onSwap = append(w.onSwap, fn)
	w.mu.Unlock()
}

// Watch blocks until ctx is cancelled, reloading the config on file
// changes. Editors often replace files instead of writing in place, so
// the parent directory is watched and events are debounced.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fs watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	logging.Config("watching %s for changes", w.path)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			w.reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.ConfigWarn("fs watcher error: %v", err)
		}
	}
}

// reload reads the file and swaps the snapshot; a bad reload keeps the old
// snapshot rather than breaking a running pipeline.
func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		logging.ConfigWarn("config reload failed, keeping previous: %v", err)
		return
	}

	w.mu.Lock()
	w.current = cfg
	callbacks := append([]func(*Config){}, w.onSwap...)
	w.mu.Unlock()

	logging.Config("config reloaded: rubric_mode=%s crisis_threshold=%.0f",
		cfg.Rubrics.Mode, cfg.Policy.CrisisThreshold)

	for _, fn := range callbacks {
		fn(cfg)
	}
}
