package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceDelay = 100 * time.Millisecond

// Watcher reloads the config file when it changes on disk.
type Watcher struct {
	path      string
	overrides Overrides
	watcher   *fsnotify.Watcher
	updates   chan *Config
	errChan   chan error
	ctx       context.Context
	cancel    context.CancelFunc

	mu       sync.Mutex
	debounce *time.Timer
}

// NewWatcher creates a watcher for path. Overrides are re-applied to every
// reloaded config.
func NewWatcher(path string, overrides Overrides) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		path:      path,
		overrides: overrides,
		updates:   make(chan *Config, 1),
		errChan:   make(chan error, 1),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins watching. The directory is watched instead of the file so
// editors that replace the file atomically are handled.
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	w.watcher = watcher

	go w.watchLoop()
	return nil
}

// Updates delivers validated configs. Only the newest pending config is kept.
func (w *Watcher) Updates() <-chan *Config {
	return w.updates
}

// Errors delivers reload failures.
func (w *Watcher) Errors() <-chan error {
	return w.errChan
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.cancel()
	w.mu.Lock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.mu.Unlock()
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			w.mu.Lock()
			if w.debounce != nil {
				w.debounce.Stop()
			}
			w.debounce = time.AfterFunc(debounceDelay, w.reload)
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.sendErr(err)
		}
	}
}

func (w *Watcher) reload() {
	if w.ctx.Err() != nil {
		return
	}

	cfg, err := LoadFromPath(w.path)
	if err != nil {
		w.sendErr(fmt.Errorf("reload config: %w", err))
		return
	}
	if err := w.overrides.Apply(cfg); err != nil {
		w.sendErr(fmt.Errorf("reload config: %w", err))
		return
	}

	// Replace any config the consumer has not picked up yet.
	select {
	case <-w.updates:
	default:
	}
	select {
	case w.updates <- cfg:
	default:
	}
}

func (w *Watcher) sendErr(err error) {
	select {
	case w.errChan <- err:
	default:
	}
}
