// Package registry holds the set of open top-level windows in
// most-recently-used order.
//
// Reads go through *Registry. Mutation requires the *Writer returned by New,
// which the protocol session keeps to itself.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/1broseidon/alttab/internal/platform"
)

// ErrUnknownWindow is returned when an event references a window that is not
// (or no longer) registered.
var ErrUnknownWindow = errors.New("unknown window reference")

// Registry is the read side of the window set.
type Registry struct {
	mu    sync.RWMutex
	order []platform.WindowID // MRU, most recent first
	byID  map[platform.WindowID]*platform.Window
}

// Writer mutates a Registry.
type Writer struct {
	r *Registry
}

// New returns an empty registry and its writer.
func New() (*Registry, *Writer) {
	r := &Registry{
		byID: make(map[platform.WindowID]*platform.Window),
	}
	return r, &Writer{r: r}
}

// List returns a copy of all windows in MRU order.
func (r *Registry) List() []platform.Window {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]platform.Window, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byID[id])
	}
	return out
}

// Get returns the window with the given id.
func (r *Registry) Get(id platform.WindowID) (platform.Window, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.byID[id]
	if !ok {
		return platform.Window{}, false
	}
	return *w, true
}

// Len returns the number of registered windows.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Add registers a new window at the end of the MRU order. Adding an id that
// already exists replaces its metadata and keeps its position.
func (w *Writer) Add(win platform.Window) {
	r := w.r
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byID[win.ID]; ok {
		*existing = win
		return
	}
	stored := win
	r.byID[win.ID] = &stored
	r.order = append(r.order, win.ID)
}

// SetTitle updates a window title.
func (w *Writer) SetTitle(id platform.WindowID, title string) error {
	return w.update(id, func(win *platform.Window) { win.Title = title })
}

// SetAppID updates a window app identifier.
func (w *Writer) SetAppID(id platform.WindowID, appID string) error {
	return w.update(id, func(win *platform.Window) { win.AppID = appID })
}

// Configure records the latest geometry of a window.
func (w *Writer) Configure(id platform.WindowID, bounds platform.Rect) error {
	return w.update(id, func(win *platform.Window) { win.Bounds = bounds })
}

// Activate moves a window to the front of the MRU order.
func (w *Writer) Activate(id platform.WindowID) error {
	r := w.r
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("activate %s: %w", id, ErrUnknownWindow)
	}
	copy(r.order[1:idx+1], r.order[:idx])
	r.order[0] = id
	return nil
}

// Remove drops a closed window.
func (w *Writer) Remove(id platform.WindowID) error {
	r := w.r
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("close %s: %w", id, ErrUnknownWindow)
	}
	r.order = append(r.order[:idx], r.order[idx+1:]...)
	delete(r.byID, id)
	return nil
}

func (w *Writer) update(id platform.WindowID, fn func(*platform.Window)) error {
	r := w.r
	r.mu.Lock()
	defer r.mu.Unlock()

	win, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("update %s: %w", id, ErrUnknownWindow)
	}
	fn(win)
	return nil
}

func (r *Registry) indexLocked(id platform.WindowID) int {
	for i, candidate := range r.order {
		if candidate == id {
			return i
		}
	}
	return -1
}

// List exposes the read side to the writer's owner.
func (w *Writer) List() []platform.Window {
	return w.r.List()
}
