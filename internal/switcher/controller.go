// Package switcher implements the alt-tab state machine: it snapshots the
// window order when the overlay opens, moves a cursor over that snapshot,
// renders the strip every frame and activates the chosen window on release.
package switcher

import (
	"sync"

	"github.com/1broseidon/alttab/internal/capture"
	"github.com/1broseidon/alttab/internal/logger"
	"github.com/1broseidon/alttab/internal/platform"
	"github.com/1broseidon/alttab/internal/protocol"
	"github.com/1broseidon/alttab/internal/render"
	"github.com/rs/zerolog"
)

// WindowLister returns windows in most-recently-used order.
type WindowLister interface {
	List() []platform.Window
}

// Previewer issues and polls window captures.
type Previewer interface {
	Request(window platform.WindowID) capture.Handle
	Poll(h capture.Handle) capture.Preview
	CancelAll()
}

// Activator focuses a window.
type Activator interface {
	Activate(window platform.WindowID)
}

// Status is a point-in-time view of the controller.
type Status struct {
	Phase    Phase
	Cursor   int
	Windows  int
	Selected platform.WindowID
}

// Controller drives switch sessions. All methods are safe to call from any
// goroutine, but the daemon calls them from its loop only.
type Controller struct {
	mu sync.Mutex

	windows   WindowLister
	previews  Previewer
	activator Activator
	renderer  render.Renderer
	input     protocol.InputProber

	layout        LayoutOptions
	pendingLayout *LayoutOptions

	session Session
	log     *zerolog.Logger
}

// NewController creates an idle controller.
func NewController(windows WindowLister, previews Previewer, activator Activator, renderer render.Renderer, layout LayoutOptions) *Controller {
	return &Controller{
		windows:   windows,
		previews:  previews,
		activator: activator,
		renderer:  renderer,
		layout:    layout,
		log:       logger.WithComponent("switcher"),
	}
}

// SetInput installs a keyboard prober used to detect modifier release and
// escape. Without one, sessions end only through Release or Cancel.
func (c *Controller) SetInput(p protocol.InputProber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = p
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Phase
}

// Status returns the current phase, cursor and snapshot size.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		Phase:   c.session.Phase,
		Cursor:  c.session.Cursor,
		Windows: len(c.session.Snapshot),
	}
	if w, ok := c.session.Selected(); ok {
		st.Selected = w.ID
	}
	if st.Phase == PhaseIdle {
		st.Windows = len(c.windows.List())
	}
	return st
}

// Show opens the overlay, or cycles it when a session with the same
// modifiers is already active. A request with different modifiers cancels
// the running session.
func (c *Controller) Show(req ShowRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handleShowLocked(req)
}

// Next moves the cursor forward.
func (c *Controller) Next() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.moveLocked(DirNext)
}

// Previous moves the cursor backward.
func (c *Controller) Previous() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.moveLocked(DirPrevious)
}

// Release commits the selection.
func (c *Controller) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commitLocked()
}

// Cancel ends the session without activating anything.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked("requested")
}

// SetLayout replaces the layout. While a session is active the change is
// held back until the session ends.
func (c *Controller) SetLayout(layout LayoutOptions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Phase == PhaseActive {
		c.pendingLayout = &layout
		return
	}
	c.layout = layout
}

// Step runs one frame: it checks the keyboard, polls previews and renders.
func (c *Controller) Step() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.Phase != PhaseActive {
		return
	}

	if c.input != nil {
		if pressed, err := c.input.EscapePressed(); err != nil {
			c.log.Debug().Err(err).Msg("Escape probe failed")
		} else if pressed {
			c.cancelLocked("escape")
			return
		}
		if len(c.session.Modifiers) > 0 {
			held, err := c.input.ModifiersHeld(c.session.Modifiers)
			if err != nil {
				c.log.Debug().Err(err).Msg("Modifier probe failed")
			} else if !held {
				c.commitLocked()
				return
			}
		}
	}

	c.renderLocked()
}

func (c *Controller) handleShowLocked(req ShowRequest) {
	mods := normalizeModifiers(req.Modifiers)

	if c.session.Phase == PhaseActive {
		if len(mods) > 0 && len(c.session.Modifiers) > 0 && !sharesModifier(mods, c.session.Modifiers) {
			c.log.Info().
				Strs("active", c.session.Modifiers).
				Strs("requested", mods).
				Msg("Conflicting show request")
			c.cancelLocked("conflicting request")
			return
		}
		c.moveLocked(req.Direction)
		return
	}

	snapshot := c.windows.List()
	if len(snapshot) == 0 {
		c.log.Debug().Msg("No windows to switch between")
		return
	}

	c.session = Session{
		Phase:     PhaseActive,
		Snapshot:  snapshot,
		Cursor:    1,
		Direction: req.Direction,
		Modifiers: mods,
		Handles:   make(map[platform.WindowID]capture.Handle),
	}
	if len(snapshot) == 1 {
		c.session.Cursor = 0
	}

	c.log.Debug().
		Int("windows", len(snapshot)).
		Stringer("direction", req.Direction).
		Strs("modifiers", mods).
		Msg("Session started")

	c.requestVisibleLocked()
}

func (c *Controller) moveLocked(dir Direction) {
	if c.session.Phase != PhaseActive {
		return
	}
	c.session.Direction = dir
	c.session.Cursor = step(c.session.Cursor, dir, len(c.session.Snapshot))
	c.requestVisibleLocked()
}

func (c *Controller) commitLocked() {
	if c.session.Phase != PhaseActive {
		return
	}
	target, ok := c.session.Selected()
	c.teardownLocked()
	if !ok {
		return
	}
	c.log.Debug().Stringer("window_id", target.ID).Msg("Committing selection")
	c.activator.Activate(target.ID)
}

func (c *Controller) cancelLocked(reason string) {
	if c.session.Phase != PhaseActive {
		return
	}
	c.log.Debug().Str("reason", reason).Msg("Session cancelled")
	c.teardownLocked()
}

func (c *Controller) teardownLocked() {
	c.previews.CancelAll()
	if err := c.renderer.Hide(); err != nil {
		c.log.Warn().Err(err).Msg("Failed to hide overlay")
	}
	c.session.Reset()
	if c.pendingLayout != nil {
		c.layout = *c.pendingLayout
		c.pendingLayout = nil
	}
}

// requestVisibleLocked starts captures for windows in the visible range that
// have none yet.
func (c *Controller) requestVisibleLocked() {
	start, end := visibleRange(c.session.Cursor, len(c.session.Snapshot), c.layout.MaxItems)
	for _, w := range c.session.Snapshot[start:end] {
		if _, ok := c.session.Handles[w.ID]; ok {
			continue
		}
		c.session.Handles[w.ID] = c.previews.Request(w.ID)
	}
}

func (c *Controller) renderLocked() {
	c.requestVisibleLocked()

	start, end := visibleRange(c.session.Cursor, len(c.session.Snapshot), c.layout.MaxItems)
	cells := make([]cell, 0, end-start)
	for i := start; i < end; i++ {
		w := c.session.Snapshot[i]
		preview := c.previews.Poll(c.session.Handles[w.ID])
		img := preview.Image
		if preview.State == capture.Failed {
			img = nil
		}
		cells = append(cells, cell{window: w, image: img, selected: i == c.session.Cursor})
	}

	if err := c.renderer.Render(c.layout.build(cells)); err != nil {
		c.log.Warn().Err(err).Msg("Render failed")
	}
}
