package x11

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/1broseidon/alttab/internal/hotkeys"
	"github.com/1broseidon/alttab/internal/logger"
	"github.com/1broseidon/alttab/internal/platform"
	"github.com/1broseidon/alttab/internal/protocol"
	"github.com/BurntSushi/xgb/composite"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/BurntSushi/xgbutil/xprop"
	"github.com/BurntSushi/xgbutil/xwindow"
	"github.com/rs/zerolog"
)

const (
	eventBuffer   = 256
	captureBuffer = 32
)

var errNotOpen = errors.New("x11 transport is not open")

// Options configures the X11 transport.
type Options struct {
	// CurrentDesktopOnly hides clients on other virtual desktops.
	CurrentDesktopOnly bool
}

type captureJob struct {
	id     protocol.RequestID
	window xproto.Window
}

// Transport tracks EWMH clients and captures them through the Composite
// extension. It implements protocol.Transport and protocol.InputProber.
type Transport struct {
	opts Options
	log  *zerolog.Logger

	conn       *Connection
	events     chan protocol.Event
	captures   chan captureJob
	done       chan struct{}
	closeOnce  sync.Once
	producers  sync.WaitGroup
	started    bool
	escapeKeys []xproto.Keycode
	hotkeys    *hotkeys.Handler

	// known is owned by the event loop goroutine.
	known map[xproto.Window]bool
}

var (
	_ protocol.Transport    = (*Transport)(nil)
	_ protocol.InputProber  = (*Transport)(nil)
	_ protocol.HotkeyBinder = (*Transport)(nil)
)

// NewTransport creates an unopened transport.
func NewTransport(opts Options) *Transport {
	return &Transport{
		opts:     opts,
		log:      logger.WithComponent("x11"),
		events:   make(chan protocol.Event, eventBuffer),
		captures: make(chan captureJob, captureBuffer),
		done:     make(chan struct{}),
		known:    make(map[xproto.Window]bool),
	}
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "x11"
}

// Connection returns the underlying connection once Open has succeeded.
func (t *Transport) Connection() *Connection {
	return t.conn
}

// Open connects to the X server, reports EWMH and Composite support and
// starts the event and capture goroutines.
func (t *Transport) Open(ctx context.Context) (protocol.Capability, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	conn, err := NewConnection()
	if err != nil {
		return 0, err
	}
	t.conn = conn
	xu := conn.XUtil

	var caps protocol.Capability
	if supported, err := ewmh.SupportedGet(xu); err == nil && hasAll(supported, "_NET_CLIENT_LIST", "_NET_ACTIVE_WINDOW") {
		caps |= protocol.CapToplevel
	} else if err != nil {
		t.log.Debug().Err(err).Msg("Failed to read _NET_SUPPORTED")
	}
	if err := composite.Init(xu.Conn()); err == nil {
		caps |= protocol.CapCapture
	} else {
		t.log.Debug().Err(err).Msg("Composite extension not available")
	}
	if !caps.Has(protocol.Required) {
		return caps, nil
	}

	t.escapeKeys = escapeKeycodes(xu)
	t.hotkeys = hotkeys.NewHandler(xu, conn.Root)

	if err := xwindow.New(xu, conn.Root).Listen(xproto.EventMaskPropertyChange); err != nil {
		conn.Close()
		t.conn = nil
		return 0, fmt.Errorf("listen on root window: %w", err)
	}
	xevent.PropertyNotifyFun(t.onRootProperty).Connect(xu, conn.Root)

	t.started = true
	t.producers.Add(2)
	go func() {
		defer t.producers.Done()
		// Not in Open: nobody reads Events until Open returns.
		t.syncClients()
		t.seedOrder()
		conn.EventLoop()
		t.log.Debug().Msg("X event loop stopped")
	}()
	go func() {
		defer t.producers.Done()
		t.captureLoop()
	}()
	go func() {
		t.producers.Wait()
		close(t.events)
	}()

	return caps, nil
}

// Events returns the event stream.
func (t *Transport) Events() <-chan protocol.Event {
	return t.events
}

// RequestCapture queues a capture of the window. The region is ignored: X11
// captures whole client windows.
func (t *Transport) RequestCapture(id protocol.RequestID, window platform.WindowID, _ platform.Rect) error {
	if t.conn == nil {
		return errNotOpen
	}
	select {
	case t.captures <- captureJob{id: id, window: xproto.Window(window)}:
		return nil
	case <-t.done:
		return protocol.ErrDisconnected
	default:
		return fmt.Errorf("capture queue full")
	}
}

// Activate sends _NET_ACTIVE_WINDOW for the window without waiting for the
// window manager.
func (t *Transport) Activate(window platform.WindowID) error {
	if t.conn == nil {
		return errNotOpen
	}
	go func() {
		if err := t.conn.FocusWindow(xproto.Window(window)); err != nil {
			t.log.Warn().Err(err).Stringer("window_id", window).Msg("Failed to activate window")
		}
	}()
	return nil
}

// BindHotkey grabs a key sequence such as "Mod1-Tab" on the root window.
// fn runs on the X event loop goroutine.
func (t *Transport) BindHotkey(sequence string, fn func()) error {
	if !t.started {
		return errNotOpen
	}
	return t.hotkeys.Register(sequence, fn)
}

// Close stops the goroutines and disconnects. The event channel is closed
// once every producer has exited.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		if t.conn != nil {
			t.conn.Quit()
			t.conn.Close()
		}
		if !t.started {
			close(t.events)
		}
	})
	return nil
}

func (t *Transport) emit(ev protocol.Event) {
	select {
	case t.events <- ev:
	case <-t.done:
	}
}

func (t *Transport) onRootProperty(xu *xgbutil.XUtil, ev xevent.PropertyNotifyEvent) {
	name, err := xprop.AtomName(xu, ev.Atom)
	if err != nil {
		return
	}
	switch name {
	case "_NET_CLIENT_LIST":
		t.syncClients()
	case "_NET_CURRENT_DESKTOP":
		if t.opts.CurrentDesktopOnly {
			t.syncClients()
			t.emitActive()
		}
	case "_NET_ACTIVE_WINDOW":
		t.emitActive()
	}
}

func (t *Transport) onClientProperty(xu *xgbutil.XUtil, ev xevent.PropertyNotifyEvent) {
	if !t.known[ev.Window] {
		return
	}
	name, err := xprop.AtomName(xu, ev.Atom)
	if err != nil {
		return
	}
	id := platform.WindowID(ev.Window)
	switch name {
	case "_NET_WM_NAME", "WM_NAME":
		t.emit(protocol.Event{Kind: protocol.ToplevelTitle, Window: id, Title: t.conn.WindowTitle(ev.Window)})
	case "WM_CLASS":
		t.emit(protocol.Event{Kind: protocol.ToplevelAppID, Window: id, AppID: t.conn.WindowAppID(ev.Window)})
	case "_NET_WM_DESKTOP":
		if t.opts.CurrentDesktopOnly {
			t.syncClients()
		}
	}
}

func (t *Transport) onClientConfigure(_ *xgbutil.XUtil, ev xevent.ConfigureNotifyEvent) {
	if !t.known[ev.Window] {
		return
	}
	// Event coordinates are relative to the frame; re-read in root space.
	if rect, ok := t.conn.WindowRect(ev.Window); ok {
		t.emit(protocol.Event{Kind: protocol.ToplevelConfigure, Window: platform.WindowID(ev.Window), Bounds: rect})
	}
}

// syncClients diffs _NET_CLIENT_LIST against the tracked set.
func (t *Transport) syncClients() {
	clients, err := ewmh.ClientListGet(t.conn.XUtil)
	if err != nil {
		t.log.Warn().Err(err).Msg("Failed to read _NET_CLIENT_LIST")
		return
	}

	desktop := -1
	if t.opts.CurrentDesktopOnly {
		if d, err := t.conn.GetCurrentDesktop(); err == nil {
			desktop = d
		}
	}

	wanted := make([]xproto.Window, 0, len(clients))
	for _, w := range clients {
		if t.known[w] {
			if desktop < 0 || t.conn.OnDesktop(w, desktop) {
				wanted = append(wanted, w)
			}
			continue
		}
		if !t.conn.IsNormalWindow(w) || t.conn.SkipByState(w) {
			continue
		}
		if desktop >= 0 && !t.conn.OnDesktop(w, desktop) {
			continue
		}
		wanted = append(wanted, w)
	}

	added, removed := diffClients(t.known, wanted)
	for _, w := range removed {
		delete(t.known, w)
		xevent.Detach(t.conn.XUtil, w)
		t.emit(protocol.Event{Kind: protocol.ToplevelClosed, Window: platform.WindowID(w)})
	}
	for _, w := range added {
		t.track(w)
	}
	if len(added) > 0 || len(removed) > 0 {
		t.emit(protocol.Event{Kind: protocol.ToplevelDone})
	}
}

func (t *Transport) track(w xproto.Window) {
	xu := t.conn.XUtil
	if err := xwindow.New(xu, w).Listen(xproto.EventMaskPropertyChange, xproto.EventMaskStructureNotify); err != nil {
		t.log.Debug().Err(err).Uint32("window_id", uint32(w)).Msg("Failed to listen on client")
	}
	xevent.PropertyNotifyFun(t.onClientProperty).Connect(xu, w)
	xevent.ConfigureNotifyFun(t.onClientConfigure).Connect(xu, w)
	t.known[w] = true

	win := t.conn.Describe(w)
	t.emit(protocol.Event{
		Kind:   protocol.ToplevelNew,
		Window: win.ID,
		Title:  win.Title,
		AppID:  win.AppID,
		PID:    win.PID,
		Bounds: win.Bounds,
	})
}

// seedOrder replays _NET_CLIENT_LIST_STACKING so the topmost client starts
// as the most recent one, then puts the active window ahead of it.
func (t *Transport) seedOrder() {
	stacking, err := ewmh.ClientListStackingGet(t.conn.XUtil)
	if err != nil {
		t.log.Debug().Err(err).Msg("Failed to read _NET_CLIENT_LIST_STACKING")
	}
	for _, ev := range stackingActivations(stacking, t.known) {
		t.emit(ev)
	}
	t.emitActive()
}

func (t *Transport) emitActive() {
	active, err := t.conn.GetActiveWindow()
	if err != nil || active == 0 || !t.known[active] {
		return
	}
	t.emit(protocol.Event{Kind: protocol.ToplevelActivated, Window: platform.WindowID(active)})
}

// diffClients returns windows in current that are not known, in list order,
// and known windows missing from current, sorted by id.
func diffClients(known map[xproto.Window]bool, current []xproto.Window) (added, removed []xproto.Window) {
	present := make(map[xproto.Window]bool, len(current))
	for _, w := range current {
		if present[w] {
			continue
		}
		present[w] = true
		if !known[w] {
			added = append(added, w)
		}
	}
	for w := range known {
		if !present[w] {
			removed = append(removed, w)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	return added, removed
}

// stackingActivations activates known windows bottom to top, leaving the
// topmost one first in recency order.
func stackingActivations(stacking []xproto.Window, known map[xproto.Window]bool) []protocol.Event {
	var out []protocol.Event
	for _, w := range stacking {
		if known[w] {
			out = append(out, protocol.Event{Kind: protocol.ToplevelActivated, Window: platform.WindowID(w)})
		}
	}
	return out
}

func hasAll(supported []string, names ...string) bool {
	set := make(map[string]bool, len(supported))
	for _, s := range supported {
		set[s] = true
	}
	for _, n := range names {
		if !set[n] {
			return false
		}
	}
	return true
}
