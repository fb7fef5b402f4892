package hyprland

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/1broseidon/alttab/internal/platform"
	"github.com/1broseidon/alttab/internal/protocol"
	"github.com/1broseidon/alttab/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHyprland struct {
	commands *commandServer
	events   string
	conns    chan net.Conn
}

func newFakeHyprland(t *testing.T, clients string) *fakeHyprland {
	t.Helper()
	f := &fakeHyprland{
		commands: newCommandServer(t, func(string) string { return clients }),
		events:   filepath.Join(t.TempDir(), "events.sock"),
		conns:    make(chan net.Conn, 1),
	}
	ln, err := net.Listen("unix", f.events)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		f.conns <- conn
	}()
	return f
}

func (f *fakeHyprland) options(grim string) Options {
	return Options{
		CommandSocket:  f.commands.path,
		EventSocket:    f.events,
		CommandTimeout: time.Second,
		Grim:           grim,
		CaptureTimeout: time.Second,
	}
}

func (f *fakeHyprland) eventConn(t *testing.T) net.Conn {
	t.Helper()
	select {
	case c := <-f.conns:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("transport never connected to the event socket")
		return nil
	}
}

func requireTrue(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("true")
	if err != nil {
		t.Skip("true(1) not available")
	}
	return path
}

func next(t *testing.T, events <-chan protocol.Event) protocol.Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "event stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return protocol.Event{}
	}
}

func TestOpenWithoutGrimLacksCapture(t *testing.T) {
	f := newFakeHyprland(t, "[]")
	tr := NewTransport(f.options("alttab-test-no-such-grim"))

	caps, err := tr.Open(context.Background())
	require.NoError(t, err)
	assert.True(t, caps.Has(protocol.CapToplevel))
	assert.False(t, caps.Has(protocol.CapCapture))
	require.NoError(t, tr.Close())

	_, ok := <-tr.Events()
	assert.False(t, ok, "events must close after Close")
}

func TestOpenFailsWithoutCommandSocket(t *testing.T) {
	tr := NewTransport(Options{
		CommandSocket: filepath.Join(t.TempDir(), "missing.sock"),
		EventSocket:   filepath.Join(t.TempDir(), "missing2.sock"),
	})
	_, err := tr.Open(context.Background())
	require.Error(t, err)
	require.NoError(t, tr.Close())
}

func TestEventFlow(t *testing.T) {
	grim := requireTrue(t)
	f := newFakeHyprland(t, clientsJSON)
	tr := NewTransport(f.options(grim))

	caps, err := tr.Open(context.Background())
	require.NoError(t, err)
	require.True(t, caps.Has(protocol.Required))
	defer tr.Close()

	events := tr.Events()

	// Initial snapshot, most recently focused first.
	ev := next(t, events)
	assert.Equal(t, protocol.ToplevelNew, ev.Kind)
	assert.Equal(t, platform.WindowID(0x10), ev.Window)
	assert.Equal(t, "kitty", ev.AppID)
	assert.Equal(t, 100, ev.PID)
	assert.Equal(t, platform.Rect{X: 800, Width: 1120, Height: 1080}, ev.Bounds)

	assert.Equal(t, platform.WindowID(0x20), next(t, events).Window)
	assert.Equal(t, platform.WindowID(0x50), next(t, events).Window)

	ev = next(t, events)
	assert.Equal(t, protocol.ToplevelActivated, ev.Kind)
	assert.Equal(t, platform.WindowID(0x10), ev.Window)
	assert.Equal(t, protocol.ToplevelDone, next(t, events).Kind)

	conn := f.eventConn(t)

	// A new window arrives without geometry; the refresh fills it in.
	f.commands.setHandler(func(string) string {
		return `[{"address": "0x99", "mapped": true, "at": [10, 20], "size": [300, 200], "class": "foot", "title": "sh", "focusHistoryID": 0}]`
	})
	_, err = fmt.Fprint(conn, "openwindow>>99,1,foot,sh\nwindowtitlev2>>99,vim\n")
	require.NoError(t, err)

	ev = next(t, events)
	assert.Equal(t, protocol.ToplevelNew, ev.Kind)
	assert.Equal(t, platform.WindowID(0x99), ev.Window)
	assert.Equal(t, "foot", ev.AppID)
	assert.Equal(t, protocol.ToplevelDone, next(t, events).Kind)

	ev = next(t, events)
	assert.Equal(t, protocol.ToplevelTitle, ev.Kind)
	assert.Equal(t, "vim", ev.Title)

	ev = next(t, events)
	assert.Equal(t, protocol.ToplevelConfigure, ev.Kind)
	assert.Equal(t, platform.WindowID(0x99), ev.Window)
	assert.Equal(t, platform.Rect{X: 10, Y: 20, Width: 300, Height: 200}, ev.Bounds)

	_, err = fmt.Fprint(conn, "closewindow>>99\n")
	require.NoError(t, err)
	ev = next(t, events)
	assert.Equal(t, protocol.ToplevelClosed, ev.Kind)
	assert.Equal(t, protocol.ToplevelDone, next(t, events).Kind)

	// true(1) exits cleanly with no PNG on stdout.
	require.NoError(t, tr.RequestCapture(7, 0x10, platform.Rect{Width: 10, Height: 10}))
	ev = next(t, events)
	assert.Equal(t, protocol.CaptureFailed, ev.Kind)
	assert.Equal(t, protocol.RequestID(7), ev.Request)
	assert.Error(t, ev.Err)

	assert.Error(t, tr.RequestCapture(8, 0x10, platform.Rect{}))
}

func TestEventSocketCloseEndsStream(t *testing.T) {
	grim := requireTrue(t)
	f := newFakeHyprland(t, "[]")
	tr := NewTransport(f.options(grim))

	_, err := tr.Open(context.Background())
	require.NoError(t, err)
	defer tr.Close()

	assert.Equal(t, protocol.ToplevelDone, next(t, tr.Events()).Kind)
	f.eventConn(t).Close()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-tr.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("event stream did not close")
		}
	}
}

func TestGrimArgs(t *testing.T) {
	assert.Equal(t,
		[]string{"-g", "-10,20 300x200", "-t", "png", "-"},
		grimArgs(platform.Rect{X: -10, Y: 20, Width: 300, Height: 200}),
	)
}

// A refresh racing an openwindow line must never leave the window with the
// empty bounds it was announced with.
func TestRefreshRacingOpenKeepsGeometry(t *testing.T) {
	raw, ok := parseLine("openwindow>>99,1,foot,sh")
	require.True(t, ok)
	want := platform.Rect{X: 10, Y: 20, Width: 300, Height: 200}
	clients := []ClientInfo{{Address: "0x99", Mapped: true, At: [2]int{10, 20}, Size: [2]int{300, 200}}}

	for i := 0; i < 200; i++ {
		tr := NewTransport(Options{})
		out, _ := translate(raw)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			tr.publish(out)
		}()
		go func() {
			defer wg.Done()
			tr.publishGeometry(clients)
		}()
		wg.Wait()
		// The refresh requested by the open event.
		tr.publishGeometry(clients)

		reg, w := registry.New()
	drain:
		for {
			select {
			case ev := <-tr.Events():
				switch ev.Kind {
				case protocol.ToplevelNew:
					w.Add(platform.Window{ID: ev.Window, Title: ev.Title, AppID: ev.AppID, Bounds: ev.Bounds})
				case protocol.ToplevelConfigure:
					_ = w.Configure(ev.Window, ev.Bounds)
				}
			default:
				break drain
			}
		}
		tr.Close()

		win, ok := reg.Get(0x99)
		require.True(t, ok, "iteration %d", i)
		require.Equal(t, want, win.Bounds, "iteration %d", i)
	}
}
