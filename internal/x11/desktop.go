package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
)

// allDesktops is the _NET_WM_DESKTOP value of sticky windows.
const allDesktops = 0xFFFFFFFF

// GetCurrentDesktop returns _NET_CURRENT_DESKTOP.
func (c *Connection) GetCurrentDesktop() (int, error) {
	desktop, err := ewmh.CurrentDesktopGet(c.XUtil)
	if err != nil {
		return 0, fmt.Errorf("failed to get current desktop: %w", err)
	}
	return int(desktop), nil
}

// OnDesktop reports whether the window is shown on desktop. Sticky windows
// and windows without _NET_WM_DESKTOP count as shown everywhere.
func (c *Connection) OnDesktop(windowID xproto.Window, desktop int) bool {
	d, err := ewmh.WmDesktopGet(c.XUtil, windowID)
	if err != nil {
		return true
	}
	return d == allDesktops || int(d) == desktop
}

// FocusWindow asks the window manager to activate the window. The
// _NET_ACTIVE_WINDOW message is built by hand; the ewmh helper panics on a
// uint/int assertion with this xgbutil version.
func (c *Connection) FocusWindow(windowID xproto.Window) error {
	atom, err := xproto.InternAtom(c.XUtil.Conn(), false,
		uint16(len("_NET_ACTIVE_WINDOW")), "_NET_ACTIVE_WINDOW").Reply()
	if err != nil {
		return fmt.Errorf("failed to intern _NET_ACTIVE_WINDOW: %w", err)
	}

	// Source 2 marks a pager, which window managers do not subject to focus
	// stealing prevention.
	const sourcePager = 2
	current, _ := c.GetActiveWindow()
	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: windowID,
		Type:   atom.Atom,
		Data:   xproto.ClientMessageDataUnionData32New([]uint32{sourcePager, xproto.TimeCurrentTime, uint32(current), 0, 0}),
	}

	return xproto.SendEventChecked(
		c.XUtil.Conn(),
		false,
		c.Root,
		xproto.EventMaskSubstructureRedirect|xproto.EventMaskSubstructureNotify,
		string(ev.Bytes()),
	).Check()
}
