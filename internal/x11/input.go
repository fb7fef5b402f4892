package x11

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/keybind"
)

func escapeKeycodes(xu *xgbutil.XUtil) []xproto.Keycode {
	return keybind.StrToKeycodes(xu, "Escape")
}

// modifierMask maps modifier names to the core protocol key-button mask. The
// second result is false when none of the names are recognised.
func modifierMask(names []string) (uint16, bool) {
	var mask uint16
	known := false
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "alt", "mod1":
			mask |= xproto.ModMask1
		case "super", "mod4", "logo", "meta":
			mask |= xproto.ModMask4
		case "ctrl", "control":
			mask |= xproto.ModMaskControl
		case "shift":
			mask |= xproto.ModMaskShift
		default:
			continue
		}
		known = true
	}
	return mask, known
}

// ModifiersHeld reports whether any named modifier is down. Unknown names are
// reported as held so the session waits for an explicit release.
func (t *Transport) ModifiersHeld(names []string) (bool, error) {
	if t.conn == nil {
		return false, errNotOpen
	}
	mask, ok := modifierMask(names)
	if !ok {
		return true, nil
	}
	reply, err := xproto.QueryPointer(t.conn.XUtil.Conn(), t.conn.Root).Reply()
	if err != nil {
		return false, fmt.Errorf("failed to query pointer: %w", err)
	}
	return reply.Mask&mask != 0, nil
}

// EscapePressed reports whether an Escape key is down.
func (t *Transport) EscapePressed() (bool, error) {
	if t.conn == nil {
		return false, errNotOpen
	}
	if len(t.escapeKeys) == 0 {
		return false, nil
	}
	reply, err := xproto.QueryKeymap(t.conn.XUtil.Conn()).Reply()
	if err != nil {
		return false, fmt.Errorf("failed to query keymap: %w", err)
	}
	for _, code := range t.escapeKeys {
		if keyDown(reply.Keys, code) {
			return true, nil
		}
	}
	return false, nil
}

// keyDown reads one bit of a QueryKeymap vector.
func keyDown(keys []byte, code xproto.Keycode) bool {
	idx := int(code) / 8
	if idx >= len(keys) {
		return false
	}
	return keys[idx]&(1<<(uint(code)%8)) != 0
}
