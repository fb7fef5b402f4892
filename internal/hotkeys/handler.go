// Package hotkeys grabs global key sequences on the X root window.
package hotkeys

import (
	"fmt"
	"strings"
	"sync"

	"github.com/1broseidon/alttab/internal/logger"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/keybind"
	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/rs/zerolog"
)

// Handler manages global keyboard shortcuts. Callbacks run on the X event
// loop goroutine and must not block.
type Handler struct {
	xu   *xgbutil.XUtil
	root xproto.Window
	log  *zerolog.Logger
}

var ignoreModsOnce sync.Once

// NewHandler creates a handler for the root window of xu. keybind must
// already be initialized on xu.
func NewHandler(xu *xgbutil.XUtil, root xproto.Window) *Handler {
	ignoreModsOnce.Do(func() {
		configureIgnoreMods(xu)
	})
	return &Handler{
		xu:   xu,
		root: root,
		log:  logger.WithComponent("hotkeys"),
	}
}

// Register grabs keySequence (xgbutil syntax, e.g. "Mod1-Tab") and calls
// callback on every press. Auto-repeat presses are delivered too.
func (h *Handler) Register(keySequence string, callback func()) error {
	if strings.TrimSpace(keySequence) == "" {
		return fmt.Errorf("empty key sequence")
	}
	err := keybind.KeyPressFun(func(xu *xgbutil.XUtil, ev xevent.KeyPressEvent) {
		h.log.Trace().Str("keys", keySequence).Msg("Hotkey pressed")
		callback()
	}).Connect(h.xu, h.root, keySequence, true)
	if err != nil {
		return fmt.Errorf("failed to grab %q: %w", keySequence, err)
	}
	h.log.Debug().Str("keys", keySequence).Msg("Hotkey registered")
	return nil
}

// Modifiers returns the lower-cased modifier names of a key sequence, i.e.
// every dash-separated part but the last.
func Modifiers(keySequence string) []string {
	parts := strings.Split(strings.TrimSpace(keySequence), "-")
	if len(parts) < 2 {
		return nil
	}
	mods := make([]string, 0, len(parts)-1)
	for _, p := range parts[:len(parts)-1] {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			mods = append(mods, p)
		}
	}
	return mods
}

// configureIgnoreMods makes grabs fire regardless of CapsLock, NumLock and
// ScrollLock.
func configureIgnoreMods(xu *xgbutil.XUtil) {
	caps := uint16(xproto.ModMaskLock)

	numLock := modMaskForKeysym(xu, "Num_Lock")
	scrollLock := modMaskForKeysym(xu, "Scroll_Lock")

	base := []uint16{caps}
	if numLock != 0 && numLock != caps {
		base = append(base, numLock)
	}
	if scrollLock != 0 && scrollLock != caps && scrollLock != numLock {
		base = append(base, scrollLock)
	}

	xevent.IgnoreMods = lockCombinations(base)
}

// lockCombinations returns 0 plus the OR of every non-empty subset of base.
func lockCombinations(base []uint16) []uint16 {
	seen := map[uint16]bool{0: true}
	out := []uint16{0}
	for subset := 1; subset < (1 << len(base)); subset++ {
		var mask uint16
		for bit := range base {
			if subset&(1<<bit) != 0 {
				mask |= base[bit]
			}
		}
		if !seen[mask] {
			seen[mask] = true
			out = append(out, mask)
		}
	}
	return out
}

func modMaskForKeysym(xu *xgbutil.XUtil, keysym string) uint16 {
	for _, keycode := range keybind.StrToKeycodes(xu, keysym) {
		if mask := keybind.ModGet(xu, keycode); mask != 0 {
			return mask
		}
	}
	return 0
}
