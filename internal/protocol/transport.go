package protocol

import (
	"context"
	"strings"

	"github.com/1broseidon/alttab/internal/platform"
)

// Capability is a bit set of compositor protocol extensions.
type Capability uint8

const (
	// CapToplevel covers window enumeration, metadata and activation.
	CapToplevel Capability = 1 << iota
	// CapCapture covers region/window screen capture.
	CapCapture
)

// Required is the capability set a Session refuses to run without.
const Required = CapToplevel | CapCapture

// Has reports whether every bit of other is set.
func (c Capability) Has(other Capability) bool {
	return c&other == other
}

// String returns the capability names joined by commas.
func (c Capability) String() string {
	var names []string
	if c&CapToplevel != 0 {
		names = append(names, "toplevel")
	}
	if c&CapCapture != 0 {
		names = append(names, "capture")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// Transport is a compositor connection. Implementations deliver every event on
// a single channel in compositor order and never block in RequestCapture or
// Activate.
type Transport interface {
	Name() string
	// Open connects and reports the capabilities the compositor advertises.
	Open(ctx context.Context) (Capability, error)
	// Events is closed when the connection is lost or closed.
	Events() <-chan Event
	RequestCapture(id RequestID, window platform.WindowID, region platform.Rect) error
	Activate(window platform.WindowID) error
	Close() error
}

// InputProber is implemented by transports that can observe global keyboard
// state. Without it, release and cancel must come in over IPC.
type InputProber interface {
	// ModifiersHeld reports whether any of the named modifiers is still down.
	ModifiersHeld(names []string) (bool, error)
	EscapePressed() (bool, error)
}

// HotkeyBinder is implemented by transports that can grab global key
// sequences themselves instead of relying on the window manager's bindings.
type HotkeyBinder interface {
	// BindHotkey calls fn on every press of sequence. fn must not block.
	BindHotkey(sequence string, fn func()) error
}

// CaptureSink receives capture completions in delivery order.
type CaptureSink interface {
	Complete(id RequestID, frame Frame)
	Fail(id RequestID, err error)
}
