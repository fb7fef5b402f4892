package protocol

import (
	"fmt"

	"github.com/1broseidon/alttab/internal/platform"
)

// RequestID identifies one capture request issued through a Session.
type RequestID uint64

// EventKind enumerates compositor events a transport can deliver.
type EventKind int

const (
	ToplevelNew EventKind = iota + 1
	ToplevelTitle
	ToplevelAppID
	ToplevelConfigure
	ToplevelActivated
	ToplevelClosed
	// ToplevelDone marks the end of a batch of toplevel updates.
	ToplevelDone
	CaptureReady
	CaptureFailed
)

// String returns the string representation of the kind.
func (k EventKind) String() string {
	switch k {
	case ToplevelNew:
		return "toplevel_new"
	case ToplevelTitle:
		return "toplevel_title"
	case ToplevelAppID:
		return "toplevel_app_id"
	case ToplevelConfigure:
		return "toplevel_configure"
	case ToplevelActivated:
		return "toplevel_activated"
	case ToplevelClosed:
		return "toplevel_closed"
	case ToplevelDone:
		return "toplevel_done"
	case CaptureReady:
		return "capture_ready"
	case CaptureFailed:
		return "capture_failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// PixelFormat describes the layout of a captured buffer.
type PixelFormat int

const (
	// FormatBGRX is 32bpp little-endian XRGB as returned by X11 ZPixmap images.
	FormatBGRX PixelFormat = iota
	// FormatBGRA is FormatBGRX with a meaningful alpha byte.
	FormatBGRA
	FormatRGBA
	// FormatPNG holds an encoded PNG stream in Data.
	FormatPNG
)

// Frame is a raw capture buffer. The receiver owns Data.
type Frame struct {
	Format PixelFormat
	Width  int
	Height int
	Stride int
	Data   []byte
}

// Event is one compositor notification. Only the fields relevant to Kind are set.
type Event struct {
	Kind   EventKind
	Window platform.WindowID

	Title  string
	AppID  string
	PID    int
	Bounds platform.Rect

	Request RequestID
	Frame   Frame
	Err     error
}
