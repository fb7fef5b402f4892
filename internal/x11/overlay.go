package x11

import (
	"fmt"
	"image"
	"sync"

	"github.com/1broseidon/alttab/internal/logger"
	"github.com/1broseidon/alttab/internal/platform"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/xgraphics"
	"github.com/rs/zerolog"
)

// Overlay presents rendered frames in an override-redirect window centred on
// the active monitor. It owns a separate connection so drawing never contends
// with the transport event loop.
type Overlay struct {
	mu     sync.Mutex
	conn   *Connection
	log    *zerolog.Logger
	window xproto.Window
	img    *xgraphics.Image
	mapped bool
	area   platform.Rect
	closed bool
}

// OpenOverlay connects to the X server and creates the (unmapped) overlay
// window.
func OpenOverlay() (*Overlay, error) {
	conn, err := NewConnection()
	if err != nil {
		return nil, err
	}
	o := &Overlay{conn: conn, log: logger.WithComponent("x11-overlay")}
	if o.window, err = o.createWindow(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create overlay window: %w", err)
	}
	go o.drain()
	return o, nil
}

// drain discards events and unchecked errors so the connection queue never
// fills up.
func (o *Overlay) drain() {
	for {
		ev, err := o.conn.XUtil.Conn().WaitForEvent()
		if ev == nil && err == nil {
			return
		}
		if err != nil {
			o.log.Debug().Str("error", err.Error()).Msg("X error on overlay connection")
		}
	}
}

func (o *Overlay) createWindow() (xproto.Window, error) {
	xc := o.conn.XUtil.Conn()
	screen := o.conn.XUtil.Screen()

	wid, err := xproto.NewWindowId(xc)
	if err != nil {
		return 0, err
	}

	err = xproto.CreateWindowChecked(
		xc,
		screen.RootDepth,
		wid,
		o.conn.Root,
		0, 0,
		1, 1,
		0,
		xproto.WindowClassInputOutput,
		screen.RootVisual,
		xproto.CwOverrideRedirect|xproto.CwBackPixel,
		// Value order follows mask bit order: back_pixel, override_redirect.
		[]uint32{0, 1},
	).Check()
	if err != nil {
		return 0, err
	}
	return wid, nil
}

// Present copies the canvas into the window, mapping and centring it on the
// first frame after a Hide.
func (o *Overlay) Present(canvas *image.RGBA) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("overlay closed")
	}
	size := canvas.Bounds().Size()
	if size.X <= 0 || size.Y <= 0 {
		return fmt.Errorf("invalid canvas size %dx%d", size.X, size.Y)
	}

	if !o.mapped {
		o.area = o.monitorArea()
	}

	if o.img == nil || o.img.Rect.Dx() != size.X || o.img.Rect.Dy() != size.Y {
		if o.img != nil {
			o.img.Destroy()
		}
		o.img = xgraphics.New(o.conn.XUtil, image.Rect(0, 0, size.X, size.Y))
		if err := o.img.XSurfaceSet(o.window); err != nil {
			o.img = nil
			return fmt.Errorf("failed to create overlay surface: %w", err)
		}
	}
	copyBGRA(o.img.Pix, o.img.Stride, canvas)

	x, y := centerIn(o.area, size.X, size.Y)
	xproto.ConfigureWindow(
		o.conn.XUtil.Conn(),
		o.window,
		xproto.ConfigWindowX|xproto.ConfigWindowY|xproto.ConfigWindowWidth|xproto.ConfigWindowHeight|xproto.ConfigWindowStackMode,
		[]uint32{
			uint32(x),
			uint32(y),
			uint32(size.X),
			uint32(size.Y),
			xproto.StackModeAbove,
		},
	)

	o.img.XDraw()
	o.img.XPaint(o.window)

	if !o.mapped {
		if err := xproto.MapWindowChecked(o.conn.XUtil.Conn(), o.window).Check(); err != nil {
			return fmt.Errorf("failed to map overlay: %w", err)
		}
		o.mapped = true
	}
	return nil
}

// Hide unmaps the window. The surface is kept for the next session.
func (o *Overlay) Hide() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed || !o.mapped {
		return nil
	}
	o.mapped = false
	return xproto.UnmapWindowChecked(o.conn.XUtil.Conn(), o.window).Check()
}

// Close destroys the window and disconnects.
func (o *Overlay) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true
	if o.img != nil {
		o.img.Destroy()
		o.img = nil
	}
	xproto.DestroyWindow(o.conn.XUtil.Conn(), o.window)
	o.conn.Close()
	return nil
}

func (o *Overlay) monitorArea() platform.Rect {
	if area, err := o.conn.OverlayArea(); err == nil {
		return area
	}
	screen := o.conn.XUtil.Screen()
	return platform.Rect{Width: int(screen.WidthInPixels), Height: int(screen.HeightInPixels)}
}

// centerIn returns the origin of a w x h box centred in area. Boxes larger
// than the area are pinned to its top-left corner.
func centerIn(area platform.Rect, w, h int) (int, int) {
	x := area.X + (area.Width-w)/2
	y := area.Y + (area.Height-h)/2
	if x < area.X {
		x = area.X
	}
	if y < area.Y {
		y = area.Y
	}
	return x, y
}

// copyBGRA converts an RGBA canvas into a BGRA buffer with the given stride.
func copyBGRA(dst []byte, stride int, src *image.RGBA) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	for y := 0; y < h; y++ {
		s := src.Pix[y*src.Stride : y*src.Stride+w*4]
		d := dst[y*stride : y*stride+w*4]
		for x := 0; x < w*4; x += 4 {
			d[x] = s[x+2]
			d[x+1] = s[x+1]
			d[x+2] = s[x]
			d[x+3] = s[x+3]
		}
	}
}
