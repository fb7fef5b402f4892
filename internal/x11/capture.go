package x11

import (
	"fmt"

	"github.com/1broseidon/alttab/internal/platform"
	"github.com/1broseidon/alttab/internal/protocol"
	"github.com/BurntSushi/xgb/composite"
	"github.com/BurntSushi/xgb/xproto"
)

func (t *Transport) captureLoop() {
	for {
		select {
		case <-t.done:
			return
		case job := <-t.captures:
			frame, err := t.conn.CaptureWindow(job.window)
			if err != nil {
				t.log.Debug().Err(err).Uint32("window_id", uint32(job.window)).Msg("Capture failed")
				t.emit(protocol.Event{Kind: protocol.CaptureFailed, Window: platform.WindowID(job.window), Request: job.id, Err: err})
				continue
			}
			t.emit(protocol.Event{Kind: protocol.CaptureReady, Window: platform.WindowID(job.window), Request: job.id, Frame: frame})
		}
	}
}

// CaptureWindow reads the window contents as a BGRX frame. With Composite
// the off-screen pixmap is used, so obscured windows capture correctly.
func (c *Connection) CaptureWindow(win xproto.Window) (protocol.Frame, error) {
	conn := c.XUtil.Conn()

	geom, err := xproto.GetGeometry(conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return protocol.Frame{}, fmt.Errorf("failed to get geometry: %w", err)
	}
	if geom.Width == 0 || geom.Height == 0 {
		return protocol.Frame{}, fmt.Errorf("window has no area")
	}
	if geom.Depth != 24 && geom.Depth != 32 {
		return protocol.Frame{}, fmt.Errorf("unsupported depth %d", geom.Depth)
	}

	drawable := xproto.Drawable(win)
	if err := composite.RedirectWindowChecked(conn, win, composite.RedirectAutomatic).Check(); err == nil {
		defer composite.UnredirectWindow(conn, win, composite.RedirectAutomatic)

		if pixmap, err := xproto.NewPixmapId(conn); err == nil {
			if err := composite.NameWindowPixmapChecked(conn, win, pixmap).Check(); err == nil {
				drawable = xproto.Drawable(pixmap)
				defer xproto.FreePixmap(conn, pixmap)
			}
		}
	}

	reply, err := xproto.GetImage(
		conn,
		xproto.ImageFormatZPixmap,
		drawable,
		0, 0,
		geom.Width, geom.Height,
		0xffffffff,
	).Reply()
	if err != nil {
		return protocol.Frame{}, fmt.Errorf("failed to get image: %w", err)
	}

	w, h := int(geom.Width), int(geom.Height)
	return protocol.Frame{
		Format: protocol.FormatBGRX,
		Width:  w,
		Height: h,
		Stride: w * 4,
		Data:   reply.Data,
	}, nil
}
