package x11

import (
	"fmt"

	"github.com/1broseidon/alttab/internal/platform"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
)

// Monitor is one enabled RandR CRTC.
type Monitor struct {
	Name   string
	Bounds platform.Rect
}

// Monitors lists the enabled CRTCs.
func (c *Connection) Monitors() ([]Monitor, error) {
	conn := c.XUtil.Conn()
	if err := randr.Init(conn); err != nil {
		return nil, fmt.Errorf("randr init failed: %w", err)
	}
	resources, err := randr.GetScreenResources(conn, c.Root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}

	var monitors []Monitor
	for i, crtc := range resources.Crtcs {
		info, err := randr.GetCrtcInfo(conn, crtc, resources.ConfigTimestamp).Reply()
		if err != nil || info.Width == 0 || info.Height == 0 || len(info.Outputs) == 0 {
			continue
		}
		name := fmt.Sprintf("crtc%d", i)
		if out, err := randr.GetOutputInfo(conn, info.Outputs[0], resources.ConfigTimestamp).Reply(); err == nil {
			name = string(out.Name)
		}
		monitors = append(monitors, Monitor{
			Name:   name,
			Bounds: platform.Rect{X: int(info.X), Y: int(info.Y), Width: int(info.Width), Height: int(info.Height)},
		})
	}
	return monitors, nil
}

// OverlayArea returns the part of the focused monitor not covered by docks.
// The focused monitor holds the centre of the active window, else the
// pointer, else it is the first one.
func (c *Connection) OverlayArea() (platform.Rect, error) {
	monitors, err := c.Monitors()
	if err != nil {
		return platform.Rect{}, err
	}
	if len(monitors) == 0 {
		return platform.Rect{}, fmt.Errorf("no monitors found")
	}

	var probes [][2]int
	if active, err := ewmh.ActiveWindowGet(c.XUtil); err == nil && active != 0 {
		if r, ok := c.WindowRect(active); ok {
			probes = append(probes, [2]int{r.X + r.Width/2, r.Y + r.Height/2})
		}
	}
	if p, err := xproto.QueryPointer(c.XUtil.Conn(), c.Root).Reply(); err == nil {
		probes = append(probes, [2]int{int(p.RootX), int(p.RootY)})
	}
	mon := pickMonitor(monitors, probes)

	screen := c.XUtil.Screen()
	return c.dockInsets(mon, int(screen.WidthInPixels), int(screen.HeightInPixels)).shrink(mon), nil
}

// pickMonitor returns the monitor containing the first probe point that
// lands on any monitor.
func pickMonitor(monitors []Monitor, probes [][2]int) platform.Rect {
	for _, p := range probes {
		for _, m := range monitors {
			if m.Bounds.Contains(p[0], p[1]) {
				return m.Bounds
			}
		}
	}
	return monitors[0].Bounds
}

type insets struct {
	left, right, top, bottom int
}

func (in insets) shrink(r platform.Rect) platform.Rect {
	out := platform.Rect{
		X:      r.X + in.left,
		Y:      r.Y + in.top,
		Width:  r.Width - in.left - in.right,
		Height: r.Height - in.top - in.bottom,
	}
	if out.Width < 1 || out.Height < 1 {
		return r
	}
	return out
}

// dockInsets collects the struts of every dock window that overlap mon.
func (c *Connection) dockInsets(mon platform.Rect, rootW, rootH int) insets {
	var acc insets
	clients, err := ewmh.ClientListGet(c.XUtil)
	if err != nil {
		return acc
	}
	for _, w := range clients {
		types, err := ewmh.WmWindowTypeGet(c.XUtil, w)
		if err != nil || !contains(types, "_NET_WM_WINDOW_TYPE_DOCK") {
			continue
		}
		if sp, err := ewmh.WmStrutPartialGet(c.XUtil, w); err == nil {
			addStrut(&acc, mon, rootW, rootH, sp)
		} else if s, err := ewmh.WmStrutGet(c.XUtil, w); err == nil {
			addStrut(&acc, mon, rootW, rootH, fullStrut(s, rootW, rootH))
		}
	}
	return acc
}

// fullStrut widens a legacy _NET_WM_STRUT to span the whole root edge.
func fullStrut(s *ewmh.WmStrut, rootW, rootH int) *ewmh.WmStrutPartial {
	return &ewmh.WmStrutPartial{
		Left: s.Left, Right: s.Right, Top: s.Top, Bottom: s.Bottom,
		LeftEndY: uint(rootH - 1), RightEndY: uint(rootH - 1),
		TopEndX: uint(rootW - 1), BottomEndX: uint(rootW - 1),
	}
}

// addStrut grows acc by the part of each reserved edge band that overlaps mon.
func addStrut(acc *insets, mon platform.Rect, rootW, rootH int, sp *ewmh.WmStrutPartial) {
	if sp.Top > 0 {
		band := platform.Rect{X: int(sp.TopStartX), Width: int(sp.TopEndX)-int(sp.TopStartX)+1, Height: int(sp.Top)}
		acc.top = max(acc.top, overlap(mon, band).Height)
	}
	if sp.Bottom > 0 {
		band := platform.Rect{X: int(sp.BottomStartX), Y: rootH - int(sp.Bottom), Width: int(sp.BottomEndX)-int(sp.BottomStartX)+1, Height: int(sp.Bottom)}
		acc.bottom = max(acc.bottom, overlap(mon, band).Height)
	}
	if sp.Left > 0 {
		band := platform.Rect{Y: int(sp.LeftStartY), Width: int(sp.Left), Height: int(sp.LeftEndY)-int(sp.LeftStartY)+1}
		acc.left = max(acc.left, overlap(mon, band).Width)
	}
	if sp.Right > 0 {
		band := platform.Rect{X: rootW - int(sp.Right), Y: int(sp.RightStartY), Width: int(sp.Right), Height: int(sp.RightEndY)-int(sp.RightStartY)+1}
		acc.right = max(acc.right, overlap(mon, band).Width)
	}
}

// overlap returns the intersection of a and b, or the zero Rect.
func overlap(a, b platform.Rect) platform.Rect {
	x1, y1 := max(a.X, b.X), max(a.Y, b.Y)
	x2, y2 := min(a.X+a.Width, b.X+b.Width), min(a.Y+a.Height, b.Y+b.Height)
	if x2 <= x1 || y2 <= y1 {
		return platform.Rect{}
	}
	return platform.Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
