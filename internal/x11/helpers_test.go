package x11

import (
	"image"
	"image/color"
	"reflect"
	"testing"

	"github.com/1broseidon/alttab/internal/platform"
	"github.com/1broseidon/alttab/internal/protocol"
	"github.com/1broseidon/alttab/internal/registry"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
)

func TestIsNormalType(t *testing.T) {
	tests := []struct {
		name  string
		types []string
		want  bool
	}{
		{"no types", nil, true},
		{"normal", []string{"_NET_WM_WINDOW_TYPE_NORMAL"}, true},
		{"dialog", []string{"_NET_WM_WINDOW_TYPE_DIALOG"}, true},
		{"dock", []string{"_NET_WM_WINDOW_TYPE_DOCK"}, false},
		{"desktop", []string{"_NET_WM_WINDOW_TYPE_DESKTOP"}, false},
		{"notification", []string{"_NET_WM_WINDOW_TYPE_NOTIFICATION"}, false},
		{"first match wins", []string{"_NET_WM_WINDOW_TYPE_NORMAL", "_NET_WM_WINDOW_TYPE_DOCK"}, true},
		{"only unknown types", []string{"_KDE_NET_WM_WINDOW_TYPE_OVERRIDE"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNormalType(tt.types); got != tt.want {
				t.Errorf("isNormalType(%v) = %v, want %v", tt.types, got, tt.want)
			}
		})
	}
}

func TestSkipState(t *testing.T) {
	if skipState(nil) {
		t.Error("empty state should not be skipped")
	}
	if skipState([]string{"_NET_WM_STATE_MAXIMIZED_VERT", "_NET_WM_STATE_FOCUSED"}) {
		t.Error("maximized window should not be skipped")
	}
	if !skipState([]string{"_NET_WM_STATE_SKIP_TASKBAR"}) {
		t.Error("skip-taskbar window should be skipped")
	}
	if !skipState([]string{"_NET_WM_STATE_ABOVE", "_NET_WM_STATE_SKIP_PAGER"}) {
		t.Error("skip-pager window should be skipped")
	}
}

func TestDiffClients(t *testing.T) {
	known := map[xproto.Window]bool{1: true, 2: true, 5: true}
	added, removed := diffClients(known, []xproto.Window{4, 2, 3, 3, 1})

	if want := []xproto.Window{4, 3}; !reflect.DeepEqual(added, want) {
		t.Errorf("added = %v, want %v", added, want)
	}
	if want := []xproto.Window{5}; !reflect.DeepEqual(removed, want) {
		t.Errorf("removed = %v, want %v", removed, want)
	}

	added, removed = diffClients(map[xproto.Window]bool{7: true, 3: true}, nil)
	if added != nil {
		t.Errorf("added = %v, want none", added)
	}
	if want := []xproto.Window{3, 7}; !reflect.DeepEqual(removed, want) {
		t.Errorf("removed = %v, want %v", removed, want)
	}
}

func TestStackingActivationsPutTopmostFirst(t *testing.T) {
	// _NET_CLIENT_LIST is oldest first; the stacking list is bottom to top.
	reg, w := registry.New()
	for _, id := range []platform.WindowID{1, 2, 3} {
		w.Add(platform.Window{ID: id})
	}
	known := map[xproto.Window]bool{1: true, 2: true, 3: true}

	for _, ev := range stackingActivations([]xproto.Window{2, 9, 1, 3}, known) {
		if ev.Kind != protocol.ToplevelActivated {
			t.Fatalf("kind = %v, want activated", ev.Kind)
		}
		if err := w.Activate(ev.Window); err != nil {
			t.Fatalf("activate %v: %v", ev.Window, err)
		}
	}

	var got []platform.WindowID
	for _, win := range reg.List() {
		got = append(got, win.ID)
	}
	if want := []platform.WindowID{3, 1, 2}; !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}

	if got := stackingActivations(nil, known); got != nil {
		t.Errorf("empty stacking = %v, want none", got)
	}
}

func TestHasAll(t *testing.T) {
	supported := []string{"_NET_CLIENT_LIST", "_NET_ACTIVE_WINDOW", "_NET_WM_NAME"}
	if !hasAll(supported, "_NET_CLIENT_LIST", "_NET_ACTIVE_WINDOW") {
		t.Error("expected both atoms to be supported")
	}
	if hasAll(supported, "_NET_CLIENT_LIST", "_NET_WM_DESKTOP") {
		t.Error("expected _NET_WM_DESKTOP to be missing")
	}
}

func TestModifierMask(t *testing.T) {
	tests := []struct {
		names []string
		mask  uint16
		known bool
	}{
		{[]string{"alt"}, xproto.ModMask1, true},
		{[]string{"Super"}, xproto.ModMask4, true},
		{[]string{"logo", "shift"}, xproto.ModMask4 | xproto.ModMaskShift, true},
		{[]string{"ctrl", "control"}, xproto.ModMaskControl, true},
		{[]string{"hyper"}, 0, false},
		{nil, 0, false},
		{[]string{"hyper", " alt "}, xproto.ModMask1, true},
	}
	for _, tt := range tests {
		mask, known := modifierMask(tt.names)
		if mask != tt.mask || known != tt.known {
			t.Errorf("modifierMask(%v) = (%#x, %v), want (%#x, %v)", tt.names, mask, known, tt.mask, tt.known)
		}
	}
}

func TestKeyDown(t *testing.T) {
	keys := make([]byte, 32)
	keys[9/8] |= 1 << (9 % 8)

	if !keyDown(keys, 9) {
		t.Error("keycode 9 should be down")
	}
	if keyDown(keys, 10) {
		t.Error("keycode 10 should be up")
	}
	if keyDown(keys[:1], 9) {
		t.Error("short keymap should report up")
	}
}

func TestCenterIn(t *testing.T) {
	area := platform.Rect{X: 1920, Y: 0, Width: 1920, Height: 1080}

	x, y := centerIn(area, 600, 200)
	if x != 1920+660 || y != 440 {
		t.Errorf("centerIn = (%d, %d), want (2580, 440)", x, y)
	}

	x, y = centerIn(area, 4000, 2000)
	if x != 1920 || y != 0 {
		t.Errorf("oversized centerIn = (%d, %d), want (1920, 0)", x, y)
	}
}

func TestCopyBGRA(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	src.Set(0, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	src.Set(1, 1, color.RGBA{R: 200, G: 100, B: 50, A: 255})

	stride := 12
	dst := make([]byte, stride*2)
	copyBGRA(dst, stride, src)

	if got := dst[0:4]; !reflect.DeepEqual(got, []byte{30, 20, 10, 255}) {
		t.Errorf("pixel (0,0) = %v", got)
	}
	if got := dst[stride+4 : stride+8]; !reflect.DeepEqual(got, []byte{50, 100, 200, 255}) {
		t.Errorf("pixel (1,1) = %v", got)
	}
	if got := dst[8:12]; !reflect.DeepEqual(got, []byte{0, 0, 0, 0}) {
		t.Errorf("padding was written: %v", got)
	}
}

func TestAddStrut(t *testing.T) {
	left := platform.Rect{Width: 1920, Height: 1080}
	right := platform.Rect{X: 1920, Width: 1920, Height: 1080}

	// A 30px top panel spanning only the left monitor.
	sp := &ewmh.WmStrutPartial{Top: 30, TopStartX: 0, TopEndX: 1919}

	var accLeft, accRight insets
	addStrut(&accLeft, left, 3840, 1080, sp)
	addStrut(&accRight, right, 3840, 1080, sp)

	if accLeft.top != 30 {
		t.Errorf("left top strut = %d, want 30", accLeft.top)
	}
	if accRight.top != 0 {
		t.Errorf("right top strut = %d, want 0", accRight.top)
	}

	// A 40px right dock on the right monitor.
	sp = &ewmh.WmStrutPartial{Right: 40, RightStartY: 0, RightEndY: 1079}
	addStrut(&accRight, right, 3840, 1080, sp)
	if accRight.right != 40 {
		t.Errorf("right strut = %d, want 40", accRight.right)
	}

	want := platform.Rect{X: 1920, Width: 1880, Height: 1080}
	if got := accRight.shrink(right); got != want {
		t.Errorf("shrink = %+v, want %+v", got, want)
	}
}

func TestFullStrut(t *testing.T) {
	var acc insets
	addStrut(&acc, platform.Rect{Width: 1920, Height: 1080}, 1920, 1080, fullStrut(&ewmh.WmStrut{Bottom: 24}, 1920, 1080))
	if acc.bottom != 24 {
		t.Errorf("bottom strut = %d, want 24", acc.bottom)
	}
}

func TestShrinkKeepsUnusableResult(t *testing.T) {
	r := platform.Rect{Width: 100, Height: 100}
	if got := (insets{left: 60, right: 60}).shrink(r); got != r {
		t.Errorf("shrink = %+v, want original %+v", got, r)
	}
}

func TestPickMonitor(t *testing.T) {
	monitors := []Monitor{
		{Name: "DP-1", Bounds: platform.Rect{Width: 1920, Height: 1080}},
		{Name: "DP-2", Bounds: platform.Rect{X: 1920, Width: 2560, Height: 1440}},
	}
	if got := pickMonitor(monitors, [][2]int{{5000, 5000}, {2000, 100}}); got != monitors[1].Bounds {
		t.Errorf("pickMonitor skipped to %+v", got)
	}
	if got := pickMonitor(monitors, nil); got != monitors[0].Bounds {
		t.Errorf("pickMonitor fallback = %+v", got)
	}
}
