package config

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
	"time"
)

// RenderBackend selects the renderer implementation.
type RenderBackend string

const (
	RenderVulkan   RenderBackend = "Vulkan"
	RenderGl       RenderBackend = "Gl"
	RenderSoftware RenderBackend = "Software"
)

// Compositor selects the compositor transport.
type Compositor string

const (
	CompositorAuto     Compositor = "auto"
	CompositorX11      Compositor = "x11"
	CompositorHyprland Compositor = "hyprland"
)

// Color is a "#rrggbb" or "#rrggbbaa" hex string.
type Color string

// RGBA parses the color. Alpha defaults to 0xff.
func (c Color) RGBA() (color.RGBA, error) {
	s := strings.TrimPrefix(strings.TrimSpace(string(c)), "#")
	if len(s) != 6 && len(s) != 8 {
		return color.RGBA{}, fmt.Errorf("color %q must be #rrggbb or #rrggbbaa", string(c))
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("color %q: %w", string(c), err)
	}
	if len(s) == 6 {
		v = v<<8 | 0xff
	}
	return color.RGBA{
		R: uint8(v >> 24),
		G: uint8(v >> 16),
		B: uint8(v >> 8),
		A: uint8(v),
	}, nil
}

// MustRGBA is RGBA for values that already passed Validate.
func (c Color) MustRGBA() color.RGBA {
	rgba, err := c.RGBA()
	if err != nil {
		return color.RGBA{}
	}
	return rgba
}

// CaptureConfig tunes the capture pipeline.
type CaptureConfig struct {
	// Workers is the number of decode/scale goroutines.
	Workers int `yaml:"workers" toml:"workers"`
	// RequestTTLMs is how long an outstanding capture may be reused.
	RequestTTLMs int `yaml:"request_ttl_ms" toml:"request_ttl_ms"`
	// TimeoutMs bounds a single compositor capture (subprocess based transports).
	TimeoutMs int `yaml:"timeout_ms" toml:"timeout_ms"`
}

// PreviewConfig controls thumbnail dimensions.
type PreviewConfig struct {
	Height   int `yaml:"height" toml:"height"`
	MinWidth int `yaml:"min_width" toml:"min_width"`
	MaxWidth int `yaml:"max_width" toml:"max_width"`
}

// WindowConfig styles the overlay window.
type WindowConfig struct {
	MaxWidth   int   `yaml:"max_width" toml:"max_width"`
	Padding    int   `yaml:"padding" toml:"padding"`
	Gap        int   `yaml:"gap" toml:"gap"`
	Background Color `yaml:"background" toml:"background"`
}

// ItemConfig styles a single entry in the strip.
type ItemConfig struct {
	Padding          int   `yaml:"padding" toml:"padding"`
	TitleHeight      int   `yaml:"title_height" toml:"title_height"`
	BorderWidth      int   `yaml:"border_width" toml:"border_width"`
	Background       Color `yaml:"background" toml:"background"`
	ActiveBackground Color `yaml:"active_background" toml:"active_background"`
	ActiveBorder     Color `yaml:"active_border" toml:"active_border"`
	TextColor        Color `yaml:"text_color" toml:"text_color"`
	Placeholder      Color `yaml:"placeholder" toml:"placeholder"`
}

// LayoutConfig bounds how many windows are shown at once.
type LayoutConfig struct {
	MaxItems int `yaml:"max_items" toml:"max_items"`
}

// HotkeyConfig lists key sequences the daemon grabs itself, in xgbutil
// syntax ("Mod1-Tab"). Empty sequences are left to the window manager.
// Only the x11 transport can grab keys.
type HotkeyConfig struct {
	Next     string `yaml:"next" toml:"next"`
	Previous string `yaml:"previous" toml:"previous"`
}

// Config is the effective daemon configuration.
type Config struct {
	LogLevel           string        `yaml:"log_level" toml:"log_level"`
	Compositor         Compositor    `yaml:"compositor" toml:"compositor"`
	RenderBackend      RenderBackend `yaml:"render_backend" toml:"render_backend"`
	CurrentDesktopOnly bool          `yaml:"current_desktop_only" toml:"current_desktop_only"`
	FrameRate          int           `yaml:"frame_rate" toml:"frame_rate"`
	Capture            CaptureConfig `yaml:"capture" toml:"capture"`
	Preview            PreviewConfig `yaml:"preview" toml:"preview"`
	Window             WindowConfig  `yaml:"window" toml:"window"`
	Item               ItemConfig    `yaml:"item" toml:"item"`
	Layout             LayoutConfig  `yaml:"layout" toml:"layout"`
	Hotkeys            HotkeyConfig  `yaml:"hotkeys" toml:"hotkeys"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:      "info",
		Compositor:    CompositorAuto,
		RenderBackend: RenderSoftware,
		FrameRate:     60,
		Capture: CaptureConfig{
			Workers:      2,
			RequestTTLMs: 2000,
			TimeoutMs:    1500,
		},
		Preview: PreviewConfig{
			Height:   100,
			MinWidth: 100,
			MaxWidth: 200,
		},
		Window: WindowConfig{
			MaxWidth:   800,
			Padding:    10,
			Gap:        10,
			Background: "#191919ee",
		},
		Item: ItemConfig{
			Padding:          7,
			TitleHeight:      25,
			BorderWidth:      2,
			Background:       "#11111100",
			ActiveBackground: "#11111144",
			ActiveBorder:     "#dddddd",
			TextColor:        "#bbbbbb",
			Placeholder:      "#2a2a2a",
		},
		Layout: LayoutConfig{
			MaxItems: 12,
		},
	}
}

// FrameInterval converts FrameRate to a ticker period.
func (c *Config) FrameInterval() time.Duration {
	if c.FrameRate <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(c.FrameRate)
}

// RequestTTL returns the capture reuse window.
func (c *Config) RequestTTL() time.Duration {
	return time.Duration(c.Capture.RequestTTLMs) * time.Millisecond
}

// CaptureTimeout returns the per-capture deadline.
func (c *Config) CaptureTimeout() time.Duration {
	return time.Duration(c.Capture.TimeoutMs) * time.Millisecond
}

// ValidationError points at the offending key.
type ValidationError struct {
	Path string
	Err  error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validate performs strict validation of the effective configuration.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return &ValidationError{Path: "log_level", Err: fmt.Errorf("log_level must be one of: trace, debug, info, warning, error")}
	}
	switch c.Compositor {
	case CompositorAuto, CompositorX11, CompositorHyprland:
	default:
		return &ValidationError{Path: "compositor", Err: fmt.Errorf("compositor must be one of: auto, x11, hyprland")}
	}
	switch c.RenderBackend {
	case RenderVulkan, RenderGl, RenderSoftware:
	default:
		return &ValidationError{Path: "render_backend", Err: fmt.Errorf("render_backend must be one of: Vulkan, Gl, Software")}
	}
	if c.FrameRate < 1 || c.FrameRate > 240 {
		return &ValidationError{Path: "frame_rate", Err: fmt.Errorf("frame_rate must be between 1 and 240")}
	}

	if c.Capture.Workers < 1 {
		return &ValidationError{Path: "capture.workers", Err: fmt.Errorf("workers must be >= 1")}
	}
	if c.Capture.RequestTTLMs < 0 {
		return &ValidationError{Path: "capture.request_ttl_ms", Err: fmt.Errorf("request_ttl_ms must be >= 0")}
	}
	if c.Capture.TimeoutMs < 1 {
		return &ValidationError{Path: "capture.timeout_ms", Err: fmt.Errorf("timeout_ms must be >= 1")}
	}

	if c.Preview.Height < 1 {
		return &ValidationError{Path: "preview.height", Err: fmt.Errorf("height must be >= 1")}
	}
	if c.Preview.MinWidth < 1 {
		return &ValidationError{Path: "preview.min_width", Err: fmt.Errorf("min_width must be >= 1")}
	}
	if c.Preview.MaxWidth < c.Preview.MinWidth {
		return &ValidationError{Path: "preview.max_width", Err: fmt.Errorf("max_width must be >= min_width")}
	}

	if c.Window.Padding < 0 || c.Window.Gap < 0 {
		return &ValidationError{Path: "window", Err: fmt.Errorf("padding and gap must be >= 0")}
	}
	if c.Window.MaxWidth <= 2*c.Window.Padding {
		return &ValidationError{Path: "window.max_width", Err: fmt.Errorf("max_width must exceed twice the padding")}
	}
	if c.Item.Padding < 0 || c.Item.TitleHeight < 0 || c.Item.BorderWidth < 0 {
		return &ValidationError{Path: "item", Err: fmt.Errorf("padding, title_height and border_width must be >= 0")}
	}
	if c.Layout.MaxItems < 1 {
		return &ValidationError{Path: "layout.max_items", Err: fmt.Errorf("max_items must be >= 1")}
	}

	for path, seq := range map[string]string{"hotkeys.next": c.Hotkeys.Next, "hotkeys.previous": c.Hotkeys.Previous} {
		if seq != "" && (strings.HasSuffix(seq, "-") || strings.TrimSpace(seq) == "") {
			return &ValidationError{Path: path, Err: fmt.Errorf("%q has no key after its modifiers", seq)}
		}
	}

	colors := []struct {
		path  string
		value Color
	}{
		{"window.background", c.Window.Background},
		{"item.background", c.Item.Background},
		{"item.active_background", c.Item.ActiveBackground},
		{"item.active_border", c.Item.ActiveBorder},
		{"item.text_color", c.Item.TextColor},
		{"item.placeholder", c.Item.Placeholder},
	}
	for _, col := range colors {
		if _, err := col.value.RGBA(); err != nil {
			return &ValidationError{Path: col.path, Err: err}
		}
	}

	return nil
}
