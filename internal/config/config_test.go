package config

import (
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	if cfg.RenderBackend != RenderSoftware {
		t.Fatalf("expected Software render backend by default, got %q", cfg.RenderBackend)
	}
	if cfg.Preview.Height != 100 || cfg.Preview.MinWidth != 100 || cfg.Preview.MaxWidth != 200 {
		t.Fatalf("unexpected preview defaults: %+v", cfg.Preview)
	}
}

func TestLoadFromPath_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Window.MaxWidth != 800 {
		t.Fatalf("expected default window.max_width 800, got %d", cfg.Window.MaxWidth)
	}
}

func TestLoadFromPath_EmptyFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "# empty\n")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Compositor != CompositorAuto {
		t.Fatalf("expected compositor auto, got %q", cfg.Compositor)
	}
}

func TestLoadFromPath_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, strings.Join([]string{
		"render_backend: Gl",
		"compositor: hyprland",
		"preview:",
		"  height: 120",
		"window:",
		"  background: \"#000000aa\"",
		"",
	}, "\n"))

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RenderBackend != RenderGl {
		t.Fatalf("expected Gl, got %q", cfg.RenderBackend)
	}
	if cfg.Compositor != CompositorHyprland {
		t.Fatalf("expected hyprland, got %q", cfg.Compositor)
	}
	if cfg.Preview.Height != 120 {
		t.Fatalf("expected preview.height 120, got %d", cfg.Preview.Height)
	}
	if cfg.Preview.MaxWidth != 200 {
		t.Fatalf("unset keys must keep defaults, got max_width %d", cfg.Preview.MaxWidth)
	}
}

func TestLoadFromPath_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, strings.Join([]string{
		`render_backend = "Vulkan"`,
		`frame_rate = 30`,
		``,
		`[item]`,
		`padding = 4`,
		`text_color = "#ffffff"`,
		``,
	}, "\n"))

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RenderBackend != RenderVulkan {
		t.Fatalf("expected Vulkan, got %q", cfg.RenderBackend)
	}
	if cfg.FrameRate != 30 || cfg.Item.Padding != 4 {
		t.Fatalf("unexpected values: frame_rate=%d item.padding=%d", cfg.FrameRate, cfg.Item.Padding)
	}
	if cfg.Item.TitleHeight != 25 {
		t.Fatalf("unset keys must keep defaults, got title_height %d", cfg.Item.TitleHeight)
	}
}

func TestLoadFromPath_StrictUnknownKeyErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		file string
		data string
	}{
		{"yaml", "config.yaml", "no_such_key: 1\n"},
		{"toml", "config.toml", "no_such_key = 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			writeFile(t, path, tt.data)
			_, err := LoadFromPath(path)
			if err == nil {
				t.Fatal("expected unknown key error")
			}
			if !strings.Contains(err.Error(), "no_such_key") {
				t.Fatalf("expected error to name the key, got %v", err)
			}
		})
	}
}

func TestLoadFromPath_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.ini")
	writeFile(t, path, "x=1\n")
	if _, err := LoadFromPath(path); err == nil {
		t.Fatal("expected error for .ini config")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"render backend", func(c *Config) { c.RenderBackend = "Metal" }, "render_backend"},
		{"compositor", func(c *Config) { c.Compositor = "sway" }, "compositor"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"workers", func(c *Config) { c.Capture.Workers = 0 }, "capture.workers"},
		{"preview widths", func(c *Config) { c.Preview.MaxWidth = 50 }, "preview.max_width"},
		{"window width", func(c *Config) { c.Window.MaxWidth = 10 }, "window.max_width"},
		{"max items", func(c *Config) { c.Layout.MaxItems = 0 }, "layout.max_items"},
		{"color", func(c *Config) { c.Item.TextColor = "blue" }, "item.text_color"},
		{"frame rate", func(c *Config) { c.FrameRate = 0 }, "frame_rate"},
		{"hotkey", func(c *Config) { c.Hotkeys.Previous = "Mod1-Shift-" }, "hotkeys.previous"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if vErr.Path != tt.path {
				t.Fatalf("expected path %q, got %q", tt.path, vErr.Path)
			}
		})
	}
}

func TestColorRGBA(t *testing.T) {
	tests := []struct {
		in      Color
		want    color.RGBA
		wantErr bool
	}{
		{"#191919ee", color.RGBA{0x19, 0x19, 0x19, 0xee}, false},
		{"#ddeeff", color.RGBA{0xdd, 0xee, 0xff, 0xff}, false},
		{"ddeeff", color.RGBA{0xdd, 0xee, 0xff, 0xff}, false},
		{"#fff", color.RGBA{}, true},
		{"#gggggg", color.RGBA{}, true},
	}
	for _, tt := range tests {
		got, err := tt.in.RGBA()
		if tt.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("%q: got %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestDefaultConfigPath_PrefersExistingFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path, err := DefaultConfigPath()
	if err != nil {
		t.Fatalf("DefaultConfigPath: %v", err)
	}
	if want := filepath.Join(dir, "alttab", "config.yaml"); path != want {
		t.Fatalf("got %q, want %q", path, want)
	}

	if err := os.MkdirAll(filepath.Join(dir, "alttab"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(dir, "alttab", "config.toml"), "")

	path, err = DefaultConfigPath()
	if err != nil {
		t.Fatalf("DefaultConfigPath: %v", err)
	}
	if want := filepath.Join(dir, "alttab", "config.toml"); path != want {
		t.Fatalf("got %q, want %q", path, want)
	}
}

func TestOverridesApply(t *testing.T) {
	cfg := DefaultConfig()
	if err := (Overrides{LogLevel: "debug", Compositor: "X11", RenderBackend: "Gl"}).Apply(cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Compositor != CompositorX11 || cfg.RenderBackend != RenderGl {
		t.Fatalf("overrides not applied: %+v", cfg)
	}

	if err := (Overrides{RenderBackend: "DirectX"}).Apply(DefaultConfig()); err == nil {
		t.Fatal("expected invalid override to fail validation")
	}
}

func TestMarshalRoundTripsThroughLoader(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Layout.MaxItems = 5
	data, err := cfg.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, string(data))
	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Layout.MaxItems != 5 {
		t.Fatalf("expected max_items 5, got %d", loaded.Layout.MaxItems)
	}
}
