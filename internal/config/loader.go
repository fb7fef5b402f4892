package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const appDirName = "alttab"

// ConfigDir returns $XDG_CONFIG_HOME/alttab, falling back to ~/.config/alttab.
func ConfigDir() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appDirName), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", appDirName), nil
}

// DefaultConfigPath returns the first existing config.yaml, config.yml or
// config.toml in ConfigDir, or the config.yaml path when none exists.
func DefaultConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	for _, name := range []string{"config.yaml", "config.yml", "config.toml"} {
		path := filepath.Join(dir, name)
		exists, err := pathExists(path)
		if err != nil {
			return "", err
		}
		if exists {
			return path, nil
		}
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the configuration from the standard location.
func Load() (*Config, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads, decodes and validates a config file. A missing file
// yields the defaults. The format is chosen by extension.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("%s: failed to read: %w", path, err)
	}

	if err := decodeInto(path, data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func decodeInto(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return decodeStrictTOML(data, cfg)
	case ".yaml", ".yml", "":
		return decodeStrictYAML(data, cfg)
	default:
		return fmt.Errorf("unsupported config format %q (want .yaml, .yml or .toml)", filepath.Ext(path))
	}
}

func decodeStrictYAML(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("decode YAML: %w", err)
	}
	return nil
}

func decodeStrictTOML(data []byte, out any) error {
	md, err := toml.Decode(string(data), out)
	if err != nil {
		return fmt.Errorf("decode TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("decode TOML: unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// Marshal renders the config as YAML, used by `alttab config print`.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

func pathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Overrides are command-line/environment values that win over the file.
// Empty fields leave the file value in place.
type Overrides struct {
	LogLevel      string
	Compositor    string
	RenderBackend string
}

// Apply copies non-empty overrides into c and re-validates.
func (o Overrides) Apply(c *Config) error {
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.Compositor != "" {
		c.Compositor = Compositor(strings.ToLower(o.Compositor))
	}
	if o.RenderBackend != "" {
		c.RenderBackend = RenderBackend(o.RenderBackend)
	}
	return c.Validate()
}
