package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/1broseidon/alttab/internal/config"
	"github.com/1broseidon/alttab/internal/ipc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "alttab",
	Short: "alttab - window switcher overlay with live previews",
	Long: `alttab is a keyboard window switcher. A background daemon tracks the
compositor's windows in most-recently-used order and shows an overlay with
live previews while the switch modifier is held.

Bind "alttab show --modifiers alt" to Alt+Tab and
"alttab show --previous --modifiers alt,shift" to Alt+Shift+Tab in your
window manager. Every flag can also be set through an ALTTAB_ variable,
for example ALTTAB_LOG_LEVEL=debug.`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default is $XDG_CONFIG_HOME/alttab/config.yaml)")
	flags.String("socket", "", "daemon socket path (default is $XDG_RUNTIME_DIR/alttab.sock)")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.Bool("log-pretty", false, "human-readable console logs")
	flags.String("compositor", "", "compositor transport (auto, x11, hyprland)")
	flags.String("render-backend", "", "render backend (software, gl, vulkan)")

	for _, name := range []string{"config", "socket", "log-level", "log-pretty", "compositor", "render-backend"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
	viper.SetEnvPrefix("ALTTAB")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// configPath returns the --config path or the default location.
func configPath() (string, error) {
	if path := viper.GetString("config"); path != "" {
		return path, nil
	}
	return config.DefaultConfigPath()
}

func overrides() config.Overrides {
	return config.Overrides{
		LogLevel:      viper.GetString("log-level"),
		Compositor:    viper.GetString("compositor"),
		RenderBackend: viper.GetString("render-backend"),
	}
}

// loadConfig reads the config file and applies flag/env overrides.
func loadConfig() (*config.Config, string, error) {
	path, err := configPath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.LoadFromPath(path)
	if err != nil {
		return nil, "", err
	}
	if err := overrides().Apply(cfg); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func newClient() *ipc.Client {
	if path := viper.GetString("socket"); path != "" {
		return ipc.NewClientWithPath(path)
	}
	return ipc.NewClient()
}
