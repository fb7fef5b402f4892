package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/1broseidon/alttab/internal/daemon"
	"github.com/1broseidon/alttab/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the alttab daemon (foreground)",
	Long: `Connect to the compositor, track windows and serve show/release
requests on the IPC socket. The config file is watched and reloaded on
change. The daemon exits with an error when the compositor connection is
lost.`,
	Example: `  # Start with the detected compositor
  alttab daemon

  # Force the X11 transport with debug logging
  alttab daemon --compositor x11 --log-level debug --log-pretty`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Init(cfg.LogLevel, viper.GetBool("log-pretty"))

	log := logger.WithComponent("main")
	log.Info().Str("path", path).Str("compositor", string(cfg.Compositor)).Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := daemon.New(daemon.Options{
		Config:     cfg,
		ConfigPath: path,
		Overrides:  overrides(),
		SocketPath: viper.GetString("socket"),
	})
	if err := d.Run(ctx); err != nil {
		if daemon.IsDisconnected(err) {
			log.Error().Err(err).Msg("Compositor connection lost")
		}
		return err
	}
	return nil
}
