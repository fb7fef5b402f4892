package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/1broseidon/alttab/internal/ipc"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Open the switcher or advance the selection",
	Long: `Open the switcher overlay, or move the selection when it is already
open. When modifiers are given the daemon commits the selection as soon as
all of them are released.`,
	Example: `  # Alt+Tab
  alttab show --modifiers alt

  # Alt+Shift+Tab
  alttab show --previous --modifiers alt,shift`,
	Args: cobra.NoArgs,
	RunE: runShow,
}

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Activate the selected window and close the switcher",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return newClient().Release()
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Close the switcher without activating anything",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return newClient().Cancel()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	showCmd.Flags().Bool("next", false, "select the next window (default)")
	showCmd.Flags().Bool("previous", false, "select the previous window")
	showCmd.Flags().StringSlice("modifiers", nil, "modifiers held for the switch, e.g. alt,shift")
	showCmd.MarkFlagsMutuallyExclusive("next", "previous")

	statusCmd.Flags().Bool("json", false, "print status as JSON")

	rootCmd.AddCommand(showCmd, releaseCmd, cancelCmd, statusCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	previous, _ := cmd.Flags().GetBool("previous")
	modifiers, _ := cmd.Flags().GetStringSlice("modifiers")
	return newClient().Show(showDirection(previous), modifiers)
}

func showDirection(previous bool) string {
	if previous {
		return ipc.DirectionPrevious
	}
	return ipc.DirectionNext
}

func runStatus(cmd *cobra.Command, args []string) error {
	status, err := newClient().Status()
	if err != nil {
		return err
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}
	printStatus(os.Stdout, status)
	return nil
}

func printStatus(w io.Writer, status *ipc.StatusData) {
	fmt.Fprintf(w, "Daemon:     running (%s)\n", status.Transport)
	fmt.Fprintf(w, "Uptime:     %ds\n", status.UptimeSeconds)
	fmt.Fprintf(w, "Windows:    %d\n", status.WindowCount)
	fmt.Fprintf(w, "Switcher:   %s\n", status.Phase)
	if status.Phase == "active" {
		fmt.Fprintf(w, "Selected:   %s (#%d)\n", status.Selected, status.Cursor)
	}
}
