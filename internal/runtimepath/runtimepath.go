package runtimepath

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoHyprland is returned when the Hyprland instance signature is not set.
var ErrNoHyprland = errors.New("HYPRLAND_INSTANCE_SIGNATURE is not set")

// Dir returns the runtime directory used for the daemon socket. Priority:
// 1) XDG_RUNTIME_DIR (if set)
// 2) /run/user/<uid> (if present)
// 3) /tmp/alttab-runtime-<uid> (created)
func Dir() (string, error) {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return runtimeDir, nil
	}

	uid := os.Getuid()
	runUserDir := fmt.Sprintf("/run/user/%d", uid)
	if info, err := os.Stat(runUserDir); err == nil && info.IsDir() {
		return runUserDir, nil
	}

	tmpDir := fmt.Sprintf("/tmp/alttab-runtime-%d", uid)
	if err := os.MkdirAll(tmpDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create runtime dir: %w", err)
	}
	return tmpDir, nil
}

// SocketPath returns the daemon IPC socket path.
func SocketPath() (string, error) {
	runtimeDir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(runtimeDir, "alttab.sock"), nil
}

// HyprlandDir returns $XDG_RUNTIME_DIR/hypr/$HYPRLAND_INSTANCE_SIGNATURE.
func HyprlandDir() (string, error) {
	sig := os.Getenv("HYPRLAND_INSTANCE_SIGNATURE")
	if sig == "" {
		return "", ErrNoHyprland
	}
	if filepath.Base(sig) != sig {
		return "", fmt.Errorf("invalid HYPRLAND_INSTANCE_SIGNATURE %q", sig)
	}
	runtimeDir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(runtimeDir, "hypr", sig), nil
}

// HyprlandCommandSocket returns the request/response socket path.
func HyprlandCommandSocket() (string, error) {
	dir, err := HyprlandDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".socket.sock"), nil
}

// HyprlandEventSocket returns the event stream socket path.
func HyprlandEventSocket() (string, error) {
	dir, err := HyprlandDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".socket2.sock"), nil
}
