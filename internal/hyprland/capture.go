package hyprland

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/1broseidon/alttab/internal/platform"
	"github.com/1broseidon/alttab/internal/protocol"
)

func (t *Transport) captureLoop() {
	for {
		select {
		case <-t.done:
			return
		case job := <-t.captures:
			frame, err := t.grab(job.region)
			if err != nil {
				t.log.Debug().Err(err).Stringer("window_id", job.window).Msg("Capture failed")
				t.emit(protocol.Event{Kind: protocol.CaptureFailed, Window: job.window, Request: job.id, Err: err})
				continue
			}
			t.emit(protocol.Event{Kind: protocol.CaptureReady, Window: job.window, Request: job.id, Frame: frame})
		}
	}
}

// grab runs grim on region and returns the PNG it writes to stdout.
func (t *Transport) grab(region platform.Rect) (protocol.Frame, error) {
	ctx, cancel := context.WithTimeout(t.ctx, t.opts.CaptureTimeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.grimPath, grimArgs(region)...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return protocol.Frame{}, fmt.Errorf("grim: %w: %s", err, msg)
		}
		return protocol.Frame{}, fmt.Errorf("grim: %w", err)
	}
	if len(out) == 0 {
		return protocol.Frame{}, fmt.Errorf("grim produced no output")
	}
	return protocol.Frame{
		Format: protocol.FormatPNG,
		Width:  region.Width,
		Height: region.Height,
		Data:   out,
	}, nil
}

func grimArgs(region platform.Rect) []string {
	geometry := fmt.Sprintf("%d,%d %dx%d", region.X, region.Y, region.Width, region.Height)
	return []string{"-g", geometry, "-t", "png", "-"}
}
