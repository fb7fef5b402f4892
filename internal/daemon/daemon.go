// Package daemon wires the compositor session, capture pipeline, switcher and
// IPC server together and runs the single loop that owns them.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/1broseidon/alttab/internal/capture"
	"github.com/1broseidon/alttab/internal/config"
	"github.com/1broseidon/alttab/internal/hotkeys"
	"github.com/1broseidon/alttab/internal/hyprland"
	"github.com/1broseidon/alttab/internal/ipc"
	"github.com/1broseidon/alttab/internal/logger"
	"github.com/1broseidon/alttab/internal/protocol"
	"github.com/1broseidon/alttab/internal/registry"
	"github.com/1broseidon/alttab/internal/render"
	"github.com/1broseidon/alttab/internal/switcher"
	"github.com/1broseidon/alttab/internal/x11"
	"github.com/rs/zerolog"
)

const reconcileInterval = 10 * time.Second

// Options configures a daemon run. Nil Transport and Presenter are chosen
// from the config and environment.
type Options struct {
	Config     *config.Config
	ConfigPath string
	Overrides  config.Overrides
	SocketPath string
	Transport  protocol.Transport
	Presenter  render.Presenter
}

// Daemon is one daemon lifetime.
type Daemon struct {
	opts Options
	cfg  *config.Config
	log  *zerolog.Logger

	windows    *registry.Registry
	session    *protocol.Session
	pipeline   *capture.Pipeline
	controller *switcher.Controller
	renderer   render.Renderer
	commands   chan ipc.Request

	frames       *time.Ticker
	frameRate    time.Duration
	framesActive bool
}

// New creates a daemon. A nil config means defaults.
func New(opts Options) *Daemon {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Daemon{
		opts:     opts,
		cfg:      cfg,
		log:      logger.WithComponent("daemon"),
		commands: make(chan ipc.Request, 16),
	}
}

// ResolveCompositor turns `auto` into a concrete compositor. Hyprland wins
// when its instance signature is present.
func ResolveCompositor(c config.Compositor, getenv func(string) string) config.Compositor {
	if c != config.CompositorAuto && c != "" {
		return c
	}
	if getenv("HYPRLAND_INSTANCE_SIGNATURE") != "" {
		return config.CompositorHyprland
	}
	return config.CompositorX11
}

// NewTransport returns the transport selected by cfg.
func NewTransport(cfg *config.Config) protocol.Transport {
	switch ResolveCompositor(cfg.Compositor, os.Getenv) {
	case config.CompositorHyprland:
		return hyprland.NewTransport(hyprland.Options{CaptureTimeout: cfg.CaptureTimeout()})
	default:
		return x11.NewTransport(x11.Options{CurrentDesktopOnly: cfg.CurrentDesktopOnly})
	}
}

// openPresenter opens the X overlay window. Hyprland serves it through
// XWayland; without a display the overlay is disabled.
func (d *Daemon) openPresenter() render.Presenter {
	overlay, err := x11.OpenOverlay()
	if err != nil {
		d.log.Warn().Err(err).Msg("Overlay unavailable, running without on-screen display")
		return render.NopPresenter{}
	}
	return overlay
}

// Run connects to the compositor and serves until ctx is cancelled or the
// compositor connection is lost.
func (d *Daemon) Run(ctx context.Context) error {
	transport := d.opts.Transport
	if transport == nil {
		transport = NewTransport(d.cfg)
	}

	windows, writer := registry.New()
	session, err := protocol.Connect(ctx, transport, writer)
	if err != nil {
		return err
	}
	defer session.Close()
	d.windows = windows
	d.session = session

	d.pipeline = capture.New(session, windows, capture.Options{
		Workers:       d.cfg.Capture.Workers,
		RequestTTL:    d.cfg.RequestTTL(),
		PreviewHeight: d.cfg.Preview.Height,
		MinWidth:      d.cfg.Preview.MinWidth,
		MaxWidth:      d.cfg.Preview.MaxWidth,
	})
	defer d.pipeline.Close()
	session.HandleCaptures(d.pipeline)

	presenter := d.opts.Presenter
	if presenter == nil {
		presenter = d.openPresenter()
	}
	d.renderer = render.New(d.cfg.RenderBackend, presenter)
	defer d.renderer.Close()

	d.controller = switcher.NewController(windows, d.pipeline, session, d.renderer, switcher.LayoutFromConfig(d.cfg))
	if input, ok := session.Input(); ok {
		d.controller.SetInput(input)
	}
	d.bindHotkeys(session)

	server, err := ipc.NewServer(d.opts.SocketPath, d.commands, d.status)
	if err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		return err
	}
	defer server.Stop()

	var updates <-chan *config.Config
	var reloadErrs <-chan error
	if d.opts.ConfigPath != "" {
		watcher := config.NewWatcher(d.opts.ConfigPath, d.opts.Overrides)
		if err := watcher.Start(); err != nil {
			d.log.Warn().Err(err).Str("path", d.opts.ConfigPath).Msg("Config hot reload disabled")
		} else {
			defer watcher.Close()
			updates = watcher.Updates()
			reloadErrs = watcher.Errors()
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	reconciler := NewReconciler(ReconcilerConfig{
		Interval: reconcileInterval,
		Logger:   logger.WithComponent("reconciler"),
	}, windows, d.pipeline)
	go reconciler.Run(loopCtx)

	d.frameRate = d.cfg.FrameInterval()
	d.frames = time.NewTicker(d.frameRate)
	d.frames.Stop()
	defer d.frames.Stop()

	d.log.Info().
		Str("transport", session.Transport()).
		Str("socket", server.SocketPath()).
		Msg("alttab daemon started")

	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("alttab daemon stopping")
			return nil

		case ev, ok := <-session.Pending():
			if !ok {
				session.MarkDisconnected()
				return fmt.Errorf("%s: %w", session.Transport(), protocol.ErrDisconnected)
			}
			d.guard("events", func() {
				session.Apply(ev)
				session.DispatchPending()
			})

		case req := <-d.commands:
			d.guard("command", func() { d.handleCommand(req) })

		case <-d.pipeline.Notify():
			d.guard("drain", func() {
				if d.pipeline.Drain() > 0 {
					d.controller.Step()
				}
			})

		case cfg := <-updates:
			d.guard("reload", func() { d.applyConfig(cfg) })

		case err := <-reloadErrs:
			d.log.Warn().Err(err).Msg("Config reload rejected")

		case <-d.frames.C:
			d.guard("frame", d.controller.Step)
		}

		d.syncFrames()
	}
}

// guard runs one loop step and keeps the daemon alive if it panics.
func (d *Daemon) guard(step string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Str("step", step).Interface("panic", r).Msg("Recovered from panic")
		}
	}()
	fn()
}

// syncFrames runs the frame ticker only while a session is active.
func (d *Daemon) syncFrames() {
	active := d.controller.Phase() == switcher.PhaseActive
	switch {
	case active && !d.framesActive:
		d.frames.Reset(d.frameRate)
		d.framesActive = true
	case !active && d.framesActive:
		d.frames.Stop()
		d.framesActive = false
	}
}

// bindHotkeys grabs the configured sequences. A press is turned into the
// same show request an IPC client would send.
func (d *Daemon) bindHotkeys(session *protocol.Session) {
	bindings := []struct {
		keys      string
		direction string
	}{
		{d.cfg.Hotkeys.Next, ipc.DirectionNext},
		{d.cfg.Hotkeys.Previous, ipc.DirectionPrevious},
	}
	binder, ok := session.Hotkeys()
	for _, b := range bindings {
		if b.keys == "" {
			continue
		}
		if !ok {
			d.log.Warn().Str("keys", b.keys).Str("transport", session.Transport()).Msg("Transport cannot grab keys, bind alttab show in the window manager instead")
			continue
		}
		req := ipc.Request{Command: ipc.CommandShow, Direction: b.direction, Modifiers: hotkeys.Modifiers(b.keys)}
		err := binder.BindHotkey(b.keys, func() {
			select {
			case d.commands <- req:
			default:
				d.log.Warn().Str("keys", b.keys).Msg("Dropping hotkey press, daemon busy")
			}
		})
		if err != nil {
			d.log.Warn().Err(err).Msg("Failed to bind hotkey")
		}
	}
}

func (d *Daemon) handleCommand(req ipc.Request) {
	switch req.Command {
	case ipc.CommandShow:
		dir, ok := switcher.ParseDirection(req.Direction)
		if !ok {
			d.log.Warn().Str("direction", req.Direction).Msg("Ignoring show with unknown direction")
			return
		}
		d.controller.Show(switcher.ShowRequest{Direction: dir, Modifiers: req.Modifiers})
		// Draw the first frame now instead of on the next tick.
		d.controller.Step()
	case ipc.CommandRelease:
		d.controller.Release()
	case ipc.CommandCancel:
		d.controller.Cancel()
	default:
		d.log.Debug().Str("command", string(req.Command)).Msg("Ignoring command")
	}
}

func (d *Daemon) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	logger.SetLevel(cfg.LogLevel)
	d.controller.SetLayout(switcher.LayoutFromConfig(cfg))

	if interval := cfg.FrameInterval(); interval != d.frameRate {
		d.frameRate = interval
		if d.framesActive {
			d.frames.Reset(interval)
		}
	}

	for _, change := range restartRequired(d.cfg, cfg) {
		d.log.Warn().Str("setting", change).Msg("Setting change takes effect after restart")
	}
	d.cfg = cfg
	d.log.Info().Msg("Configuration reloaded")
}

// restartRequired lists settings that only apply when the daemon starts.
func restartRequired(old, cfg *config.Config) []string {
	var out []string
	if old.Compositor != cfg.Compositor {
		out = append(out, "compositor")
	}
	if old.RenderBackend != cfg.RenderBackend {
		out = append(out, "render_backend")
	}
	if old.CurrentDesktopOnly != cfg.CurrentDesktopOnly {
		out = append(out, "current_desktop_only")
	}
	if old.Capture != cfg.Capture {
		out = append(out, "capture")
	}
	if old.Preview != cfg.Preview {
		out = append(out, "preview")
	}
	if old.Hotkeys != cfg.Hotkeys {
		out = append(out, "hotkeys")
	}
	return out
}

// status is called from IPC goroutines; it only touches mutex-guarded state.
func (d *Daemon) status() ipc.StatusData {
	st := d.controller.Status()
	data := ipc.StatusData{
		Transport:   d.session.Transport(),
		Phase:       st.Phase.String(),
		WindowCount: st.Windows,
		Cursor:      st.Cursor,
	}
	if st.Phase == switcher.PhaseActive {
		if w, ok := d.windows.Get(st.Selected); ok {
			data.Selected = switcher.FormatTitle(w)
		}
	}
	return data
}

// IsDisconnected reports whether err means the compositor went away.
func IsDisconnected(err error) bool {
	return errors.Is(err, protocol.ErrDisconnected)
}
