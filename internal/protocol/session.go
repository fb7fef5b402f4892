// Package protocol owns the compositor connection. A Session applies
// transport events to the window registry and hands capture completions to a
// CaptureSink, strictly in the order the compositor delivered them.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/1broseidon/alttab/internal/logger"
	"github.com/1broseidon/alttab/internal/platform"
	"github.com/1broseidon/alttab/internal/registry"
	"github.com/rs/zerolog"
)

// Session is not safe for concurrent use; a single loop goroutine drives it.
type Session struct {
	transport Transport
	windows   *registry.Writer
	sink      CaptureSink
	log       *zerolog.Logger

	nextRequest  RequestID
	disconnected bool
}

// Connect opens the transport and checks its capabilities. On failure the
// error is always a *ConnectionError.
func Connect(ctx context.Context, t Transport, windows *registry.Writer) (*Session, error) {
	caps, err := t.Open(ctx)
	if err != nil {
		return nil, &ConnectionError{Transport: t.Name(), Err: err}
	}
	if missing := Required &^ caps; missing != 0 {
		_ = t.Close()
		return nil, &ConnectionError{Transport: t.Name(), Missing: missing}
	}

	log := logger.WithComponent("protocol")
	log.Info().Str("transport", t.Name()).Stringer("capabilities", caps).Msg("Connected to compositor")

	return &Session{
		transport: t,
		windows:   windows,
		log:       log,
	}, nil
}

// HandleCaptures registers the receiver of capture completions.
func (s *Session) HandleCaptures(sink CaptureSink) {
	s.sink = sink
}

// Transport returns the underlying transport name.
func (s *Session) Transport() string {
	return s.transport.Name()
}

// Input returns the transport keyboard prober if it has one.
func (s *Session) Input() (InputProber, bool) {
	p, ok := s.transport.(InputProber)
	return p, ok
}

// Hotkeys returns the transport key grabber if it has one.
func (s *Session) Hotkeys() (HotkeyBinder, bool) {
	b, ok := s.transport.(HotkeyBinder)
	return b, ok
}

// Pending exposes the raw event stream so an owning select loop can wait on
// it alongside other sources. Received events must be passed to Apply.
func (s *Session) Pending() <-chan Event {
	return s.transport.Events()
}

// Dispatch blocks until at least one event is available, applies it and then
// drains whatever else is already queued.
func (s *Session) Dispatch(ctx context.Context) (int, error) {
	if s.disconnected {
		return 0, ErrDisconnected
	}
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case ev, ok := <-s.transport.Events():
		if !ok {
			s.disconnected = true
			return 0, ErrDisconnected
		}
		s.Apply(ev)
		return 1 + s.DispatchPending(), nil
	}
}

// DispatchPending applies queued events without blocking.
func (s *Session) DispatchPending() int {
	n := 0
	for !s.disconnected {
		select {
		case ev, ok := <-s.transport.Events():
			if !ok {
				s.disconnected = true
				return n
			}
			s.Apply(ev)
			n++
		default:
			return n
		}
	}
	return n
}

// Disconnected reports whether the event stream has ended.
func (s *Session) Disconnected() bool {
	return s.disconnected
}

// MarkDisconnected records that the owner observed a closed event stream.
func (s *Session) MarkDisconnected() {
	s.disconnected = true
}

// Apply applies a single event.
func (s *Session) Apply(ev Event) {
	var err error
	switch ev.Kind {
	case ToplevelNew:
		s.windows.Add(platform.Window{
			ID:     ev.Window,
			PID:    ev.PID,
			AppID:  ev.AppID,
			Title:  ev.Title,
			Bounds: ev.Bounds,
		})
	case ToplevelTitle:
		err = s.windows.SetTitle(ev.Window, ev.Title)
	case ToplevelAppID:
		err = s.windows.SetAppID(ev.Window, ev.AppID)
	case ToplevelConfigure:
		err = s.windows.Configure(ev.Window, ev.Bounds)
	case ToplevelActivated:
		err = s.windows.Activate(ev.Window)
	case ToplevelClosed:
		err = s.windows.Remove(ev.Window)
	case ToplevelDone:
		if e := s.log.Debug(); e.Enabled() {
			e.Str("windows", describe(s.windows.List())).Msg("Toplevel batch done")
		}
	case CaptureReady:
		if s.sink == nil {
			return
		}
		s.sink.Complete(ev.Request, ev.Frame)
	case CaptureFailed:
		if s.sink == nil {
			return
		}
		s.sink.Fail(ev.Request, ev.Err)
	default:
		s.log.Warn().Int("kind", int(ev.Kind)).Msg("Ignoring unknown event")
	}

	if err != nil {
		if errors.Is(err, registry.ErrUnknownWindow) {
			s.log.Debug().Err(err).Stringer("event", ev.Kind).Msg("Ignoring event for unknown window")
			return
		}
		s.log.Warn().Err(err).Stringer("event", ev.Kind).Msg("Failed to apply event")
	}
}

// RequestCapture enqueues a capture of region and returns immediately.
func (s *Session) RequestCapture(window platform.WindowID, region platform.Rect) (RequestID, error) {
	s.nextRequest++
	id := s.nextRequest
	if err := s.transport.RequestCapture(id, window, region); err != nil {
		return 0, fmt.Errorf("request capture of %s: %w", window, err)
	}
	s.log.Trace().Uint64("request_id", uint64(id)).Stringer("window_id", window).Msg("Capture requested")
	return id, nil
}

// Activate asks the compositor to focus the window. Errors are logged only.
func (s *Session) Activate(window platform.WindowID) {
	if err := s.transport.Activate(window); err != nil {
		s.log.Warn().Err(err).Stringer("window_id", window).Msg("Activation request failed")
		return
	}
	s.log.Debug().Stringer("window_id", window).Msg("Activation requested")
}

// Close closes the transport.
func (s *Session) Close() error {
	return s.transport.Close()
}

func describe(windows []platform.Window) string {
	names := make([]string, 0, len(windows))
	for _, w := range windows {
		names = append(names, w.AppID)
	}
	return strings.Join(names, ", ")
}
