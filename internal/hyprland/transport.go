package hyprland

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"sync"
	"time"

	"github.com/1broseidon/alttab/internal/logger"
	"github.com/1broseidon/alttab/internal/platform"
	"github.com/1broseidon/alttab/internal/protocol"
	"github.com/1broseidon/alttab/internal/runtimepath"
	"github.com/rs/zerolog"
)

const (
	eventBuffer     = 256
	captureBuffer   = 32
	refreshDebounce = 50 * time.Millisecond
)

var errNotOpen = errors.New("hyprland transport is not open")

// Options configures the Hyprland transport. Empty socket paths are derived
// from HYPRLAND_INSTANCE_SIGNATURE.
type Options struct {
	CommandSocket  string
	EventSocket    string
	CommandTimeout time.Duration
	// Grim is the screenshot tool used for capture, looked up in PATH.
	Grim           string
	CaptureTimeout time.Duration
}

type captureJob struct {
	id     protocol.RequestID
	window platform.WindowID
	region platform.Rect
}

// Transport follows Hyprland clients over socket2 and captures them with
// grim. It has no keyboard probe: release and cancel arrive over IPC.
type Transport struct {
	opts Options
	log  *zerolog.Logger

	client   *Client
	grimPath string
	conn     net.Conn

	events    chan protocol.Event
	captures  chan captureJob
	refresh   chan struct{}
	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	stopOnce  sync.Once
	producers sync.WaitGroup
	started   bool

	mu sync.Mutex
	// known maps tracked clients to their last reported geometry.
	known map[platform.WindowID]platform.Rect
}

var _ protocol.Transport = (*Transport)(nil)

// NewTransport creates an unopened transport.
func NewTransport(opts Options) *Transport {
	if opts.Grim == "" {
		opts.Grim = "grim"
	}
	if opts.CaptureTimeout <= 0 {
		opts.CaptureTimeout = 1500 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		ctx:      ctx,
		cancel:   cancel,
		opts:     opts,
		log:      logger.WithComponent("hyprland"),
		events:   make(chan protocol.Event, eventBuffer),
		captures: make(chan captureJob, captureBuffer),
		refresh:  make(chan struct{}, 1),
		done:     make(chan struct{}),
		known:    make(map[platform.WindowID]platform.Rect),
	}
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "hyprland"
}

// Open checks the command socket, looks up grim and subscribes to socket2.
func (t *Transport) Open(ctx context.Context) (protocol.Capability, error) {
	cmdPath, eventPath := t.opts.CommandSocket, t.opts.EventSocket
	var err error
	if cmdPath == "" {
		if cmdPath, err = runtimepath.HyprlandCommandSocket(); err != nil {
			return 0, err
		}
	}
	if eventPath == "" {
		if eventPath, err = runtimepath.HyprlandEventSocket(); err != nil {
			return 0, err
		}
	}

	t.client = NewClient(cmdPath, t.opts.CommandTimeout)
	clients, err := t.client.Clients(ctx)
	if err != nil {
		return 0, err
	}
	caps := protocol.CapToplevel

	if path, err := exec.LookPath(t.opts.Grim); err == nil {
		t.grimPath = path
		caps |= protocol.CapCapture
	} else {
		t.log.Warn().Err(err).Str("tool", t.opts.Grim).Msg("Screenshot tool not found, capture unavailable")
	}
	if !caps.Has(protocol.Required) {
		return caps, nil
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", eventPath)
	if err != nil {
		return caps, fmt.Errorf("failed to connect to event socket: %w", err)
	}
	t.conn = conn

	t.started = true
	t.producers.Add(3)
	go func() {
		defer t.producers.Done()
		defer t.stop()
		t.emitInitial(clients)
		t.readEvents(conn)
	}()
	go func() {
		defer t.producers.Done()
		t.refreshLoop()
	}()
	go func() {
		defer t.producers.Done()
		t.captureLoop()
	}()
	go func() {
		t.producers.Wait()
		close(t.events)
	}()

	return caps, nil
}

// Events returns the event stream.
func (t *Transport) Events() <-chan protocol.Event {
	return t.events
}

// RequestCapture queues a grim capture of region.
func (t *Transport) RequestCapture(id protocol.RequestID, window platform.WindowID, region platform.Rect) error {
	if !t.started {
		return errNotOpen
	}
	if region.Empty() {
		return fmt.Errorf("empty capture region")
	}
	select {
	case <-t.done:
		return protocol.ErrDisconnected
	default:
	}
	select {
	case t.captures <- captureJob{id: id, window: window, region: region}:
		return nil
	default:
		return fmt.Errorf("capture queue full")
	}
}

// Activate dispatches focuswindow without waiting for the reply.
func (t *Transport) Activate(window platform.WindowID) error {
	if t.client == nil {
		return errNotOpen
	}
	go func() {
		if err := t.client.FocusWindow(context.Background(), window); err != nil {
			t.log.Warn().Err(err).Stringer("window_id", window).Msg("Failed to activate window")
		}
	}()
	return nil
}

// Close stops the goroutines. The event channel is closed once every
// producer has exited.
func (t *Transport) Close() error {
	t.stop()
	return nil
}

func (t *Transport) stop() {
	t.stopOnce.Do(func() {
		t.cancel()
		close(t.done)
		if t.conn != nil {
			_ = t.conn.Close()
		}
		if !t.started {
			close(t.events)
		}
	})
}

func (t *Transport) emit(ev protocol.Event) {
	select {
	case t.events <- ev:
	case <-t.done:
	}
}

func (t *Transport) emitInitial(clients []ClientInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, ci := range clients {
		id, _ := parseAddress(ci.Address)
		t.known[id] = ci.Bounds()
		t.emit(protocol.Event{
			Kind:   protocol.ToplevelNew,
			Window: id,
			Title:  ci.Title,
			AppID:  ci.Class,
			PID:    ci.PID,
			Bounds: ci.Bounds(),
		})
	}
	if len(clients) > 0 && clients[0].FocusHistoryID == 0 {
		id, _ := parseAddress(clients[0].Address)
		t.emit(protocol.Event{Kind: protocol.ToplevelActivated, Window: id})
	}
	t.emit(protocol.Event{Kind: protocol.ToplevelDone})
}

func (t *Transport) readEvents(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		raw, ok := parseLine(scanner.Text())
		if !ok {
			continue
		}
		out, refresh := translate(raw)
		t.publish(out)
		if refresh {
			t.requestRefresh()
		}
	}

	select {
	case <-t.done:
	default:
		if err := scanner.Err(); err != nil {
			t.log.Error().Err(err).Msg("Event socket read failed")
		} else {
			t.log.Warn().Msg("Event socket closed by compositor")
		}
	}
}

// publish records lifecycle changes and emits the events in one critical
// section shared with publishGeometry. A refresh can then never report a
// window ahead of its New event.
func (t *Transport) publish(events []protocol.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trackLocked(events)
	for _, ev := range events {
		t.emit(ev)
	}
}

func (t *Transport) trackLocked(events []protocol.Event) {
	for _, ev := range events {
		switch ev.Kind {
		case protocol.ToplevelNew:
			if _, ok := t.known[ev.Window]; !ok {
				t.known[ev.Window] = platform.Rect{}
			}
		case protocol.ToplevelClosed:
			delete(t.known, ev.Window)
		}
	}
}

func (t *Transport) requestRefresh() {
	select {
	case t.refresh <- struct{}{}:
	default:
	}
}

// refreshLoop re-reads j/clients after geometry changes, coalescing bursts.
func (t *Transport) refreshLoop() {
	for {
		select {
		case <-t.done:
			return
		case <-t.refresh:
		}

		timer := time.NewTimer(refreshDebounce)
		select {
		case <-t.done:
			timer.Stop()
			return
		case <-timer.C:
		}
		// Signals that arrived during the debounce are covered by this read.
		select {
		case <-t.refresh:
		default:
		}

		clients, err := t.client.Clients(t.ctx)
		if err != nil {
			t.log.Debug().Err(err).Msg("Failed to refresh clients")
			continue
		}
		t.publishGeometry(clients)
	}
}

// publishGeometry emits Configure for tracked clients whose bounds differ
// from the last report.
func (t *Transport) publishGeometry(clients []ClientInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ev := range t.geometryChangesLocked(clients) {
		t.emit(ev)
	}
}

func (t *Transport) geometryChangesLocked(clients []ClientInfo) []protocol.Event {
	var out []protocol.Event
	for _, ci := range clients {
		id, err := parseAddress(ci.Address)
		if err != nil {
			continue
		}
		last, ok := t.known[id]
		if !ok {
			continue
		}
		if b := ci.Bounds(); b != last {
			t.known[id] = b
			out = append(out, protocol.Event{Kind: protocol.ToplevelConfigure, Window: id, Bounds: b})
		}
	}
	return out
}
