// Package capture turns compositor capture completions into preview
// thumbnails. Requests and polls happen on the daemon loop; decoding and
// scaling run on a small worker pool whose results are handed back through a
// queue the loop drains without blocking.
package capture

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/1broseidon/alttab/internal/logger"
	"github.com/1broseidon/alttab/internal/platform"
	"github.com/1broseidon/alttab/internal/protocol"
	"github.com/rs/zerolog"
)

// ErrCaptureFailed marks a capture that produced no image. It is per-window
// and recoverable: the window is drawn with a placeholder.
var ErrCaptureFailed = errors.New("capture failed")

const jobQueueSize = 64

// Requester issues capture requests to the compositor.
type Requester interface {
	RequestCapture(window platform.WindowID, region platform.Rect) (protocol.RequestID, error)
}

// WindowSource resolves a window's current geometry.
type WindowSource interface {
	Get(id platform.WindowID) (platform.Window, bool)
}

// Options tunes the pipeline.
type Options struct {
	Workers       int
	RequestTTL    time.Duration
	PreviewHeight int
	MinWidth      int
	MaxWidth      int
	// Now overrides the clock in tests.
	Now func() time.Time
}

// State is the progress of a capture.
type State int

const (
	Pending State = iota
	Ready
	Failed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Preview is the result of polling a handle. Image is set when Ready, and
// may hold the last cached thumbnail while Pending.
type Preview struct {
	State State
	Image *image.RGBA
	Err   error
}

// Handle refers to one capture request.
type Handle struct {
	Window platform.WindowID
	seq    uint64
}

type entry struct {
	seq     uint64
	request protocol.RequestID
	issued  time.Time
	state   State
	image   *image.RGBA
	err     error
}

type job struct {
	window platform.WindowID
	seq    uint64
	gen    uint64
	frame  protocol.Frame
}

type result struct {
	window platform.WindowID
	seq    uint64
	gen    uint64
	image  *image.RGBA
	err    error
}

// Pipeline tracks at most one outstanding capture per window.
type Pipeline struct {
	requester Requester
	windows   WindowSource
	opts      Options
	log       *zerolog.Logger

	mu        sync.Mutex
	seq       uint64
	gen       uint64
	entries   map[platform.WindowID]*entry
	byRequest map[protocol.RequestID]platform.WindowID
	cache     map[platform.WindowID]*image.RGBA
	closed    bool

	jobs      chan job
	resultsMu sync.Mutex
	results   []result
	notify    chan struct{}

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New starts the worker pool.
func New(requester Requester, windows WindowSource, opts Options) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	p := &Pipeline{
		requester: requester,
		windows:   windows,
		opts:      opts,
		log:       logger.WithComponent("capture"),
		entries:   make(map[platform.WindowID]*entry),
		byRequest: make(map[protocol.RequestID]platform.WindowID),
		cache:     make(map[platform.WindowID]*image.RGBA),
		jobs:      make(chan job, jobQueueSize),
		notify:    make(chan struct{}, 1),
	}
	for i := 0; i < opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Request starts a capture of the window's current geometry, or returns the
// outstanding request for the window if it is younger than RequestTTL.
func (p *Pipeline) Request(window platform.WindowID) Handle {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.opts.Now()
	if e, ok := p.entries[window]; ok && e.state == Pending && now.Sub(e.issued) < p.opts.RequestTTL {
		return Handle{Window: window, seq: e.seq}
	}
	p.retireLocked(window)

	p.seq++
	e := &entry{seq: p.seq, issued: now, state: Pending}
	p.entries[window] = e
	h := Handle{Window: window, seq: e.seq}

	win, ok := p.windows.Get(window)
	if !ok {
		e.state = Failed
		e.err = fmt.Errorf("%w: unknown window %s", ErrCaptureFailed, window)
		return h
	}
	if win.Bounds.Empty() {
		e.state = Failed
		e.err = fmt.Errorf("%w: window %s has no area", ErrCaptureFailed, window)
		return h
	}

	id, err := p.requester.RequestCapture(window, win.Bounds)
	if err != nil {
		e.state = Failed
		e.err = fmt.Errorf("%w: %v", ErrCaptureFailed, err)
		p.log.Debug().Err(err).Stringer("window_id", window).Msg("Capture request rejected")
		return h
	}
	e.request = id
	p.byRequest[id] = window
	return h
}

// Poll reports the state of the newest request for the handle's window.
func (p *Pipeline) Poll(h Handle) Preview {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[h.Window]
	if !ok {
		return Preview{State: Failed, Err: fmt.Errorf("%w: request for %s was canceled", ErrCaptureFailed, h.Window)}
	}
	switch e.state {
	case Ready:
		return Preview{State: Ready, Image: e.image}
	case Failed:
		return Preview{State: Failed, Err: e.err}
	default:
		return Preview{State: Pending, Image: p.cache[h.Window]}
	}
}

// Cancel retires the request behind h. A later completion is discarded.
func (p *Pipeline) Cancel(h Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[h.Window]; ok && e.seq == h.seq {
		p.retireLocked(h.Window)
	}
}

// CancelAll retires every request. Worker output produced for earlier
// requests is dropped by Drain.
func (p *Pipeline) CancelAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.entries = make(map[platform.WindowID]*entry)
	p.byRequest = make(map[protocol.RequestID]platform.WindowID)
}

// Prune forgets cached thumbnails and requests of windows that no longer exist.
func (p *Pipeline) Prune(alive func(platform.WindowID) bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id := range p.cache {
		if !alive(id) {
			delete(p.cache, id)
		}
	}
	for id := range p.entries {
		if !alive(id) {
			p.retireLocked(id)
		}
	}
}

// Complete implements protocol.CaptureSink.
func (p *Pipeline) Complete(id protocol.RequestID, frame protocol.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()

	window, e, ok := p.lookupLocked(id)
	if !ok {
		p.log.Trace().Uint64("request_id", uint64(id)).Msg("Discarding capture for retired request")
		return
	}
	delete(p.byRequest, id)
	if p.closed {
		return
	}

	select {
	case p.jobs <- job{window: window, seq: e.seq, gen: p.gen, frame: frame}:
	default:
		e.state = Failed
		e.err = fmt.Errorf("%w: decode queue full", ErrCaptureFailed)
		p.log.Warn().Stringer("window_id", window).Msg("Decode queue full, dropping capture")
	}
}

// Fail implements protocol.CaptureSink.
func (p *Pipeline) Fail(id protocol.RequestID, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	window, e, ok := p.lookupLocked(id)
	if !ok {
		return
	}
	delete(p.byRequest, id)
	e.state = Failed
	e.err = fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	p.log.Debug().Err(err).Stringer("window_id", window).Msg("Capture failed")
}

// Notify is signalled whenever decoded results are waiting for Drain.
func (p *Pipeline) Notify() <-chan struct{} {
	return p.notify
}

// Drain applies decoded results and returns how many were accepted.
func (p *Pipeline) Drain() int {
	p.resultsMu.Lock()
	results := p.results
	p.results = nil
	p.resultsMu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	applied := 0
	for _, r := range results {
		e, ok := p.entries[r.window]
		if !ok || e.seq != r.seq || r.gen != p.gen {
			continue
		}
		if r.err != nil {
			e.state = Failed
			e.err = fmt.Errorf("%w: %v", ErrCaptureFailed, r.err)
		} else {
			e.state = Ready
			e.image = r.image
			p.cache[r.window] = r.image
		}
		applied++
	}
	return applied
}

// Close stops the workers. Results still in flight are discarded.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()
		p.wg.Wait()
	})
}

func (p *Pipeline) lookupLocked(id protocol.RequestID) (platform.WindowID, *entry, bool) {
	window, ok := p.byRequest[id]
	if !ok {
		return 0, nil, false
	}
	e, ok := p.entries[window]
	if !ok || e.request != id {
		delete(p.byRequest, id)
		return 0, nil, false
	}
	return window, e, true
}

func (p *Pipeline) retireLocked(window platform.WindowID) {
	if e, ok := p.entries[window]; ok {
		if e.state == Pending {
			delete(p.byRequest, e.request)
		}
		delete(p.entries, window)
	}
}

func (p *Pipeline) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		r := result{window: j.window, seq: j.seq, gen: j.gen}
		img, err := decodeFrame(j.frame)
		if err == nil {
			b := img.Bounds()
			w, h := PreviewSize(b.Dx(), b.Dy(), p.opts.PreviewHeight, p.opts.MinWidth, p.opts.MaxWidth)
			r.image = scale(img, w, h)
		} else {
			r.err = err
		}

		p.resultsMu.Lock()
		p.results = append(p.results, r)
		p.resultsMu.Unlock()

		select {
		case p.notify <- struct{}{}:
		default:
		}
	}
}
