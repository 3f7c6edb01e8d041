// Package scan implements the live frame-scanning coordinator.
//
// A Coordinator sits between a frame source and a decoder. It submits at most
// one frame at a time, drops every frame that arrives while a decode is in
// flight or while a detection is being shown, and reports the first non-empty
// payload of a successful decode exactly once, then stays suspended until
// Resume is called.
//
//	Scanning --(detect)--> Suspended --(resume)--> Scanning
//
// Every frame handed to OnFrame is released exactly once, on every path.
package scan

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/qrlens/internal/frame"
	"github.com/disintegration/imaging"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithDetectionHandler sets the callback invoked for each detection.
func WithDetectionHandler(h DetectionHandler) Option {
	return func(c *Coordinator) { c.onDetected = h }
}

// WithStateObserver sets the callback invoked after each state transition.
func WithStateObserver(o StateObserver) Option {
	return func(c *Coordinator) { c.onState = o }
}

// WithDecodeTimeout bounds each decode call through its context. Zero (the
// default) means no timeout: a decoder that never returns blocks scanning
// until the coordinator is reset or closed.
func WithDecodeTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// WithCapture controls whether a copy of the detected frame is attached to
// the Detection. Enabled by default.
func WithCapture(enabled bool) Option {
	return func(c *Coordinator) { c.capture = enabled }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// notice is a queued callback: a state transition, or a detection when
// detection is set.
type notice struct {
	from, to  State
	detection *Detection
}

// Coordinator mediates between a frame source and a Decoder.
type Coordinator struct {
	decoder    Decoder
	onDetected DetectionHandler
	onState    StateObserver
	timeout    time.Duration
	capture    bool
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	state      State
	inFlight   bool
	generation uint64
	closed     bool
	pending    []notice
	notifying  bool

	submitted        atomic.Uint64
	droppedBusy      atomic.Uint64
	droppedSuspended atomic.Uint64
	droppedClosed    atomic.Uint64
	detections       atomic.Uint64
	emptyResults     atomic.Uint64
	decodeFailures   atomic.Uint64
	staleResults     atomic.Uint64
}

// NewCoordinator creates a coordinator in the Scanning state.
func NewCoordinator(dec Decoder, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		decoder: dec,
		capture: true,
		logger:  slog.Default(),
		ctx:     ctx,
		cancel:  cancel,
		state:   Scanning,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnFrame offers a frame to the coordinator. It never blocks on the decoder:
// the frame is either submitted on a new goroutine or released immediately.
func (c *Coordinator) OnFrame(f *frame.Frame) {
	if f == nil {
		return
	}

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		c.drop(f, &c.droppedClosed, "dropped_closed")
		return
	case c.state == Suspended:
		c.mu.Unlock()
		c.drop(f, &c.droppedSuspended, "dropped_suspended")
		return
	case c.inFlight:
		c.mu.Unlock()
		c.drop(f, &c.droppedBusy, "dropped_busy")
		return
	}
	c.inFlight = true
	gen := c.generation
	c.wg.Add(1)
	c.mu.Unlock()

	c.submitted.Add(1)
	framesTotal.WithLabelValues("submitted").Inc()
	go c.decode(gen, f)
}

func (c *Coordinator) drop(f *frame.Frame, counter *atomic.Uint64, outcome string) {
	f.Release()
	counter.Add(1)
	framesTotal.WithLabelValues(outcome).Inc()
}

func (c *Coordinator) decode(gen uint64, f *frame.Frame) {
	defer c.wg.Done()

	ctx := c.ctx
	cancel := context.CancelFunc(func() {})
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}
	start := time.Now()
	payloads, err := c.decoder.Decode(ctx, f)
	cancel()
	elapsed := time.Since(start)
	decodeDuration.Observe(elapsed.Seconds())

	payload, found := "", false
	if err == nil {
		payload, found = FirstPayload(payloads)
	}

	// Copy the image before the frame gives its buffers back.
	var captured image.Image
	if found && c.capture && f.Image != nil {
		captured = imaging.Clone(f.Upright())
	}

	c.mu.Lock()
	stale := gen != c.generation || c.closed
	switch {
	case stale:
		// The session that submitted this frame is gone; the current
		// session owns the state now.
	case found:
		c.state = Suspended
		c.pending = append(c.pending,
			notice{from: Scanning, to: Suspended},
			notice{detection: &Detection{
				Payload:    payload,
				Image:      captured,
				Seq:        f.Seq,
				Session:    gen,
				DetectedAt: time.Now(),
			}},
		)
	default:
		c.inFlight = false
	}
	c.mu.Unlock()

	f.Release()

	switch {
	case stale:
		c.discardStale(f.Seq, gen)
		return
	case err != nil:
		c.decodeFailures.Add(1)
		decodesTotal.WithLabelValues("error").Inc()
		c.logger.Debug("Decode failed, continuing", "seq", f.Seq, "error", err, "duration", elapsed)
		return
	case !found:
		c.emptyResults.Add(1)
		decodesTotal.WithLabelValues("empty").Inc()
		return
	}

	c.logger.Debug("Symbol decoded", "seq", f.Seq, "generation", gen, "duration", elapsed)
	c.deliver()
}

func (c *Coordinator) discardStale(seq, gen uint64) {
	c.staleResults.Add(1)
	decodesTotal.WithLabelValues("stale").Inc()
	c.logger.Debug("Discarding decode result from abandoned session", "seq", seq, "generation", gen)
}

// deliver runs queued callbacks outside the lock, in the order the
// transitions happened. Only one goroutine delivers at a time; a call made
// meanwhile, including one from inside a callback, just leaves its notices
// for the active deliverer. A detection is checked against the current
// generation right before its handler runs.
func (c *Coordinator) deliver() {
	c.mu.Lock()
	if c.notifying {
		c.mu.Unlock()
		return
	}
	c.notifying = true

	for len(c.pending) > 0 {
		n := c.pending[0]
		c.pending = c.pending[1:]
		d := n.detection
		stale := d != nil && (d.Session != c.generation || c.closed)
		c.mu.Unlock()

		switch {
		case stale:
			c.discardStale(d.Seq, d.Session)
		case d != nil:
			c.detections.Add(1)
			decodesTotal.WithLabelValues("detected").Inc()
			c.logger.Info("Symbol detected", "seq", d.Seq, "generation", d.Session, "payload_len", len(d.Payload))
			if c.onDetected != nil {
				c.onDetected(*d)
			}
		case c.onState != nil:
			c.onState(n.from, n.to)
		}

		c.mu.Lock()
	}
	c.notifying = false
	c.mu.Unlock()
}

// Resume leaves the Suspended state. It reports whether a transition took
// place; calling it while Scanning changes nothing.
func (c *Coordinator) Resume() bool {
	c.mu.Lock()
	if c.state != Suspended {
		c.mu.Unlock()
		return false
	}
	c.state = Scanning
	c.inFlight = false
	c.pending = append(c.pending, notice{from: Suspended, to: Scanning})
	c.mu.Unlock()

	c.logger.Debug("Scanning resumed")
	c.deliver()
	return true
}

// Reset starts a new camera session: results of decodes submitted before the
// reset are discarded, and the coordinator returns to Scanning with nothing
// in flight. It returns the new session generation.
func (c *Coordinator) Reset() uint64 {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	from := c.state
	c.state = Scanning
	c.inFlight = false
	if from != Scanning {
		c.pending = append(c.pending, notice{from: from, to: Scanning})
	}
	c.mu.Unlock()

	c.logger.Debug("Scan session reset", "generation", gen, "previous_state", from.String())
	c.deliver()
	return gen
}

// Close stops accepting frames and waits for an in-flight decode to return.
// Frames offered after Close are released without decoding.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// State returns the current scan state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// InFlight reports whether a decode has been submitted and not yet resolved.
func (c *Coordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Generation returns the current session generation.
func (c *Coordinator) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Stats returns a snapshot of the counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	state, inFlight, gen := c.state, c.inFlight, c.generation
	c.mu.Unlock()

	return Stats{
		Submitted:        c.submitted.Load(),
		DroppedBusy:      c.droppedBusy.Load(),
		DroppedSuspended: c.droppedSuspended.Load(),
		DroppedClosed:    c.droppedClosed.Load(),
		Detections:       c.detections.Load(),
		EmptyResults:     c.emptyResults.Load(),
		DecodeFailures:   c.decodeFailures.Load(),
		StaleResults:     c.staleResults.Load(),
		State:            state.String(),
		InFlight:         inFlight,
		Generation:       gen,
	}
}
