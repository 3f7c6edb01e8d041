package testutil

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MeKo-Tech/qrlens/internal/frame"
)

// WaitTimeout bounds every blocking helper so a broken test fails instead of
// hanging.
const WaitTimeout = 2 * time.Second

// DecodeReply is the scripted outcome of one decode call.
type DecodeReply struct {
	Payloads []string
	Err      error
}

// ScriptedDecoder blocks every Decode call until the test supplies a reply.
// Replies are matched to pending calls in submission order.
type ScriptedDecoder struct {
	started chan *frame.Frame
	calls   atomic.Int64

	mu      sync.Mutex
	pending []*pendingDecode
}

type pendingDecode struct {
	f     *frame.Frame
	reply chan DecodeReply
}

// NewScriptedDecoder creates a decoder with no pending calls.
func NewScriptedDecoder() *ScriptedDecoder {
	return &ScriptedDecoder{started: make(chan *frame.Frame, 64)}
}

// Decode records the call and waits for Reply or context cancellation.
func (d *ScriptedDecoder) Decode(ctx context.Context, f *frame.Frame) ([]string, error) {
	d.calls.Add(1)
	call := &pendingDecode{f: f, reply: make(chan DecodeReply, 1)}
	d.mu.Lock()
	d.pending = append(d.pending, call)
	d.mu.Unlock()
	d.started <- f

	select {
	case r := <-call.reply:
		return r.Payloads, r.Err
	case <-ctx.Done():
		d.mu.Lock()
		for i, p := range d.pending {
			if p == call {
				d.pending = append(d.pending[:i], d.pending[i+1:]...)
				break
			}
		}
		d.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Calls returns the number of Decode invocations so far.
func (d *ScriptedDecoder) Calls() int {
	return int(d.calls.Load())
}

// WaitStarted returns the frame of the next Decode call.
func (d *ScriptedDecoder) WaitStarted(t *testing.T) *frame.Frame {
	t.Helper()
	select {
	case f := <-d.started:
		return f
	case <-time.After(WaitTimeout):
		t.Fatal("decode was not submitted")
		return nil
	}
}

// AssertNotStarted fails if a Decode call begins within a short window.
func (d *ScriptedDecoder) AssertNotStarted(t *testing.T) {
	t.Helper()
	select {
	case f := <-d.started:
		t.Fatalf("unexpected decode submitted for frame %d", f.Seq)
	case <-time.After(20 * time.Millisecond):
	}
}

// Reply completes the oldest pending Decode call.
func (d *ScriptedDecoder) Reply(t *testing.T, payloads []string, err error) {
	t.Helper()
	if !d.TryReply(payloads, err, WaitTimeout) {
		t.Fatal("no decode waiting for a reply")
	}
}

// TryReply is Reply without a testing.T; it reports whether a pending call
// was completed within timeout.
func (d *ScriptedDecoder) TryReply(payloads []string, err error, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		d.mu.Lock()
		if len(d.pending) > 0 {
			call := d.pending[0]
			d.pending = d.pending[1:]
			d.mu.Unlock()
			call.reply <- DecodeReply{Payloads: payloads, Err: err}
			return true
		}
		d.mu.Unlock()
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

// Pending returns the number of calls waiting for a reply.
func (d *ScriptedDecoder) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// FrameTracker creates frames and counts how often each one is released.
type FrameTracker struct {
	mu       sync.Mutex
	seq      uint64
	released map[uint64]int
	done     chan uint64
}

// NewFrameTracker returns an empty tracker.
func NewFrameTracker() *FrameTracker {
	return &FrameTracker{released: make(map[uint64]int), done: make(chan uint64, 1024)}
}

// New creates a tracked frame around img.
func (ft *FrameTracker) New(img image.Image) *frame.Frame {
	ft.mu.Lock()
	ft.seq++
	seq := ft.seq
	ft.released[seq] = 0
	ft.mu.Unlock()

	return frame.New(img, 0, seq, func() {
		ft.mu.Lock()
		ft.released[seq]++
		ft.mu.Unlock()
		select {
		case ft.done <- seq:
		default:
		}
	})
}

// Created returns the number of frames handed out.
func (ft *FrameTracker) Created() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return int(ft.seq)
}

// Releases returns how often the frame with seq was released.
func (ft *FrameTracker) Releases(seq uint64) int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.released[seq]
}

// Unreleased returns the sequence numbers that have not been released yet.
func (ft *FrameTracker) Unreleased() []uint64 {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	var out []uint64
	for seq, n := range ft.released {
		if n == 0 {
			out = append(out, seq)
		}
	}
	return out
}

// AllReleasedOnce reports whether every frame was released exactly once.
func (ft *FrameTracker) AllReleasedOnce() bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	for _, n := range ft.released {
		if n != 1 {
			return false
		}
	}
	return true
}

// WaitReleased blocks until the frame with seq has been released.
func (ft *FrameTracker) WaitReleased(t *testing.T, seq uint64) {
	t.Helper()
	deadline := time.Now().Add(WaitTimeout)
	for time.Now().Before(deadline) {
		if ft.Releases(seq) > 0 {
			return
		}
		select {
		case <-ft.done:
		case <-time.After(5 * time.Millisecond):
		}
	}
	t.Fatalf("frame %d was not released", seq)
}

// NextStarted waits up to timeout for the next Decode call and returns its
// frame.
func (d *ScriptedDecoder) NextStarted(timeout time.Duration) (*frame.Frame, bool) {
	select {
	case f := <-d.started:
		return f, true
	case <-time.After(timeout):
		return nil, false
	}
}
