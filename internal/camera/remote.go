package camera

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/MeKo-Tech/qrlens/internal/frame"
)

// Control is a camera setting change forwarded to a remote device.
type Control struct {
	Facing string   `json:"facing,omitempty"`
	Zoom   *float64 `json:"zoom,omitempty"`
	Torch  *bool    `json:"torch,omitempty"`
}

// Remote is a Source fed by frames pushed from outside the process, such as
// a browser camera streaming over a WebSocket. Setting changes are passed to
// the control callback so the remote side can apply them.
type Remote struct {
	onControl func(Control)
	seq       atomic.Uint64

	mu     sync.Mutex
	facing Facing
	cur    *stream
}

// NewRemote creates a remote source. onControl may be nil.
func NewRemote(onControl func(Control)) *Remote {
	return &Remote{onControl: onControl}
}

// Start opens a new stream for facing.
func (r *Remote) Start(ctx context.Context, facing Facing) (<-chan *frame.Frame, error) {
	if err := r.Stop(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	s := newStream(ctx, "remote", &r.seq)
	r.cur = s
	r.facing = facing
	r.mu.Unlock()

	go func() {
		<-s.ctx.Done()
		// Push offers under r.mu, so closing under it cannot race a send.
		r.mu.Lock()
		if r.cur == s {
			r.cur = nil
		}
		s.finish()
		r.mu.Unlock()
	}()

	r.control(Control{Facing: facing.String()})
	return s.out, nil
}

// Push offers a frame to the running stream. It reports whether the frame
// was accepted; rejected frames are released.
func (r *Remote) Push(f *frame.Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.cur
	if s == nil {
		f.Release()
		return false
	}
	if f.Seq == 0 {
		f.Seq = s.nextSeq()
	}
	return s.offer(f)
}

// NextSeq returns a fresh sequence number for frames built by the caller.
func (r *Remote) NextSeq() uint64 {
	return r.seq.Add(1)
}

// Stop ends the stream.
func (r *Remote) Stop() error {
	r.mu.Lock()
	s := r.cur
	r.cur = nil
	r.mu.Unlock()
	if s != nil {
		s.stop()
	}
	return nil
}

// SetZoom forwards the zoom ratio to the remote device.
func (r *Remote) SetZoom(ratio float64) error {
	if err := ValidateZoom(ratio); err != nil {
		return err
	}
	r.control(Control{Zoom: &ratio})
	return nil
}

// SetTorch forwards the torch state to the remote device.
func (r *Remote) SetTorch(on bool) error {
	r.mu.Lock()
	facing := r.facing
	r.mu.Unlock()
	if on && facing == Front {
		return ErrTorchUnavailable
	}
	r.control(Control{Torch: &on})
	return nil
}

func (r *Remote) control(c Control) {
	if r.onControl != nil {
		r.onControl(c)
	}
}
