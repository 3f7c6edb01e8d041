package camera

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/qrlens/internal/frame"
)

// stream is the delivery side shared by all backends. The channel holds one
// frame; a frame that finds it full is released instead of queued so the
// consumer always sees a recent image.
type stream struct {
	backend string
	out     chan *frame.Frame
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	seq     *atomic.Uint64

	delivered atomic.Uint64
	dropped   atomic.Uint64
	closeOnce sync.Once
}

func newStream(parent context.Context, backend string, seq *atomic.Uint64) *stream {
	ctx, cancel := context.WithCancel(parent)
	return &stream{
		backend: backend,
		out:     make(chan *frame.Frame, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		seq:     seq,
	}
}

func (s *stream) nextSeq() uint64 {
	return s.seq.Add(1)
}

// offer hands f to the consumer without blocking.
func (s *stream) offer(f *frame.Frame) bool {
	select {
	case <-s.ctx.Done():
		f.Release()
		return false
	default:
	}
	select {
	case s.out <- f:
		s.delivered.Add(1)
		framesCaptured.WithLabelValues(s.backend, "delivered").Inc()
		return true
	default:
		f.Release()
		s.dropped.Add(1)
		framesCaptured.WithLabelValues(s.backend, "dropped").Inc()
		return false
	}
}

// capture calls grab about once per interval and offers what it returns
// until the stream stops. A nil frame means the device gave nothing usable;
// the loop still waits a full interval before the next attempt.
func (s *stream) capture(interval time.Duration, grab func() *frame.Frame) {
	defer s.finish()

	for s.ctx.Err() == nil {
		start := time.Now()
		wait := interval
		if f := grab(); f != nil {
			s.offer(f)
			wait -= time.Since(start)
		}
		if !sleepCtx(s.ctx, wait) {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// finish closes the channel. Called once by the producer goroutine on exit.
// A stopped stream also releases the frame the consumer never took; a stream
// that ran out of images leaves it for the consumer.
func (s *stream) finish() {
	s.closeOnce.Do(func() {
		close(s.out)
		if s.ctx.Err() != nil {
			for f := range s.out {
				f.Release()
			}
		}
		close(s.done)
	})
}

func (s *stream) stop() {
	s.cancel()
	<-s.done
}
