// Package session runs one live camera session: it binds a frame source,
// pumps its frames into a scan coordinator and hands detections to a
// presenter. Facing, zoom and torch changes pass through to the source; a
// facing change starts a new coordinator generation.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MeKo-Tech/qrlens/internal/camera"
	"github.com/MeKo-Tech/qrlens/internal/frame"
	"github.com/MeKo-Tech/qrlens/internal/scan"
	"github.com/google/uuid"
)

// ErrInvalidZoom is returned by SetZoom for ratios outside [0,1].
var ErrInvalidZoom = errors.New("invalid zoom ratio")

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

// Presenter shows a detection. dismiss resumes scanning; calling it more
// than once has no further effect.
type Presenter interface {
	Present(ctx context.Context, d scan.Detection, dismiss func())
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(ctx context.Context, d scan.Detection, dismiss func())

// Present calls f.
func (f PresenterFunc) Present(ctx context.Context, d scan.Detection, dismiss func()) {
	f(ctx, d, dismiss)
}

// Settings are the user-controlled camera settings.
type Settings struct {
	Facing camera.Facing `json:"facing"`
	Zoom   float64       `json:"zoom"`
	Torch  bool          `json:"torch"`
}

// Option configures a Session.
type Option func(*Session)

// WithPresenter sets the presenter for detections.
func WithPresenter(p Presenter) Option {
	return func(s *Session) { s.presenter = p }
}

// WithSettings sets the initial camera settings.
func WithSettings(st Settings) Option {
	return func(s *Session) { s.settings = st }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithID overrides the generated session ID.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithScanOptions passes options through to the coordinator.
func WithScanOptions(opts ...scan.Option) Option {
	return func(s *Session) { s.scanOpts = append(s.scanOpts, opts...) }
}

// WithStreamEndHandler sets a callback run when the source ends its stream
// on its own, e.g. a replay without loop.
func WithStreamEndHandler(fn func()) Option {
	return func(s *Session) { s.onStreamEnd = fn }
}

// Session owns a camera source and a coordinator.
type Session struct {
	id          string
	source      camera.Source
	coord       *scan.Coordinator
	presenter   Presenter
	logger      *slog.Logger
	scanOpts    []scan.Option
	onStreamEnd func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	settings    Settings
	wantRunning bool
	running     bool
	closed      bool
	bindErr     error
	presented   uint64
	streamStop  context.CancelFunc
	pumpDone    chan struct{}
}

// New creates a stopped session around source and decoder.
func New(source camera.Source, dec scan.Decoder, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:     uuid.NewString(),
		source: source,
		logger: slog.Default(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session", s.id)

	coordOpts := []scan.Option{scan.WithLogger(s.logger)}
	coordOpts = append(coordOpts, s.scanOpts...)
	coordOpts = append(coordOpts, scan.WithDetectionHandler(s.handleDetection))
	s.coord = scan.NewCoordinator(dec, coordOpts...)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Coordinator exposes the underlying coordinator.
func (s *Session) Coordinator() *scan.Coordinator { return s.coord }

// Start binds the camera and begins scanning. A bind failure is returned and
// remembered; the next configuration change retries the bind.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.wantRunning = true
	if s.running {
		return nil
	}
	return s.bindLocked(ctx)
}

// Stop unbinds the camera. Detections already shown stay shown.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wantRunning = false
	s.bindErr = nil
	return s.unbindLocked()
}

// Close stops the session and waits for in-flight work.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.wantRunning = false
	err := s.unbindLocked()
	s.mu.Unlock()

	s.coord.Close()
	s.cancel()
	s.wg.Wait()
	s.logger.Info("Session closed", "stats", s.coord.Stats())
	return err
}

// SetFacing switches camera. Results from the previous camera are discarded.
func (s *Session) SetFacing(ctx context.Context, f camera.Facing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if f == s.settings.Facing && s.bindErr == nil {
		return nil
	}
	s.settings.Facing = f
	if f == camera.Front {
		s.settings.Torch = false
	}

	gen := s.coord.Reset()
	s.presented++
	s.logger.Info("Camera facing changed", "facing", f.String(), "generation", gen)
	if !s.wantRunning {
		return nil
	}
	if err := s.unbindLocked(); err != nil {
		s.logger.Warn("Unbind before facing change failed", "error", err)
	}
	return s.bindLocked(ctx)
}

// SetTorch switches the torch. Only the back camera has one.
func (s *Session) SetTorch(ctx context.Context, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if on && s.settings.Facing == camera.Front {
		return camera.ErrTorchUnavailable
	}
	s.settings.Torch = on
	return s.applyLocked(ctx, func() error { return s.source.SetTorch(on) })
}

// SetZoom sets the linear zoom ratio in [0,1].
func (s *Session) SetZoom(ctx context.Context, ratio float64) error {
	if err := camera.ValidateZoom(ratio); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidZoom, ratio)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.settings.Zoom = ratio
	return s.applyLocked(ctx, func() error { return s.source.SetZoom(ratio) })
}

// Apply replaces all settings at once, as after a config reload.
func (s *Session) Apply(ctx context.Context, st Settings) error {
	if err := camera.ValidateZoom(st.Zoom); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidZoom, st.Zoom)
	}
	if st.Torch && st.Facing == camera.Front {
		st.Torch = false
	}

	s.mu.Lock()
	facingChanged := st.Facing != s.settings.Facing
	s.settings.Zoom = st.Zoom
	s.settings.Torch = st.Torch
	s.mu.Unlock()

	if facingChanged {
		return s.SetFacing(ctx, st.Facing)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.applyLocked(ctx, func() error {
		if err := s.source.SetZoom(st.Zoom); err != nil {
			return err
		}
		return s.source.SetTorch(st.Torch)
	})
}

// Settings returns the current camera settings.
func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Running reports whether the camera is bound and streaming.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// BindError returns the last bind failure awaiting a retry, if any.
func (s *Session) BindError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bindErr
}

// Resume leaves the result state. See scan.Coordinator.Resume.
func (s *Session) Resume() bool { return s.coord.Resume() }

// State returns the coordinator state.
func (s *Session) State() scan.State { return s.coord.State() }

// Stats returns the coordinator counters.
func (s *Session) Stats() scan.Stats { return s.coord.Stats() }

// applyLocked pushes a setting to a bound source, or retries a failed bind
// which applies all settings anyway.
func (s *Session) applyLocked(ctx context.Context, push func() error) error {
	switch {
	case s.running:
		return push()
	case s.wantRunning && s.bindErr != nil:
		s.logger.Info("Retrying camera bind after configuration change")
		return s.bindLocked(ctx)
	default:
		return nil
	}
}

func (s *Session) bindLocked(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st := s.settings

	streamCtx, stop := context.WithCancel(s.ctx)
	frames, err := s.source.Start(streamCtx, st.Facing)
	if err != nil {
		stop()
		if errors.Is(err, camera.ErrPermissionDenied) {
			s.bindErr = nil
			s.wantRunning = false
			s.logger.Warn("Camera permission denied")
			return err
		}
		s.bindErr = err
		s.logger.Error("Camera bind failed", "facing", st.Facing.String(), "error", err)
		return err
	}
	s.bindErr = nil

	// Settings follow Start so a remote camera learns its facing first.
	if err := s.source.SetZoom(st.Zoom); err != nil {
		s.logger.Warn("Zoom not applied", "zoom", st.Zoom, "error", err)
	}
	if st.Torch {
		if err := s.source.SetTorch(true); err != nil {
			s.logger.Warn("Torch not applied", "error", err)
		}
	}

	done := make(chan struct{})
	s.running = true
	s.streamStop = stop
	s.pumpDone = done
	go s.pump(streamCtx, frames, done)

	s.logger.Info("Camera bound", "facing", st.Facing.String(), "zoom", st.Zoom, "torch", st.Torch)
	return nil
}

func (s *Session) unbindLocked() error {
	if !s.running {
		return nil
	}
	s.running = false
	s.streamStop()
	err := s.source.Stop()

	// The pump exits once the source closes its channel.
	<-s.pumpDone

	if err != nil {
		return fmt.Errorf("stop camera: %w", err)
	}
	return nil
}

func (s *Session) pump(streamCtx context.Context, frames <-chan *frame.Frame, done chan struct{}) {
	for f := range frames {
		s.coord.OnFrame(f)
	}
	close(done)

	if streamCtx.Err() != nil {
		return
	}

	s.mu.Lock()
	if s.pumpDone == done {
		s.running = false
	}
	s.mu.Unlock()

	s.logger.Info("Camera stream ended")
	if s.onStreamEnd != nil {
		s.onStreamEnd()
	}
}

func (s *Session) handleDetection(d scan.Detection) {
	// SetFacing resets under s.mu, so the generation cannot move while a
	// detection is being admitted.
	s.mu.Lock()
	if gen := s.coord.Generation(); d.Session != gen {
		s.mu.Unlock()
		s.logger.Debug("Dropping detection from previous camera", "seq", d.Seq, "generation", d.Session, "current", gen)
		return
	}
	s.presented++
	token := s.presented
	s.mu.Unlock()

	// dismiss only resumes the detection it was handed out for: a later
	// detection or a facing change invalidates it.
	var once sync.Once
	dismiss := func() {
		once.Do(func() {
			s.mu.Lock()
			current := s.presented == token
			s.mu.Unlock()
			if current && s.coord.Resume() {
				s.logger.Debug("Detection dismissed", "seq", d.Seq)
			}
		})
	}

	if s.presenter == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.presenter.Present(s.ctx, d, dismiss)
	}()
}
