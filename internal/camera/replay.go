package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/qrlens/internal/frame"
	"github.com/MeKo-Tech/qrlens/internal/utils"
	"github.com/disintegration/imaging"
)

// ReplayConfig configures a Replay source.
type ReplayConfig struct {
	// Paths lists image files or directories to play in order.
	Paths []string
	FPS   float64
	// Loop restarts from the first image after the last one. Without it the
	// stream ends after one pass.
	Loop bool
	// Rotation simulates a sensor mounted at this clockwise angle: images
	// are stored rotated and frames carry the rotation needed to undo it.
	Rotation   int
	Permission Permission
	Logger     *slog.Logger
}

// Replay is a Source that plays still images as a camera stream.
type Replay struct {
	cfg    ReplayConfig
	logger *slog.Logger
	seq    atomic.Uint64

	mu     sync.Mutex
	images []image.Image
	facing Facing
	adjust Adjust
	cur    *stream
}

// NewReplay creates a replay source. Images are loaded on the first Start.
func NewReplay(cfg ReplayConfig) *Replay {
	if cfg.Permission == nil {
		cfg.Permission = Granted
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Rotation = frame.NormalizeRotation(cfg.Rotation)
	return &Replay{cfg: cfg, logger: logger}
}

// NewReplayFromImages creates a replay source over in-memory images.
func NewReplayFromImages(images []image.Image, cfg ReplayConfig) *Replay {
	r := NewReplay(cfg)
	for _, img := range images {
		r.images = append(r.images, sensorImage(img, r.cfg.Rotation))
	}
	return r
}

// Start begins playback for facing. A running stream is stopped first.
func (r *Replay) Start(ctx context.Context, facing Facing) (<-chan *frame.Frame, error) {
	if err := r.cfg.Permission.Check(ctx); err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	if err := r.Stop(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.images) == 0 {
		if err := r.loadLocked(); err != nil {
			return nil, &BindError{Device: "replay", Facing: facing, Err: err}
		}
	}

	r.facing = facing
	r.adjust.Mirror = facing == Front
	if facing == Front {
		r.adjust.Torch = false
	}
	s := newStream(ctx, "replay", &r.seq)
	r.cur = s
	go r.run(s, r.images)

	r.logger.Info("Replay camera started", "facing", facing.String(), "images", len(r.images), "fps", r.cfg.FPS)
	return s.out, nil
}

func (r *Replay) loadLocked() error {
	files, err := utils.DiscoverImages(r.cfg.Paths)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no replay images")
	}
	for _, path := range files {
		img, _, err := utils.LoadImage(path)
		if err != nil {
			return err
		}
		r.images = append(r.images, sensorImage(img, r.cfg.Rotation))
	}
	return nil
}

func (r *Replay) run(s *stream, images []image.Image) {
	defer s.finish()

	ticker := time.NewTicker(frameInterval(r.cfg.FPS))
	defer ticker.Stop()

	for i := 0; ; i++ {
		if i == len(images) {
			if !r.cfg.Loop {
				r.logger.Debug("Replay finished", "frames", s.delivered.Load())
				return
			}
			i = 0
		}

		r.mu.Lock()
		adj := r.adjust
		r.mu.Unlock()

		f := frame.New(adj.Apply(images[i]), r.cfg.Rotation, s.nextSeq(), nil)
		s.offer(f)

		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop ends playback and waits for the producer to exit. Stopping a source
// that is not running is a no-op.
func (r *Replay) Stop() error {
	r.mu.Lock()
	s := r.cur
	r.cur = nil
	r.mu.Unlock()

	if s != nil {
		s.stop()
		r.logger.Debug("Replay camera stopped", "delivered", s.delivered.Load(), "dropped", s.dropped.Load())
	}
	return nil
}

// SetZoom sets the linear zoom ratio in [0,1].
func (r *Replay) SetZoom(ratio float64) error {
	if err := ValidateZoom(ratio); err != nil {
		return err
	}
	r.mu.Lock()
	r.adjust.Zoom = ratio
	r.mu.Unlock()
	return nil
}

// SetTorch switches the torch. Only the back camera has one.
func (r *Replay) SetTorch(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if on && r.facing == Front {
		return ErrTorchUnavailable
	}
	r.adjust.Torch = on
	return nil
}

// Settings returns the current image adjustments.
func (r *Replay) Settings() Adjust {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.adjust
}

// sensorImage rotates an upright image counter-clockwise by rotation so that
// frame.Upright restores it.
func sensorImage(img image.Image, rotation int) image.Image {
	switch rotation {
	case 90:
		return imaging.Rotate90(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate270(img)
	default:
		return img
	}
}
