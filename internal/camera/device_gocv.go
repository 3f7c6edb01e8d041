//go:build camera_gocv

package camera

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/MeKo-Tech/qrlens/internal/frame"
	"gocv.io/x/gocv"
)

// Device captures frames from a webcam through OpenCV.
type Device struct {
	cfg    DeviceConfig
	logger *slog.Logger
	seq    atomic.Uint64

	mu     sync.Mutex
	facing Facing
	adjust Adjust
	vc     *gocv.VideoCapture
	cur    *stream
}

// NewDevice creates a device source.
func NewDevice(cfg DeviceConfig) *Device {
	if cfg.Permission == nil {
		cfg.Permission = DevicePermission(cfg.Device)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Rotation = frame.NormalizeRotation(cfg.Rotation)
	return &Device{cfg: cfg, logger: logger}
}

// Available reports whether a device backend is compiled in.
func Available() bool { return true }

// Start opens the device for facing and begins capturing.
func (d *Device) Start(ctx context.Context, facing Facing) (<-chan *frame.Frame, error) {
	if err := d.cfg.Permission.Check(ctx); err != nil {
		return nil, err
	}
	if err := d.Stop(); err != nil {
		return nil, err
	}

	dev := d.cfg.deviceFor(facing)
	var id interface{} = dev
	if n, err := strconv.Atoi(dev); err == nil {
		id = n
	}
	vc, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, &BindError{Device: dev, Facing: facing, Err: err}
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, &BindError{Device: dev, Facing: facing, Err: fmt.Errorf("device did not open")}
	}
	if d.cfg.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(d.cfg.Width))
	}
	if d.cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(d.cfg.Height))
	}

	d.mu.Lock()
	d.facing = facing
	d.adjust.Mirror = facing == Front && d.cfg.FrontDevice == ""
	if facing == Front {
		d.adjust.Torch = false
	}
	d.vc = vc
	s := newStream(ctx, "device", &d.seq)
	d.cur = s
	d.mu.Unlock()

	go d.run(s, vc)
	d.logger.Info("Camera device started", "device", dev, "facing", facing.String())
	return s.out, nil
}

func (d *Device) run(s *stream, vc *gocv.VideoCapture) {
	misses := 0
	s.capture(frameInterval(d.cfg.FPS), func() *frame.Frame {
		mat := gocv.NewMat()
		if ok := vc.Read(&mat); !ok || mat.Empty() {
			_ = mat.Close()
			misses++
			if misses%30 == 1 {
				d.logger.Warn("Camera read returned no frame", "misses", misses)
			}
			return nil
		}
		misses = 0

		img, err := mat.ToImage()
		if err != nil {
			_ = mat.Close()
			d.logger.Debug("Frame conversion failed", "error", err)
			return nil
		}

		d.mu.Lock()
		adj := d.adjust
		d.mu.Unlock()

		return frame.New(adj.Apply(img), d.cfg.Rotation, s.nextSeq(), func() { _ = mat.Close() })
	})
}

// Stop ends capture and closes the device.
func (d *Device) Stop() error {
	d.mu.Lock()
	s, vc := d.cur, d.vc
	d.cur, d.vc = nil, nil
	d.mu.Unlock()

	if s != nil {
		s.stop()
	}
	if vc != nil {
		if err := vc.Close(); err != nil {
			return fmt.Errorf("close camera: %w", err)
		}
		d.logger.Debug("Camera device stopped")
	}
	return nil
}

// SetZoom sets the linear zoom ratio in [0,1] as a center crop.
func (d *Device) SetZoom(ratio float64) error {
	if err := ValidateZoom(ratio); err != nil {
		return err
	}
	d.mu.Lock()
	d.adjust.Zoom = ratio
	d.mu.Unlock()
	return nil
}

// SetTorch switches the simulated torch. Only the back camera has one.
func (d *Device) SetTorch(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if on && d.facing == Front {
		return ErrTorchUnavailable
	}
	d.adjust.Torch = on
	return nil
}
