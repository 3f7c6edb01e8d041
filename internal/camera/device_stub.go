//go:build !camera_gocv

package camera

import (
	"context"
	"log/slog"

	"github.com/MeKo-Tech/qrlens/internal/frame"
)

// Device is the webcam backend. This build has no capture library linked,
// so Start always fails with a BindError.
type Device struct {
	cfg    DeviceConfig
	logger *slog.Logger
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
	return &Device{cfg: cfg, logger: logger}
}

// Start checks the permission gate and reports that no backend is linked.
func (d *Device) Start(ctx context.Context, facing Facing) (<-chan *frame.Frame, error) {
	if err := d.cfg.Permission.Check(ctx); err != nil {
		return nil, err
	}
	return nil, &BindError{Device: d.cfg.deviceFor(facing), Facing: facing, Err: ErrNoDeviceBackend}
}

// Stop is a no-op.
func (d *Device) Stop() error { return nil }

// SetZoom validates ratio.
func (d *Device) SetZoom(ratio float64) error { return ValidateZoom(ratio) }

// SetTorch always fails: there is no stream to light.
func (d *Device) SetTorch(bool) error { return ErrNotStarted }

// Available reports whether a device backend is compiled in.
func Available() bool { return false }
