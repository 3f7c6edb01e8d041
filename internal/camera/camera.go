// Package camera provides frame sources for the scan pipeline: a device
// backend for real webcams and a replay backend that plays image files.
package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/MeKo-Tech/qrlens/internal/frame"
)

// Facing selects the physical camera.
type Facing int

const (
	// Back is the world-facing camera and the default.
	Back Facing = iota
	// Front is the user-facing camera. Its frames are mirrored.
	Front
)

func (f Facing) String() string {
	switch f {
	case Back:
		return "back"
	case Front:
		return "front"
	default:
		return "unknown"
	}
}

// ParseFacing converts "back" or "front" (case-insensitive) to a Facing.
func ParseFacing(s string) (Facing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "back":
		return Back, nil
	case "front":
		return Front, nil
	default:
		return Back, fmt.Errorf("invalid camera facing %q (must be back or front)", s)
	}
}

var (
	// ErrPermissionDenied is returned by Start when camera access is not granted.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrTorchUnavailable is returned when the torch is requested on a camera
	// without one.
	ErrTorchUnavailable = errors.New("torch not available on this camera")
	// ErrZoomOutOfRange is returned for zoom ratios outside [0,1].
	ErrZoomOutOfRange = errors.New("zoom ratio must be within [0,1]")
	// ErrNoDeviceBackend is the cause of a BindError when the binary was
	// built without a device backend.
	ErrNoDeviceBackend = errors.New("no camera device backend linked (build with -tags camera_gocv)")
	// ErrNotStarted is returned when a running stream is required.
	ErrNotStarted = errors.New("camera not started")
)

// BindError reports that a camera could not be opened or bound.
type BindError struct {
	Device string
	Facing Facing
	Err    error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind camera %s (%s): %v", e.Device, e.Facing, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// Source produces camera frames. Every frame received from the channel must
// be released by the receiver. The channel is closed when the stream stops.
type Source interface {
	Start(ctx context.Context, facing Facing) (<-chan *frame.Frame, error)
	Stop() error
	SetZoom(ratio float64) error
	SetTorch(on bool) error
}

// ValidateZoom checks that ratio lies in [0,1].
func ValidateZoom(ratio float64) error {
	if math.IsNaN(ratio) || ratio < 0 || ratio > 1 {
		return fmt.Errorf("%w: %v", ErrZoomOutOfRange, ratio)
	}
	return nil
}

// DeviceConfig configures the device backend.
type DeviceConfig struct {
	// Device is the back camera index or device node ("0", "/dev/video0").
	Device string
	// FrontDevice is used for Front. Empty means the back device is reused
	// and mirrored.
	FrontDevice string
	Width       int
	Height      int
	FPS         float64
	// Rotation is the clockwise sensor rotation reported with each frame.
	Rotation   int
	Permission Permission
	Logger     *slog.Logger
}

func (c DeviceConfig) deviceFor(f Facing) string {
	if f == Front && c.FrontDevice != "" {
		return c.FrontDevice
	}
	if c.Device == "" {
		return "0"
	}
	return c.Device
}

func frameInterval(fps float64) time.Duration {
	if fps <= 0 {
		fps = 15
	}
	return time.Duration(float64(time.Second) / fps)
}
