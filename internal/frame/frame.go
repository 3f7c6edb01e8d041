// Package frame defines the unit of work flowing through the scan pipeline:
// one camera image plus orientation metadata and a release obligation.
package frame

import (
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
)

// Frame is a single camera image. Whoever receives a Frame owns it and must
// call Release exactly once, whether the frame was decoded or dropped.
type Frame struct {
	// Image holds the pixels as captured by the sensor (not yet rotated).
	Image image.Image

	// Rotation is the clockwise rotation in degrees (0, 90, 180, 270) needed
	// to display the image upright.
	Rotation int

	// Seq is a monotonically increasing sequence number assigned by the source.
	Seq uint64

	// CapturedAt is the acquisition timestamp.
	CapturedAt time.Time

	release  func()
	once     sync.Once
	released atomic.Bool
}

// New wraps img into a Frame. release may be nil when the image does not hold
// any native resources.
func New(img image.Image, rotation int, seq uint64, release func()) *Frame {
	return &Frame{
		Image:      img,
		Rotation:   NormalizeRotation(rotation),
		Seq:        seq,
		CapturedAt: time.Now(),
		release:    release,
	}
}

// Release frees the resources held by the frame. Only the first call has any
// effect; it reports whether this call performed the release.
func (f *Frame) Release() bool {
	if f == nil {
		return false
	}
	first := false
	f.once.Do(func() {
		first = true
		f.released.Store(true)
		if f.release != nil {
			f.release()
		}
	})
	return first
}

// Released reports whether Release has been called.
func (f *Frame) Released() bool {
	return f != nil && f.released.Load()
}

// Upright returns the frame image rotated so that it displays upright.
func (f *Frame) Upright() image.Image {
	if f == nil || f.Image == nil {
		return nil
	}
	// imaging rotates counter-clockwise; sensor rotation is clockwise.
	switch f.Rotation {
	case 90:
		return imaging.Rotate270(f.Image)
	case 180:
		return imaging.Rotate180(f.Image)
	case 270:
		return imaging.Rotate90(f.Image)
	default:
		return f.Image
	}
}

// NormalizeRotation maps any angle onto 0, 90, 180 or 270, snapping to the
// nearest quarter turn.
func NormalizeRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	q := ((deg + 45) / 90) % 4
	return q * 90
}
