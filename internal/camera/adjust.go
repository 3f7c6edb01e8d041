package camera

import (
	"image"

	"github.com/disintegration/imaging"
)

const (
	// MaxZoomFactor is the magnification at zoom ratio 1.
	MaxZoomFactor = 4.0
	// torchBrightness is the brightness lift in percent applied while the
	// torch is on.
	torchBrightness = 35
)

// Adjust holds the per-stream image settings applied to each captured image.
type Adjust struct {
	Zoom   float64
	Torch  bool
	Mirror bool
}

// Apply returns img with zoom, torch and mirror applied. img is returned
// unchanged when no adjustment is active.
func (a Adjust) Apply(img image.Image) image.Image {
	if img == nil {
		return nil
	}
	out := img
	if a.Zoom > 0 {
		out = zoomCrop(out, a.Zoom)
	}
	if a.Torch {
		out = imaging.AdjustBrightness(out, torchBrightness)
	}
	if a.Mirror {
		out = imaging.FlipH(out)
	}
	return out
}

// ZoomFactor maps a linear zoom ratio in [0,1] to a magnification factor.
func ZoomFactor(ratio float64) float64 {
	ratio = max(0, min(1, ratio))
	return 1 + ratio*(MaxZoomFactor-1)
}

func zoomCrop(img image.Image, ratio float64) image.Image {
	factor := ZoomFactor(ratio)
	b := img.Bounds()
	w := max(1, int(float64(b.Dx())/factor))
	h := max(1, int(float64(b.Dy())/factor))
	return imaging.CropCenter(img, w, h)
}
