package barcode

import (
	"context"
	"errors"
	"image"
	"image/draw"

	gozxing "github.com/makiuchi-d/gozxing"
	multiqr "github.com/makiuchi-d/gozxing/multi/qrcode"
	"github.com/makiuchi-d/gozxing/qrcode"
)

const formatQR = "qr"

func newDefaultBackend() (Backend, error) { return &gozxingBackend{}, nil }

type gozxingBackend struct{}

func (b *gozxingBackend) Decode(ctx context.Context, img image.Image, opts Options) ([]Result, error) {
	if img == nil {
		return nil, &DecodeError{Op: "decode", Err: errors.New("nil image")}
	}
	if err := ctx.Err(); err != nil {
		return nil, &DecodeError{Op: "decode", Err: err}
	}
	if !opts.ROI.Empty() {
		if roiImg, ok := subImage(img, opts.ROI); ok {
			img = roiImg
		}
	}
	if img.Bounds().Empty() {
		return nil, &DecodeError{Op: "decode", Err: errors.New("empty image")}
	}

	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_POSSIBLE_FORMATS: []gozxing.BarcodeFormat{gozxing.BarcodeFormat_QR_CODE},
	}
	if opts.TryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}

	source := gozxing.NewLuminanceSourceFromImage(img)
	bitmap, err := gozxing.NewBinaryBitmap(gozxing.NewHybridBinarizer(source))
	if err != nil {
		return nil, &DecodeError{Op: "binarize", Err: err}
	}

	var results []*gozxing.Result
	if opts.Multi {
		results, err = multiqr.NewQRCodeMultiReader().DecodeMultiple(bitmap, hints)
	} else {
		var r *gozxing.Result
		r, err = qrcode.NewQRCodeReader().Decode(bitmap, hints)
		if r != nil {
			results = []*gozxing.Result{r}
		}
	}
	if err != nil {
		var notFound gozxing.NotFoundException
		if errors.As(err, &notFound) {
			return []Result{}, nil
		}
		return nil, &DecodeError{Op: "decode", Err: err}
	}

	// The decode itself is not interruptible; honor a deadline that passed
	// while it ran so callers see a consistent timeout.
	if err := ctx.Err(); err != nil {
		return nil, &DecodeError{Op: "decode", Err: err}
	}

	out := make([]Result, 0, len(results))
	for _, r := range results {
		var points []Point
		if pts := r.GetResultPoints(); len(pts) > 0 {
			points = make([]Point, 0, len(pts))
			for _, p := range pts {
				points = append(points, Point{X: int(p.GetX()), Y: int(p.GetY())})
			}
		}
		out = append(out, Result{
			Format: formatQR,
			Value:  r.GetText(),
			Points: points,
			BBox:   rectFromPoints(points),
		})
	}
	return out, nil
}

func rectFromPoints(pts []Point) image.Rectangle {
	if len(pts) == 0 {
		return image.Rectangle{}
	}
	minX, minY := pts[0].X, pts[0].Y
	maxX, maxY := pts[0].X, pts[0].Y
	for _, p := range pts[1:] {
		minX = min(minX, p.X)
		minY = min(minY, p.Y)
		maxX = max(maxX, p.X)
		maxY = max(maxY, p.Y)
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}

// subImage copies the part of img inside r into a zero-origin image.
func subImage(img image.Image, r image.Rectangle) (image.Image, bool) {
	rb := r.Intersect(img.Bounds())
	if rb.Empty() {
		return nil, false
	}
	dst := image.NewRGBA(image.Rect(0, 0, rb.Dx(), rb.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rb.Min, draw.Src)
	return dst, true
}
