package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	gozxing "github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/require"
)

// QRImage renders text as a QR code of size x size pixels on a white
// background with a quiet zone.
func QRImage(t *testing.T, text string, size int) *image.Gray {
	t.Helper()

	matrix, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, size, size, nil)
	require.NoError(t, err)

	out := image.NewGray(image.Rect(0, 0, size, size))
	draw.Draw(out, out.Bounds(), matrix, image.Point{}, draw.Src)
	return out
}

// QRPair places two QR codes side by side on one canvas, left first.
func QRPair(t *testing.T, left, right string, size int) *image.Gray {
	t.Helper()

	out := BlankImage(size*2, size)
	draw.Draw(out, image.Rect(0, 0, size, size), QRImage(t, left, size), image.Point{}, draw.Src)
	draw.Draw(out, image.Rect(size, 0, size*2, size), QRImage(t, right, size), image.Point{}, draw.Src)
	return out
}

// BlankImage returns a white image without any symbol.
func BlankImage(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	return img
}
