package barcode

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/qrlens/internal/frame"
)

// FrameDecoder adapts a Backend to camera frames: it rotates each frame
// upright and returns the decoded payloads in backend order.
type FrameDecoder struct {
	backend Backend
	opts    Options
	logger  *slog.Logger
}

// NewFrameDecoder wraps backend. A nil backend selects the default one.
func NewFrameDecoder(backend Backend, opts Options) (*FrameDecoder, error) {
	if backend == nil {
		var err error
		backend, err = NewBackend()
		if err != nil {
			return nil, err
		}
	}
	return &FrameDecoder{backend: backend, opts: opts, logger: slog.Default()}, nil
}

// WithLogger sets the logger used for per-frame debug output and returns d.
func (d *FrameDecoder) WithLogger(l *slog.Logger) *FrameDecoder {
	if l != nil {
		d.logger = l
	}
	return d
}

// Decode returns the raw text payloads found in f. Frames without a symbol
// yield an empty slice and a nil error. The frame is not released.
func (d *FrameDecoder) Decode(ctx context.Context, f *frame.Frame) ([]string, error) {
	if f == nil {
		return nil, &DecodeError{Op: "decode", Err: errors.New("nil frame")}
	}
	start := time.Now()
	results, err := d.backend.Decode(ctx, f.Upright(), d.opts)
	if err != nil {
		var de *DecodeError
		if !errors.As(err, &de) {
			err = &DecodeError{Op: "decode", Err: err}
		}
		return nil, err
	}
	d.logger.Debug("Frame decoded", "seq", f.Seq, "symbols", len(results), "duration", time.Since(start))
	return Payloads(results), nil
}

// DecodeImage decodes a still image, e.g. one picked from disk.
func (d *FrameDecoder) DecodeImage(ctx context.Context, img image.Image) ([]Result, error) {
	return d.backend.Decode(ctx, img, d.opts)
}

// Payloads extracts the text values from results, preserving order.
func Payloads(results []Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Value)
	}
	return out
}

