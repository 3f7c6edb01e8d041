package barcode

import (
	"context"
	"fmt"
	"image"
)

// Options controls backend decoding behavior.
type Options struct {
	// TryHarder enables more exhaustive search (slower but more robust).
	TryHarder bool

	// Multi enables multi-symbol detection in a single image.
	Multi bool

	// ROI optionally restricts decoding to a sub-rectangle of the image.
	// If zero-sized or out of bounds, backends ignore it.
	ROI image.Rectangle
}

// DefaultOptions returns the options used by the live scanner.
func DefaultOptions() Options {
	return Options{TryHarder: true, Multi: true}
}

// Point is an integer point in image coordinates.
type Point struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// Result represents a decoded symbol.
type Result struct {
	Format string          `json:"format" yaml:"format"`
	Value  string          `json:"value" yaml:"value"`
	Points []Point         `json:"points,omitempty" yaml:"points,omitempty"`
	BBox   image.Rectangle `json:"-" yaml:"-"`
}

// Backend is a pluggable barcode decoder implementation. Results are returned
// in the order the backend found them.
type Backend interface {
	Decode(ctx context.Context, img image.Image, opts Options) ([]Result, error)
}

// NewBackend returns the default backend implementation.
func NewBackend() (Backend, error) { return newDefaultBackend() }

// DecodeError reports that the decoder rejected its input.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("barcode %s: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
