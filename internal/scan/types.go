package scan

import (
	"context"
	"image"
	"time"

	"github.com/MeKo-Tech/qrlens/internal/frame"
)

// Decoder is the opaque symbol-recognition capability. It must return an
// empty slice, not an error, when the frame holds no symbol. It must not
// release the frame.
type Decoder interface {
	Decode(ctx context.Context, f *frame.Frame) ([]string, error)
}

// FirstPayload returns the first non-empty payload in decoder order. It is
// the rule for picking one result when a frame or image holds several codes.
func FirstPayload(payloads []string) (string, bool) {
	for _, p := range payloads {
		if p != "" {
			return p, true
		}
	}
	return "", false
}

// DecoderFunc adapts a plain function to the Decoder interface.
type DecoderFunc func(ctx context.Context, f *frame.Frame) ([]string, error)

// Decode calls fn(ctx, f).
func (fn DecoderFunc) Decode(ctx context.Context, f *frame.Frame) ([]string, error) {
	return fn(ctx, f)
}

// State is the scan state of a coordinator.
type State int

const (
	// Scanning submits frames to the decoder.
	Scanning State = iota
	// Suspended releases frames without decoding until Resume is called.
	Suspended
)

func (s State) String() string {
	switch s {
	case Scanning:
		return "scanning"
	case Suspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Detection is the result handed to the presentation layer.
type Detection struct {
	Payload    string      `json:"payload" yaml:"payload"`
	Image      image.Image `json:"-" yaml:"-"`
	Seq        uint64      `json:"seq" yaml:"seq"`
	Session    uint64      `json:"session" yaml:"session"`
	DetectedAt time.Time   `json:"detected_at" yaml:"detected_at"`
}

// DetectionHandler receives each detection. It runs on the decode goroutine
// and must not block for long; Resume may be called from inside it.
type DetectionHandler func(Detection)

// StateObserver is notified after every state transition.
type StateObserver func(from, to State)

// Stats is a point-in-time snapshot of coordinator counters.
type Stats struct {
	Submitted        uint64 `json:"submitted"`
	DroppedBusy      uint64 `json:"dropped_busy"`
	DroppedSuspended uint64 `json:"dropped_suspended"`
	DroppedClosed    uint64 `json:"dropped_closed"`
	Detections       uint64 `json:"detections"`
	EmptyResults     uint64 `json:"empty_results"`
	DecodeFailures   uint64 `json:"decode_failures"`
	StaleResults     uint64 `json:"stale_results"`

	State      string `json:"state"`
	InFlight   bool   `json:"in_flight"`
	Generation uint64 `json:"generation"`
}
