// Package capture owns the camera and the frame polling loop that feeds the
// optical code decoder.
//
// A Loop holds at most one open Stream. Activate opens the camera and starts a
// single polling goroutine; ticks run strictly one after another on that
// goroutine. The loop ends permanently for the activation when a frame yields a
// recognized payload, when the stream fails, or when Deactivate is called.
// Deactivate waits for an in-flight tick to return before the stream is
// closed, so a cancelled tick never touches a released stream.
package capture

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/loyalty-scanner/internal/domain"
)

var (
	// ErrFrameNotReady is returned by Stream.Frame while the surface has no full frame yet.
	ErrFrameNotReady = errors.New("capture: frame not ready")
	// ErrAlreadyActive is returned by Activate when a stream is already open.
	ErrAlreadyActive = errors.New("capture: camera already active")
	// ErrDeactivated is returned by Activate when Deactivate won the race with the open.
	ErrDeactivated = errors.New("capture: deactivated during activation")
	// ErrStreamEnded is returned by a Stream whose source stopped producing frames.
	ErrStreamEnded = errors.New("capture: stream ended")
)

// Facing is the logical direction of a camera.
type Facing string

const (
	FacingRear  Facing = "rear"
	FacingFront Facing = "front"
)

// Frame is a single grayscale (GRAY8) image sampled from the stream.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Data      []byte
}

// Camera acquires a live stream for a facing direction. Open may block for as
// long as the platform needs (permission prompts, device warm-up).
type Camera interface {
	Open(ctx context.Context, facing Facing) (Stream, error)
}

// Stream is an open camera handle.
type Stream interface {
	// Frame copies the current frame, or returns ErrFrameNotReady.
	Frame(ctx context.Context) (Frame, error)
	// Close releases the device. Safe to call more than once.
	Close() error
}

// Decoder locates and decodes one optical code in a frame.
type Decoder interface {
	Decode(frame Frame) (string, bool)
}

// ClassifyFunc validates a decoded string.
type ClassifyFunc func(raw string) (domain.ScanPayload, bool)

// Sink receives the outcome of an activation.
type Sink interface {
	OnPayload(p domain.ScanPayload)
	OnCaptureError(err error)
}

// State is the lifecycle state of a Loop.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Stats counts loop activity since construction.
type Stats struct {
	Activations    uint64 `json:"activations"`
	FramesSampled  uint64 `json:"frames_sampled"`
	FramesNotReady uint64 `json:"frames_not_ready"`
	Decoded        uint64 `json:"decoded"`
	NoiseDiscarded uint64 `json:"noise_discarded"`
}
