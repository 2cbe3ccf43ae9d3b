package frameloop

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure reported by the frame loop wraps exactly one
// of ErrDevice, ErrSync, ErrSubmit or ErrPresent, so callers can classify
// it with errors.Is.
var (
	// ErrDevice means the device or swap chain misbehaved, for example a
	// surface reported an image index outside [0, ImageCount).
	ErrDevice = errors.New("frameloop: device error")

	// ErrSync means CPU/GPU synchronization failed. The tracker can no
	// longer prove that an image's resources are idle, so rendering must stop.
	ErrSync = errors.New("frameloop: synchronization error")

	// ErrSubmit means a command buffer could not be reset, encoded or
	// submitted, or a fence signal could not be queued.
	ErrSubmit = errors.New("frameloop: submit error")

	// ErrPresent means the surface rejected a present request.
	ErrPresent = errors.New("frameloop: present error")
)

// ErrTimeout is returned when a fence wait exceeds the configured timeout.
// It is a synchronization error: errors.Is(ErrTimeout, ErrSync) holds.
var ErrTimeout = fmt.Errorf("%w: fence wait timed out", ErrSync)

// ErrCorruptFrame is returned by Recorder.End when the frame's command
// sequence was left open or out of order. The frame is never submitted.
var ErrCorruptFrame = fmt.Errorf("%w: corrupt frame", ErrSubmit)

// ErrOrdering is returned by FenceTracker.Advance when it is not preceded
// by a successful Wait for the same image in the current cycle.
var ErrOrdering = fmt.Errorf("%w: advance without wait", ErrSync)

// ErrStopped is returned by Driver.Tick once the driver has stopped,
// either after a fatal error or on request.
var ErrStopped = errors.New("frameloop: driver stopped")

// ErrTransient marks a collaborator error as retryable. Surfaces wrap it
// into present errors that may succeed on a second attempt; the driver
// retries those up to the limit set with WithPresentRetries.
var ErrTransient = errors.New("frameloop: transient error")

// FrameError describes a failure at a specific step of a frame.
type FrameError struct {
	// Kind is one of ErrDevice, ErrSync, ErrSubmit, ErrPresent
	// or a sentinel derived from them.
	Kind error

	// Op names the failing operation, e.g. "wait", "submit", "present".
	Op string

	// Image is the swap image index involved, or -1 if none.
	Image int

	// Err is the underlying collaborator error. May be nil.
	Err error
}

func (e *FrameError) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Image >= 0 {
		msg += fmt.Sprintf(" (image %d)", e.Image)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the underlying error to errors.Is/As.
func (e *FrameError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newFrameError(kind error, op string, image int, err error) *FrameError {
	return &FrameError{Kind: kind, Op: op, Image: image, Err: err}
}
