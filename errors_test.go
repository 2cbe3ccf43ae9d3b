package frameloop

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"timeout is sync", ErrTimeout, ErrSync},
		{"ordering is sync", ErrOrdering, ErrSync},
		{"corrupt frame is submit", ErrCorruptFrame, ErrSubmit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.kind) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.kind)
			}
		})
	}
	if errors.Is(ErrTimeout, ErrSubmit) {
		t.Error("ErrTimeout must not be a submit error")
	}
}

func TestFrameError(t *testing.T) {
	err := error(newFrameError(ErrPresent, "present", 2, errBoom))

	if !errors.Is(err, ErrPresent) {
		t.Error("FrameError does not match its kind")
	}
	if !errors.Is(err, errBoom) {
		t.Error("FrameError does not match its cause")
	}
	var fe *FrameError
	if !errors.As(err, &fe) {
		t.Fatal("errors.As(*FrameError) = false")
	}
	if fe.Image != 2 || fe.Op != "present" {
		t.Errorf("FrameError = %+v", fe)
	}
	want := "frameloop: present error: present (image 2): boom"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestFrameErrorWithoutCause(t *testing.T) {
	err := newFrameError(ErrOrdering, "advance", -1, nil)
	if got := err.Error(); strings.Contains(got, "image") {
		t.Errorf("Error() = %q mentions an image", got)
	}
	if !errors.Is(err, ErrSync) {
		t.Error("ordering FrameError is not a sync error")
	}
}

func TestWrapKeepsFrameError(t *testing.T) {
	inner := newFrameError(ErrSync, "wait", 0, context.Canceled)
	if got := wrap(ErrSubmit, "submit", 0, inner); got != error(inner) {
		t.Errorf("wrap replaced an existing FrameError: %v", got)
	}
	got := wrap(ErrSubmit, "submit", 1, errBoom)
	if !errors.Is(got, ErrSubmit) || !errors.Is(got, errBoom) {
		t.Errorf("wrap(...) = %v", got)
	}
}
