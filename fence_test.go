package frameloop

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTracker(t *testing.T, n int, opts ...Option) (*FenceTracker, []*fakeFence) {
	t.Helper()
	fences, ff, _, _ := newFakes(n)
	tr, err := NewFenceTracker(fences, opts...)
	if err != nil {
		t.Fatalf("NewFenceTracker: %v", err)
	}
	return tr, ff
}

// cycle runs Wait, Advance and MarkSignaled for image i and returns the
// signaled value.
func cycle(t *testing.T, tr *FenceTracker, i int) uint64 {
	t.Helper()
	if err := tr.Wait(context.Background(), i); err != nil {
		t.Fatalf("Wait(%d): %v", i, err)
	}
	v, err := tr.Advance(i)
	if err != nil {
		t.Fatalf("Advance(%d): %v", i, err)
	}
	tr.MarkSignaled(i, v)
	return v
}

func TestNewFenceTrackerErrors(t *testing.T) {
	if _, err := NewFenceTracker(nil); err == nil {
		t.Error("NewFenceTracker(nil) should fail")
	}
	if _, err := NewFenceTracker([]Fence{&fakeFence{}, nil}); err == nil {
		t.Error("NewFenceTracker with a nil fence should fail")
	}
}

func TestFenceTrackerInitialState(t *testing.T) {
	tr, ff := newTracker(t, 3)
	for i := range 3 {
		if tr.Signaled(i) != 0 || tr.Observed(i) != 0 || tr.Advances(i) != 0 {
			t.Errorf("image %d: counters not zero", i)
		}
		if err := tr.Wait(context.Background(), i); err != nil {
			t.Errorf("first Wait(%d): %v", i, err)
		}
		if ff[i].notifies != 0 {
			t.Errorf("first Wait(%d) registered an event", i)
		}
	}
}

func TestFenceTrackerAdvanceIncrements(t *testing.T) {
	tr, ff := newTracker(t, 2)
	for want := uint64(1); want <= 4; want++ {
		if got := cycle(t, tr, 0); got != want {
			t.Fatalf("Advance = %d, want %d", got, want)
		}
		ff[0].set(want)
	}
	if tr.Advances(0) != 4 || tr.Advances(1) != 0 {
		t.Errorf("Advances = %d, %d; want 4, 0", tr.Advances(0), tr.Advances(1))
	}
	if tr.Signaled(0) != 4 {
		t.Errorf("Signaled(0) = %d, want 4", tr.Signaled(0))
	}
}

func TestFenceTrackerAdvanceWithoutWait(t *testing.T) {
	tr, _ := newTracker(t, 2)

	if _, err := tr.Advance(0); !errors.Is(err, ErrOrdering) {
		t.Fatalf("Advance without Wait = %v, want ErrOrdering", err)
	}
	cycle(t, tr, 0)
	if _, err := tr.Advance(0); !errors.Is(err, ErrOrdering) {
		t.Fatalf("second Advance = %v, want ErrOrdering", err)
	}
	if tr.Advances(0) != 1 {
		t.Errorf("Advances(0) = %d, want 1", tr.Advances(0))
	}
}

func TestFenceTrackerIndexRange(t *testing.T) {
	tr, _ := newTracker(t, 2)
	for _, i := range []int{-1, 2} {
		if err := tr.Wait(context.Background(), i); !errors.Is(err, ErrDevice) {
			t.Errorf("Wait(%d) = %v, want ErrDevice", i, err)
		}
		if _, err := tr.Advance(i); !errors.Is(err, ErrDevice) {
			t.Errorf("Advance(%d) = %v, want ErrDevice", i, err)
		}
	}
}

func TestFenceTrackerWaitBlocks(t *testing.T) {
	tr, ff := newTracker(t, 1)
	cycle(t, tr, 0)

	done := make(chan error, 1)
	go func() { done <- tr.Wait(context.Background(), 0) }()

	// Wait must not return while the GPU is behind.
	for ff[0].pending() == 0 {
		time.Sleep(time.Millisecond)
	}
	select {
	case err := <-done:
		t.Fatalf("Wait returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	ff[0].set(1)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after the fence completed")
	}
	if tr.Observed(0) != 1 {
		t.Errorf("Observed(0) = %d, want 1", tr.Observed(0))
	}
}

func TestFenceTrackerWaitAlreadyComplete(t *testing.T) {
	tr, ff := newTracker(t, 1)
	cycle(t, tr, 0)
	ff[0].set(1)

	if err := tr.Wait(context.Background(), 0); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if ff[0].notifies != 0 {
		t.Errorf("Wait registered %d events on a completed fence", ff[0].notifies)
	}
}

func TestFenceTrackerTimeout(t *testing.T) {
	tr, _ := newTracker(t, 1, WithWaitTimeout(10*time.Millisecond))
	cycle(t, tr, 0)

	err := tr.Wait(context.Background(), 0)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Wait = %v, want ErrTimeout", err)
	}
	if !errors.Is(err, ErrSync) {
		t.Error("timeout is not a sync error")
	}
	if _, err := tr.Advance(0); !errors.Is(err, ErrOrdering) {
		t.Errorf("Advance after a failed Wait = %v, want ErrOrdering", err)
	}
}

func TestFenceTrackerContextCancel(t *testing.T) {
	tr, _ := newTracker(t, 1)
	cycle(t, tr, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := tr.Wait(ctx, 0)
	if !errors.Is(err, context.Canceled) || !errors.Is(err, ErrSync) {
		t.Fatalf("Wait = %v, want canceled sync error", err)
	}
}

func TestFenceTrackerNotifyFailure(t *testing.T) {
	tr, ff := newTracker(t, 1)
	cycle(t, tr, 0)
	ff[0].notifyErr = errBoom

	err := tr.Wait(context.Background(), 0)
	if !errors.Is(err, ErrSync) || !errors.Is(err, errBoom) {
		t.Fatalf("Wait = %v, want sync error wrapping cause", err)
	}
}

func TestFenceTrackerEarlyNotification(t *testing.T) {
	tr, ff := newTracker(t, 1)
	cycle(t, tr, 0)

	done := make(chan error, 1)
	go func() { done <- tr.Wait(context.Background(), 0) }()
	for ff[0].pending() == 0 {
		time.Sleep(time.Millisecond)
	}
	ff[0].notifyEarly()

	if err := <-done; !errors.Is(err, ErrSync) {
		t.Fatalf("Wait = %v, want ErrSync", err)
	}
}

func TestFenceTrackerMonotonic(t *testing.T) {
	tr, ff := newTracker(t, 1)
	cycle(t, tr, 0)
	ff[0].set(1)
	cycle(t, tr, 0)
	ff[0].set(0)

	if err := tr.Wait(context.Background(), 0); !errors.Is(err, ErrSync) {
		t.Fatalf("Wait after the fence went backwards = %v, want ErrSync", err)
	}
}

func TestFenceTrackerMarkSignaledIgnoresOlder(t *testing.T) {
	tr, _ := newTracker(t, 1)
	tr.MarkSignaled(0, 5)
	tr.MarkSignaled(0, 3)
	if tr.Signaled(0) != 5 {
		t.Errorf("Signaled(0) = %d, want 5", tr.Signaled(0))
	}
}

func TestFenceTrackerFailedSignalDoesNotBlock(t *testing.T) {
	tr, ff := newTracker(t, 1)

	if err := tr.Wait(context.Background(), 0); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if _, err := tr.Advance(0); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	// Signal failed: MarkSignaled is never called, so the drain returns.
	if err := tr.Wait(context.Background(), 0); err != nil {
		t.Fatalf("drain Wait: %v", err)
	}
	if ff[0].notifies != 0 {
		t.Error("drain waited on a value that was never signaled")
	}
}
