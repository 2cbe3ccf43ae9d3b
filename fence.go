package frameloop

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// FenceTracker owns one Fence and one completion counter per swap image.
//
// For image i it tracks the last value the queue accepted a signal for
// (signaled) and the highest completed value read back from the GPU
// (observed). Recording into image i is safe once observed >= signaled.
//
// The per-image cycle is strictly Wait, Advance, Queue.Signal, MarkSignaled.
// Advance refuses to run without a preceding Wait, which is what keeps a
// command buffer from being reset while the GPU still executes it.
//
// FenceTracker is not safe for concurrent use; it belongs to the render
// goroutine.
type FenceTracker struct {
	fences   []Fence
	signaled []uint64
	next     []uint64
	observed []uint64
	waited   []bool
	advances []uint64
	timeout  time.Duration
}

// NewFenceTracker creates a tracker for len(fences) swap images. All
// counters start at zero, so the first Wait of every image returns
// immediately. Only WithWaitTimeout affects the tracker.
func NewFenceTracker(fences []Fence, opts ...Option) (*FenceTracker, error) {
	if len(fences) == 0 {
		return nil, errors.New("frameloop: fence tracker needs at least one fence")
	}
	for i, f := range fences {
		if f == nil {
			return nil, fmt.Errorf("frameloop: fence %d is nil", i)
		}
	}
	o := buildOptions(opts)
	n := len(fences)
	return &FenceTracker{
		fences:   append([]Fence(nil), fences...),
		signaled: make([]uint64, n),
		next:     make([]uint64, n),
		observed: make([]uint64, n),
		waited:   make([]bool, n),
		advances: make([]uint64, n),
		timeout:  o.waitTimeout,
	}, nil
}

// Len returns the number of tracked images.
func (t *FenceTracker) Len() int { return len(t.fences) }

// Fence returns the fence of image i.
func (t *FenceTracker) Fence(i int) Fence { return t.fences[i] }

// Signaled returns the last value signaled for image i.
func (t *FenceTracker) Signaled(i int) uint64 { return t.signaled[i] }

// Observed returns the highest completed value observed for image i.
func (t *FenceTracker) Observed(i int) uint64 { return t.observed[i] }

// Advances returns how many times Advance succeeded for image i.
func (t *FenceTracker) Advances(i int) uint64 { return t.advances[i] }

func (t *FenceTracker) checkIndex(op string, i int) error {
	if i < 0 || i >= len(t.fences) {
		return newFrameError(ErrDevice, op, i, fmt.Errorf("index out of range [0,%d)", len(t.fences)))
	}
	return nil
}

// observe reads the fence's completed value and enforces monotonicity.
func (t *FenceTracker) observe(i int) error {
	v := t.fences[i].CompletedValue()
	if v < t.observed[i] {
		return newFrameError(ErrSync, "wait", i,
			fmt.Errorf("completed value went backwards: %d < %d", v, t.observed[i]))
	}
	t.observed[i] = v
	return nil
}

// Wait blocks until the GPU has completed the last value signaled for
// image i. It returns immediately if that already happened.
//
// Otherwise it registers a completion notification with the fence and
// blocks on it. The wait ends early when ctx is done or the configured
// timeout expires (ErrTimeout). A failed registration is an ErrSync: the
// caller cannot know whether the image is idle and must stop rendering.
func (t *FenceTracker) Wait(ctx context.Context, i int) error {
	if err := t.checkIndex("wait", i); err != nil {
		return err
	}
	target := t.signaled[i]
	if err := t.observe(i); err != nil {
		return err
	}
	if t.observed[i] >= target {
		t.waited[i] = true
		return nil
	}

	Logger().Debug("frameloop: waiting for fence",
		"image", i, "value", target, "completed", t.observed[i])

	done, err := t.fences[i].NotifyAt(target)
	if err != nil {
		return newFrameError(ErrSync, "wait", i, fmt.Errorf("register completion event at %d: %w", target, err))
	}

	var expired <-chan time.Time
	if t.timeout > 0 {
		timer := time.NewTimer(t.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-done:
	case <-expired:
		return newFrameError(ErrTimeout, "wait", i,
			fmt.Errorf("value %d not reached within %v", target, t.timeout))
	case <-ctx.Done():
		return newFrameError(ErrSync, "wait", i, ctx.Err())
	}

	if err := t.observe(i); err != nil {
		return err
	}
	if t.observed[i] < target {
		return newFrameError(ErrSync, "wait", i,
			fmt.Errorf("notified at %d before reaching %d", t.observed[i], target))
	}
	t.waited[i] = true
	return nil
}

// Advance returns the next fence value for image i, to be signaled after
// the frame's submission. It must be called exactly once per frame, after
// Wait(i) and before the next submission that reuses image i; otherwise
// it returns ErrOrdering and changes nothing.
func (t *FenceTracker) Advance(i int) (uint64, error) {
	if err := t.checkIndex("advance", i); err != nil {
		return 0, err
	}
	if !t.waited[i] {
		return 0, newFrameError(ErrOrdering, "advance", i, nil)
	}
	t.waited[i] = false
	if t.next[i] < t.signaled[i] {
		t.next[i] = t.signaled[i]
	}
	t.next[i]++
	t.advances[i]++
	return t.next[i], nil
}

// MarkSignaled records that the queue accepted a signal of value for
// image i. Only marked values are waited on, so a frame whose signal
// failed never makes a later Wait block forever.
func (t *FenceTracker) MarkSignaled(i int, value uint64) {
	if value > t.signaled[i] {
		t.signaled[i] = value
	}
}
