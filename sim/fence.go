// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sim

import (
	"errors"
	"fmt"
)

// Fence is a simulated GPU timeline.
type Fence struct {
	gpu      *GPU
	index    int
	value    uint64
	signaled uint64
	waiters  []waiter
	released bool
}

type waiter struct {
	value uint64
	ch    chan struct{}
}

// CompletedValue returns the highest value the GPU has retired.
func (f *Fence) CompletedValue() uint64 {
	f.gpu.mu.Lock()
	defer f.gpu.mu.Unlock()
	if f.released {
		f.gpu.violateLocked("fence %d used after release", f.index)
	}
	return f.value
}

// NotifyAt returns a channel closed once the fence reaches value.
func (f *Fence) NotifyAt(value uint64) (<-chan struct{}, error) {
	g := f.gpu
	g.mu.Lock()
	defer g.mu.Unlock()

	g.counters.Notifies++
	if g.faults.FailNotify {
		return nil, fmt.Errorf("sim: fence %d: cannot register event at %d", f.index, value)
	}
	if f.released {
		g.violateLocked("fence %d used after release", f.index)
		return nil, errors.New("sim: fence released")
	}

	ch := make(chan struct{})
	if f.value >= value {
		close(ch)
		return ch, nil
	}
	f.waiters = append(f.waiters, waiter{value: value, ch: ch})
	return ch, nil
}

// Release destroys the fence. Releasing it with a signal still queued is
// a violation.
func (f *Fence) Release() {
	g := f.gpu
	g.mu.Lock()
	defer g.mu.Unlock()
	if f.released {
		return
	}
	if g.busyLocked(nil, f) {
		g.violateLocked("fence %d released with a pending signal", f.index)
	}
	f.released = true
	g.counters.Releases++
	g.traceLocked("release fence %d", f.index)
}

// Released reports whether Release was called.
func (f *Fence) Released() bool {
	f.gpu.mu.Lock()
	defer f.gpu.mu.Unlock()
	return f.released
}

// Signaled returns the last value queued for the fence.
func (f *Fence) Signaled() uint64 {
	f.gpu.mu.Lock()
	defer f.gpu.mu.Unlock()
	return f.signaled
}

func (f *Fence) completeLocked(v uint64) {
	if v <= f.value {
		return
	}
	f.value = v
	kept := f.waiters[:0]
	for _, w := range f.waiters {
		if w.value <= v {
			close(w.ch)
			continue
		}
		kept = append(kept, w)
	}
	f.waiters = kept
}
