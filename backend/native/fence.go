// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/wgpu/hal"
)

// fenceWaitSlice bounds each blocking hal wait so a released fence stops
// its watchers promptly.
const fenceWaitSlice = 100 * time.Millisecond

// Fence wraps a hal fence. hal fences are waited on, not polled, so the
// completed value is the highest value a Wait confirmed.
type Fence struct {
	device    hal.Device
	fence     hal.Fence
	completed atomic.Uint64

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewFence creates a fence on dev.
func NewFence(dev *Device) (*Fence, error) {
	f, err := dev.device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("native: create fence: %w", err)
	}
	return &Fence{device: dev.device, fence: f, done: make(chan struct{})}, nil
}

// CompletedValue returns the highest value confirmed complete.
func (f *Fence) CompletedValue() uint64 { return f.completed.Load() }

func (f *Fence) observe(v uint64) {
	for {
		cur := f.completed.Load()
		if v <= cur || f.completed.CompareAndSwap(cur, v) {
			return
		}
	}
}

// NotifyAt starts a watcher that waits on the hal fence and closes the
// returned channel once value is reached. A hal wait error also closes
// the channel; the caller sees CompletedValue still below value.
func (f *Fence) NotifyAt(value uint64) (<-chan struct{}, error) {
	select {
	case <-f.done:
		return nil, fmt.Errorf("native: fence released")
	default:
	}

	ch := make(chan struct{})
	if f.CompletedValue() >= value {
		close(ch)
		return ch, nil
	}

	f.wg.Add(1)
	go f.watch(value, ch)
	return ch, nil
}

func (f *Fence) watch(value uint64, ch chan struct{}) {
	defer f.wg.Done()
	defer close(ch)

	for {
		select {
		case <-f.done:
			return
		default:
		}
		ok, err := f.device.Wait(f.fence, value, fenceWaitSlice)
		if err != nil {
			slogger().Warn("native: fence wait failed", "value", value, "err", err)
			return
		}
		if ok {
			f.observe(value)
			return
		}
	}
}

// Release stops all watchers and destroys the hal fence.
func (f *Fence) Release() {
	f.once.Do(func() {
		close(f.done)
		f.wg.Wait()
		f.device.DestroyFence(f.fence)
	})
}
