// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"github.com/gogpu/frameloop"
)

// FrameResources is everything a frameloop.Driver needs from one device:
// a swapchain, a queue and one fence and command buffer per image.
type FrameResources struct {
	Swapchain *Swapchain
	Queue     *Queue

	fences  []*Fence
	buffers []*CommandBuffer
}

// NewFrameResources creates the swapchain described by cfg and the
// per-image fences and command buffers.
func NewFrameResources(dev *Device, cfg SwapchainConfig) (*FrameResources, error) {
	sc, err := NewSwapchain(dev, cfg)
	if err != nil {
		return nil, err
	}
	r := &FrameResources{Swapchain: sc, Queue: NewQueue(dev)}
	for i := range sc.ImageCount() {
		f, err := NewFence(dev)
		if err != nil {
			r.Release()
			return nil, err
		}
		r.fences = append(r.fences, f)
		r.buffers = append(r.buffers, NewCommandBuffer(dev, i))
	}
	return r, nil
}

// Fences returns the per-image fences.
func (r *FrameResources) Fences() []frameloop.Fence {
	out := make([]frameloop.Fence, len(r.fences))
	for i, f := range r.fences {
		out[i] = f
	}
	return out
}

// CommandBuffers returns the per-image command buffers.
func (r *FrameResources) CommandBuffers() []frameloop.CommandBuffer {
	out := make([]frameloop.CommandBuffer, len(r.buffers))
	for i, b := range r.buffers {
		out[i] = b
	}
	return out
}

// Release frees everything. Only call it when no driver owns the
// resources; a driver releases them itself on Shutdown.
func (r *FrameResources) Release() {
	for _, b := range r.buffers {
		b.Release()
	}
	for _, f := range r.fences {
		f.Release()
	}
	r.Swapchain.Release()
}
