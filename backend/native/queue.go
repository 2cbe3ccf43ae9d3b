// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/frameloop"
	"github.com/gogpu/wgpu/hal"
)

// Queue adapts a hal queue. hal attaches fence signals to a submission,
// so Submit only batches command buffers and Signal flushes the batch
// together with the signal. Work still executes in submission order.
type Queue struct {
	queue hal.Queue

	mu      sync.Mutex
	pending []hal.CommandBuffer
	batches uint64
}

// NewQueue wraps dev's queue.
func NewQueue(dev *Device) *Queue { return &Queue{queue: dev.queue} }

// Submit adds an encoded *CommandBuffer to the next batch.
func (q *Queue) Submit(cb frameloop.CommandBuffer) error {
	c, ok := cb.(*CommandBuffer)
	if !ok {
		return fmt.Errorf("native: foreign command buffer %T", cb)
	}
	if c.cmd == nil {
		return errors.New("native: command buffer not encoded")
	}
	q.mu.Lock()
	q.pending = append(q.pending, c.cmd)
	q.mu.Unlock()
	return nil
}

// Signal submits the pending batch with a signal of fence to value.
func (q *Queue) Signal(fence frameloop.Fence, value uint64) error {
	f, ok := fence.(*Fence)
	if !ok {
		return fmt.Errorf("native: foreign fence %T", fence)
	}
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.batches++
	q.mu.Unlock()

	if err := q.queue.Submit(batch, f.fence, value); err != nil {
		return fmt.Errorf("native: submit %d command buffers: %w", len(batch), err)
	}
	return nil
}

// Batches returns how many submissions reached the hal queue.
func (q *Queue) Batches() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.batches
}
