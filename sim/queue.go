// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sim

import (
	"fmt"

	"github.com/gogpu/frameloop"
)

// Queue is the simulated command queue.
type Queue struct {
	gpu      *GPU
	released bool
}

// Submit queues cb for execution. cb must be a closed *CommandBuffer of
// the same GPU.
func (q *Queue) Submit(cb frameloop.CommandBuffer) error {
	b, ok := cb.(*CommandBuffer)
	if !ok || b.gpu != q.gpu {
		return fmt.Errorf("sim: foreign command buffer %T", cb)
	}
	g := q.gpu
	g.mu.Lock()
	g.counters.Submits++
	g.traceLocked("submit %d", b.index)
	if n := g.faults.FailSubmitAt; n > 0 && g.counters.Submits == n {
		g.mu.Unlock()
		return fmt.Errorf("sim: submit %d rejected", b.index)
	}
	if !b.closed {
		g.violateLocked("command buffer %d submitted while open", b.index)
		g.mu.Unlock()
		return fmt.Errorf("sim: command buffer %d is not closed", b.index)
	}
	b.submitted = g.enqueueLocked(work{kind: workExec, buffer: b})
	g.mu.Unlock()
	g.kick()
	return nil
}

// Signal queues a fence signal behind all submitted work.
func (q *Queue) Signal(fence frameloop.Fence, value uint64) error {
	f, ok := fence.(*Fence)
	if !ok || f.gpu != q.gpu {
		return fmt.Errorf("sim: foreign fence %T", fence)
	}
	g := q.gpu
	g.mu.Lock()
	g.counters.Signals++
	g.traceLocked("signal %d=%d", f.index, value)
	if n := g.faults.FailSignalAt; n > 0 && g.counters.Signals == n {
		g.mu.Unlock()
		return fmt.Errorf("sim: signal of fence %d rejected", f.index)
	}
	if value <= f.signaled {
		g.violateLocked("fence %d signaled %d after %d", f.index, value, f.signaled)
	}
	f.signaled = value
	g.enqueueLocked(work{kind: workSignal, fence: f, value: value})
	g.mu.Unlock()
	g.kick()
	return nil
}

// Release destroys the queue.
func (q *Queue) Release() {
	g := q.gpu
	g.mu.Lock()
	defer g.mu.Unlock()
	if q.released {
		return
	}
	q.released = true
	g.counters.Releases++
	g.traceLocked("release queue")
}
