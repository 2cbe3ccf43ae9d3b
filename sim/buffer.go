// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sim

import (
	"errors"
	"fmt"

	"github.com/gogpu/frameloop"
)

// CommandBuffer is a simulated command allocator and list. It keeps the
// commands of the last encoded sequence.
type CommandBuffer struct {
	gpu       *GPU
	index     int
	cmds      []frameloop.Command
	closed    bool
	submitted uint64 // seq of the last execution queued
	completed uint64 // seq of the last execution retired
	released  bool
}

// Reset discards the recorded commands. Resetting while the GPU still
// executes the buffer is recorded as a violation and fails.
func (b *CommandBuffer) Reset() error {
	g := b.gpu
	g.mu.Lock()
	defer g.mu.Unlock()

	g.counters.Resets++
	g.traceLocked("reset %d", b.index)
	if n := g.faults.FailResetAt; n > 0 && g.counters.Resets == n {
		return fmt.Errorf("sim: reset %d failed", b.index)
	}
	if b.released {
		g.violateLocked("command buffer %d used after release", b.index)
		return errors.New("sim: command buffer released")
	}
	if b.submitted > b.completed {
		g.violateLocked("command buffer %d reset while in flight", b.index)
		return fmt.Errorf("sim: command buffer %d is in flight", b.index)
	}
	b.cmds = b.cmds[:0]
	b.closed = false
	return nil
}

// Encode copies the sequence and closes the buffer. Barriers are checked
// against the tracked state of their target image.
func (b *CommandBuffer) Encode(seq *frameloop.Sequence) error {
	g := b.gpu
	g.mu.Lock()
	defer g.mu.Unlock()

	g.counters.Encodes++
	if n := g.faults.FailEncodeAt; n > 0 && g.counters.Encodes == n {
		return fmt.Errorf("sim: close %d failed", b.index)
	}
	if b.closed {
		return fmt.Errorf("sim: command buffer %d already closed", b.index)
	}
	for _, c := range seq.Commands() {
		if c.Op != frameloop.OpBarrier {
			continue
		}
		img, ok := c.Target.(*Image)
		if !ok {
			g.violateLocked("command buffer %d: barrier on foreign target %T", b.index, c.Target)
			continue
		}
		if img.state != c.Before {
			g.violateLocked("image %d: barrier %v -> %v but image is %v", img.Index, c.Before, c.After, img.state)
		}
		img.state = c.After
	}
	b.cmds = append(b.cmds[:0], seq.Commands()...)
	b.closed = true
	return nil
}

// Commands returns a copy of the last encoded commands.
func (b *CommandBuffer) Commands() []frameloop.Command {
	b.gpu.mu.Lock()
	defer b.gpu.mu.Unlock()
	return append([]frameloop.Command(nil), b.cmds...)
}

// InFlight reports whether the GPU has not finished the last submission.
func (b *CommandBuffer) InFlight() bool {
	b.gpu.mu.Lock()
	defer b.gpu.mu.Unlock()
	return b.submitted > b.completed
}

// Release frees the buffer. Releasing it while in flight is a violation.
func (b *CommandBuffer) Release() {
	g := b.gpu
	g.mu.Lock()
	defer g.mu.Unlock()
	if b.released {
		return
	}
	if b.submitted > b.completed {
		g.violateLocked("command buffer %d released while in flight", b.index)
	}
	b.released = true
	g.counters.Releases++
	g.traceLocked("release buffer %d", b.index)
}
