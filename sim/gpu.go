// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package sim implements the frameloop collaborators on a simulated GPU.
//
// The simulated GPU consumes a FIFO of work items (command buffer
// executions and fence signals) on its own goroutine, retiring one item
// every Config.Latency. In manual mode nothing retires until Retire is
// called, which makes the GPU clock fully deterministic for tests.
//
// Besides mimicking a device, the GPU checks the rules the frame loop must
// obey and records every breach as a violation: resetting a command
// buffer the GPU still executes, submitting an unclosed buffer, barriers
// that do not match the image's current state, and releasing resources
// with work in flight.
//
// Usage:
//
//	gpu := sim.New(sim.Config{Images: 3, Latency: time.Millisecond})
//	defer gpu.Close()
//	drv, err := frameloop.NewDriver(gpu.Surface(), gpu.Queue(), gpu.Fences(), gpu.CommandBuffers(), scene)
package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/frameloop"
)

// DefaultImages is the buffering depth used when Config.Images is zero.
const DefaultImages = 3

// Config configures a simulated GPU.
type Config struct {
	// Images is the number of swap images. Zero means DefaultImages.
	Images int

	// Latency is the time the GPU spends on each work item.
	Latency time.Duration

	// Manual disables the GPU goroutine. Work retires only through Retire.
	Manual bool

	// Order selects how the surface picks the next image.
	Order Order

	// Sequence, if set, is the exact cycle of image indices the surface
	// returns. It overrides Order.
	Sequence []int
}

// Faults injects collaborator failures. Call numbers are 1-based and
// count calls of that kind since the GPU was created; zero disables.
type Faults struct {
	FailPresentAt int
	FailSubmitAt  int
	FailSignalAt  int
	FailResetAt   int
	FailEncodeAt  int

	// TransientPresents makes that many presents, starting at
	// FailPresentAt, fail with an error wrapping frameloop.ErrTransient.
	TransientPresents int

	// FailNotify makes every NotifyAt call fail.
	FailNotify bool

	// StallFences stops the GPU from retiring fence signals. Command
	// buffer executions still retire.
	StallFences bool
}

// Counters counts collaborator calls.
type Counters struct {
	Submits  int
	Signals  int
	Presents int
	Resets   int
	Encodes  int
	Notifies int
	Releases int
}

type workKind uint8

const (
	workExec workKind = iota
	workSignal
)

type work struct {
	kind   workKind
	seq    uint64
	buffer *CommandBuffer
	fence  *Fence
	value  uint64
}

// GPU is a simulated device with one queue, one fence and one command
// buffer per swap image, and a presentation surface.
type GPU struct {
	cfg Config

	mu         sync.Mutex
	pending    []work
	submitted  uint64
	retired    uint64
	counters   Counters
	faults     Faults
	violations []string
	trace      []string

	fences  []*Fence
	buffers []*CommandBuffer
	queue   *Queue
	surface *Surface

	wake      chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a simulated GPU and, unless cfg.Manual is set, starts its
// execution goroutine. Call Close to stop it.
func New(cfg Config) *GPU {
	if cfg.Images <= 0 {
		cfg.Images = DefaultImages
	}
	g := &GPU{
		cfg:  cfg,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	g.fences = make([]*Fence, cfg.Images)
	g.buffers = make([]*CommandBuffer, cfg.Images)
	for i := range cfg.Images {
		g.fences[i] = &Fence{gpu: g, index: i}
		g.buffers[i] = &CommandBuffer{gpu: g, index: i}
	}
	g.queue = &Queue{gpu: g}
	g.surface = newSurface(g, cfg)

	if !cfg.Manual {
		g.wg.Add(1)
		go g.run()
	}
	frameloop.Logger().Debug("sim: GPU created", "images", cfg.Images, "latency", cfg.Latency, "manual", cfg.Manual)
	return g
}

// Close stops the execution goroutine. Pending work is left unretired.
func (g *GPU) Close() {
	g.closeOnce.Do(func() {
		close(g.done)
		g.wg.Wait()
	})
}

// Images returns the number of swap images.
func (g *GPU) Images() int { return g.cfg.Images }

// Surface returns the presentation surface.
func (g *GPU) Surface() *Surface { return g.surface }

// Queue returns the command queue.
func (g *GPU) Queue() *Queue { return g.queue }

// Fence returns the fence of image i.
func (g *GPU) Fence(i int) *Fence { return g.fences[i] }

// CommandBuffer returns the command buffer of image i.
func (g *GPU) CommandBuffer(i int) *CommandBuffer { return g.buffers[i] }

// Fences returns the per-image fences as frameloop.Fence values.
func (g *GPU) Fences() []frameloop.Fence {
	out := make([]frameloop.Fence, len(g.fences))
	for i, f := range g.fences {
		out[i] = f
	}
	return out
}

// CommandBuffers returns the per-image command buffers as
// frameloop.CommandBuffer values.
func (g *GPU) CommandBuffers() []frameloop.CommandBuffer {
	out := make([]frameloop.CommandBuffer, len(g.buffers))
	for i, b := range g.buffers {
		out[i] = b
	}
	return out
}

// SetFaults replaces the injected faults.
func (g *GPU) SetFaults(f Faults) {
	g.mu.Lock()
	g.faults = f
	g.mu.Unlock()
	g.kick()
}

// Counters returns a snapshot of the call counters.
func (g *GPU) Counters() Counters {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counters
}

// Violations returns the recorded rule violations.
func (g *GPU) Violations() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.violations...)
}

// Trace returns the ordered log of submits, signals, presents, resets
// and releases.
func (g *GPU) Trace() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.trace...)
}

// Pending returns the number of work items not yet retired.
func (g *GPU) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// Retire retires up to n pending work items in FIFO order and returns how
// many were retired. It is the clock of a manual GPU; on an automatic GPU
// it runs ahead of the execution goroutine.
func (g *GPU) Retire(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	retired := 0
	for retired < n && g.retireLocked() {
		retired++
	}
	return retired
}

// RetireAll retires all pending work.
func (g *GPU) RetireAll() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	retired := 0
	for g.retireLocked() {
		retired++
	}
	return retired
}

// retireLocked retires the front work item. It reports false when the
// queue is empty or the front item is a stalled fence signal.
func (g *GPU) retireLocked() bool {
	if len(g.pending) == 0 {
		return false
	}
	w := g.pending[0]
	if w.kind == workSignal && g.faults.StallFences {
		return false
	}
	g.pending = g.pending[1:]
	g.retired = w.seq
	switch w.kind {
	case workExec:
		w.buffer.completed = w.seq
	case workSignal:
		w.fence.completeLocked(w.value)
	}
	return true
}

func (g *GPU) enqueueLocked(w work) uint64 {
	g.submitted++
	w.seq = g.submitted
	g.pending = append(g.pending, w)
	return w.seq
}

// kick wakes the execution goroutine.
func (g *GPU) kick() {
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

func (g *GPU) run() {
	defer g.wg.Done()
	for {
		g.mu.Lock()
		idle := len(g.pending) == 0 || (g.pending[0].kind == workSignal && g.faults.StallFences)
		g.mu.Unlock()

		if idle {
			select {
			case <-g.done:
				return
			case <-g.wake:
			}
			continue
		}

		if g.cfg.Latency > 0 {
			timer := time.NewTimer(g.cfg.Latency)
			select {
			case <-g.done:
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		g.mu.Lock()
		g.retireLocked()
		g.mu.Unlock()
	}
}

func (g *GPU) violateLocked(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	g.violations = append(g.violations, msg)
	frameloop.Logger().Warn("sim: violation", "msg", msg)
}

func (g *GPU) traceLocked(format string, args ...any) {
	g.trace = append(g.trace, fmt.Sprintf(format, args...))
}

// busyLocked reports whether any pending work references b or f.
func (g *GPU) busyLocked(b *CommandBuffer, f *Fence) bool {
	for _, w := range g.pending {
		if (b != nil && w.buffer == b) || (f != nil && w.fence == f) {
			return true
		}
	}
	return false
}
