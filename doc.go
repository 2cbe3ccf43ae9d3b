// Package frameloop drives the per-frame lifecycle of a low-level GPU API:
// wait for a swap image's previous GPU work to retire, re-record its
// command buffer, submit it, signal a fence and present.
//
// # Overview
//
// Explicit graphics APIs (D3D12, Vulkan, Metal, and the wgpu HAL on top of
// them) leave CPU/GPU synchronization to the application. With N swap
// images in flight the CPU may run up to N frames ahead of the GPU, and
// every per-image resource (command allocator, command buffer, render
// target) must not be touched until the GPU has finished the work that
// last used it. Getting the order wrong corrupts resources or deadlocks.
//
// frameloop packages that protocol into three components:
//
//   - FenceTracker: one Fence and one monotonically increasing counter per
//     swap image. Wait blocks until the image's previous work retired,
//     Advance hands out the next value to signal.
//   - Recorder: one CommandBuffer per swap image. Begin resets it, RecordFrame
//     appends the barrier-bracketed frame, End closes it for submission.
//   - Driver: the state machine tying them together, one Tick per frame.
//
// The graphics API itself is reached through small interfaces (Surface,
// Queue, Fence, CommandBuffer). Package sim implements them on a simulated
// GPU with a mock clock; package backend/native implements them on
// gogpu/wgpu's HAL.
//
// # Quick Start
//
//	gpu := sim.New(sim.Config{Images: 3, Latency: time.Millisecond})
//	defer gpu.Close()
//
//	drv, err := frameloop.NewDriver(gpu.Surface(), gpu.Queue(), gpu.Fences(), gpu.CommandBuffers(), scene,
//	    frameloop.WithWaitTimeout(time.Second),
//	)
//	if err != nil {
//	    return err
//	}
//	return drv.Run(ctx, pump)
//
// # Frame Lifecycle
//
//	Idle ──► Waiting ──► Recording ──► Submitted ──► Presenting ──► Idle
//	  │          │            │             │              │
//	  └──────────┴────────────┴─────────────┴──────────────┴──► Stopped
//
// Any failure moves the driver to Stopped. A stopped driver issues no
// further GPU work; Run keeps pumping host events until the host quits,
// then Shutdown drains every image before releasing resources.
//
// # Thread Safety
//
// A Driver, its Recorder and its FenceTracker belong to a single render
// goroutine. RequestStop and Stats are safe to call from any goroutine.
package frameloop
