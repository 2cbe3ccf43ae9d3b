// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package native implements the frameloop collaborators on gogpu/wgpu's
// hardware abstraction layer (hal).
//
// A Device is opened on a hal backend (Vulkan, or the noop backend for
// headless runs) or borrowed from a host application through
// gpucontext.DeviceProvider. From it the package builds:
//
//   - Swapchain: an offscreen ring of color textures plus a shared depth
//     texture, handed out round-robin
//   - Fence: a hal fence with asynchronous completion notification
//   - Queue: batches command buffers and flushes them with the next
//     fence signal
//   - CommandBuffer: translates a frameloop.Sequence into a hal render
//     pass bracketed by texture transitions
//   - Pipeline: a vertex-colored triangle pipeline compiled from WGSL
//
// Setup:
//
//	dev, err := native.Open("vulkan")
//	if err != nil { ... }
//	defer dev.Close()
//
//	res, err := native.NewFrameResources(dev, native.SwapchainConfig{Images: 3, Width: 800, Height: 600, Depth: true})
//	drv, err := frameloop.NewDriver(res.Swapchain, res.Queue, res.Fences(), res.CommandBuffers(), scene)
package native

import (
	"log/slog"

	"github.com/gogpu/frameloop"
)

func slogger() *slog.Logger { return frameloop.Logger() }
