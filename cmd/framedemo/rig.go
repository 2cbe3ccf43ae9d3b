package main

import (
	"fmt"

	"github.com/gogpu/frameloop"
	"github.com/gogpu/frameloop/backend/native"
	"github.com/gogpu/frameloop/internal/config"
	"github.com/gogpu/frameloop/sim"
)

// rig is a backend's set of frame loop collaborators.
type rig struct {
	surface  frameloop.Surface
	queue    frameloop.Queue
	fences   []frameloop.Fence
	buffers  []frameloop.CommandBuffer
	scene    frameloop.Scene
	pipeline frameloop.PipelineState

	// release frees the collaborators when no driver took ownership.
	release func()
	// close frees everything the driver does not own.
	close      func()
	violations func() []string
}

func newRig(cfg config.Config) (*rig, error) {
	switch cfg.Backend {
	case config.BackendSim:
		return newSimRig(cfg)
	case config.BackendVulkan:
		return newNativeRig(cfg, native.BackendVulkan)
	case config.BackendNoop:
		return newNativeRig(cfg, native.BackendNoop)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func newSimRig(cfg config.Config) (*rig, error) {
	order, err := sim.ParseOrder(cfg.Sim.Order)
	if err != nil {
		return nil, err
	}
	gpu := sim.New(sim.Config{
		Images:  cfg.Frames.BufferCount,
		Latency: cfg.Sim.Latency.Std(),
		Order:   order,
	})
	return &rig{
		surface: gpu.Surface(),
		queue:   gpu.Queue(),
		fences:  gpu.Fences(),
		buffers: gpu.CommandBuffers(),
		scene: &trianglePair{vertices: frameloop.BufferView{
			Buffer: "triangle_pair",
			Size:   uint64(len(triangleVertices)) * 20,
		}},
		release:    func() {},
		close:      gpu.Close,
		violations: gpu.Violations,
	}, nil
}

func newNativeRig(cfg config.Config, backend string) (r *rig, err error) {
	dev, err := native.Open(backend)
	if err != nil {
		return nil, err
	}
	var cleanup []func()
	defer func() {
		if err != nil {
			for i := len(cleanup) - 1; i >= 0; i-- {
				cleanup[i]()
			}
		}
	}()
	cleanup = append(cleanup, dev.Close)

	pipeline, err := native.NewPipeline(dev, native.PipelineConfig{Depth: true})
	if err != nil {
		return nil, err
	}
	cleanup = append(cleanup, pipeline.Release)

	vb, err := native.NewVertexBuffer(dev, triangleVertices)
	if err != nil {
		return nil, err
	}
	cleanup = append(cleanup, vb.Release)

	res, err := native.NewFrameResources(dev, native.SwapchainConfig{
		Images: cfg.Frames.BufferCount,
		Width:  cfg.Window.Width,
		Height: cfg.Window.Height,
		Depth:  true,
	})
	if err != nil {
		return nil, err
	}

	frameloop.Logger().Info("framedemo: device opened", "adapter", dev.Name(), "format", dev.Format())
	return &rig{
		surface:  res.Swapchain,
		queue:    res.Queue,
		fences:   res.Fences(),
		buffers:  res.CommandBuffers(),
		scene:    &trianglePair{vertices: vb.View()},
		pipeline: pipeline,
		release:  res.Release,
		close: func() {
			for i := len(cleanup) - 1; i >= 0; i-- {
				cleanup[i]()
			}
		},
		violations: func() []string { return nil },
	}, nil
}
