// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/frameloop"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// depthFormat is the format of the shared depth target.
const depthFormat = gputypes.TextureFormatDepth24PlusStencil8

// ErrReleased is returned by a Swapchain used after Release.
var ErrReleased = errors.New("native: swapchain released")

// SwapchainConfig configures an offscreen swapchain.
type SwapchainConfig struct {
	// Images is the buffering depth. Zero means 3.
	Images int

	Width, Height uint32

	// Format of the color images. Undefined means the device format.
	Format gputypes.TextureFormat

	// Depth adds a shared Depth24PlusStencil8 target.
	Depth bool

	// OnPresent, if set, is called with every presented image. It is the
	// hook a host uses to blit or read back the frame.
	OnPresent func(index int, target *Target) error
}

// Target is a texture and its view. It is the frameloop.RenderTarget of
// this backend.
type Target struct {
	Index   int
	texture hal.Texture
	view    hal.TextureView
}

// Texture returns the hal texture.
func (t *Target) Texture() hal.Texture { return t.texture }

// View returns the hal texture view.
func (t *Target) View() hal.TextureView { return t.view }

// Swapchain is a ring of offscreen color textures handed out round-robin.
type Swapchain struct {
	device hal.Device
	cfg    SwapchainConfig
	images []*Target
	depth  *Target

	mu         sync.Mutex
	current    int
	presents   uint64
	syncs      int
	fullscreen bool
	released   bool
}

// NewSwapchain creates the color images and, if requested, the depth target.
func NewSwapchain(dev *Device, cfg SwapchainConfig) (*Swapchain, error) {
	if cfg.Images <= 0 {
		cfg.Images = 3
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("native: swapchain size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Format == gputypes.TextureFormatUndefined {
		cfg.Format = dev.format
	}

	s := &Swapchain{device: dev.device, cfg: cfg}
	for i := range cfg.Images {
		t, err := s.createTarget(fmt.Sprintf("swap_image_%d", i), cfg.Format,
			gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageCopySrc)
		if err != nil {
			s.destroy()
			return nil, err
		}
		t.Index = i
		s.images = append(s.images, t)
	}
	if cfg.Depth {
		t, err := s.createTarget("swap_depth", depthFormat, gputypes.TextureUsageRenderAttachment)
		if err != nil {
			s.destroy()
			return nil, err
		}
		t.Index = -1
		s.depth = t
	}

	slogger().Debug("native: swapchain created",
		"images", cfg.Images, "width", cfg.Width, "height", cfg.Height, "depth", cfg.Depth)
	return s, nil
}

func (s *Swapchain) createTarget(label string, format gputypes.TextureFormat, usage gputypes.TextureUsage) (*Target, error) {
	tex, err := s.device.CreateTexture(&hal.TextureDescriptor{
		Label: label,
		Size: hal.Extent3D{
			Width:              s.cfg.Width,
			Height:             s.cfg.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create texture %s: %w", label, err)
	}
	view, err := s.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label: label + "_view",
	})
	if err != nil {
		s.device.DestroyTexture(tex)
		return nil, fmt.Errorf("native: create texture view %s: %w", label, err)
	}
	return &Target{texture: tex, view: view}, nil
}

// ImageCount returns the buffering depth.
func (s *Swapchain) ImageCount() int { return len(s.images) }

// Target returns the color target of image i.
func (s *Swapchain) Target(i int) frameloop.RenderTarget { return s.images[i] }

// DepthTarget returns the shared depth target, or nil without one.
func (s *Swapchain) DepthTarget() frameloop.RenderTarget {
	if s.depth == nil {
		return nil
	}
	return s.depth
}

// CurrentImageIndex returns the image the next frame renders into.
func (s *Swapchain) CurrentImageIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Present hands the current image to OnPresent and moves to the next one.
func (s *Swapchain) Present(syncInterval int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrReleased
	}
	if s.cfg.OnPresent != nil {
		if err := s.cfg.OnPresent(s.current, s.images[s.current]); err != nil {
			return fmt.Errorf("native: present image %d: %w", s.current, err)
		}
	}
	s.presents++
	s.syncs = syncInterval
	s.current = (s.current + 1) % len(s.images)
	return nil
}

// Presents returns the number of successful presents.
func (s *Swapchain) Presents() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presents
}

// SetFullscreen records the fullscreen mode. An offscreen swapchain has
// no display, so it only tracks the flag.
func (s *Swapchain) SetFullscreen(fullscreen bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrReleased
	}
	s.fullscreen = fullscreen
	return nil
}

// Fullscreen reports the fullscreen mode.
func (s *Swapchain) Fullscreen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fullscreen
}

// Release destroys all textures.
func (s *Swapchain) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	s.destroy()
}

func (s *Swapchain) destroy() {
	targets := s.images
	if s.depth != nil {
		targets = append(targets[:len(targets):len(targets)], s.depth)
	}
	for _, t := range targets {
		s.device.DestroyTextureView(t.view)
		s.device.DestroyTexture(t.texture)
	}
	s.images = nil
	s.depth = nil
}
