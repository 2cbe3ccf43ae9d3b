// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sim

import (
	"fmt"
	"strings"

	"github.com/gogpu/frameloop"
)

// Order is the image selection policy of a simulated surface.
type Order uint8

const (
	// OrderFIFO hands out images round-robin, like a FIFO swap chain.
	OrderFIFO Order = iota

	// OrderMailbox hands out the lowest idle image that is not on
	// screen, falling back to round-robin when every image is busy.
	OrderMailbox
)

// String returns the order name.
func (o Order) String() string {
	switch o {
	case OrderFIFO:
		return "fifo"
	case OrderMailbox:
		return "mailbox"
	default:
		return fmt.Sprintf("Order(%d)", uint8(o))
	}
}

// ParseOrder parses "fifo" or "mailbox".
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fifo":
		return OrderFIFO, nil
	case "mailbox":
		return OrderMailbox, nil
	default:
		return 0, fmt.Errorf("sim: unknown order %q", s)
	}
}

// Image is a simulated render target. The depth target has Index -1.
type Image struct {
	Index int
	state frameloop.ResourceState
}

// Surface is a simulated swap chain.
type Surface struct {
	gpu        *GPU
	images     []*Image
	depth      *Image
	order      Order
	sequence   []int
	pos        int
	current    int
	displayed  int
	fullscreen bool
	released   bool
}

func newSurface(g *GPU, cfg Config) *Surface {
	s := &Surface{
		gpu:       g,
		images:    make([]*Image, cfg.Images),
		depth:     &Image{Index: -1},
		order:     cfg.Order,
		sequence:  append([]int(nil), cfg.Sequence...),
		displayed: -1,
	}
	for i := range s.images {
		s.images[i] = &Image{Index: i, state: frameloop.StatePresent}
	}
	if len(s.sequence) > 0 {
		s.current = s.sequence[0]
	}
	return s
}

// ImageCount returns the number of swap images.
func (s *Surface) ImageCount() int { return len(s.images) }

// Target returns image i's color target, an *Image.
func (s *Surface) Target(i int) frameloop.RenderTarget { return s.images[i] }

// DepthTarget returns the shared depth target.
func (s *Surface) DepthTarget() frameloop.RenderTarget { return s.depth }

// CurrentImageIndex returns the image the next frame renders into.
func (s *Surface) CurrentImageIndex() int {
	s.gpu.mu.Lock()
	defer s.gpu.mu.Unlock()
	return s.current
}

// Present displays the current image and selects the next one.
func (s *Surface) Present(syncInterval int) error {
	g := s.gpu
	g.mu.Lock()
	defer g.mu.Unlock()

	g.counters.Presents++
	n := g.counters.Presents
	g.traceLocked("present %d", s.current)

	if at := g.faults.FailPresentAt; at > 0 && n >= at {
		if k := g.faults.TransientPresents; k > 0 {
			if n < at+k {
				return fmt.Errorf("sim: present %d: surface busy: %w", s.current, frameloop.ErrTransient)
			}
		} else if n == at {
			return fmt.Errorf("sim: present %d: surface lost", s.current)
		}
	}
	if s.released {
		g.violateLocked("surface used after release")
	}
	if img := s.images[s.current]; img.state != frameloop.StatePresent {
		g.violateLocked("image %d presented in state %v", img.Index, img.state)
	}

	s.displayed = s.current
	s.current = s.nextLocked()
	return nil
}

func (s *Surface) nextLocked() int {
	if len(s.sequence) > 0 {
		s.pos = (s.pos + 1) % len(s.sequence)
		return s.sequence[s.pos]
	}
	n := len(s.images)
	if s.order == OrderMailbox {
		for i := range n {
			if i == s.displayed {
				continue
			}
			f := s.gpu.fences[i]
			if f.value >= f.signaled {
				return i
			}
		}
	}
	return (s.current + 1) % n
}

// SetFullscreen switches fullscreen mode.
func (s *Surface) SetFullscreen(fullscreen bool) error {
	g := s.gpu
	g.mu.Lock()
	defer g.mu.Unlock()
	if s.released {
		return fmt.Errorf("sim: surface released")
	}
	s.fullscreen = fullscreen
	g.traceLocked("fullscreen %t", fullscreen)
	return nil
}

// Fullscreen reports the fullscreen mode.
func (s *Surface) Fullscreen() bool {
	s.gpu.mu.Lock()
	defer s.gpu.mu.Unlock()
	return s.fullscreen
}

// Release destroys the surface.
func (s *Surface) Release() {
	g := s.gpu
	g.mu.Lock()
	defer g.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	g.counters.Releases++
	g.traceLocked("release surface")
}
