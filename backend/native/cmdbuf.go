// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"errors"
	"fmt"

	"github.com/gogpu/frameloop"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// CommandBuffer records one swap image's frame. Every Encode creates a
// fresh hal encoder; Reset frees the previously encoded hal buffer.
type CommandBuffer struct {
	device hal.Device
	label  string
	cmd    hal.CommandBuffer
}

// NewCommandBuffer creates the command buffer of swap image index.
func NewCommandBuffer(dev *Device, index int) *CommandBuffer {
	return &CommandBuffer{device: dev.device, label: fmt.Sprintf("frame_%d", index)}
}

// Reset frees the last encoded hal buffer. The GPU must be done with it.
func (b *CommandBuffer) Reset() error {
	if b.cmd != nil {
		b.device.FreeCommandBuffer(b.cmd)
		b.cmd = nil
	}
	return nil
}

// Encode translates seq into a hal command buffer: barriers become
// texture transitions, and everything between them one render pass that
// clears the bound targets.
func (b *CommandBuffer) Encode(seq *frameloop.Sequence) error {
	if b.cmd != nil {
		return errors.New("native: command buffer encoded twice without reset")
	}
	encoder, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: b.label + "_encoder",
	})
	if err != nil {
		return fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(b.label); err != nil {
		encoder.DiscardEncoding()
		return fmt.Errorf("native: begin encoding: %w", err)
	}

	t := &translator{encoder: encoder, label: b.label}
	for _, c := range seq.Commands() {
		if err := t.command(c); err != nil {
			t.abort()
			encoder.DiscardEncoding()
			return err
		}
	}
	if t.pass != nil {
		t.abort()
		encoder.DiscardEncoding()
		return errors.New("native: render pass left open")
	}

	cmd, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("native: end encoding: %w", err)
	}
	b.cmd = cmd
	return nil
}

// Release frees the encoded hal buffer.
func (b *CommandBuffer) Release() { _ = b.Reset() }

// translator carries the render pass state of one Encode call.
type translator struct {
	encoder hal.CommandEncoder
	label   string

	pipeline hal.RenderPipeline
	color    *Target
	depth    *Target
	clear    gputypes.Color
	clearZ   float32
	pass     hal.RenderPassEncoder
}

func textureUsage(s frameloop.ResourceState) gputypes.TextureUsage {
	if s == frameloop.StateRenderTarget {
		return gputypes.TextureUsageRenderAttachment
	}
	return gputypes.TextureUsageCopySrc
}

func (t *translator) command(c frameloop.Command) error {
	switch c.Op {
	case frameloop.OpSetPipeline:
		p, err := asPipeline(c.Pipeline)
		if err != nil {
			return err
		}
		t.pipeline = p
		if t.pass != nil && p != nil {
			t.pass.SetPipeline(p)
		}

	case frameloop.OpBarrier:
		target, ok := c.Target.(*Target)
		if !ok {
			return fmt.Errorf("native: barrier on foreign target %T", c.Target)
		}
		// The closing barrier ends the pass before transitioning.
		t.end()
		t.encoder.TransitionTextures([]hal.TextureBarrier{{
			Texture: target.texture,
			Usage: hal.TextureUsageTransition{
				OldUsage: textureUsage(c.Before),
				NewUsage: textureUsage(c.After),
			},
		}})

	case frameloop.OpSetRenderTargets:
		color, ok := c.Target.(*Target)
		if !ok {
			return fmt.Errorf("native: foreign color target %T", c.Target)
		}
		t.color = color
		t.depth = nil
		if c.Depth != nil {
			depth, ok := c.Depth.(*Target)
			if !ok {
				return fmt.Errorf("native: foreign depth target %T", c.Depth)
			}
			t.depth = depth
		}

	case frameloop.OpClearColor:
		t.clear = gputypes.Color{R: c.Color.R, G: c.Color.G, B: c.Color.B, A: c.Color.A}

	case frameloop.OpClearDepth:
		t.clearZ = c.DepthValue

	case frameloop.OpSetVertexBuffer:
		buf, err := asBuffer(c.Buffer.Buffer)
		if err != nil {
			return err
		}
		t.begin().SetVertexBuffer(c.Slot, buf, c.Buffer.Offset)

	case frameloop.OpSetIndexBuffer:
		buf, err := asBuffer(c.Buffer.Buffer)
		if err != nil {
			return err
		}
		format := gputypes.IndexFormatUint16
		if c.Buffer.Format == frameloop.IndexUint32 {
			format = gputypes.IndexFormatUint32
		}
		t.begin().SetIndexBuffer(buf, format, c.Buffer.Offset)

	case frameloop.OpSetBindGroup:
		group, ok := c.Group.(hal.BindGroup)
		if !ok {
			return fmt.Errorf("native: bind group is %T, want hal.BindGroup", c.Group)
		}
		t.begin().SetBindGroup(c.Slot, group, nil)

	case frameloop.OpDraw:
		t.begin().Draw(c.Count, c.Instances, c.First, c.FirstInstance)

	case frameloop.OpDrawIndexed:
		t.begin().DrawIndexed(c.Count, c.Instances, c.First, c.BaseVertex, c.FirstInstance)

	default:
		return fmt.Errorf("native: unsupported command %v", c.Op)
	}
	return nil
}

// begin opens the render pass on first use. A frame without draws still
// gets a pass when its closing barrier arrives, so the clears happen.
func (t *translator) begin() hal.RenderPassEncoder {
	if t.pass != nil {
		return t.pass
	}
	desc := &hal.RenderPassDescriptor{
		Label: t.label + "_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       t.color.view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: t.clear,
		}},
	}
	if t.depth != nil {
		desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:              t.depth.view,
			DepthLoadOp:       gputypes.LoadOpClear,
			DepthStoreOp:      gputypes.StoreOpDiscard,
			DepthClearValue:   t.clearZ,
			StencilLoadOp:     gputypes.LoadOpClear,
			StencilStoreOp:    gputypes.StoreOpDiscard,
			StencilClearValue: 0,
		}
	}
	t.pass = t.encoder.BeginRenderPass(desc)
	if t.pipeline != nil {
		t.pass.SetPipeline(t.pipeline)
	}
	return t.pass
}

// end closes the open render pass. When targets are bound but nothing
// was drawn, an empty pass is recorded first so the clears still happen.
func (t *translator) end() {
	if t.pass == nil && t.color != nil {
		t.begin()
	}
	if t.pass != nil {
		t.pass.End()
		t.pass = nil
	}
	t.color = nil
	t.depth = nil
}

// abort closes the open render pass without recording anything new.
func (t *translator) abort() {
	if t.pass != nil {
		t.pass.End()
		t.pass = nil
	}
}

func asPipeline(ps frameloop.PipelineState) (hal.RenderPipeline, error) {
	switch p := ps.(type) {
	case nil:
		return nil, nil
	case *Pipeline:
		return p.pipeline, nil
	case hal.RenderPipeline:
		return p, nil
	default:
		return nil, fmt.Errorf("native: pipeline is %T", ps)
	}
}

func asBuffer(v any) (hal.Buffer, error) {
	switch b := v.(type) {
	case *VertexBuffer:
		return b.buffer, nil
	case hal.Buffer:
		return b, nil
	default:
		return nil, fmt.Errorf("native: buffer is %T", v)
	}
}
