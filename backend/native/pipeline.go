// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/frameloop"
	"github.com/gogpu/frameloop/internal/shader"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

const triangleShaderSource = `
struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) color: vec3<f32>,
};

@vertex
fn vs_main(@location(0) pos: vec2<f32>, @location(1) color: vec3<f32>) -> VertexOutput {
    var out: VertexOutput;
    out.position = vec4<f32>(pos, 0.5, 1.0);
    out.color = color;
    return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    return vec4<f32>(in.color, 1.0);
}
`

// vertexStride is the size of a Vertex: position float32x2, color float32x3.
const vertexStride = 20

// Vertex is a 2D position and an RGB color.
type Vertex struct {
	X, Y    float32
	R, G, B float32
}

// PipelineConfig configures the triangle pipeline.
type PipelineConfig struct {
	// Format is the color target format. Undefined means the device format.
	Format gputypes.TextureFormat

	// Depth enables depth testing against a Depth24PlusStencil8 target.
	Depth bool
}

// Pipeline is a compiled vertex-colored triangle pipeline. Pass it to
// frameloop.WithPipeline or Pass.SetPipeline.
type Pipeline struct {
	device   hal.Device
	shader   hal.ShaderModule
	layout   hal.PipelineLayout
	pipeline hal.RenderPipeline
}

// NewPipeline compiles the triangle shader and creates the pipeline.
func NewPipeline(dev *Device, cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Format == gputypes.TextureFormatUndefined {
		cfg.Format = dev.format
	}
	p := &Pipeline{device: dev.device}

	module, err := shader.CreateModule(dev.device, "triangle_shader", triangleShaderSource)
	if err != nil {
		return nil, err
	}
	p.shader = module

	layout, err := dev.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "triangle_pipe_layout",
	})
	if err != nil {
		p.Release()
		return nil, fmt.Errorf("native: create pipeline layout: %w", err)
	}
	p.layout = layout

	desc := &hal.RenderPipelineDescriptor{
		Label:  "triangle_pipeline",
		Layout: p.layout,
		Vertex: hal.VertexState{
			Module:     p.shader,
			EntryPoint: "vs_main",
			Buffers: []gputypes.VertexBufferLayout{{
				ArrayStride: vertexStride,
				StepMode:    gputypes.VertexStepModeVertex,
				Attributes: []gputypes.VertexAttribute{
					{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0}, // position
					{Format: gputypes.VertexFormatFloat32x3, Offset: 8, ShaderLocation: 1}, // color
				},
			}},
		},
		Fragment: &hal.FragmentState{
			Module:     p.shader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{{
				Format:    cfg.Format,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	}
	if cfg.Depth {
		keep := hal.StencilFaceState{
			Compare:     gputypes.CompareFunctionAlways,
			FailOp:      hal.StencilOperationKeep,
			DepthFailOp: hal.StencilOperationKeep,
			PassOp:      hal.StencilOperationKeep,
		}
		desc.DepthStencil = &hal.DepthStencilState{
			Format:            depthFormat,
			DepthWriteEnabled: true,
			DepthCompare:      gputypes.CompareFunctionLess,
			StencilFront:      keep,
			StencilBack:       keep,
		}
	}

	pipeline, err := dev.device.CreateRenderPipeline(desc)
	if err != nil {
		p.Release()
		return nil, fmt.Errorf("native: create render pipeline: %w", err)
	}
	p.pipeline = pipeline
	return p, nil
}

// Release destroys the pipeline resources in reverse creation order.
func (p *Pipeline) Release() {
	if p.pipeline != nil {
		p.device.DestroyRenderPipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.layout != nil {
		p.device.DestroyPipelineLayout(p.layout)
		p.layout = nil
	}
	if p.shader != nil {
		p.device.DestroyShaderModule(p.shader)
		p.shader = nil
	}
}

// VertexBuffer is an uploaded vertex array.
type VertexBuffer struct {
	device hal.Device
	buffer hal.Buffer
	size   uint64
	count  uint32
}

// NewVertexBuffer uploads vertices to a new GPU buffer.
func NewVertexBuffer(dev *Device, vertices []Vertex) (*VertexBuffer, error) {
	if len(vertices) == 0 {
		return nil, errors.New("native: no vertices")
	}
	data := encodeVertices(vertices)
	buf, err := dev.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "triangle_vertices",
		Size:  uint64(len(data)),
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create vertex buffer: %w", err)
	}
	dev.queue.WriteBuffer(buf, 0, data)
	return &VertexBuffer{
		device: dev.device,
		buffer: buf,
		size:   uint64(len(data)),
		count:  uint32(len(vertices)),
	}, nil
}

// Count returns the number of vertices.
func (v *VertexBuffer) Count() uint32 { return v.count }

// View returns the whole buffer as a frameloop.BufferView.
func (v *VertexBuffer) View() frameloop.BufferView {
	return frameloop.BufferView{Buffer: v, Size: v.size}
}

// Release destroys the buffer.
func (v *VertexBuffer) Release() {
	if v.buffer != nil {
		v.device.DestroyBuffer(v.buffer)
		v.buffer = nil
	}
}

func encodeVertices(vertices []Vertex) []byte {
	data := make([]byte, len(vertices)*vertexStride)
	for i, v := range vertices {
		off := i * vertexStride
		for j, f := range [5]float32{v.X, v.Y, v.R, v.G, v.B} {
			binary.LittleEndian.PutUint32(data[off+j*4:], math.Float32bits(f))
		}
	}
	return data
}
