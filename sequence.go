package frameloop

import (
	"errors"
	"fmt"
	"time"
)

// ResourceState is the usage state of a swap image's color target.
type ResourceState uint8

const (
	// StatePresent is the state in which the surface may display the image.
	StatePresent ResourceState = iota

	// StateRenderTarget is the state in which the image may be written.
	StateRenderTarget
)

// String returns the state name.
func (s ResourceState) String() string {
	switch s {
	case StatePresent:
		return "Present"
	case StateRenderTarget:
		return "RenderTarget"
	default:
		return "Unknown"
	}
}

// Op identifies a recorded command.
type Op uint8

const (
	OpSetPipeline Op = iota
	OpBarrier
	OpSetRenderTargets
	OpClearColor
	OpClearDepth
	OpSetVertexBuffer
	OpSetIndexBuffer
	OpSetBindGroup
	OpDraw
	OpDrawIndexed
)

var opNames = [...]string{
	OpSetPipeline:      "SetPipeline",
	OpBarrier:          "Barrier",
	OpSetRenderTargets: "SetRenderTargets",
	OpClearColor:       "ClearColor",
	OpClearDepth:       "ClearDepth",
	OpSetVertexBuffer:  "SetVertexBuffer",
	OpSetIndexBuffer:   "SetIndexBuffer",
	OpSetBindGroup:     "SetBindGroup",
	OpDraw:             "Draw",
	OpDrawIndexed:      "DrawIndexed",
}

// String returns the command name.
func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "Unknown"
}

// IsDraw reports whether the command writes to the render target.
func (o Op) IsDraw() bool {
	return o == OpDraw || o == OpDrawIndexed
}

// Color is a linear RGBA clear color.
type Color struct {
	R, G, B, A float64
}

// IndexFormat is the element type of an index buffer.
type IndexFormat uint8

const (
	IndexUint16 IndexFormat = iota
	IndexUint32
)

// BufferView references a range of a backend buffer.
type BufferView struct {
	// Buffer is the backend's buffer handle.
	Buffer any
	Offset uint64
	Size   uint64

	// Format is only meaningful for index buffers.
	Format IndexFormat
}

// Command is one recorded GPU operation. Only the fields relevant to Op
// are set.
type Command struct {
	Op Op

	// Target is the color target for Barrier, SetRenderTargets and ClearColor.
	Target RenderTarget

	// Depth is the depth target for SetRenderTargets and ClearDepth.
	Depth RenderTarget

	// Before and After are the Barrier transition states.
	Before, After ResourceState

	Color      Color
	DepthValue float32

	Pipeline PipelineState

	// Slot is the vertex buffer slot or bind group index.
	Slot   uint32
	Buffer BufferView
	Group  any

	// Draw arguments. First is the first vertex or first index.
	Count         uint32
	Instances     uint32
	First         uint32
	BaseVertex    int32
	FirstInstance uint32
}

// FrameInfo describes the frame being recorded.
type FrameInfo struct {
	// Frame counts ticks that reached recording, starting at 0.
	Frame uint64

	// Image is the swap image index.
	Image int

	// Time is when the frame started; Delta is the time since the
	// previous frame started (zero for the first frame).
	Time  time.Time
	Delta time.Duration
}

// FrameTargets are the attachments and clear values of one frame.
type FrameTargets struct {
	Color RenderTarget

	// Depth is optional. When nil no depth target is bound or cleared.
	Depth RenderTarget

	ClearColor Color
	ClearDepth float32
}

type phase uint8

const (
	phaseBegun   phase = iota // pipeline bound, before the opening barrier
	phaseBracket              // between the two barriers
	phaseClosed               // after the closing barrier
	phaseEnded                // handed to the command buffer
)

var errOutsideBracket = errors.New("draw outside render-target bracket")

// Sequence is the append-only command list of one frame. It is created by
// Recorder.Begin and handed to the image's CommandBuffer by Recorder.End.
type Sequence struct {
	image int
	cmds  []Command
	phase phase
	err   error
}

// Image returns the swap image the sequence records into.
func (s *Sequence) Image() int { return s.image }

// Commands returns the recorded commands in order. The slice must not be
// modified.
func (s *Sequence) Commands() []Command { return s.cmds }

// Len returns the number of recorded commands.
func (s *Sequence) Len() int { return len(s.cmds) }

// Err returns the first recording error, if any.
func (s *Sequence) Err() error { return s.err }

// Barriers returns the recorded barrier commands in order.
func (s *Sequence) Barriers() []Command {
	var out []Command
	for _, c := range s.cmds {
		if c.Op == OpBarrier {
			out = append(out, c)
		}
	}
	return out
}

func (s *Sequence) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}

func (s *Sequence) append(c Command) {
	if s.phase == phaseEnded {
		s.fail(fmt.Errorf("%s after end", c.Op))
		return
	}
	s.cmds = append(s.cmds, c)
}

// appendWrite appends a command that writes the render target. Writes are
// only legal between the two barriers.
func (s *Sequence) appendWrite(c Command) {
	if s.phase != phaseBracket {
		s.fail(fmt.Errorf("%s: %w", c.Op, errOutsideBracket))
		return
	}
	s.append(c)
}

// Pass is the draw API handed to Scene.Draw. It is valid only for the
// duration of that call.
type Pass struct {
	seq    *Sequence
	closed bool
}

func (p *Pass) record(c Command) {
	if p.closed {
		// The frame is already recorded; the command is dropped and the
		// sequence marked corrupt.
		Logger().Warn("frameloop: pass used after Scene.Draw returned", "op", c.Op, "image", p.seq.image)
		p.seq.fail(fmt.Errorf("%s: %w", c.Op, errOutsideBracket))
		return
	}
	p.seq.appendWrite(c)
}

// SetPipeline switches the bound pipeline.
func (p *Pass) SetPipeline(ps PipelineState) {
	p.record(Command{Op: OpSetPipeline, Pipeline: ps})
}

// SetVertexBuffer binds a vertex buffer to slot.
func (p *Pass) SetVertexBuffer(slot uint32, view BufferView) {
	p.record(Command{Op: OpSetVertexBuffer, Slot: slot, Buffer: view})
}

// SetIndexBuffer binds the index buffer.
func (p *Pass) SetIndexBuffer(view BufferView) {
	p.record(Command{Op: OpSetIndexBuffer, Buffer: view})
}

// SetBindGroup binds a backend bind group (constant buffers, textures,
// samplers) at index.
func (p *Pass) SetBindGroup(index uint32, group any) {
	p.record(Command{Op: OpSetBindGroup, Slot: index, Group: group})
}

// Draw records a non-indexed draw.
func (p *Pass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.record(Command{
		Op:            OpDraw,
		Count:         vertexCount,
		Instances:     instanceCount,
		First:         firstVertex,
		FirstInstance: firstInstance,
	})
}

// DrawIndexed records an indexed draw.
func (p *Pass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	p.record(Command{
		Op:            OpDrawIndexed,
		Count:         indexCount,
		Instances:     instanceCount,
		First:         firstIndex,
		BaseVertex:    baseVertex,
		FirstInstance: firstInstance,
	})
}
