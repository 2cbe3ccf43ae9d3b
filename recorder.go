package frameloop

import (
	"errors"
	"fmt"
)

// Recorder owns one CommandBuffer per swap image and records one frame
// at a time into them.
//
// A frame is recorded as Begin, RecordFrame, End. The recorder guarantees
// the shape of every frame:
//
//	SetPipeline
//	Barrier(Present -> RenderTarget)
//	SetRenderTargets, ClearColor[, ClearDepth]
//	...scene commands...
//	Barrier(RenderTarget -> Present)
//
// Begin resets the image's command buffer, so it must only be called
// after FenceTracker.Wait for that image returned nil in the current
// cycle. The recorder does not re-check this.
type Recorder struct {
	buffers []CommandBuffer
	active  *Sequence
}

// NewRecorder creates a recorder over one command buffer per swap image.
func NewRecorder(buffers []CommandBuffer) (*Recorder, error) {
	if len(buffers) == 0 {
		return nil, errors.New("frameloop: recorder needs at least one command buffer")
	}
	for i, b := range buffers {
		if b == nil {
			return nil, fmt.Errorf("frameloop: command buffer %d is nil", i)
		}
	}
	return &Recorder{buffers: append([]CommandBuffer(nil), buffers...)}, nil
}

// Len returns the number of command buffers.
func (r *Recorder) Len() int { return len(r.buffers) }

// Buffer returns the command buffer of image i.
func (r *Recorder) Buffer(i int) CommandBuffer { return r.buffers[i] }

// Begin resets image i's command buffer and starts a new sequence with
// pipeline bound. Only one sequence may be open at a time.
func (r *Recorder) Begin(i int, pipeline PipelineState) (*Sequence, error) {
	if i < 0 || i >= len(r.buffers) {
		return nil, newFrameError(ErrDevice, "begin", i, fmt.Errorf("index out of range [0,%d)", len(r.buffers)))
	}
	if r.active != nil {
		return nil, newFrameError(ErrSubmit, "begin", i,
			fmt.Errorf("sequence for image %d still open", r.active.image))
	}
	if err := r.buffers[i].Reset(); err != nil {
		return nil, newFrameError(ErrSubmit, "reset", i, err)
	}
	seq := &Sequence{image: i, cmds: make([]Command, 0, 16)}
	seq.append(Command{Op: OpSetPipeline, Pipeline: pipeline})
	r.active = seq
	return seq, nil
}

// RecordFrame appends the whole frame to seq: the opening barrier, target
// binding, clears, the scene's draws and the closing barrier. scene may
// be nil for a clear-only frame.
func (r *Recorder) RecordFrame(seq *Sequence, targets FrameTargets, scene Scene) {
	if seq.phase != phaseBegun {
		seq.fail(fmt.Errorf("record frame: sequence already recorded"))
		return
	}

	seq.append(Command{Op: OpBarrier, Target: targets.Color, Before: StatePresent, After: StateRenderTarget})
	seq.phase = phaseBracket

	seq.appendWrite(Command{Op: OpSetRenderTargets, Target: targets.Color, Depth: targets.Depth})
	seq.appendWrite(Command{Op: OpClearColor, Target: targets.Color, Color: targets.ClearColor})
	if targets.Depth != nil {
		seq.appendWrite(Command{Op: OpClearDepth, Depth: targets.Depth, DepthValue: targets.ClearDepth})
	}

	if scene != nil {
		p := &Pass{seq: seq}
		scene.Draw(p)
		p.closed = true
	}

	seq.append(Command{Op: OpBarrier, Target: targets.Color, Before: StateRenderTarget, After: StatePresent})
	seq.phase = phaseClosed
}

// End validates seq and closes the image's command buffer for submission.
// A sequence with a recording error, or one whose last command is not the
// closing barrier, is rejected with ErrCorruptFrame and must not be
// submitted.
func (r *Recorder) End(seq *Sequence) (CommandBuffer, error) {
	if seq == nil {
		return nil, newFrameError(ErrCorruptFrame, "end", -1, errors.New("nil sequence"))
	}
	if seq != r.active {
		return nil, newFrameError(ErrCorruptFrame, "end", seq.image, errors.New("sequence is not the open one"))
	}
	r.active = nil

	if err := validate(seq); err != nil {
		seq.phase = phaseEnded
		return nil, newFrameError(ErrCorruptFrame, "end", seq.image, err)
	}
	seq.phase = phaseEnded

	cb := r.buffers[seq.image]
	if err := cb.Encode(seq); err != nil {
		return nil, newFrameError(ErrSubmit, "close", seq.image, err)
	}
	return cb, nil
}

// Record runs Begin, RecordFrame and End for image i.
func (r *Recorder) Record(i int, pipeline PipelineState, targets FrameTargets, scene Scene) (CommandBuffer, *Sequence, error) {
	seq, err := r.Begin(i, pipeline)
	if err != nil {
		return nil, nil, err
	}
	r.RecordFrame(seq, targets, scene)
	cb, err := r.End(seq)
	if err != nil {
		return nil, seq, err
	}
	return cb, seq, nil
}

// validate checks the barrier bracket of a finished sequence.
func validate(seq *Sequence) error {
	if seq.err != nil {
		return seq.err
	}
	if seq.phase != phaseClosed {
		return errors.New("recording left open")
	}
	cmds := seq.cmds
	first := -1
	for i, c := range cmds {
		if c.Op == OpBarrier {
			first = i
			break
		}
	}
	if first < 0 {
		return errors.New("missing barriers")
	}
	if open := cmds[first]; open.Before != StatePresent || open.After != StateRenderTarget {
		return fmt.Errorf("first barrier is %v -> %v", open.Before, open.After)
	}
	for _, c := range cmds[:first] {
		if c.Op.IsDraw() || c.Op == OpClearColor || c.Op == OpClearDepth {
			return fmt.Errorf("%s before %w", c.Op, errOutsideBracket)
		}
	}
	last := cmds[len(cmds)-1]
	if last.Op != OpBarrier || last.Before != StateRenderTarget || last.After != StatePresent {
		return fmt.Errorf("last command is %s, want closing barrier", last.Op)
	}
	if n := len(seq.Barriers()); n != 2 {
		return fmt.Errorf("%d barriers recorded, want 2", n)
	}
	return nil
}
