package frameloop

// RenderTarget is an opaque handle to a color or depth attachment.
// Backends type-assert it back to their own resource type.
type RenderTarget any

// PipelineState is an opaque handle to a compiled pipeline (shaders plus
// fixed-function state). It is produced once at startup by the backend.
type PipelineState any

// Surface is the presentation surface (swap chain). It owns the color
// targets; the driver only references them while recording.
type Surface interface {
	// ImageCount returns the buffering depth N. It never changes.
	ImageCount() int

	// Target returns the color target of swap image i.
	Target(i int) RenderTarget

	// CurrentImageIndex returns the image the next frame renders into.
	// Depending on present mode this need not be round-robin.
	CurrentImageIndex() int

	// Present queues the current image for display. syncInterval 0
	// presents immediately, n > 0 waits for n vertical blanks.
	Present(syncInterval int) error
}

// DepthSurface is implemented by surfaces that provide a shared depth
// target. When present, RecordFrame binds and clears it every frame.
type DepthSurface interface {
	DepthTarget() RenderTarget
}

// Windowed is implemented by surfaces that can switch to fullscreen.
// Shutdown leaves fullscreen before releasing the surface.
type Windowed interface {
	SetFullscreen(fullscreen bool) error
}

// Fence is a GPU timeline: the GPU advances its completed value as it
// retires signals queued with Queue.Signal.
type Fence interface {
	// CompletedValue returns the highest value the GPU has reached.
	// It must never decrease.
	CompletedValue() uint64

	// NotifyAt registers interest in value and returns a channel that is
	// closed once CompletedValue() >= value. An error means the wait
	// could not be registered; the fence state is then unknown.
	NotifyAt(value uint64) (<-chan struct{}, error)
}

// CommandBuffer is one swap image's command allocator and command list.
type CommandBuffer interface {
	// Reset discards previously recorded commands and their memory.
	// The GPU must have finished executing them.
	Reset() error

	// Encode translates a finished frame sequence into native commands
	// and closes the buffer for submission.
	Encode(seq *Sequence) error
}

// Queue is the GPU command queue. Submissions execute in FIFO order.
type Queue interface {
	// Submit queues a closed command buffer for execution.
	Submit(cb CommandBuffer) error

	// Signal asks the GPU to set fence to value once all previously
	// submitted work has completed.
	Signal(fence Fence, value uint64) error
}

// Releaser is implemented by collaborators that own native resources.
// Shutdown calls Release after all images have been drained.
type Releaser interface {
	Release()
}

// Scene supplies per-frame state and draw calls.
type Scene interface {
	// Update advances application state before the frame is recorded.
	Update(info FrameInfo)

	// Draw records the scene's draw calls. Only the methods of p may be
	// used; render target binding, clears and barriers are done by the
	// recorder.
	Draw(p *Pass)
}

// EventPump drains host window/input events once per loop iteration.
type EventPump interface {
	// Pump processes pending events and reports whether the host asked
	// to quit.
	Pump() (quit bool)
}

// EventPumpFunc adapts a function to the EventPump interface.
type EventPumpFunc func() bool

// Pump calls f.
func (f EventPumpFunc) Pump() bool { return f() }
