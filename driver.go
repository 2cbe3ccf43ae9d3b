package frameloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// stoppedPoll is how long Run sleeps between event pumps once the driver
// has stopped, so a non-blocking pump does not spin.
const stoppedPoll = 10 * time.Millisecond

// Driver runs the frame state machine: each Tick waits for the selected
// swap image, records and submits its command buffer, signals its fence
// and presents it.
//
// Driver is not safe for concurrent use except for RequestStop, State,
// Err and Stats.
type Driver struct {
	surface  Surface
	queue    Queue
	tracker  *FenceTracker
	recorder *Recorder
	scene    Scene
	opts     options

	state    atomic.Int32
	stopReq  atomic.Bool
	err      atomic.Pointer[error]
	shutdown bool

	// unsignaled marks images with a submission no accepted fence signal
	// covers. Shutdown signals them before draining.
	unsignaled []bool

	frame     uint64
	lastStart time.Time

	statsMu sync.Mutex
	stats   Stats
	window  statsWindow
}

// Stats holds frame loop metrics.
type Stats struct {
	// Frames is the number of frames presented.
	Frames uint64

	// Selections counts, per swap image, the ticks that selected it.
	Selections []uint64

	// LastFrame is the CPU time of the most recent tick.
	LastFrame time.Duration

	// FPS is the presented frame rate over the last stats window.
	FPS float64
}

type statsWindow struct {
	start  time.Time
	frames uint64
}

// NewDriver creates a driver for surface. fences and buffers hold one
// element per swap image and must match surface.ImageCount().
func NewDriver(surface Surface, queue Queue, fences []Fence, buffers []CommandBuffer, scene Scene, opts ...Option) (*Driver, error) {
	if surface == nil || queue == nil {
		return nil, errors.New("frameloop: surface and queue are required")
	}
	n := surface.ImageCount()
	if n < 1 {
		return nil, fmt.Errorf("frameloop: surface has %d images", n)
	}
	if len(fences) != n || len(buffers) != n {
		return nil, fmt.Errorf("frameloop: %d images but %d fences and %d command buffers", n, len(fences), len(buffers))
	}

	tracker, err := NewFenceTracker(fences, opts...)
	if err != nil {
		return nil, err
	}
	recorder, err := NewRecorder(buffers)
	if err != nil {
		return nil, err
	}

	d := &Driver{
		surface:  surface,
		queue:    queue,
		tracker:  tracker,
		recorder: recorder,
		scene:    scene,
		opts:     buildOptions(opts),
		stats:    Stats{Selections: make([]uint64, n)},

		unsignaled: make([]bool, n),
	}
	d.state.Store(int32(StateIdle))
	return d, nil
}

// Tracker returns the driver's fence tracker.
func (d *Driver) Tracker() *FenceTracker { return d.tracker }

// Recorder returns the driver's command recorder.
func (d *Driver) Recorder() *Recorder { return d.recorder }

// State returns the current state.
func (d *Driver) State() State { return State(d.state.Load()) }

func (d *Driver) setState(s State) {
	prev := State(d.state.Swap(int32(s)))
	if prev != s {
		Logger().Debug("frameloop: state", "from", prev, "to", s)
	}
}

// Err returns the error that stopped the driver, or nil.
// It is only meaningful after Tick or Run returned.
func (d *Driver) Err() error {
	if p := d.err.Load(); p != nil {
		return *p
	}
	return nil
}

// RequestStop asks the driver to stop before its next frame. The frame in
// progress, if any, completes normally. Safe for concurrent use.
func (d *Driver) RequestStop() { d.stopReq.Store(true) }

// SetClearColor changes the clear color from the next frame on.
func (d *Driver) SetClearColor(c Color) { d.opts.clearColor = c }

// SetSyncInterval changes the present sync interval from the next frame on.
func (d *Driver) SetSyncInterval(n int) {
	if n < 0 {
		n = 0
	}
	d.opts.syncInterval = n
}

// Stats returns a snapshot of the frame statistics. Safe for concurrent use.
func (d *Driver) Stats() Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	s := d.stats
	s.Selections = append([]uint64(nil), d.stats.Selections...)
	return s
}

// fail moves the driver to Stopped and records err as the fatal error.
func (d *Driver) fail(err error) error {
	prev := d.State()
	d.err.Store(&err)
	d.setState(StateStopped)
	Logger().Error("frameloop: driver stopped", "state", prev, "err", err)
	return err
}

// wrap turns a collaborator error into a FrameError unless it already is one.
func wrap(kind error, op string, image int, err error) error {
	var fe *FrameError
	if errors.As(err, &fe) {
		return err
	}
	return newFrameError(kind, op, image, err)
}

// Tick runs one frame: Idle, Waiting, Recording, Submitted, Presenting
// and back to Idle. On failure the driver moves to Stopped and Tick
// returns the error; afterwards every Tick returns ErrStopped without
// touching the GPU.
//
// A pending RequestStop or a done ctx stops the driver before the image
// index is read. In that case Tick returns ErrStopped and Err stays nil.
func (d *Driver) Tick(ctx context.Context) error {
	if d.State() == StateStopped {
		return ErrStopped
	}
	if d.stopReq.Load() || ctx.Err() != nil {
		d.setState(StateStopped)
		Logger().Info("frameloop: stop requested", "frames", d.frame)
		return ErrStopped
	}

	start := d.opts.now()

	// Idle -> Waiting
	i := d.surface.CurrentImageIndex()
	if i < 0 || i >= d.tracker.Len() {
		return d.fail(newFrameError(ErrDevice, "current image", i,
			fmt.Errorf("index out of range [0,%d)", d.tracker.Len())))
	}
	d.setState(StateWaiting)
	d.countSelection(i)

	// Waiting -> Recording
	if err := d.tracker.Wait(ctx, i); err != nil {
		if cerr := ctx.Err(); cerr != nil && errors.Is(err, cerr) {
			d.setState(StateStopped)
			return ErrStopped
		}
		return d.fail(err)
	}
	d.setState(StateRecording)

	info := FrameInfo{Frame: d.frame, Image: i, Time: start}
	if !d.lastStart.IsZero() {
		info.Delta = start.Sub(d.lastStart)
	}
	d.lastStart = start
	d.frame++
	if d.scene != nil {
		d.scene.Update(info)
	}

	targets := FrameTargets{
		Color:      d.surface.Target(i),
		ClearColor: d.opts.clearColor,
		ClearDepth: d.opts.clearDepth,
	}
	if ds, ok := d.surface.(DepthSurface); ok {
		targets.Depth = ds.DepthTarget()
	}

	// Recording -> Submitted
	cb, _, err := d.recorder.Record(i, d.opts.pipeline, targets, d.scene)
	if err != nil {
		return d.fail(err)
	}
	if err := d.queue.Submit(cb); err != nil {
		return d.fail(wrap(ErrSubmit, "submit", i, err))
	}
	d.setState(StateSubmitted)

	// Submitted -> Presenting
	value, err := d.tracker.Advance(i)
	if err != nil {
		return d.fail(err)
	}
	d.setState(StatePresenting)
	if err := d.queue.Signal(d.tracker.Fence(i), value); err != nil {
		d.unsignaled[i] = true
		return d.fail(wrap(ErrSubmit, "signal", i, err))
	}
	d.tracker.MarkSignaled(i, value)

	if err := d.present(i); err != nil {
		return d.fail(err)
	}

	// Presenting -> Idle
	d.setState(StateIdle)
	d.countFrame(d.opts.now().Sub(start))
	return nil
}

// present calls Surface.Present, retrying errors marked ErrTransient.
func (d *Driver) present(i int) error {
	for attempt := 0; ; attempt++ {
		err := d.surface.Present(d.opts.syncInterval)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrTransient) && attempt < d.opts.presentRetries {
			Logger().Warn("frameloop: retrying present", "image", i, "attempt", attempt+1, "err", err)
			continue
		}
		return wrap(ErrPresent, "present", i, err)
	}
}

func (d *Driver) countSelection(i int) {
	d.statsMu.Lock()
	d.stats.Selections[i]++
	d.statsMu.Unlock()
}

func (d *Driver) countFrame(elapsed time.Duration) {
	now := d.opts.now()

	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	d.stats.Frames++
	d.stats.LastFrame = elapsed
	if d.window.start.IsZero() {
		d.window.start = now
	}
	d.window.frames++
	if dur := now.Sub(d.window.start); dur > 0 {
		fps := float64(d.window.frames) / dur.Seconds()
		d.stats.FPS = fps
		if d.opts.statsInterval > 0 && dur >= d.opts.statsInterval {
			Logger().Info("frameloop: stats", "frames", d.stats.Frames, "fps", fps, "last_frame", elapsed)
			d.window = statsWindow{start: now}
		}
	}
}

// Run drives the host loop: every iteration pumps host events, then runs
// one Tick. It returns when the pump reports quit, ctx is done, or a stop
// was requested, and then calls Shutdown.
//
// After a fatal error Run stops rendering but keeps pumping events until
// the host quits, the way a window stays open after its renderer failed.
// The returned error joins the fatal error with any shutdown error.
func (d *Driver) Run(ctx context.Context, pump EventPump) error {
	Logger().Info("frameloop: running", "images", d.tracker.Len())

	for ctx.Err() == nil {
		if pump != nil && pump.Pump() {
			break
		}
		if d.State() == StateStopped {
			if d.Err() == nil {
				break
			}
			select {
			case <-ctx.Done():
			case <-time.After(stoppedPoll):
			}
			continue
		}
		if err := d.Tick(ctx); errors.Is(err, ErrStopped) && d.Err() == nil {
			break
		}
	}

	shutdownErr := d.Shutdown(context.WithoutCancel(ctx))
	return errors.Join(d.Err(), shutdownErr)
}

// Shutdown drains every swap image and then releases the command buffers,
// fences, queue and surface that implement Releaser. If any drain fails
// nothing is released, since the GPU may still use those resources.
// Shutdown is idempotent.
//
// An image whose last submission went out without an accepted fence
// signal is signaled first; the queue executes in order, so the new value
// covers that submission.
func (d *Driver) Shutdown(ctx context.Context) error {
	if d.shutdown {
		return nil
	}
	d.shutdown = true
	d.setState(StateStopped)

	var errs []error
	for i, pending := range d.unsignaled {
		if !pending {
			continue
		}
		if err := d.resignal(ctx, i); err != nil {
			errs = append(errs, fmt.Errorf("drain: %w", err))
		}
	}
	if len(errs) > 0 {
		Logger().Warn("frameloop: drain failed, resources not released", "errors", len(errs))
		return errors.Join(errs...)
	}

	for i := range d.tracker.Len() {
		if err := d.tracker.Wait(ctx, i); err != nil {
			errs = append(errs, fmt.Errorf("drain: %w", err))
		}
	}
	if len(errs) > 0 {
		Logger().Warn("frameloop: drain failed, resources not released", "errors", len(errs))
		return errors.Join(errs...)
	}

	if w, ok := d.surface.(Windowed); ok {
		if err := w.SetFullscreen(false); err != nil {
			errs = append(errs, wrap(ErrDevice, "leave fullscreen", -1, err))
		}
	}

	for i := range d.recorder.Len() {
		release(d.recorder.Buffer(i))
	}
	for i := range d.tracker.Len() {
		release(d.tracker.Fence(i))
	}
	release(d.queue)
	release(d.surface)

	Logger().Info("frameloop: shut down", "frames", d.Stats().Frames)
	return errors.Join(errs...)
}

// resignal gives image i's unsignaled submission a fence value.
func (d *Driver) resignal(ctx context.Context, i int) error {
	if err := d.tracker.Wait(ctx, i); err != nil {
		return err
	}
	value, err := d.tracker.Advance(i)
	if err != nil {
		return err
	}
	if err := d.queue.Signal(d.tracker.Fence(i), value); err != nil {
		return wrap(ErrSubmit, "signal", i, err)
	}
	d.tracker.MarkSignaled(i, value)
	d.unsignaled[i] = false
	Logger().Debug("frameloop: signaled orphaned submission", "image", i, "value", value)
	return nil
}

func release(v any) {
	if r, ok := v.(Releaser); ok {
		r.Release()
	}
}
