package frameloop

import "time"

// Option configures a Driver or FenceTracker during creation.
//
// Example:
//
//	drv, err := frameloop.NewDriver(surface, queue, fences, buffers, scene,
//	    frameloop.WithWaitTimeout(2*time.Second),
//	    frameloop.WithSyncInterval(1),
//	)
type Option func(*options)

// options holds optional configuration.
type options struct {
	waitTimeout    time.Duration
	syncInterval   int
	presentRetries int
	clearColor     Color
	clearDepth     float32
	pipeline       PipelineState
	statsInterval  time.Duration
	now            func() time.Time
}

// defaultOptions waits on fences indefinitely and presents immediately
// over a dark blue clear color.
func defaultOptions() options {
	return options{
		waitTimeout:   0,
		syncInterval:  0,
		clearColor:    Color{R: 0, G: 0.2, B: 0.4, A: 1},
		clearDepth:    1,
		statsInterval: 5 * time.Second,
		now:           time.Now,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithWaitTimeout bounds every fence wait. A wait that does not complete
// within d fails with ErrTimeout and stops the driver. Zero (the default)
// waits indefinitely.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *options) {
		if d < 0 {
			d = 0
		}
		o.waitTimeout = d
	}
}

// WithSyncInterval sets the sync interval passed to Surface.Present.
func WithSyncInterval(n int) Option {
	return func(o *options) {
		if n < 0 {
			n = 0
		}
		o.syncInterval = n
	}
}

// WithPresentRetries allows up to n additional present attempts when the
// surface reports an error wrapping ErrTransient. Fence waits are never
// retried.
func WithPresentRetries(n int) Option {
	return func(o *options) {
		if n < 0 {
			n = 0
		}
		o.presentRetries = n
	}
}

// WithClearColor sets the color the render target is cleared to every frame.
func WithClearColor(c Color) Option {
	return func(o *options) {
		o.clearColor = c
	}
}

// WithClearDepth sets the depth clear value. The default is 1.
func WithClearDepth(d float32) Option {
	return func(o *options) {
		o.clearDepth = d
	}
}

// WithPipeline sets the pipeline state bound at the start of every frame.
func WithPipeline(ps PipelineState) Option {
	return func(o *options) {
		o.pipeline = ps
	}
}

// WithStatsInterval sets how often Run logs frame statistics at Info
// level. Zero disables periodic logging.
func WithStatsInterval(d time.Duration) Option {
	return func(o *options) {
		o.statsInterval = d
	}
}

// withClock replaces time.Now. Used by tests.
func withClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}
