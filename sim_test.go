package frameloop_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gogpu/frameloop"
	"github.com/gogpu/frameloop/sim"
)

type triangle struct{ frames int }

func (s *triangle) Update(frameloop.FrameInfo) { s.frames++ }

func (s *triangle) Draw(p *frameloop.Pass) {
	p.SetVertexBuffer(0, frameloop.BufferView{Buffer: "quad", Size: 96})
	p.Draw(6, 1, 0, 0)
}

func newSimDriver(t *testing.T, cfg sim.Config, opts ...frameloop.Option) (*sim.GPU, *frameloop.Driver) {
	t.Helper()
	gpu := sim.New(cfg)
	t.Cleanup(gpu.Close)
	drv, err := frameloop.NewDriver(gpu.Surface(), gpu.Queue(), gpu.Fences(), gpu.CommandBuffers(), &triangle{}, opts...)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	return gpu, drv
}

func TestSimNoReuseWhileInFlight(t *testing.T) {
	orders := []sim.Config{
		{Images: 3, Latency: 200 * time.Microsecond},
		{Images: 3, Latency: 200 * time.Microsecond, Order: sim.OrderMailbox},
		{Images: 3, Latency: 200 * time.Microsecond, Sequence: []int{0, 2, 2, 1, 0}},
	}
	for _, cfg := range orders {
		t.Run(fmt.Sprintf("%v/%d", cfg.Order, len(cfg.Sequence)), func(t *testing.T) {
			gpu, drv := newSimDriver(t, cfg, frameloop.WithWaitTimeout(5*time.Second))
			ctx := context.Background()
			for k := range 100 {
				if err := drv.Tick(ctx); err != nil {
					t.Fatalf("tick %d: %v", k, err)
				}
			}
			if err := drv.Shutdown(ctx); err != nil {
				t.Fatalf("Shutdown: %v", err)
			}
			if v := gpu.Violations(); len(v) != 0 {
				t.Fatalf("violations: %q", v)
			}
			if gpu.Pending() != 0 {
				t.Errorf("%d work items pending after shutdown", gpu.Pending())
			}

			c := gpu.Counters()
			if c.Submits != 100 || c.Signals != 100 || c.Presents != 100 {
				t.Errorf("counters = %+v", c)
			}
			stats := drv.Stats()
			for i := range gpu.Images() {
				if got := drv.Tracker().Advances(i); got != stats.Selections[i] {
					t.Errorf("image %d: %d advances, %d selections", i, got, stats.Selections[i])
				}
				if !gpu.Fence(i).Released() {
					t.Errorf("fence %d not released", i)
				}
			}
		})
	}
}

func TestSimManualClock(t *testing.T) {
	gpu, drv := newSimDriver(t, sim.Config{Images: 2, Manual: true})
	ctx := context.Background()

	for k := range 2 {
		if err := drv.Tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", k, err)
		}
	}

	done := make(chan error, 1)
	go func() { done <- drv.Tick(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("third tick did not wait for the GPU: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	// Execution and signal of image 0.
	gpu.Retire(2)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("tick 3: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("tick did not resume after the fence completed")
	}
	if v := gpu.Violations(); len(v) != 0 {
		t.Fatalf("violations: %q", v)
	}

	gpu.RetireAll()
	if err := drv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestSimPresentFailure(t *testing.T) {
	gpu, drv := newSimDriver(t, sim.Config{Images: 3, Latency: 100 * time.Microsecond})
	gpu.SetFaults(sim.Faults{FailPresentAt: 10})

	pumps := 0
	pump := frameloop.EventPumpFunc(func() bool {
		pumps++
		return pumps > 20
	})
	err := drv.Run(context.Background(), pump)
	if !errors.Is(err, frameloop.ErrPresent) {
		t.Fatalf("Run = %v, want ErrPresent", err)
	}
	if drv.State() != frameloop.StateStopped {
		t.Errorf("State() = %v, want Stopped", drv.State())
	}

	c := gpu.Counters()
	if c.Presents != 10 || c.Submits != 10 || c.Signals != 10 {
		t.Errorf("counters = %+v, want 10 submits, signals and presents", c)
	}
	if v := gpu.Violations(); len(v) != 0 {
		t.Errorf("violations: %q", v)
	}
	// Three buffers, three fences, the queue and the surface.
	if c.Releases != 8 {
		t.Errorf("Releases = %d, want 8", c.Releases)
	}
}

func TestSimSignalFailureDrainsBeforeRelease(t *testing.T) {
	gpu, drv := newSimDriver(t, sim.Config{Images: 3, Latency: 20 * time.Millisecond},
		frameloop.WithWaitTimeout(5*time.Second))
	gpu.SetFaults(sim.Faults{FailSignalAt: 2})
	ctx := context.Background()

	if err := drv.Tick(ctx); err != nil {
		t.Fatalf("tick 0: %v", err)
	}
	if err := drv.Tick(ctx); !errors.Is(err, frameloop.ErrSubmit) {
		t.Fatalf("tick 1 = %v, want ErrSubmit", err)
	}
	if !gpu.CommandBuffer(1).InFlight() {
		t.Fatal("command buffer 1 should still execute after the failed signal")
	}

	if err := drv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if v := gpu.Violations(); len(v) != 0 {
		t.Fatalf("violations: %q", v)
	}
	if gpu.Pending() != 0 {
		t.Errorf("%d work items pending after shutdown", gpu.Pending())
	}
	if c := gpu.Counters(); c.Signals != 3 || c.Releases != 8 {
		t.Errorf("counters = %+v, want 3 signals and 8 releases", c)
	}
}

func TestSimStalledFenceTimesOut(t *testing.T) {
	gpu, drv := newSimDriver(t, sim.Config{Images: 2}, frameloop.WithWaitTimeout(20*time.Millisecond))
	gpu.SetFaults(sim.Faults{StallFences: true})
	ctx := context.Background()

	var err error
	for range 3 {
		if err = drv.Tick(ctx); err != nil {
			break
		}
	}
	if !errors.Is(err, frameloop.ErrTimeout) {
		t.Fatalf("Tick = %v, want ErrTimeout", err)
	}

	// The GPU never finished, so nothing may be released.
	if err := drv.Shutdown(ctx); !errors.Is(err, frameloop.ErrTimeout) {
		t.Fatalf("Shutdown = %v, want ErrTimeout", err)
	}
	if c := gpu.Counters(); c.Releases != 0 {
		t.Errorf("Releases = %d after a failed drain", c.Releases)
	}
}

func TestSimNotifyFailure(t *testing.T) {
	gpu, drv := newSimDriver(t, sim.Config{Images: 1, Manual: true})
	ctx := context.Background()

	if err := drv.Tick(ctx); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	gpu.SetFaults(sim.Faults{FailNotify: true})
	if err := drv.Tick(ctx); !errors.Is(err, frameloop.ErrSync) {
		t.Fatalf("tick 2 = %v, want ErrSync", err)
	}
	if c := gpu.Counters(); c.Resets != 1 {
		t.Errorf("Resets = %d, want 1", c.Resets)
	}
}

func TestSimTransientPresent(t *testing.T) {
	gpu, drv := newSimDriver(t, sim.Config{Images: 2, Latency: 100 * time.Microsecond},
		frameloop.WithPresentRetries(3))
	gpu.SetFaults(sim.Faults{FailPresentAt: 2, TransientPresents: 2})

	ctx := context.Background()
	for k := range 5 {
		if err := drv.Tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", k, err)
		}
	}
	if got := drv.Stats().Frames; got != 5 {
		t.Errorf("Frames = %d, want 5", got)
	}
	if c := gpu.Counters(); c.Presents != 7 {
		t.Errorf("Presents = %d, want 7", c.Presents)
	}
	if err := drv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
