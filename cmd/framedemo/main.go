// Command framedemo runs the frame loop against a simulated or real GPU.
//
// It clears every swap image and draws two colored triangles, pacing the
// CPU against the GPU with one fence per image. Without -frames it runs
// until interrupted.
//
//	framedemo -backend sim -frames 600
//	framedemo -config framedemo.toml -watch
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/frameloop"
	"github.com/gogpu/frameloop/internal/config"
)

func main() {
	var (
		configPath = flag.String("config", "", "TOML configuration file")
		backend    = flag.String("backend", "", "sim, vulkan or noop (overrides config)")
		frames     = flag.Uint64("frames", 0, "stop after this many frames, 0 runs until interrupted")
		buffers    = flag.Int("buffers", 0, "swap image count (overrides config)")
		timeout    = flag.Duration("timeout", 0, "fence wait timeout, 0 waits indefinitely")
		logLevel   = flag.String("log-level", "", "debug, info, warn or error (overrides config)")
		watch      = flag.Bool("watch", false, "reload clear color and sync interval when the config file changes")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fatal("load configuration", err)
		}
		cfg = loaded
	}

	// Flags override the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Backend = *backend
		case "frames":
			cfg.MaxFrames = *frames
		case "buffers":
			cfg.Frames.BufferCount = *buffers
		case "timeout":
			cfg.Frames.WaitTimeout = config.Duration(*timeout)
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		fatal("validate configuration", err)
	}
	if *watch && *configPath == "" {
		fatal("watch configuration", errors.New("-watch needs -config"))
	}

	frameloop.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *configPath, *watch); err != nil {
		frameloop.Logger().Error("framedemo: stopped with error", "err", err)
		os.Exit(1)
	}
}

// fatal reports a setup failure and exits with status 1.
func fatal(what string, err error) {
	slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("framedemo: "+what+" failed", "err", err)
	os.Exit(1)
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// run sets up the backend and runs the render loop and, with watch, the
// configuration watcher. Both stop when ctx is done or the loop ends.
func run(ctx context.Context, cfg config.Config, configPath string, watch bool) error {
	log := frameloop.Logger()

	rig, err := newRig(cfg)
	if err != nil {
		return fmt.Errorf("set up %s backend: %w", cfg.Backend, err)
	}
	defer rig.close()

	drv, err := frameloop.NewDriver(rig.surface, rig.queue, rig.fences, rig.buffers, rig.scene, driverOptions(cfg, rig)...)
	if err != nil {
		rig.release()
		return fmt.Errorf("create driver: %w", err)
	}

	if cfg.Window.Fullscreen {
		if w, ok := rig.surface.(frameloop.Windowed); ok {
			if err := w.SetFullscreen(true); err != nil {
				log.Warn("framedemo: fullscreen failed", "err", err)
			}
		}
	}

	log.Info("framedemo: starting",
		"title", cfg.Window.Title,
		"backend", cfg.Backend,
		"images", len(rig.fences),
		"size", fmt.Sprintf("%dx%d", cfg.Window.Width, cfg.Window.Height),
		"max_frames", cfg.MaxFrames)

	reloads := make(chan config.Config, 1)
	g, gctx := errgroup.WithContext(ctx)
	loopCtx, endLoop := context.WithCancel(gctx)
	defer endLoop()

	if watch {
		g.Go(func() error {
			return config.Watch(loopCtx, configPath, func(c config.Config) {
				// Keep only the newest configuration.
				select {
				case <-reloads:
				default:
				}
				reloads <- c
			})
		})
	}

	g.Go(func() error {
		defer endLoop()
		start := time.Now()
		err := drv.Run(loopCtx, &pump{driver: drv, maxFrames: cfg.MaxFrames, reloads: reloads})
		stats := drv.Stats()
		log.Info("framedemo: finished",
			"frames", stats.Frames,
			"elapsed", time.Since(start).Round(time.Millisecond),
			"fps", stats.FPS,
			"selections", stats.Selections)
		if v := rig.violations(); len(v) > 0 {
			log.Warn("framedemo: simulated GPU saw rule violations", "count", len(v), "first", v[0])
		}
		return err
	})

	return g.Wait()
}

func driverOptions(cfg config.Config, rig *rig) []frameloop.Option {
	r, g, b, a := cfg.ClearRGBA()
	opts := []frameloop.Option{
		frameloop.WithWaitTimeout(cfg.Frames.WaitTimeout.Std()),
		frameloop.WithSyncInterval(cfg.Frames.SyncInterval),
		frameloop.WithPresentRetries(cfg.Frames.PresentRetries),
		frameloop.WithStatsInterval(cfg.Frames.StatsInterval.Std()),
		frameloop.WithClearColor(frameloop.Color{R: r, G: g, B: b, A: a}),
	}
	if rig.pipeline != nil {
		opts = append(opts, frameloop.WithPipeline(rig.pipeline))
	}
	return opts
}

// pump stands in for a window's event loop. It runs on the render
// goroutine, so it is where reloaded settings reach the driver.
type pump struct {
	driver    *frameloop.Driver
	maxFrames uint64
	reloads   <-chan config.Config
}

func (p *pump) Pump() bool {
	select {
	case c := <-p.reloads:
		r, g, b, a := c.ClearRGBA()
		p.driver.SetClearColor(frameloop.Color{R: r, G: g, B: b, A: a})
		p.driver.SetSyncInterval(c.Frames.SyncInterval)
		frameloop.Logger().Info("framedemo: settings applied",
			"clear_color", c.Scene.ClearColor, "sync_interval", c.Frames.SyncInterval)
	default:
	}
	if p.maxFrames > 0 && p.driver.Stats().Frames >= p.maxFrames {
		return true
	}
	// There is no window to keep open after a failure.
	return p.driver.State() == frameloop.StateStopped && p.driver.Err() != nil
}
