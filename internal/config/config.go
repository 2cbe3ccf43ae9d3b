// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package config loads the framedemo configuration from a TOML file and
// watches it for changes.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Backends accepted in Config.Backend.
const (
	BackendSim    = "sim"
	BackendVulkan = "vulkan"
	BackendNoop   = "noop"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("config: invalid")

// Duration is a time.Duration written as a Go duration string ("250ms").
type Duration time.Duration

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the demo configuration. Every key is optional.
type Config struct {
	Backend   string `toml:"backend"`
	LogLevel  string `toml:"log_level"`
	MaxFrames uint64 `toml:"max_frames"`

	Window Window `toml:"window"`
	Frames Frames `toml:"frames"`
	Scene  Scene  `toml:"scene"`
	Sim    Sim    `toml:"sim"`
}

// Window describes the presentation window.
type Window struct {
	Title      string `toml:"title"`
	Width      uint32 `toml:"width"`
	Height     uint32 `toml:"height"`
	Fullscreen bool   `toml:"fullscreen"`
}

// Frames configures the frame loop.
type Frames struct {
	BufferCount    int      `toml:"buffer_count"`
	SyncInterval   int      `toml:"sync_interval"`
	WaitTimeout    Duration `toml:"wait_timeout"`
	PresentRetries int      `toml:"present_retries"`
	StatsInterval  Duration `toml:"stats_interval"`
}

// Scene configures what is drawn.
type Scene struct {
	ClearColor []float64 `toml:"clear_color"`
}

// Sim configures the simulated GPU.
type Sim struct {
	Latency Duration `toml:"latency"`
	Order   string   `toml:"order"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Backend:  BackendSim,
		LogLevel: "info",
		Window: Window{
			Title:  "Renderer Window",
			Width:  800,
			Height: 600,
		},
		Frames: Frames{
			BufferCount:   3,
			StatsInterval: Duration(5 * time.Second),
		},
		Scene: Scene{
			ClearColor: []float64{0, 0.2, 0.4, 1},
		},
		Sim: Sim{
			Latency: Duration(2 * time.Millisecond),
			Order:   "fifo",
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes TOML data over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return Config{}, fmt.Errorf("config: line %d column %d: %w", row, col, err)
		}
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendSim, BackendVulkan, BackendNoop:
	default:
		errs = append(errs, fmt.Errorf("backend %q", c.Backend))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q", c.LogLevel))
	}
	if c.Window.Width == 0 || c.Window.Height == 0 {
		errs = append(errs, fmt.Errorf("window size %dx%d", c.Window.Width, c.Window.Height))
	}
	if c.Frames.BufferCount < 1 || c.Frames.BufferCount > 16 {
		errs = append(errs, fmt.Errorf("frames.buffer_count %d not in [1,16]", c.Frames.BufferCount))
	}
	if c.Frames.SyncInterval < 0 || c.Frames.SyncInterval > 4 {
		errs = append(errs, fmt.Errorf("frames.sync_interval %d not in [0,4]", c.Frames.SyncInterval))
	}
	if c.Frames.WaitTimeout < 0 {
		errs = append(errs, errors.New("frames.wait_timeout is negative"))
	}
	if c.Frames.PresentRetries < 0 {
		errs = append(errs, errors.New("frames.present_retries is negative"))
	}
	if n := len(c.Scene.ClearColor); n != 3 && n != 4 {
		errs = append(errs, fmt.Errorf("scene.clear_color has %d components, want 3 or 4", n))
	}
	for _, v := range c.Scene.ClearColor {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("scene.clear_color component %v not in [0,1]", v))
			break
		}
	}
	if c.Sim.Latency < 0 {
		errs = append(errs, errors.New("sim.latency is negative"))
	}
	switch c.Sim.Order {
	case "", "fifo", "mailbox":
	default:
		errs = append(errs, fmt.Errorf("sim.order %q", c.Sim.Order))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// ClearRGBA returns the clear color with alpha defaulting to 1.
func (c *Config) ClearRGBA() (r, g, b, a float64) {
	cc := c.Scene.ClearColor
	a = 1
	if len(cc) >= 3 {
		r, g, b = cc[0], cc[1], cc[2]
	}
	if len(cc) == 4 {
		a = cc[3]
	}
	return r, g, b, a
}
