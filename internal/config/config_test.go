// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, BackendSim, cfg.Backend)
	assert.Equal(t, "Renderer Window", cfg.Window.Title)
	assert.Equal(t, uint32(800), cfg.Window.Width)
	assert.Equal(t, uint32(600), cfg.Window.Height)
	assert.Equal(t, 3, cfg.Frames.BufferCount)
	assert.Zero(t, cfg.Frames.SyncInterval)
	assert.Zero(t, cfg.Frames.WaitTimeout.Std())

	r, g, b, a := cfg.ClearRGBA()
	assert.Equal(t, []float64{0, 0.2, 0.4, 1}, []float64{r, g, b, a})
}

func TestParseEmptyKeepsDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
backend = "noop"
log_level = "debug"
max_frames = 120

[window]
title = "demo"
fullscreen = true

[frames]
buffer_count = 2
sync_interval = 1
wait_timeout = "750ms"
present_retries = 2

[scene]
clear_color = [1.0, 0.5, 0.0]

[sim]
latency = "1ms"
order = "mailbox"
`))
	require.NoError(t, err)

	assert.Equal(t, BackendNoop, cfg.Backend)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, uint64(120), cfg.MaxFrames)
	assert.Equal(t, "demo", cfg.Window.Title)
	assert.True(t, cfg.Window.Fullscreen)
	assert.Equal(t, uint32(800), cfg.Window.Width, "unset keys keep their default")
	assert.Equal(t, 2, cfg.Frames.BufferCount)
	assert.Equal(t, 1, cfg.Frames.SyncInterval)
	assert.Equal(t, 750*time.Millisecond, cfg.Frames.WaitTimeout.Std())
	assert.Equal(t, 2, cfg.Frames.PresentRetries)
	assert.Equal(t, 5*time.Second, cfg.Frames.StatsInterval.Std())
	assert.Equal(t, time.Millisecond, cfg.Sim.Latency.Std())
	assert.Equal(t, "mailbox", cfg.Sim.Order)

	r, g, b, a := cfg.ClearRGBA()
	assert.Equal(t, []float64{1, 0.5, 0, 1}, []float64{r, g, b, a})
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"syntax", `backend = `},
		{"unknown key", `colour = "red"`},
		{"backend", `backend = "metal"`},
		{"log level", `log_level = "loud"`},
		{"buffer count", "[frames]\nbuffer_count = 0"},
		{"sync interval", "[frames]\nsync_interval = 5"},
		{"duration", "[frames]\nwait_timeout = \"soon\""},
		{"negative timeout", "[frames]\nwait_timeout = \"-1s\""},
		{"clear color length", "[scene]\nclear_color = [0.5]"},
		{"clear color range", "[scene]\nclear_color = [0.0, 2.0, 0.0]"},
		{"window", "[window]\nwidth = 0"},
		{"order", "[sim]\norder = \"random\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestValidateWrapsErrInvalid(t *testing.T) {
	cfg := Default()
	cfg.Frames.BufferCount = 99
	cfg.Backend = "dx12"
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "buffer_count")
	assert.Contains(t, err.Error(), "dx12")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framedemo.toml")
	require.NoError(t, os.WriteFile(path, []byte("max_frames = 7\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), cfg.MaxFrames)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Std())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "framedemo.toml")
	require.NoError(t, os.WriteFile(path, []byte("[frames]\nsync_interval = 0\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c Config) { changes <- c })
	}()

	// Rewrite until the watcher, which starts asynchronously, sees it.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	var got Config
wait:
	for {
		select {
		case got = <-changes:
			break wait
		case <-tick.C:
			require.NoError(t, os.WriteFile(path, []byte("[frames]\nsync_interval = 2\n"), 0o600))
		case <-deadline:
			t.Fatal("no reload within 5s")
		}
	}
	assert.Equal(t, 2, got.Frames.SyncInterval)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatchSkipsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "framedemo.toml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var calls int
	go func() {
		time.Sleep(200 * time.Millisecond)
		_ = os.WriteFile(path, []byte("backend = \"metal\"\n"), 0o600)
	}()
	require.NoError(t, Watch(ctx, path, func(Config) { calls++ }))
	assert.Zero(t, calls)
}

func TestWatchMissingDir(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "x.toml"), func(Config) {})
	assert.Error(t, err)
}
