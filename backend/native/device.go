// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	// Register the Vulkan backend with hal.
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// Backend names accepted by Open.
const (
	BackendVulkan = "vulkan"
	BackendNoop   = "noop"
)

var (
	// ErrNoAdapter is returned when a backend exposes no adapters.
	ErrNoAdapter = errors.New("native: no GPU adapters found")

	// ErrNotHAL is returned by FromProvider when the provider does not
	// expose hal objects.
	ErrNotHAL = errors.New("native: provider does not expose HAL types")
)

// Device is a hal device and its queue. It either owns them (Open) or
// borrows them from a host (FromProvider).
type Device struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	name     string
	format   gputypes.TextureFormat
	owned    bool
}

// Open creates an instance on the named backend, picks an adapter
// (discrete or integrated GPUs first) and opens a device on it.
func Open(backend string) (*Device, error) {
	var (
		instance hal.Instance
		err      error
	)
	switch strings.ToLower(backend) {
	case BackendVulkan:
		b, ok := hal.GetBackend(gputypes.BackendVulkan)
		if !ok {
			return nil, fmt.Errorf("native: vulkan backend not available")
		}
		instance, err = b.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	case BackendNoop:
		api := noop.API{}
		instance, err = api.CreateInstance(nil)
	default:
		return nil, fmt.Errorf("native: unknown backend %q", backend)
	}
	if err != nil {
		return nil, fmt.Errorf("native: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("native: open device: %w", err)
	}

	slogger().Info("native: device opened", "backend", backend, "adapter", selected.Info.Name)
	return &Device{
		instance: instance,
		device:   openDev.Device,
		queue:    openDev.Queue,
		name:     selected.Info.Name,
		format:   gputypes.TextureFormatBGRA8Unorm,
		owned:    true,
	}, nil
}

// FromProvider borrows the device and queue of a host application. The
// provider must also implement HalDevice() any and HalQueue() any
// returning hal.Device and hal.Queue. Close does not destroy a borrowed
// device.
func FromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	if provider == nil {
		return nil, errors.New("native: nil provider")
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNotHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNotHAL)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNotHAL)
	}

	format := provider.SurfaceFormat()
	if format == gputypes.TextureFormatUndefined {
		format = gputypes.TextureFormatBGRA8Unorm
	}
	return &Device{
		device: device,
		queue:  queue,
		name:   "external",
		format: format,
	}, nil
}

// Name returns the adapter name.
func (d *Device) Name() string { return d.name }

// Format returns the color format swap images are created with.
func (d *Device) Format() gputypes.TextureFormat { return d.format }

// HAL returns the underlying device and queue.
func (d *Device) HAL() (hal.Device, hal.Queue) { return d.device, d.queue }

// Close destroys an owned device and its instance. It is a no-op for a
// borrowed device and safe to call twice.
func (d *Device) Close() {
	if !d.owned {
		return
	}
	if d.device != nil {
		d.device.Destroy()
		d.device = nil
	}
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}
	d.queue = nil
}
