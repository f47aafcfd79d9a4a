// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"context"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/shaderlive"
)

// Context owns the device, the presentation surface and the chosen pixel
// format for one render surface.
//
// Context is created once by the top-level owner and passed by reference to
// every component; none of them keep a global. Only one live Context per
// render surface is expected, which callers enforce.
//
// Context is safe for concurrent use.
type Context struct {
	mu sync.RWMutex

	instance Instance // nil when the device was adopted from a host
	adapter  Adapter  // nil when the device was adopted from a host
	device   Device
	surface  Surface

	format      gputypes.TextureFormat
	presentMode gputypes.PresentMode
	width       uint32
	height      uint32
	info        gputypes.AdapterInfo

	ownsDevice bool
	live       bool
}

// Initialize acquires a presentation target, an adapter and a device,
// then configures the target with the chosen format and opaque alpha.
// Configuration completes before Initialize returns.
//
// Failures wrap ErrNoGPUCapability, ErrDeviceRequestFailed or
// ErrSurfaceConfiguration; all of them satisfy
// errors.Is(err, shaderlive.ErrInitialization). Partially acquired
// objects are released on failure.
func Initialize(ctx context.Context, inst Instance, target Target, opts ...Option) (*Context, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoGPUCapability, err)
	}

	// Step 1: presentation target
	surface, err := inst.CreateSurface(target)
	if err != nil {
		return nil, fmt.Errorf("%w: create surface: %w", ErrNoGPUCapability, err)
	}

	// Step 2: adapter compatible with the target
	adapter, err := inst.RequestAdapter(ctx, &AdapterOptions{
		PowerPreference:      o.powerPreference,
		ForceFallbackAdapter: o.forceFallback,
		CompatibleSurface:    surface,
	})
	if err != nil {
		surface.Release()
		return nil, fmt.Errorf("%w: %w", ErrNoGPUCapability, err)
	}
	info := adapter.Info()
	shaderlive.Logger().Info("gpu: adapter selected",
		"name", info.Name, "vendor", info.Vendor, "type", info.DeviceType, "backend", info.Backend)

	// Step 3: device
	device, err := adapter.RequestDevice(ctx, o.label)
	if err != nil {
		adapter.Release()
		surface.Release()
		return nil, fmt.Errorf("%w: %w", ErrDeviceRequestFailed, err)
	}

	// Step 4: format and configuration
	w, h := target.Size()
	c := &Context{
		instance:    inst,
		adapter:     adapter,
		device:      device,
		surface:     surface,
		format:      chooseFormat(o.format, adapter.SurfaceFormats(surface)),
		presentMode: o.presentMode,
		width:       w,
		height:      h,
		info:        info,
		ownsDevice:  true,
		live:        true,
	}
	if err := c.configureLocked(); err != nil {
		c.Dispose()
		return nil, err
	}
	shaderlive.Logger().Info("gpu: context ready", "format", c.format, "width", w, "height", h)
	return c, nil
}

// newAdoptedContext wraps a device owned by someone else. Dispose releases
// the surface but not the device.
func newAdoptedContext(device Device, surface Surface, format gputypes.TextureFormat, width, height uint32) (*Context, error) {
	c := &Context{
		device:      device,
		surface:     surface,
		format:      chooseFormat(format, nil),
		presentMode: gputypes.PresentModeFifo,
		width:       width,
		height:      height,
		live:        true,
	}
	if err := c.configureLocked(); err != nil {
		c.Dispose()
		return nil, err
	}
	return c, nil
}

// chooseFormat picks the override when set, else the first 8-bit
// unorm format the adapter offers, else its first format, else BGRA8Unorm.
func chooseFormat(override gputypes.TextureFormat, supported []gputypes.TextureFormat) gputypes.TextureFormat {
	if override != gputypes.TextureFormatUndefined {
		return override
	}
	for _, f := range supported {
		if f == gputypes.TextureFormatBGRA8Unorm || f == gputypes.TextureFormatRGBA8Unorm {
			return f
		}
	}
	if len(supported) > 0 {
		return supported[0]
	}
	return gputypes.TextureFormatBGRA8Unorm
}

// configureLocked applies the current size and format to the surface.
// Caller must hold c.mu for writing, or own c exclusively.
func (c *Context) configureLocked() error {
	err := c.surface.Configure(c.device, &SurfaceConfig{
		Width:       c.width,
		Height:      c.height,
		Format:      c.format,
		AlphaMode:   gputypes.CompositeAlphaModeOpaque,
		PresentMode: c.presentMode,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSurfaceConfiguration, err)
	}
	return nil
}

// Device returns the device.
func (c *Context) Device() (Device, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.live {
		return nil, ErrNotInitialized
	}
	return c.device, nil
}

// Surface returns the presentation target.
func (c *Context) Surface() (Surface, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.live {
		return nil, ErrNotInitialized
	}
	return c.surface, nil
}

// Format returns the chosen presentation pixel format.
func (c *Context) Format() (gputypes.TextureFormat, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.live {
		return gputypes.TextureFormatUndefined, ErrNotInitialized
	}
	return c.format, nil
}

// Size returns the configured surface size in device pixels.
func (c *Context) Size() (width, height uint32) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.width, c.height
}

// AdapterInfo returns the selected adapter's description. It is empty for
// adopted devices.
func (c *Context) AdapterInfo() gputypes.AdapterInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// Resize reconfigures the surface for a new size in device pixels.
// Zero sizes (minimized windows) and unchanged sizes are ignored.
func (c *Context) Resize(width, height uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.live {
		return ErrNotInitialized
	}
	if width == 0 || height == 0 || (width == c.width && height == c.height) {
		return nil
	}
	oldW, oldH := c.width, c.height
	c.width, c.height = width, height
	if err := c.configureLocked(); err != nil {
		c.width, c.height = oldW, oldH
		return err
	}
	shaderlive.Logger().Debug("gpu: surface resized", "width", width, "height", height)
	return nil
}

// Dispose releases the surface, device and adapter in reverse order of
// creation. Accessors return ErrNotInitialized afterwards. Safe to call
// multiple times; a new Context may be initialized after Dispose.
func (c *Context) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.surface != nil {
		c.surface.Release()
		c.surface = nil
	}
	if c.device != nil && c.ownsDevice {
		c.device.Release()
	}
	c.device = nil
	if c.adapter != nil {
		c.adapter.Release()
		c.adapter = nil
	}
	c.instance = nil
	c.live = false
}
