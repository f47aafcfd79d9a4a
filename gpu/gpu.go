// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gpu owns the device side of shaderlive: the render surface
// context, the buffer factory and the gogpu/wgpu backend.
//
// Components above this package talk to the GPU only through the small
// interfaces declared here ([Instance], [Adapter], [Device], [Surface],
// [Frame]). The gogpu/wgpu implementation lives in wgpu.go; tests use a
// recording fake from internal/gputest.
//
// Handle types ([Buffer], [ShaderModule], ...) are satisfied directly by the
// corresponding *wgpu objects, so no wrapper allocation happens per object.
package gpu

import (
	"context"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/shaderlive"
)

// Initialization errors. Each wraps shaderlive.ErrInitialization.
var (
	// ErrNoGPUCapability is returned when no adapter can be acquired.
	ErrNoGPUCapability = fmt.Errorf("gpu: no GPU capability: %w", shaderlive.ErrInitialization)

	// ErrDeviceRequestFailed is returned when the adapter rejects the device request.
	ErrDeviceRequestFailed = fmt.Errorf("gpu: device request failed: %w", shaderlive.ErrInitialization)

	// ErrSurfaceConfiguration is returned when the presentation target cannot be configured.
	ErrSurfaceConfiguration = fmt.Errorf("gpu: surface configuration failed: %w", shaderlive.ErrInitialization)

	// ErrNotInitialized is returned by Context accessors before Initialize
	// completes or after Dispose.
	ErrNotInitialized = fmt.Errorf("gpu: context not initialized: %w", shaderlive.ErrInitialization)
)

// Buffer is a GPU buffer handle.
type Buffer interface {
	Size() uint64
	Release()
}

// ShaderModule is a compiled shader module handle.
type ShaderModule interface{ Release() }

// BindGroupLayout is a bind group layout handle.
type BindGroupLayout interface{ Release() }

// BindGroup is a bind group handle.
type BindGroup interface{ Release() }

// PipelineLayout is a pipeline layout handle.
type PipelineLayout interface{ Release() }

// RenderPipeline is a render pipeline handle.
type RenderPipeline interface{ Release() }

// BufferDescriptor describes a buffer to create.
//
// When Contents is non-nil the buffer is created mapped, Contents is copied
// in and the buffer is unmapped before CreateBuffer returns.
type BufferDescriptor struct {
	Label    string
	Size     uint64
	Usage    gputypes.BufferUsage
	Contents []byte
}

// ShaderModuleDescriptor describes a WGSL shader module.
type ShaderModuleDescriptor struct {
	Label string
	Code  string
}

// BindGroupLayoutDescriptor describes a bind group layout.
type BindGroupLayoutDescriptor struct {
	Label   string
	Entries []gputypes.BindGroupLayoutEntry
}

// BindGroupEntry binds a buffer range to a binding index.
// Size 0 binds the rest of the buffer.
type BindGroupEntry struct {
	Binding uint32
	Buffer  Buffer
	Offset  uint64
	Size    uint64
}

// BindGroupDescriptor describes a bind group.
type BindGroupDescriptor struct {
	Label   string
	Layout  BindGroupLayout
	Entries []BindGroupEntry
}

// PipelineLayoutDescriptor lists the bind group layouts by group index.
type PipelineLayoutDescriptor struct {
	Label            string
	BindGroupLayouts []BindGroupLayout
}

// RenderPipelineDescriptor describes a single-module render pipeline with
// one vertex and one fragment stage.
type RenderPipelineDescriptor struct {
	Label              string
	Layout             PipelineLayout
	Module             ShaderModule
	VertexEntryPoint   string
	FragmentEntryPoint string
	VertexBuffers      []gputypes.VertexBufferLayout
	Primitive          gputypes.PrimitiveState
	Targets            []gputypes.ColorTargetState
}

// DrawPass is one render pass: clear the frame, bind, draw once.
type DrawPass struct {
	Label    string
	Clear    gputypes.Color
	Pipeline RenderPipeline
	// BindGroups are set at their slice index; nil entries are skipped.
	BindGroups    []BindGroup
	VertexBuffers []Buffer
	VertexCount   uint32
	InstanceCount uint32
}

// Device creates GPU objects and submits work.
//
// Implementations must be safe for concurrent use: the compile worker
// creates pipelines while the render loop submits frames.
type Device interface {
	CreateBuffer(desc *BufferDescriptor) (Buffer, error)
	WriteBuffer(buf Buffer, offset uint64, data []byte) error
	CreateShaderModule(desc *ShaderModuleDescriptor) (ShaderModule, error)
	CreateBindGroupLayout(desc *BindGroupLayoutDescriptor) (BindGroupLayout, error)
	CreateBindGroup(desc *BindGroupDescriptor) (BindGroup, error)
	CreatePipelineLayout(desc *PipelineLayoutDescriptor) (PipelineLayout, error)
	CreateRenderPipeline(desc *RenderPipelineDescriptor) (RenderPipeline, error)

	// Draw encodes pass against frame and submits it.
	Draw(frame Frame, pass *DrawPass) error

	Release()
}

// SurfaceConfig is applied by Surface.Configure.
type SurfaceConfig struct {
	Width       uint32
	Height      uint32
	Format      gputypes.TextureFormat
	AlphaMode   gputypes.CompositeAlphaMode
	PresentMode gputypes.PresentMode
}

// Surface is a presentation target.
type Surface interface {
	Configure(dev Device, cfg *SurfaceConfig) error
	// Acquire returns the frame to render into next.
	Acquire() (Frame, error)
	Release()
}

// Frame is one acquired presentation image.
type Frame interface {
	Present() error
	// Discard drops the frame without presenting it.
	Discard()
}

// AdapterOptions controls adapter selection.
type AdapterOptions struct {
	PowerPreference      gputypes.PowerPreference
	ForceFallbackAdapter bool
	CompatibleSurface    Surface
}

// Adapter is a physical GPU.
type Adapter interface {
	RequestDevice(ctx context.Context, label string) (Device, error)
	// SurfaceFormats lists the formats the adapter can present to s,
	// preferred first. It may be empty.
	SurfaceFormats(s Surface) []gputypes.TextureFormat
	Info() gputypes.AdapterInfo
	Release()
}

// Instance is the entry point to a GPU API.
type Instance interface {
	CreateSurface(target Target) (Surface, error)
	RequestAdapter(ctx context.Context, opts *AdapterOptions) (Adapter, error)
	Release()
}

// Target describes where frames are presented.
type Target interface {
	// Size returns the initial size in device pixels.
	Size() (width, height uint32)
}

// WindowTarget is a native window surface.
type WindowTarget struct {
	// Display is the platform display handle (X11 Display*, wl_display*,
	// or 0 where unused).
	Display uintptr
	// Window is the platform window handle (HWND, NSView*, X11 Window, ...).
	Window        uintptr
	Width, Height uint32
}

// Size returns the window size.
func (t WindowTarget) Size() (uint32, uint32) { return t.Width, t.Height }

// OffscreenTarget renders into a texture that is never shown.
// Used for headless previews and CI.
type OffscreenTarget struct {
	Width, Height uint32
}

// Size returns the texture size.
func (t OffscreenTarget) Size() (uint32, uint32) { return t.Width, t.Height }
