// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"

	"github.com/gogpu/shaderlive"
)

// ErrForeignHandle is returned when a handle created by another Device
// implementation is passed to the wgpu backend.
var ErrForeignHandle = errors.New("gpu: handle does not belong to the wgpu backend")

// WGPUInstance is the gogpu/wgpu implementation of Instance.
//
// HAL backends register themselves through blank imports, e.g.
//
//	import _ "github.com/gogpu/wgpu/hal/allbackends"
type WGPUInstance struct {
	inst *wgpu.Instance
}

// NewWGPUInstance creates a wgpu instance limited to backends.
func NewWGPUInstance(backends gputypes.Backends) (*WGPUInstance, error) {
	inst, err := wgpu.CreateInstance(&wgpu.InstanceDescriptor{Backends: backends})
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %w", ErrNoGPUCapability, err)
	}
	return &WGPUInstance{inst: inst}, nil
}

// CreateSurface creates a native window surface or an offscreen target.
func (i *WGPUInstance) CreateSurface(target Target) (Surface, error) {
	switch t := target.(type) {
	case WindowTarget:
		s, err := i.inst.CreateSurface(t.Display, t.Window)
		if err != nil {
			return nil, err
		}
		return &wgpuSurface{surface: s}, nil
	case OffscreenTarget:
		return &OffscreenSurface{}, nil
	default:
		return nil, fmt.Errorf("gpu: unsupported target %T", target)
	}
}

// RequestAdapter selects an adapter able to present to opts.CompatibleSurface.
func (i *WGPUInstance) RequestAdapter(ctx context.Context, opts *AdapterOptions) (Adapter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := &wgpu.RequestAdapterOptions{}
	if opts != nil {
		req.PowerPreference = opts.PowerPreference
		req.ForceFallbackAdapter = opts.ForceFallbackAdapter
		if ws, ok := opts.CompatibleSurface.(*wgpuSurface); ok {
			req.CompatibleSurface = ws.surface
		}
	}
	a, err := i.inst.RequestAdapter(req)
	if err != nil {
		return nil, err
	}
	return &wgpuAdapter{adapter: a}, nil
}

// Release releases the instance.
func (i *WGPUInstance) Release() {
	i.inst.Release()
}

type wgpuAdapter struct {
	adapter *wgpu.Adapter
}

func (a *wgpuAdapter) RequestDevice(ctx context.Context, label string) (Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := a.adapter.RequestDevice(&wgpu.DeviceDescriptor{Label: label})
	if err != nil {
		return nil, err
	}
	return WrapDevice(d), nil
}

func (a *wgpuAdapter) SurfaceFormats(s Surface) []gputypes.TextureFormat {
	ws, ok := s.(*wgpuSurface)
	if !ok {
		return nil
	}
	caps := a.adapter.GetSurfaceCapabilities(ws.surface)
	if caps == nil {
		return nil
	}
	return caps.Formats
}

func (a *wgpuAdapter) Info() gputypes.AdapterInfo { return a.adapter.Info() }

func (a *wgpuAdapter) Release() { a.adapter.Release() }

// WGPUDevice is the gogpu/wgpu implementation of Device.
//
// All calls are serialized with a mutex, so pipeline creation on the
// compile worker and frame submission on the render loop reach the device
// as one sequence.
type WGPUDevice struct {
	mu     sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue
}

// WrapDevice adapts a wgpu device. The returned Device releases d on Release.
func WrapDevice(d *wgpu.Device) *WGPUDevice {
	return &WGPUDevice{device: d, queue: d.Queue()}
}

// Raw returns the underlying wgpu device.
func (d *WGPUDevice) Raw() *wgpu.Device { return d.device }

// CreateBuffer creates a buffer, uploading desc.Contents through a
// mapped-at-creation range when present.
func (d *WGPUDevice) CreateBuffer(desc *BufferDescriptor) (Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	mapped := desc.Contents != nil
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            desc.Label,
		Size:             desc.Size,
		Usage:            desc.Usage,
		MappedAtCreation: mapped,
	})
	if err != nil {
		return nil, err
	}
	if !mapped {
		return buf, nil
	}

	rng, err := buf.MappedRange(0, desc.Size)
	if err != nil {
		// Some backends do not expose the creation mapping; fall back to
		// a queue write after unmapping.
		_ = buf.Unmap()
		if werr := d.queue.WriteBuffer(buf, 0, desc.Contents); werr != nil {
			buf.Release()
			return nil, fmt.Errorf("upload %s: %w", desc.Label, werr)
		}
		shaderlive.Logger().Debug("gpu: mapped upload unavailable, used queue write", "label", desc.Label, "err", err)
		return buf, nil
	}
	copy(rng.Bytes(), desc.Contents)
	rng.Release()
	if err := buf.Unmap(); err != nil {
		buf.Release()
		return nil, fmt.Errorf("unmap %s: %w", desc.Label, err)
	}
	return buf, nil
}

// WriteBuffer schedules a write of data into buf at offset.
func (d *WGPUDevice) WriteBuffer(buf Buffer, offset uint64, data []byte) error {
	b, ok := buf.(*wgpu.Buffer)
	if !ok {
		return ErrForeignHandle
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue.WriteBuffer(b, offset, data)
}

// CreateShaderModule creates a module from WGSL source.
func (d *WGPUDevice) CreateShaderModule(desc *ShaderModuleDescriptor) (ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: desc.Label,
		WGSL:  desc.Code,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// CreateBindGroupLayout creates a bind group layout.
func (d *WGPUDevice) CreateBindGroupLayout(desc *BindGroupLayoutDescriptor) (BindGroupLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, err := d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   desc.Label,
		Entries: desc.Entries,
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// CreateBindGroup creates a bind group of buffer entries.
func (d *WGPUDevice) CreateBindGroup(desc *BindGroupDescriptor) (BindGroup, error) {
	layout, ok := desc.Layout.(*wgpu.BindGroupLayout)
	if !ok {
		return nil, ErrForeignHandle
	}
	entries := make([]wgpu.BindGroupEntry, 0, len(desc.Entries))
	for _, e := range desc.Entries {
		b, ok := e.Buffer.(*wgpu.Buffer)
		if !ok {
			return nil, ErrForeignHandle
		}
		entries = append(entries, wgpu.BindGroupEntry{
			Binding: e.Binding,
			Buffer:  b,
			Offset:  e.Offset,
			Size:    e.Size,
		})
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	g, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// CreatePipelineLayout creates a pipeline layout. Every slot must hold a
// layout; wgpu rejects nil entries.
func (d *WGPUDevice) CreatePipelineLayout(desc *PipelineLayoutDescriptor) (PipelineLayout, error) {
	layouts := make([]*wgpu.BindGroupLayout, len(desc.BindGroupLayouts))
	for i, l := range desc.BindGroupLayouts {
		wl, ok := l.(*wgpu.BindGroupLayout)
		if !ok {
			return nil, fmt.Errorf("bind group layout %d: %w", i, ErrForeignHandle)
		}
		layouts[i] = wl
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	pl, err := d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: layouts,
	})
	if err != nil {
		return nil, err
	}
	return pl, nil
}

// CreateRenderPipeline creates a render pipeline with no depth/stencil
// attachment and single sampling.
func (d *WGPUDevice) CreateRenderPipeline(desc *RenderPipelineDescriptor) (RenderPipeline, error) {
	layout, ok := desc.Layout.(*wgpu.PipelineLayout)
	if !ok {
		return nil, ErrForeignHandle
	}
	module, ok := desc.Module.(*wgpu.ShaderModule)
	if !ok {
		return nil, ErrForeignHandle
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: desc.VertexEntryPoint,
			Buffers:    desc.VertexBuffers,
		},
		Primitive: desc.Primitive,
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: desc.FragmentEntryPoint,
			Targets:    desc.Targets,
		},
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Draw records pass into a command buffer and submits it.
func (d *WGPUDevice) Draw(frame Frame, pass *DrawPass) error {
	view, err := frameView(frame)
	if err != nil {
		return err
	}
	pipeline, ok := pass.Pipeline.(*wgpu.RenderPipeline)
	if !ok {
		return ErrForeignHandle
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	enc, err := d.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: pass.Label})
	if err != nil {
		return fmt.Errorf("create encoder: %w", err)
	}
	rp, err := enc.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: pass.Label,
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:       view,
				LoadOp:     gputypes.LoadOpClear,
				StoreOp:    gputypes.StoreOpStore,
				ClearValue: pass.Clear,
			},
		},
	})
	if err != nil {
		enc.DiscardEncoding()
		return fmt.Errorf("begin render pass: %w", err)
	}

	rp.SetPipeline(pipeline)
	for i, g := range pass.BindGroups {
		if g == nil {
			continue
		}
		if bg, ok := g.(*wgpu.BindGroup); ok {
			rp.SetBindGroup(uint32(i), bg, nil)
		}
	}
	for i, b := range pass.VertexBuffers {
		if vb, ok := b.(*wgpu.Buffer); ok {
			rp.SetVertexBuffer(uint32(i), vb, 0)
		}
	}
	rp.Draw(pass.VertexCount, pass.InstanceCount, 0, 0)
	if err := rp.End(); err != nil {
		enc.DiscardEncoding()
		return fmt.Errorf("end render pass: %w", err)
	}

	cmd, err := enc.Finish()
	if err != nil {
		return fmt.Errorf("finish encoder: %w", err)
	}
	if _, err := d.queue.Submit(cmd); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	return nil
}

// Release releases the device.
func (d *WGPUDevice) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.device.Release()
}

// wgpuSurface is a native window surface.
type wgpuSurface struct {
	surface *wgpu.Surface
}

func (s *wgpuSurface) Configure(dev Device, cfg *SurfaceConfig) error {
	wd, ok := dev.(*WGPUDevice)
	if !ok {
		return ErrForeignHandle
	}
	return s.surface.Configure(wd.device, &wgpu.SurfaceConfiguration{
		Width:       cfg.Width,
		Height:      cfg.Height,
		Format:      cfg.Format,
		Usage:       gputypes.TextureUsageRenderAttachment,
		PresentMode: cfg.PresentMode,
		AlphaMode:   cfg.AlphaMode,
	})
}

func (s *wgpuSurface) Acquire() (Frame, error) {
	st, suboptimal, err := s.surface.GetCurrentTexture()
	if err != nil {
		return nil, err
	}
	if suboptimal {
		shaderlive.Logger().Debug("gpu: surface suboptimal")
	}
	view, err := st.CreateView(nil)
	if err != nil {
		s.surface.DiscardTexture()
		return nil, fmt.Errorf("create view: %w", err)
	}
	return &surfaceFrame{surface: s.surface, texture: st, view: view}, nil
}

func (s *wgpuSurface) Release() { s.surface.Release() }

type surfaceFrame struct {
	surface *wgpu.Surface
	texture *wgpu.SurfaceTexture
	view    *wgpu.TextureView
}

func (f *surfaceFrame) Present() error {
	defer f.view.Release()
	return f.surface.Present(f.texture)
}

func (f *surfaceFrame) Discard() {
	f.view.Release()
	f.surface.DiscardTexture()
}

// OffscreenSurface renders into a private texture. Present only counts
// frames; Snapshot reads the last rendered image back.
type OffscreenSurface struct {
	mu      sync.Mutex
	device  *WGPUDevice
	texture *wgpu.Texture
	view    *wgpu.TextureView
	width   uint32
	height  uint32
	format  gputypes.TextureFormat
	frames  uint64
}

// Configure (re)creates the backing texture.
func (s *OffscreenSurface) Configure(dev Device, cfg *SurfaceConfig) error {
	wd, ok := dev.(*WGPUDevice)
	if !ok {
		return ErrForeignHandle
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	wd.mu.Lock()
	tex, err := wd.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: "shaderlive-offscreen",
		Size: wgpu.Extent3D{
			Width:              cfg.Width,
			Height:             cfg.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        cfg.Format,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		wd.mu.Unlock()
		return fmt.Errorf("create offscreen texture: %w", err)
	}
	view, err := wd.device.CreateTextureView(tex, nil)
	wd.mu.Unlock()
	if err != nil {
		tex.Release()
		return fmt.Errorf("create offscreen view: %w", err)
	}

	s.releaseLocked()
	s.device, s.texture, s.view = wd, tex, view
	s.width, s.height, s.format = cfg.Width, cfg.Height, cfg.Format
	return nil
}

// Acquire returns the offscreen texture as the next frame.
func (s *OffscreenSurface) Acquire() (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view == nil {
		return nil, fmt.Errorf("gpu: offscreen surface not configured")
	}
	return &offscreenFrame{surface: s, view: s.view}, nil
}

// Frames returns the number of presented frames.
func (s *OffscreenSurface) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Snapshot copies the current texture contents into an image. The texture
// must use an 8-bit RGBA or BGRA format.
func (s *OffscreenSurface) Snapshot(ctx context.Context) (*image.NRGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.texture == nil {
		return nil, fmt.Errorf("gpu: offscreen surface not configured")
	}
	bgra := s.format == gputypes.TextureFormatBGRA8Unorm || s.format == gputypes.TextureFormatBGRA8UnormSrgb
	if !bgra && s.format != gputypes.TextureFormatRGBA8Unorm && s.format != gputypes.TextureFormatRGBA8UnormSrgb {
		return nil, fmt.Errorf("gpu: snapshot of %v not supported", s.format)
	}

	// Copy rows must be 256-byte aligned.
	bytesPerRow := uint32(alignUp(uint64(s.width)*4, 256))
	size := uint64(bytesPerRow) * uint64(s.height)

	dev := s.device
	dev.mu.Lock()
	staging, err := dev.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "shaderlive-readback",
		Size:  size,
		Usage: gputypes.BufferUsageCopyDst | gputypes.BufferUsageMapRead,
	})
	if err != nil {
		dev.mu.Unlock()
		return nil, fmt.Errorf("create readback buffer: %w", err)
	}
	defer staging.Release()

	enc, err := dev.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "shaderlive-readback"})
	if err != nil {
		dev.mu.Unlock()
		return nil, fmt.Errorf("create encoder: %w", err)
	}
	enc.CopyTextureToBuffer(s.texture, staging, []wgpu.BufferTextureCopy{
		{
			BufferLayout: wgpu.ImageDataLayout{
				BytesPerRow:  bytesPerRow,
				RowsPerImage: s.height,
			},
			TextureBase: wgpu.ImageCopyTexture{Texture: s.texture},
			Size: wgpu.Extent3D{
				Width:              s.width,
				Height:             s.height,
				DepthOrArrayLayers: 1,
			},
		},
	})
	cmd, err := enc.Finish()
	if err == nil {
		_, err = dev.queue.Submit(cmd)
	}
	dev.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("submit readback: %w", err)
	}

	mapCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := staging.Map(mapCtx, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("map readback: %w", err)
	}
	rng, err := staging.MappedRange(0, size)
	if err != nil {
		_ = staging.Unmap()
		return nil, fmt.Errorf("mapped range: %w", err)
	}
	img := image.NewNRGBA(image.Rect(0, 0, int(s.width), int(s.height)))
	src := rng.Bytes()
	rowBytes := int(s.width) * 4
	for y := 0; y < int(s.height); y++ {
		row := src[y*int(bytesPerRow) : y*int(bytesPerRow)+rowBytes]
		dst := img.Pix[y*img.Stride : y*img.Stride+rowBytes]
		copy(dst, row)
		if bgra {
			for x := 0; x < rowBytes; x += 4 {
				dst[x], dst[x+2] = dst[x+2], dst[x]
			}
		}
	}
	rng.Release()
	_ = staging.Unmap()
	return img, nil
}

// Release releases the backing texture.
func (s *OffscreenSurface) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
}

func (s *OffscreenSurface) releaseLocked() {
	if s.view != nil {
		s.view.Release()
		s.view = nil
	}
	if s.texture != nil {
		s.texture.Release()
		s.texture = nil
	}
}

type offscreenFrame struct {
	surface *OffscreenSurface
	view    *wgpu.TextureView
}

func (f *offscreenFrame) Present() error {
	f.surface.mu.Lock()
	f.surface.frames++
	f.surface.mu.Unlock()
	return nil
}

func (f *offscreenFrame) Discard() {}

func frameView(frame Frame) (*wgpu.TextureView, error) {
	switch f := frame.(type) {
	case *surfaceFrame:
		return f.view, nil
	case *offscreenFrame:
		return f.view, nil
	default:
		return nil, ErrForeignHandle
	}
}
