// Package gputest provides a recording in-memory implementation of the gpu
// interfaces for tests.
//
// Every call is recorded. Failures are injected per operation name
// ("CreateBuffer", "CreateShaderModule", "Draw", "Configure", ...) with
// FailOn, and cleared with ClearFailures.
package gputest

import (
	"context"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/shaderlive/gpu"
)

// Handle is the object returned for every created resource.
type Handle struct {
	Kind  string
	Label string
	Bytes uint64

	mu       sync.Mutex
	released int
}

// Size returns the buffer size.
func (h *Handle) Size() uint64 { return h.Bytes }

// Release marks the handle released.
func (h *Handle) Release() {
	h.mu.Lock()
	h.released++
	h.mu.Unlock()
}

// Released reports whether Release was called at least once.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released > 0
}

// ReleaseCount returns how many times Release was called.
func (h *Handle) ReleaseCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Write is a recorded WriteBuffer call.
type Write struct {
	Buffer gpu.Buffer
	Offset uint64
	Data   []byte
}

// failures holds injected errors and panics by operation name.
type failures struct {
	mu     sync.Mutex
	errs   map[string]error
	panics map[string]any
}

func (f *failures) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		f.errs = make(map[string]error)
	}
	f.errs[op] = err
}

func (f *failures) PanicOn(op string, v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics == nil {
		f.panics = make(map[string]any)
	}
	f.panics[op] = v
}

func (f *failures) ClearFailures() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = nil
	f.panics = nil
}

func (f *failures) check(op string) error {
	f.mu.Lock()
	p, doPanic := f.panics[op]
	err := f.errs[op]
	f.mu.Unlock()
	if doPanic {
		panic(p)
	}
	return err
}

// Device is a recording gpu.Device.
type Device struct {
	failures

	mu               sync.Mutex
	handles          []*Handle
	buffers          []gpu.BufferDescriptor
	modules          []gpu.ShaderModuleDescriptor
	bindGroupLayouts []gpu.BindGroupLayoutDescriptor
	bindGroups       []gpu.BindGroupDescriptor
	pipelineLayouts  []gpu.PipelineLayoutDescriptor
	pipelines        []gpu.RenderPipelineDescriptor
	writes           []Write
	draws            []gpu.DrawPass
	released         bool
}

var _ gpu.Device = (*Device)(nil)

// NewDevice returns an empty recording device.
func NewDevice() *Device {
	return &Device{}
}

// FailOn makes op return err until ClearFailures.
func (d *Device) FailOn(op string, err error) { d.failures.FailOn(op, err) }

// PanicOn makes op panic with v until ClearFailures.
func (d *Device) PanicOn(op string, v any) { d.failures.PanicOn(op, v) }

func (d *Device) newHandle(kind, label string, size uint64) *Handle {
	h := &Handle{Kind: kind, Label: label, Bytes: size}
	d.handles = append(d.handles, h)
	return h
}

// CreateBuffer implements gpu.Device.
func (d *Device) CreateBuffer(desc *gpu.BufferDescriptor) (gpu.Buffer, error) {
	if err := d.check("CreateBuffer"); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *desc
	if desc.Contents != nil {
		cp.Contents = append([]byte(nil), desc.Contents...)
	}
	d.buffers = append(d.buffers, cp)
	return d.newHandle("buffer", desc.Label, desc.Size), nil
}

// WriteBuffer implements gpu.Device.
func (d *Device) WriteBuffer(buf gpu.Buffer, offset uint64, data []byte) error {
	if err := d.check("WriteBuffer"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes = append(d.writes, Write{Buffer: buf, Offset: offset, Data: append([]byte(nil), data...)})
	return nil
}

// CreateShaderModule implements gpu.Device.
func (d *Device) CreateShaderModule(desc *gpu.ShaderModuleDescriptor) (gpu.ShaderModule, error) {
	if err := d.check("CreateShaderModule"); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.modules = append(d.modules, *desc)
	return d.newHandle("shader", desc.Label, 0), nil
}

// CreateBindGroupLayout implements gpu.Device.
func (d *Device) CreateBindGroupLayout(desc *gpu.BindGroupLayoutDescriptor) (gpu.BindGroupLayout, error) {
	if err := d.check("CreateBindGroupLayout"); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bindGroupLayouts = append(d.bindGroupLayouts, *desc)
	return d.newHandle("bind-group-layout", desc.Label, 0), nil
}

// CreateBindGroup implements gpu.Device.
func (d *Device) CreateBindGroup(desc *gpu.BindGroupDescriptor) (gpu.BindGroup, error) {
	if err := d.check("CreateBindGroup"); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bindGroups = append(d.bindGroups, *desc)
	return d.newHandle("bind-group", desc.Label, 0), nil
}

// CreatePipelineLayout implements gpu.Device.
func (d *Device) CreatePipelineLayout(desc *gpu.PipelineLayoutDescriptor) (gpu.PipelineLayout, error) {
	if err := d.check("CreatePipelineLayout"); err != nil {
		return nil, err
	}
	for i, l := range desc.BindGroupLayouts {
		if l == nil {
			return nil, fmt.Errorf("gputest: nil bind group layout at %d", i)
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pipelineLayouts = append(d.pipelineLayouts, *desc)
	return d.newHandle("pipeline-layout", desc.Label, 0), nil
}

// CreateRenderPipeline implements gpu.Device.
func (d *Device) CreateRenderPipeline(desc *gpu.RenderPipelineDescriptor) (gpu.RenderPipeline, error) {
	if err := d.check("CreateRenderPipeline"); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pipelines = append(d.pipelines, *desc)
	return d.newHandle("render-pipeline", desc.Label, 0), nil
}

// Draw implements gpu.Device.
func (d *Device) Draw(frame gpu.Frame, pass *gpu.DrawPass) error {
	if err := d.check("Draw"); err != nil {
		return err
	}
	if pass.Pipeline == nil {
		return fmt.Errorf("gputest: draw without pipeline")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *pass
	cp.BindGroups = append([]gpu.BindGroup(nil), pass.BindGroups...)
	cp.VertexBuffers = append([]gpu.Buffer(nil), pass.VertexBuffers...)
	d.draws = append(d.draws, cp)
	return nil
}

// Release implements gpu.Device.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = true
}

// Released reports whether Release was called.
func (d *Device) Released() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

// Buffers returns the recorded buffer descriptors.
func (d *Device) Buffers() []gpu.BufferDescriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gpu.BufferDescriptor(nil), d.buffers...)
}

// ShaderModules returns the recorded shader module descriptors.
func (d *Device) ShaderModules() []gpu.ShaderModuleDescriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gpu.ShaderModuleDescriptor(nil), d.modules...)
}

// BindGroupLayouts returns the recorded bind group layout descriptors.
func (d *Device) BindGroupLayouts() []gpu.BindGroupLayoutDescriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gpu.BindGroupLayoutDescriptor(nil), d.bindGroupLayouts...)
}

// BindGroups returns the recorded bind group descriptors.
func (d *Device) BindGroups() []gpu.BindGroupDescriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gpu.BindGroupDescriptor(nil), d.bindGroups...)
}

// PipelineLayouts returns the recorded pipeline layout descriptors.
func (d *Device) PipelineLayouts() []gpu.PipelineLayoutDescriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gpu.PipelineLayoutDescriptor(nil), d.pipelineLayouts...)
}

// Pipelines returns the recorded render pipeline descriptors.
func (d *Device) Pipelines() []gpu.RenderPipelineDescriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gpu.RenderPipelineDescriptor(nil), d.pipelines...)
}

// Writes returns the recorded buffer writes.
func (d *Device) Writes() []Write {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Write(nil), d.writes...)
}

// Draws returns the recorded draw passes.
func (d *Device) Draws() []gpu.DrawPass {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gpu.DrawPass(nil), d.draws...)
}

// Handles returns every created handle of kind, or all handles when kind
// is empty.
func (d *Device) Handles(kind string) []*Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*Handle
	for _, h := range d.handles {
		if kind == "" || h.Kind == kind {
			out = append(out, h)
		}
	}
	return out
}

// Live returns the number of unreleased handles of kind.
func (d *Device) Live(kind string) int {
	n := 0
	for _, h := range d.Handles(kind) {
		if !h.Released() {
			n++
		}
	}
	return n
}

// Surface is a recording gpu.Surface.
type Surface struct {
	failures

	mu        sync.Mutex
	configs   []gpu.SurfaceConfig
	acquired  int
	presented int
	discarded int
	released  bool
}

var _ gpu.Surface = (*Surface)(nil)

// FailOn makes op ("Configure", "Acquire", "Present") return err.
func (s *Surface) FailOn(op string, err error) { s.failures.FailOn(op, err) }

// Configure implements gpu.Surface.
func (s *Surface) Configure(_ gpu.Device, cfg *gpu.SurfaceConfig) error {
	if err := s.check("Configure"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs = append(s.configs, *cfg)
	return nil
}

// Acquire implements gpu.Surface.
func (s *Surface) Acquire() (gpu.Frame, error) {
	if err := s.check("Acquire"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquired++
	return &Frame{surface: s}, nil
}

// Release implements gpu.Surface.
func (s *Surface) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
}

// Configs returns the recorded configurations.
func (s *Surface) Configs() []gpu.SurfaceConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]gpu.SurfaceConfig(nil), s.configs...)
}

// Counts returns the acquired, presented and discarded frame counts.
func (s *Surface) Counts() (acquired, presented, discarded int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired, s.presented, s.discarded
}

// Released reports whether Release was called.
func (s *Surface) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Frame is a recording gpu.Frame.
type Frame struct {
	surface *Surface
}

// Present implements gpu.Frame.
func (f *Frame) Present() error {
	if err := f.surface.check("Present"); err != nil {
		return err
	}
	f.surface.mu.Lock()
	f.surface.presented++
	f.surface.mu.Unlock()
	return nil
}

// Discard implements gpu.Frame.
func (f *Frame) Discard() {
	f.surface.mu.Lock()
	f.surface.discarded++
	f.surface.mu.Unlock()
}

// Instance is a recording gpu.Instance that hands out Adapter, Surface
// and Device.
type Instance struct {
	failures

	Adapter *Adapter
	Surface *Surface

	mu       sync.Mutex
	options  []gpu.AdapterOptions
	released bool
}

var _ gpu.Instance = (*Instance)(nil)

// NewInstance returns an instance whose adapter offers formats.
func NewInstance(formats ...gputypes.TextureFormat) *Instance {
	return &Instance{
		Adapter: &Adapter{
			Device:  NewDevice(),
			Formats: formats,
			Details: gputypes.AdapterInfo{Name: "gputest", DeviceType: gputypes.DeviceTypeCPU},
		},
		Surface: &Surface{},
	}
}

// FailOn makes op ("CreateSurface", "RequestAdapter") return err.
func (i *Instance) FailOn(op string, err error) { i.failures.FailOn(op, err) }

// CreateSurface implements gpu.Instance.
func (i *Instance) CreateSurface(gpu.Target) (gpu.Surface, error) {
	if err := i.check("CreateSurface"); err != nil {
		return nil, err
	}
	return i.Surface, nil
}

// RequestAdapter implements gpu.Instance.
func (i *Instance) RequestAdapter(ctx context.Context, opts *gpu.AdapterOptions) (gpu.Adapter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := i.check("RequestAdapter"); err != nil {
		return nil, err
	}
	i.mu.Lock()
	if opts != nil {
		i.options = append(i.options, *opts)
	}
	i.mu.Unlock()
	return i.Adapter, nil
}

// Release implements gpu.Instance.
func (i *Instance) Release() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.released = true
}

// AdapterOptions returns the recorded adapter requests.
func (i *Instance) AdapterOptions() []gpu.AdapterOptions {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]gpu.AdapterOptions(nil), i.options...)
}

// Adapter is a recording gpu.Adapter.
type Adapter struct {
	failures

	Device  *Device
	Formats []gputypes.TextureFormat
	Details gputypes.AdapterInfo

	mu       sync.Mutex
	labels   []string
	released bool
}

var _ gpu.Adapter = (*Adapter)(nil)

// FailOn makes op ("RequestDevice") return err.
func (a *Adapter) FailOn(op string, err error) { a.failures.FailOn(op, err) }

// RequestDevice implements gpu.Adapter.
func (a *Adapter) RequestDevice(ctx context.Context, label string) (gpu.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := a.check("RequestDevice"); err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.labels = append(a.labels, label)
	a.mu.Unlock()
	return a.Device, nil
}

// SurfaceFormats implements gpu.Adapter.
func (a *Adapter) SurfaceFormats(gpu.Surface) []gputypes.TextureFormat { return a.Formats }

// Info implements gpu.Adapter.
func (a *Adapter) Info() gputypes.AdapterInfo { return a.Details }

// Release implements gpu.Adapter.
func (a *Adapter) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.released = true
}

// Released reports whether Release was called.
func (a *Adapter) Released() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.released
}

// Labels returns the recorded device labels.
func (a *Adapter) Labels() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.labels...)
}
