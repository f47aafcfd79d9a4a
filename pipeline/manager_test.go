// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/shaderlive"
	"github.com/gogpu/shaderlive/gpu"
	"github.com/gogpu/shaderlive/internal/gputest"
	"github.com/gogpu/shaderlive/shader"
)

const quadShader = `
struct Globals {
    time: f32,
    time_delta: f32,
    frame: u32,
    pad0: u32,
    resolution: vec2<f32>,
    mouse: vec2<f32>,
    click: vec2<f32>,
    buttons: u32,
    pad1: u32,
}

@group(3) @binding(0) var<uniform> globals: Globals;

@vertex
fn vs_main(@location(0) pos: vec2<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(pos, 0.0, 1.0);
}

@fragment
fn fs_main(@builtin(position) p: vec4<f32>) -> @location(0) vec4<f32> {
    let uv = p.xy / globals.resolution;
    return vec4<f32>(uv, sin(globals.time) * 0.5 + 0.5, 1.0);
}
`

// stubCompiler succeeds for every source except those listed in fail.
// Sources starting with "vertex-only" lack a fragment entry point.
type stubCompiler struct {
	dev  *gputest.Device
	fail map[string]string

	// gate, when set, blocks each Compile until a value is received.
	gate    chan struct{}
	entered chan struct{}
}

func (c *stubCompiler) Compile(_ context.Context, src shaderlive.ShaderSource) shader.CompilationResult {
	if c.entered != nil {
		c.entered <- struct{}{}
	}
	if c.gate != nil {
		<-c.gate
	}
	if msg, ok := c.fail[src.Code]; ok {
		return shader.CompilationResult{
			Revision: src.Revision,
			Diagnostic: &shaderlive.Diagnostic{
				Kind:     shaderlive.KindCompilation,
				Message:  msg,
				Position: shaderlive.Position{Line: 1, Column: 1},
				Revision: src.Revision,
			},
		}
	}
	h, err := c.dev.CreateShaderModule(&gpu.ShaderModuleDescriptor{Label: src.Code, Code: src.Code})
	if err != nil {
		panic(err)
	}
	eps := []shader.EntryPoint{{Name: "vs_main", Stage: shader.StageVertex}}
	if !strings.HasPrefix(src.Code, "vertex-only") {
		eps = append(eps, shader.EntryPoint{Name: "fs_main", Stage: shader.StageFragment})
	}
	return shader.CompilationResult{
		Revision: src.Revision,
		Module: &shader.Module{
			Handle:    h,
			Interface: shader.Interface{EntryPoints: eps},
			Revision:  src.Revision,
		},
	}
}

// fakeUniforms counts bind group rebuilds.
type fakeUniforms struct {
	layout gpu.BindGroupLayout
	binds  atomic.Int32
}

func (u *fakeUniforms) BindGroupLayout() gpu.BindGroupLayout { return u.layout }
func (u *fakeUniforms) CreateBindGroup() error {
	u.binds.Add(1)
	return nil
}

type fixture struct {
	dev      *gputest.Device
	compiler *stubCompiler
	uniforms *fakeUniforms
	mgr      *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dev := gputest.NewDevice()
	layout, _ := dev.CreateBindGroupLayout(&gpu.BindGroupLayoutDescriptor{Label: "globals"})
	f := &fixture{
		dev:      dev,
		compiler: &stubCompiler{dev: dev, fail: map[string]string{}},
		uniforms: &fakeUniforms{layout: layout},
	}
	f.mgr = NewManager(dev, f.compiler, f.uniforms, gputypes.TextureFormatBGRA8Unorm, DefaultConfig())
	t.Cleanup(f.mgr.Destroy)
	return f
}

func (f *fixture) create(rev shaderlive.Revision, code string) (bool, *shaderlive.Diagnostic) {
	return f.mgr.Create(context.Background(), shaderlive.ShaderSource{Code: code, Revision: rev})
}

func TestCreateWithCompiler(t *testing.T) {
	dev := gputest.NewDevice()
	globals, _ := dev.CreateBindGroupLayout(&gpu.BindGroupLayoutDescriptor{Label: "globals"})
	u := &fakeUniforms{layout: globals}
	m := NewManager(dev, shader.NewCompiler(dev), u, gputypes.TextureFormatRGBA8Unorm, Config{})
	t.Cleanup(m.Destroy)

	ok, diag := m.Create(context.Background(), shaderlive.ShaderSource{Code: quadShader, Revision: 1})
	if !ok || diag != nil {
		t.Fatalf("Create() = %v, %v; want true, nil", ok, diag)
	}

	pipes := dev.Pipelines()
	if len(pipes) != 1 {
		t.Fatalf("pipelines = %d, want 1", len(pipes))
	}
	p := pipes[0]
	if p.VertexEntryPoint != "vs_main" || p.FragmentEntryPoint != "fs_main" {
		t.Errorf("entry points = %q/%q, want vs_main/fs_main", p.VertexEntryPoint, p.FragmentEntryPoint)
	}
	if len(p.VertexBuffers) != 1 || p.VertexBuffers[0].ArrayStride != 8 {
		t.Errorf("vertex buffers = %+v, want one with stride 8", p.VertexBuffers)
	}
	attr := p.VertexBuffers[0].Attributes
	if len(attr) != 1 || attr[0].Format != gputypes.VertexFormatFloat32x2 || attr[0].ShaderLocation != 0 {
		t.Errorf("attributes = %+v, want float32x2 at location 0", attr)
	}
	if p.Primitive.Topology != gputypes.PrimitiveTopologyTriangleList {
		t.Errorf("topology = %v, want TriangleList", p.Primitive.Topology)
	}
	if len(p.Targets) != 1 || p.Targets[0].Format != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("targets = %+v, want the context format", p.Targets)
	}

	layouts := dev.PipelineLayouts()
	if len(layouts) != 1 || len(layouts[0].BindGroupLayouts) != 4 {
		t.Fatalf("pipeline layouts = %+v, want one with 4 groups", layouts)
	}
	groups := layouts[0].BindGroupLayouts
	if groups[3] != globals {
		t.Error("group 3 is not the globals layout")
	}
	if groups[0] != groups[1] || groups[1] != groups[2] || groups[0] == globals {
		t.Error("groups 0-2 are not the shared empty layout")
	}

	a := m.Active()
	if a == nil || a.Revision != 1 || len(a.Reserved) != 3 {
		t.Fatalf("Active() = %+v, want revision 1 with 3 reserved groups", a)
	}
	if u.binds.Load() != 1 {
		t.Errorf("CreateBindGroup calls = %d, want 1", u.binds.Load())
	}
	if m.State() != StateReady {
		t.Errorf("State() = %v, want ready", m.State())
	}
}

func TestCreateFailures(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		setup    func(f *fixture)
		wantKind shaderlive.Kind
		wantErr  error
		wantMsg  string
	}{
		{
			name:     "compilation",
			code:     "broken",
			setup:    func(f *fixture) { f.compiler.fail["broken"] = "expected ';'" },
			wantKind: shaderlive.KindCompilation,
			wantErr:  shaderlive.ErrCompilation,
			wantMsg:  "expected ';'",
		},
		{
			name:     "missing fragment entry point",
			code:     "vertex-only",
			wantKind: shaderlive.KindPipelineBuild,
			wantErr:  shaderlive.ErrPipelineBuild,
			wantMsg:  `fragment entry point "fs_main" not found`,
		},
		{
			name:     "pipeline layout",
			code:     "ok",
			setup:    func(f *fixture) { f.dev.FailOn("CreatePipelineLayout", errors.New("too many groups")) },
			wantKind: shaderlive.KindPipelineBuild,
			wantErr:  shaderlive.ErrPipelineBuild,
			wantMsg:  "too many groups",
		},
		{
			name:     "render pipeline",
			code:     "ok",
			setup:    func(f *fixture) { f.dev.FailOn("CreateRenderPipeline", errors.New("interface mismatch")) },
			wantKind: shaderlive.KindPipelineBuild,
			wantErr:  shaderlive.ErrPipelineBuild,
			wantMsg:  "interface mismatch",
		},
		{
			name:     "render pipeline panic",
			code:     "ok",
			setup:    func(f *fixture) { f.dev.PanicOn("CreateRenderPipeline", "validation failed") },
			wantKind: shaderlive.KindPipelineBuild,
			wantErr:  shaderlive.ErrPipelineBuild,
			wantMsg:  "validation failed",
		},
		{
			name:     "empty layout",
			code:     "ok",
			setup:    func(f *fixture) { f.dev.FailOn("CreateBindGroupLayout", errors.New("out of memory")) },
			wantKind: shaderlive.KindResourceAllocation,
			wantErr:  shaderlive.ErrResourceAllocation,
			wantMsg:  "out of memory",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			ok, diag := f.create(7, tt.code)
			if ok || diag == nil {
				t.Fatalf("Create() = %v, %v; want false with diagnostic", ok, diag)
			}
			if diag.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", diag.Kind, tt.wantKind)
			}
			if !errors.Is(diag, tt.wantErr) {
				t.Errorf("errors.Is(diag, %v) = false", tt.wantErr)
			}
			if !strings.Contains(diag.Message, tt.wantMsg) {
				t.Errorf("Message = %q, want containing %q", diag.Message, tt.wantMsg)
			}
			if diag.Revision != 7 {
				t.Errorf("Revision = %d, want 7", diag.Revision)
			}
			if f.mgr.IsReady() {
				t.Error("IsReady() = true after failure")
			}
			if f.mgr.Last() != diag {
				t.Error("Last() is not the returned diagnostic")
			}
			if n := f.dev.Live("shader"); n != 0 {
				t.Errorf("live shader modules = %d, want 0", n)
			}
			if n := f.dev.Live("pipeline-layout"); n != 0 {
				t.Errorf("live pipeline layouts = %d, want 0", n)
			}
			if f.uniforms.binds.Load() != 0 {
				t.Error("CreateBindGroup called after a failure")
			}
		})
	}
}

// TestFailureKeepsActive runs the valid, invalid, valid sequence.
func TestFailureKeepsActive(t *testing.T) {
	f := newFixture(t)
	f.compiler.fail["B"] = "syntax error"

	if ok, _ := f.create(1, "A"); !ok {
		t.Fatal("Create(A) failed")
	}
	a := f.mgr.Active()

	ok, diag := f.create(2, "B")
	if ok || diag == nil {
		t.Fatalf("Create(B) = %v, %v; want failure", ok, diag)
	}
	if f.mgr.Active() != a {
		t.Error("Active() changed after a failed create")
	}
	if f.mgr.Revision() != 1 {
		t.Errorf("Revision() = %d, want 1", f.mgr.Revision())
	}
	if f.mgr.Last() != diag {
		t.Error("Last() does not report the failure")
	}

	if ok, _ := f.create(3, "C"); !ok {
		t.Fatal("Create(C) failed")
	}
	if f.mgr.Revision() != 3 {
		t.Errorf("Revision() = %d, want 3", f.mgr.Revision())
	}
	if f.mgr.Last() != nil {
		t.Errorf("Last() = %v after success, want nil", f.mgr.Last())
	}
	if got := f.uniforms.binds.Load(); got != 2 {
		t.Errorf("CreateBindGroup calls = %d, want 2", got)
	}
}

func TestCommitRejectsStale(t *testing.T) {
	f := newFixture(t)
	if ok, _ := f.create(5, "new"); !ok {
		t.Fatal("Create(r5) failed")
	}

	ok, diag := f.create(4, "old")
	if ok || diag != nil {
		t.Fatalf("Create(r4) = %v, %v; want false, nil", ok, diag)
	}
	if f.mgr.Revision() != 5 {
		t.Errorf("Revision() = %d, want 5", f.mgr.Revision())
	}
	// r4's pipeline and layout were released.
	if n := f.dev.Live("render-pipeline"); n != 1 {
		t.Errorf("live pipelines = %d, want 1", n)
	}

	// Same revision is not newer either.
	if ok, _ := f.create(5, "again"); ok {
		t.Error("Create(r5) twice committed")
	}

	// A stale failure does not replace the cleared diagnostic.
	f.compiler.fail["bad"] = "nope"
	if _, diag := f.create(3, "bad"); diag == nil {
		t.Fatal("Create(r3 bad) returned no diagnostic")
	}
	if f.mgr.Last() != nil {
		t.Errorf("Last() = %v, want nil for a stale failure", f.mgr.Last())
	}
}

func TestRetiredRelease(t *testing.T) {
	f := newFixture(t)
	f.create(1, "A")
	first := f.mgr.Active()
	f.create(2, "B")

	h := first.Pipeline.(*gputest.Handle)
	if h.Released() {
		t.Fatal("replaced pipeline released in the same commit")
	}
	f.create(3, "C")
	if !h.Released() {
		t.Error("pipeline two generations old not released")
	}
	if !first.Module.Handle.(*gputest.Handle).Released() {
		t.Error("module two generations old not released")
	}
}

func TestState(t *testing.T) {
	f := newFixture(t)
	f.compiler.gate = make(chan struct{})
	f.compiler.entered = make(chan struct{})

	if f.mgr.State() != StateEmpty {
		t.Errorf("initial State() = %v, want empty", f.mgr.State())
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.create(1, "A")
	}()
	<-f.compiler.entered
	if f.mgr.State() != StateCompiling {
		t.Errorf("State() during create = %v, want compiling", f.mgr.State())
	}
	f.compiler.gate <- struct{}{}
	wg.Wait()

	if f.mgr.State() != StateReady {
		t.Errorf("State() after create = %v, want ready", f.mgr.State())
	}
}

func TestDestroy(t *testing.T) {
	f := newFixture(t)
	f.create(1, "A")
	f.create(2, "B")
	f.mgr.Destroy()

	if f.mgr.IsReady() {
		t.Error("IsReady() after Destroy = true")
	}
	for _, kind := range []string{"render-pipeline", "pipeline-layout", "shader", "bind-group"} {
		if n := f.dev.Live(kind); n != 0 {
			t.Errorf("live %s = %d after Destroy, want 0", kind, n)
		}
	}
	if ok, _ := f.create(3, "C"); ok {
		t.Error("Create() after Destroy committed")
	}
	f.mgr.Destroy()
}

func TestConfigDefaults(t *testing.T) {
	got := Config{FragmentEntryPoint: "main_image"}.withDefaults()
	if got.VertexEntryPoint != "vs_main" || got.FragmentEntryPoint != "main_image" {
		t.Errorf("withDefaults() entry points = %q/%q", got.VertexEntryPoint, got.FragmentEntryPoint)
	}
	if len(got.VertexBuffers) != 1 || got.VertexBuffers[0].ArrayStride != gpu.QuadStride {
		t.Errorf("withDefaults() buffers = %+v", got.VertexBuffers)
	}
}
