// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/shaderlive"
	"github.com/gogpu/shaderlive/gpu"
	"github.com/gogpu/shaderlive/shader"
	"github.com/gogpu/shaderlive/uniform"
)

// Compiler turns a source revision into a shader module.
// *shader.Compiler implements it.
type Compiler interface {
	Compile(ctx context.Context, src shaderlive.ShaderSource) shader.CompilationResult
}

// Uniforms provides the globals layout and rebinds it after a pipeline
// change. *uniform.Manager implements it.
type Uniforms interface {
	BindGroupLayout() gpu.BindGroupLayout
	CreateBindGroup() error
}

// State is the externally visible pipeline state.
type State uint8

const (
	// StateEmpty means no pipeline has ever been committed.
	StateEmpty State = iota
	// StateCompiling means a Create call is running.
	StateCompiling
	// StateReady means an active pipeline exists and nothing is compiling.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateCompiling:
		return "compiling"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Active is one committed pipeline. It is immutable once published and
// must not be released by readers.
type Active struct {
	Pipeline gpu.RenderPipeline
	Layout   gpu.PipelineLayout
	Module   *shader.Module
	Revision shaderlive.Revision

	// Reserved are the empty bind groups for slots below
	// uniform.GroupIndex. They are owned by the Manager.
	Reserved []gpu.BindGroup
}

func (a *Active) release() {
	if a.Pipeline != nil {
		a.Pipeline.Release()
	}
	if a.Layout != nil {
		a.Layout.Release()
	}
	a.Module.Release()
}

// Manager builds render pipelines from shader sources and publishes the
// newest successful one.
//
// The active pipeline lives in a single atomic slot written only by
// commit. Readers take one snapshot per frame with Active. A replaced
// pipeline is kept for one more generation before release so a frame
// that loaded it just before the swap can still submit.
//
// Manager is safe for concurrent use.
type Manager struct {
	device   gpu.Device
	compiler Compiler
	uniforms Uniforms
	format   gputypes.TextureFormat
	config   Config

	active   atomic.Pointer[Active]
	inflight atomic.Int32

	mu        sync.Mutex
	retired   *Active
	last      *shaderlive.Diagnostic
	empty     gpu.BindGroupLayout
	reserved  []gpu.BindGroup
	destroyed bool
}

// NewManager returns an empty Manager targeting format.
func NewManager(device gpu.Device, compiler Compiler, uniforms Uniforms, format gputypes.TextureFormat, cfg Config) *Manager {
	return &Manager{
		device:   device,
		compiler: compiler,
		uniforms: uniforms,
		format:   format,
		config:   cfg.withDefaults(),
	}
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.config }

// Create compiles src, builds a pipeline from it and commits the result.
//
// It returns true when the new pipeline became active. On failure it
// returns the diagnostic and the previous pipeline stays active. A result
// superseded by a newer committed revision is discarded and reported as
// (false, nil).
func (m *Manager) Create(ctx context.Context, src shaderlive.ShaderSource) (bool, *shaderlive.Diagnostic) {
	m.inflight.Add(1)
	defer m.inflight.Add(-1)
	log := shaderlive.Logger()

	res := m.compiler.Compile(ctx, src)
	if !res.OK() {
		return false, m.reject(res.Diagnostic)
	}

	next, diag := m.build(res.Module)
	if diag != nil {
		res.Module.Release()
		return false, m.reject(diag)
	}

	if !m.commit(next) {
		next.release()
		log.Debug("pipeline: discarded superseded result", "revision", src.Revision)
		return false, nil
	}

	m.mu.Lock()
	m.last = nil
	m.mu.Unlock()

	log.Info("pipeline: active", "revision", src.Revision)
	// Failure is logged by the uniform manager; the pipeline still runs.
	_ = m.uniforms.CreateBindGroup()
	return true, nil
}

// build turns a compiled module into an uncommitted Active.
func (m *Manager) build(mod *shader.Module) (*Active, *shaderlive.Diagnostic) {
	rev := mod.Revision
	iface := mod.Interface
	if !iface.HasEntryPoint(m.config.VertexEntryPoint, shader.StageVertex) {
		return nil, buildError(rev, "vertex entry point %q not found", m.config.VertexEntryPoint)
	}
	if !iface.HasEntryPoint(m.config.FragmentEntryPoint, shader.StageFragment) {
		return nil, buildError(rev, "fragment entry point %q not found", m.config.FragmentEntryPoint)
	}

	reserved, empty, err := m.reservedGroups()
	if err != nil {
		return nil, &shaderlive.Diagnostic{
			Kind:     shaderlive.KindResourceAllocation,
			Message:  err.Error(),
			Revision: rev,
		}
	}

	layouts := make([]gpu.BindGroupLayout, 0, uniform.GroupIndex+1)
	for range uniform.GroupIndex {
		layouts = append(layouts, empty)
	}
	layouts = append(layouts, m.uniforms.BindGroupLayout())

	layout, err := m.device.CreatePipelineLayout(&gpu.PipelineLayoutDescriptor{
		Label:            fmt.Sprintf("shaderlive-layout-r%d", rev),
		BindGroupLayouts: layouts,
	})
	if err != nil {
		return nil, buildError(rev, "create pipeline layout: %v", err)
	}

	pipe, err := m.createPipeline(&gpu.RenderPipelineDescriptor{
		Label:              fmt.Sprintf("shaderlive-pipeline-r%d", rev),
		Layout:             layout,
		Module:             mod.Handle,
		VertexEntryPoint:   m.config.VertexEntryPoint,
		FragmentEntryPoint: m.config.FragmentEntryPoint,
		VertexBuffers:      m.config.VertexBuffers,
		Primitive: gputypes.PrimitiveState{
			Topology: m.config.Topology,
			CullMode: gputypes.CullModeNone,
		},
		Targets: []gputypes.ColorTargetState{
			{Format: m.format, WriteMask: gputypes.ColorWriteMaskAll},
		},
	})
	if err != nil {
		layout.Release()
		return nil, buildError(rev, "%v", err)
	}

	return &Active{
		Pipeline: pipe,
		Layout:   layout,
		Module:   mod,
		Revision: rev,
		Reserved: reserved,
	}, nil
}

// createPipeline converts a device panic into an error.
func (m *Manager) createPipeline(desc *gpu.RenderPipelineDescriptor) (p gpu.RenderPipeline, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("%v", r)
		}
	}()
	return m.device.CreateRenderPipeline(desc)
}

// reservedGroups lazily creates the empty layout and bind group used for
// every slot below the globals group. gogpu/wgpu does not accept gaps in
// a pipeline layout.
func (m *Manager) reservedGroups() ([]gpu.BindGroup, gpu.BindGroupLayout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return nil, nil, errors.New("pipeline: manager destroyed")
	}
	if m.reserved != nil {
		return m.reserved, m.empty, nil
	}

	empty, err := m.device.CreateBindGroupLayout(&gpu.BindGroupLayoutDescriptor{
		Label: "shaderlive-empty-layout",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: create empty layout: %w", err)
	}
	group, err := m.device.CreateBindGroup(&gpu.BindGroupDescriptor{
		Label:  "shaderlive-empty",
		Layout: empty,
	})
	if err != nil {
		empty.Release()
		return nil, nil, fmt.Errorf("pipeline: create empty bind group: %w", err)
	}

	m.empty = empty
	m.reserved = make([]gpu.BindGroup, uniform.GroupIndex)
	for i := range m.reserved {
		m.reserved[i] = group
	}
	return m.reserved, m.empty, nil
}

// commit publishes next unless the slot already holds the same or a newer
// revision. It is the only writer of the active slot.
func (m *Manager) commit(next *Active) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return false
	}
	cur := m.active.Load()
	if cur != nil && !next.Revision.Newer(cur.Revision) {
		return false
	}
	m.active.Store(next)
	if m.retired != nil {
		m.retired.release()
	}
	m.retired = cur
	return true
}

// reject records d as the last diagnostic unless a newer revision is
// already active, and returns it.
func (m *Manager) reject(d *shaderlive.Diagnostic) *shaderlive.Diagnostic {
	shaderlive.Logger().Debug("pipeline: create failed", "revision", d.Revision, "kind", d.Kind, "err", d.Message)
	if cur := m.active.Load(); cur != nil && !d.Revision.Newer(cur.Revision) {
		return d
	}
	m.mu.Lock()
	if m.last == nil || !m.last.Revision.Newer(d.Revision) {
		m.last = d
	}
	m.mu.Unlock()
	return d
}

// Active returns the current pipeline snapshot, or nil.
func (m *Manager) Active() *Active {
	return m.active.Load()
}

// IsReady reports whether a pipeline is active.
func (m *Manager) IsReady() bool {
	return m.active.Load() != nil
}

// Revision returns the active revision, or 0.
func (m *Manager) Revision() shaderlive.Revision {
	if a := m.active.Load(); a != nil {
		return a.Revision
	}
	return 0
}

// State reports Compiling while a Create runs, else Ready or Empty.
func (m *Manager) State() State {
	if m.inflight.Load() > 0 {
		return StateCompiling
	}
	if m.IsReady() {
		return StateReady
	}
	return StateEmpty
}

// Last returns the most recent diagnostic, or nil after a success.
func (m *Manager) Last() *shaderlive.Diagnostic {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Destroy empties the slot and releases every pipeline object. Later
// Create calls compile but never commit.
func (m *Manager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return
	}
	m.destroyed = true

	if cur := m.active.Swap(nil); cur != nil {
		cur.release()
	}
	if m.retired != nil {
		m.retired.release()
		m.retired = nil
	}
	if len(m.reserved) > 0 {
		m.reserved[0].Release()
		m.reserved = nil
	}
	if m.empty != nil {
		m.empty.Release()
		m.empty = nil
	}
}

func buildError(rev shaderlive.Revision, format string, args ...any) *shaderlive.Diagnostic {
	return &shaderlive.Diagnostic{
		Kind:     shaderlive.KindPipelineBuild,
		Message:  fmt.Sprintf(format, args...),
		Revision: rev,
	}
}
