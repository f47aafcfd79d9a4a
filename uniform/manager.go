// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package uniform owns the per-frame globals record bound at
// @group(3) @binding(0) of every shader.
//
// The Manager keeps the clock, the frame counter and the pointer state,
// encodes them into the 48-byte layout of [shaderlive.UniformFrame] once per
// frame and uploads the result to its uniform buffer.
package uniform

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/shaderlive"
	"github.com/gogpu/shaderlive/gpu"
	"github.com/gogpu/shaderlive/internal/clock"
)

const (
	// GroupIndex is the bind group slot of the globals record.
	GroupIndex = 3
	// Binding is the binding number of the globals record in its group.
	Binding = 0
)

// BufferFactory allocates the uniform buffer. *gpu.Factory implements it.
type BufferFactory interface {
	CreateUniformBuffer(size uint64) (gpu.Buffer, error)
}

// Manager is the uniform state manager.
//
// Update is called from the render loop; pointer setters from the host's
// input goroutine. Each pointer field is last-write-wins and is observed by
// the next Update, so an event may land one frame late.
//
// Manager is safe for concurrent use.
type Manager struct {
	device gpu.Device
	clock  clock.Clock
	buffer gpu.Buffer
	layout gpu.BindGroupLayout

	bindMu   sync.Mutex // serializes CreateBindGroup
	uploadMu sync.Mutex // keeps uploads in frame order

	mu        sync.Mutex
	start     time.Time
	lastFrame time.Time
	frame     uint32
	pointer   shaderlive.PointerState
	last      shaderlive.UniformFrame
	group     gpu.BindGroup
}

// NewManager allocates the uniform buffer and its bind group layout
// (binding 0, vertex and fragment visibility, uniform type). A nil clk
// uses the wall clock.
func NewManager(device gpu.Device, factory BufferFactory, clk clock.Clock) (*Manager, error) {
	if clk == nil {
		clk = clock.Real{}
	}
	buf, err := factory.CreateUniformBuffer(shaderlive.UniformBufferSize)
	if err != nil {
		return nil, err
	}
	layout, err := device.CreateBindGroupLayout(&gpu.BindGroupLayoutDescriptor{
		Label: "shaderlive-globals-layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    Binding,
				Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
				Buffer: &gputypes.BufferBindingLayout{
					Type:           gputypes.BufferBindingTypeUniform,
					MinBindingSize: shaderlive.UniformBufferSize,
				},
			},
		},
	})
	if err != nil {
		buf.Release()
		return nil, fmt.Errorf("uniform: create bind group layout: %w: %w", shaderlive.ErrResourceAllocation, err)
	}

	now := clk.Now()
	return &Manager{
		device:    device,
		clock:     clk,
		buffer:    buf,
		layout:    layout,
		start:     now,
		lastFrame: now,
	}, nil
}

// Update writes the record for the frame about to be rendered and
// advances the frame counter. The first frame after creation or Reset
// carries Frame 0. An upload failure is logged and the counter still
// advances.
//
// The upload runs outside the state lock, so pointer setters never wait
// on the device.
func (m *Manager) Update(width, height float32) shaderlive.UniformFrame {
	m.uploadMu.Lock()
	defer m.uploadMu.Unlock()

	m.mu.Lock()
	now := m.clock.Now()
	f := shaderlive.UniformFrame{
		Time:      float32(now.Sub(m.start).Seconds()),
		TimeDelta: float32(now.Sub(m.lastFrame).Seconds()),
		Frame:     m.frame,
		Width:     width,
		Height:    height,
		Pointer:   m.pointer,
	}
	m.lastFrame = now
	m.frame++
	m.last = f
	m.mu.Unlock()

	var buf [shaderlive.UniformBufferSize]byte
	f.Encode(buf[:])
	if err := m.device.WriteBuffer(m.buffer, 0, buf[:]); err != nil {
		shaderlive.Logger().Warn("uniform: upload failed", "frame", f.Frame, "err", err)
	}
	return f
}

// Snapshot returns the record Update would write now without advancing
// anything. The resolution is taken from the last Update.
func (m *Manager) Snapshot() shaderlive.UniformFrame {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	return shaderlive.UniformFrame{
		Time:      float32(now.Sub(m.start).Seconds()),
		TimeDelta: float32(now.Sub(m.lastFrame).Seconds()),
		Frame:     m.frame,
		Width:     m.last.Width,
		Height:    m.last.Height,
		Pointer:   m.pointer,
	}
}

// LastFrame returns the record written by the last Update.
func (m *Manager) LastFrame() shaderlive.UniformFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Reset restarts the clock and the frame counter.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	m.start, m.lastFrame = now, now
	m.frame = 0
}

// UpdateMousePosition sets the normalized pointer position.
func (m *Manager) UpdateMousePosition(x, y float32) {
	m.mu.Lock()
	m.pointer.X, m.pointer.Y = x, y
	m.mu.Unlock()
}

// UpdateMouseClick sets the normalized position of the last press.
func (m *Manager) UpdateMouseClick(x, y float32) {
	m.mu.Lock()
	m.pointer.ClickX, m.pointer.ClickY = x, y
	m.mu.Unlock()
}

// UpdateMouseButtons replaces the pressed-button mask.
func (m *Manager) UpdateMouseButtons(b shaderlive.Buttons) {
	m.mu.Lock()
	m.pointer.Buttons = b
	m.mu.Unlock()
}

// press records a button press at a normalized position.
func (m *Manager) press(b shaderlive.Buttons, x, y float32) {
	m.mu.Lock()
	m.pointer.ClickX, m.pointer.ClickY = x, y
	m.pointer.Buttons |= b
	m.mu.Unlock()
}

func (m *Manager) release(b shaderlive.Buttons) {
	m.mu.Lock()
	m.pointer.Buttons &^= b
	m.mu.Unlock()
}

// Pointer returns the current pointer state.
func (m *Manager) Pointer() shaderlive.PointerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pointer
}

// CreateBindGroup makes sure the bind group exposing the buffer at Binding
// exists. The layout and buffer are fixed for the Manager's lifetime, so
// an existing group is kept: a frame may still be encoding with it. Only an
// unset binding is created. On failure the binding stays unset, the
// failure is logged and returned; rendering continues without globals.
func (m *Manager) CreateBindGroup() error {
	m.bindMu.Lock()
	defer m.bindMu.Unlock()
	if m.BindGroup() != nil {
		return nil
	}

	g, err := m.device.CreateBindGroup(&gpu.BindGroupDescriptor{
		Label:  "shaderlive-globals",
		Layout: m.layout,
		Entries: []gpu.BindGroupEntry{
			{Binding: Binding, Buffer: m.buffer, Size: shaderlive.UniformBufferSize},
		},
	})
	if err != nil {
		shaderlive.Logger().Warn("uniform: could not create bind group; shader may not use globals", "err", err)
		return fmt.Errorf("uniform: create bind group: %w: %w", shaderlive.ErrResourceAllocation, err)
	}
	m.mu.Lock()
	m.group = g
	m.mu.Unlock()
	shaderlive.Logger().Debug("uniform: bind group created")
	return nil
}

// BindGroup returns the current bind group, or nil when unset.
func (m *Manager) BindGroup() gpu.BindGroup {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.group
}

// BindGroupLayout returns the layout used at GroupIndex.
func (m *Manager) BindGroupLayout() gpu.BindGroupLayout { return m.layout }

// Buffer returns the uniform buffer.
func (m *Manager) Buffer() gpu.Buffer { return m.buffer }

// Release releases the bind group, the layout and the buffer.
func (m *Manager) Release() {
	m.mu.Lock()
	g := m.group
	m.group = nil
	m.mu.Unlock()

	if g != nil {
		g.Release()
	}
	m.layout.Release()
	m.buffer.Release()
}
