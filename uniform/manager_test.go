// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package uniform

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/shaderlive"
	"github.com/gogpu/shaderlive/gpu"
	"github.com/gogpu/shaderlive/internal/clock"
	"github.com/gogpu/shaderlive/internal/gputest"
)

// deviceFactory allocates uniform buffers directly on a test device.
type deviceFactory struct {
	dev *gputest.Device
}

func (f deviceFactory) CreateUniformBuffer(size uint64) (gpu.Buffer, error) {
	return f.dev.CreateBuffer(&gpu.BufferDescriptor{
		Label: "test-uniform",
		Size:  size,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
}

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T) (*Manager, *gputest.Device, *clock.Manual) {
	t.Helper()
	dev := gputest.NewDevice()
	clk := clock.NewManual(epoch)
	m, err := NewManager(dev, deviceFactory{dev}, clk)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(m.Release)
	return m, dev, clk
}

func approx(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-5
}

func TestNewManager(t *testing.T) {
	m, dev, _ := newTestManager(t)

	if m.Buffer().Size() != shaderlive.UniformBufferSize {
		t.Errorf("Buffer().Size() = %d, want %d", m.Buffer().Size(), shaderlive.UniformBufferSize)
	}
	layouts := dev.BindGroupLayouts()
	if len(layouts) != 1 || len(layouts[0].Entries) != 1 {
		t.Fatalf("layouts = %+v, want one layout with one entry", layouts)
	}
	e := layouts[0].Entries[0]
	if e.Binding != Binding {
		t.Errorf("Binding = %d, want %d", e.Binding, Binding)
	}
	if e.Visibility != gputypes.ShaderStagesVertexFragment {
		t.Errorf("Visibility = %v, want vertex|fragment", e.Visibility)
	}
	if e.Buffer == nil || e.Buffer.Type != gputypes.BufferBindingTypeUniform {
		t.Errorf("Buffer binding = %+v, want uniform", e.Buffer)
	}
	if m.BindGroup() != nil {
		t.Error("BindGroup() before CreateBindGroup = non-nil, want nil")
	}
}

func TestNewManagerLayoutFailure(t *testing.T) {
	dev := gputest.NewDevice()
	dev.FailOn("CreateBindGroupLayout", errors.New("no layouts"))
	_, err := NewManager(dev, deviceFactory{dev}, nil)
	if !errors.Is(err, shaderlive.ErrResourceAllocation) {
		t.Fatalf("NewManager() error = %v, want ErrResourceAllocation", err)
	}
	if dev.Live("buffer") != 0 {
		t.Error("uniform buffer leaked after layout failure")
	}
}

func TestManagerUpdate(t *testing.T) {
	m, dev, clk := newTestManager(t)
	m.UpdateMousePosition(0.25, 0.75)
	m.UpdateMouseClick(0.5, 0.5)
	m.UpdateMouseButtons(shaderlive.ButtonPrimary | shaderlive.ButtonMiddle)

	clk.Advance(500 * time.Millisecond)
	f0 := m.Update(800, 600)

	if f0.Frame != 0 {
		t.Errorf("first Frame = %d, want 0", f0.Frame)
	}
	if !approx(f0.Time, 0.5) || !approx(f0.TimeDelta, 0.5) {
		t.Errorf("Time/TimeDelta = %v/%v, want 0.5/0.5", f0.Time, f0.TimeDelta)
	}

	clk.Advance(16 * time.Millisecond)
	f1 := m.Update(800, 600)
	if f1.Frame != 1 {
		t.Errorf("second Frame = %d, want 1", f1.Frame)
	}
	if !approx(f1.Time, 0.516) || !approx(f1.TimeDelta, 0.016) {
		t.Errorf("Time/TimeDelta = %v/%v, want 0.516/0.016", f1.Time, f1.TimeDelta)
	}

	writes := dev.Writes()
	if len(writes) != 2 {
		t.Fatalf("writes = %d, want 2", len(writes))
	}
	w := writes[1]
	if w.Buffer != m.Buffer() || w.Offset != 0 || len(w.Data) != shaderlive.UniformBufferSize {
		t.Fatalf("write = buffer %v offset %d len %d, want uniform buffer, 0, 48", w.Buffer, w.Offset, len(w.Data))
	}
	got, err := shaderlive.DecodeUniformFrame(w.Data)
	if err != nil {
		t.Fatalf("DecodeUniformFrame() error = %v", err)
	}
	want := shaderlive.UniformFrame{
		Time:      f1.Time,
		TimeDelta: f1.TimeDelta,
		Frame:     1,
		Width:     800,
		Height:    600,
		Pointer: shaderlive.PointerState{
			X: 0.25, Y: 0.75,
			ClickX: 0.5, ClickY: 0.5,
			Buttons: shaderlive.ButtonPrimary | shaderlive.ButtonMiddle,
		},
	}
	if got != want {
		t.Errorf("uploaded frame = %+v, want %+v", got, want)
	}
	if m.LastFrame() != f1 {
		t.Errorf("LastFrame() = %+v, want %+v", m.LastFrame(), f1)
	}
}

func TestManagerFrameCounter(t *testing.T) {
	m, _, clk := newTestManager(t)
	for i := 0; i < 10; i++ {
		clk.Advance(time.Millisecond)
		if f := m.Update(1, 1); f.Frame != uint32(i) {
			t.Fatalf("Update() #%d Frame = %d, want %d", i, f.Frame, i)
		}
	}
	if s := m.Snapshot(); s.Frame != 10 {
		t.Errorf("Snapshot().Frame = %d, want 10", s.Frame)
	}
	// Snapshot does not advance the counter.
	if s := m.Snapshot(); s.Frame != 10 {
		t.Errorf("second Snapshot().Frame = %d, want 10", s.Frame)
	}

	clk.Advance(time.Second)
	m.Reset()
	f := m.Update(1, 1)
	if f.Frame != 0 || f.Time != 0 || f.TimeDelta != 0 {
		t.Errorf("Update() after Reset = %+v, want zero time and frame", f)
	}
}

func TestManagerUploadFailure(t *testing.T) {
	m, dev, _ := newTestManager(t)
	dev.FailOn("WriteBuffer", errors.New("queue lost"))
	m.Update(1, 1)
	if f := m.Update(1, 1); f.Frame != 1 {
		t.Errorf("Frame after failed upload = %d, want 1", f.Frame)
	}
}

func TestCreateBindGroup(t *testing.T) {
	m, dev, _ := newTestManager(t)

	if err := m.CreateBindGroup(); err != nil {
		t.Fatalf("CreateBindGroup() error = %v", err)
	}
	first := m.BindGroup()
	if err := m.CreateBindGroup(); err != nil {
		t.Fatalf("second CreateBindGroup() error = %v", err)
	}
	second := m.BindGroup()

	if first == nil || second != first {
		t.Fatal("second CreateBindGroup() did not keep the group")
	}
	if first.(*gputest.Handle).Released() {
		t.Error("kept group released")
	}
	if n := len(dev.BindGroups()); n != 1 {
		t.Errorf("bind groups created = %d, want 1", n)
	}
	if n := dev.Live("bind-group"); n != 1 {
		t.Errorf("live bind groups = %d, want 1", n)
	}

	desc := dev.BindGroups()[0]
	if desc.Layout != m.BindGroupLayout() {
		t.Error("bind group does not use the manager layout")
	}
	if len(desc.Entries) != 1 || desc.Entries[0].Binding != Binding || desc.Entries[0].Buffer != m.Buffer() {
		t.Errorf("entries = %+v, want the uniform buffer at binding 0", desc.Entries)
	}
}

func TestCreateBindGroupFailure(t *testing.T) {
	m, dev, _ := newTestManager(t)

	dev.FailOn("CreateBindGroup", errors.New("layout mismatch"))
	if err := m.CreateBindGroup(); !errors.Is(err, shaderlive.ErrResourceAllocation) {
		t.Errorf("failing CreateBindGroup() error = %v, want ErrResourceAllocation", err)
	}
	if m.BindGroup() != nil {
		t.Error("BindGroup() after failure = non-nil, want nil")
	}

	dev.ClearFailures()
	if err := m.CreateBindGroup(); err != nil {
		t.Fatalf("CreateBindGroup() after failure error = %v", err)
	}
	if m.BindGroup() == nil {
		t.Error("BindGroup() after retry = nil")
	}
}

func TestManagerRelease(t *testing.T) {
	dev := gputest.NewDevice()
	m, err := NewManager(dev, deviceFactory{dev}, clock.NewManual(epoch))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	_ = m.CreateBindGroup()
	m.Release()
	if n := dev.Live(""); n != 0 {
		t.Errorf("live handles after Release = %d, want 0", n)
	}
}

// pointerSource records the registered pointer callback.
type pointerSource struct {
	fn func(gpucontext.PointerEvent)
}

func (s *pointerSource) OnPointer(fn func(gpucontext.PointerEvent)) { s.fn = fn }

// mouseSource records mouse callbacks and ignores everything else.
type mouseSource struct {
	gpucontext.NullEventSource
	move    func(x, y float64)
	press   func(gpucontext.MouseButton, float64, float64)
	release func(gpucontext.MouseButton, float64, float64)
}

func (s *mouseSource) OnMouseMove(fn func(x, y float64)) { s.move = fn }
func (s *mouseSource) OnMousePress(fn func(gpucontext.MouseButton, float64, float64)) {
	s.press = fn
}
func (s *mouseSource) OnMouseRelease(fn func(gpucontext.MouseButton, float64, float64)) {
	s.release = fn
}

func fixedSize(w, h float64) SizeFunc {
	return func() (float64, float64) { return w, h }
}

func TestAttachPointer(t *testing.T) {
	m, _, _ := newTestManager(t)
	src := &pointerSource{}
	sub := m.AttachPointer(src, fixedSize(200, 100))

	steps := []struct {
		name string
		ev   gpucontext.PointerEvent
		want shaderlive.PointerState
	}{
		{
			name: "move",
			ev:   gpucontext.PointerEvent{Type: gpucontext.PointerMove, X: 50, Y: 25},
			want: shaderlive.PointerState{X: 0.25, Y: 0.75},
		},
		{
			name: "left down",
			ev:   gpucontext.PointerEvent{Type: gpucontext.PointerDown, X: 100, Y: 50, Button: gpucontext.ButtonLeft},
			want: shaderlive.PointerState{X: 0.25, Y: 0.75, ClickX: 0.5, ClickY: 0.5, Buttons: shaderlive.ButtonPrimary},
		},
		{
			name: "right down",
			ev:   gpucontext.PointerEvent{Type: gpucontext.PointerDown, X: 200, Y: 0, Button: gpucontext.ButtonRight},
			want: shaderlive.PointerState{X: 0.25, Y: 0.75, ClickX: 1, ClickY: 1, Buttons: shaderlive.ButtonPrimary | shaderlive.ButtonSecondary},
		},
		{
			name: "left up keeps click",
			ev:   gpucontext.PointerEvent{Type: gpucontext.PointerUp, X: 200, Y: 0, Button: gpucontext.ButtonLeft},
			want: shaderlive.PointerState{X: 0.25, Y: 0.75, ClickX: 1, ClickY: 1, Buttons: shaderlive.ButtonSecondary},
		},
		{
			name: "outside is unclamped",
			ev:   gpucontext.PointerEvent{Type: gpucontext.PointerMove, X: 400, Y: 200},
			want: shaderlive.PointerState{X: 2, Y: -1, ClickX: 1, ClickY: 1, Buttons: shaderlive.ButtonSecondary},
		},
		{
			name: "cancel clears buttons",
			ev:   gpucontext.PointerEvent{Type: gpucontext.PointerCancel},
			want: shaderlive.PointerState{X: 2, Y: -1, ClickX: 1, ClickY: 1},
		},
	}
	for _, st := range steps {
		src.fn(st.ev)
		if got := m.Pointer(); got != st.want {
			t.Errorf("%s: Pointer() = %+v, want %+v", st.name, got, st.want)
		}
	}

	sub.Detach()
	if sub.Active() {
		t.Error("Active() after Detach = true, want false")
	}
	before := m.Pointer()
	src.fn(gpucontext.PointerEvent{Type: gpucontext.PointerDown, X: 0, Y: 0, Button: gpucontext.ButtonMiddle})
	if got := m.Pointer(); got != before {
		t.Errorf("Pointer() after Detach = %+v, want unchanged %+v", got, before)
	}
}

func TestAttachMouse(t *testing.T) {
	m, _, _ := newTestManager(t)
	src := &mouseSource{}
	m.AttachMouse(src, fixedSize(100, 100))

	src.move(10, 90)
	src.press(gpucontext.MouseButtonMiddle, 20, 80)
	src.press(gpucontext.MouseButtonRight, 20, 80)

	got := m.Pointer()
	want := shaderlive.PointerState{
		X: 0.1, Y: 0.1,
		ClickX: 0.2, ClickY: 0.2,
		Buttons: shaderlive.ButtonMiddle | shaderlive.ButtonSecondary,
	}
	if !approx(got.X, want.X) || !approx(got.Y, want.Y) || !approx(got.ClickX, want.ClickX) || !approx(got.ClickY, want.ClickY) {
		t.Errorf("Pointer() = %+v, want %+v", got, want)
	}
	if got.Buttons != want.Buttons {
		t.Errorf("Buttons = %v, want %v", got.Buttons, want.Buttons)
	}

	src.release(gpucontext.MouseButtonMiddle, 0, 0)
	if b := m.Pointer().Buttons; b != shaderlive.ButtonSecondary {
		t.Errorf("Buttons after release = %v, want secondary", b)
	}
}

// A press records the click without moving the pointer: the next frame
// still carries the position of the last move.
func TestPointerPressKeepsPosition(t *testing.T) {
	m, dev, _ := newTestManager(t)
	src := &pointerSource{}
	m.AttachPointer(src, fixedSize(100, 100))

	src.fn(gpucontext.PointerEvent{Type: gpucontext.PointerMove, X: 25, Y: 25})
	src.fn(gpucontext.PointerEvent{Type: gpucontext.PointerDown, X: 50, Y: 50, Button: gpucontext.ButtonLeft})
	m.Update(100, 100)

	writes := dev.Writes()
	if len(writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(writes))
	}
	f, err := shaderlive.DecodeUniformFrame(writes[0].Data)
	if err != nil {
		t.Fatalf("DecodeUniformFrame() error = %v", err)
	}
	want := shaderlive.PointerState{X: 0.25, Y: 0.75, ClickX: 0.5, ClickY: 0.5, Buttons: shaderlive.ButtonPrimary}
	if f.Pointer != want {
		t.Errorf("uploaded pointer = %+v, want %+v", f.Pointer, want)
	}
}

// blockingDevice parks WriteBuffer until release is closed.
type blockingDevice struct {
	*gputest.Device
	entered chan struct{}
	release chan struct{}
}

func (d *blockingDevice) WriteBuffer(buf gpu.Buffer, offset uint64, data []byte) error {
	close(d.entered)
	<-d.release
	return d.Device.WriteBuffer(buf, offset, data)
}

func TestPointerSettersDuringUpload(t *testing.T) {
	inner := gputest.NewDevice()
	dev := &blockingDevice{Device: inner, entered: make(chan struct{}), release: make(chan struct{})}
	m, err := NewManager(dev, deviceFactory{inner}, clock.NewManual(epoch))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(m.Release)

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Update(10, 10)
	}()
	<-dev.entered

	set := make(chan struct{})
	go func() {
		defer close(set)
		m.UpdateMousePosition(0.5, 0.5)
		m.UpdateMouseButtons(shaderlive.ButtonPrimary)
	}()
	select {
	case <-set:
	case <-time.After(5 * time.Second):
		t.Fatal("pointer setters blocked behind the upload")
	}

	close(dev.release)
	<-done
	if got := m.Pointer(); got.X != 0.5 || got.Buttons != shaderlive.ButtonPrimary {
		t.Errorf("Pointer() = %+v, want X 0.5 with primary pressed", got)
	}
}

func TestPointerUpdatesConcurrentWithFrames(t *testing.T) {
	m, _, clk := newTestManager(t)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			m.UpdateMousePosition(float32(i), float32(i))
		}
	}()
	for i := 0; i < 200; i++ {
		clk.Advance(time.Millisecond)
		f := m.Update(10, 10)
		// Each field pair is written under one lock.
		if f.Pointer.X != f.Pointer.Y {
			t.Fatalf("torn pointer position %v/%v", f.Pointer.X, f.Pointer.Y)
		}
	}
	wg.Wait()
}
