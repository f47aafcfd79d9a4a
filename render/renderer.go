// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/shaderlive"
	"github.com/gogpu/shaderlive/gpu"
	"github.com/gogpu/shaderlive/internal/clock"
	"github.com/gogpu/shaderlive/pipeline"
)

// ActiveSource provides the pipeline snapshot for a frame.
// *pipeline.Manager implements it.
type ActiveSource interface {
	Active() *pipeline.Active
}

// UniformSource refreshes the globals record once per frame.
// *uniform.Manager implements it.
type UniformSource interface {
	Update(width, height float32) shaderlive.UniformFrame
	BindGroup() gpu.BindGroup
}

// Option configures a Renderer.
type Option func(*options)

type options struct {
	clock     clock.Clock
	interval  time.Duration
	scheduler Scheduler
	clear     gputypes.Color
}

// WithClock sets the clock of the default scheduler.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithRefreshInterval sets the tick interval of the default scheduler.
// Non-positive values keep DefaultRefreshInterval.
func WithRefreshInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithScheduler replaces the default timer scheduler.
func WithScheduler(s Scheduler) Option {
	return func(o *options) { o.scheduler = s }
}

// WithClearColor sets the color every frame is cleared to before drawing.
func WithClearColor(c gputypes.Color) Option {
	return func(o *options) { o.clear = c }
}

// loop is one Start/Stop cycle of the render loop.
type loop struct {
	done    chan struct{}
	cancel  func()
	ticking bool
}

// Renderer renders the active pipeline into a Context's surface.
type Renderer struct {
	ctx       *gpu.Context
	pipelines ActiveSource
	uniforms  UniformSource
	scheduler Scheduler
	clear     gputypes.Color

	frameMu sync.Mutex // serializes frames

	mu       sync.Mutex
	vertices gpu.Buffer
	count    uint32
	loop     *loop
	lastDone chan struct{}

	frames  atomic.Uint64
	skipped atomic.Uint64
}

// New returns a stopped Renderer.
func New(ctx *gpu.Context, pipelines ActiveSource, uniforms UniformSource, opts ...Option) *Renderer {
	o := options{
		clock:    clock.Real{},
		interval: DefaultRefreshInterval,
		clear:    gputypes.Color{R: 0, G: 0, B: 0, A: 1},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.scheduler == nil {
		o.scheduler = intervalScheduler{clock: o.clock, interval: o.interval}
	}
	return &Renderer{
		ctx:       ctx,
		pipelines: pipelines,
		uniforms:  uniforms,
		scheduler: o.scheduler,
		clear:     o.clear,
	}
}

// SetVertexBuffer sets the buffer drawn at slot 0 and its vertex count.
// A nil buffer makes frames no-ops.
func (r *Renderer) SetVertexBuffer(buf gpu.Buffer, vertexCount uint32) {
	r.mu.Lock()
	r.vertices, r.count = buf, vertexCount
	r.mu.Unlock()
}

// Render draws one frame. It returns false when nothing was presented:
// no pipeline or vertex buffer yet, or the surface or device rejected the
// frame. Failures are logged and never stop the loop.
func (r *Renderer) Render() bool {
	r.frameMu.Lock()
	defer r.frameMu.Unlock()
	log := shaderlive.Logger()

	active := r.pipelines.Active()
	r.mu.Lock()
	vb, count := r.vertices, r.count
	r.mu.Unlock()
	if active == nil || vb == nil {
		log.Debug("cannot render: pipeline or vertex buffer not ready")
		return false
	}

	dev, err := r.ctx.Device()
	if err != nil {
		log.Debug("render: no device", "err", err)
		return false
	}
	surface, err := r.ctx.Surface()
	if err != nil {
		log.Debug("render: no surface", "err", err)
		return false
	}

	w, h := r.ctx.Size()
	r.uniforms.Update(float32(w), float32(h))

	frame, err := surface.Acquire()
	if err != nil {
		r.skipped.Add(1)
		log.Warn("render: acquire failed; frame skipped", "err", err)
		return false
	}

	groups := make([]gpu.BindGroup, 0, len(active.Reserved)+1)
	groups = append(groups, active.Reserved...)
	groups = append(groups, r.uniforms.BindGroup())

	err = dev.Draw(frame, &gpu.DrawPass{
		Label:         "shaderlive-frame",
		Clear:         r.clear,
		Pipeline:      active.Pipeline,
		BindGroups:    groups,
		VertexBuffers: []gpu.Buffer{vb},
		VertexCount:   count,
		InstanceCount: 1,
	})
	if err != nil {
		frame.Discard()
		r.skipped.Add(1)
		log.Warn("render: draw failed; frame skipped", "revision", active.Revision, "err", err)
		return false
	}
	if err := frame.Present(); err != nil {
		r.skipped.Add(1)
		log.Warn("render: present failed", "err", err)
		return false
	}
	r.frames.Add(1)
	return true
}

// RequestFrame renders one frame outside the loop, e.g. after a resize.
func (r *Renderer) RequestFrame() bool {
	return r.Render()
}

// Reconfigure runs fn while no frame is being encoded. Surface changes
// such as a resize go through it so a frame never draws into a target that
// fn released.
func (r *Renderer) Reconfigure(fn func() error) error {
	r.frameMu.Lock()
	defer r.frameMu.Unlock()
	return fn()
}

// StartRenderLoop starts ticking. Calling it while running does nothing.
func (r *Renderer) StartRenderLoop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loop != nil {
		return
	}
	l := &loop{done: make(chan struct{})}
	r.loop = l
	r.lastDone = l.done
	r.scheduleLocked(l)
	shaderlive.Logger().Debug("render: loop started")
}

func (r *Renderer) scheduleLocked(l *loop) {
	l.cancel = r.scheduler.Next(func() { r.tick(l) })
}

func (r *Renderer) tick(l *loop) {
	r.mu.Lock()
	if r.loop != l {
		r.mu.Unlock()
		return
	}
	l.ticking = true
	r.mu.Unlock()

	r.Render()

	r.mu.Lock()
	defer r.mu.Unlock()
	l.ticking = false
	if r.loop == l {
		r.scheduleLocked(l)
		return
	}
	close(l.done)
}

// StopRenderLoop stops ticking and cancels the pending tick. It does not
// wait for a frame in progress; use Wait for that.
func (r *Renderer) StopRenderLoop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	l := r.loop
	if l == nil {
		return
	}
	r.loop = nil
	if l.cancel != nil {
		l.cancel()
	}
	if !l.ticking {
		close(l.done)
	}
	shaderlive.Logger().Debug("render: loop stopped", "frames", r.frames.Load())
}

// IsRendering reports whether the loop is running.
func (r *Renderer) IsRendering() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loop != nil
}

// Wait blocks until the most recently started loop has stopped and its
// last frame has finished. It returns immediately if no loop was started.
func (r *Renderer) Wait() {
	r.mu.Lock()
	done := r.lastDone
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Frames returns the number of presented frames.
func (r *Renderer) Frames() uint64 { return r.frames.Load() }

// Skipped returns the number of frames dropped after a surface or device
// error.
func (r *Renderer) Skipped() uint64 { return r.skipped.Load() }
