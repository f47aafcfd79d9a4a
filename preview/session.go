// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package preview ties the shaderlive components into a live preview
// Session.
//
// A Session owns one uniform manager, compiler, pipeline manager, renderer
// and coalescer on a caller-provided gpu.Context. Shader text enters
// through UpdateShader or HandleMessage; results leave through the
// diagnostic Board and the configured notifiers.
//
//	s, err := preview.New(gc, preview.WithNotifier(server))
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//	s.Start()
//	s.UpdateShader(code)
package preview

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/gogpu/shaderlive"
	"github.com/gogpu/shaderlive/coalesce"
	"github.com/gogpu/shaderlive/gpu"
	"github.com/gogpu/shaderlive/pipeline"
	"github.com/gogpu/shaderlive/render"
	"github.com/gogpu/shaderlive/shader"
	"github.com/gogpu/shaderlive/transport"
	"github.com/gogpu/shaderlive/uniform"
)

// ErrClosed is returned by operations on a closed Session.
var ErrClosed = errors.New("preview: session closed")

// Pointer is the pointer input of a Session, in normalized [0,1]
// coordinates with the origin at the bottom left.
type Pointer interface {
	UpdateMousePosition(x, y float32)
	UpdateMouseClick(x, y float32)
	UpdateMouseButtons(b shaderlive.Buttons)
}

// Session is a live shader preview on one surface.
//
// Session is safe for concurrent use.
type Session struct {
	gc        *gpu.Context
	uniforms  *uniform.Manager
	compiler  *shader.Compiler
	pipelines *pipeline.Manager
	renderer  *render.Renderer
	coalescer *coalesce.Coalescer
	board     Board
	quad      gpu.Buffer
	revisions shaderlive.RevisionCounter

	notifiers   []transport.Notifier
	diagnostics []DiagnosticFunc
	window      windowScale
	subs        []*uniform.Subscription

	mu      sync.Mutex
	started bool
	closed  bool
	held    shaderlive.ShaderSource
}

// windowScale converts host window units to device pixels.
type windowScale struct {
	size  func() (float64, float64)
	scale func() float64
}

// New builds a stopped Session on gc. No shader is compiled before Start.
func New(gc *gpu.Context, opts ...Option) (*Session, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	device, err := gc.Device()
	if err != nil {
		return nil, err
	}
	format, err := gc.Format()
	if err != nil {
		return nil, err
	}
	factory := gpu.NewFactory(gc)

	s := &Session{
		gc:          gc,
		notifiers:   o.notifiers,
		diagnostics: o.diagnostics,
	}
	s.window = s.newWindowScale(o)

	s.uniforms, err = uniform.NewManager(device, factory, o.clock)
	if err != nil {
		return nil, fmt.Errorf("preview: %w", err)
	}
	if err := s.uniforms.CreateBindGroup(); err != nil {
		// A pipeline commit retries the bind group.
		shaderlive.Logger().Warn("preview: globals bind group unavailable", "err", err)
	}

	s.quad, err = factory.CreateVertexBuffer(gpu.FullscreenQuad())
	if err != nil {
		s.uniforms.Release()
		return nil, fmt.Errorf("preview: %w", err)
	}

	var compilerOpts []shader.Option
	if o.cacheSize >= 0 {
		compilerOpts = append(compilerOpts, shader.WithCacheSize(o.cacheSize))
	}
	s.compiler = shader.NewCompiler(device, compilerOpts...)
	s.pipelines = pipeline.NewManager(device, s.compiler, s.uniforms, format, o.pipeline)

	renderOpts := []render.Option{
		render.WithClock(o.clock),
		render.WithRefreshInterval(o.refresh),
	}
	if o.scheduler != nil {
		renderOpts = append(renderOpts, render.WithScheduler(o.scheduler))
	}
	if o.clear != nil {
		renderOpts = append(renderOpts, render.WithClearColor(*o.clear))
	}
	s.renderer = render.New(gc, s.pipelines, s.uniforms, renderOpts...)
	s.renderer.SetVertexBuffer(s.quad, gpu.QuadVertexCount)

	s.coalescer = coalesce.New(context.Background(), s.build, o.quiescence, o.clock)

	if o.pointers != nil {
		s.subs = append(s.subs, s.uniforms.AttachPointer(o.pointers, s.window.size))
	}
	if o.events != nil {
		s.subs = append(s.subs, s.uniforms.AttachMouse(o.events, s.window.size))
		resize := &uniform.Subscription{}
		o.events.OnResize(func(w, h int) {
			if !resize.Active() {
				return
			}
			scale := s.window.scale()
			if err := s.Resize(devicePixels(w, scale), devicePixels(h, scale)); err != nil {
				shaderlive.Logger().Warn("preview: resize failed", "err", err)
			}
		})
		s.subs = append(s.subs, resize)
	}
	return s, nil
}

// newWindowScale uses the host window when one is configured, otherwise
// the surface size at scale 1.
func (s *Session) newWindowScale(o options) windowScale {
	if o.window != nil {
		return windowScale{
			size: func() (float64, float64) {
				w, h := o.window.Size()
				return float64(w), float64(h)
			},
			scale: o.window.ScaleFactor,
		}
	}
	return windowScale{
		size: func() (float64, float64) {
			w, h := s.gc.Size()
			return float64(w), float64(h)
		},
		scale: func() float64 { return 1 },
	}
}

func devicePixels(logical int, scale float64) uint32 {
	if logical <= 0 {
		return 0
	}
	if scale <= 0 {
		scale = 1
	}
	return uint32(math.Round(float64(logical) * scale))
}

// Start enables compilation. A source received before Start is compiled
// immediately, without waiting for the quiescence window.
func (s *Session) Start() {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	held := s.held
	s.held = shaderlive.ShaderSource{}
	s.mu.Unlock()

	if !held.IsZero() {
		s.coalescer.Push(held)
		s.coalescer.Flush()
	}
}

// UpdateShader stamps code with the next revision and schedules it. It
// returns the assigned revision, or zero after Close.
func (s *Session) UpdateShader(code string) shaderlive.Revision {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0
	}
	src := s.revisions.Next(code)
	if !s.started {
		s.held = src
		s.mu.Unlock()
		shaderlive.Logger().Debug("preview: shader held until start", "revision", src.Revision)
		return src.Revision
	}
	s.mu.Unlock()

	s.coalescer.Push(src)
	return src.Revision
}

// HandleMessage implements transport.Handler.
func (s *Session) HandleMessage(m transport.Message) {
	switch m.Command {
	case transport.CommandUpdateShader:
		s.UpdateShader(m.Code)
	default:
		shaderlive.Logger().Warn("preview: unknown command ignored", "command", m.Command)
	}
}

// build is the coalescer target.
func (s *Session) build(ctx context.Context, src shaderlive.ShaderSource) bool {
	ok, d := s.pipelines.Create(ctx, src)
	if ok {
		if s.board.Clear(src.Revision) {
			s.notify(transport.Ready(src.Revision))
		}
		s.renderer.StartRenderLoop()
		return true
	}
	if d == nil {
		return false
	}
	if s.board.Set(d) {
		shaderlive.Logger().Warn("preview: shader rejected",
			"revision", d.Revision, "kind", d.Kind, "line", d.Position.Line, "err", d.Message)
		s.notify(transport.DiagnosticNotification(d))
		for _, fn := range s.diagnostics {
			fn(d, src)
		}
	}
	return false
}

func (s *Session) notify(n transport.Notification) {
	for _, nt := range s.notifiers {
		nt.Notify(n)
	}
}

// Resize reconfigures the surface in device pixels and redraws when a
// pipeline is active.
func (s *Session) Resize(width, height uint32) error {
	if s.isClosed() {
		return ErrClosed
	}
	err := s.renderer.Reconfigure(func() error {
		return s.gc.Resize(width, height)
	})
	if err != nil {
		return err
	}
	if s.pipelines.IsReady() {
		s.renderer.RequestFrame()
	}
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Flush compiles the latest source now instead of after the quiescence
// window.
func (s *Session) Flush() {
	s.coalescer.Flush()
}

// Diagnostics returns the diagnostic board.
func (s *Session) Diagnostics() *Board { return &s.board }

// Pointer returns the pointer input.
func (s *Session) Pointer() Pointer { return s.uniforms }

// Pipelines returns the pipeline manager.
func (s *Session) Pipelines() *pipeline.Manager { return s.pipelines }

// Renderer returns the renderer.
func (s *Session) Renderer() *render.Renderer { return s.renderer }

// Uniforms returns the uniform manager.
func (s *Session) Uniforms() *uniform.Manager { return s.uniforms }

// Compiler returns the shader compiler.
func (s *Session) Compiler() *shader.Compiler { return s.compiler }

// Coalescer returns the update coalescer.
func (s *Session) Coalescer() *coalesce.Coalescer { return s.coalescer }

// Close stops rendering, waits for an in-flight build and releases every
// GPU object the Session created. The gpu.Context is left to its owner.
// Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	for _, sub := range s.subs {
		sub.Detach()
	}
	// The in-flight build may start the loop, so the coalescer goes first.
	s.coalescer.Close()
	s.renderer.StopRenderLoop()
	s.renderer.Wait()
	s.renderer.SetVertexBuffer(nil, 0)

	s.pipelines.Destroy()
	s.uniforms.Release()
	s.quad.Release()
	shaderlive.Logger().Info("preview: session closed")
}
