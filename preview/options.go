// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package preview

import (
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/shaderlive"
	"github.com/gogpu/shaderlive/coalesce"
	"github.com/gogpu/shaderlive/internal/clock"
	"github.com/gogpu/shaderlive/pipeline"
	"github.com/gogpu/shaderlive/render"
	"github.com/gogpu/shaderlive/transport"
)

// Option configures a Session during creation.
//
// Example:
//
//	s, err := preview.New(gc,
//	    preview.WithQuiescence(250*time.Millisecond),
//	    preview.WithNotifier(server),
//	)
type Option func(*options)

// DiagnosticFunc observes every diagnostic the board accepts, together
// with the source it belongs to.
type DiagnosticFunc func(d *shaderlive.Diagnostic, src shaderlive.ShaderSource)

type options struct {
	quiescence time.Duration
	refresh    time.Duration
	clock      clock.Clock
	scheduler  render.Scheduler
	pipeline   pipeline.Config
	cacheSize  int
	clear      *gputypes.Color

	notifiers   []transport.Notifier
	diagnostics []DiagnosticFunc

	window   gpucontext.WindowProvider
	pointers gpucontext.PointerEventSource
	events   gpucontext.EventSource
}

func defaultOptions() options {
	return options{
		quiescence: coalesce.DefaultWindow,
		refresh:    render.DefaultRefreshInterval,
		clock:      clock.Real{},
		pipeline:   pipeline.DefaultConfig(),
		cacheSize:  -1,
	}
}

// WithQuiescence sets how long the source must stay unchanged before it
// is compiled. Non-positive values keep the 100ms default.
func WithQuiescence(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.quiescence = d
		}
	}
}

// WithRefreshInterval sets the render loop interval.
func WithRefreshInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.refresh = d
		}
	}
}

// WithClock replaces the wall clock used for uniforms, the quiescence
// window and the render loop.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithScheduler drives the render loop from s, typically a host's
// display-refresh callback.
func WithScheduler(s render.Scheduler) Option {
	return func(o *options) {
		o.scheduler = s
	}
}

// WithPipelineConfig overrides entry points, vertex layout or topology.
func WithPipelineConfig(cfg pipeline.Config) Option {
	return func(o *options) {
		o.pipeline = cfg
	}
}

// WithCacheSize sets the compiler's front-end cache size. Zero disables
// caching.
func WithCacheSize(n int) Option {
	return func(o *options) {
		o.cacheSize = n
	}
}

// WithClearColor sets the color behind the quad.
func WithClearColor(c gputypes.Color) Option {
	return func(o *options) {
		o.clear = &c
	}
}

// WithNotifier adds a receiver for ready and diagnostic notifications.
// It may be given more than once.
func WithNotifier(n transport.Notifier) Option {
	return func(o *options) {
		if n != nil {
			o.notifiers = append(o.notifiers, n)
		}
	}
}

// WithDiagnosticFunc adds an observer for accepted diagnostics.
func WithDiagnosticFunc(fn DiagnosticFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.diagnostics = append(o.diagnostics, fn)
		}
	}
}

// WithWindow supplies the logical size and scale factor of the host
// window. Pointer coordinates are normalized against its size and resize
// events are scaled to device pixels.
func WithWindow(w gpucontext.WindowProvider) Option {
	return func(o *options) {
		o.window = w
	}
}

// WithPointerSource feeds W3C pointer events into the uniforms.
func WithPointerSource(src gpucontext.PointerEventSource) Option {
	return func(o *options) {
		o.pointers = src
	}
}

// WithEventSource feeds mouse and resize callbacks into the Session.
func WithEventSource(src gpucontext.EventSource) Option {
	return func(o *options) {
		o.events = src
	}
}
