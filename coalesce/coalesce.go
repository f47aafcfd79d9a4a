// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package coalesce debounces bursts of shader edits into single pipeline
// builds.
//
// A Coalescer keeps one pending slot. Every Push replaces the slot with the
// newer source and restarts the quiescence timer; when the timer fires the
// latest source is handed to the target. At most one target call is in
// flight. A push that arrives during a call is picked up right after it.
package coalesce

import (
	"context"
	"sync"
	"time"

	"github.com/gogpu/shaderlive"
	"github.com/gogpu/shaderlive/internal/clock"
)

// DefaultWindow is the default quiescence window.
const DefaultWindow = 100 * time.Millisecond

// Func processes one source revision and reports whether it succeeded.
type Func func(ctx context.Context, src shaderlive.ShaderSource) bool

// Stats are cumulative Coalescer counters.
type Stats struct {
	// Pushes counts accepted sources.
	Pushes uint64
	// Attempts counts target calls.
	Attempts uint64
	// Coalesced counts accepted sources that never reached the target.
	Coalesced uint64
}

// Coalescer is the update coalescer. It is safe for concurrent use.
type Coalescer struct {
	ctx    context.Context
	cancel context.CancelFunc
	fn     Func
	window time.Duration
	clock  clock.Clock

	mu        sync.Mutex
	latest    shaderlive.ShaderSource
	attempted shaderlive.Revision
	timer     clock.Timer
	gen       uint64
	running   bool
	rerun     bool
	closed    bool
	idle      *sync.Cond
	onResult  []func(src shaderlive.ShaderSource, ok bool)
	stats     Stats
}

// New returns a Coalescer calling fn. Calls receive a context derived from
// ctx that is cancelled by Close. A non-positive window uses DefaultWindow
// and a nil clk the wall clock.
func New(ctx context.Context, fn Func, window time.Duration, clk clock.Clock) *Coalescer {
	if window <= 0 {
		window = DefaultWindow
	}
	if clk == nil {
		clk = clock.Real{}
	}
	cctx, cancel := context.WithCancel(ctx)
	c := &Coalescer{
		ctx:    cctx,
		cancel: cancel,
		fn:     fn,
		window: window,
		clock:  clk,
	}
	c.idle = sync.NewCond(&c.mu)
	return c
}

// OnResult registers an observer called after every target call, on the
// worker goroutine.
func (c *Coalescer) OnResult(fn func(src shaderlive.ShaderSource, ok bool)) {
	c.mu.Lock()
	c.onResult = append(c.onResult, fn)
	c.mu.Unlock()
}

// Push makes src the latest source and restarts the quiescence timer.
// Sources not newer than the current latest are ignored, as are pushes
// after Close. It reports whether src was accepted.
func (c *Coalescer) Push(src shaderlive.ShaderSource) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !src.Revision.Newer(c.latest.Revision) {
		return false
	}
	if c.latest.Revision.Newer(c.attempted) {
		c.stats.Coalesced++
	}
	c.latest = src
	c.stats.Pushes++

	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	gen := c.gen
	c.timer = c.clock.AfterFunc(c.window, func() { c.fire(gen) })
	return true
}

// Flush fires immediately instead of waiting for the window.
func (c *Coalescer) Flush() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
	gen := c.gen
	c.mu.Unlock()
	c.fire(gen)
}

// Latest returns the most recently accepted source.
func (c *Coalescer) Latest() shaderlive.ShaderSource {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// Stats returns cumulative counters.
func (c *Coalescer) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// fire starts a worker unless one is running, in which case the worker
// picks the latest source up when it finishes. A timer superseded by a
// later Push or Flush is ignored.
func (c *Coalescer) fire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.timer = nil
	if c.closed || !c.latest.Revision.Newer(c.attempted) {
		return
	}
	if c.running {
		c.rerun = true
		return
	}
	c.running = true
	go c.work()
}

func (c *Coalescer) work() {
	log := shaderlive.Logger()
	for {
		c.mu.Lock()
		src := c.latest
		c.attempted = src.Revision
		c.rerun = false
		c.stats.Attempts++
		observers := c.onResult
		c.mu.Unlock()

		log.Debug("coalesce: building", "revision", src.Revision)
		ok := c.fn(c.ctx, src)
		for _, fn := range observers {
			fn(src, ok)
		}

		c.mu.Lock()
		again := !c.closed && c.rerun && c.latest.Revision.Newer(c.attempted)
		if !again {
			c.running = false
			c.idle.Broadcast()
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
	}
}

// Close cancels the pending timer, rejects further pushes and waits for
// the call in flight. The context passed to the target is cancelled.
// Close must not be called from the target or an observer.
func (c *Coalescer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.cancel()
	for c.running {
		c.idle.Wait()
	}
	c.mu.Unlock()
}

// Idle reports whether no call is in flight and no timer is pending.
func (c *Coalescer) Idle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.running && c.timer == nil
}
