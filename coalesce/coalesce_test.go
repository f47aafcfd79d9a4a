// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package coalesce

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/shaderlive"
	"github.com/gogpu/shaderlive/internal/clock"
)

// recorder is a target that records revisions and can hold each call
// until released.
type recorder struct {
	mu    sync.Mutex
	revs  []shaderlive.Revision
	calls chan shaderlive.Revision

	gate     chan struct{}
	inflight atomic.Int32
	maxSeen  atomic.Int32
	result   func(shaderlive.Revision) bool
}

func newRecorder() *recorder {
	return &recorder{calls: make(chan shaderlive.Revision, 64)}
}

func (r *recorder) fn(ctx context.Context, src shaderlive.ShaderSource) bool {
	n := r.inflight.Add(1)
	defer r.inflight.Add(-1)
	for {
		m := r.maxSeen.Load()
		if n <= m || r.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	r.mu.Lock()
	r.revs = append(r.revs, src.Revision)
	r.mu.Unlock()
	r.calls <- src.Revision

	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return false
		}
	}
	if r.result != nil {
		return r.result(src.Revision)
	}
	return true
}

func (r *recorder) revisions() []shaderlive.Revision {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]shaderlive.Revision(nil), r.revs...)
}

func (r *recorder) expect(t *testing.T, want shaderlive.Revision) {
	t.Helper()
	select {
	case got := <-r.calls:
		if got != want {
			t.Fatalf("target called with r%d, want r%d", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("target not called, want r%d", want)
	}
}

func waitIdle(t *testing.T, c *Coalescer) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !c.Idle() {
		if time.Now().After(deadline) {
			t.Fatal("coalescer did not become idle")
		}
		time.Sleep(time.Millisecond)
	}
}

func src(rev shaderlive.Revision) shaderlive.ShaderSource {
	return shaderlive.ShaderSource{Code: "// r", Revision: rev}
}

func newTestCoalescer(t *testing.T, r *recorder) (*Coalescer, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Unix(0, 0))
	c := New(context.Background(), r.fn, DefaultWindow, clk)
	t.Cleanup(c.Close)
	return c, clk
}

// TestBurstCoalesces tests that a burst of edits inside the window
// produces a single build of the last one.
func TestBurstCoalesces(t *testing.T) {
	r := newRecorder()
	c, clk := newTestCoalescer(t, r)

	for rev := shaderlive.Revision(1); rev <= 5; rev++ {
		if !c.Push(src(rev)) {
			t.Fatalf("Push(r%d) rejected", rev)
		}
		clk.Advance(10 * time.Millisecond)
	}
	if got := r.revisions(); len(got) != 0 {
		t.Fatalf("target called during the burst: %v", got)
	}

	clk.Advance(DefaultWindow)
	r.expect(t, 5)
	waitIdle(t, c)

	if got := r.revisions(); len(got) != 1 {
		t.Errorf("calls = %v, want [5]", got)
	}
	want := Stats{Pushes: 5, Attempts: 1, Coalesced: 4}
	if got := c.Stats(); got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
}

func TestWindowRestarts(t *testing.T) {
	r := newRecorder()
	c, clk := newTestCoalescer(t, r)

	c.Push(src(1))
	clk.Advance(90 * time.Millisecond)
	c.Push(src(2))
	clk.Advance(90 * time.Millisecond)
	if got := r.revisions(); len(got) != 0 {
		t.Fatalf("target called before quiescence: %v", got)
	}
	clk.Advance(10 * time.Millisecond)
	r.expect(t, 2)
}

func TestPushRejectsStale(t *testing.T) {
	r := newRecorder()
	c, _ := newTestCoalescer(t, r)

	tests := []struct {
		rev  shaderlive.Revision
		want bool
	}{
		{rev: 3, want: true},
		{rev: 2, want: false},
		{rev: 3, want: false},
		{rev: 4, want: true},
	}
	for _, tt := range tests {
		if got := c.Push(src(tt.rev)); got != tt.want {
			t.Errorf("Push(r%d) = %v, want %v", tt.rev, got, tt.want)
		}
	}
	if c.Latest().Revision != 4 {
		t.Errorf("Latest() = r%d, want r4", c.Latest().Revision)
	}
}

// TestSingleFlight tests that pushes during a build are folded into one
// follow-up build of the newest revision.
func TestSingleFlight(t *testing.T) {
	r := newRecorder()
	r.gate = make(chan struct{})
	c, clk := newTestCoalescer(t, r)

	c.Push(src(1))
	clk.Advance(DefaultWindow)
	r.expect(t, 1)

	c.Push(src(2))
	clk.Advance(DefaultWindow)
	c.Push(src(3))
	clk.Advance(DefaultWindow)

	r.gate <- struct{}{}
	r.expect(t, 3)
	r.gate <- struct{}{}
	waitIdle(t, c)

	got := r.revisions()
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("calls = %v, want [1 3]", got)
	}
	if m := r.maxSeen.Load(); m != 1 {
		t.Errorf("max concurrent calls = %d, want 1", m)
	}
}

func TestPushDuringBuildWaitsForWindow(t *testing.T) {
	r := newRecorder()
	r.gate = make(chan struct{})
	c, clk := newTestCoalescer(t, r)

	c.Push(src(1))
	clk.Advance(DefaultWindow)
	r.expect(t, 1)

	c.Push(src(2))
	clk.Advance(50 * time.Millisecond)
	r.gate <- struct{}{}

	// The worker finishes without starting r2; the timer is still armed.
	deadline := time.Now().Add(5 * time.Second)
	for r.inflight.Load() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("first build did not finish")
		}
		time.Sleep(time.Millisecond)
	}
	if got := r.revisions(); len(got) != 1 {
		t.Fatalf("calls = %v, want [1]", got)
	}

	clk.Advance(50 * time.Millisecond)
	r.expect(t, 2)
	r.gate <- struct{}{}
	waitIdle(t, c)
}

func TestFlush(t *testing.T) {
	r := newRecorder()
	c, clk := newTestCoalescer(t, r)

	c.Push(src(1))
	c.Flush()
	r.expect(t, 1)
	waitIdle(t, c)

	// The cancelled timer does not fire a second build.
	clk.Advance(time.Second)
	waitIdle(t, c)
	if got := r.revisions(); len(got) != 1 {
		t.Errorf("calls = %v, want [1]", got)
	}

	// Nothing pending: Flush is a no-op.
	c.Flush()
	waitIdle(t, c)
	if got := r.revisions(); len(got) != 1 {
		t.Errorf("calls after empty Flush = %v, want [1]", got)
	}
}

func TestOnResult(t *testing.T) {
	r := newRecorder()
	r.result = func(rev shaderlive.Revision) bool { return rev%2 == 0 }
	c, clk := newTestCoalescer(t, r)

	type result struct {
		rev shaderlive.Revision
		ok  bool
	}
	results := make(chan result, 4)
	c.OnResult(func(s shaderlive.ShaderSource, ok bool) {
		results <- result{s.Revision, ok}
	})

	for _, rev := range []shaderlive.Revision{1, 2} {
		c.Push(src(rev))
		clk.Advance(DefaultWindow)
		r.expect(t, rev)
		got := <-results
		if want := (result{rev, rev == 2}); got != want {
			t.Errorf("OnResult got %+v, want %+v", got, want)
		}
		waitIdle(t, c)
	}
}

func TestClose(t *testing.T) {
	t.Run("cancels pending timer", func(t *testing.T) {
		r := newRecorder()
		c, clk := newTestCoalescer(t, r)
		c.Push(src(1))
		c.Close()

		if clk.Pending() != 0 {
			t.Errorf("pending timers = %d after Close, want 0", clk.Pending())
		}
		clk.Advance(time.Second)
		if c.Push(src(2)) {
			t.Error("Push() after Close accepted")
		}
		if got := r.revisions(); len(got) != 0 {
			t.Errorf("calls = %v, want none", got)
		}
		c.Close()
	})

	t.Run("waits for in-flight build", func(t *testing.T) {
		r := newRecorder()
		r.gate = make(chan struct{})
		c, clk := newTestCoalescer(t, r)
		c.Push(src(1))
		clk.Advance(DefaultWindow)
		r.expect(t, 1)

		// The gated call returns when Close cancels its context.
		c.Close()
		if r.inflight.Load() != 0 {
			t.Error("Close() returned with a build in flight")
		}
	})
}

func TestDefaults(t *testing.T) {
	c := New(context.Background(), func(context.Context, shaderlive.ShaderSource) bool { return true }, 0, nil)
	defer c.Close()
	if c.window != DefaultWindow {
		t.Errorf("window = %v, want %v", c.window, DefaultWindow)
	}
	if _, ok := c.clock.(clock.Real); !ok {
		t.Errorf("clock = %T, want clock.Real", c.clock)
	}
}
