// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"time"

	"github.com/gogpu/shaderlive/internal/clock"
)

// DefaultRefreshInterval is the tick interval of the default scheduler.
const DefaultRefreshInterval = time.Second / 60

// Scheduler arranges for fn to be called once, at the next tick.
// The returned cancel function prevents a pending call; it is a no-op
// once fn has started. Next must not call fn before returning.
type Scheduler interface {
	Next(fn func()) (cancel func())
}

// SchedulerFunc adapts a function to Scheduler.
type SchedulerFunc func(fn func()) func()

// Next calls f(fn).
func (f SchedulerFunc) Next(fn func()) func() { return f(fn) }

// intervalScheduler fires after a fixed delay measured from the request.
type intervalScheduler struct {
	clock    clock.Clock
	interval time.Duration
}

func (s intervalScheduler) Next(fn func()) func() {
	t := s.clock.AfterFunc(s.interval, fn)
	return func() { t.Stop() }
}
