// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package preview

import (
	"sync"

	"github.com/gogpu/shaderlive"
)

// Board holds the diagnostic shown to the author.
//
// The board only moves forward in revision order: a diagnostic or a
// success older than what it already reflects is ignored, so a late
// failure never hides a newer result.
//
// Board is safe for concurrent use.
type Board struct {
	mu       sync.Mutex
	current  *shaderlive.Diagnostic
	revision shaderlive.Revision
}

// Set shows d. It reports false when d is older than the board's state.
func (b *Board) Set(d *shaderlive.Diagnostic) bool {
	if d == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.revision.Newer(d.Revision) {
		return false
	}
	b.current, b.revision = d, d.Revision
	return true
}

// Clear hides the diagnostic after rev built successfully. It reports
// false when rev is older than the board's state.
func (b *Board) Clear(rev shaderlive.Revision) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.revision.Newer(rev) {
		return false
	}
	b.current, b.revision = nil, rev
	return true
}

// Current returns the visible diagnostic, or nil.
func (b *Board) Current() *shaderlive.Diagnostic {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Visible reports whether a diagnostic is shown.
func (b *Board) Visible() bool {
	return b.Current() != nil
}

// Revision returns the revision the board reflects.
func (b *Board) Revision() shaderlive.Revision {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.revision
}
