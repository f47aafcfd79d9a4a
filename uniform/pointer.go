// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package uniform

import (
	"sync/atomic"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/shaderlive"
)

// SizeFunc returns the current surface size in the coordinate space of the
// events (logical pixels for gpucontext sources).
type SizeFunc func() (width, height float64)

// Subscription is a detachable pointer registration.
//
// gpucontext sources have no unregister call, so a detached subscription
// stays registered with its source and ignores further events.
type Subscription struct {
	detached atomic.Bool
}

// Detach stops the subscription from updating the manager.
func (s *Subscription) Detach() { s.detached.Store(true) }

// Active reports whether the subscription still forwards events.
func (s *Subscription) Active() bool { return !s.detached.Load() }

// AttachPointer forwards pointer events from src into m.
//
// Moves update the position. A down event sets the click position and the
// button bit without moving the position; an up event clears the bit.
// Cancel clears every button.
func (m *Manager) AttachPointer(src gpucontext.PointerEventSource, size SizeFunc) *Subscription {
	sub := &Subscription{}
	src.OnPointer(func(ev gpucontext.PointerEvent) {
		if !sub.Active() {
			return
		}
		w, h := size()
		x, y := shaderlive.Normalize(ev.X, ev.Y, w, h)
		switch ev.Type {
		case gpucontext.PointerMove:
			m.UpdateMousePosition(x, y)
		case gpucontext.PointerDown:
			m.press(pointerButton(ev.Button), x, y)
		case gpucontext.PointerUp:
			m.release(pointerButton(ev.Button))
		case gpucontext.PointerCancel:
			m.UpdateMouseButtons(0)
		}
	})
	return sub
}

// AttachMouse forwards mouse callbacks from a gpucontext.EventSource into m.
func (m *Manager) AttachMouse(src gpucontext.EventSource, size SizeFunc) *Subscription {
	sub := &Subscription{}
	src.OnMouseMove(func(px, py float64) {
		if !sub.Active() {
			return
		}
		w, h := size()
		m.UpdateMousePosition(shaderlive.Normalize(px, py, w, h))
	})
	src.OnMousePress(func(b gpucontext.MouseButton, px, py float64) {
		if !sub.Active() {
			return
		}
		w, h := size()
		x, y := shaderlive.Normalize(px, py, w, h)
		m.press(mouseButton(b), x, y)
	})
	src.OnMouseRelease(func(b gpucontext.MouseButton, _, _ float64) {
		if !sub.Active() {
			return
		}
		m.release(mouseButton(b))
	})
	return sub
}

// pointerButton maps a W3C button number to the uniform mask bit.
func pointerButton(b gpucontext.Button) shaderlive.Buttons {
	switch b {
	case gpucontext.ButtonLeft:
		return shaderlive.ButtonPrimary
	case gpucontext.ButtonMiddle:
		return shaderlive.ButtonMiddle
	case gpucontext.ButtonRight:
		return shaderlive.ButtonSecondary
	default:
		return 0
	}
}

func mouseButton(b gpucontext.MouseButton) shaderlive.Buttons {
	switch b {
	case gpucontext.MouseButtonLeft:
		return shaderlive.ButtonPrimary
	case gpucontext.MouseButtonRight:
		return shaderlive.ButtonSecondary
	case gpucontext.MouseButtonMiddle:
		return shaderlive.ButtonMiddle
	default:
		return 0
	}
}
