// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package render drives the frame loop of a live shader preview.
//
// A [Renderer] draws the active pipeline into the presentation surface of a
// [gpu.Context] once per tick. Each frame reads one pipeline snapshot,
// refreshes the globals record, clears to opaque black and draws the
// full-screen quad.
//
// # Key Principle
//
// The renderer never waits for compilation. When no pipeline has been
// committed yet, or no vertex buffer is set, a frame is a logged no-op
// and the loop keeps ticking. A pipeline committed between two frames is
// picked up by the next one.
//
// # Scheduling
//
// Ticks come from a [Scheduler]. The default one arms a one-shot timer of
// the refresh interval (60 Hz) after every frame, so frames never overlap.
// Hosts that own a vsync callback can provide their own.
//
//	r := render.New(gc, pipelines, uniforms)
//	r.SetVertexBuffer(quad, gpu.QuadVertexCount)
//	r.StartRenderLoop()
//	defer r.StopRenderLoop()
//
// # Architecture
//
//	      Scheduler tick
//	            │
//	            ▼
//	   Renderer.Render
//	   ┌────────┼─────────────┐
//	   │        │             │
//	   ▼        ▼             ▼
//	pipeline  uniform      gpu.Surface
//	 .Active  .Update       .Acquire
//	   │        │             │
//	   └────────┼─────────────┘
//	            ▼
//	      gpu.Device.Draw
//	            │
//	            ▼
//	      Frame.Present
//
// # Thread Safety
//
// All Renderer methods are safe for concurrent use. Frames are serialized:
// RequestFrame and the loop never encode two frames at once.
package render
