// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package pipeline assembles render pipelines from compiled shader
// modules and keeps the one currently used for drawing.
//
// Every pipeline has the same fixed shape: one module providing a vertex
// and a fragment entry point, one vertex buffer of 2D positions, and a
// layout whose group 3 is the globals record of package uniform. Groups
// 0 to 2 are bound to empty placeholders.
package pipeline

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/shaderlive/gpu"
)

// Default entry point names.
const (
	DefaultVertexEntryPoint   = "vs_main"
	DefaultFragmentEntryPoint = "fs_main"
)

// Config fixes the pipeline shape. Zero fields take the defaults.
type Config struct {
	VertexEntryPoint   string
	FragmentEntryPoint string
	VertexBuffers      []gputypes.VertexBufferLayout
	Topology           gputypes.PrimitiveTopology
}

// DefaultConfig returns the full-screen quad configuration: vs_main,
// fs_main, one buffer with a float32x2 position at location 0 and a
// triangle list.
func DefaultConfig() Config {
	return Config{
		VertexEntryPoint:   DefaultVertexEntryPoint,
		FragmentEntryPoint: DefaultFragmentEntryPoint,
		VertexBuffers:      []gputypes.VertexBufferLayout{PositionLayout()},
		Topology:           gputypes.PrimitiveTopologyTriangleList,
	}
}

// PositionLayout is the vertex buffer layout of gpu.FullscreenQuad.
func PositionLayout() gputypes.VertexBufferLayout {
	return gputypes.VertexBufferLayout{
		ArrayStride: gpu.QuadStride,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes: []gputypes.VertexAttribute{
			{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
		},
	}
}

func (c Config) withDefaults() Config {
	if c.VertexEntryPoint == "" {
		c.VertexEntryPoint = DefaultVertexEntryPoint
	}
	if c.FragmentEntryPoint == "" {
		c.FragmentEntryPoint = DefaultFragmentEntryPoint
	}
	if len(c.VertexBuffers) == 0 {
		c.VertexBuffers = []gputypes.VertexBufferLayout{PositionLayout()}
	}
	return c
}
