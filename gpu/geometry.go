// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"encoding/binary"
	"math"
)

// QuadVertexCount is the number of vertices in a full-screen quad.
const QuadVertexCount = 6

// QuadStride is the byte stride of FullscreenQuad vertices (vec2<f32>).
const QuadStride = 8

// FullscreenQuad returns two triangles covering clip space [-1,1]², as
// 6 vertices of 2 floats.
func FullscreenQuad() []float32 {
	return []float32{
		-1, -1,
		1, -1,
		-1, 1,
		-1, 1,
		1, -1,
		1, 1,
	}
}

// FullscreenQuadWithUV returns the same quad with interleaved texture
// coordinates (x, y, u, v); v grows downward.
func FullscreenQuadWithUV() []float32 {
	return []float32{
		-1, -1, 0, 1,
		1, -1, 1, 1,
		-1, 1, 0, 0,
		-1, 1, 0, 0,
		1, -1, 1, 1,
		1, 1, 1, 0,
	}
}

// Float32Bytes encodes v as little-endian bytes.
func Float32Bytes(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}

// Uint16Bytes encodes v as little-endian bytes.
func Uint16Bytes(v []uint16) []byte {
	b := make([]byte, 2*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint16(b[2*i:], x)
	}
	return b
}

// Uint32Bytes encodes v as little-endian bytes.
func Uint32Bytes(v []uint32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[4*i:], x)
	}
	return b
}
