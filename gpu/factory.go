// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/shaderlive"
)

// Factory allocates GPU buffers on a Context's device.
//
// Every buffer gets its role's usage plus CopyDst so it can be rewritten
// later. Initial contents are uploaded with a mapped-at-creation write
// followed by unmap. Allocation failures wrap
// shaderlive.ErrResourceAllocation.
type Factory struct {
	ctx *Context
}

// NewFactory returns a Factory borrowing ctx.
func NewFactory(ctx *Context) *Factory {
	return &Factory{ctx: ctx}
}

// CreateVertexBuffer uploads vertices as little-endian float32 data.
func (f *Factory) CreateVertexBuffer(vertices []float32) (Buffer, error) {
	return f.create("vertex", gputypes.BufferUsageVertex, Float32Bytes(vertices), 0)
}

// CreateUniformBuffer allocates an uninitialized uniform buffer of size bytes.
func (f *Factory) CreateUniformBuffer(size uint64) (Buffer, error) {
	return f.create("uniform", gputypes.BufferUsageUniform, nil, size)
}

// CreateStorageBuffer allocates a storage buffer of size bytes, optionally
// seeded with initial.
func (f *Factory) CreateStorageBuffer(size uint64, initial []byte) (Buffer, error) {
	if initial != nil && uint64(len(initial)) > size {
		size = uint64(len(initial))
	}
	return f.create("storage", gputypes.BufferUsageStorage, initial, size)
}

// CreateIndexBuffer16 uploads 16-bit indices.
func (f *Factory) CreateIndexBuffer16(indices []uint16) (Buffer, error) {
	return f.create("index16", gputypes.BufferUsageIndex, Uint16Bytes(indices), 0)
}

// CreateIndexBuffer32 uploads 32-bit indices.
func (f *Factory) CreateIndexBuffer32(indices []uint32) (Buffer, error) {
	return f.create("index32", gputypes.BufferUsageIndex, Uint32Bytes(indices), 0)
}

func (f *Factory) create(role string, usage gputypes.BufferUsage, contents []byte, size uint64) (Buffer, error) {
	dev, err := f.ctx.Device()
	if err != nil {
		return nil, err
	}
	if contents != nil && size == 0 {
		size = uint64(len(contents))
	}
	if size == 0 {
		return nil, fmt.Errorf("gpu: create %s buffer: zero size: %w", role, shaderlive.ErrResourceAllocation)
	}

	// Mapping requires 4-byte multiples.
	size = alignUp(size, 4)
	if contents != nil && uint64(len(contents)) < size {
		padded := make([]byte, size)
		copy(padded, contents)
		contents = padded
	}

	buf, err := dev.CreateBuffer(&BufferDescriptor{
		Label:    "shaderlive-" + role,
		Size:     size,
		Usage:    usage | gputypes.BufferUsageCopyDst,
		Contents: contents,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create %s buffer (%d bytes): %w: %w", role, size, shaderlive.ErrResourceAllocation, err)
	}
	shaderlive.Logger().Debug("gpu: buffer created", "role", role, "size", size)
	return buf, nil
}

func alignUp(n, align uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}
