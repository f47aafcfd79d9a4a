// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package shader turns WGSL source text into GPU shader modules.
//
// Compilation happens in two steps. The naga front end parses, lowers and
// validates the source to produce positioned diagnostics and the module's
// interface (entry points and bindings). Accepted sources are then handed
// to the device. Failures of either step come back as a
// [shaderlive.Diagnostic] inside the [CompilationResult]; Compile never
// panics and never returns an error.
package shader

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync/atomic"

	"github.com/gogpu/shaderlive"
	"github.com/gogpu/shaderlive/gpu"
	"github.com/gogpu/shaderlive/internal/cache"
)

// DefaultCacheSize is the number of front-end verdicts kept by default.
const DefaultCacheSize = 64

// Module is a compiled shader module.
type Module struct {
	Handle    gpu.ShaderModule
	Interface Interface
	Revision  shaderlive.Revision
}

// Release releases the device module.
func (m *Module) Release() {
	if m != nil && m.Handle != nil {
		m.Handle.Release()
	}
}

// CompilationResult is the outcome of compiling one ShaderSource.
// Exactly one of Module and Diagnostic is set.
type CompilationResult struct {
	Revision   shaderlive.Revision
	Module     *Module
	Diagnostic *shaderlive.Diagnostic
}

// OK reports whether compilation produced a module.
func (r CompilationResult) OK() bool {
	return r.Module != nil
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithCacheSize sets how many front-end verdicts are remembered.
// Zero disables the cache.
func WithCacheSize(n int) Option {
	return func(c *Compiler) {
		c.cacheSize = n
	}
}

// Stats are cumulative Compiler counters.
type Stats struct {
	Compiles    uint64
	Failures    uint64
	CacheHits   uint64
	CacheMisses uint64
}

// Compiler compiles shader sources on one device.
//
// Compiler is safe for concurrent use.
type Compiler struct {
	device    gpu.Device
	cacheSize int
	verdicts  *cache.Cache[[sha256.Size]byte, *verdict]

	compiles atomic.Uint64
	failures atomic.Uint64
}

// NewCompiler returns a Compiler submitting modules to device.
func NewCompiler(device gpu.Device, opts ...Option) *Compiler {
	c := &Compiler{device: device, cacheSize: DefaultCacheSize}
	for _, opt := range opts {
		opt(c)
	}
	if c.cacheSize > 0 {
		c.verdicts = cache.New[[sha256.Size]byte, *verdict](c.cacheSize)
	}
	return c
}

// Compile compiles src. Cancelling ctx abandons the front-end analysis
// and yields a failed result carrying the context error.
func (c *Compiler) Compile(ctx context.Context, src shaderlive.ShaderSource) CompilationResult {
	c.compiles.Add(1)
	log := shaderlive.Logger()

	v, err := c.frontEnd(ctx, src.Code)
	if err != nil {
		return c.fail(src, err.Error(), shaderlive.Position{})
	}
	if v.failed {
		log.Debug("shader: rejected by front end", "revision", src.Revision, "line", v.position.Line, "message", v.message)
		return c.fail(src, v.message, v.position)
	}
	if err := ctx.Err(); err != nil {
		return c.fail(src, err.Error(), shaderlive.Position{})
	}

	handle, err := c.createModule(src)
	if err != nil {
		log.Debug("shader: rejected by device", "revision", src.Revision, "err", err)
		return c.fail(src, err.Error(), shaderlive.Position{})
	}
	log.Debug("shader: compiled", "revision", src.Revision, "entryPoints", len(v.iface.EntryPoints))
	return CompilationResult{
		Revision: src.Revision,
		Module: &Module{
			Handle:    handle,
			Interface: v.iface,
			Revision:  src.Revision,
		},
	}
}

// Messages lists every front-end error and warning for code. An empty
// result means the source analysed cleanly.
func (c *Compiler) Messages(ctx context.Context, code string) ([]Message, error) {
	v, err := c.frontEnd(ctx, code)
	if err != nil {
		return nil, err
	}
	return append([]Message(nil), v.messages...), nil
}

// Stats returns cumulative counters.
func (c *Compiler) Stats() Stats {
	s := Stats{
		Compiles: c.compiles.Load(),
		Failures: c.failures.Load(),
	}
	if c.verdicts != nil {
		cs := c.verdicts.Stats()
		s.CacheHits, s.CacheMisses = cs.Hits, cs.Misses
	}
	return s
}

func (c *Compiler) fail(src shaderlive.ShaderSource, msg string, pos shaderlive.Position) CompilationResult {
	c.failures.Add(1)
	return CompilationResult{
		Revision: src.Revision,
		Diagnostic: &shaderlive.Diagnostic{
			Kind:     shaderlive.KindCompilation,
			Message:  msg,
			Position: pos,
			Revision: src.Revision,
		},
	}
}

// frontEnd returns the cached verdict for code or runs the analysis on
// its own goroutine so ctx can abandon it.
func (c *Compiler) frontEnd(ctx context.Context, code string) (*verdict, error) {
	key := sha256.Sum256([]byte(code))
	if c.verdicts != nil {
		if v, ok := c.verdicts.Get(key); ok {
			return v, nil
		}
	}

	done := make(chan *verdict, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &verdict{
					failed:  true,
					message: fmt.Sprintf("internal compiler error: %v", r),
				}
			}
		}()
		done <- analyze(code)
	}()

	select {
	case v := <-done:
		if c.verdicts != nil {
			c.verdicts.Set(key, v)
		}
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// createModule submits src to the device. A panic inside the device is
// reported as an error.
func (c *Compiler) createModule(src shaderlive.ShaderSource) (m gpu.ShaderModule, err error) {
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("%v", r)
		}
	}()
	return c.device.CreateShaderModule(&gpu.ShaderModuleDescriptor{
		Label: fmt.Sprintf("shaderlive-shader-r%d", src.Revision),
		Code:  src.Code,
	})
}
