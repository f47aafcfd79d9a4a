// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import "github.com/gogpu/gputypes"

// Option configures Initialize.
//
// Example:
//
//	ctx, err := gpu.Initialize(context.Background(), inst, target,
//	    gpu.WithPowerPreference(gputypes.PowerPreferenceLowPower),
//	    gpu.WithFormat(gputypes.TextureFormatRGBA8Unorm))
type Option func(*options)

type options struct {
	label           string
	powerPreference gputypes.PowerPreference
	forceFallback   bool
	format          gputypes.TextureFormat
	presentMode     gputypes.PresentMode
}

func defaultOptions() options {
	return options{
		label:           "shaderlive-device",
		powerPreference: gputypes.PowerPreferenceHighPerformance,
		format:          gputypes.TextureFormatUndefined, // adapter preference
		presentMode:     gputypes.PresentModeFifo,
	}
}

// WithLabel sets the debug label of the requested device.
func WithLabel(label string) Option {
	return func(o *options) {
		o.label = label
	}
}

// WithPowerPreference selects between integrated and discrete adapters.
func WithPowerPreference(p gputypes.PowerPreference) Option {
	return func(o *options) {
		o.powerPreference = p
	}
}

// WithFallbackAdapter forces the software (fallback) adapter.
func WithFallbackAdapter(force bool) Option {
	return func(o *options) {
		o.forceFallback = force
	}
}

// WithFormat overrides the presentation pixel format. By default the
// adapter's preferred format for the surface is used.
func WithFormat(f gputypes.TextureFormat) Option {
	return func(o *options) {
		o.format = f
	}
}

// WithPresentMode overrides the present mode (default FIFO, i.e. vsync).
func WithPresentMode(m gputypes.PresentMode) Option {
	return func(o *options) {
		o.presentMode = m
	}
}
