// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package config loads the shaderlive YAML configuration.
//
//	listen: 127.0.0.1:7777
//	watch: shaders/main.wgsl
//	width: 1280
//	height: 720
//	backend: vulkan
//	quiescence: 100ms
//	fps: 60
//	log:
//	  level: debug
//	  format: text
//
// Every field is optional; Load fills in Default values for what is
// missing and validates the result.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/gputypes"
)

// MaxFileSize bounds the size of a configuration file.
const MaxFileSize = 1 << 20

// Config is the process configuration.
type Config struct {
	// Listen is the websocket and HTTP address. Empty disables the server.
	Listen string `yaml:"listen"`
	// Watch is a WGSL file to preview. Empty disables the watcher.
	Watch string `yaml:"watch"`

	Width  uint32 `yaml:"width"`
	Height uint32 `yaml:"height"`

	// Backend is auto, vulkan, metal, dx12 or gl.
	Backend string `yaml:"backend"`
	// Power is default, low or high.
	Power string `yaml:"power"`
	// Format overrides the surface format: bgra8unorm, rgba8unorm, or
	// their -srgb variants.
	Format string `yaml:"format"`

	Quiescence time.Duration `yaml:"quiescence"`
	FPS        int           `yaml:"fps"`
	CacheSize  int           `yaml:"cache_size"`

	VertexEntryPoint   string `yaml:"vertex_entry_point"`
	FragmentEntryPoint string `yaml:"fragment_entry_point"`

	Log Log `yaml:"log"`
}

// Log configures the process logger.
type Log struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
	// Color is auto, always or never. It styles diagnostics printed to
	// stderr; auto styles them when stderr is a terminal.
	Color string `yaml:"color"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:             "127.0.0.1:7777",
		Width:              800,
		Height:             600,
		Backend:            "auto",
		Power:              "default",
		Quiescence:         100 * time.Millisecond,
		FPS:                60,
		CacheSize:          64,
		VertexEntryPoint:   "vs_main",
		FragmentEntryPoint: "fs_main",
		Log: Log{
			Level:  "info",
			Format: "text",
			Color:  "auto",
		},
	}
}

// Load reads path over Default. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if info.Size() > MaxFileSize {
		return Config{}, fmt.Errorf("config: %s: file too large (%d bytes)", path, info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// normalize lower-cases enumerations and restores defaults for fields
// explicitly set to their zero value.
func (c *Config) normalize() {
	d := Default()
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	c.Power = strings.ToLower(strings.TrimSpace(c.Power))
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Log.Color = strings.ToLower(strings.TrimSpace(c.Log.Color))
	if c.Backend == "" {
		c.Backend = d.Backend
	}
	if c.Power == "" {
		c.Power = d.Power
	}
	if c.VertexEntryPoint == "" {
		c.VertexEntryPoint = d.VertexEntryPoint
	}
	if c.FragmentEntryPoint == "" {
		c.FragmentEntryPoint = d.FragmentEntryPoint
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Log.Color == "" {
		c.Log.Color = d.Log.Color
	}
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.Width == 0 || c.Height == 0 {
		errs = append(errs, fmt.Errorf("size %dx%d must be positive", c.Width, c.Height))
	}
	if c.Quiescence <= 0 {
		errs = append(errs, fmt.Errorf("quiescence %v must be positive", c.Quiescence))
	}
	if c.FPS <= 0 || c.FPS > 1000 {
		errs = append(errs, fmt.Errorf("fps %d out of range 1-1000", c.FPS))
	}
	if c.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("cache_size %d must not be negative", c.CacheSize))
	}
	if _, ok := backends[c.Backend]; !ok {
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if _, ok := powers[c.Power]; !ok {
		errs = append(errs, fmt.Errorf("unknown power preference %q", c.Power))
	}
	if _, ok := formats[c.Format]; !ok {
		errs = append(errs, fmt.Errorf("unknown format %q", c.Format))
	}
	if _, ok := levels[c.Log.Level]; !ok {
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	switch c.Log.Color {
	case "auto", "always", "never":
	default:
		errs = append(errs, fmt.Errorf("unknown log color %q", c.Log.Color))
	}
	return errors.Join(errs...)
}

var backends = map[string]gputypes.Backends{
	"auto":   gputypes.BackendsPrimary | gputypes.BackendsSecondary,
	"vulkan": gputypes.BackendsVulkan,
	"metal":  gputypes.BackendsMetal,
	"dx12":   gputypes.BackendsDX12,
	"gl":     gputypes.BackendsGL,
}

var powers = map[string]gputypes.PowerPreference{
	"default": gputypes.PowerPreferenceNone,
	"low":     gputypes.PowerPreferenceLowPower,
	"high":    gputypes.PowerPreferenceHighPerformance,
}

var formats = map[string]gputypes.TextureFormat{
	"":                gputypes.TextureFormatUndefined,
	"bgra8unorm":      gputypes.TextureFormatBGRA8Unorm,
	"rgba8unorm":      gputypes.TextureFormatRGBA8Unorm,
	"bgra8unorm-srgb": gputypes.TextureFormatBGRA8UnormSrgb,
	"rgba8unorm-srgb": gputypes.TextureFormatRGBA8UnormSrgb,
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Backends returns the wgpu backend mask.
func (c *Config) Backends() gputypes.Backends {
	return backends[c.Backend]
}

// PowerPreference returns the adapter power preference.
func (c *Config) PowerPreference() gputypes.PowerPreference {
	return powers[c.Power]
}

// TextureFormat returns the surface format override, or
// TextureFormatUndefined to let the adapter choose.
func (c *Config) TextureFormat() gputypes.TextureFormat {
	return formats[c.Format]
}

// LogLevel returns the slog level.
func (c *Config) LogLevel() slog.Level {
	return levels[c.Log.Level]
}

// RefreshInterval returns the frame interval for FPS.
func (c *Config) RefreshInterval() time.Duration {
	if c.FPS <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(c.FPS)
}
