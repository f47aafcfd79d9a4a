package shaderlive

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/wgpu"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from the render loop,
// the compile worker and pointer callbacks.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for shaderlive and all its sub-packages.
// By default, shaderlive produces no log output. Call SetLogger to enable
// logging.
//
// The logger is also handed to the gogpu/wgpu stack, so adapter selection
// and validation messages end up in the same sink.
//
// SetLogger is safe for concurrent use. Pass nil to disable logging
// (restore default silent behavior).
//
// Log levels used by shaderlive:
//   - [slog.LevelDebug]: per-frame and per-compile detail (skipped frames, cache hits)
//   - [slog.LevelInfo]: lifecycle events (adapter selected, pipeline swapped, loop started)
//   - [slog.LevelWarn]: tolerated failures (bind group unset, frame dropped, release errors)
//
// Example:
//
//	shaderlive.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	wgpu.SetLogger(l)
}

// Logger returns the current logger used by shaderlive.
// Sub-packages (gpu/, shader/, pipeline/, render/, ...) call this to share
// the same logger configuration without introducing import cycles.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
