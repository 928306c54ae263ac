package shaderkit

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/shaderkit/internal/scheduler"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called while build workers are logging.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for shaderkit and its sub-packages.
// By default nothing is logged. Pass nil to restore silent behavior.
//
// Log levels used by shaderkit:
//   - [slog.LevelDebug]: build lifecycle (jobs enqueued, pipelines created, render passes reused)
//   - [slog.LevelInfo]: context creation and shutdown
//   - [slog.LevelWarn]: tolerated failures (a pipeline slot failed, bake failed, release errors)
//   - [slog.LevelError]: shader compile failures and ordering violations with assertions off
//
// Example:
//
//	shaderkit.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	scheduler.SetLogger(l)
}

// Logger returns the current logger used by shaderkit.
// Backends (backend/wgpu) call this to share the same configuration.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
