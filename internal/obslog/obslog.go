// Package obslog is the core's ambient logging surface: a thin wrapper
// around log/slog — quiet by default, opt-in via an env var or an explicit
// call, and always suppressed when an embedding consumer (e.g. an MCP
// server) needs stdio kept clean for protocol framing.
package obslog

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

var (
	mu      sync.Mutex
	logger  = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	quiet   atomic.Bool
	enabled atomic.Bool
)

func init() {
	if v := os.Getenv("CODEGRAPH_DEBUG"); v == "1" || v == "true" {
		enabled.Store(true)
	}
}

// SetQuiet suppresses all output regardless of level — used by embedding
// consumers (an MCP server, a library caller piping stdout elsewhere) that
// cannot tolerate stray log lines on their transport.
func SetQuiet(q bool) { quiet.Store(q) }

// SetLogger replaces the package-level logger (tests, or a host process that
// wants structured output routed through its own slog handler).
func SetLogger(l *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// SetDebugEnabled toggles verbose (Debug-level) logging at runtime.
func SetDebugEnabled(v bool) { enabled.Store(v) }

func current() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// Debugf logs at debug level, gated on SetDebugEnabled/CODEGRAPH_DEBUG. Most
// per-file, per-symbol chatter in the pipeline stages should use this, not
// Infof, so normal runs stay quiet.
func Debugf(component, format string, args ...any) {
	if quiet.Load() || !enabled.Load() {
		return
	}
	current().Debug(sprintf(format, args...), "component", component)
}

// Infof logs at info level unconditionally (modulo SetQuiet) — reserved for
// stage boundaries (snapshot built, incremental rebuild scheduled), not
// per-file detail.
func Infof(component, format string, args ...any) {
	if quiet.Load() {
		return
	}
	current().Info(sprintf(format, args...), "component", component)
}

// Warnf logs a recoverable condition.
func Warnf(component, format string, args ...any) {
	if quiet.Load() {
		return
	}
	current().Warn(sprintf(format, args...), "component", component)
}

// Errorf logs a fatal/invariant-violation condition.
func Errorf(component, format string, args ...any) {
	if quiet.Load() {
		return
	}
	current().Error(sprintf(format, args...), "component", component)
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
