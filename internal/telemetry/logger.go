// Package telemetry provides the structured logging surface shared across
// the reactive collection engine.
//
// All packages log through the active *zap.Logger returned by L(), rather
// than constructing their own. This keeps fields (shard id, action, key
// count, ...) consistent across the engine and lets tests swap in an
// observable logger without touching call sites.
package telemetry

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var active atomic.Pointer[zap.Logger]

func init() {
	active.Store(zap.NewNop())
}

// Init installs l as the process-wide logger. Passing nil restores the
// no-op logger. Safe to call concurrently; last writer wins.
func Init(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	active.Store(l)
}

// L returns the currently active logger. Never nil.
func L() *zap.Logger {
	return active.Load()
}

// Sync flushes any buffered log entries. Errors from Sync are expected and
// ignored for stderr/stdout sinks (a well known zap caveat on most OSes).
func Sync() {
	_ = L().Sync()
}
