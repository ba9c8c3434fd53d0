// Package logging is the scheduler's thin structured-logging wrapper: a
// logr.Logger that defaults to discarding everything, so the module never
// forces a logging backend on its caller but still emits useful detail
// when one is wired in.
package logging

import "github.com/go-logr/logr"

// Logger is the scheduler core's handle for structured logging. The
// scheduler logs the entry of every planning phase at V(1) via Phase;
// phase exit is not logged, and no caller in this module uses Fallback.
type Logger struct {
	logr.Logger
}

// Discard returns a Logger that drops everything, the default when a
// caller doesn't provide one.
func Discard() Logger {
	return Logger{Logger: logr.Discard()}
}

// Phase logs phase at V(1) with the given key/value pairs, e.g.
// log.Phase("bufplan", "buffers", len(infos)).
func (l Logger) Phase(phase string, kv ...any) {
	l.V(1).Info(phase, kv...)
}

// Fallback logs a non-fatal degradation: a partitioned pack falling back
// to the default packer, or a profiler timeout falling back to the
// heuristic cost model.
func (l Logger) Fallback(reason string, kv ...any) {
	l.V(1).Info("fallback: "+reason, kv...)
}
