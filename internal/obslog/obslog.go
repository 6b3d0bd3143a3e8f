// Package obslog implements registry-wide logger mirroring: every Info, Warn
// and Error message (plain and formatted) the global logger emits is
// additionally appended to the log of the BenchmarkedRequestClient whose
// call stack produced it, so
// GET /benchmark/:id/log can serve an isolated, per-client log even though
// logging itself stays centralized.
package obslog

import (
	"context"
	"fmt"
	"sync"

	"github.com/lerian-labs/icvsb-gateway/internal/mlog"
)

type contextKey string

const brcLogContextKey contextKey = "brc-log"

// RingLog is an append-only, bounded, concurrency-safe log buffer owned by
// a single BenchmarkedRequestClient.
type RingLog struct {
	mu       sync.Mutex
	lines    []string
	capacity int
}

// NewRingLog returns a RingLog retaining at most capacity lines.
func NewRingLog(capacity int) *RingLog {
	if capacity <= 0 {
		capacity = 2000
	}

	return &RingLog{capacity: capacity}
}

// Append adds a line to the log, evicting the oldest line if full.
func (r *RingLog) Append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lines = append(r.lines, line)
	if over := len(r.lines) - r.capacity; over > 0 {
		r.lines = r.lines[over:]
	}
}

// Text renders the log as a single newline-joined plain-text blob, the
// shape GET /benchmark/:id/log returns.
func (r *RingLog) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]byte, 0, len(r.lines)*64)
	for _, line := range r.lines {
		out = append(out, line...)
		out = append(out, '\n')
	}

	return string(out)
}

// mirroringLogger wraps an mlog.Logger, forwarding Info, Infof, Warn, Warnf,
// Error and Errorf both to the wrapped logger and to a RingLog. The other
// methods (the ...ln variants, Debug* and Fatal*) go to the wrapped logger
// only and are not appended to the ring.
type mirroringLogger struct {
	mlog.Logger
	ring *RingLog
}

func (m *mirroringLogger) Info(args ...any) {
	m.Logger.Info(args...)
	m.ring.Append(sprint("INFO", args...))
}

func (m *mirroringLogger) Infof(format string, args ...any) {
	m.Logger.Infof(format, args...)
	m.ring.Append(sprintf("INFO", format, args...))
}

func (m *mirroringLogger) Warn(args ...any) {
	m.Logger.Warn(args...)
	m.ring.Append(sprint("WARN", args...))
}

func (m *mirroringLogger) Warnf(format string, args ...any) {
	m.Logger.Warnf(format, args...)
	m.ring.Append(sprintf("WARN", format, args...))
}

func (m *mirroringLogger) Error(args ...any) {
	m.Logger.Error(args...)
	m.ring.Append(sprint("ERROR", args...))
}

func (m *mirroringLogger) Errorf(format string, args ...any) {
	m.Logger.Errorf(format, args...)
	m.ring.Append(sprintf("ERROR", format, args...))
}

//nolint:ireturn
func (m *mirroringLogger) WithFields(fields ...any) mlog.Logger {
	return &mirroringLogger{Logger: m.Logger.WithFields(fields...), ring: m.ring}
}

// WithBRCLog returns a context whose logger mirrors into ring in addition
// to doing whatever the ambient logger already does.
func WithBRCLog(ctx context.Context, ring *RingLog) context.Context {
	base := mlog.FromContext(ctx)
	mirrored := &mirroringLogger{Logger: base, ring: ring}

	return context.WithValue(mlog.ContextWithLogger(ctx, mirrored), brcLogContextKey, ring)
}

// NewMirroringLogger wraps logger so every call is also appended to ring.
// internal/brc uses this to give each BenchmarkedRequestClient a logger
// that feeds both the process-wide log and its own isolated ring, without
// every call site having to thread a context through obslog.WithBRCLog.
//
//nolint:ireturn
func NewMirroringLogger(logger mlog.Logger, ring *RingLog) mlog.Logger {
	if logger == nil {
		logger = mlog.NoneLogger{}
	}

	return &mirroringLogger{Logger: logger, ring: ring}
}

// RingFromContext returns the RingLog attached to ctx, if any.
func RingFromContext(ctx context.Context) (*RingLog, bool) {
	ring, ok := ctx.Value(brcLogContextKey).(*RingLog)
	return ring, ok
}

func sprint(level string, args ...any) string {
	return level + ": " + fmt.Sprint(args...)
}

func sprintf(level, format string, args ...any) string {
	return level + ": " + fmt.Sprintf(format, args...)
}
