// Package mlog defines the logging interface shared by every component of
// the gateway, plus a minimal stdlib-backed implementation and a no-op
// implementation. Production wiring uses internal/mlog/zaplog.
package mlog

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Logger is the common interface implemented by every logging backend used
// in this codebase.
type Logger interface {
	Info(args ...any)
	Infof(format string, args ...any)
	Infoln(args ...any)

	Warn(args ...any)
	Warnf(format string, args ...any)
	Warnln(args ...any)

	Error(args ...any)
	Errorf(format string, args ...any)
	Errorln(args ...any)

	Debug(args ...any)
	Debugf(format string, args ...any)
	Debugln(args ...any)

	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Fatalln(args ...any)

	WithFields(fields ...any) Logger

	Sync() error
}

// Level represents the severity of a log line.
type Level int8

const (
	// FatalLevel logs and then exits the process.
	FatalLevel Level = iota
	// ErrorLevel is used for errors that should definitely be noted.
	ErrorLevel
	// WarnLevel is for non-critical entries that deserve eyes.
	WarnLevel
	// InfoLevel is for general operational entries.
	InfoLevel
	// DebugLevel is usually only enabled when debugging.
	DebugLevel
)

// ParseLevel takes a string level and returns a Level constant.
func ParseLevel(lvl string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "fatal":
		return FatalLevel, nil
	case "error":
		return ErrorLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "debug":
		return DebugLevel, nil
	}

	var l Level

	return l, fmt.Errorf("not a valid log level: %q", lvl)
}

// GoLogger is a stdlib `log`-backed implementation of Logger for callers
// that do not need zap. Components that are given no logger fall back to
// NoneLogger, not GoLogger.
type GoLogger struct {
	Level  Level
	fields []any
}

func (l *GoLogger) enabled(level Level) bool { return l.Level >= level }

func (l *GoLogger) print(level Level, args ...any) {
	if l.enabled(level) {
		log.Print(append(append([]any{}, l.fields...), args...)...)
	}
}

func (l *GoLogger) printf(level Level, format string, args ...any) {
	if l.enabled(level) {
		log.Print(append(append([]any{}, l.fields...), fmt.Sprintf(format, args...))...)
	}
}

func (l *GoLogger) println(level Level, args ...any) {
	if l.enabled(level) {
		log.Println(append(append([]any{}, l.fields...), args...)...)
	}
}

func (l *GoLogger) Info(args ...any)                  { l.print(InfoLevel, args...) }
func (l *GoLogger) Infof(format string, args ...any)   { l.printf(InfoLevel, format, args...) }
func (l *GoLogger) Infoln(args ...any)                 { l.println(InfoLevel, args...) }
func (l *GoLogger) Warn(args ...any)                   { l.print(WarnLevel, args...) }
func (l *GoLogger) Warnf(format string, args ...any)   { l.printf(WarnLevel, format, args...) }
func (l *GoLogger) Warnln(args ...any)                 { l.println(WarnLevel, args...) }
func (l *GoLogger) Error(args ...any)                  { l.print(ErrorLevel, args...) }
func (l *GoLogger) Errorf(format string, args ...any)  { l.printf(ErrorLevel, format, args...) }
func (l *GoLogger) Errorln(args ...any)                { l.println(ErrorLevel, args...) }
func (l *GoLogger) Debug(args ...any)                  { l.print(DebugLevel, args...) }
func (l *GoLogger) Debugf(format string, args ...any)  { l.printf(DebugLevel, format, args...) }
func (l *GoLogger) Debugln(args ...any)                { l.println(DebugLevel, args...) }
func (l *GoLogger) Fatal(args ...any)                  { l.print(FatalLevel, args...) }
func (l *GoLogger) Fatalf(format string, args ...any)  { l.printf(FatalLevel, format, args...) }
func (l *GoLogger) Fatalln(args ...any)                { l.println(FatalLevel, args...) }

// WithFields returns a logger that prepends fields to every subsequent line.
//
//nolint:ireturn
func (l *GoLogger) WithFields(fields ...any) Logger {
	return &GoLogger{Level: l.Level, fields: append(append([]any{}, l.fields...), fields...)}
}

// Sync is a no-op for GoLogger; it exists to satisfy Logger.
func (l *GoLogger) Sync() error { return nil }

// NoneLogger discards everything. Used as the zero value for contexts that
// never had a logger attached.
type NoneLogger struct{}

func (NoneLogger) Info(...any)             {}
func (NoneLogger) Infof(string, ...any)    {}
func (NoneLogger) Infoln(...any)           {}
func (NoneLogger) Warn(...any)             {}
func (NoneLogger) Warnf(string, ...any)    {}
func (NoneLogger) Warnln(...any)           {}
func (NoneLogger) Error(...any)            {}
func (NoneLogger) Errorf(string, ...any)   {}
func (NoneLogger) Errorln(...any)          {}
func (NoneLogger) Debug(...any)            {}
func (NoneLogger) Debugf(string, ...any)   {}
func (NoneLogger) Debugln(...any)          {}
func (NoneLogger) Fatal(...any)            {}
func (NoneLogger) Fatalf(string, ...any)   {}
func (NoneLogger) Fatalln(...any)          {}
func (NoneLogger) Sync() error             { return nil }

//nolint:ireturn
func (n NoneLogger) WithFields(...any) Logger { return n }

type contextKey string

const loggerContextKey contextKey = "logger"

// ContextWithLogger returns a context carrying the given Logger.
func ContextWithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// FromContext extracts the Logger carried by ctx, or NoneLogger if absent.
//
//nolint:ireturn
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerContextKey).(Logger); ok && logger != nil {
		return logger
	}

	return NoneLogger{}
}
