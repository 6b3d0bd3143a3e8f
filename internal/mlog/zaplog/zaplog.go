// Package zaplog backs internal/mlog.Logger with go.uber.org/zap for
// production deployments.
package zaplog

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lerian-labs/icvsb-gateway/internal/mlog"
)

// Logger wraps a *zap.SugaredLogger to satisfy mlog.Logger.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a Logger writing to the given file path ("" or "stdout" means
// os.Stdout) at the given level.
func New(level mlog.Level, filePath string) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if filePath != "" && !strings.EqualFold(filePath, "stdout") {
		cfg.OutputPaths = []string{filePath}
		cfg.ErrorOutputPaths = []string{filePath}
	} else {
		cfg.OutputPaths = []string{"stdout"}
	}

	cfg.Level = zap.NewAtomicLevelAt(toZapLevel(level))

	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{sugar: z.Sugar()}, nil
}

func toZapLevel(l mlog.Level) zapcore.Level {
	switch l {
	case mlog.FatalLevel:
		return zapcore.FatalLevel
	case mlog.ErrorLevel:
		return zapcore.ErrorLevel
	case mlog.WarnLevel:
		return zapcore.WarnLevel
	case mlog.DebugLevel:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *Logger) Info(args ...any)                 { l.sugar.Info(args...) }
func (l *Logger) Infof(format string, args ...any)  { l.sugar.Infof(format, args...) }
func (l *Logger) Infoln(args ...any)                { l.sugar.Info(args...) }
func (l *Logger) Warn(args ...any)                  { l.sugar.Warn(args...) }
func (l *Logger) Warnf(format string, args ...any)   { l.sugar.Warnf(format, args...) }
func (l *Logger) Warnln(args ...any)                { l.sugar.Warn(args...) }
func (l *Logger) Error(args ...any)                 { l.sugar.Error(args...) }
func (l *Logger) Errorf(format string, args ...any)  { l.sugar.Errorf(format, args...) }
func (l *Logger) Errorln(args ...any)                { l.sugar.Error(args...) }
func (l *Logger) Debug(args ...any)                 { l.sugar.Debug(args...) }
func (l *Logger) Debugf(format string, args ...any)  { l.sugar.Debugf(format, args...) }
func (l *Logger) Debugln(args ...any)                { l.sugar.Debug(args...) }
func (l *Logger) Fatal(args ...any)                 { l.sugar.Fatal(args...) }
func (l *Logger) Fatalf(format string, args ...any)  { l.sugar.Fatalf(format, args...) }
func (l *Logger) Fatalln(args ...any)                { l.sugar.Fatal(args...) }

// WithFields returns a child logger with the given key/value pairs attached.
//
//nolint:ireturn
func (l *Logger) WithFields(fields ...any) mlog.Logger {
	return &Logger{sugar: l.sugar.With(fields...)}
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error { return l.sugar.Sync() }
