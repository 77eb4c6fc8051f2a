// Package logger provides the process-wide structured logger. It keeps a
// small printf-style surface for the CLI and exposes the underlying zap
// logger for structured call sites.
package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *zap.Logger
	mu           sync.Mutex
)

// ModuleField is the field name used to tag log lines with the emitting component.
const ModuleField = "module"

// InitLogger initializes the logger from a textual level (debug, info, warn,
// error) with console output and, when filename is not empty, an additional
// file output.
func InitLogger(filename, level string) error {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	outputs := []string{"stdout"}
	if filename != "" {
		outputs = append(outputs, filename)
	}

	l, err := newLogger(zapLevel, outputs)
	if err != nil {
		return err
	}

	mu.Lock()
	globalLogger = l
	mu.Unlock()
	return nil
}

func newLogger(level zapcore.Level, outputs []string) (*zap.Logger, error) {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         "console",
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return l, nil
}

// Get returns the global logger, creating a default info-level one if needed.
func Get() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if globalLogger == nil {
		l, err := newLogger(zapcore.InfoLevel, []string{"stdout"})
		if err != nil {
			l = zap.NewNop()
		}
		globalLogger = l
	}
	return globalLogger
}

// Set replaces the global logger. Tests use it to install zap.NewNop or an observer.
func Set(l *zap.Logger) {
	mu.Lock()
	globalLogger = l
	mu.Unlock()
}

// With creates a child logger with additional fields
func With(fields ...zap.Field) *zap.Logger {
	return Get().WithOptions(zap.AddCallerSkip(-1)).With(fields...)
}

// Close flushes buffered log entries.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if globalLogger != nil {
		_ = globalLogger.Sync()
	}
}

func Debug(format string, v ...interface{}) {
	Get().Debug(fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...interface{}) {
	Get().Debug(fmt.Sprintf(format, v...))
}

func Info(format string, v ...interface{}) {
	Get().Info(fmt.Sprintf(format, v...))
}

func Infof(format string, v ...interface{}) {
	Get().Info(fmt.Sprintf(format, v...))
}

func Error(format string, v ...interface{}) {
	Get().Error(fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...interface{}) {
	Get().Error(fmt.Sprintf(format, v...))
}

func Warn(format string, v ...interface{}) {
	Get().Warn(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...interface{}) {
	Get().Warn(fmt.Sprintf(format, v...))
}
