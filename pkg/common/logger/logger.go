package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Global sugared logger, initialized once at process start and read-only after.
var std = zap.NewNop().Sugar()

// Initialize sets up the global logger based on input string (e.g., "debug", "info", "warn", "error").
func Initialize(level string) {
	lvl := zapcore.InfoLevel
	switch level {
	case "debug", "DEBUG":
		lvl = zapcore.DebugLevel
	case "info", "INFO", "":
		lvl = zapcore.InfoLevel
	case "warn", "WARN", "warning", "WARNING":
		lvl = zapcore.WarnLevel
	case "error", "ERROR":
		lvl = zapcore.ErrorLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl == zapcore.DebugLevel {
		cfg.Development = true
	}

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Last resort: a logger that cannot be built falls back to the example config.
		l = zap.NewExample()
	}
	std = l.Sugar()
}

// Sync flushes buffered log entries. Call before process exit.
func Sync() { _ = std.Sync() }

// Package-level helpers
func Debug(format string, v ...interface{}) { std.Debugf(format, v...) }
func Info(format string, v ...interface{})  { std.Infof(format, v...) }
func Warn(format string, v ...interface{})  { std.Warnf(format, v...) }
func Error(format string, v ...interface{}) { std.Errorf(format, v...) }
