// Package logx provides the process-wide structured logger.
package logx

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var global *zap.SugaredLogger

func init() {
	Init("info", "console")
}

// Init configures the global logger. Safe to call again to reconfigure.
func Init(level, format string) {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(parseLevel(level))
	config.Sampling = nil
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeDuration = zapcore.SecondsDurationEncoder

	switch strings.ToLower(format) {
	case "json":
		config.Encoding = "json"
	default:
		config.Encoding = "console"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	logger, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic(err)
	}
	global = logger.Sugar()
}

// L returns the global sugared logger.
func L() *zap.SugaredLogger {
	return global
}

// Sync flushes buffered entries. Called on shutdown.
func Sync() {
	_ = global.Sync()
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
