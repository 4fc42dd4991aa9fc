/*
File Name:  logging.go

Default structured-logging backend for Hooks.LogEvent, grounded on
SPEC_FULL.md §10: the teacher calls a freeform LogError(function, format,
args...) hook; this engine keeps that callback shape but backs the default
implementation with a *zap.Logger so fields (peer ID, transport kind,
packet type) stay structured instead of being interpolated into a string.
*/

package meshcore

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newZapLogger(cfg *Config, sink *Sink) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	if cfg.LogLevel == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}

	// Tee a second core writing a console-encoded copy of every entry onto
	// Sink, so a host app can subscribe to raw log output (Engine.Sink)
	// without reimplementing a zap core of its own.
	sinkCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(sink),
		zapcore.DebugLevel,
	)
	logger = logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, sinkCore)
	}))

	return logger, nil
}

// defaultLogEvent is the Hooks.LogEvent implementation installed when a
// host application doesn't supply its own.
func (e *Engine) defaultLogEvent(level zapcore.Level, msg string, fields ...zap.Field) {
	if e.zapLogger == nil {
		return
	}
	e.zapLogger.Check(level, msg).Write(fields...)
}
