package app

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mcpscene/internal/infra/telemetry"
)

// LoggingConfig configures logging wiring.
type LoggingConfig struct {
	Logger      *zap.Logger
	Broadcaster *telemetry.LogBroadcaster
}

// Logging bundles the logger and broadcaster.
type Logging struct {
	Logger      *zap.Logger
	Broadcaster *telemetry.LogBroadcaster
}

// NewLogging tees the logger into a broadcaster so the admin event stream
// can follow it.
func NewLogging(cfg LoggingConfig) Logging {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	logs := cfg.Broadcaster
	if logs == nil {
		logs = telemetry.NewLogBroadcaster(zapcore.DebugLevel)
		logger = logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, logs.Core())
		}))
	}
	// Added after the tee so both the process core and the broadcaster see it.
	logger = logger.With(zap.String(telemetry.FieldLogSource, telemetry.LogSourceCore))

	return Logging{
		Logger:      logger,
		Broadcaster: logs,
	}
}

func NewLogger(logging Logging) *zap.Logger {
	return logging.Logger
}

func NewLogBroadcaster(logging Logging) *telemetry.LogBroadcaster {
	return logging.Broadcaster
}

// NewRootLogger builds the process logger at the named level. Debug also
// switches to the human-readable development encoder.
func NewRootLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	if parsed == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	return cfg.Build()
}
