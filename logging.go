package pysandbox

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	once   sync.Once
)

// initLogging builds the package-level logger once, lazily, the first time
// any component needs to emit a log line. Production builds (PYSANDBOX_ENV
// unset or "production") get JSON encoding suited to log aggregation;
// anything else gets colorized console output suited to a terminal.
func initLogging() {
	once.Do(func() {
		env := os.Getenv("PYSANDBOX_ENV")

		var cfg zap.Config
		if env == "" || env == "production" {
			cfg = zap.NewProductionConfig()
		} else {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

		built, err := cfg.Build(zap.AddCallerSkip(1))
		if err != nil {
			logger = zap.NewNop()
			return
		}
		logger = built
	})
}

// log returns the package-level structured logger, building it on first use.
func log() *zap.Logger {
	initLogging()
	return logger
}

// auditEvent logs a policy-decision or workspace lifecycle event at Info
// when audit logging is enabled for the active policy, or at Debug
// otherwise, so the events stay out of default production output without
// disappearing entirely.
func auditEvent(enabled bool, msg string, fields ...zap.Field) {
	l := log()
	if enabled {
		l.Info(msg, fields...)
		return
	}
	l.Debug(msg, fields...)
}
